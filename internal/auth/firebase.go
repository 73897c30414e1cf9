package auth

import (
	"context"
	"errors"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

// idTokenVerifier is the subset of *fbauth.Client used here.
type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// FirebaseVerifier delegates to the Firebase Admin SDK.
type FirebaseVerifier struct {
	client idTokenVerifier
	log    *slog.Logger
}

// NewFirebaseVerifier initializes the Admin SDK from a service-account file.
func NewFirebaseVerifier(ctx context.Context, credentialPath, projectID string, logger *slog.Logger) (*FirebaseVerifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if credentialPath == "" {
		return nil, common.NewAppError("CONFIG_ERROR", "firebase credential path is empty", common.ErrInvalidInput)
	}
	var cfg *firebase.Config
	if projectID != "" {
		cfg = &firebase.Config{ProjectID: projectID}
	}
	app, err := firebase.NewApp(ctx, cfg, option.WithCredentialsFile(credentialPath))
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", "initialize firebase app", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", "initialize firebase auth", err)
	}
	logger.Info("auth.firebase.ready", "project_id", projectID)
	return &FirebaseVerifier{client: client, log: logger}, nil
}

func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if v == nil || v.client == nil {
		return Identity{}, common.NewServiceUnavailable("Authentication service not available", common.ErrUnavailable)
	}
	log := v.log
	if log == nil {
		log = slog.Default()
	}
	rid := common.RequestIDFromContext(ctx)

	decoded, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		if fbauth.IsIDTokenInvalid(err) || fbauth.IsIDTokenExpired(err) {
			log.Info("auth.verify.invalid_token", "req_id", rid, "error", err)
		} else {
			log.Warn("auth.verify.provider_error", "req_id", rid, "error", err)
		}
		return Identity{}, common.NewUnauthorized("Invalid authentication credentials", errors.Join(common.ErrUnauthorized, err))
	}

	claims := make(map[string]any, len(decoded.Claims)+1)
	for k, val := range decoded.Claims {
		claims[k] = val
	}
	claims["uid"] = decoded.UID
	return Identity{UID: decoded.UID, Claims: claims}, nil
}
