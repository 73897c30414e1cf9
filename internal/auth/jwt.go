package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-jwt/jwt/v5"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

// JWTVerifier accepts HS256 tokens signed with a shared secret. It is meant
// for local development where no Firebase project is available.
type JWTVerifier struct {
	secret []byte
	log    *slog.Logger
}

func NewJWTVerifier(secret string, logger *slog.Logger) *JWTVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &JWTVerifier{secret: []byte(secret), log: logger}
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if v == nil || len(v.secret) == 0 {
		return Identity{}, common.NewServiceUnavailable("Authentication service not available", common.ErrUnavailable)
	}
	rid := common.RequestIDFromContext(ctx)

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		v.log.Info("auth.verify.invalid_token", "req_id", rid, "error", err)
		return Identity{}, common.NewUnauthorized("Invalid authentication credentials", errors.Join(common.ErrUnauthorized, err))
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		v.log.Info("auth.verify.invalid_token", "req_id", rid, "error", "invalid claims")
		return Identity{}, common.NewUnauthorized("Invalid authentication credentials", common.ErrUnauthorized)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		v.log.Info("auth.verify.invalid_token", "req_id", rid, "error", "missing sub")
		return Identity{}, common.NewUnauthorized("Invalid authentication credentials", common.ErrUnauthorized)
	}

	out := make(map[string]any, len(claims)+1)
	for k, val := range claims {
		out[k] = val
	}
	out["uid"] = sub
	return Identity{UID: sub, Claims: out}, nil
}

// SignDevToken issues an HS256 token for sub. Used by the CLI and tests.
func SignDevToken(secret, sub string, extra jwt.MapClaims) (string, error) {
	claims := jwt.MapClaims{"sub": sub}
	for k, val := range extra {
		claims[k] = val
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
