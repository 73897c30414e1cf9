// Package auth verifies bearer tokens against an identity provider.
package auth

import (
	"context"
	"strings"
)

// Identity is a verified caller.
type Identity struct {
	UID    string
	Claims map[string]any
}

// Verifier checks a bearer token. Invalid or expired tokens and provider
// failures return an UNAUTHORIZED AppError; an unconfigured verifier returns
// SERVICE_UNAVAILABLE.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// BearerToken extracts the token from an Authorization header value. The
// scheme match is case-insensitive.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
