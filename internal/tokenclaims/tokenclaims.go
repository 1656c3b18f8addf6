// Package tokenclaims extracts identity claims from backend-minted access
// tokens. Extraction is deliberately unverified: the token was either just
// received from the backend over TLS or is about to be confirmed against it,
// and this front end holds no signing keys. Nothing here grants access — the
// claims only seed provisional state until the live session materializes.
package tokenclaims

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of access-token claims the orchestrator consumes.
type Claims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Parse extracts Claims from a raw JWT without signature verification.
func Parse(raw string) (*Claims, error) {
	if raw == "" {
		return nil, errors.New("empty token")
	}

	var claims accessClaims
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return nil, err
	}

	out := &Claims{
		Subject: claims.Subject,
		Email:   claims.Email,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
