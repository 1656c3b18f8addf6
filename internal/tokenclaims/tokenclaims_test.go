package tokenclaims

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	return raw
}

func TestParseExtractsClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	raw := signedToken(t, jwt.MapClaims{
		"sub":   "u1",
		"email": "alice@example.com",
		"exp":   exp.Unix(),
	})

	claims, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.Subject != "u1" || claims.Email != "alice@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.ExpiresAt.Equal(exp) {
		t.Fatalf("ExpiresAt = %v, want %v", claims.ExpiresAt, exp)
	}
}

func TestParseExpiredTokenStillYieldsClaims(t *testing.T) {
	// Expiry enforcement belongs to the session machinery, not the parser.
	raw := signedToken(t, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	claims, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.Subject != "u1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "not-a-jwt", "a.b"} {
		if _, err := Parse(raw); err == nil {
			t.Errorf("Parse(%q) expected error", raw)
		}
	}
}

func TestParseMissingOptionalClaims(t *testing.T) {
	raw := signedToken(t, jwt.MapClaims{"sub": "u1"})

	claims, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.Email != "" || !claims.ExpiresAt.IsZero() {
		t.Fatalf("expected zero-value optional claims, got %+v", claims)
	}
}
