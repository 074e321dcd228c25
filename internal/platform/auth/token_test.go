package auth

import (
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestIssuer_RoundTripThroughMiddleware(t *testing.T) {
	issuer := NewIssuer(testSigningKey, time.Hour, "ayurveda-clinic")
	fixed := time.Now()
	issuer.now = func() time.Time { return fixed }

	token, exp, err := issuer.Issue("user-1", "therapist", "t@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(fixed.Add(time.Hour)) {
		t.Errorf("expected expiry %s, got %s", fixed.Add(time.Hour), exp)
	}

	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "ayurveda-clinic"})
	err = mw(func(c echo.Context) error {
		roles := RolesFromContext(c.Request().Context())
		if len(roles) != 1 || roles[0] != "therapist" {
			t.Errorf("expected therapist role claim, got %v", roles)
		}
		return nil
	})(newCtx("/api/v1/sessions", "Bearer "+token))
	if err != nil {
		t.Fatalf("issued token rejected: %v", err)
	}
}

func TestIssuer_Expired(t *testing.T) {
	issuer := NewIssuer(testSigningKey, time.Minute, "")
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err := issuer.Issue("user-1", "patient", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})
	assertHTTPStatus(t, mw(okHandler)(newCtx("/", "Bearer "+token)), http.StatusUnauthorized)
}

func TestIssuer_NoKey(t *testing.T) {
	if _, _, err := NewIssuer(nil, time.Hour, "").Issue("u", "patient", ""); err == nil {
		t.Error("expected error without signing key")
	}
}
