package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only-32b")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func assertHTTPStatus(t *testing.T, err error, want int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected HTTP %d, got nil error", want)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != want {
		t.Errorf("expected %d, got %d", want, httpErr.Code)
	}
}

func newCtx(path, authHeader string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath(path)
	return c
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})
	assertHTTPStatus(t, mw(okHandler)(newCtx("/api/v1/appointments", "")), http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})
			assertHTTPStatus(t, mw(okHandler)(newCtx("/", tt.header)), http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	tokenStr := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: "doctor",
	}, testSigningKey)

	var called bool
	handler := func(c echo.Context) error {
		called = true
		ctx := c.Request().Context()
		if got := SubjectFromContext(ctx); got != "user-123" {
			t.Errorf("expected subject user-123, got %s", got)
		}
		if got := UserIDFromContext(ctx); got != "user-123" {
			t.Errorf("expected user_id user-123, got %s", got)
		}
		roles := RolesFromContext(ctx)
		if len(roles) != 1 || roles[0] != "doctor" {
			t.Errorf("expected roles=[doctor], got %v", roles)
		}
		return nil
	}

	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})
	if err := mw(handler)(newCtx("/", "Bearer "+tokenStr)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("handler was not called")
	}
}

func TestJWTMiddleware_RejectsBadTokens(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		claims Claims
		key    []byte
	}{
		{"expired", Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: "u", ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
		}}, testSigningKey},
		{"no expiry", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}}, testSigningKey},
		{"no subject", Claims{RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}}, testSigningKey},
		{"wrong key", Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: "u", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}}, []byte("another-key-another-key-another-key")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokenStr := createTestToken(t, tt.claims, tt.key)
			mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})
			assertHTTPStatus(t, mw(okHandler)(newCtx("/", "Bearer "+tokenStr)), http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_IssuerChecked(t *testing.T) {
	tokenStr := createTestToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u",
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}, testSigningKey)

	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "ayurveda-clinic"})
	assertHTTPStatus(t, mw(okHandler)(newCtx("/", "Bearer "+tokenStr)), http.StatusUnauthorized)
}

func TestJWTMiddleware_OptionalAuthPaths(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})

	var sub string
	err := mw(func(c echo.Context) error {
		sub = SubjectFromContext(c.Request().Context())
		return nil
	})(newCtx("/api/v1/auth/login", ""))
	if err != nil {
		t.Fatalf("anonymous login should pass, got %v", err)
	}
	if sub != "" {
		t.Errorf("expected no subject, got %q", sub)
	}

	// A presented token is still verified.
	assertHTTPStatus(t, mw(okHandler)(newCtx("/api/v1/auth/signup", "Bearer garbage")), http.StatusUnauthorized)
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper})
	if err := mw(okHandler)(newCtx("/health", "")); err != nil {
		t.Errorf("expected /health to skip auth, got %v", err)
	}
	assertHTTPStatus(t, mw(okHandler)(newCtx("/api/v1/sessions", "")), http.StatusUnauthorized)
}

func TestDevAuthMiddleware_NoToken(t *testing.T) {
	verify := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})
	handler := func(c echo.Context) error {
		ctx := c.Request().Context()
		if got := SubjectFromContext(ctx); got != DevSubject {
			t.Errorf("expected dev subject, got %q", got)
		}
		roles := RolesFromContext(ctx)
		if len(roles) != 1 || roles[0] != "admin" {
			t.Errorf("expected roles=[admin], got %v", roles)
		}
		return nil
	}
	if err := DevAuthMiddleware(verify, nil)(handler)(newCtx("/api/v1/users", "")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDevAuthMiddleware_VerifiesPresentedToken(t *testing.T) {
	verify := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})
	mw := DevAuthMiddleware(verify, nil)
	assertHTTPStatus(t, mw(okHandler)(newCtx("/api/v1/users", "Bearer not-a-jwt")), http.StatusUnauthorized)

	tokenStr := createTestToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "patient-7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, Role: "patient"}, testSigningKey)
	err := mw(func(c echo.Context) error {
		if got := SubjectFromContext(c.Request().Context()); got != "patient-7" {
			t.Errorf("expected token subject, got %q", got)
		}
		return nil
	})(newCtx("/api/v1/users", "Bearer "+tokenStr))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDevAuthMiddleware_Skipper(t *testing.T) {
	mw := DevAuthMiddleware(nil, AuthSkipper)
	err := mw(func(c echo.Context) error {
		if SubjectFromContext(c.Request().Context()) != "" {
			t.Error("expected health check to carry no subject")
		}
		return nil
	})(newCtx("/health/db", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIsPublicPath(t *testing.T) {
	if !IsPublicPath("/health") || IsPublicPath("/api/v1/auth/login") {
		t.Error("unexpected public path classification")
	}
	if !IsOptionalAuthPath("/api/v1/auth/signup") || IsOptionalAuthPath("/api/v1/users") {
		t.Error("unexpected optional path classification")
	}
}
