package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func rsaPublicKeyToJWK(privateKey *rsa.PrivateKey, kid string) JWKSKey {
	pub := &privateKey.PublicKey
	return JWKSKey{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func newJWKSServer(t *testing.T, key *rsa.PrivateKey, kid string, hits *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(JWKSResponse{Keys: []JWKSKey{rsaPublicKeyToJWK(key, kid)}})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOIDCProvider_Discovery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/.well-known/openid-configuration" {
			json.NewEncoder(w).Encode(map[string]string{
				"issuer":   "https://securetoken.google.com/clinic",
				"jwks_uri": "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com",
			})
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	provider, err := NewOIDCProvider(server.URL + "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Issuer != "https://securetoken.google.com/clinic" {
		t.Errorf("unexpected issuer %q", provider.Issuer)
	}
	if provider.JWKSURI == "" {
		t.Error("expected jwks_uri to be populated")
	}
}

func TestOIDCProvider_Errors(t *testing.T) {
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()
	if _, err := NewOIDCProvider(notFound.URL); err == nil {
		t.Error("expected error for 404 discovery endpoint")
	}

	noJWKS := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"issuer": "x"})
	}))
	defer noJWKS.Close()
	if _, err := NewOIDCProvider(noJWKS.URL); err == nil {
		t.Error("expected error for missing jwks_uri")
	}
}

func TestJWKSCache_FetchAndCache(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	var hits int32
	server := newJWKSServer(t, privateKey, "k1", &hits)

	cache := NewJWKSCache(server.URL, 5*time.Minute)
	key, err := cache.GetKey("k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.N.Cmp(privateKey.PublicKey.N) != 0 || key.E != privateKey.PublicKey.E {
		t.Error("fetched key does not match original")
	}
	if _, err := cache.GetKey("k1"); err != nil {
		t.Fatalf("unexpected error on cache hit: %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected 1 fetch, got %d", hits)
	}

	if _, err := cache.GetKey("unknown"); err == nil {
		t.Error("expected error for unknown kid")
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("expected unknown kid to trigger a refetch, got %d fetches", hits)
	}
}

func TestParseRSAPublicKey_Invalid(t *testing.T) {
	if _, err := parseRSAPublicKey(JWKSKey{Kty: "RSA", N: "!!!", E: "AQAB"}); err == nil {
		t.Error("expected error for invalid modulus")
	}
	if _, err := parseRSAPublicKey(JWKSKey{Kty: "RSA", N: "AQAB", E: "!!!"}); err == nil {
		t.Error("expected error for invalid exponent")
	}
}

func TestJwksKeyFunc_NoKidHeader(t *testing.T) {
	keyFunc := jwksKeyFunc("http://127.0.0.1:0")
	_, err := keyFunc(&jwt.Token{Header: map[string]interface{}{}})
	if err == nil || err.Error() != "token has no kid header" {
		t.Fatalf("expected kid error, got %v", err)
	}
}

func TestJWTMiddleware_ExternalRS256(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	server := newJWKSServer(t, privateKey, "firebase-1", nil)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "firebase-uid-42",
			Issuer:    "https://securetoken.google.com/clinic",
			Audience:  jwt.ClaimStrings{"clinic"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email: "asha@example.com",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "firebase-1"
	signed, err := token.SignedString(privateKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	mw := JWTMiddleware(JWTConfig{
		Issuer:   "https://securetoken.google.com/clinic",
		Audience: "clinic",
		JWKSURL:  server.URL,
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	c := e.NewContext(req, httptest.NewRecorder())

	var sub string
	err = mw(func(c echo.Context) error {
		sub = SubjectFromContext(c.Request().Context())
		if email, _ := c.Get("token_email").(string); email != "asha@example.com" {
			t.Errorf("expected token_email to be set, got %q", email)
		}
		if roles := RolesFromContext(c.Request().Context()); len(roles) != 0 {
			t.Errorf("expected no provisional roles, got %v", roles)
		}
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub != "firebase-uid-42" {
		t.Errorf("expected subject firebase-uid-42, got %q", sub)
	}
}

func TestJWTMiddleware_ExternalRejectsHS256(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	server := newJWKSServer(t, privateKey, "k", nil)

	hs := createTestToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}, testSigningKey)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+hs)
	err = JWTMiddleware(JWTConfig{JWKSURL: server.URL})(okHandler)(e.NewContext(req, httptest.NewRecorder()))
	assertHTTPStatus(t, err, http.StatusUnauthorized)
}
