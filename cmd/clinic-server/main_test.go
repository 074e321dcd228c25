package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ayurveda/clinic/internal/config"
	"github.com/ayurveda/clinic/internal/platform/auth"
	"github.com/ayurveda/clinic/internal/platform/middleware"
	"github.com/ayurveda/clinic/internal/platform/notification"
)

var testKey = []byte(strings.Repeat("k", 32))

// subjectServer mounts mw in front of a handler that echoes the token subject.
func subjectServer(mw echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.Use(mw)
	h := func(c echo.Context) error {
		return c.String(http.StatusOK, auth.SubjectFromContext(c.Request().Context()))
	}
	e.GET("/api/v1/dashboard", h)
	e.GET("/health", h)
	return e
}

func get(e *echo.Echo, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware_Development(t *testing.T) {
	mw, err := authMiddleware(&config.Config{Env: "development"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := get(subjectServer(mw), "/api/v1/dashboard", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != auth.DevSubject {
		t.Errorf("expected dev subject, got %q", rec.Body.String())
	}
}

func TestAuthMiddleware_DevelopmentVerifiesPresentedTokens(t *testing.T) {
	mw, err := authMiddleware(&config.Config{Env: "development"}, testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := subjectServer(mw)

	token, _, err := auth.NewIssuer(testKey, time.Hour, tokenIssuer).Issue("user-1", "patient", "a@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rec := get(e, "/api/v1/dashboard", token)
	if rec.Code != http.StatusOK || rec.Body.String() != "user-1" {
		t.Errorf("expected user-1, got %d %q", rec.Code, rec.Body.String())
	}

	if rec := get(e, "/api/v1/dashboard", "garbage"); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a bad token, got %d", rec.Code)
	}
}

func TestAuthMiddleware_Standalone(t *testing.T) {
	cfg := &config.Config{Env: "production", AuthMode: "standalone"}
	mw, err := authMiddleware(cfg, testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := subjectServer(mw)

	if rec := get(e, "/api/v1/dashboard", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a token, got %d", rec.Code)
	}
	if rec := get(e, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("expected public health route, got %d", rec.Code)
	}

	foreign, _, _ := auth.NewIssuer(testKey, time.Hour, "someone-else").Issue("user-1", "admin", "")
	if rec := get(e, "/api/v1/dashboard", foreign); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a foreign issuer, got %d", rec.Code)
	}

	if _, err := authMiddleware(cfg, nil); err == nil {
		t.Error("expected error without a signing key")
	}
}

func TestAuthMiddleware_UnknownMode(t *testing.T) {
	if _, err := authMiddleware(&config.Config{AuthMode: "magic"}, nil); err == nil {
		t.Error("expected error")
	}
}

func TestRateLimitConfig(t *testing.T) {
	got := rateLimitConfig(&config.Config{RateLimitRPS: 5, RateLimitBurst: 10})
	if got.RequestsPerSecond != 5 || got.BurstSize != 10 {
		t.Errorf("unexpected config %+v", got)
	}
	if got := rateLimitConfig(&config.Config{}); got != middleware.DefaultRateLimitConfig() {
		t.Errorf("expected defaults, got %+v", got)
	}
}

func TestReminderConfig(t *testing.T) {
	cfg := &config.Config{
		ReminderInterval:  time.Minute,
		ReminderLeadTime:  3 * time.Hour,
		ReminderTolerance: 7 * time.Minute,
	}
	got := reminderConfig(cfg)
	if got.Interval != time.Minute || got.Lead != 3*time.Hour || got.Tolerance != 7*time.Minute {
		t.Errorf("unexpected reminder config %+v", got)
	}
}

func TestPushSender_DisabledLogsOnly(t *testing.T) {
	sender, err := pushSender(context.Background(), &config.Config{}, &stores{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sender.(notification.LogSender); !ok {
		t.Errorf("expected LogSender, got %T", sender)
	}

	if _, err := pushSender(context.Background(), &config.Config{PushEnabled: true}, &stores{}, zerolog.Nop()); err == nil {
		t.Error("expected error when push is enabled without a firebase app")
	}
}

func TestStoresClose_ReverseOrder(t *testing.T) {
	var order []int
	st := &stores{closers: []func(){
		func() { order = append(order, 1) },
		func() { order = append(order, 2) },
	}}
	st.Close()
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("expected reverse close order, got %v", order)
	}
}
