package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"512", 512},
		{"512K", 512 << 10},
		{"1M", 1 << 20},
		{"2mb", 2 << 20},
		{"1G", 1 << 30},
		{"", 1 << 20},
		{"lots", 1 << 20},
		{"-5K", 1 << 20},
	}
	for _, tt := range tests {
		if got := ParseSize(tt.in); got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func echoBody(c echo.Context) error {
	b, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	return c.String(http.StatusOK, string(b))
}

func TestBodyLimit(t *testing.T) {
	e := echo.New()
	e.Use(BodyLimit("16", map[string]string{"/big": "64"}))
	e.POST("/small", echoBody)
	e.POST("/big", echoBody)

	tests := []struct {
		name   string
		path   string
		body   string
		chunk  bool
		status int
	}{
		{"within default", "/small", "hello", false, http.StatusOK},
		{"over default", "/small", strings.Repeat("x", 17), false, http.StatusRequestEntityTooLarge},
		{"over default without length", "/small", strings.Repeat("x", 40), true, http.StatusRequestEntityTooLarge},
		{"within override", "/big", strings.Repeat("x", 40), false, http.StatusOK},
		{"over override", "/big", strings.Repeat("x", 65), false, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			if tt.chunk {
				req.ContentLength = -1
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status == http.StatusOK && rec.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.body)
			}
		})
	}
}

func TestBodyLimit_NoBody(t *testing.T) {
	e := echo.New()
	e.Use(BodyLimit("1", nil))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func waitForDeadline(c echo.Context) error {
	ctx := c.Request().Context()
	if _, ok := ctx.Deadline(); !ok {
		return c.String(http.StatusOK, "no deadline")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Second):
		return c.String(http.StatusOK, "finished")
	}
}

func TestRequestTimeout(t *testing.T) {
	e := echo.New()
	e.Use(RequestTimeout(10*time.Millisecond, map[string]time.Duration{
		"/slow": 0,
		"/long": 5 * time.Second,
	}))
	e.GET("/fast", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/stuck", waitForDeadline)
	e.GET("/slow", waitForDeadline)
	e.GET("/long", func(c echo.Context) error {
		dl, ok := c.Request().Context().Deadline()
		if !ok || time.Until(dl) < time.Second {
			return c.String(http.StatusInternalServerError, "wrong deadline")
		}
		return c.String(http.StatusOK, "ok")
	})

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/fast", http.StatusOK, "ok"},
		{"/stuck", http.StatusGatewayTimeout, ""},
		{"/slow", http.StatusOK, "no deadline"},
		{"/long", http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.body)
			}
		})
	}
}

func TestRequestTimeout_KeepsUnrelatedErrors(t *testing.T) {
	e := echo.New()
	e.Use(RequestTimeout(time.Second, nil))
	e.GET("/", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "bad")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRequestTimeout_ParentCancelIsNotTimeout(t *testing.T) {
	e := echo.New()
	e.Use(RequestTimeout(time.Second, nil))
	e.GET("/", waitForDeadline)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code == http.StatusGatewayTimeout {
		t.Fatal("client cancellation should not be reported as a timeout")
	}
}
