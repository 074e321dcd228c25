package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func ctxWithRoles(roles ...string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(context.Background(), "u1", roles...))
	return e.NewContext(req, httptest.NewRecorder())
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		has      []string
		required []string
		allowed  bool
	}{
		{"exact match", []string{"doctor"}, []string{"doctor"}, true},
		{"one of many", []string{"therapist"}, []string{"doctor", "therapist"}, true},
		{"admin bypass", []string{"admin"}, []string{"patient"}, true},
		{"denied", []string{"patient"}, []string{"doctor"}, false},
		{"no roles", nil, []string{"doctor"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireRole(tt.required...)(okHandler)(ctxWithRoles(tt.has...))
			if tt.allowed && err != nil {
				t.Errorf("expected access, got %v", err)
			}
			if !tt.allowed {
				assertHTTPStatus(t, err, http.StatusForbidden)
			}
		})
	}
}

func TestWithUser(t *testing.T) {
	ctx := WithUser(context.Background(), "user-9", "therapist")
	if UserIDFromContext(ctx) != "user-9" {
		t.Errorf("unexpected user id %q", UserIDFromContext(ctx))
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != "therapist" {
		t.Errorf("unexpected roles %v", roles)
	}
	if UserIDFromContext(context.Background()) != "" {
		t.Error("expected empty user id on bare context")
	}
}
