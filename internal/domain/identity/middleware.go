package identity

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ayurveda/clinic/internal/platform/apperr"
	"github.com/ayurveda/clinic/internal/platform/auth"
)

type userKey struct{}

// WithCurrentUser stores the signed-in user on ctx.
func WithCurrentUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// CurrentUser returns the signed-in user, or nil for anonymous requests.
func CurrentUser(ctx context.Context) *User {
	u, _ := ctx.Value(userKey{}).(*User)
	return u
}

// RequireUser returns the signed-in user or a 401.
func RequireUser(c echo.Context) (*User, error) {
	u := CurrentUser(c.Request().Context())
	if u == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "sign in required")
	}
	return u, nil
}

// Middleware resolves the verified token subject to the stored user and
// replaces any role claim from the token with the user's stored role.
// Subjects with no account are let through only to sign-up.
func Middleware(svc *Service, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			sub := auth.SubjectFromContext(ctx)
			if sub == "" {
				return next(c)
			}

			u, err := svc.ResolveSubject(ctx, sub)
			if err != nil {
				if errors.Is(err, apperr.ErrNotFound) {
					if c.Path() == "/api/v1/auth/signup" {
						return next(c)
					}
					return echo.NewHTTPError(http.StatusUnauthorized, "account not registered")
				}
				logger.Error().Err(err).Str("subject", sub).Msg("resolve token subject")
				return echo.NewHTTPError(http.StatusInternalServerError, "failed to resolve user")
			}

			ctx = auth.WithUser(ctx, u.ID.String(), string(u.Role))
			ctx = WithCurrentUser(ctx, u)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("user_id", u.ID.String())
			return next(c)
		}
	}
}
