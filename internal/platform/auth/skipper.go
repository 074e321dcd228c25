package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication entirely.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
}

// optionalAuthPaths accept anonymous callers but still verify a token when
// one is presented, so external sign-up can bind the provider uid.
var optionalAuthPaths = map[string]bool{
	"/api/v1/auth/signup": true,
	"/api/v1/auth/login":  true,
}

// AuthSkipper returns true for requests whose route should skip authentication.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}

func IsOptionalAuthPath(path string) bool {
	return optionalAuthPaths[path]
}
