package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"docqa/internal/core"
)

func newAuthError(message string) *core.APIError {
	return &core.APIError{Status: http.StatusUnauthorized, Type: "authentication_error", Message: message}
}

// AuthMiddleware requires "Authorization: Bearer <apiKey>" on the routes it wraps.
// An empty apiKey disables the check.
func AuthMiddleware(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return handleError(c, newAuthError("missing authorization header"))
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				return handleError(c, newAuthError("invalid authorization header format, expected 'Bearer <token>'"))
			}

			token := strings.TrimPrefix(authHeader, prefix)
			if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				return handleError(c, newAuthError("invalid API key"))
			}

			return next(c)
		}
	}
}
