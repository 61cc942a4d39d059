package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"docqa/internal/core"
	"docqa/internal/session"
)

const sessionKey = "docqa.session"

// RequestIDMiddleware keeps a client X-Request-ID or assigns a uuid, echoes it
// in the response and stores it in the request context.
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.New().String()
				req.Header.Set(echo.HeaderXRequestID, id)
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			c.SetRequest(req.WithContext(core.WithRequestID(req.Context(), id)))
			return next(c)
		}
	}
}

// requestLogger logs one slog line per request.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", core.GetRequestID(c.Request().Context()),
			}
			if sid := core.GetSessionID(c.Request().Context()); sid != "" {
				attrs = append(attrs, "session_id", sid)
			}
			if v.Error != nil {
				slog.Warn("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			slog.Info("request", attrs...)
			return nil
		},
	})
}

// SessionMiddleware resolves the page session from its cookie, issuing a new
// cookie when the session is new.
func SessionMiddleware(m *session.Manager, ttl time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := ""
			if ck, err := c.Cookie(session.CookieName); err == nil {
				id = ck.Value
			}

			req := c.Request()
			entry, created, err := m.Get(req.Context(), id)
			if err != nil {
				return core.NewInternalError("failed to load session")
			}
			if created || entry.ID != id {
				c.SetCookie(&http.Cookie{
					Name:     session.CookieName,
					Value:    entry.ID,
					Path:     "/",
					MaxAge:   int(ttl.Seconds()),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
					Secure:   req.TLS != nil,
				})
			}

			c.SetRequest(req.WithContext(core.WithSessionID(req.Context(), entry.ID)))
			c.Set(sessionKey, entry)
			return next(c)
		}
	}
}

func sessionFrom(c echo.Context) *session.Entry {
	e, _ := c.Get(sessionKey).(*session.Entry)
	return e
}
