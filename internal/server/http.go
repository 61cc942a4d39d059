package server

import (
	"context"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"docqa/internal/history"
	"docqa/internal/observability"
	"docqa/internal/page"
	"docqa/internal/session"
	"docqa/internal/storage"
)

// DefaultBodySizeLimit is used when Config.BodySizeLimit is zero.
const DefaultBodySizeLimit int64 = 40 << 20

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Deps are the components the server routes to.
type Deps struct {
	Sessions *session.Manager
	Renderer *page.Renderer
	History  history.Reader  // nil when history is disabled
	Storage  storage.Storage // nil when history is disabled
}

// Config holds server configuration options
type Config struct {
	APIKey          string        // Optional: bearer key for /api/uploads
	MetricsEnabled  bool          // Whether to expose Prometheus metrics endpoint
	MetricsEndpoint string        // HTTP path for metrics endpoint (default: /metrics)
	BodySizeLimit   int64         // Max request body size in bytes (default: 40MB)
	MaxFileSize     int64         // Largest accepted pick in bytes
	SessionTTL      time.Duration // Session cookie lifetime
}

// New creates a new HTTP server
func New(deps Deps, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler
	if deps.Renderer != nil {
		e.Renderer = deps.Renderer
	}

	handler := NewHandler(deps.Sessions, deps.History, deps.Storage, cfg.MaxFileSize)

	// Global middleware stack (order matters)
	e.Use(RequestIDMiddleware())
	e.Use(requestLogger())
	e.Use(middleware.Recover())

	bodySizeLimit := DefaultBodySizeLimit
	if cfg.BodySizeLimit > 0 {
		bodySizeLimit = cfg.BodySizeLimit
	}
	e.Use(middleware.BodyLimit(strconv.FormatInt(bodySizeLimit, 10)))

	// Public routes
	e.GET("/health", handler.Health)
	if cfg.MetricsEnabled {
		metricsPath := "/metrics"
		if cfg.MetricsEndpoint != "" {
			metricsPath = path.Clean(cfg.MetricsEndpoint)
		}
		e.GET(metricsPath, echo.WrapHandler(observability.Handler()))
	}
	if deps.Renderer != nil {
		e.GET("/static/*", deps.Renderer.Static)
	}

	// Page routes carry a session
	withSession := SessionMiddleware(deps.Sessions, cfg.SessionTTL)
	e.GET("/", handler.Index, withSession)
	e.POST("/select", handler.Select, withSession)
	e.POST("/upload", handler.Upload, withSession)
	e.GET("/api/session", handler.Session, withSession)

	// History API
	api := e.Group("/api/uploads", AuthMiddleware(cfg.APIKey))
	api.GET("", handler.Uploads)
	api.GET("/summary", handler.UploadsSummary)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
