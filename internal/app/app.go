// Package app wires configuration into the running upload page server and
// controls its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"docqa/config"
	"docqa/internal/core"
	"docqa/internal/history"
	"docqa/internal/observability"
	"docqa/internal/page"
	"docqa/internal/server"
	"docqa/internal/session"
	"docqa/internal/upload"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config   *config.Config
	history  *history.Result
	sessions *session.Manager
	server   *server.Server

	stopCleanup chan struct{}
	cleanupDone sync.WaitGroup

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	// AppConfig is the result of config.Load.
	AppConfig *config.Config

	// Uploader replaces the HTTP client to the document API. Optional.
	Uploader core.Uploader

	// Chat replaces the default chat mount. Optional.
	Chat core.ChatSurface
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	appCfg := cfg.AppConfig

	app := &App{
		config:      appCfg,
		stopCleanup: make(chan struct{}),
	}

	historyResult, err := history.New(ctx, appCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize upload history: %w", err)
	}
	app.history = historyResult

	uploader := cfg.Uploader
	if uploader == nil {
		client, err := upload.NewClient(upload.ClientConfig{
			BaseURL: appCfg.Upload.BaseURL,
			Path:    appCfg.Upload.Path,
		})
		if err != nil {
			return nil, app.closeOnError(fmt.Errorf("failed to create upload client: %w", err))
		}
		slog.Info("document API configured", "url", client.URL())
		uploader = client
	}

	hooks := []core.UploadHooks{history.NewRecorder(historyResult.Logger)}
	if appCfg.Metrics.Enabled {
		hooks = append(hooks, observability.NewPrometheusHooks())
	}
	uploader = upload.NewInstrumented(uploader, hooks...)

	store, err := newSessionStore(appCfg.Session)
	if err != nil {
		return nil, app.closeOnError(fmt.Errorf("failed to create session store: %w", err))
	}

	chat := cfg.Chat
	if chat == nil {
		chat = page.NewStaticChat(appCfg.Chat.MountID, appCfg.Chat.ScriptURL)
	}

	app.sessions = session.NewManager(session.Config{
		Store:    store,
		Uploader: uploader,
		Chat:     chat,
		TTL:      appCfg.Session.TTL,
		WidgetOptions: []upload.Option{
			upload.WithTimeout(appCfg.Upload.Timeout),
			upload.WithMessageOptions(core.MessageOptions{SurfaceServerDetail: appCfg.Upload.SurfaceServerDetail}),
		},
	})

	app.cleanupDone.Add(1)
	go func() {
		defer app.cleanupDone.Done()
		app.sessions.RunCleanupLoop(app.stopCleanup, session.CleanupInterval)
	}()

	renderer, err := page.NewRenderer()
	if err != nil {
		return nil, app.closeOnError(fmt.Errorf("failed to parse page templates: %w", err))
	}

	bodyLimit, err := config.ParseSize(appCfg.Server.BodySizeLimit)
	if err != nil {
		return nil, app.closeOnError(fmt.Errorf("invalid body size limit: %w", err))
	}

	app.logStartupInfo()

	app.server = server.New(server.Deps{
		Sessions: app.sessions,
		Renderer: renderer,
		History:  historyResult.Reader,
		Storage:  historyResult.Storage,
	}, &server.Config{
		APIKey:          appCfg.Server.APIKey,
		MetricsEnabled:  appCfg.Metrics.Enabled,
		MetricsEndpoint: appCfg.Metrics.Endpoint,
		BodySizeLimit:   bodyLimit,
		MaxFileSize:     appCfg.Upload.MaxFileSize,
		SessionTTL:      appCfg.Session.TTL,
	})

	return app, nil
}

func newSessionStore(cfg config.SessionConfig) (session.Store, error) {
	switch cfg.Store {
	case "", "memory":
		return session.NewMemoryStore(cfg.TTL), nil
	case "file":
		return session.NewFileStore(cfg.Dir, cfg.TTL)
	case "redis":
		return session.NewRedisStore(session.RedisConfig{
			URL:       cfg.Redis.URL,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.TTL,
		})
	default:
		return nil, fmt.Errorf("unknown session store: %s", cfg.Store)
	}
}

// closeOnError releases what New built so far and returns err annotated with
// any close failure.
func (a *App) closeOnError(err error) error {
	var errs []error
	if a.sessions != nil {
		close(a.stopCleanup)
		a.cleanupDone.Wait()
		errs = append(errs, a.sessions.Close())
	}
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	if closeErr := errors.Join(errs...); closeErr != nil {
		return fmt.Errorf("%w (also: close error: %v)", err, closeErr)
	}
	return err
}

// Handler returns the HTTP handler, for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.server
}

// Sessions returns the session manager.
func (a *App) Sessions() *session.Manager {
	return a.sessions
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order:
// the HTTP server, the session cleanup loop and store, then upload history,
// which flushes pending entries before its storage is closed.
//
// Shutdown is idempotent. It attempts every step and returns the joined errors.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if a.sessions != nil {
		close(a.stopCleanup)
		a.cleanupDone.Wait()
		if err := a.sessions.Close(); err != nil {
			slog.Error("session store close error", "error", err)
			errs = append(errs, fmt.Errorf("sessions close: %w", err))
		}
	}

	if a.history != nil {
		if err := a.history.Close(); err != nil {
			slog.Error("upload history close error", "error", err)
			errs = append(errs, fmt.Errorf("history close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo() {
	cfg := a.config

	if cfg.Server.APIKey == "" {
		slog.Warn("DOCQA_API_KEY not set - upload history API is unauthenticated")
	} else {
		slog.Info("history API authentication enabled")
	}

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	slog.Info("sessions configured", "store", cfg.Session.Store, "ttl", cfg.Session.TTL)

	if cfg.History.Enabled {
		slog.Info("upload history enabled",
			"storage_type", cfg.Storage.Type,
			"buffer_size", cfg.History.BufferSize,
			"flush_interval", cfg.History.FlushInterval,
			"retention_days", cfg.History.RetentionDays,
		)
	} else {
		slog.Info("upload history disabled")
	}

	slog.Info("upload limits",
		"timeout", cfg.Upload.Timeout,
		"max_file_size", cfg.Upload.MaxFileSize,
		"surface_server_detail", cfg.Upload.SurfaceServerDetail,
	)
}
