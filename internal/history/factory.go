package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docqa/config"
	"docqa/internal/storage"
)

// Result holds the initialized history logger, its reader and storage.
// The caller must call Close during shutdown.
type Result struct {
	Logger  LoggerInterface
	Reader  Reader
	Storage storage.Storage
}

// Close flushes the logger and releases the storage. Safe to call multiple times.
func (r *Result) Close() error {
	var errs []error
	if r.Logger != nil {
		if err := r.Logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("logger close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
		r.Storage = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// New opens storage and builds the history logger from configuration.
// When history is disabled it returns a NoopLogger and a nil Reader.
func New(ctx context.Context, cfg *config.Config) (*Result, error) {
	if !cfg.History.Enabled {
		return &Result{Logger: &NoopLogger{}}, nil
	}

	store, err := storage.New(ctx, buildStorageConfig(cfg.Storage))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	result, err := NewWithSharedStorage(cfg.History, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	result.Storage = store
	return result, nil
}

// NewWithSharedStorage builds the logger on an already open connection.
// The caller keeps ownership of store.
func NewWithSharedStorage(cfg config.HistoryConfig, store storage.Storage) (*Result, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required when history is enabled")
	}

	s, reader, err := createStore(store, cfg.RetentionDays)
	if err != nil {
		return nil, err
	}

	return &Result{
		Logger: NewLogger(s, buildLoggerConfig(cfg)),
		Reader: reader,
	}, nil
}

func buildStorageConfig(cfg config.StorageConfig) storage.Config {
	sc := storage.DefaultConfig()
	if cfg.Type != "" {
		sc.Type = cfg.Type
	}
	if cfg.SQLite.Path != "" {
		sc.SQLite.Path = cfg.SQLite.Path
	}
	sc.PostgreSQL.URL = cfg.PostgreSQL.URL
	if cfg.PostgreSQL.MaxConns > 0 {
		sc.PostgreSQL.MaxConns = cfg.PostgreSQL.MaxConns
	}
	sc.MongoDB.URL = cfg.MongoDB.URL
	if cfg.MongoDB.Database != "" {
		sc.MongoDB.Database = cfg.MongoDB.Database
	}
	return sc
}

func createStore(store storage.Storage, retentionDays int) (Store, Reader, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		s, err := NewSQLiteStore(store.SQLiteDB(), retentionDays)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil

	case storage.TypePostgreSQL:
		s, err := NewPostgreSQLStore(store.PostgreSQLPool(), retentionDays)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil

	case storage.TypeMongoDB:
		s, err := NewMongoDBStore(store.MongoDatabase(), retentionDays)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}

func buildLoggerConfig(cfg config.HistoryConfig) Config {
	return Config{
		Enabled:       cfg.Enabled,
		BufferSize:    cfg.BufferSize,
		FlushInterval: time.Duration(cfg.FlushInterval) * time.Second,
		RetentionDays: cfg.RetentionDays,
	}
}
