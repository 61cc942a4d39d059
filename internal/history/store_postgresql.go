package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLStore implements Store and Reader for PostgreSQL.
type PostgreSQLStore struct {
	pool          *pgxpool.Pool
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewPostgreSQLStore creates the uploads table if needed and starts the
// retention cleanup loop when retentionDays > 0.
func NewPostgreSQLStore(pool *pgxpool.Pool, retentionDays int) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS uploads (
			id UUID PRIMARY KEY,
			request_id TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			timestamp TIMESTAMPTZ NOT NULL,
			filename TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			size_bytes BIGINT NOT NULL DEFAULT 0,
			pages INTEGER NOT NULL DEFAULT 0,
			checksum TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			error_type TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			status_code INTEGER NOT NULL DEFAULT 0,
			duration_ns BIGINT NOT NULL DEFAULT 0,
			doc_id TEXT NOT NULL DEFAULT '',
			result JSONB
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create uploads table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_uploads_timestamp ON uploads(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_uploads_session_id ON uploads(session_id)",
		"CREATE INDEX IF NOT EXISTS idx_uploads_checksum ON uploads(checksum)",
	}
	for _, idx := range indexes {
		if _, err := pool.Exec(ctx, idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &PostgreSQLStore{
		pool:          pool,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}
	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, CleanupInterval, store.cleanup)
	}
	return store, nil
}

// WriteBatch sends all inserts in one pgx batch.
func (s *PostgreSQLStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`INSERT INTO uploads (`+entryColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (id) DO NOTHING`,
			e.ID, e.RequestID, e.SessionID, e.Timestamp.UTC(), e.Filename, e.ContentType,
			e.SizeBytes, e.Pages, e.Checksum, e.Outcome, e.ErrorType, e.Message,
			e.StatusCode, e.DurationNs, e.DocID, marshalResult(e))
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	failed := 0
	var firstErr error
	for _, e := range entries {
		if _, err := br.Exec(); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			slog.Warn("failed to insert upload entry", "error", err, "id", e.ID)
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to insert %d of %d upload entries: %w", failed, len(entries), firstErr)
	}
	return nil
}

// Recent implements Reader.
func (s *PostgreSQLStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT id::text, request_id, session_id, timestamp, filename,
		content_type, size_bytes, pages, checksum, outcome, error_type, message, status_code,
		duration_ns, doc_id, result
		FROM uploads ORDER BY timestamp DESC, id DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	result := make([]Entry, 0)
	for rows.Next() {
		var (
			e      Entry
			rawRes []byte
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.SessionID, &e.Timestamp, &e.Filename,
			&e.ContentType, &e.SizeBytes, &e.Pages, &e.Checksum, &e.Outcome, &e.ErrorType,
			&e.Message, &e.StatusCode, &e.DurationNs, &e.DocID, &rawRes); err != nil {
			return nil, fmt.Errorf("failed to scan upload row: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		e.Result = unmarshalResult(rawRes, e.ID)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating upload rows: %w", err)
	}
	return result, nil
}

// Summary implements Reader.
func (s *PostgreSQLStore) Summary(ctx context.Context) (*Summary, error) {
	sum := &Summary{}
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*),
		COUNT(*) FILTER (WHERE outcome = $1),
		COUNT(*) FILTER (WHERE outcome = $2),
		COALESCE(SUM(size_bytes), 0)::BIGINT
		FROM uploads`, OutcomeSuccess, OutcomeFailure).Scan(&sum.Total, &sum.Succeeded, &sum.Failed, &sum.TotalBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads summary: %w", err)
	}
	return sum, nil
}

// Flush is a no-op; writes are synchronous.
func (s *PostgreSQLStore) Flush(_ context.Context) error {
	return nil
}

// Close stops the cleanup goroutine. The pool is owned by the storage layer.
func (s *PostgreSQLStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

func (s *PostgreSQLStore) cleanup() {
	if s.retentionDays <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays).UTC()
	tag, err := s.pool.Exec(ctx, "DELETE FROM uploads WHERE timestamp < $1", cutoff)
	if err != nil {
		slog.Error("failed to cleanup old upload history", "error", err)
		return
	}
	if n := tag.RowsAffected(); n > 0 {
		slog.Info("cleaned up old upload history", "deleted", n)
	}
}
