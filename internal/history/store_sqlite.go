package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SQLite allows 999 bound parameters per statement.
const (
	maxSQLiteParams    = 999
	columnsPerEntry    = 16
	maxEntriesPerBatch = maxSQLiteParams / columnsPerEntry
)

const entryColumns = `id, request_id, session_id, timestamp, filename, content_type, size_bytes, pages,
	checksum, outcome, error_type, message, status_code, duration_ns, doc_id, result`

// SQLiteStore implements Store and Reader for SQLite databases.
type SQLiteStore struct {
	db            *sql.DB
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewSQLiteStore creates the uploads table if needed and starts the
// retention cleanup loop when retentionDays > 0.
func NewSQLiteStore(db *sql.DB, retentionDays int) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS uploads (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			timestamp DATETIME NOT NULL,
			filename TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			size_bytes INTEGER NOT NULL DEFAULT 0,
			pages INTEGER NOT NULL DEFAULT 0,
			checksum TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			error_type TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			status_code INTEGER NOT NULL DEFAULT 0,
			duration_ns INTEGER NOT NULL DEFAULT 0,
			doc_id TEXT NOT NULL DEFAULT '',
			result JSON
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
		if _, err := db.Exec(idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &SQLiteStore{
		db:            db,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}
	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, CleanupInterval, store.cleanup)
	}
	return store, nil
}

// WriteBatch inserts entries, chunked to stay within the parameter limit.
func (s *SQLiteStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	for i := 0; i < len(entries); i += maxEntriesPerBatch {
		end := min(i+maxEntriesPerBatch, len(entries))
		chunk := entries[i:end]

		placeholders := make([]string, len(chunk))
		values := make([]interface{}, 0, len(chunk)*columnsPerEntry)
		for j, e := range chunk {
			placeholders[j] = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

			var result interface{}
			if raw := marshalResult(e); raw != nil {
				result = string(raw)
			}
			values = append(values,
				e.ID, e.RequestID, e.SessionID, e.Timestamp.UTC().Format(time.RFC3339Nano),
				e.Filename, e.ContentType, e.SizeBytes, e.Pages,
				e.Checksum, e.Outcome, e.ErrorType, e.Message,
				e.StatusCode, e.DurationNs, e.DocID, result,
			)
		}

		query := `INSERT OR IGNORE INTO uploads (` + entryColumns + `) VALUES ` + strings.Join(placeholders, ",")
		if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
			return fmt.Errorf("failed to insert uploads batch %d: %w", i/maxEntriesPerBatch, err)
		}
	}
	return nil
}

// Recent implements Reader.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM uploads ORDER BY timestamp DESC, id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	result := make([]Entry, 0)
	for rows.Next() {
		var (
			e      Entry
			ts     string
			rawRes sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.SessionID, &ts, &e.Filename, &e.ContentType,
			&e.SizeBytes, &e.Pages, &e.Checksum, &e.Outcome, &e.ErrorType, &e.Message,
			&e.StatusCode, &e.DurationNs, &e.DocID, &rawRes); err != nil {
			return nil, fmt.Errorf("failed to scan upload row: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		if rawRes.Valid {
			e.Result = unmarshalResult([]byte(rawRes.String), e.ID)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating upload rows: %w", err)
	}
	return result, nil
}

// Summary implements Reader.
func (s *SQLiteStore) Summary(ctx context.Context) (*Summary, error) {
	sum := &Summary{}
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(size_bytes), 0)
		FROM uploads`, OutcomeSuccess, OutcomeFailure).Scan(&sum.Total, &sum.Succeeded, &sum.Failed, &sum.TotalBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads summary: %w", err)
	}
	return sum, nil
}

// Flush is a no-op; writes are synchronous.
func (s *SQLiteStore) Flush(_ context.Context) error {
	return nil
}

// Close stops the cleanup goroutine. The database is owned by the storage layer.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

func (s *SQLiteStore) cleanup() {
	if s.retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays).UTC().Format(time.RFC3339Nano)

	res, err := s.db.Exec("DELETE FROM uploads WHERE timestamp < ?", cutoff)
	if err != nil {
		slog.Error("failed to cleanup old upload history", "error", err)
		return
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		slog.Info("cleaned up old upload history", "deleted", n)
	}
}

func marshalResult(e *Entry) []byte {
	if len(e.Result) == 0 {
		return nil
	}
	raw, err := json.Marshal(e.Result)
	if err != nil {
		slog.Warn("failed to marshal upload result", "error", err, "id", e.ID)
		return nil
	}
	return raw
}

func unmarshalResult(raw []byte, id string) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		slog.Warn("failed to unmarshal upload result", "error", err, "id", id)
		return nil
	}
	return m
}
