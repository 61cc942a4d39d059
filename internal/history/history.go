// Package history records every upload attempt and serves the recent ones.
package history

import (
	"context"
	"time"
)

// Outcome values stored with each entry.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Store defines the interface for history storage backends.
// Implementations must be safe for concurrent use.
type Store interface {
	// WriteBatch writes multiple entries to storage.
	WriteBatch(ctx context.Context, entries []*Entry) error

	// Flush forces any pending writes to complete.
	Flush(ctx context.Context) error

	// Close releases resources. The shared database connection stays open.
	Close() error
}

// Reader provides read access to recorded attempts.
type Reader interface {
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Summary aggregates all retained entries.
	Summary(ctx context.Context) (*Summary, error)
}

// Entry is one upload attempt.
type Entry struct {
	ID        string    `json:"id" bson:"_id"`
	RequestID string    `json:"request_id,omitempty" bson:"request_id,omitempty"`
	SessionID string    `json:"session_id,omitempty" bson:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`

	Filename    string `json:"filename" bson:"filename"`
	ContentType string `json:"content_type,omitempty" bson:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes" bson:"size_bytes"`
	Pages       int    `json:"pages,omitempty" bson:"pages,omitempty"`
	// Checksum is the xxhash64 of the file contents, hex encoded.
	Checksum string `json:"checksum" bson:"checksum"`

	Outcome    string `json:"outcome" bson:"outcome"`
	ErrorType  string `json:"error_type,omitempty" bson:"error_type,omitempty"`
	Message    string `json:"message,omitempty" bson:"message,omitempty"`
	StatusCode int    `json:"status_code,omitempty" bson:"status_code,omitempty"`
	DurationNs int64  `json:"duration_ns" bson:"duration_ns"`

	DocID  string         `json:"doc_id,omitempty" bson:"doc_id,omitempty"`
	Result map[string]any `json:"result,omitempty" bson:"result,omitempty"`
}

// Summary holds aggregate counts over retained entries.
type Summary struct {
	Total      int   `json:"total"`
	Succeeded  int   `json:"succeeded"`
	Failed     int   `json:"failed"`
	TotalBytes int64 `json:"total_bytes"`
}

// Config holds history logger configuration
type Config struct {
	// Enabled controls whether attempts are recorded
	Enabled bool

	// BufferSize is the number of entries to buffer before dropping
	BufferSize int

	// FlushInterval is how often buffered entries are written
	FlushInterval time.Duration

	// RetentionDays is how long entries are kept (0 = forever)
	RetentionDays int
}

const (
	// DefaultBufferSize is used when Config.BufferSize is unset.
	DefaultBufferSize = 1000

	// DefaultFlushInterval is used when Config.FlushInterval is unset.
	DefaultFlushInterval = 5 * time.Second

	// BatchFlushThreshold flushes early once this many entries are pending.
	BatchFlushThreshold = 100

	// MaxRecentLimit caps Recent queries.
	MaxRecentLimit = 100
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > MaxRecentLimit {
		return MaxRecentLimit
	}
	return limit
}
