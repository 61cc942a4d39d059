// Package session keeps one upload widget and page shell per browser session.
// Snapshots are persisted to a local file, process memory, or Redis.
package session

import (
	"context"
	"time"

	"docqa/internal/page"
	"docqa/internal/upload"
)

// Snapshot is the persisted state of one page session.
type Snapshot struct {
	Version   int             `json:"version"`
	ID        string          `json:"id"`
	UpdatedAt time.Time       `json:"updated_at"`
	Widget    upload.Snapshot `json:"widget"`
	Shell     page.Snapshot   `json:"shell"`
}

// snapshotVersion is bumped when Snapshot changes incompatibly.
const snapshotVersion = 1

// Store defines the interface for session snapshot storage.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load retrieves a snapshot by session id.
	// Returns nil, nil if the session is unknown or expired.
	Load(ctx context.Context, id string) (*Snapshot, error)

	// Save stores a snapshot, refreshing its expiry.
	Save(ctx context.Context, snap *Snapshot) error

	// Delete removes a snapshot. Unknown ids are not an error.
	Delete(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}
