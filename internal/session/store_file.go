package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileStore implements Store with one JSON file per session in a directory.
// This is suitable for single-instance deployments that restart often.
type FileStore struct {
	mu  sync.RWMutex
	dir string
	ttl time.Duration
}

// NewFileStore creates a file-based store rooted at dir.
func NewFileStore(dir string, ttl time.Duration) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("session directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileStore{dir: dir, ttl: ttl}, nil
}

func (s *FileStore) path(id string) (string, error) {
	// Only uuids reach the filesystem.
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("invalid session id %q", id)
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, id string) (*Snapshot, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if s.ttl > 0 && time.Since(snap.UpdatedAt) > s.ttl {
		return nil, nil
	}
	return &snap, nil
}

// Save implements Store.
func (s *FileStore) Save(_ context.Context, snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	p, err := s.path(snap.ID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Write atomically using temp file + rename
	tmpFile := p + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmpFile, p); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename session file: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, id string) error {
	p, err := s.path(id)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}
