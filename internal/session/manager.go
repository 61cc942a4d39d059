package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"docqa/internal/core"
	"docqa/internal/page"
	"docqa/internal/upload"
)

// CookieName is the cookie carrying the session id.
const CookieName = "docqa_session"

// CleanupInterval is how often idle live sessions are evicted.
const CleanupInterval = 5 * time.Minute

// Entry is one live page session: a widget whose callbacks feed a shell.
type Entry struct {
	ID     string
	Widget *upload.Widget
	Shell  *page.Shell

	mu       sync.Mutex
	lastSeen time.Time
}

func (e *Entry) touch(now time.Time) {
	e.mu.Lock()
	e.lastSeen = now
	e.mu.Unlock()
}

func (e *Entry) idleSince(now time.Time) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return now.Sub(e.lastSeen)
}

// Config configures a Manager.
type Config struct {
	Store         Store
	Uploader      core.Uploader
	Chat          core.ChatSurface
	WidgetOptions []upload.Option

	// TTL is how long an idle session stays live in memory.
	TTL time.Duration
}

// Manager tracks live sessions and restores evicted ones from its Store.
type Manager struct {
	cfg Config
	now func() time.Time

	mu   sync.Mutex
	live map[string]*Entry
}

// NewManager creates a Manager. A nil store keeps sessions in memory only.
func NewManager(cfg Config) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore(cfg.TTL)
	}
	return &Manager{
		cfg:  cfg,
		now:  time.Now,
		live: make(map[string]*Entry),
	}
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.New().String()
}

// Get returns the session for id, restoring it from the store or creating it.
// An empty or malformed id yields a new session; created reports that case
// so the caller can issue a cookie.
func (m *Manager) Get(ctx context.Context, id string) (entry *Entry, created bool, err error) {
	if _, parseErr := uuid.Parse(id); parseErr != nil {
		id = ""
	}

	if id != "" {
		m.mu.Lock()
		e, ok := m.live[id]
		m.mu.Unlock()
		if ok {
			e.touch(m.now())
			return e, false, nil
		}
	}

	var snap *Snapshot
	if id != "" {
		snap, err = m.cfg.Store.Load(ctx, id)
		if err != nil {
			// A broken store must not lock users out; start over.
			slog.Warn("failed to load session", "session_id", id, "error", err)
			snap = nil
		}
	}

	created = snap == nil
	if id == "" {
		id = NewID()
	}
	fresh := m.newEntry(id, snap)

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have restored the same session meanwhile.
	if e, ok := m.live[id]; ok {
		e.touch(m.now())
		return e, false, nil
	}
	m.live[id] = fresh
	return fresh, created, nil
}

func (m *Manager) newEntry(id string, snap *Snapshot) *Entry {
	shell := page.NewShell(m.cfg.Chat)
	widget := upload.NewWidget(m.cfg.Uploader, shell.Callbacks(), m.cfg.WidgetOptions...)
	if snap != nil {
		widget.Restore(snap.Widget)
		shell.Restore(snap.Shell)
	}
	return &Entry{ID: id, Widget: widget, Shell: shell, lastSeen: m.now()}
}

// Persist saves the entry's current state to the store.
func (m *Manager) Persist(ctx context.Context, e *Entry) error {
	if e == nil {
		return nil
	}
	now := m.now()
	e.touch(now)
	return m.cfg.Store.Save(ctx, &Snapshot{
		Version:   snapshotVersion,
		ID:        e.ID,
		UpdatedAt: now.UTC(),
		Widget:    e.Widget.Snapshot(),
		Shell:     e.Shell.Snapshot(),
	})
}

// Delete drops the session from memory and the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.live, id)
	m.mu.Unlock()
	return m.cfg.Store.Delete(ctx, id)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Sweep evicts live sessions idle longer than the TTL. Sessions with an
// upload in flight are kept. Returns the number evicted.
func (m *Manager) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, e := range m.live {
		if e.Widget.Submitting() {
			continue
		}
		if e.idleSince(now) > m.cfg.TTL {
			delete(m.live, id)
			evicted++
		}
	}
	if ms, ok := m.cfg.Store.(*MemoryStore); ok {
		ms.Sweep()
	}
	return evicted
}

// RunCleanupLoop calls Sweep every interval until stop is closed.
func (m *Manager) RunCleanupLoop(stop <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		interval = CleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				slog.Debug("evicted idle sessions", "count", n)
			}
		case <-stop:
			return
		}
	}
}

// Close releases the store.
func (m *Manager) Close() error {
	return m.cfg.Store.Close()
}
