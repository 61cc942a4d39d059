package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/core"
)

type stubUploader struct {
	result *core.UploadResult
	err    error
}

func (s *stubUploader) Upload(context.Context, *core.SelectedFile) (*core.UploadResult, error) {
	return s.result, s.err
}

type brokenStore struct{ *MemoryStore }

func (brokenStore) Load(context.Context, string) (*Snapshot, error) {
	return nil, errors.New("store down")
}

func newTestManager(t *testing.T, up core.Uploader) *Manager {
	t.Helper()
	return NewManager(Config{Store: NewMemoryStore(time.Hour), Uploader: up, TTL: time.Hour})
}

func TestManager_GetCreatesAndReuses(t *testing.T) {
	m := newTestManager(t, &stubUploader{})
	ctx := context.Background()

	e, created, err := m.Get(ctx, "")
	require.NoError(t, err)
	assert.True(t, created)
	_, parseErr := uuid.Parse(e.ID)
	assert.NoError(t, parseErr)

	again, created, err := m.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, e, again)
	assert.Equal(t, 1, m.Len())
}

func TestManager_MalformedIDGetsFreshSession(t *testing.T) {
	m := newTestManager(t, &stubUploader{})

	e, created, err := m.Get(context.Background(), "../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, "../../etc/passwd", e.ID)
}

func TestManager_CallbacksFeedShell(t *testing.T) {
	res, err := core.NewUploadResult([]byte(`{"doc_id":"abc"}`))
	require.NoError(t, err)
	m := newTestManager(t, &stubUploader{result: res})
	ctx := context.Background()

	e, _, err := m.Get(ctx, "")
	require.NoError(t, err)
	e.Widget.Select(&core.SelectedFile{Name: "a.pdf", Data: []byte("%PDF")})
	require.True(t, e.Widget.Submit(ctx))

	assert.Equal(t, "abc", e.Shell.LastResult().DocID())
}

func TestManager_RestoreFromStoreAfterEviction(t *testing.T) {
	m := newTestManager(t, &stubUploader{err: core.NewServerRejection(500, nil)})
	ctx := context.Background()
	start := time.Now()
	m.now = func() time.Time { return start }

	e, _, err := m.Get(ctx, "")
	require.NoError(t, err)
	e.Widget.Select(&core.SelectedFile{Name: "a.pdf", Data: []byte("%PDF")})
	e.Widget.Submit(ctx)
	require.NoError(t, m.Persist(ctx, e))

	m.now = func() time.Time { return start.Add(2 * time.Hour) }
	assert.Equal(t, 1, m.Sweep())
	assert.Zero(t, m.Len())

	restored, created, err := m.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NotSame(t, e, restored)
	assert.Equal(t, "Upload failed", restored.Shell.LastError())
	assert.Equal(t, "a.pdf", restored.Widget.Selected().Name)
	assert.True(t, restored.Widget.Enabled())
}

func TestManager_BrokenStoreStartsOver(t *testing.T) {
	m := NewManager(Config{Store: &brokenStore{MemoryStore: NewMemoryStore(0)}, Uploader: &stubUploader{}})

	id := NewID()
	e, created, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, id, e.ID)
}

func TestManager_Delete(t *testing.T) {
	m := newTestManager(t, &stubUploader{})
	ctx := context.Background()

	e, _, err := m.Get(ctx, "")
	require.NoError(t, err)
	require.NoError(t, m.Persist(ctx, e))
	require.NoError(t, m.Delete(ctx, e.ID))

	assert.Zero(t, m.Len())
	_, created, err := m.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestManager_RunCleanupLoopStops(t *testing.T) {
	m := newTestManager(t, &stubUploader{})
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		m.RunCleanupLoop(stop, time.Millisecond)
		close(done)
	}()
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}
