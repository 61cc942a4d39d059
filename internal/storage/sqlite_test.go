package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SQLiteDefaultsAndPing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "nested", "docqa.db")

	store, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, TypeSQLite, store.Type())
	assert.NotNil(t, store.SQLiteDB())
	assert.Nil(t, store.PostgreSQLPool())
	assert.Nil(t, store.MongoDatabase())
	assert.NoError(t, store.Ping(context.Background()))
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(context.Background(), Config{Type: "cassandra"})
	assert.ErrorContains(t, err, "unknown storage type")
}

func TestNew_MissingURLs(t *testing.T) {
	_, err := New(context.Background(), Config{Type: TypePostgreSQL})
	assert.Error(t, err)
	_, err = New(context.Background(), Config{Type: TypeMongoDB})
	assert.Error(t, err)
}

func TestSQLiteConcurrentWriteSafety(t *testing.T) {
	store, err := NewSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	defer store.Close()

	db := store.SQLiteDB()
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS attempts (id TEXT PRIMARY KEY, data TEXT)`)
	require.NoError(t, err)

	const goroutines = 8
	const insertsPerGoroutine = 25

	var wg sync.WaitGroup
	errs := make(chan error, goroutines*insertsPerGoroutine)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < insertsPerGoroutine; j++ {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				_, err := db.ExecContext(ctx, `INSERT INTO attempts (id, data) VALUES (?, ?)`,
					fmt.Sprintf("%d-%d", id, j), "payload")
				cancel()
				if err != nil {
					errs <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent write error: %v", err)
	}

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM attempts").Scan(&count))
	assert.Equal(t, goroutines*insertsPerGoroutine, count)
}
