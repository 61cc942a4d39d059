//go:build integration

// Package dbassert reads upload history rows straight from the databases for
// integration assertions.
package dbassert

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// UploadEntry mirrors history.Entry for test assertions.
type UploadEntry struct {
	ID         string         `bson:"_id"`
	RequestID  string         `bson:"request_id"`
	SessionID  string         `bson:"session_id"`
	Timestamp  time.Time      `bson:"timestamp"`
	Filename   string         `bson:"filename"`
	SizeBytes  int64          `bson:"size_bytes"`
	Checksum   string         `bson:"checksum"`
	Outcome    string         `bson:"outcome"`
	ErrorType  string         `bson:"error_type"`
	Message    string         `bson:"message"`
	StatusCode int            `bson:"status_code"`
	DocID      string         `bson:"doc_id"`
	Result     map[string]any `bson:"result"`
}

// ExpectedUpload contains expected values for upload assertions.
// Zero values are not checked, allowing partial matching.
type ExpectedUpload struct {
	Filename   string
	Outcome    string
	ErrorType  string
	Message    string
	StatusCode int
	DocID      string
}

// QueryUploadsBySession queries upload entries by session ID from PostgreSQL.
func QueryUploadsBySession(t *testing.T, pool *pgxpool.Pool, sessionID string) []UploadEntry {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := pool.Query(ctx, `
		SELECT id::text, request_id, session_id, timestamp, filename, size_bytes, checksum,
		       outcome, error_type, message, status_code, doc_id, result
		FROM uploads
		WHERE session_id = $1
		ORDER BY timestamp ASC
	`, sessionID)
	require.NoError(t, err, "failed to query uploads")
	defer rows.Close()

	var entries []UploadEntry
	for rows.Next() {
		var e UploadEntry
		var raw []byte
		err := rows.Scan(&e.ID, &e.RequestID, &e.SessionID, &e.Timestamp, &e.Filename, &e.SizeBytes,
			&e.Checksum, &e.Outcome, &e.ErrorType, &e.Message, &e.StatusCode, &e.DocID, &raw)
		require.NoError(t, err, "failed to scan upload row")
		if raw != nil {
			require.NoError(t, json.Unmarshal(raw, &e.Result), "failed to unmarshal result")
		}
		entries = append(entries, e)
	}
	require.NoError(t, rows.Err(), "error iterating upload rows")
	return entries
}

// QueryUploadsBySessionMongo queries upload entries by session ID from MongoDB.
func QueryUploadsBySessionMongo(t *testing.T, db *mongo.Database, sessionID string) []UploadEntry {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cursor, err := db.Collection("uploads").Find(ctx, bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	require.NoError(t, err, "failed to query uploads from MongoDB")
	defer cursor.Close(ctx)

	var entries []UploadEntry
	require.NoError(t, cursor.All(ctx, &entries), "failed to decode uploads")
	return entries
}

// AssertUploadFieldCompleteness verifies the fields every entry must carry.
func AssertUploadFieldCompleteness(t *testing.T, e UploadEntry) {
	t.Helper()

	assert.NotEmpty(t, e.ID, "upload ID should not be empty")
	assert.NotEmpty(t, e.RequestID, "upload request ID should not be empty")
	assert.NotEmpty(t, e.SessionID, "upload session ID should not be empty")
	assert.False(t, e.Timestamp.IsZero(), "upload timestamp should not be zero")
	assert.NotEmpty(t, e.Filename, "upload filename should not be empty")
	assert.NotEmpty(t, e.Checksum, "upload checksum should not be empty")
	assert.NotEmpty(t, e.Outcome, "upload outcome should not be empty")
}

// AssertUploadMatches checks the non-zero fields of want against got.
func AssertUploadMatches(t *testing.T, want ExpectedUpload, got UploadEntry) {
	t.Helper()

	if want.Filename != "" {
		assert.Equal(t, want.Filename, got.Filename, "filename mismatch")
	}
	if want.Outcome != "" {
		assert.Equal(t, want.Outcome, got.Outcome, "outcome mismatch")
	}
	if want.ErrorType != "" {
		assert.Equal(t, want.ErrorType, got.ErrorType, "error type mismatch")
	}
	if want.Message != "" {
		assert.Equal(t, want.Message, got.Message, "message mismatch")
	}
	if want.StatusCode != 0 {
		assert.Equal(t, want.StatusCode, got.StatusCode, "status code mismatch")
	}
	if want.DocID != "" {
		assert.Equal(t, want.DocID, got.DocID, "doc id mismatch")
	}
}
