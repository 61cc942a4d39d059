//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/history"
	"docqa/tests/integration/dbassert"
)

func queryUploads(t *testing.T, f *TestServerFixture, dbType, sessionID string) []dbassert.UploadEntry {
	t.Helper()
	if dbType == "mongodb" {
		return dbassert.QueryUploadsBySessionMongo(t, f.MongoDb, sessionID)
	}
	return dbassert.QueryUploadsBySession(t, f.PgPool, sessionID)
}

func TestHistory_RecordsSuccessAndFailure(t *testing.T) {
	for _, dbType := range []string{"postgresql", "mongodb"} {
		t.Run(dbType, func(t *testing.T) {
			fixture := SetupTestServer(t, TestServerConfig{DBType: dbType})
			fixture.DocAPI.RejectAfterFirst.Store(true)

			fixture.SelectAndUpload(t, "q3.pdf", []byte("%PDF-1.4 first"))
			fixture.SelectAndUpload(t, "q4.pdf", []byte("%PDF-1.4 second"))
			sessionID := fixture.SessionID(t)
			require.Equal(t, 2, fixture.DocAPI.Calls())

			// CRITICAL: Flush before querying DB
			fixture.FlushAndClose(t)

			entries := queryUploads(t, fixture, dbType, sessionID)
			require.Len(t, entries, 2, "expected one entry per attempt")

			for _, e := range entries {
				dbassert.AssertUploadFieldCompleteness(t, e)
			}
			dbassert.AssertUploadMatches(t, dbassert.ExpectedUpload{
				Filename: "q3.pdf",
				Outcome:  history.OutcomeSuccess,
				DocID:    "doc-1",
			}, entries[0])
			assert.Equal(t, "success", entries[0].Result["status"])

			dbassert.AssertUploadMatches(t, dbassert.ExpectedUpload{
				Filename:   "q4.pdf",
				Outcome:    history.OutcomeFailure,
				ErrorType:  "server_rejection",
				Message:    "vector store unavailable",
				StatusCode: http.StatusInternalServerError,
			}, entries[1])
		})
	}
}

func TestHistory_ReaderRoundTrip(t *testing.T) {
	ctx := GetTestContext()

	stores := map[string]func(t *testing.T) (history.Store, history.Reader){
		"postgresql": func(t *testing.T) (history.Store, history.Reader) {
			s, err := history.NewPostgreSQLStore(GetPostgreSQLPool(), 0)
			require.NoError(t, err)
			return s, s
		},
		"mongodb": func(t *testing.T) (history.Store, history.Reader) {
			db := GetMongoDatabase().Client().Database("docqa_reader_" + uuid.NewString()[:8])
			t.Cleanup(func() { _ = db.Drop(context.Background()) })
			s, err := history.NewMongoDBStore(db, 0)
			require.NoError(t, err)
			return s, s
		},
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			store, reader := open(t)
			defer store.Close()

			before, err := reader.Summary(ctx)
			require.NoError(t, err)

			base := time.Now().UTC().Truncate(time.Millisecond)
			entries := make([]*history.Entry, 0, 3)
			for i := 0; i < 3; i++ {
				outcome := history.OutcomeSuccess
				if i == 2 {
					outcome = history.OutcomeFailure
				}
				entries = append(entries, &history.Entry{
					ID:        uuid.NewString(),
					SessionID: "reader-" + name,
					Timestamp: base.Add(time.Duration(i) * time.Second),
					Filename:  fmt.Sprintf("doc-%d.pdf", i),
					SizeBytes: 100,
					Checksum:  history.Checksum([]byte{byte(i)}),
					Outcome:   outcome,
				})
			}
			require.NoError(t, store.WriteBatch(ctx, entries))
			require.NoError(t, store.Flush(ctx))

			recent, err := reader.Recent(ctx, 2)
			require.NoError(t, err)
			require.Len(t, recent, 2)
			assert.Equal(t, "doc-2.pdf", recent[0].Filename)
			assert.Equal(t, "doc-1.pdf", recent[1].Filename)

			after, err := reader.Summary(ctx)
			require.NoError(t, err)
			assert.Equal(t, before.Total+3, after.Total)
			assert.Equal(t, before.Succeeded+2, after.Succeeded)
			assert.Equal(t, before.Failed+1, after.Failed)
			assert.Equal(t, before.TotalBytes+300, after.TotalBytes)
		})
	}
}
