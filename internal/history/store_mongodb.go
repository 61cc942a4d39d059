package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CollectionName is the MongoDB collection holding upload history.
const CollectionName = "uploads"

var mongoPartialWriteFailures = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "docqa_history_partial_write_failures_total",
		Help: "Total number of partial write failures when inserting upload history into MongoDB",
	},
)

// MongoDBStore implements Store and Reader for MongoDB.
// Retention is enforced by a TTL index on timestamp.
type MongoDBStore struct {
	collection *mongo.Collection
}

// NewMongoDBStore creates the collection indexes if they don't exist.
func NewMongoDBStore(database *mongo.Database, retentionDays int) (*MongoDBStore, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}

	collection := database.Collection(CollectionName)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}}},
		{Keys: bson.D{{Key: "checksum", Value: 1}}},
	}
	// A field can carry only one index when that index is TTL.
	if retentionDays > 0 {
		ttlSeconds := int32(int64(retentionDays) * 24 * 60 * 60)
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "timestamp", Value: -1}},
			Options: options.Index().SetExpireAfterSeconds(ttlSeconds),
		})
	} else {
		indexes = append(indexes, mongo.IndexModel{
			Keys: bson.D{{Key: "timestamp", Value: -1}},
		})
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		slog.Warn("failed to create some MongoDB indexes for upload history", "error", err)
	}

	return &MongoDBStore{collection: collection}, nil
}

// WriteBatch inserts entries with an unordered InsertMany.
func (s *MongoDBStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]interface{}, len(entries))
	for i, e := range entries {
		docs[i] = e
	}

	_, err := s.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		if failed, ok := bulkWriteFailures(err); ok {
			mongoPartialWriteFailures.Inc()
			return fmt.Errorf("partial upload history insert: %d of %d entries failed: %w",
				failed, len(entries), err)
		}
		return fmt.Errorf("failed to insert upload history: %w", err)
	}
	return nil
}

// bulkWriteFailures reports the failed write count of a bulk write error.
// The driver returns the exception by value or by pointer depending on the path.
func bulkWriteFailures(err error) (int, bool) {
	var byValue mongo.BulkWriteException
	if errors.As(err, &byValue) {
		return len(byValue.WriteErrors), true
	}
	var byPtr *mongo.BulkWriteException
	if errors.As(err, &byPtr) && byPtr != nil {
		return len(byPtr.WriteErrors), true
	}
	return 0, false
}

// Recent implements Reader.
func (s *MongoDBStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(clampLimit(limit)))

	cursor, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query upload history: %w", err)
	}
	defer cursor.Close(ctx)

	result := make([]Entry, 0)
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("failed to decode upload history: %w", err)
	}
	for i := range result {
		result[i].Timestamp = result[i].Timestamp.UTC()
	}
	return result, nil
}

// Summary implements Reader.
func (s *MongoDBStore) Summary(ctx context.Context) (*Summary, error) {
	pipeline := bson.A{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "succeeded", Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$cond", Value: bson.A{bson.D{{Key: "$eq", Value: bson.A{"$outcome", OutcomeSuccess}}}, 1, 0}},
			}}}},
			{Key: "failed", Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$cond", Value: bson.A{bson.D{{Key: "$eq", Value: bson.A{"$outcome", OutcomeFailure}}}, 1, 0}},
			}}}},
			{Key: "total_bytes", Value: bson.D{{Key: "$sum", Value: "$size_bytes"}}},
		}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate upload history: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Total      int   `bson:"total"`
		Succeeded  int   `bson:"succeeded"`
		Failed     int   `bson:"failed"`
		TotalBytes int64 `bson:"total_bytes"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode upload history summary: %w", err)
	}
	if len(rows) == 0 {
		return &Summary{}, nil
	}
	r := rows[0]
	return &Summary{Total: r.Total, Succeeded: r.Succeeded, Failed: r.Failed, TotalBytes: r.TotalBytes}, nil
}

// Flush is a no-op; writes are synchronous.
func (s *MongoDBStore) Flush(_ context.Context) error {
	return nil
}

// Close is a no-op; the client is owned by the storage layer.
func (s *MongoDBStore) Close() error {
	return nil
}
