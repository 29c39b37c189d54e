package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mindforu/internal/models"
)

// CallFilter narrows call listings and aggregations. Zero fields are ignored.
type CallFilter struct {
	UserID      *primitive.ObjectID
	AssistantID *primitive.ObjectID
	Status      string
	From        *time.Time
	To          *time.Time
}

// Match builds the $match document for the filter
func (f CallFilter) Match() bson.M {
	m := bson.M{}
	if f.UserID != nil {
		m["userId"] = *f.UserID
	}
	if f.AssistantID != nil {
		m["assistantId"] = *f.AssistantID
	}
	if f.Status != "" {
		m["status"] = f.Status
	}
	if f.From != nil || f.To != nil {
		created := bson.M{}
		if f.From != nil {
			created["$gte"] = *f.From
		}
		if f.To != nil {
			created["$lt"] = *f.To
		}
		m["createdAt"] = created
	}
	return m
}

// InsertCallIfAbsent stores a call unless one with the same Vapi call ID
// exists. It reports whether a new document was written. The check and the
// insert happen in one upsert so concurrent syncs cannot duplicate a call.
func (s *Store) InsertCallIfAbsent(ctx context.Context, call *models.Call) (bool, error) {
	if call.SyncedAt.IsZero() {
		call.SyncedAt = time.Now().UTC()
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = call.SyncedAt
	}

	result, err := s.calls.UpdateOne(ctx,
		bson.M{"vapiCallId": call.VapiCallID},
		bson.M{"$setOnInsert": call},
		options.Update().SetUpsert(true))
	if err != nil {
		// a racing upsert on the unique index lost; the call is stored
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}

	if result.UpsertedCount == 0 {
		return false, nil
	}
	if id, ok := result.UpsertedID.(primitive.ObjectID); ok {
		call.ID = id
	}
	return true, nil
}

// ExistingCallIDs returns which of the given Vapi call IDs are already stored
func (s *Store) ExistingCallIDs(ctx context.Context, vapiIDs []string) (map[string]bool, error) {
	seen := make(map[string]bool, len(vapiIDs))
	if len(vapiIDs) == 0 {
		return seen, nil
	}

	cursor, err := s.calls.Find(ctx,
		bson.M{"vapiCallId": bson.M{"$in": vapiIDs}},
		options.Find().SetProjection(bson.M{"vapiCallId": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc struct {
			VapiCallID string `bson:"vapiCallId"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		seen[doc.VapiCallID] = true
	}
	return seen, cursor.Err()
}

// CallByID looks a call up by ID
func (s *Store) CallByID(ctx context.Context, id primitive.ObjectID) (*models.Call, error) {
	return findOne[models.Call](ctx, s.calls, bson.M{"_id": id})
}

// ListCalls returns one page of calls, newest first, and the total match count
func (s *Store) ListCalls(ctx context.Context, filter CallFilter, limit, skip int64) ([]models.Call, int64, error) {
	match := filter.Match()

	total, err := s.calls.CountDocuments(ctx, match)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(skip).
		SetProjection(bson.M{"transcript": 0})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	calls, err := findAll[models.Call](ctx, s.calls, match, opts)
	if err != nil {
		return nil, 0, err
	}
	return calls, total, nil
}
