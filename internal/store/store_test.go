package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.uber.org/zap"

	"mindforu/internal/models"
)

// Test Plan for the Mongo store (mock deployment, no server needed):
// - InsertCallIfAbsent reports an insert when the upsert created a document
// - InsertCallIfAbsent reports no insert when the call already existed
// - InsertCallIfAbsent treats a duplicate key race as already stored
// - ExistingCallIDs returns the set of stored Vapi IDs
// - UserByEmail maps no documents onto ErrNotFound and decodes a hit
// - CallTotals returns zero totals for an empty aggregation
// - ListCalls returns the page together with the total count
// - SetUserRole returns the updated user and maps a miss onto ErrNotFound
// - AssignAssistant moves the assistant, its calls and its phone numbers
// - a truncated sync stores its cursor, a finished one clears it

func TestInsertCallIfAbsent(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("new call", func(mt *mtest.T) {
		s := New(mt.DB, zap.NewNop())
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 0},
			bson.E{Key: "upserted", Value: bson.A{bson.D{{Key: "index", Value: 0}, {Key: "_id", Value: id}}}},
		))

		call := &models.Call{VapiCallID: "call_1", Status: "ended"}
		inserted, err := s.InsertCallIfAbsent(context.Background(), call)
		require.NoError(mt, err)
		assert.True(mt, inserted)
		assert.Equal(mt, id, call.ID)
		assert.False(mt, call.SyncedAt.IsZero())
		assert.Equal(mt, call.SyncedAt, call.CreatedAt)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "update", evt.CommandName)
	})

	mt.Run("existing call", func(mt *mtest.T) {
		s := New(mt.DB, zap.NewNop())
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 0},
		))

		inserted, err := s.InsertCallIfAbsent(context.Background(), &models.Call{VapiCallID: "call_1"})
		require.NoError(mt, err)
		assert.False(mt, inserted)
	})

	mt.Run("duplicate key race", func(mt *mtest.T) {
		s := New(mt.DB, zap.NewNop())
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: test.calls index: vapiCallId_1",
		}))

		inserted, err := s.InsertCallIfAbsent(context.Background(), &models.Call{VapiCallID: "call_1"})
		require.NoError(mt, err)
		assert.False(mt, inserted)
	})
}

func TestExistingCallIDs(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("returns stored ids", func(mt *mtest.T) {
		s := New(mt.DB, zap.NewNop())
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.calls", mtest.FirstBatch,
			bson.D{{Key: "vapiCallId", Value: "call_1"}},
			bson.D{{Key: "vapiCallId", Value: "call_3"}},
		))

		seen, err := s.ExistingCallIDs(context.Background(), []string{"call_1", "call_2", "call_3"})
		require.NoError(mt, err)
		assert.Equal(mt, map[string]bool{"call_1": true, "call_3": true}, seen)
	})

	mt.Run("empty input skips the query", func(mt *mtest.T) {
		s := New(mt.DB, zap.NewNop())
		seen, err := s.ExistingCallIDs(context.Background(), nil)
		require.NoError(mt, err)
		assert.Empty(mt, seen)
		assert.Nil(mt, mt.GetStartedEvent())
	})
}

func TestUserByEmail(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("not found", func(mt *mtest.T) {
		s := New(mt.DB, zap.NewNop())
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.users", mtest.FirstBatch))

		_, err := s.UserByEmail(context.Background(), "nobody@example.com")
		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("found", func(mt *mtest.T) {
		s := New(mt.DB, zap.NewNop())
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.users", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id},
			{Key: "email", Value: "ada@example.com"},
			{Key: "role", Value: models.RoleAdmin},
		}))

		u, err := s.UserByEmail(context.Background(), "  Ada@Example.com ")
		require.NoError(mt, err)
		assert.Equal(mt, id, u.ID)
		assert.True(mt, u.IsAdmin())
	})
}

func TestCallTotals(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("no calls", func(mt *mtest.T) {
		s := New(mt.DB, zap.NewNop())
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.calls", mtest.FirstBatch))

		totals, err := s.CallTotals(context.Background(), CallFilter{})
		require.NoError(mt, err)
		assert.Equal(mt, CallTotals{}, totals)
	})

	mt.Run("sums", func(mt *mtest.T) {
		s := New(mt.DB, zap.NewNop())
		last := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.calls", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: nil},
			{Key: "count", Value: int64(4)},
			{Key: "duration", Value: 320.5},
			{Key: "successful", Value: int64(3)},
			{Key: "cost", Value: 1.25},
			{Key: "lastCallAt", Value: last},
		}))

		totals, err := s.CallTotals(context.Background(), CallFilter{})
		require.NoError(mt, err)
		assert.Equal(mt, int64(4), totals.Count)
		assert.InDelta(mt, 320.5, totals.Duration, 1e-9)
		assert.Equal(mt, int64(3), totals.Successful)
		require.NotNil(mt, totals.LastCallAt)
		assert.True(mt, last.Equal(*totals.LastCallAt))
	})
}

func TestListCalls(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("page and total", func(mt *mtest.T) {
		s := New(mt.DB, zap.NewNop())
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "test.calls", mtest.FirstBatch, bson.D{{Key: "n", Value: int32(7)}}),
			mtest.CreateCursorResponse(0, "test.calls", mtest.FirstBatch,
				bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "vapiCallId", Value: "call_7"}},
				bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "vapiCallId", Value: "call_6"}},
			),
		)

		userID := primitive.NewObjectID()
		calls, total, err := s.ListCalls(context.Background(), CallFilter{UserID: &userID}, 2, 0)
		require.NoError(mt, err)
		assert.Equal(mt, int64(7), total)
		require.Len(mt, calls, 2)
		assert.Equal(mt, "call_7", calls[0].VapiCallID)
	})
}

func TestSetUserRole(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("returns the updated user", func(mt *mtest.T) {
		s := New(mt.DB, zap.NewNop())
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
			{Key: "_id", Value: id},
			{Key: "email", Value: "ada@example.com"},
			{Key: "role", Value: models.RoleAdmin},
		}}))

		u, err := s.SetUserRole(context.Background(), "ADA@example.com", models.RoleAdmin)
		require.NoError(mt, err)
		assert.Equal(mt, id, u.ID)
		assert.True(mt, u.IsAdmin())
	})

	mt.Run("unknown email", func(mt *mtest.T) {
		s := New(mt.DB, zap.NewNop())
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}))

		_, err := s.SetUserRole(context.Background(), "nobody@example.com", models.RoleAdmin)
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}

func TestAssignAssistant(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("moves calls and numbers", func(mt *mtest.T) {
		s := New(mt.DB, zap.NewNop())
		updated := mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1})
		mt.AddMockResponses(updated, updated, updated)

		id, owner := primitive.NewObjectID(), primitive.NewObjectID()
		require.NoError(mt, s.AssignAssistant(context.Background(), id, owner))

		var targets []string
		for evt := mt.GetStartedEvent(); evt != nil; evt = mt.GetStartedEvent() {
			require.Equal(mt, "update", evt.CommandName)
			targets = append(targets, evt.Command.Lookup("update").StringValue())
			update := evt.Command.Lookup("updates").Array().Index(0).Value().Document().Lookup("u").Document()
			assert.Equal(mt, owner, update.Lookup("$set", "userId").ObjectID())
		}
		assert.Equal(mt, []string{AssistantsCollection, CallsCollection, PhoneNumbersCollection}, targets)
	})

	mt.Run("unknown assistant", func(mt *mtest.T) {
		s := New(mt.DB, zap.NewNop())
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		err := s.AssignAssistant(context.Background(), primitive.NewObjectID(), primitive.NewObjectID())
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}

func TestStatsUpdate(t *testing.T) {
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	cursor := now.Add(-3 * time.Hour)
	last := now.Add(-24 * time.Hour)
	stats := models.AssistantStats{TotalCalls: 3}

	t.Run("stats only", func(t *testing.T) {
		u := statsUpdate(stats, nil, now)
		assert.Equal(t, bson.M{"stats": stats, "updatedAt": now}, u["$set"])
		assert.NotContains(t, u, "$unset")
	})

	t.Run("truncated run keeps the window and stores the cursor", func(t *testing.T) {
		u := statsUpdate(stats, &models.SyncProgress{LastSyncedAt: &last, Cursor: &cursor, PendingAt: &now}, now)
		set := u["$set"].(bson.M)
		assert.Equal(t, last, set["lastSyncedAt"])
		assert.Equal(t, cursor, set["syncCursor"])
		assert.Equal(t, now, set["syncPendingAt"])
		assert.NotContains(t, u, "$unset")
	})

	t.Run("finished run clears the cursor", func(t *testing.T) {
		u := statsUpdate(stats, &models.SyncProgress{LastSyncedAt: &now}, now)
		set := u["$set"].(bson.M)
		assert.Equal(t, now, set["lastSyncedAt"])
		assert.NotContains(t, set, "syncCursor")
		assert.Equal(t, bson.M{"syncCursor": "", "syncPendingAt": ""}, u["$unset"])
	})
}
