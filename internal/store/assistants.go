package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mindforu/internal/models"
)

// CreateAssistant inserts a new assistant
func (s *Store) CreateAssistant(ctx context.Context, a *models.Assistant) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	result, err := s.assistants.InsertOne(ctx, a)
	if err != nil {
		return translate(err)
	}
	a.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

// AssistantByID looks an assistant up by ID
func (s *Store) AssistantByID(ctx context.Context, id primitive.ObjectID) (*models.Assistant, error) {
	return findOne[models.Assistant](ctx, s.assistants, bson.M{"_id": id})
}

// AssistantByVapiID looks an assistant up by its Vapi assistant ID
func (s *Store) AssistantByVapiID(ctx context.Context, vapiID string) (*models.Assistant, error) {
	return findOne[models.Assistant](ctx, s.assistants, bson.M{"vapiAssistantId": vapiID})
}

// ListAssistants returns a user's assistants, or every assistant when userID is nil
func (s *Store) ListAssistants(ctx context.Context, userID *primitive.ObjectID) ([]models.Assistant, error) {
	filter := bson.M{}
	if userID != nil {
		filter["userId"] = *userID
	}
	return findAll[models.Assistant](ctx, s.assistants, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// UpdateAssistant saves the editable fields of an assistant
func (s *Store) UpdateAssistant(ctx context.Context, a *models.Assistant) error {
	a.UpdatedAt = time.Now().UTC()
	result, err := s.assistants.UpdateByID(ctx, a.ID, bson.M{"$set": bson.M{
		"name":         a.Name,
		"firstMessage": a.FirstMessage,
		"model":        a.Model,
		"voice":        a.Voice,
		"updatedAt":    a.UpdatedAt,
	}})
	if err != nil {
		return translate(err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAssistantStats stores freshly computed statistics. A nil progress
// leaves the sync state untouched.
func (s *Store) UpdateAssistantStats(ctx context.Context, id primitive.ObjectID, stats models.AssistantStats, progress *models.SyncProgress) error {
	result, err := s.assistants.UpdateByID(ctx, id, statsUpdate(stats, progress, time.Now().UTC()))
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func statsUpdate(stats models.AssistantStats, progress *models.SyncProgress, now time.Time) bson.M {
	set := bson.M{
		"stats":     stats,
		"updatedAt": now,
	}
	update := bson.M{"$set": set}
	if progress == nil {
		return update
	}
	if progress.LastSyncedAt != nil {
		set["lastSyncedAt"] = *progress.LastSyncedAt
	}
	if progress.Cursor != nil && progress.PendingAt != nil {
		set["syncCursor"] = *progress.Cursor
		set["syncPendingAt"] = *progress.PendingAt
	} else {
		update["$unset"] = bson.M{"syncCursor": "", "syncPendingAt": ""}
	}
	return update
}

// AssignAssistant moves an assistant to another user, together with its
// calls and the phone numbers routed to it.
func (s *Store) AssignAssistant(ctx context.Context, id, userID primitive.ObjectID) error {
	result, err := s.assistants.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"userId":    userID,
		"updatedAt": time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	if _, err := s.calls.UpdateMany(ctx, bson.M{"assistantId": id}, bson.M{"$set": bson.M{"userId": userID}}); err != nil {
		return err
	}
	if _, err := s.phoneNumbers.UpdateMany(ctx, bson.M{"assistantId": id}, bson.M{"$set": bson.M{
		"userId":    userID,
		"updatedAt": time.Now().UTC(),
	}}); err != nil {
		return err
	}
	return nil
}

// DeleteAssistant removes an assistant. Its calls are kept for analytics.
func (s *Store) DeleteAssistant(ctx context.Context, id primitive.ObjectID) error {
	result, err := s.assistants.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
