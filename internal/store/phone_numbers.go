package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mindforu/internal/models"
)

// CreatePhoneNumber inserts a new phone number
func (s *Store) CreatePhoneNumber(ctx context.Context, n *models.PhoneNumber) error {
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now

	result, err := s.phoneNumbers.InsertOne(ctx, n)
	if err != nil {
		return translate(err)
	}
	n.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

// PhoneNumberByID looks a phone number up by ID
func (s *Store) PhoneNumberByID(ctx context.Context, id primitive.ObjectID) (*models.PhoneNumber, error) {
	return findOne[models.PhoneNumber](ctx, s.phoneNumbers, bson.M{"_id": id})
}

// ListPhoneNumbers returns a user's numbers, or every number when userID is nil
func (s *Store) ListPhoneNumbers(ctx context.Context, userID *primitive.ObjectID) ([]models.PhoneNumber, error) {
	filter := bson.M{}
	if userID != nil {
		filter["userId"] = *userID
	}
	return findAll[models.PhoneNumber](ctx, s.phoneNumbers, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// UpdatePhoneNumber saves the name and assistant of a phone number.
// A nil AssistantID unassigns the number.
func (s *Store) UpdatePhoneNumber(ctx context.Context, n *models.PhoneNumber) error {
	n.UpdatedAt = time.Now().UTC()
	update := bson.M{
		"$set": bson.M{"name": n.Name, "updatedAt": n.UpdatedAt},
	}
	if n.AssistantID != nil {
		update["$set"].(bson.M)["assistantId"] = *n.AssistantID
	} else {
		update["$unset"] = bson.M{"assistantId": ""}
	}

	result, err := s.phoneNumbers.UpdateByID(ctx, n.ID, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePhoneNumber removes a phone number
func (s *Store) DeletePhoneNumber(ctx context.Context, id primitive.ObjectID) error {
	result, err := s.phoneNumbers.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UnassignAssistantNumbers clears the assistant from every number pointing at it
func (s *Store) UnassignAssistantNumbers(ctx context.Context, assistantID primitive.ObjectID) error {
	_, err := s.phoneNumbers.UpdateMany(ctx,
		bson.M{"assistantId": assistantID},
		bson.M{"$unset": bson.M{"assistantId": ""}, "$set": bson.M{"updatedAt": time.Now().UTC()}})
	return err
}
