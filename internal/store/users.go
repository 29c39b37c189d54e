package store

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mindforu/internal/models"
)

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser inserts a new user. The email is normalized and the role
// defaults to models.RoleUser.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.Email = NormalizeEmail(user.Email)
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	result, err := s.users.InsertOne(ctx, user)
	if err != nil {
		return translate(err)
	}
	user.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

// UserByEmail looks a user up by normalized email
func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return findOne[models.User](ctx, s.users, bson.M{"email": NormalizeEmail(email)})
}

// UserByID looks a user up by ID
func (s *Store) UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return findOne[models.User](ctx, s.users, bson.M{"_id": id})
}

// ListUsers returns every user, newest first
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	return findAll[models.User](ctx, s.users, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// SetUserStripeCustomer links a user to a Stripe customer
func (s *Store) SetUserStripeCustomer(ctx context.Context, id primitive.ObjectID, customerID string) error {
	result, err := s.users.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"stripeCustomerId": customerID,
		"updatedAt":        time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetUserRole changes a user's role, looked up by email
func (s *Store) SetUserRole(ctx context.Context, email, role string) (*models.User, error) {
	var user models.User
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"email": NormalizeEmail(email)},
		bson.M{"$set": bson.M{"role": role, "updatedAt": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}
