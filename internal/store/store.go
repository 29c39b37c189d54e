package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Collection names follow the pluralized lowercase names the dashboard's
// existing documents already live in.
const (
	UsersCollection          = "users"
	AssistantsCollection     = "assistants"
	PhoneNumbersCollection   = "phonenumbers"
	CallsCollection          = "calls"
	ClientsCollection        = "clients"
	InvoicesCollection       = "invoices"
	PaymentMethodsCollection = "paymentmethods"
)

var (
	// ErrNotFound is returned when a lookup matches no document
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a unique index rejects a write
	ErrDuplicate = errors.New("store: duplicate")
)

// Store handles all database operations
type Store struct {
	client         *mongo.Client
	db             *mongo.Database
	users          *mongo.Collection
	assistants     *mongo.Collection
	phoneNumbers   *mongo.Collection
	calls          *mongo.Collection
	clients        *mongo.Collection
	invoices       *mongo.Collection
	paymentMethods *mongo.Collection
	logger         *zap.Logger
}

// Connect opens a MongoDB connection, pings it and returns a Store on dbName
func Connect(ctx context.Context, uri, dbName string, logger *zap.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetAppName("mindforu"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("✅ [MONGO] connected", zap.String("database", dbName))

	s := New(client.Database(dbName), logger)
	s.client = client
	return s, nil
}

// New creates a Store on an already connected database
func New(db *mongo.Database, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client:         db.Client(),
		db:             db,
		users:          db.Collection(UsersCollection),
		assistants:     db.Collection(AssistantsCollection),
		phoneNumbers:   db.Collection(PhoneNumbersCollection),
		calls:          db.Collection(CallsCollection),
		clients:        db.Collection(ClientsCollection),
		invoices:       db.Collection(InvoicesCollection),
		paymentMethods: db.Collection(PaymentMethodsCollection),
		logger:         logger,
	}
}

// Close disconnects the underlying client
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// EnsureIndexes creates the unique keys the sync and webhook upserts rely on
func (s *Store) EnsureIndexes(ctx context.Context) error {
	unique := func(field string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true),
		}
	}

	collIndexes := []struct {
		coll    *mongo.Collection
		indexes []mongo.IndexModel
	}{
		{s.users, []mongo.IndexModel{unique("email")}},
		{s.assistants, []mongo.IndexModel{
			unique("vapiAssistantId"),
			{Keys: bson.D{{Key: "userId", Value: 1}}},
		}},
		{s.phoneNumbers, []mongo.IndexModel{
			unique("vapiPhoneNumberId"),
			{Keys: bson.D{{Key: "userId", Value: 1}}},
		}},
		{s.calls, []mongo.IndexModel{
			unique("vapiCallId"),
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "assistantId", Value: 1}, {Key: "createdAt", Value: -1}}},
		}},
		{s.clients, []mongo.IndexModel{unique("stripeCustomerId")}},
		{s.invoices, []mongo.IndexModel{
			unique("stripeInvoiceId"),
			{Keys: bson.D{{Key: "stripeCustomerId", Value: 1}, {Key: "createdAt", Value: -1}}},
		}},
		{s.paymentMethods, []mongo.IndexModel{unique("stripePaymentMethodId")}},
	}

	for _, ci := range collIndexes {
		if _, err := ci.coll.Indexes().CreateMany(ctx, ci.indexes); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", ci.coll.Name(), err)
		}
	}
	return nil
}

// translate maps driver errors onto the store's sentinel errors
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter any) (*T, error) {
	var doc T
	if err := coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, translate(err)
	}
	return &doc, nil
}
