package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mindforu/internal/models"
)

// upsertBy writes set onto the document matching key=value, creating it when
// missing. createdAt is only written on insert.
func (s *Store) upsertBy(ctx context.Context, collName, key, value string, set bson.M) error {
	now := time.Now().UTC()
	set["updatedAt"] = now
	_, err := s.db.Collection(collName).UpdateOne(ctx,
		bson.M{key: value},
		bson.M{
			"$set":         set,
			"$setOnInsert": bson.M{"createdAt": now},
		},
		options.Update().SetUpsert(true))
	return translate(err)
}

// UpsertClient mirrors a Stripe customer
func (s *Store) UpsertClient(ctx context.Context, c *models.Client) error {
	set := bson.M{
		"email": NormalizeEmail(c.Email),
		"name":  c.Name,
	}
	if c.UserID != nil {
		set["userId"] = *c.UserID
	}
	return s.upsertBy(ctx, ClientsCollection, "stripeCustomerId", c.StripeCustomerID, set)
}

// UpdateClientSubscription records the subscription state on a customer's
// client document, creating a bare one if the customer event has not arrived yet.
func (s *Store) UpdateClientSubscription(ctx context.Context, customerID, subscriptionID, status, planID string, periodEnd *time.Time) error {
	set := bson.M{
		"subscriptionId":     subscriptionID,
		"subscriptionStatus": status,
		"planId":             planID,
	}
	if periodEnd != nil {
		set["currentPeriodEnd"] = *periodEnd
	}
	return s.upsertBy(ctx, ClientsCollection, "stripeCustomerId", customerID, set)
}

// ClientByCustomerID looks a client up by Stripe customer ID
func (s *Store) ClientByCustomerID(ctx context.Context, customerID string) (*models.Client, error) {
	return findOne[models.Client](ctx, s.clients, bson.M{"stripeCustomerId": customerID})
}

// ClientByUser looks up the client linked to a user
func (s *Store) ClientByUser(ctx context.Context, userID primitive.ObjectID) (*models.Client, error) {
	return findOne[models.Client](ctx, s.clients, bson.M{"userId": userID})
}

// ListClients returns every client, newest first
func (s *Store) ListClients(ctx context.Context) ([]models.Client, error) {
	return findAll[models.Client](ctx, s.clients, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// UpsertInvoice mirrors a Stripe invoice
func (s *Store) UpsertInvoice(ctx context.Context, inv *models.Invoice) error {
	set := bson.M{
		"stripeCustomerId": inv.StripeCustomerID,
		"number":           inv.Number,
		"status":           inv.Status,
		"amountDue":        inv.AmountDue,
		"amountPaid":       inv.AmountPaid,
		"currency":         inv.Currency,
		"hostedInvoiceUrl": inv.HostedInvoiceURL,
	}
	if inv.PeriodStart != nil {
		set["periodStart"] = *inv.PeriodStart
	}
	if inv.PeriodEnd != nil {
		set["periodEnd"] = *inv.PeriodEnd
	}
	if inv.PaidAt != nil {
		set["paidAt"] = *inv.PaidAt
	}
	return s.upsertBy(ctx, InvoicesCollection, "stripeInvoiceId", inv.StripeInvoiceID, set)
}

// ListInvoices returns a customer's invoices, newest first
func (s *Store) ListInvoices(ctx context.Context, customerID string) ([]models.Invoice, error) {
	return findAll[models.Invoice](ctx, s.invoices,
		bson.M{"stripeCustomerId": customerID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// UpsertPaymentMethod mirrors a Stripe payment method and clears any detached flag
func (s *Store) UpsertPaymentMethod(ctx context.Context, pm *models.PaymentMethod) error {
	return s.upsertBy(ctx, PaymentMethodsCollection, "stripePaymentMethodId", pm.StripePaymentMethodID, bson.M{
		"stripeCustomerId": pm.StripeCustomerID,
		"brand":            pm.Brand,
		"last4":            pm.Last4,
		"expMonth":         pm.ExpMonth,
		"expYear":          pm.ExpYear,
		"detached":         false,
	})
}

// MarkPaymentMethodDetached flags a payment method as removed from its customer
func (s *Store) MarkPaymentMethodDetached(ctx context.Context, paymentMethodID string) error {
	result, err := s.paymentMethods.UpdateOne(ctx,
		bson.M{"stripePaymentMethodId": paymentMethodID},
		bson.M{"$set": bson.M{"detached": true, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPaymentMethods returns a customer's attached payment methods
func (s *Store) ListPaymentMethods(ctx context.Context, customerID string) ([]models.PaymentMethod, error) {
	return findAll[models.PaymentMethod](ctx, s.paymentMethods,
		bson.M{"stripeCustomerId": customerID, "detached": bson.M{"$ne": true}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}
