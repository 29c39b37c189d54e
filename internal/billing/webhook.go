// Package billing mirrors Stripe customers, subscriptions, invoices and
// payment methods into MongoDB from Stripe webhook events.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"mindforu/internal/metrics"
	"mindforu/internal/models"
	"mindforu/internal/store"
)

// maxBodyBytes matches the limit Stripe recommends for webhook payloads
const maxBodyBytes = int64(65536)

// Store is the persistence the mirror writes to
type Store interface {
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	SetUserStripeCustomer(ctx context.Context, id primitive.ObjectID, customerID string) error
	UpsertClient(ctx context.Context, c *models.Client) error
	UpdateClientSubscription(ctx context.Context, customerID, subscriptionID, status, planID string, periodEnd *time.Time) error
	UpsertInvoice(ctx context.Context, inv *models.Invoice) error
	UpsertPaymentMethod(ctx context.Context, pm *models.PaymentMethod) error
	MarkPaymentMethodDetached(ctx context.Context, paymentMethodID string) error
}

// Handler verifies Stripe webhook requests and applies their events
type Handler struct {
	secret  string
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewHandler creates a webhook handler. m may be nil.
func NewHandler(secret string, s Store, logger *zap.Logger, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{secret: secret, store: s, logger: logger, metrics: m}
}

// ServeWebhook is the gin handler for POST /webhook/stripe
func (h *Handler) ServeWebhook(c *gin.Context) {
	if h.secret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "Stripe webhooks are not configured"})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Failed to read body"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, c.GetHeader("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.logger.Warn("⚠️  [STRIPE] rejected webhook", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid signature"})
		return
	}
	h.metrics.WebhookEvent("stripe", string(event.Type))

	if err := h.HandleEvent(c.Request.Context(), event); err != nil {
		h.logger.Error("❌ [STRIPE] failed to apply event",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Error(err))
		// a 5xx makes Stripe retry the delivery
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to process event"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Event received", "data": gin.H{"received": true}})
}

// HandleEvent applies one verified event. Unknown event types are ignored.
func (h *Handler) HandleEvent(ctx context.Context, event stripe.Event) error {
	if event.Data == nil {
		return errors.New("event has no data")
	}
	raw := event.Data.Raw

	switch event.Type {
	case "customer.created", "customer.updated":
		var cus stripe.Customer
		if err := json.Unmarshal(raw, &cus); err != nil {
			return fmt.Errorf("failed to decode customer: %w", err)
		}
		return h.customer(ctx, &cus)

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return fmt.Errorf("failed to decode subscription: %w", err)
		}
		return h.subscription(ctx, &sub)

	case "invoice.created", "invoice.finalized", "invoice.paid", "invoice.payment_succeeded",
		"invoice.payment_failed", "invoice.updated", "invoice.voided":
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return fmt.Errorf("failed to decode invoice: %w", err)
		}
		return h.store.UpsertInvoice(ctx, InvoiceFromStripe(&inv))

	case "payment_method.attached", "payment_method.updated", "payment_method.automatically_updated":
		var pm stripe.PaymentMethod
		if err := json.Unmarshal(raw, &pm); err != nil {
			return fmt.Errorf("failed to decode payment method: %w", err)
		}
		return h.store.UpsertPaymentMethod(ctx, PaymentMethodFromStripe(&pm))

	case "payment_method.detached":
		var pm stripe.PaymentMethod
		if err := json.Unmarshal(raw, &pm); err != nil {
			return fmt.Errorf("failed to decode payment method: %w", err)
		}
		err := h.store.MarkPaymentMethodDetached(ctx, pm.ID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	h.logger.Debug("[STRIPE] ignoring event", zap.String("type", string(event.Type)))
	return nil
}

// customer upserts the client and links it to the user registered with the same email
func (h *Handler) customer(ctx context.Context, cus *stripe.Customer) error {
	client := &models.Client{
		StripeCustomerID: cus.ID,
		Email:            cus.Email,
		Name:             cus.Name,
	}

	if cus.Email != "" {
		user, err := h.store.UserByEmail(ctx, cus.Email)
		switch {
		case err == nil:
			client.UserID = &user.ID
			if user.StripeCustomerID != cus.ID {
				if err := h.store.SetUserStripeCustomer(ctx, user.ID, cus.ID); err != nil {
					return fmt.Errorf("failed to link user: %w", err)
				}
			}
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("failed to look up user: %w", err)
		}
	}
	return h.store.UpsertClient(ctx, client)
}

func (h *Handler) subscription(ctx context.Context, sub *stripe.Subscription) error {
	if sub.Customer == nil {
		return errors.New("subscription has no customer")
	}
	var planID string
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.Price != nil {
				planID = item.Price.ID
				break
			}
		}
	}
	return h.store.UpdateClientSubscription(ctx, sub.Customer.ID, sub.ID, string(sub.Status), planID, unix(sub.CurrentPeriodEnd))
}

// InvoiceFromStripe converts a Stripe invoice into its mirror document
func InvoiceFromStripe(inv *stripe.Invoice) *models.Invoice {
	out := &models.Invoice{
		StripeInvoiceID:  inv.ID,
		Number:           inv.Number,
		Status:           string(inv.Status),
		AmountDue:        inv.AmountDue,
		AmountPaid:       inv.AmountPaid,
		Currency:         string(inv.Currency),
		HostedInvoiceURL: inv.HostedInvoiceURL,
		PeriodStart:      unix(inv.PeriodStart),
		PeriodEnd:        unix(inv.PeriodEnd),
	}
	if inv.Customer != nil {
		out.StripeCustomerID = inv.Customer.ID
	}
	if inv.StatusTransitions != nil {
		out.PaidAt = unix(inv.StatusTransitions.PaidAt)
	}
	return out
}

// PaymentMethodFromStripe converts a Stripe payment method into its mirror document
func PaymentMethodFromStripe(pm *stripe.PaymentMethod) *models.PaymentMethod {
	out := &models.PaymentMethod{StripePaymentMethodID: pm.ID}
	if pm.Customer != nil {
		out.StripeCustomerID = pm.Customer.ID
	}
	if pm.Card != nil {
		out.Brand = string(pm.Card.Brand)
		out.Last4 = pm.Card.Last4
		out.ExpMonth = pm.Card.ExpMonth
		out.ExpYear = pm.Card.ExpYear
	}
	return out
}

func unix(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
