package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an account that owns assistants, phone numbers and calls
type User struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email            string             `bson:"email" json:"email"`
	Name             string             `bson:"name" json:"name"`
	PasswordHash     string             `bson:"passwordHash" json:"-"`
	Role             string             `bson:"role" json:"role"`
	StripeCustomerID string             `bson:"stripeCustomerId,omitempty" json:"stripeCustomerId,omitempty"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// IsAdmin reports whether the user may use the admin tooling
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// AssistantStats holds the aggregate numbers recomputed after every call sync
type AssistantStats struct {
	TotalCalls      int64      `bson:"totalCalls" json:"totalCalls"`
	TotalDuration   float64    `bson:"totalDuration" json:"totalDuration"`     // seconds
	AverageDuration float64    `bson:"averageDuration" json:"averageDuration"` // seconds
	SuccessfulCalls int64      `bson:"successfulCalls" json:"successfulCalls"`
	SuccessRate     float64    `bson:"successRate" json:"successRate"` // percent
	TotalCost       float64    `bson:"totalCost" json:"totalCost"`
	LastCallAt      *time.Time `bson:"lastCallAt,omitempty" json:"lastCallAt,omitempty"`
}

// Assistant mirrors a Vapi assistant owned by a user
type Assistant struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID          primitive.ObjectID `bson:"userId" json:"userId"`
	VapiAssistantID string             `bson:"vapiAssistantId" json:"vapiAssistantId"`
	Name            string             `bson:"name" json:"name"`
	FirstMessage    string             `bson:"firstMessage,omitempty" json:"firstMessage,omitempty"`
	Model           string             `bson:"model,omitempty" json:"model,omitempty"`
	Voice           string             `bson:"voice,omitempty" json:"voice,omitempty"`
	Stats           AssistantStats     `bson:"stats" json:"stats"`
	LastSyncedAt    *time.Time         `bson:"lastSyncedAt,omitempty" json:"lastSyncedAt,omitempty"`
	// SyncCursor is set while calls older than it are still being paged in
	SyncCursor      *time.Time         `bson:"syncCursor,omitempty" json:"-"`
	SyncPendingAt   *time.Time         `bson:"syncPendingAt,omitempty" json:"-"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// SyncProgress is how far the call sync got for an assistant. Cursor and
// PendingAt are set together while a backfill is unfinished; PendingAt
// becomes LastSyncedAt once it completes.
type SyncProgress struct {
	LastSyncedAt *time.Time
	Cursor       *time.Time
	PendingAt    *time.Time
}

// PhoneNumber mirrors a Vapi phone number owned by a user
type PhoneNumber struct {
	ID                primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID            primitive.ObjectID  `bson:"userId" json:"userId"`
	AssistantID       *primitive.ObjectID `bson:"assistantId,omitempty" json:"assistantId,omitempty"`
	VapiPhoneNumberID string              `bson:"vapiPhoneNumberId" json:"vapiPhoneNumberId"`
	Number            string              `bson:"number" json:"number"`
	Name              string              `bson:"name,omitempty" json:"name,omitempty"`
	Provider          string              `bson:"provider" json:"provider"`
	CreatedAt         time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// Call is a call record copied from Vapi by the sync job or the webhook
type Call struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	VapiCallID        string             `bson:"vapiCallId" json:"vapiCallId"`
	AssistantID       primitive.ObjectID `bson:"assistantId" json:"assistantId"`
	VapiAssistantID   string             `bson:"vapiAssistantId" json:"vapiAssistantId"`
	UserID            primitive.ObjectID `bson:"userId" json:"userId"`
	PhoneNumberID     string             `bson:"phoneNumberId,omitempty" json:"phoneNumberId,omitempty"`
	CustomerNumber    string             `bson:"customerNumber,omitempty" json:"customerNumber,omitempty"`
	Type              string             `bson:"type,omitempty" json:"type,omitempty"`
	Status            string             `bson:"status" json:"status"`
	EndedReason       string             `bson:"endedReason,omitempty" json:"endedReason,omitempty"`
	StartedAt         *time.Time         `bson:"startedAt,omitempty" json:"startedAt,omitempty"`
	EndedAt           *time.Time         `bson:"endedAt,omitempty" json:"endedAt,omitempty"`
	Duration          float64            `bson:"duration" json:"duration"` // seconds
	Cost              float64            `bson:"cost" json:"cost"`
	Transcript        string             `bson:"transcript,omitempty" json:"transcript,omitempty"`
	Summary           string             `bson:"summary,omitempty" json:"summary,omitempty"`
	RecordingURL      string             `bson:"recordingUrl,omitempty" json:"recordingUrl,omitempty"`
	SuccessEvaluation string             `bson:"successEvaluation,omitempty" json:"successEvaluation,omitempty"`
	Successful        bool               `bson:"successful" json:"successful"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
	SyncedAt          time.Time          `bson:"syncedAt" json:"syncedAt"`
}

// Client mirrors a Stripe customer
type Client struct {
	ID                 primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID             *primitive.ObjectID `bson:"userId,omitempty" json:"userId,omitempty"`
	StripeCustomerID   string              `bson:"stripeCustomerId" json:"stripeCustomerId"`
	Email              string              `bson:"email" json:"email"`
	Name               string              `bson:"name,omitempty" json:"name,omitempty"`
	SubscriptionID     string              `bson:"subscriptionId,omitempty" json:"subscriptionId,omitempty"`
	SubscriptionStatus string              `bson:"subscriptionStatus,omitempty" json:"subscriptionStatus,omitempty"`
	PlanID             string              `bson:"planId,omitempty" json:"planId,omitempty"`
	CurrentPeriodEnd   *time.Time          `bson:"currentPeriodEnd,omitempty" json:"currentPeriodEnd,omitempty"`
	CreatedAt          time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// Invoice mirrors a Stripe invoice. Amounts are in the smallest currency unit.
type Invoice struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	StripeInvoiceID  string             `bson:"stripeInvoiceId" json:"stripeInvoiceId"`
	StripeCustomerID string             `bson:"stripeCustomerId" json:"stripeCustomerId"`
	Number           string             `bson:"number,omitempty" json:"number,omitempty"`
	Status           string             `bson:"status" json:"status"`
	AmountDue        int64              `bson:"amountDue" json:"amountDue"`
	AmountPaid       int64              `bson:"amountPaid" json:"amountPaid"`
	Currency         string             `bson:"currency" json:"currency"`
	HostedInvoiceURL string             `bson:"hostedInvoiceUrl,omitempty" json:"hostedInvoiceUrl,omitempty"`
	PeriodStart      *time.Time         `bson:"periodStart,omitempty" json:"periodStart,omitempty"`
	PeriodEnd        *time.Time         `bson:"periodEnd,omitempty" json:"periodEnd,omitempty"`
	PaidAt           *time.Time         `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// PaymentMethod mirrors a Stripe card payment method
type PaymentMethod struct {
	ID                    primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	StripePaymentMethodID string             `bson:"stripePaymentMethodId" json:"stripePaymentMethodId"`
	StripeCustomerID      string             `bson:"stripeCustomerId" json:"stripeCustomerId"`
	Brand                 string             `bson:"brand,omitempty" json:"brand,omitempty"`
	Last4                 string             `bson:"last4,omitempty" json:"last4,omitempty"`
	ExpMonth              int64              `bson:"expMonth,omitempty" json:"expMonth,omitempty"`
	ExpYear               int64              `bson:"expYear,omitempty" json:"expYear,omitempty"`
	Detached              bool               `bson:"detached" json:"detached"`
	CreatedAt             time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt             time.Time          `bson:"updatedAt" json:"updatedAt"`
}
