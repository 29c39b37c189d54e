package billing

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"mindforu/internal/metrics"
	"mindforu/internal/models"
	"mindforu/internal/store"
)

// Test Plan for the Stripe webhook mirror:
// - requests with a bad or missing signature are rejected
// - customer events upsert the client and link the registered user
// - subscription events record status, plan and period end
// - invoice events upsert the invoice with its paid time
// - payment method events upsert, and detach marks the method detached
// - unknown events are acknowledged
// - a store failure returns 500 so Stripe retries

const testSecret = "whsec_test"

type fakeStore struct {
	users          map[string]*models.User
	linked         map[primitive.ObjectID]string
	clients        []models.Client
	subscriptions  []string
	invoices       []models.Invoice
	paymentMethods []models.PaymentMethod
	detached       []string
	err            error
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]*models.User{}, linked: map[primitive.ObjectID]string{}}
}

func (f *fakeStore) UserByEmail(_ context.Context, email string) (*models.User, error) {
	if u, ok := f.users[store.NormalizeEmail(email)]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) SetUserStripeCustomer(_ context.Context, id primitive.ObjectID, customerID string) error {
	f.linked[id] = customerID
	return nil
}

func (f *fakeStore) UpsertClient(_ context.Context, c *models.Client) error {
	if f.err != nil {
		return f.err
	}
	f.clients = append(f.clients, *c)
	return nil
}

func (f *fakeStore) UpdateClientSubscription(_ context.Context, customerID, subscriptionID, status, planID string, periodEnd *time.Time) error {
	end := ""
	if periodEnd != nil {
		end = periodEnd.Format(time.RFC3339)
	}
	f.subscriptions = append(f.subscriptions, strings.Join([]string{customerID, subscriptionID, status, planID, end}, "|"))
	return nil
}

func (f *fakeStore) UpsertInvoice(_ context.Context, inv *models.Invoice) error {
	f.invoices = append(f.invoices, *inv)
	return nil
}

func (f *fakeStore) UpsertPaymentMethod(_ context.Context, pm *models.PaymentMethod) error {
	f.paymentMethods = append(f.paymentMethods, *pm)
	return nil
}

func (f *fakeStore) MarkPaymentMethodDetached(_ context.Context, id string) error {
	f.detached = append(f.detached, id)
	return nil
}

func eventJSON(eventType, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","api_version":"2020-08-27","type":%q,"data":{"object":%s}}`, eventType, object))
}

func post(t *testing.T, h *Handler, payload []byte, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhook/stripe", h.ServeWebhook)

	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", strings.NewReader(string(payload)))
	if sign {
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testSecret})
		req.Header.Set("Stripe-Signature", signed.Header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestServeWebhook_Signature(t *testing.T) {
	h := NewHandler(testSecret, newFakeStore(), zap.NewNop(), metrics.New())
	payload := eventJSON("customer.created", `{"id":"cus_1","object":"customer"}`)

	assert.Equal(t, http.StatusBadRequest, post(t, h, payload, false).Code)

	unconfigured := NewHandler("", newFakeStore(), zap.NewNop(), nil)
	assert.Equal(t, http.StatusServiceUnavailable, post(t, unconfigured, payload, true).Code)
}

func TestServeWebhook_CustomerLinksUser(t *testing.T) {
	st := newFakeStore()
	user := &models.User{ID: primitive.NewObjectID(), Email: "ada@example.com"}
	st.users[user.Email] = user
	h := NewHandler(testSecret, st, zap.NewNop(), metrics.New())

	rec := post(t, h, eventJSON("customer.created",
		`{"id":"cus_1","object":"customer","email":"Ada@Example.com","name":"Ada"}`), true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, st.clients, 1)
	assert.Equal(t, "cus_1", st.clients[0].StripeCustomerID)
	require.NotNil(t, st.clients[0].UserID)
	assert.Equal(t, user.ID, *st.clients[0].UserID)
	assert.Equal(t, "cus_1", st.linked[user.ID])
}

func TestServeWebhook_Subscription(t *testing.T) {
	st := newFakeStore()
	h := NewHandler(testSecret, st, zap.NewNop(), nil)

	rec := post(t, h, eventJSON("customer.subscription.updated", `{
		"id":"sub_1","object":"subscription","customer":"cus_1","status":"active",
		"current_period_end":1717200000,
		"items":{"object":"list","data":[{"id":"si_1","object":"subscription_item","price":{"id":"price_pro","object":"price"}}]}
	}`), true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"cus_1|sub_1|active|price_pro|2024-06-01T00:00:00Z"}, st.subscriptions)
}

func TestServeWebhook_Invoice(t *testing.T) {
	st := newFakeStore()
	h := NewHandler(testSecret, st, zap.NewNop(), nil)

	rec := post(t, h, eventJSON("invoice.paid", `{
		"id":"in_1","object":"invoice","customer":"cus_1","number":"MF-0001","status":"paid",
		"amount_due":4900,"amount_paid":4900,"currency":"usd","hosted_invoice_url":"https://pay.example/in_1",
		"period_start":1714521600,"period_end":1717200000,
		"status_transitions":{"paid_at":1717200100}
	}`), true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, st.invoices, 1)
	inv := st.invoices[0]
	assert.Equal(t, "in_1", inv.StripeInvoiceID)
	assert.Equal(t, "cus_1", inv.StripeCustomerID)
	assert.Equal(t, "paid", inv.Status)
	assert.Equal(t, int64(4900), inv.AmountPaid)
	assert.Equal(t, "usd", inv.Currency)
	require.NotNil(t, inv.PaidAt)
	assert.Equal(t, int64(1717200100), inv.PaidAt.Unix())
}

func TestServeWebhook_PaymentMethods(t *testing.T) {
	st := newFakeStore()
	h := NewHandler(testSecret, st, zap.NewNop(), nil)

	pm := `{"id":"pm_1","object":"payment_method","type":"card","customer":"cus_1",
		"card":{"brand":"visa","last4":"4242","exp_month":12,"exp_year":2030}}`
	require.Equal(t, http.StatusOK, post(t, h, eventJSON("payment_method.attached", pm), true).Code)
	require.Equal(t, http.StatusOK, post(t, h, eventJSON("payment_method.detached", pm), true).Code)

	require.Len(t, st.paymentMethods, 1)
	assert.Equal(t, "visa", st.paymentMethods[0].Brand)
	assert.Equal(t, "4242", st.paymentMethods[0].Last4)
	assert.Equal(t, int64(2030), st.paymentMethods[0].ExpYear)
	assert.Equal(t, []string{"pm_1"}, st.detached)
}

func TestServeWebhook_UnknownAndFailures(t *testing.T) {
	st := newFakeStore()
	h := NewHandler(testSecret, st, zap.NewNop(), nil)

	rec := post(t, h, eventJSON("charge.refunded", `{"id":"ch_1","object":"charge"}`), true)
	assert.Equal(t, http.StatusOK, rec.Code)

	st.err = fmt.Errorf("mongo down")
	rec = post(t, h, eventJSON("customer.updated", `{"id":"cus_2","object":"customer"}`), true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
