package handler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"mindforu/internal/callsync"
	"mindforu/internal/models"
	"mindforu/internal/store"
	"mindforu/internal/vapi"
)

// fakeStore keeps everything in maps. It also serves the analytics
// aggregations with empty results.
type fakeStore struct {
	mu sync.Mutex

	users          map[primitive.ObjectID]*models.User
	assistants     map[primitive.ObjectID]*models.Assistant
	numbers        map[primitive.ObjectID]*models.PhoneNumber
	calls          []models.Call
	clients        []models.Client
	invoices       []models.Invoice
	paymentMethods []models.PaymentMethod

	createAssistantErr error
	pingErr            error

	lastLimit, lastSkip int64
	lastFilter          store.CallFilter
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:      make(map[primitive.ObjectID]*models.User),
		assistants: make(map[primitive.ObjectID]*models.Assistant),
		numbers:    make(map[primitive.ObjectID]*models.PhoneNumber),
	}
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeStore) CreateUser(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.Email = store.NormalizeEmail(user.Email)
	for _, u := range f.users {
		if u.Email == user.Email {
			return fmt.Errorf("%w: email", store.ErrDuplicate)
		}
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	user.ID = primitive.NewObjectID()
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == store.NormalizeEmail(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) setRole(id primitive.ObjectID, role string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id].Role = role
}

func (f *fakeStore) deleteUser(id primitive.ObjectID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
}

func (f *fakeStore) ListUsers(ctx context.Context) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.User{}
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeStore) CreateAssistant(ctx context.Context, a *models.Assistant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createAssistantErr != nil {
		return f.createAssistantErr
	}
	for _, existing := range f.assistants {
		if existing.VapiAssistantID == a.VapiAssistantID {
			return fmt.Errorf("%w: vapiAssistantId", store.ErrDuplicate)
		}
	}
	a.ID = primitive.NewObjectID()
	cp := *a
	f.assistants[a.ID] = &cp
	return nil
}

func (f *fakeStore) AssistantByID(ctx context.Context, id primitive.ObjectID) (*models.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assistants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) AssistantByVapiID(ctx context.Context, vapiID string) (*models.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.assistants {
		if a.VapiAssistantID == vapiID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListAssistants(ctx context.Context, userID *primitive.ObjectID) ([]models.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Assistant{}
	for _, a := range f.assistants {
		if userID == nil || a.UserID == *userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateAssistant(ctx context.Context, a *models.Assistant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.assistants[a.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *a
	f.assistants[a.ID] = &cp
	return nil
}

func (f *fakeStore) AssignAssistant(ctx context.Context, id, userID primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assistants[id]
	if !ok {
		return store.ErrNotFound
	}
	a.UserID = userID
	for i := range f.calls {
		if f.calls[i].AssistantID == id {
			f.calls[i].UserID = userID
		}
	}
	return nil
}

func (f *fakeStore) DeleteAssistant(ctx context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.assistants[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.assistants, id)
	return nil
}

func (f *fakeStore) CreatePhoneNumber(ctx context.Context, n *models.PhoneNumber) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = primitive.NewObjectID()
	cp := *n
	f.numbers[n.ID] = &cp
	return nil
}

func (f *fakeStore) PhoneNumberByID(ctx context.Context, id primitive.ObjectID) (*models.PhoneNumber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.numbers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (f *fakeStore) ListPhoneNumbers(ctx context.Context, userID *primitive.ObjectID) ([]models.PhoneNumber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.PhoneNumber{}
	for _, n := range f.numbers {
		if userID == nil || n.UserID == *userID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdatePhoneNumber(ctx context.Context, n *models.PhoneNumber) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.numbers[n.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *n
	f.numbers[n.ID] = &cp
	return nil
}

func (f *fakeStore) DeletePhoneNumber(ctx context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.numbers[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.numbers, id)
	return nil
}

func (f *fakeStore) UnassignAssistantNumbers(ctx context.Context, assistantID primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.numbers {
		if n.AssistantID != nil && *n.AssistantID == assistantID {
			n.AssistantID = nil
		}
	}
	return nil
}

func (f *fakeStore) CallByID(ctx context.Context, id primitive.ObjectID) (*models.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.ID == id {
			cp := c
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListCalls(ctx context.Context, filter store.CallFilter, limit, skip int64) ([]models.Call, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter, f.lastLimit, f.lastSkip = filter, limit, skip

	var matched []models.Call
	for _, c := range f.calls {
		if filter.UserID != nil && c.UserID != *filter.UserID {
			continue
		}
		if filter.AssistantID != nil && c.AssistantID != *filter.AssistantID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	if skip >= total {
		return []models.Call{}, total, nil
	}
	end := min(skip+limit, total)
	return matched[skip:end], total, nil
}

func (f *fakeStore) ClientByUser(ctx context.Context, userID primitive.ObjectID) (*models.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clients {
		if c.UserID != nil && *c.UserID == userID {
			cp := c
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListClients(ctx context.Context) ([]models.Client, error) {
	return f.clients, nil
}

func (f *fakeStore) ListInvoices(ctx context.Context, customerID string) ([]models.Invoice, error) {
	out := []models.Invoice{}
	for _, inv := range f.invoices {
		if inv.StripeCustomerID == customerID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (f *fakeStore) ListPaymentMethods(ctx context.Context, customerID string) ([]models.PaymentMethod, error) {
	out := []models.PaymentMethod{}
	for _, pm := range f.paymentMethods {
		if pm.StripeCustomerID == customerID && !pm.Detached {
			out = append(out, pm)
		}
	}
	return out, nil
}

// analytics.Aggregator

func (f *fakeStore) CallTotals(ctx context.Context, filter store.CallFilter) (store.CallTotals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	var t store.CallTotals
	for _, c := range f.calls {
		if filter.UserID != nil && c.UserID != *filter.UserID {
			continue
		}
		if filter.AssistantID != nil && c.AssistantID != *filter.AssistantID {
			continue
		}
		t.Count++
		t.Duration += c.Duration
		t.Cost += c.Cost
		if c.Successful {
			t.Successful++
		}
	}
	return t, nil
}

func (f *fakeStore) CallsByDay(ctx context.Context, filter store.CallFilter, timezone string) ([]store.DayBucket, error) {
	return nil, nil
}

func (f *fakeStore) CallsByStatus(ctx context.Context, filter store.CallFilter) ([]store.CountBucket, error) {
	return nil, nil
}

func (f *fakeStore) CallsByEndedReason(ctx context.Context, filter store.CallFilter, limit int64) ([]store.CountBucket, error) {
	return nil, nil
}

func (f *fakeStore) TopAssistants(ctx context.Context, filter store.CallFilter, limit int64) ([]store.AssistantBucket, error) {
	return nil, nil
}

// fakeVapi records what the service pushed to Vapi
type fakeVapi struct {
	mu sync.Mutex

	assistants map[string]vapi.Assistant
	created    []vapi.AssistantRequest
	deleted    []string
	numbers    []vapi.PhoneNumberRequest
	calls      []vapi.Call

	err       error
	deleteErr error
	seq       int
}

func newFakeVapi() *fakeVapi {
	return &fakeVapi{assistants: make(map[string]vapi.Assistant)}
}

func (f *fakeVapi) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *fakeVapi) ListAssistants(ctx context.Context) ([]vapi.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]vapi.Assistant, 0, len(f.assistants))
	for _, a := range f.assistants {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeVapi) GetAssistant(ctx context.Context, id string) (*vapi.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assistants[id]
	if !ok {
		return nil, &vapi.APIError{Method: "GET", Path: "/assistant/" + id, StatusCode: 404}
	}
	return &a, nil
}

func (f *fakeVapi) CreateAssistant(ctx context.Context, req vapi.AssistantRequest) (*vapi.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, req)
	a := vapi.Assistant{ID: f.nextID("asst"), Name: req.Name, FirstMessage: req.FirstMessage, Model: req.Model, Voice: req.Voice}
	f.assistants[a.ID] = a
	return &a, nil
}

func (f *fakeVapi) UpdateAssistant(ctx context.Context, id string, req vapi.AssistantRequest) (*vapi.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	a := f.assistants[id]
	a.ID = id
	if req.Name != "" {
		a.Name = req.Name
	}
	if req.FirstMessage != "" {
		a.FirstMessage = req.FirstMessage
	}
	f.assistants[id] = a
	return &a, nil
}

func (f *fakeVapi) DeleteAssistant(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	delete(f.assistants, id)
	return nil
}

func (f *fakeVapi) CreatePhoneNumber(ctx context.Context, req vapi.PhoneNumberRequest) (*vapi.PhoneNumber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.numbers = append(f.numbers, req)
	number := req.Number
	if number == "" {
		number = "+1" + req.NumberDesiredAreaCode + "5550100"
	}
	return &vapi.PhoneNumber{ID: f.nextID("pn"), Number: number, Name: req.Name, Provider: req.Provider}, nil
}

func (f *fakeVapi) UpdatePhoneNumber(ctx context.Context, id string, req vapi.PhoneNumberRequest) (*vapi.PhoneNumber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.numbers = append(f.numbers, req)
	return &vapi.PhoneNumber{ID: id, Name: req.Name}, nil
}

func (f *fakeVapi) DeletePhoneNumber(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeVapi) ListCalls(ctx context.Context, params vapi.ListCallsParams) ([]vapi.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []vapi.Call
	for _, c := range f.calls {
		if params.AssistantID == "" || c.AssistantID == params.AssistantID {
			out = append(out, c)
		}
	}
	return out, nil
}

// fakeSyncer records ingested calls and per-assistant syncs
type fakeSyncer struct {
	mu       sync.Mutex
	ingested []*vapi.Call
	synced   []primitive.ObjectID
	known    map[string]bool
}

func (f *fakeSyncer) Ingest(ctx context.Context, call *vapi.Call) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if call.ID == "" {
		return false, callsync.ErrInvalidCall
	}
	if !f.known[call.AssistantID] {
		return false, fmt.Errorf("%w: %s", callsync.ErrUnknownAssistant, call.AssistantID)
	}
	f.ingested = append(f.ingested, call)
	return true, nil
}

func (f *fakeSyncer) SyncAssistantByID(ctx context.Context, id primitive.ObjectID) (callsync.AssistantResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, id)
	return callsync.AssistantResult{AssistantID: id.Hex(), Inserted: 2}, nil
}

type fakeTrigger struct {
	runs int
	err  error
}

func (f *fakeTrigger) TriggerNow(ctx context.Context) (*callsync.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.runs++
	return &callsync.Result{RunID: "run_1", StartedAt: time.Now(), Inserted: 3}, nil
}

func (f *fakeTrigger) Status() callsync.Status {
	return callsync.Status{Interval: time.Hour.String()}
}
