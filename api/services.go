package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"mindforu/internal/analytics"
	"mindforu/internal/auth"
	"mindforu/internal/callsync"
	"mindforu/internal/models"
	"mindforu/internal/store"
	"mindforu/internal/vapi"
)

// ErrInvalidInput marks request validation failures; wrap it with the detail
var ErrInvalidInput = errors.New("invalid input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Store is the persistence the API needs
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user *models.User) error
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)

	CreateAssistant(ctx context.Context, a *models.Assistant) error
	AssistantByID(ctx context.Context, id primitive.ObjectID) (*models.Assistant, error)
	AssistantByVapiID(ctx context.Context, vapiID string) (*models.Assistant, error)
	ListAssistants(ctx context.Context, userID *primitive.ObjectID) ([]models.Assistant, error)
	UpdateAssistant(ctx context.Context, a *models.Assistant) error
	AssignAssistant(ctx context.Context, id, userID primitive.ObjectID) error
	DeleteAssistant(ctx context.Context, id primitive.ObjectID) error

	CreatePhoneNumber(ctx context.Context, n *models.PhoneNumber) error
	PhoneNumberByID(ctx context.Context, id primitive.ObjectID) (*models.PhoneNumber, error)
	ListPhoneNumbers(ctx context.Context, userID *primitive.ObjectID) ([]models.PhoneNumber, error)
	UpdatePhoneNumber(ctx context.Context, n *models.PhoneNumber) error
	DeletePhoneNumber(ctx context.Context, id primitive.ObjectID) error
	UnassignAssistantNumbers(ctx context.Context, assistantID primitive.ObjectID) error

	CallByID(ctx context.Context, id primitive.ObjectID) (*models.Call, error)
	ListCalls(ctx context.Context, filter store.CallFilter, limit, skip int64) ([]models.Call, int64, error)

	ClientByUser(ctx context.Context, userID primitive.ObjectID) (*models.Client, error)
	ListClients(ctx context.Context) ([]models.Client, error)
	ListInvoices(ctx context.Context, customerID string) ([]models.Invoice, error)
	ListPaymentMethods(ctx context.Context, customerID string) ([]models.PaymentMethod, error)
}

// VapiAPI is the part of the Vapi client the API uses
type VapiAPI interface {
	ListAssistants(ctx context.Context) ([]vapi.Assistant, error)
	GetAssistant(ctx context.Context, id string) (*vapi.Assistant, error)
	CreateAssistant(ctx context.Context, req vapi.AssistantRequest) (*vapi.Assistant, error)
	UpdateAssistant(ctx context.Context, id string, req vapi.AssistantRequest) (*vapi.Assistant, error)
	DeleteAssistant(ctx context.Context, id string) error
	CreatePhoneNumber(ctx context.Context, req vapi.PhoneNumberRequest) (*vapi.PhoneNumber, error)
	UpdatePhoneNumber(ctx context.Context, id string, req vapi.PhoneNumberRequest) (*vapi.PhoneNumber, error)
	DeletePhoneNumber(ctx context.Context, id string) error
}

// CallSyncer stores calls on demand
type CallSyncer interface {
	Ingest(ctx context.Context, call *vapi.Call) (bool, error)
	SyncAssistantByID(ctx context.Context, id primitive.ObjectID) (callsync.AssistantResult, error)
}

// SyncTrigger runs the full sync on demand
type SyncTrigger interface {
	TriggerNow(ctx context.Context) (*callsync.Result, error)
	Status() callsync.Status
}

// DashboardService orchestrates the store, Vapi and the sync for the HTTP handlers
type DashboardService struct {
	config    *Config
	store     Store
	vapi      VapiAPI
	auth      *auth.Manager
	analytics *analytics.Service
	syncer    CallSyncer
	scheduler SyncTrigger
	logger    *zap.Logger
	now       func() time.Time
}

// NewDashboardService creates a new dashboard service instance
func NewDashboardService(config *Config, s Store, v VapiAPI, am *auth.Manager, an *analytics.Service,
	syncer CallSyncer, scheduler SyncTrigger, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		config:    config,
		store:     s,
		vapi:      v,
		auth:      am,
		analytics: an,
		syncer:    syncer,
		scheduler: scheduler,
		logger:    logger,
		now:       time.Now,
	}
}

// Session is an authenticated user with a fresh token
type Session struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

// Register creates an account and signs the user in
func (s *DashboardService) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		return nil, invalid("%v", err)
	}
	user := &models.User{
		Email:        req.Email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Role:         models.RoleUser,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("email already registered: %w", err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.logger.Info("👤 [AUTH] user registered", zap.String("user_id", user.ID.Hex()))
	return s.session(user)
}

// Login checks the credentials and signs the user in
func (s *DashboardService) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	user, err := s.store.UserByEmail(ctx, req.Email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if err := s.auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		return nil, err
	}
	return s.session(user)
}

func (s *DashboardService) session(user *models.User) (*Session, error) {
	token, expires, err := s.auth.IssueToken(user)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: token, ExpiresAt: expires}, nil
}

// Me returns the signed-in user
func (s *DashboardService) Me(ctx context.Context, viewer *auth.Claims) (*models.User, error) {
	id, err := viewer.ObjectID()
	if err != nil {
		return nil, auth.ErrInvalidToken
	}
	return s.store.UserByID(ctx, id)
}

// ---- assistants ----

// ListAssistants returns the viewer's assistants
func (s *DashboardService) ListAssistants(ctx context.Context, viewer *auth.Claims) ([]models.Assistant, error) {
	userID, err := viewer.ObjectID()
	if err != nil {
		return nil, auth.ErrInvalidToken
	}
	return s.store.ListAssistants(ctx, &userID)
}

// GetAssistant loads an assistant the viewer may see. Other users'
// assistants look like missing ones.
func (s *DashboardService) GetAssistant(ctx context.Context, viewer *auth.Claims, id string) (*models.Assistant, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	a, err := s.store.AssistantByID(ctx, oid)
	if err != nil {
		return nil, err
	}
	if !owns(viewer, a.UserID) {
		return nil, store.ErrNotFound
	}
	return a, nil
}

// CreateAssistant creates the assistant on Vapi and records it. If recording
// fails the Vapi assistant is deleted again.
func (s *DashboardService) CreateAssistant(ctx context.Context, viewer *auth.Claims, req AssistantRequest) (*models.Assistant, error) {
	userID, err := viewer.ObjectID()
	if err != nil {
		return nil, auth.ErrInvalidToken
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, invalid("name is required")
	}

	remote, err := s.vapi.CreateAssistant(ctx, req.vapiRequest())
	if err != nil {
		return nil, fmt.Errorf("failed to create assistant on Vapi: %w", err)
	}
	s.logger.Info("✅ [VAPI] assistant created", zap.String("vapi_assistant_id", remote.ID))

	a := assistantFromVapi(remote, userID)
	if err := s.store.CreateAssistant(ctx, a); err != nil {
		if delErr := s.vapi.DeleteAssistant(ctx, remote.ID); delErr != nil {
			s.logger.Error("❌ [VAPI] failed to roll back assistant",
				zap.String("vapi_assistant_id", remote.ID), zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to save assistant: %w", err)
	}
	return a, nil
}

// UpdateAssistant pushes the edit to Vapi, then saves what Vapi returned
func (s *DashboardService) UpdateAssistant(ctx context.Context, viewer *auth.Claims, id string, req AssistantRequest) (*models.Assistant, error) {
	a, err := s.GetAssistant(ctx, viewer, id)
	if err != nil {
		return nil, err
	}

	remote, err := s.vapi.UpdateAssistant(ctx, a.VapiAssistantID, req.vapiRequest())
	if err != nil {
		return nil, fmt.Errorf("failed to update assistant on Vapi: %w", err)
	}
	applyVapiAssistant(a, remote)
	if err := s.store.UpdateAssistant(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to save assistant: %w", err)
	}
	return a, nil
}

// DeleteAssistant removes the assistant from Vapi and the database. Its calls
// are kept for analytics and its numbers are unassigned.
func (s *DashboardService) DeleteAssistant(ctx context.Context, viewer *auth.Claims, id string) error {
	a, err := s.GetAssistant(ctx, viewer, id)
	if err != nil {
		return err
	}

	if err := s.vapi.DeleteAssistant(ctx, a.VapiAssistantID); err != nil && !vapi.IsNotFound(err) {
		return fmt.Errorf("failed to delete assistant on Vapi: %w", err)
	}
	if err := s.store.DeleteAssistant(ctx, a.ID); err != nil {
		return err
	}
	if err := s.store.UnassignAssistantNumbers(ctx, a.ID); err != nil {
		s.logger.Warn("⚠️  failed to unassign numbers of deleted assistant",
			zap.String("assistant_id", a.ID.Hex()), zap.Error(err))
	}
	return nil
}

func (r AssistantRequest) vapiRequest() vapi.AssistantRequest {
	req := vapi.AssistantRequest{
		Name:         strings.TrimSpace(r.Name),
		FirstMessage: r.FirstMessage,
		Model:        r.Model,
		Voice:        r.Voice,
	}
	if r.SystemPrompt != "" {
		model := vapi.AssistantModel{Provider: "openai", Model: "gpt-4o"}
		if req.Model != nil {
			model = *req.Model
		}
		model.Messages = []vapi.Message{{Role: "system", Content: r.SystemPrompt}}
		req.Model = &model
	}
	return req
}

func assistantFromVapi(remote *vapi.Assistant, userID primitive.ObjectID) *models.Assistant {
	a := &models.Assistant{UserID: userID, VapiAssistantID: remote.ID}
	applyVapiAssistant(a, remote)
	return a
}

func applyVapiAssistant(a *models.Assistant, remote *vapi.Assistant) {
	a.Name = remote.Name
	a.FirstMessage = remote.FirstMessage
	a.Model = remote.ModelName()
	a.Voice = remote.VoiceName()
}

// ---- phone numbers ----

// ListPhoneNumbers returns the viewer's phone numbers
func (s *DashboardService) ListPhoneNumbers(ctx context.Context, viewer *auth.Claims) ([]models.PhoneNumber, error) {
	userID, err := viewer.ObjectID()
	if err != nil {
		return nil, auth.ErrInvalidToken
	}
	return s.store.ListPhoneNumbers(ctx, &userID)
}

// CreatePhoneNumber buys or imports a number on Vapi and records it
func (s *DashboardService) CreatePhoneNumber(ctx context.Context, viewer *auth.Claims, req PhoneNumberRequest) (*models.PhoneNumber, error) {
	userID, err := viewer.ObjectID()
	if err != nil {
		return nil, auth.ErrInvalidToken
	}
	provider := req.Provider
	if provider == "" {
		provider = "vapi"
	}
	if provider != "vapi" && req.Number == "" {
		return nil, invalid("number is required for provider %s", provider)
	}

	vreq := vapi.PhoneNumberRequest{
		Provider:              provider,
		Number:                req.Number,
		Name:                  req.Name,
		NumberDesiredAreaCode: req.AreaCode,
	}
	var assistant *models.Assistant
	if req.AssistantID != nil && *req.AssistantID != "" {
		if assistant, err = s.GetAssistant(ctx, viewer, *req.AssistantID); err != nil {
			return nil, err
		}
		vreq.AssistantID = &assistant.VapiAssistantID
	}

	remote, err := s.vapi.CreatePhoneNumber(ctx, vreq)
	if err != nil {
		return nil, fmt.Errorf("failed to create phone number on Vapi: %w", err)
	}

	n := &models.PhoneNumber{
		UserID:            userID,
		VapiPhoneNumberID: remote.ID,
		Number:            remote.Number,
		Name:              remote.Name,
		Provider:          remote.Provider,
	}
	if n.Provider == "" {
		n.Provider = provider
	}
	if assistant != nil {
		n.AssistantID = &assistant.ID
	}
	if err := s.store.CreatePhoneNumber(ctx, n); err != nil {
		if delErr := s.vapi.DeletePhoneNumber(ctx, remote.ID); delErr != nil {
			s.logger.Error("❌ [VAPI] failed to roll back phone number",
				zap.String("vapi_phone_number_id", remote.ID), zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to save phone number: %w", err)
	}
	return n, nil
}

func (s *DashboardService) phoneNumber(ctx context.Context, viewer *auth.Claims, id string) (*models.PhoneNumber, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	n, err := s.store.PhoneNumberByID(ctx, oid)
	if err != nil {
		return nil, err
	}
	if !owns(viewer, n.UserID) {
		return nil, store.ErrNotFound
	}
	return n, nil
}

// UpdatePhoneNumber renames a number or points it at another assistant
func (s *DashboardService) UpdatePhoneNumber(ctx context.Context, viewer *auth.Claims, id string, req PhoneNumberRequest) (*models.PhoneNumber, error) {
	n, err := s.phoneNumber(ctx, viewer, id)
	if err != nil {
		return nil, err
	}

	vreq := vapi.PhoneNumberRequest{Name: req.Name}
	if req.AssistantID != nil {
		if *req.AssistantID == "" {
			empty := ""
			vreq.AssistantID = &empty
			n.AssistantID = nil
		} else {
			a, err := s.GetAssistant(ctx, viewer, *req.AssistantID)
			if err != nil {
				return nil, err
			}
			vreq.AssistantID = &a.VapiAssistantID
			n.AssistantID = &a.ID
		}
	}

	if _, err := s.vapi.UpdatePhoneNumber(ctx, n.VapiPhoneNumberID, vreq); err != nil {
		return nil, fmt.Errorf("failed to update phone number on Vapi: %w", err)
	}
	if req.Name != "" {
		n.Name = req.Name
	}
	if err := s.store.UpdatePhoneNumber(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to save phone number: %w", err)
	}
	return n, nil
}

// DeletePhoneNumber releases the number on Vapi and removes it
func (s *DashboardService) DeletePhoneNumber(ctx context.Context, viewer *auth.Claims, id string) error {
	n, err := s.phoneNumber(ctx, viewer, id)
	if err != nil {
		return err
	}
	if err := s.vapi.DeletePhoneNumber(ctx, n.VapiPhoneNumberID); err != nil && !vapi.IsNotFound(err) {
		return fmt.Errorf("failed to delete phone number on Vapi: %w", err)
	}
	return s.store.DeletePhoneNumber(ctx, n.ID)
}

// ---- calls & analytics ----

// CallQuery filters the call listing
type CallQuery struct {
	AssistantID string
	Status      string
	Range       string
	Page        int64
	Limit       int64
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListCalls returns a page of the viewer's calls, newest first
func (s *DashboardService) ListCalls(ctx context.Context, viewer *auth.Claims, q CallQuery) (*Page, error) {
	filter, err := s.callFilter(ctx, viewer, q.AssistantID)
	if err != nil {
		return nil, err
	}
	filter.Status = q.Status
	if q.Range != "" {
		r, err := analytics.ParseRange(q.Range, s.now())
		if err != nil {
			return nil, invalid("%v", err)
		}
		filter = r.Apply(filter)
	}

	if q.Limit <= 0 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	if q.Page <= 0 {
		q.Page = 1
	}

	calls, total, err := s.store.ListCalls(ctx, filter, q.Limit, (q.Page-1)*q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	return &Page{Items: calls, Total: total, Page: q.Page, Limit: q.Limit}, nil
}

// GetCall returns one of the viewer's calls, with its transcript
func (s *DashboardService) GetCall(ctx context.Context, viewer *auth.Claims, id string) (*models.Call, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	call, err := s.store.CallByID(ctx, oid)
	if err != nil {
		return nil, err
	}
	if !owns(viewer, call.UserID) {
		return nil, store.ErrNotFound
	}
	return call, nil
}

// callFilter scopes calls to the viewer, and to one of their assistants when given
func (s *DashboardService) callFilter(ctx context.Context, viewer *auth.Claims, assistantID string) (store.CallFilter, error) {
	var filter store.CallFilter
	userID, err := viewer.ObjectID()
	if err != nil {
		return filter, auth.ErrInvalidToken
	}
	filter.UserID = &userID
	if assistantID != "" {
		a, err := s.GetAssistant(ctx, viewer, assistantID)
		if err != nil {
			return filter, err
		}
		filter.AssistantID = &a.ID
		// admins may look at assistants they do not own
		filter.UserID = nil
	}
	return filter, nil
}

// AnalyticsQuery selects the dashboard window
type AnalyticsQuery struct {
	Range    string
	From     string
	To       string
	Timezone string
	// UserID narrows the admin analytics to one user
	UserID string
}

// Dashboard computes the viewer's dashboard analytics
func (s *DashboardService) Dashboard(ctx context.Context, viewer *auth.Claims, q AnalyticsQuery) (*analytics.Dashboard, error) {
	userID, err := viewer.ObjectID()
	if err != nil {
		return nil, auth.ErrInvalidToken
	}
	return s.dashboard(ctx, store.CallFilter{UserID: &userID}, q)
}

// AdminDashboard computes analytics over every user, or one user when asked
func (s *DashboardService) AdminDashboard(ctx context.Context, q AnalyticsQuery) (*analytics.Dashboard, error) {
	var filter store.CallFilter
	if q.UserID != "" {
		id, err := parseID(q.UserID)
		if err != nil {
			return nil, err
		}
		filter.UserID = &id
	}
	return s.dashboard(ctx, filter, q)
}

func (s *DashboardService) dashboard(ctx context.Context, filter store.CallFilter, q AnalyticsQuery) (*analytics.Dashboard, error) {
	loc := time.UTC
	if q.Timezone != "" {
		l, err := time.LoadLocation(q.Timezone)
		if err != nil {
			return nil, invalid("unknown timezone %q", q.Timezone)
		}
		loc = l
	}

	var (
		r   analytics.Range
		err error
	)
	if q.From != "" || q.To != "" {
		r, err = analytics.ExplicitRange(q.From, q.To, loc)
	} else {
		r, err = analytics.ParseRange(q.Range, s.now())
	}
	if err != nil {
		return nil, invalid("%v", err)
	}

	return s.analytics.Dashboard(ctx, analytics.DashboardQuery{Filter: filter, Range: r, Location: loc})
}

// CallStats returns statistics for the viewer's calls or one assistant's
// calls. Live statistics come straight from Vapi and need an assistant.
func (s *DashboardService) CallStats(ctx context.Context, viewer *auth.Claims, assistantID string, live bool) (*analytics.CallStats, error) {
	filter, err := s.callFilter(ctx, viewer, assistantID)
	if err != nil {
		return nil, err
	}
	q := analytics.CallStatsQuery{Filter: filter, Live: live}
	if live {
		if filter.AssistantID == nil {
			return nil, invalid("assistantId is required for live stats")
		}
		a, err := s.GetAssistant(ctx, viewer, assistantID)
		if err != nil {
			return nil, err
		}
		q.VapiAssistantID = a.VapiAssistantID
	}
	return s.analytics.CallStats(ctx, q)
}

// ---- billing ----

func (s *DashboardService) customerID(ctx context.Context, viewer *auth.Claims) (string, error) {
	userID, err := viewer.ObjectID()
	if err != nil {
		return "", auth.ErrInvalidToken
	}
	client, err := s.store.ClientByUser(ctx, userID)
	if err == nil {
		return client.StripeCustomerID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.StripeCustomerID, nil
}

// Invoices lists the viewer's mirrored invoices
func (s *DashboardService) Invoices(ctx context.Context, viewer *auth.Claims) ([]models.Invoice, error) {
	customerID, err := s.customerID(ctx, viewer)
	if err != nil {
		return nil, err
	}
	if customerID == "" {
		return []models.Invoice{}, nil
	}
	return s.store.ListInvoices(ctx, customerID)
}

// PaymentMethods lists the viewer's attached payment methods
func (s *DashboardService) PaymentMethods(ctx context.Context, viewer *auth.Claims) ([]models.PaymentMethod, error) {
	customerID, err := s.customerID(ctx, viewer)
	if err != nil {
		return nil, err
	}
	if customerID == "" {
		return []models.PaymentMethod{}, nil
	}
	return s.store.ListPaymentMethods(ctx, customerID)
}

// ---- admin ----

// ListUsers returns every user
func (s *DashboardService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.store.ListUsers(ctx)
}

// ListAllAssistants returns every assistant
func (s *DashboardService) ListAllAssistants(ctx context.Context) ([]models.Assistant, error) {
	return s.store.ListAssistants(ctx, nil)
}

// ListClients returns every billing client
func (s *DashboardService) ListClients(ctx context.Context) ([]models.Client, error) {
	return s.store.ListClients(ctx)
}

// ImportResult reports what an assistant import did
type ImportResult struct {
	Imported []models.Assistant `json:"imported"`
	Skipped  []string           `json:"skipped"`
}

// ImportAssistants records existing Vapi assistants under a user. Assistants
// already recorded are skipped.
func (s *DashboardService) ImportAssistants(ctx context.Context, req ImportAssistantsRequest) (*ImportResult, error) {
	userID, err := parseID(req.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.UserByID(ctx, userID); err != nil {
		return nil, err
	}

	var remotes []vapi.Assistant
	if len(req.VapiAssistantIDs) == 0 {
		if remotes, err = s.vapi.ListAssistants(ctx); err != nil {
			return nil, fmt.Errorf("failed to list Vapi assistants: %w", err)
		}
	} else {
		for _, id := range req.VapiAssistantIDs {
			remote, err := s.vapi.GetAssistant(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch Vapi assistant %s: %w", id, err)
			}
			remotes = append(remotes, *remote)
		}
	}

	result := &ImportResult{Imported: []models.Assistant{}, Skipped: []string{}}
	for i := range remotes {
		remote := &remotes[i]
		if _, err := s.store.AssistantByVapiID(ctx, remote.ID); err == nil {
			result.Skipped = append(result.Skipped, remote.ID)
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}

		a := assistantFromVapi(remote, userID)
		if err := s.store.CreateAssistant(ctx, a); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				result.Skipped = append(result.Skipped, remote.ID)
				continue
			}
			return nil, fmt.Errorf("failed to save assistant %s: %w", remote.ID, err)
		}
		result.Imported = append(result.Imported, *a)
	}

	s.logger.Info("📥 [ADMIN] assistants imported",
		zap.String("user_id", userID.Hex()),
		zap.Int("imported", len(result.Imported)),
		zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

// AssignAssistant moves an assistant and its calls to another user
func (s *DashboardService) AssignAssistant(ctx context.Context, id string, req AssignAssistantRequest) (*models.Assistant, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	userID, err := parseID(req.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.UserByID(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.store.AssignAssistant(ctx, oid, userID); err != nil {
		return nil, err
	}
	return s.store.AssistantByID(ctx, oid)
}

// Sync runs the full sync, or syncs one assistant when assistantID is set
func (s *DashboardService) Sync(ctx context.Context, assistantID string) (any, error) {
	if assistantID == "" {
		return s.scheduler.TriggerNow(ctx)
	}
	oid, err := parseID(assistantID)
	if err != nil {
		return nil, err
	}
	res, err := s.syncer.SyncAssistantByID(ctx, oid)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SyncStatus reports the scheduler state
func (s *DashboardService) SyncStatus() callsync.Status {
	return s.scheduler.Status()
}

// ---- webhooks ----

// ProcessVapiMessage handles a server message posted by Vapi. Only
// end-of-call reports are stored; everything else is acknowledged.
func (s *DashboardService) ProcessVapiMessage(ctx context.Context, msg *vapi.ServerMessage) (bool, error) {
	if msg.Message.Type != vapi.EndOfCallReport {
		s.logger.Debug("[WEBHOOK] ignoring Vapi message", zap.String("type", msg.Message.Type))
		return false, nil
	}
	call := msg.ReportedCall()
	if call == nil {
		return false, invalid("end-of-call-report without call")
	}
	return s.syncer.Ingest(ctx, call)
}

// ---- helpers ----

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, invalid("malformed id %q", id)
	}
	return oid, nil
}

// owns reports whether the viewer may act on a document owned by ownerID
func owns(viewer *auth.Claims, ownerID primitive.ObjectID) bool {
	if viewer.IsAdmin() {
		return true
	}
	return viewer.UserID == ownerID.Hex()
}
