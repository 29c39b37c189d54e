// Package callsync copies call logs from Vapi into MongoDB and keeps the
// per-assistant statistics current.
package callsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mindforu/internal/analytics"
	"mindforu/internal/metrics"
	"mindforu/internal/models"
	"mindforu/internal/store"
	"mindforu/internal/vapi"
)

var (
	// ErrUnknownAssistant is returned by Ingest for calls of assistants that are not imported
	ErrUnknownAssistant = errors.New("assistant is not registered")
	// ErrInvalidCall is returned by Ingest for reports that can never be stored
	ErrInvalidCall = errors.New("call has no id")
)

// Store is the persistence the syncer needs
type Store interface {
	ListAssistants(ctx context.Context, userID *primitive.ObjectID) ([]models.Assistant, error)
	AssistantByID(ctx context.Context, id primitive.ObjectID) (*models.Assistant, error)
	AssistantByVapiID(ctx context.Context, vapiID string) (*models.Assistant, error)
	ExistingCallIDs(ctx context.Context, vapiIDs []string) (map[string]bool, error)
	InsertCallIfAbsent(ctx context.Context, call *models.Call) (bool, error)
	CallTotals(ctx context.Context, filter store.CallFilter) (store.CallTotals, error)
	UpdateAssistantStats(ctx context.Context, id primitive.ObjectID, stats models.AssistantStats, progress *models.SyncProgress) error
}

// CallFetcher lists calls from Vapi
type CallFetcher interface {
	ListCalls(ctx context.Context, params vapi.ListCallsParams) ([]vapi.Call, error)
}

// Options tune a Syncer
type Options struct {
	// Concurrency is how many assistants sync at once
	Concurrency int
	// CallLimit is the page size requested from Vapi
	CallLimit int
	// MaxPages caps the pages fetched per assistant and run
	MaxPages int
	// Overlap is subtracted from the last sync time when asking Vapi for new calls
	Overlap time.Duration
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions() Options {
	return Options{
		Concurrency: 4,
		CallLimit:   100,
		MaxPages:    10,
		Overlap:     5 * time.Minute,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.CallLimit <= 0 {
		o.CallLimit = d.CallLimit
	}
	if o.MaxPages <= 0 {
		o.MaxPages = d.MaxPages
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	return o
}

// AssistantResult is the outcome of syncing one assistant
type AssistantResult struct {
	AssistantID     string                `json:"assistantId"`
	VapiAssistantID string                `json:"vapiAssistantId"`
	Name            string                `json:"name"`
	Fetched         int                   `json:"fetched"`
	Inserted        int                   `json:"inserted"`
	Skipped         int                   `json:"skipped"`
	Backfilling     bool                  `json:"backfilling,omitempty"`
	Stats           models.AssistantStats `json:"stats"`
	Error           string                `json:"error,omitempty"`
}

// Result summarizes a sync run over every assistant
type Result struct {
	RunID      string            `json:"runId"`
	StartedAt  time.Time         `json:"startedAt"`
	Duration   float64           `json:"duration"` // seconds
	Assistants []AssistantResult `json:"assistants"`
	Inserted   int               `json:"inserted"`
	Skipped    int               `json:"skipped"`
	Failed     int               `json:"failed"`
}

// Outcome classifies the run for metrics
func (r *Result) Outcome() string {
	switch {
	case r.Failed == 0:
		return metrics.ResultSuccess
	case r.Failed < len(r.Assistants):
		return metrics.ResultPartial
	default:
		return metrics.ResultFailure
	}
}

// Syncer copies calls from Vapi into the store
type Syncer struct {
	store   Store
	vapi    CallFetcher
	logger  *zap.Logger
	metrics *metrics.Metrics
	opts    Options
	now     func() time.Time
}

// NewSyncer creates a Syncer. m may be nil.
func NewSyncer(s Store, fetcher CallFetcher, logger *zap.Logger, m *metrics.Metrics, opts Options) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		store:   s,
		vapi:    fetcher,
		logger:  logger,
		metrics: m,
		opts:    opts.withDefaults(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SyncAll syncs every assistant that is linked to Vapi. A failing assistant
// is recorded in the result and does not stop the others.
func (s *Syncer) SyncAll(ctx context.Context) (*Result, error) {
	result := &Result{
		RunID:      uuid.NewString(),
		StartedAt:  s.now(),
		Assistants: []AssistantResult{},
	}
	log := s.logger.With(zap.String("run_id", result.RunID))
	log.Info("🔄 [SYNC] starting call sync")

	assistants, err := s.store.ListAssistants(ctx, nil)
	if err != nil {
		s.metrics.ObserveSync(metrics.ResultFailure, 0, 0, time.Since(result.StartedAt))
		return nil, fmt.Errorf("failed to list assistants: %w", err)
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Concurrency)
	for i := range assistants {
		a := &assistants[i]
		if a.VapiAssistantID == "" {
			continue
		}
		g.Go(func() error {
			ar, err := s.SyncAssistant(ctx, a)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				ar.Error = err.Error()
				result.Failed++
				log.Warn("⚠️  [SYNC] assistant sync failed",
					zap.String("assistant_id", a.ID.Hex()),
					zap.String("vapi_assistant_id", a.VapiAssistantID),
					zap.Error(err))
			}
			result.Assistants = append(result.Assistants, ar)
			result.Inserted += ar.Inserted
			result.Skipped += ar.Skipped
			return nil
		})
	}
	_ = g.Wait()

	took := s.now().Sub(result.StartedAt)
	result.Duration = analytics.Round2(took.Seconds())
	s.metrics.ObserveSync(result.Outcome(), result.Inserted, result.Skipped, took)

	log.Info("✅ [SYNC] call sync finished",
		zap.Int("assistants", len(result.Assistants)),
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Duration("took", took))
	return result, nil
}

// SyncAssistant fetches the assistant's calls since its last sync, stores the
// new ones and recomputes its statistics.
func (s *Syncer) SyncAssistant(ctx context.Context, a *models.Assistant) (AssistantResult, error) {
	ar := AssistantResult{
		AssistantID:     a.ID.Hex(),
		VapiAssistantID: a.VapiAssistantID,
		Name:            a.Name,
	}
	syncedAt := s.now()

	calls, cursor, err := s.fetch(ctx, a)
	if err != nil {
		return ar, err
	}
	ar.Backfilling = cursor != nil
	ar.Fetched = len(calls)

	ids := make([]string, 0, len(calls))
	for i := range calls {
		ids = append(ids, calls[i].ID)
	}
	seen, err := s.store.ExistingCallIDs(ctx, ids)
	if err != nil {
		return ar, fmt.Errorf("failed to check stored calls: %w", err)
	}

	for i := range calls {
		c := &calls[i]
		if c.ID == "" || seen[c.ID] {
			ar.Skipped++
			continue
		}
		inserted, err := s.store.InsertCallIfAbsent(ctx, ToModel(c, a, syncedAt))
		if err != nil {
			return ar, fmt.Errorf("failed to store call %s: %w", c.ID, err)
		}
		if inserted {
			ar.Inserted++
		} else {
			ar.Skipped++
		}
		seen[c.ID] = true
	}

	progress := nextProgress(a, syncedAt, cursor)
	stats, err := s.refreshStats(ctx, a.ID, &progress)
	if err != nil {
		return ar, err
	}
	ar.Stats = stats
	if ar.Backfilling {
		s.logger.Info("⏳ [SYNC] page cap reached, older calls follow next run",
			zap.String("vapi_assistant_id", a.VapiAssistantID),
			zap.Time("cursor", *cursor))
	}

	s.logger.Debug("📞 [SYNC] assistant synced",
		zap.String("vapi_assistant_id", a.VapiAssistantID),
		zap.Int("fetched", ar.Fetched),
		zap.Int("inserted", ar.Inserted))
	return ar, nil
}

// SyncAssistantByID loads the assistant and syncs it
func (s *Syncer) SyncAssistantByID(ctx context.Context, id primitive.ObjectID) (AssistantResult, error) {
	a, err := s.store.AssistantByID(ctx, id)
	if err != nil {
		return AssistantResult{AssistantID: id.Hex()}, err
	}
	return s.SyncAssistant(ctx, a)
}

// fetch pages backwards through the assistant's calls, newest first, until a
// short page or the sync window start. When the page cap cuts it short it
// returns the oldest creation time fetched as the cursor to resume from.
func (s *Syncer) fetch(ctx context.Context, a *models.Assistant) ([]vapi.Call, *time.Time, error) {
	params := vapi.ListCallsParams{
		AssistantID: a.VapiAssistantID,
		Limit:       s.opts.CallLimit,
		CreatedAtLt: a.SyncCursor,
	}
	if a.LastSyncedAt != nil {
		since := a.LastSyncedAt.Add(-s.opts.Overlap)
		params.CreatedAtGt = &since
	}

	var all []vapi.Call
	for page := 1; ; page++ {
		calls, err := s.vapi.ListCalls(ctx, params)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch calls from Vapi: %w", err)
		}
		all = append(all, calls...)
		if len(calls) < s.opts.CallLimit {
			return all, nil, nil
		}

		oldest := oldestCreated(calls)
		if oldest == nil || (params.CreatedAtLt != nil && !oldest.Before(*params.CreatedAtLt)) {
			return all, nil, nil
		}
		params.CreatedAtLt = oldest
		if page == s.opts.MaxPages {
			return all, oldest, nil
		}
	}
}

// nextProgress decides what the run leaves behind. An unfinished backfill
// keeps the window start so the older calls are still inside it; a finished
// one moves it to when the backfill began.
func nextProgress(a *models.Assistant, syncedAt time.Time, cursor *time.Time) models.SyncProgress {
	pending := a.SyncPendingAt
	if pending == nil {
		pending = &syncedAt
	}
	if cursor != nil {
		return models.SyncProgress{LastSyncedAt: a.LastSyncedAt, Cursor: cursor, PendingAt: pending}
	}
	return models.SyncProgress{LastSyncedAt: pending}
}

func oldestCreated(calls []vapi.Call) *time.Time {
	var oldest *time.Time
	for i := range calls {
		if t := calls[i].CreatedAt; t != nil && (oldest == nil || t.Before(*oldest)) {
			oldest = t
		}
	}
	return oldest
}

// Ingest stores one call pushed by a Vapi webhook. It reports whether the
// call was new.
func (s *Syncer) Ingest(ctx context.Context, c *vapi.Call) (bool, error) {
	if c == nil || c.ID == "" {
		return false, ErrInvalidCall
	}
	if c.AssistantID == "" {
		return false, ErrUnknownAssistant
	}
	a, err := s.store.AssistantByVapiID(ctx, c.AssistantID)
	if errors.Is(err, store.ErrNotFound) {
		return false, ErrUnknownAssistant
	}
	if err != nil {
		return false, fmt.Errorf("failed to load assistant: %w", err)
	}

	inserted, err := s.store.InsertCallIfAbsent(ctx, ToModel(c, a, s.now()))
	if err != nil {
		return false, fmt.Errorf("failed to store call %s: %w", c.ID, err)
	}
	// recomputed for duplicates too
	if _, err := s.refreshStats(ctx, a.ID, nil); err != nil {
		return inserted, err
	}
	s.logger.Info("📥 [SYNC] call ingested from webhook",
		zap.String("vapi_call_id", c.ID),
		zap.Bool("inserted", inserted))
	return inserted, nil
}

func (s *Syncer) refreshStats(ctx context.Context, assistantID primitive.ObjectID, progress *models.SyncProgress) (models.AssistantStats, error) {
	totals, err := s.store.CallTotals(ctx, store.CallFilter{AssistantID: &assistantID})
	if err != nil {
		return models.AssistantStats{}, fmt.Errorf("failed to aggregate stats: %w", err)
	}
	stats := analytics.StatsFromTotals(totals)
	if err := s.store.UpdateAssistantStats(ctx, assistantID, stats, progress); err != nil {
		return stats, fmt.Errorf("failed to save stats: %w", err)
	}
	return stats, nil
}
