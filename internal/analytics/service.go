package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter"
	"golang.org/x/sync/errgroup"

	"mindforu/internal/store"
	"mindforu/internal/vapi"
)

// Aggregator runs the call aggregation pipelines
type Aggregator interface {
	CallTotals(ctx context.Context, filter store.CallFilter) (store.CallTotals, error)
	CallsByDay(ctx context.Context, filter store.CallFilter, timezone string) ([]store.DayBucket, error)
	CallsByStatus(ctx context.Context, filter store.CallFilter) ([]store.CountBucket, error)
	CallsByEndedReason(ctx context.Context, filter store.CallFilter, limit int64) ([]store.CountBucket, error)
	TopAssistants(ctx context.Context, filter store.CallFilter, limit int64) ([]store.AssistantBucket, error)
}

// CallLister fetches calls straight from Vapi
type CallLister interface {
	ListCalls(ctx context.Context, params vapi.ListCallsParams) ([]vapi.Call, error)
}

const (
	topAssistantsLimit = 5
	endedReasonsLimit  = 10
	liveCallLimit      = 1000
)

// Service computes dashboard analytics and call statistics
type Service struct {
	store Aggregator
	vapi  CallLister
	cache *otter.Cache[string, *Dashboard]
}

// NewService creates an analytics service. lister may be nil, which disables live stats.
func NewService(agg Aggregator, lister CallLister) *Service {
	return &Service{store: agg, vapi: lister}
}

// Changes is the percent change of each headline number against the previous window
type Changes struct {
	Calls           float64 `json:"calls"`
	Minutes         float64 `json:"minutes"`
	AverageDuration float64 `json:"averageDuration"`
	SuccessRate     float64 `json:"successRate"`
	Cost            float64 `json:"cost"`
}

// AssistantSummary is one row of the top assistants table
type AssistantSummary struct {
	AssistantID     string  `json:"assistantId"`
	Name            string  `json:"name"`
	Calls           int64   `json:"calls"`
	AverageDuration float64 `json:"averageDuration"`
	SuccessRate     float64 `json:"successRate"`
	TotalCost       float64 `json:"totalCost"`
}

// Dashboard is the payload of the dashboard analytics endpoint
type Dashboard struct {
	Range         Range               `json:"range"`
	Summary       Summary             `json:"summary"`
	Previous      *Summary            `json:"previous,omitempty"`
	Changes       *Changes            `json:"changes,omitempty"`
	CallsByDay    []store.DayBucket   `json:"callsByDay"`
	CallsByStatus map[string]int64    `json:"callsByStatus"`
	EndedReasons  []store.CountBucket `json:"endedReasons"`
	TopAssistants []AssistantSummary  `json:"topAssistants"`
}

// DashboardQuery selects whose calls and which window the dashboard covers
type DashboardQuery struct {
	Filter   store.CallFilter
	Range    Range
	Location *time.Location
}

// Dashboard runs the dashboard aggregations concurrently and shapes the result
func (s *Service) Dashboard(ctx context.Context, q DashboardQuery) (*Dashboard, error) {
	if d, ok := s.cached(q); ok {
		return d, nil
	}

	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}
	filter := q.Range.Apply(q.Filter)

	var (
		totals     store.CallTotals
		prevTotals store.CallTotals
		days       []store.DayBucket
		statuses   []store.CountBucket
		reasons    []store.CountBucket
		top        []store.AssistantBucket
	)
	prevRange, hasPrev := q.Range.Previous()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		totals, err = s.store.CallTotals(gctx, filter)
		return wrap("totals", err)
	})
	if hasPrev {
		g.Go(func() (err error) {
			prevTotals, err = s.store.CallTotals(gctx, prevRange.Apply(q.Filter))
			return wrap("previous totals", err)
		})
	}
	g.Go(func() (err error) {
		days, err = s.store.CallsByDay(gctx, filter, loc.String())
		return wrap("calls by day", err)
	})
	g.Go(func() (err error) {
		statuses, err = s.store.CallsByStatus(gctx, filter)
		return wrap("calls by status", err)
	})
	g.Go(func() (err error) {
		reasons, err = s.store.CallsByEndedReason(gctx, filter, endedReasonsLimit)
		return wrap("ended reasons", err)
	})
	g.Go(func() (err error) {
		top, err = s.store.TopAssistants(gctx, filter, topAssistantsLimit)
		return wrap("top assistants", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d := &Dashboard{
		Range:         q.Range,
		Summary:       SummaryFromTotals(totals),
		CallsByDay:    FillDays(days, q.Range, loc),
		CallsByStatus: make(map[string]int64, len(statuses)),
		EndedReasons:  reasons,
		TopAssistants: make([]AssistantSummary, 0, len(top)),
	}
	if d.CallsByDay == nil {
		d.CallsByDay = []store.DayBucket{}
	}
	if d.EndedReasons == nil {
		d.EndedReasons = []store.CountBucket{}
	}
	for _, b := range statuses {
		d.CallsByStatus[b.Key] = b.Count
	}
	for _, b := range top {
		d.TopAssistants = append(d.TopAssistants, AssistantSummary{
			AssistantID:     b.AssistantID.Hex(),
			Name:            b.Name,
			Calls:           b.Calls,
			AverageDuration: Round2(Average(b.Duration, b.Calls)),
			SuccessRate:     Round2(Percentage(b.Successful, b.Calls)),
			TotalCost:       Round2(b.Cost),
		})
	}

	if hasPrev {
		prev := SummaryFromTotals(prevTotals)
		d.Previous = &prev
		d.Changes = &Changes{
			Calls:           Round2(PercentChange(float64(prev.TotalCalls), float64(d.Summary.TotalCalls))),
			Minutes:         Round2(PercentChange(prev.TotalMinutes, d.Summary.TotalMinutes)),
			AverageDuration: Round2(PercentChange(prev.AverageDuration, d.Summary.AverageDuration)),
			SuccessRate:     Round2(PercentChange(prev.SuccessRate, d.Summary.SuccessRate)),
			Cost:            Round2(PercentChange(prev.TotalCost, d.Summary.TotalCost)),
		}
	}

	s.remember(q, d)
	return d, nil
}

// CallStats is the payload of the call statistics endpoint
type CallStats struct {
	Source   string           `json:"source"` // "database" or "vapi"
	Summary  Summary          `json:"summary"`
	ByStatus map[string]int64 `json:"byStatus"`
}

// CallStatsQuery selects the calls the statistics cover. Live reads from
// Vapi instead of the database and needs VapiAssistantID.
type CallStatsQuery struct {
	Filter          store.CallFilter
	Live            bool
	VapiAssistantID string
}

// CallStats summarizes stored calls, or calls fetched live from Vapi
func (s *Service) CallStats(ctx context.Context, q CallStatsQuery) (*CallStats, error) {
	if q.Live {
		if s.vapi == nil {
			return nil, vapi.ErrNotConfigured
		}
		calls, err := s.vapi.ListCalls(ctx, vapi.ListCallsParams{
			AssistantID: q.VapiAssistantID,
			Limit:       liveCallLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch calls from Vapi: %w", err)
		}
		return &CallStats{
			Source:   "vapi",
			Summary:  Summarize(calls),
			ByStatus: CountStatuses(calls),
		}, nil
	}

	var (
		totals   store.CallTotals
		statuses []store.CountBucket
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		totals, err = s.store.CallTotals(gctx, q.Filter)
		return wrap("totals", err)
	})
	g.Go(func() (err error) {
		statuses, err = s.store.CallsByStatus(gctx, q.Filter)
		return wrap("calls by status", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &CallStats{
		Source:   "database",
		Summary:  SummaryFromTotals(totals),
		ByStatus: make(map[string]int64, len(statuses)),
	}
	for _, b := range statuses {
		stats.ByStatus[b.Key] = b.Count
	}
	return stats, nil
}

func wrap(what string, err error) error {
	if err != nil {
		return fmt.Errorf("failed to aggregate %s: %w", what, err)
	}
	return nil
}
