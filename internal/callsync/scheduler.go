package callsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrSyncInProgress is returned when a run is requested while another is going
var ErrSyncInProgress = errors.New("a call sync is already running")

// Runner runs one full sync
type Runner interface {
	SyncAll(ctx context.Context) (*Result, error)
}

// Scheduler runs the sync once at start and then on every tick
type Scheduler struct {
	runner   Runner
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	running atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	last    *Result
	lastErr error
	lastAt  time.Time
}

// NewScheduler creates a scheduler. Each run is bounded by the interval so a
// stuck run cannot overlap the next tick by much.
func NewScheduler(runner Runner, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		timeout:  interval,
		logger:   logger,
	}
}

// Start launches the loop. It returns immediately; calling it twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	s.logger.Info("⏰ [SYNC] scheduler started", zap.Duration("interval", s.interval))
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	_, err := s.run(ctx)
	switch {
	case errors.Is(err, ErrSyncInProgress):
		s.logger.Info("⏭️  [SYNC] previous run still going, skipping tick")
	case err != nil && ctx.Err() == nil:
		s.logger.Error("❌ [SYNC] scheduled sync failed", zap.Error(err))
	}
}

// TriggerNow runs a sync right away and waits for it
func (s *Scheduler) TriggerNow(ctx context.Context) (*Result, error) {
	return s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) (*Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer s.running.Store(false)

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.runner.SyncAll(runCtx)

	s.mu.Lock()
	s.last, s.lastErr, s.lastAt = res, err, time.Now().UTC()
	s.mu.Unlock()
	return res, err
}

// Status describes the scheduler for the admin API
type Status struct {
	Running   bool       `json:"running"`
	Interval  string     `json:"interval"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
	LastRun   *Result    `json:"lastRun,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

// Status reports whether a sync is running and how the last one went
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running:  s.running.Load(),
		Interval: s.interval.String(),
		LastRun:  s.last,
	}
	if !s.lastAt.IsZero() {
		at := s.lastAt
		st.LastRunAt = &at
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Stop cancels the loop and waits for it to exit, including a run in progress
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if done == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("🛑 [SYNC] scheduler stopped")
}
