/*
scheduler.go - Automated installment status scheduler

PURPOSE:
  Periodically reallocates receipts over every active and terminated
  contract so installments whose due date has passed without full payment
  are marked overdue, and fully covered ones paid.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Keeps the result of the last run for the admin endpoint

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewOverdueScheduler(billingService, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunOverdueCheck endpoint (manual trigger)
  - billing/service.go: RefreshAll
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/leaseforge/lease-engine/billing"
	"github.com/leaseforge/lease-engine/generic"
	"github.com/rs/zerolog"
)

// Refresher is the part of the billing service the scheduler drives.
type Refresher interface {
	RefreshAll(ctx context.Context, asOf generic.TimePoint) (billing.RefreshResult, error)
}

// OverdueScheduler handles automated installment status updates.
type OverdueScheduler struct {
	Billing       Refresher
	CheckInterval time.Duration
	Enabled       bool
	Now           func() generic.TimePoint

	logger zerolog.Logger
	ticker *time.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	runMu  sync.Mutex

	lastRun    time.Time
	lastResult billing.RefreshResult
}

// NewOverdueScheduler creates a new scheduler.
func NewOverdueScheduler(b Refresher, logger zerolog.Logger) *OverdueScheduler {
	return &OverdueScheduler{
		Billing:       b,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Now:           generic.Today,
		logger:        logger.With().Str("component", "overdue_scheduler").Logger(),
	}
}

// Start begins the scheduler. Starting a running scheduler does nothing.
func (s *OverdueScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info().Msg("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.ticker = time.NewTicker(s.CheckInterval)
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx, s.ticker)

	s.logger.Info().Dur("interval", s.CheckInterval).Msg("started")
}

// Stop stops the scheduler and waits for a run in progress to finish.
func (s *OverdueScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		s.cancel()
		s.wg.Wait()
		s.ticker = nil
		s.logger.Info().Msg("stopped")
	}
}

func (s *OverdueScheduler) run(ctx context.Context, ticker *time.Ticker) {
	defer s.wg.Done()

	// Run immediately on start
	s.check(ctx)

	for {
		select {
		case <-ticker.C:
			s.check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *OverdueScheduler) check(ctx context.Context) {
	if _, err := s.RunNow(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("overdue check failed")
	}
}

// RunNow triggers an immediate check (for testing/admin).
func (s *OverdueScheduler) RunNow(ctx context.Context) (billing.RefreshResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	asOf := s.Now()
	res, err := s.Billing.RefreshAll(ctx, asOf)
	if err != nil {
		return res, err
	}
	s.lastRun = time.Now()
	s.lastResult = res

	if res.Updated > 0 {
		s.logger.Info().
			Str("as_of", asOf.String()).
			Int("contracts", res.Contracts).
			Int("updated", res.Updated).
			Int("overdue", res.Overdue).
			Msg("installment statuses refreshed")
	}
	return res, nil
}

// LastRun returns when the last successful check finished and its result.
func (s *OverdueScheduler) LastRun() (time.Time, billing.RefreshResult) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.lastRun, s.lastResult
}

// GetNextRunTime returns when the next scheduled check will occur.
func (s *OverdueScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(s.CheckInterval)
}
