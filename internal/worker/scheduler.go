package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"savings/internal/log"
	"savings/internal/services"
)

// ErrRunInProgress is returned by RunOnce while another run holds the lock.
var ErrRunInProgress = errors.New("reconciliation already in progress")

// MonthlyReconciler is satisfied by *services.Reconciler.
type MonthlyReconciler interface {
	RunMonthlyReconciliation(ctx context.Context) (services.Summary, error)
}

// Scheduler runs the monthly reconciliation at startup and on every tick.
// Runs never overlap within the process; overlap across processes is
// resolved by the ledger's uniqueness constraint.
type Scheduler struct {
	reconciler MonthlyReconciler
	interval   time.Duration
	logger     *log.Logger

	run sync.Mutex

	mu   sync.RWMutex
	last *services.Summary
}

func NewScheduler(reconciler MonthlyReconciler, interval time.Duration, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.FromSlog(nil, log.ComponentWorker)
	}
	return &Scheduler{
		reconciler: reconciler,
		interval:   interval,
		logger:     logger,
	}
}

// RunOnce performs one reconciliation unless one is already running.
func (s *Scheduler) RunOnce(ctx context.Context) (services.Summary, error) {
	if !s.run.TryLock() {
		return services.Summary{}, ErrRunInProgress
	}
	defer s.run.Unlock()

	sum, err := s.reconciler.RunMonthlyReconciliation(ctx)

	s.mu.Lock()
	s.last = &sum
	s.mu.Unlock()

	return sum, err
}

// LastSummary returns the summary of the most recent completed run.
func (s *Scheduler) LastSummary() (services.Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return services.Summary{}, false
	}
	return *s.last, true
}

// Start blocks until ctx ends, running once immediately and then every interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.InfoContext(ctx, "Running initial reconciliation")
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx)
			s.logger.DebugContext(ctx, "Next reconciliation scheduled",
				"next_check", now.Add(s.interval).Format(time.RFC3339))
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	sum, err := s.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.InfoContext(ctx, "Skipping tick, reconciliation already running")
	case err != nil && ctx.Err() != nil:
		s.logger.InfoContext(ctx, "Reconciliation interrupted by shutdown",
			log.FieldRunID, sum.RunID,
			"processed", sum.Processed)
	case err != nil:
		// The next tick retries; already reconciled users are skipped.
		s.logger.ErrorContext(ctx, "Reconciliation failed",
			log.FieldRunID, sum.RunID,
			log.FieldMonth, sum.Month,
			log.FieldError, err)
	default:
		s.logger.InfoContext(ctx, "Reconciliation complete",
			log.FieldRunID, sum.RunID,
			log.FieldMonth, sum.Month,
			"status", sum.Status(),
			"processed", sum.Processed,
			"skipped", sum.Skipped,
			"failed", sum.Failed)
	}
}
