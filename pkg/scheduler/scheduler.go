// Package scheduler periodically reconciles the latest published year of every level.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	reqcontext "github.com/Ramsey-B/subdivisions/pkg/context"
	suberrors "github.com/Ramsey-B/subdivisions/pkg/errors"
	"github.com/Ramsey-B/subdivisions/pkg/metrics"
	"github.com/Ramsey-B/subdivisions/pkg/reconcile"
	"github.com/Ramsey-B/subdivisions/pkg/tracing"
)

var (
	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

// DefaultInterval is the default interval between pipeline runs
const DefaultInterval = 24 * time.Hour

// Runner runs the full reconciliation pipeline.
type Runner interface {
	RunAll(ctx context.Context, year int) ([]*reconcile.Result, error)
}

// Config holds configuration for the scheduler
type Config struct {
	// Interval is how often the pipeline runs
	Interval time.Duration
}

// Scheduler runs the pipeline for the latest published year on a fixed interval, starting
// immediately.
type Scheduler struct {
	runner Runner
	config Config
	logger ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(runner Runner, config Config, logger ectologger.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}

	return &Scheduler{
		runner:   runner,
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithContext(ctx).Infof("Starting scheduler: interval=%s", s.config.Interval)

	go s.loop(ctx)

	return nil
}

// Stop stops the scheduler, waiting for a run in progress to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping scheduler...")

	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.runCycle(ctx)

	for {
		select {
		case <-s.stopCh:
			s.logger.WithContext(ctx).Debug("Scheduler loop stopping")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle runs the pipeline once. A run refused by another worker's lock is skipped.
func (s *Scheduler) runCycle(ctx context.Context) {
	ctx, span := tracing.StartSpan(reqcontext.SetTrigger(ctx, "scheduler"), "scheduler.Scheduler.runCycle")
	defer span.End()

	start := time.Now()
	results, err := s.runner.RunAll(ctx, 0)
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"steps":    len(results),
		"duration": time.Since(start).String(),
	})

	var inProgress *suberrors.RunInProgressError
	switch {
	case errors.As(err, &inProgress):
		metrics.SchedulerRunsTotal.WithLabelValues("skipped").Inc()
		log.WithField("key", inProgress.Key).Info("Scheduled run skipped, another worker is reconciling")
	case err != nil:
		tracing.RecordError(span, err)
		metrics.SchedulerRunsTotal.WithLabelValues("failure").Inc()
		log.WithError(err).Error("Scheduled run failed")
	default:
		metrics.SchedulerRunsTotal.WithLabelValues("success").Inc()
		log.Info("Scheduled run completed")
	}
}
