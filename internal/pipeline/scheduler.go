package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Cycler runs one retraining cycle.
type Cycler interface {
	RunCycle(ctx context.Context) (CycleResult, error)
}

// Due reports whether a cycle should run. A zero lastRun is always due.
func Due(now, lastRun time.Time, interval time.Duration) bool {
	if lastRun.IsZero() {
		return true
	}
	return !now.Before(lastRun.Add(interval))
}

// Scheduler polls on a fixed period and runs a cycle whenever the retrain
// interval has elapsed since the last attempt.
type Scheduler struct {
	cycler   Cycler
	clock    clockwork.Clock
	interval time.Duration
	poll     time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	lastRun time.Time
}

// NewScheduler creates a Scheduler. A nil clock uses real time.
func NewScheduler(cycler Cycler, clock clockwork.Clock, interval, poll time.Duration, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		cycler:   cycler,
		clock:    clock,
		interval: interval,
		poll:     poll,
		logger:   logger,
	}
}

// LastRun returns the start time of the last attempted cycle.
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// NextRun returns when the next cycle becomes due.
func (s *Scheduler) NextRun() time.Time {
	last := s.LastRun()
	if last.IsZero() {
		return s.clock.Now()
	}
	return last.Add(s.interval)
}

// Tick runs a cycle if one is due and reports whether it did. The attempt is
// recorded whatever the outcome, so a failing cycle waits a full interval
// before the next try. Errors and panics are logged, never returned.
func (s *Scheduler) Tick(ctx context.Context) bool {
	now := s.clock.Now()
	if !Due(now, s.LastRun(), s.interval) {
		return false
	}

	defer func() {
		s.mu.Lock()
		s.lastRun = now
		s.mu.Unlock()
		s.logger.Info("next cycle scheduled", "at", now.Add(s.interval))
	}()

	if err := s.runCycle(ctx); err != nil {
		s.logger.Error("scheduled cycle failed", "error", err)
	}
	return true
}

func (s *Scheduler) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
		}
	}()
	_, err = s.cycler.RunCycle(ctx)
	return err
}

// Run ticks once immediately and then on every poll period until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "poll", s.poll)
	s.Tick(ctx)

	ticker := s.clock.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			s.Tick(ctx)
		}
	}
}
