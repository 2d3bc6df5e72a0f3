package sla

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs recurring evaluation passes on a fixed interval using
// cron, with a manual trigger for the API. Passes never overlap: a tick
// or manual run that arrives while a pass is in flight is dropped and
// the next tick covers it.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	cron     *cron.Cron
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
	inPass  bool
}

// ErrPassInProgress is returned by RunNow when a pass is already
// running.
var ErrPassInProgress = errors.New("evaluation pass already in progress")

// NewScheduler creates a scheduler that triggers the runner every
// interval.
func NewScheduler(runner *Runner, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		cron:     cron.New(),
		logger:   logger.With().Str("component", "sla_scheduler").Logger(),
	}
}

// Start registers the recurring pass and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() {
		if _, err := s.RunNow(ctx); err != nil && !errors.Is(err, ErrPassInProgress) {
			s.logger.Error().Err(err).Msg("scheduled evaluation pass failed")
		}
	}); err != nil {
		return fmt.Errorf("register evaluation schedule: %w", err)
	}

	s.cron.Start()
	s.logger.Info().Dur("interval", s.interval).Msg("sla scheduler started")
	return nil
}

// Stop halts the cron loop. The returned context is done once any
// in-flight pass scheduled by cron has finished.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	s.running = false
	s.logger.Info().Msg("stopping sla scheduler")
	return s.cron.Stop()
}

// RunNow executes a single pass immediately. Safe for concurrent use;
// only one pass runs at a time.
func (s *Scheduler) RunNow(ctx context.Context) (RunStats, error) {
	s.mu.Lock()
	if s.inPass {
		s.mu.Unlock()
		return RunStats{}, ErrPassInProgress
	}
	s.inPass = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inPass = false
		s.mu.Unlock()
	}()

	return s.runner.RunOnce(ctx)
}
