package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/elonfeng/trendpulse/pkg/trend"
)

// Runner is the ingestion work a scheduler drives.
type Runner interface {
	IngestAll(ctx context.Context) (trend.IngestStats, error)
	Cleanup(ctx context.Context) error
}

// Scheduler runs periodic ingestion cycles and a daily retention sweep.
// At most one cycle is active at any time; a trigger arriving while a
// cycle runs is dropped, not queued.
type Scheduler struct {
	runner      Runner
	log         *zap.Logger
	fetchSpec   string
	cleanupSpec string

	running atomic.Bool

	mu         sync.Mutex
	lastRun    time.Time
	cron       *cron.Cron
	fetchEntry cron.EntryID
}

// Status is the observable scheduler state.
type Status struct {
	IsRunning bool       `json:"is_running"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// New creates a scheduler. Specs use standard five-field cron syntax.
func New(runner Runner, fetchSpec, cleanupSpec string, log *zap.Logger) *Scheduler {
	if fetchSpec == "" {
		fetchSpec = "*/30 * * * *"
	}
	if cleanupSpec == "" {
		cleanupSpec = "0 2 * * *"
	}
	return &Scheduler{
		runner:      runner,
		log:         log,
		fetchSpec:   fetchSpec,
		cleanupSpec: cleanupSpec,
	}
}

// Run starts the cron loop and blocks until ctx is cancelled. One cycle
// runs immediately on start.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New()

	fetchEntry, err := c.AddFunc(s.fetchSpec, func() {
		s.TriggerFetch(ctx)
	})
	if err != nil {
		return err
	}

	if _, err := c.AddFunc(s.cleanupSpec, func() {
		if err := s.runner.Cleanup(ctx); err != nil {
			s.log.Warn("scheduled cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	s.mu.Lock()
	s.cron = c
	s.fetchEntry = fetchEntry
	s.mu.Unlock()

	s.log.Info("scheduler started",
		zap.String("fetch_spec", s.fetchSpec),
		zap.String("cleanup_spec", s.cleanupSpec))

	s.TriggerFetch(ctx)
	c.Start()

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	s.log.Info("scheduler stopped")
	return ctx.Err()
}

// TriggerFetch runs one ingestion cycle unless one is already active, in
// which case the trigger is dropped and false returned. Safe for manual
// triggering concurrent with the cron loop.
func (s *Scheduler) TriggerFetch(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Info("ingest cycle already running, trigger dropped")
		return false
	}
	defer s.running.Store(false)

	s.runCycle(ctx)
	return true
}

// TriggerAsync starts an ingestion cycle in the background, reporting
// immediately whether the trigger was accepted or dropped.
func (s *Scheduler) TriggerAsync(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Info("ingest cycle already running, trigger dropped")
		return false
	}

	go func() {
		defer s.running.Store(false)
		s.runCycle(ctx)
	}()
	return true
}

func (s *Scheduler) runCycle(ctx context.Context) {
	s.mu.Lock()
	s.lastRun = time.Now().UTC()
	s.mu.Unlock()

	if err := s.runner.Cleanup(ctx); err != nil {
		s.log.Warn("pre-cycle cleanup failed", zap.Error(err))
	}

	if _, err := s.runner.IngestAll(ctx); err != nil {
		s.log.Error("ingest cycle aborted", zap.Error(err))
	}
}

// Status reports whether a cycle is active and the last/next run times.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{IsRunning: s.running.Load()}
	if !s.lastRun.IsZero() {
		last := s.lastRun
		st.LastRun = &last
	}
	if s.cron != nil {
		next := s.cron.Entry(s.fetchEntry).Next
		if !next.IsZero() {
			st.NextRun = &next
		}
	}
	return st
}
