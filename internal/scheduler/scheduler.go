// Package scheduler runs worklist passes on an interval and on demand, and
// fans each result out to the cache, metrics and live subscribers.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matthewbaird/followup/internal/reminders"
	"github.com/matthewbaird/followup/internal/types"
)

// Computer runs one aggregation pass.
type Computer interface {
	Compute(ctx context.Context) types.Worklist
}

// Observer is notified after every pass.
type Observer interface {
	ObservePass(wl types.Worklist, took time.Duration)
}

// Broadcaster pushes a fresh worklist to live subscribers.
type Broadcaster interface {
	Broadcast(wl types.Worklist)
}

// Config configures a Scheduler.
type Config struct {
	Computer    Computer
	Cache       reminders.Cache
	Observer    Observer
	Broadcaster Broadcaster
	Interval    time.Duration
	ScanTimeout time.Duration
	Logger      *zap.Logger
}

// Scheduler serializes passes: at most one runs at a time.
type Scheduler struct {
	cfg     Config
	trigger chan struct{}
	runMu   sync.Mutex
	logger  *zap.Logger
}

// New creates a Scheduler. Interval defaults to 5m and ScanTimeout to 1m.
func New(cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = time.Minute
	}
	if cfg.Cache == nil {
		cfg.Cache = reminders.NewMemoryCache()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:     cfg,
		trigger: make(chan struct{}, 1),
		logger:  logger.Named("scheduler"),
	}
}

// Trigger requests a pass as soon as possible. It never blocks; requests
// made while one is already pending are coalesced.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Start runs an initial pass, then one per interval and per trigger, until
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", zap.Duration("interval", s.cfg.Interval))
	s.RunOnce(ctx)
	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.trigger:
			s.RunOnce(ctx)
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		}
	}
}

// RunOnce computes a worklist under the scan timeout and publishes it.
func (s *Scheduler) RunOnce(ctx context.Context) types.Worklist {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	scanCtx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	defer cancel()

	start := time.Now()
	wl := s.cfg.Computer.Compute(scanCtx)
	took := time.Since(start)

	// The cache write outlives a cancelled parent so shutdown still leaves
	// the last pass behind.
	if err := s.cfg.Cache.Put(context.WithoutCancel(ctx), wl); err != nil {
		s.logger.Error("caching worklist failed", zap.Error(err))
	}
	if s.cfg.Observer != nil {
		s.cfg.Observer.ObservePass(wl, took)
	}
	if s.cfg.Broadcaster != nil {
		s.cfg.Broadcaster.Broadcast(wl)
	}

	fields := []zap.Field{
		zap.Int("overdue", wl.OverdueCount),
		zap.Int("upcoming", wl.UpcomingCount),
		zap.Bool("partial", wl.Partial),
		zap.Int("skipped", len(wl.Skipped)),
		zap.Duration("took", took),
	}
	if wl.Partial {
		s.logger.Warn("partial worklist pass", fields...)
	} else {
		s.logger.Debug("worklist pass", fields...)
	}
	return wl
}

// Latest returns the most recent cached worklist. ok is false before the
// first pass.
func (s *Scheduler) Latest(ctx context.Context) (types.Worklist, bool, error) {
	return s.cfg.Cache.Get(ctx)
}
