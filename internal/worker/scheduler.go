// Package worker drives background synchronization passes.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"household/internal/connectivity"
	applog "household/internal/log"
	"household/internal/services"
)

// Pass is one bidirectional sync.
type Pass interface {
	SyncBidirectional(ctx context.Context) (services.SyncResult, error)
}

// SchedulerConfig holds configuration for the sync scheduler
type SchedulerConfig struct {
	// Interval between passes while online (default: 30s)
	Interval time.Duration
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{Interval: 30 * time.Second}
}

// Scheduler fires a sync pass at start, on reconnect, on every interval
// tick while online and on Nudge. Passes are not awaited and may overlap.
type Scheduler struct {
	pass   Pass
	signal connectivity.Signal
	config SchedulerConfig
	nudge  chan struct{}

	inflight sync.WaitGroup

	// Lifecycle management
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

func NewScheduler(pass Pass, signal connectivity.Signal, config SchedulerConfig) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultSchedulerConfig().Interval
	}
	return &Scheduler{
		pass:   pass,
		signal: signal,
		config: config,
		nudge:  make(chan struct{}, 1),
	}
}

// Start begins scheduling. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sync scheduler is already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(runCtx)

	slog.InfoContext(ctx, "Sync scheduler started", "interval", s.config.Interval)
	return nil
}

// Stop cancels in-flight passes and waits for them to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, doneCh := s.cancel, s.doneCh
	s.mu.Unlock()

	cancel()

	waited := make(chan struct{})
	go func() {
		<-doneCh
		s.inflight.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		slog.InfoContext(ctx, "Sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Nudge asks for a pass soon, e.g. after another device changed the remote.
// Nudges coalesce.
func (s *Scheduler) Nudge() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	var reconnected <-chan struct{}
	if s.signal != nil {
		reconnected = s.signal.Reconnected()
	}

	s.fire(ctx, "start")
	for {
		select {
		case <-ctx.Done():
			return
		case <-reconnected:
			s.fire(ctx, "reconnect")
		case <-ticker.C:
			if s.online() {
				s.fire(ctx, "interval")
			}
		case <-s.nudge:
			if s.online() {
				s.fire(ctx, "remote_change")
			}
		}
	}
}

func (s *Scheduler) online() bool {
	return s.signal == nil || s.signal.Online()
}

// fire runs a pass in its own goroutine. Failures are logged only.
func (s *Scheduler) fire(ctx context.Context, trigger string) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		logger := slog.Default().With(
			applog.FieldComponent, applog.ComponentScheduler,
			applog.FieldTrigger, trigger)
		res, err := s.pass.SyncBidirectional(ctx)
		if err != nil {
			logger.WarnContext(ctx, "Sync pass failed", applog.FieldError, err)
			return
		}
		logger.DebugContext(ctx, "Sync pass finished",
			applog.FieldPeriod, res.Period.String(),
			"uploaded", res.Upload.Uploaded,
			"added", res.Merge.Added,
			"updated", res.Merge.Updated,
			"conflicts", res.Merge.Conflicts,
			applog.FieldDuration, res.Duration)
	}()
}
