package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultReloadPollInterval = 30 * time.Second

// ReloadSchedulerConfig configures the background reload runner.
type ReloadSchedulerConfig struct {
	Manager *Manager

	// Cron is a five-field cron expression interpreted in UTC.
	// Timezone prefixes (CRON_TZ=, TZ=) are rejected.
	Cron string

	PollInterval time.Duration
	Now          func() time.Time
	Logger       *slog.Logger
}

// ReloadScheduler reloads every registered adapter on a cron cadence so
// long-running processes pick up implementation changes without a
// restart.
type ReloadScheduler struct {
	manager      *Manager
	schedule     cron.Schedule
	pollInterval time.Duration
	now          func() time.Time
	logger       *slog.Logger

	mu        sync.Mutex
	nextRunAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReloadScheduler creates a reload scheduler instance.
func NewReloadScheduler(cfg ReloadSchedulerConfig) (*ReloadScheduler, error) {
	if cfg.Manager == nil {
		return nil, errors.New("reload scheduler manager is nil")
	}
	schedule, err := parseScheduleUTC(cfg.Cron)
	if err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultReloadPollInterval
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &ReloadScheduler{
		manager:      cfg.Manager,
		schedule:     schedule,
		pollInterval: cfg.PollInterval,
		now:          cfg.Now,
		logger:       cfg.Logger,
	}
	s.nextRunAt = schedule.Next(s.now().UTC())
	return s, nil
}

// Start begins background polling. Calling Start on a running scheduler
// is a no-op.
func (s *ReloadScheduler) Start(ctx context.Context) error {
	if s == nil {
		return errors.New("reload scheduler is nil")
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		_ = s.RunOnce(loopCtx)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				_ = s.RunOnce(loopCtx)
			}
		}
	}()

	_ = ctx
	return nil
}

// Stop stops background polling and waits for the loop to exit.
func (s *ReloadScheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single due-check, reloading every adapter when the
// schedule has come due and advancing the next run time.
func (s *ReloadScheduler) RunOnce(ctx context.Context) error {
	if s == nil || s.manager == nil {
		return errors.New("reload scheduler is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := s.now().UTC()
	s.mu.Lock()
	due := !now.Before(s.nextRunAt)
	if due {
		s.nextRunAt = s.schedule.Next(now)
	}
	s.mu.Unlock()
	if !due {
		return nil
	}

	start := time.Now()
	if err := s.manager.ReloadAll(); err != nil {
		s.logger.Warn("scheduled reload finished with failures", "elapsed", time.Since(start), "error", err)
		return err
	}
	s.logger.Info("scheduled reload complete", "adapters", s.manager.Registry().Len(), "elapsed", time.Since(start))
	return nil
}

// NextRunAt reports the next time a reload pass will be considered due.
func (s *ReloadScheduler) NextRunAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRunAt
}

var fiveFieldParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// parseScheduleUTC parses a five-field cron expression interpreted in
// UTC. Timezone prefixes are rejected.
func parseScheduleUTC(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, errors.New("cron expression is required")
	}

	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, errors.New("cron expression must be UTC-only (timezone prefixes are not allowed)")
	}

	schedule, err := fiveFieldParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}
