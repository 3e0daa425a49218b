package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"meli_sync/internal/domain"
	"meli_sync/internal/service"
)

// Syncer defines the interface for sync operations.
type Syncer interface {
	Sync(ctx context.Context) (*domain.SyncStats, error)
}

// ControlReader reads the run-lifecycle record the due check needs.
type ControlReader interface {
	Get(ctx context.Context, syncType string) (*domain.SyncControl, error)
}

type Config struct {
	// SyncType selects which control record drives the due check.
	SyncType string
	// Interval is the maximum age of the last successful run before a
	// new one is due.
	Interval time.Duration
	// PollInterval is how often the due check runs.
	PollInterval time.Duration
	// Warmup delays the first check after startup so the process can
	// settle and two schedulers don't start fetching at the same time.
	Warmup time.Duration
	// RunTimeout bounds one sync run.
	RunTimeout time.Duration
}

// Scheduler re-runs a sync pipeline whenever its last successful run
// is older than the configured interval. It polls instead of ticking
// at the interval itself so a run triggered manually between polls
// pushes the next scheduled one out.
type Scheduler struct {
	syncer  Syncer
	control ControlReader
	cfg     Config
	logger  *slog.Logger
}

func NewScheduler(syncer Syncer, control ControlReader, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.RunTimeout == 0 {
		cfg.RunTimeout = 30 * time.Minute
	}
	return &Scheduler{
		syncer:  syncer,
		control: control,
		cfg:     cfg,
		logger:  logger.With("component", "scheduler", "sync_type", cfg.SyncType),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"interval", s.cfg.Interval,
		"poll_interval", s.cfg.PollInterval,
		"warmup", s.cfg.Warmup,
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.Warmup):
	}

	s.check(ctx)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

// check runs the syncer when the pipeline is due.
func (s *Scheduler) check(ctx context.Context) {
	control, err := s.control.Get(ctx, s.cfg.SyncType)
	if err != nil {
		s.logger.Error("failed to read sync control", "error", err)
		return
	}
	if !s.due(control) {
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	if _, err := s.syncer.Sync(runCtx); err != nil {
		if errors.Is(err, service.ErrSyncInProgress) {
			s.logger.Info("skipping scheduled run, sync already in progress")
			return
		}
		s.logger.Error("scheduled sync failed", "error", err)
	}
}

// due reports whether a new run should start: no successful run yet,
// or the last one is older than the interval.
func (s *Scheduler) due(control *domain.SyncControl) bool {
	if control.LastSyncAt == nil {
		return true
	}
	return time.Since(*control.LastSyncAt) >= s.cfg.Interval
}
