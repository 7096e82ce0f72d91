package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/property-service/internal/events"
	"github.com/spec-kit/property-service/internal/repository"
)

// ReaperLockKey is the Redis key that elects one sweeping replica per tick.
const ReaperLockKey = "sessions:reaper:lock"

// Locker grants a time-bounded exclusive lock. persistence.Redis implements it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// SweepRecorder receives sweep outcomes. observability.Metrics implements it.
type SweepRecorder interface {
	RecordSweep(deactivated, deleted int64, failed bool)
	RecordSweepSkipped()
}

// SweepResult reports what one sweep did.
type SweepResult struct {
	Deactivated int64
	Deleted     int64
	Skipped     bool
}

// ReaperConfig controls the sweep schedule.
type ReaperConfig struct {
	Interval  time.Duration
	Retention time.Duration
	Timeout   time.Duration
	LockTTL   time.Duration
	Now       func() time.Time
}

// ReaperDependencies bundles collaborators for NewSessionReaper.
type ReaperDependencies struct {
	Store    repository.SessionSweeper
	Locker   Locker
	Recorder SweepRecorder
	Events   events.Dispatcher
	Logger   *zap.Logger
}

// SessionReaper periodically soft-expires sessions past expiry and purges those that
// expired more than Retention ago.
type SessionReaper struct {
	store    repository.SessionSweeper
	locker   Locker
	recorder SweepRecorder
	events   events.Dispatcher
	logger   *zap.Logger
	cfg      ReaperConfig

	mu      sync.Mutex
	sweepMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSessionReaper validates cfg and builds a reaper.
func NewSessionReaper(deps ReaperDependencies, cfg ReaperConfig) (*SessionReaper, error) {
	if deps.Store == nil {
		return nil, errors.New("session sweeper is required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("reaper interval must be positive")
	}
	if cfg.Retention <= 0 {
		return nil, errors.New("reaper retention must be positive")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.Interval / 2
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionReaper{
		store:    deps.Store,
		locker:   deps.Locker,
		recorder: deps.Recorder,
		events:   deps.Events,
		logger:   logger.Named("session_reaper"),
		cfg:      cfg,
	}, nil
}

// Start launches the sweep loop. The first sweep runs one interval after Start.
// Calling Start on a running reaper is a no-op.
func (r *SessionReaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go r.loop(loopCtx)

	r.logger.Info("session reaper started",
		zap.Duration("interval", r.cfg.Interval),
		zap.Duration("retention", r.cfg.Retention))
}

// Stop cancels the loop and waits for an in-flight sweep to return.
func (r *SessionReaper) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	r.wg.Wait()
	r.logger.Info("session reaper stopped")
}

func (r *SessionReaper) loop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Tick(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("session sweep failed", zap.Error(err))
			}
		}
	}
}

// Tick runs a scheduled sweep, first taking the replica lock when a Locker is set.
// A lock error falls back to sweeping since sweeps are idempotent.
func (r *SessionReaper) Tick(ctx context.Context) (SweepResult, error) {
	if r.locker != nil {
		acquired, err := r.locker.TryLock(ctx, ReaperLockKey, r.cfg.LockTTL)
		switch {
		case err != nil:
			r.logger.Warn("reaper lock unavailable; sweeping anyway", zap.Error(err))
		case !acquired:
			r.logger.Debug("reaper lock held by another replica")
			if r.recorder != nil {
				r.recorder.RecordSweepSkipped()
			}
			return SweepResult{Skipped: true}, nil
		}
	}
	return r.RunOnce(ctx)
}

// RunOnce soft-expires then hard-deletes, without taking the replica lock. A failure
// in one step does not prevent the other; both errors are returned joined.
func (r *SessionReaper) RunOnce(ctx context.Context) (SweepResult, error) {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()

	now := r.cfg.Now()
	cutoff := now.Add(-r.cfg.Retention)
	var (
		result SweepResult
		errs   []error
	)

	deactivated, err := r.step(ctx, func(stepCtx context.Context) (int64, error) {
		return r.store.ExpireStale(stepCtx, now)
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("expire stale sessions: %w", err))
	}
	result.Deactivated = deactivated

	deleted, err := r.step(ctx, func(stepCtx context.Context) (int64, error) {
		return r.store.DeleteExpiredBefore(stepCtx, cutoff)
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("delete expired sessions: %w", err))
	}
	result.Deleted = deleted

	sweepErr := errors.Join(errs...)
	failed := sweepErr != nil
	if r.recorder != nil {
		r.recorder.RecordSweep(result.Deactivated, result.Deleted, failed)
	}
	r.publish(ctx, result, failed)

	if failed {
		r.logger.Warn("session sweep finished with errors",
			zap.Int64("deactivated", result.Deactivated),
			zap.Int64("deleted", result.Deleted),
			zap.Error(sweepErr))
		return result, sweepErr
	}
	r.logger.Info("session sweep finished",
		zap.Int64("deactivated", result.Deactivated),
		zap.Int64("deleted", result.Deleted),
		zap.Time("cutoff", cutoff))
	return result, nil
}

func (r *SessionReaper) step(ctx context.Context, fn func(context.Context) (int64, error)) (int64, error) {
	stepCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	return fn(stepCtx)
}

func (r *SessionReaper) publish(ctx context.Context, result SweepResult, failed bool) {
	if r.events == nil {
		return
	}
	err := r.events.Publish(ctx, events.Event{
		Type: events.EventSessionsSwept,
		Payload: events.SessionsSweptPayload{
			Deactivated: result.Deactivated,
			Deleted:     result.Deleted,
			Failed:      failed,
		},
	})
	if err != nil {
		r.logger.Warn("sweep event handler failed", zap.Error(err))
	}
}
