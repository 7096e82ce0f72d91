package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/property-service/internal/events"
	"github.com/spec-kit/property-service/internal/persistence"
)

var reaperNow = time.Date(2026, 5, 10, 3, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

type sessionRow struct {
	expiresAt time.Time
	active    bool
}

type memorySweeper struct {
	mu          sync.Mutex
	rows        map[string]sessionRow
	expireErr   error
	deleteErr   error
	expireCalls int
	deleteCalls int
}

func newMemorySweeper(rows map[string]sessionRow) *memorySweeper {
	return &memorySweeper{rows: rows}
}

func (m *memorySweeper) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireCalls++
	if m.expireErr != nil {
		return 0, m.expireErr
	}
	var n int64
	for token, row := range m.rows {
		if row.active && row.expiresAt.Before(now) {
			row.active = false
			m.rows[token] = row
			n++
		}
	}
	return n, nil
}

func (m *memorySweeper) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	var n int64
	for token, row := range m.rows {
		if row.expiresAt.Before(cutoff) {
			delete(m.rows, token)
			n++
		}
	}
	return n, nil
}

func (m *memorySweeper) row(token string) (sessionRow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[token]
	return row, ok
}

func (m *memorySweeper) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expireCalls
}

type fakeSweepRecorder struct {
	mu      sync.Mutex
	runs    int
	failed  int
	skipped int
	deleted int64
}

func (r *fakeSweepRecorder) RecordSweep(_, deleted int64, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
	r.deleted += deleted
	if failed {
		r.failed++
	}
}

func (r *fakeSweepRecorder) RecordSweepSkipped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped++
}

type failingLocker struct{}

func (failingLocker) TryLock(context.Context, string, time.Duration) (bool, error) {
	return false, assert.AnError
}

func newTestReaper(t *testing.T, store *memorySweeper, locker Locker, recorder SweepRecorder, dispatcher events.Dispatcher) *SessionReaper {
	t.Helper()
	reaper, err := NewSessionReaper(ReaperDependencies{
		Store:    store,
		Locker:   locker,
		Recorder: recorder,
		Events:   dispatcher,
	}, ReaperConfig{
		Interval:  time.Hour,
		Retention: 30 * day,
		Timeout:   time.Second,
		Now:       func() time.Time { return reaperNow },
	})
	require.NoError(t, err)
	return reaper
}

func TestNewSessionReaperValidatesConfig(t *testing.T) {
	_, err := NewSessionReaper(ReaperDependencies{}, ReaperConfig{Interval: time.Hour, Retention: day})
	require.Error(t, err)

	_, err = NewSessionReaper(ReaperDependencies{Store: newMemorySweeper(nil)}, ReaperConfig{Retention: day})
	require.Error(t, err)

	_, err = NewSessionReaper(ReaperDependencies{Store: newMemorySweeper(nil)}, ReaperConfig{Interval: time.Hour})
	require.Error(t, err)
}

func TestRunOnceRetentionWindow(t *testing.T) {
	store := newMemorySweeper(map[string]sessionRow{
		"old":    {expiresAt: reaperNow.Add(-31 * day), active: true},
		"recent": {expiresAt: reaperNow.Add(-10 * day), active: true},
		"live":   {expiresAt: reaperNow.Add(time.Hour), active: true},
	})
	recorder := &fakeSweepRecorder{}
	reaper := newTestReaper(t, store, nil, recorder, nil)

	result, err := reaper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Deactivated)
	assert.Equal(t, int64(1), result.Deleted)

	_, ok := store.row("old")
	assert.False(t, ok, "row expired 31 days ago must be deleted")

	recent, ok := store.row("recent")
	require.True(t, ok, "row expired 10 days ago must be kept")
	assert.False(t, recent.active)

	live, ok := store.row("live")
	require.True(t, ok)
	assert.True(t, live.active)

	assert.Equal(t, 1, recorder.runs)
	assert.Equal(t, int64(1), recorder.deleted)
}

func TestRunOnceIsIdempotent(t *testing.T) {
	store := newMemorySweeper(map[string]sessionRow{
		"old":    {expiresAt: reaperNow.Add(-31 * day), active: true},
		"recent": {expiresAt: reaperNow.Add(-10 * day), active: true},
	})
	reaper := newTestReaper(t, store, nil, nil, nil)

	_, err := reaper.RunOnce(context.Background())
	require.NoError(t, err)

	second, err := reaper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, second)

	recent, ok := store.row("recent")
	require.True(t, ok)
	assert.False(t, recent.active)
}

func TestRunOnceJoinsStepErrors(t *testing.T) {
	store := newMemorySweeper(map[string]sessionRow{
		"old": {expiresAt: reaperNow.Add(-31 * day), active: true},
	})
	store.expireErr = assert.AnError
	recorder := &fakeSweepRecorder{}

	dispatcher := events.NewInMemoryDispatcher()
	var swept []events.SessionsSweptPayload
	dispatcher.Subscribe(events.EventSessionsSwept, func(_ context.Context, e events.Event) error {
		swept = append(swept, e.Payload.(events.SessionsSweptPayload))
		return nil
	})
	reaper := newTestReaper(t, store, nil, recorder, dispatcher)

	result, err := reaper.RunOnce(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "expire stale sessions")
	assert.Equal(t, int64(1), result.Deleted, "delete still runs when expiry fails")
	assert.Equal(t, 1, recorder.failed)

	require.Len(t, swept, 1)
	assert.True(t, swept[0].Failed)
	assert.Equal(t, int64(1), swept[0].Deleted)
}

func TestTickUsesRedisLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	lock := &persistence.Redis{Client: client}

	store := newMemorySweeper(map[string]sessionRow{})
	recorder := &fakeSweepRecorder{}
	first := newTestReaper(t, store, lock, recorder, nil)
	second := newTestReaper(t, store, lock, recorder, nil)

	result, err := first.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.True(t, mr.Exists(ReaperLockKey))

	result, err = second.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, 1, store.calls())
	assert.Equal(t, 1, recorder.skipped)

	// Interval is one hour, so the lock defaults to half of it.
	assert.Equal(t, 30*time.Minute, mr.TTL(ReaperLockKey))
	mr.FastForward(31 * time.Minute)

	result, err = second.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, 2, store.calls())
}

func TestTickSweepsWhenLockFails(t *testing.T) {
	store := newMemorySweeper(map[string]sessionRow{})
	reaper := newTestReaper(t, store, failingLocker{}, nil, nil)

	result, err := reaper.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, 1, store.calls())
}

func TestStartStop(t *testing.T) {
	store := newMemorySweeper(map[string]sessionRow{
		"old": {expiresAt: reaperNow.Add(-31 * day), active: true},
	})
	reaper, err := NewSessionReaper(ReaperDependencies{Store: store}, ReaperConfig{
		Interval:  10 * time.Millisecond,
		Retention: 30 * day,
		Now:       func() time.Time { return reaperNow },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reaper.Start(ctx)
	reaper.Start(ctx)

	assert.Eventually(t, func() bool { return store.calls() >= 2 }, time.Second, 5*time.Millisecond)
	reaper.Stop()

	calls := store.calls()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, store.calls(), "no sweeps after Stop")

	_, ok := store.row("old")
	assert.False(t, ok)

	reaper.Stop()
}
