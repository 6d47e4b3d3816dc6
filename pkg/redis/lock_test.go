package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	suberrors "github.com/Ramsey-B/subdivisions/pkg/errors"
	"github.com/Ramsey-B/subdivisions/pkg/logging"
)

// memoryStore keeps keys in a map and evaluates the release script natively.
type memoryStore struct {
	redis.Scripter

	keys   map[string]string
	ttls   map[string]time.Duration
	setErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if m.setErr != nil {
		return redis.NewBoolResult(false, m.setErr)
	}
	if _, ok := m.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.keys[key] = value.(string)
	m.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (m *memoryStore) EvalSha(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	if m.keys[keys[0]] != args[0] {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(m.keys, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}

func TestLocker_WithLock(t *testing.T) {
	store := newMemoryStore()
	locker := newLocker(store, logging.NewNopLogger(), "subdivisions:", time.Minute)

	var heldDuringRun bool
	err := locker.WithLock(context.Background(), "reconcile:region:2021", func(ctx context.Context) error {
		_, heldDuringRun = store.keys["subdivisions:reconcile:region:2021"]
		return nil
	})

	require.NoError(t, err)
	assert.True(t, heldDuringRun)
	assert.Equal(t, time.Minute, store.ttls["subdivisions:reconcile:region:2021"])
	assert.Empty(t, store.keys)
}

func TestLocker_WithLockReleasesOnError(t *testing.T) {
	store := newMemoryStore()
	locker := newLocker(store, logging.NewNopLogger(), "", time.Minute)
	runErr := errors.New("row rejected")

	err := locker.WithLock(context.Background(), "reconcile:commune:2021", func(ctx context.Context) error {
		return runErr
	})

	require.ErrorIs(t, err, runErr)
	assert.Empty(t, store.keys)
}

func TestLocker_HeldLockFailsFast(t *testing.T) {
	store := newMemoryStore()
	store.keys["lock:reconcile:epci:2021"] = "other-worker"
	locker := newLocker(store, logging.NewNopLogger(), "", time.Minute)

	called := false
	err := locker.WithLock(context.Background(), "reconcile:epci:2021", func(ctx context.Context) error {
		called = true
		return nil
	})

	var inProgress *suberrors.RunInProgressError
	require.ErrorAs(t, err, &inProgress)
	assert.Equal(t, "reconcile:epci:2021", inProgress.Key)
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.False(t, called)
	assert.Equal(t, "other-worker", store.keys["lock:reconcile:epci:2021"])
}

func TestLocker_StoreError(t *testing.T) {
	store := newMemoryStore()
	store.setErr = errors.New("connection refused")
	locker := newLocker(store, logging.NewNopLogger(), "", time.Minute)

	err := locker.WithLock(context.Background(), "reconcile:region:2021", func(ctx context.Context) error {
		return nil
	})

	require.ErrorIs(t, err, store.setErr)
}

func TestLock_ReleaseNotHeld(t *testing.T) {
	store := newMemoryStore()
	locker := newLocker(store, logging.NewNopLogger(), "", time.Minute)

	lock, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)
	store.keys["lock:k"] = "someone-else"

	assert.ErrorIs(t, lock.Release(context.Background()), ErrLockNotHeld)
}
