package redis

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	suberrors "github.com/Ramsey-B/subdivisions/pkg/errors"
	"github.com/Ramsey-B/subdivisions/pkg/metrics"
)

var (
	// ErrLockNotAcquired is returned when a lock cannot be acquired
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when trying to release a lock not held
	ErrLockNotHeld = errors.New("lock not held")
)

// deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// lockStore is the part of the Redis API the locker needs.
type lockStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

// Lock represents a held distributed lock
type Lock struct {
	store  lockStore
	logger ectologger.Logger
	key    string
	value  string
}

// Locker serializes reconciliation runs across processes.
type Locker struct {
	store     lockStore
	logger    ectologger.Logger
	keyPrefix string
	ttl       time.Duration
}

// NewLocker creates a Locker whose locks expire after ttl if never released.
func NewLocker(client *Client, keyPrefix string, ttl time.Duration) *Locker {
	return newLocker(client.rdb, client.logger, keyPrefix, ttl)
}

func newLocker(store lockStore, logger ectologger.Logger, keyPrefix string, ttl time.Duration) *Locker {
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	return &Locker{
		store:     store,
		logger:    logger,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// Acquire attempts to acquire a lock once
func (l *Locker) Acquire(ctx context.Context, key string) (*Lock, error) {
	lockKey := l.keyPrefix + key
	lockValue := uuid.New().String()

	ok, err := l.store.SetNX(ctx, lockKey, lockValue, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.logger.WithContext(ctx).Debugf("Acquired lock: %s", key)

	return &Lock{
		store:  l.store,
		logger: l.logger,
		key:    lockKey,
		value:  lockValue,
	}, nil
}

// Release releases the lock
func (lock *Lock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lock.store, []string{lock.key}, lock.value).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}

	lock.logger.WithContext(ctx).Debugf("Released lock: %s", lock.key)
	return nil
}

// WithLock runs fn while holding the lock for key. A held lock fails fast with a
// RunInProgressError rather than waiting.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lock, err := l.Acquire(ctx, key)
	if errors.Is(err, ErrLockNotAcquired) {
		metrics.LockContention.WithLabelValues(key).Inc()
		l.logger.WithContext(ctx).WithField("key", key).Warn("run lock held by another worker")
		return suberrors.NewRunInProgressError(key, err)
	}
	if err != nil {
		l.logger.WithContext(ctx).WithError(err).WithField("key", key).Error("failed to acquire run lock")
		return err
	}

	defer func() {
		// a fresh context so a cancelled run still releases its lock
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			l.logger.WithContext(ctx).WithError(err).WithField("key", key).Warn("failed to release run lock")
		}
	}()

	return fn(ctx)
}
