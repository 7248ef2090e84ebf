package oauth2

import (
	"context"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	redsyncredis "github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"restify/internal/common/errors"
	"restify/internal/common/logging"
)

// LockKeyPrefix prefixes the redis keys of grant locks.
const LockKeyPrefix = "restify:oauth2:lock:"

const (
	defaultLockExpiry = 2 * time.Minute
	lockRetryDelay    = 100 * time.Millisecond
	unlockTimeout     = 5 * time.Second
)

// Locker serializes grant flows of the same context across processes sharing a store.
// The returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context, name string) (func(), error)
}

// RedisLocker is a Locker backed by the Redlock algorithm.
type RedisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
	logger logging.Logger
}

// NewRedisLocker creates a locker on client. A zero expiry uses two minutes, long
// enough for an interactive consent.
func NewRedisLocker(client goredis.UniversalClient, expiry time.Duration) *RedisLocker {
	if expiry <= 0 {
		expiry = defaultLockExpiry
	}
	return &RedisLocker{
		rs:     redsync.New(redsyncredis.NewPool(client)),
		expiry: expiry,
		logger: logging.GetGlobalLogger(),
	}
}

// Lock blocks until the lock for name is held or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, name string) (func(), error) {
	mutex := l.rs.NewMutex(LockKeyPrefix+name,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(lockTries(l.expiry)),
		redsync.WithRetryDelay(lockRetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.InternalError("failed to acquire grant lock", err).WithContext("context", name)
	}

	return func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); err != nil || !ok {
			l.logger.Warn("Grant lock expired before release",
				logging.Field{Key: "context", Value: name},
				logging.Err(err),
			)
		}
	}, nil
}

// lockTries keeps a waiter retrying for one full expiry, so it outlasts a
// holder that is waiting on consent and then restores what the holder stored.
func lockTries(expiry time.Duration) int {
	return int(expiry/lockRetryDelay) + 1
}

type nopLocker struct{}

func (nopLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}
