package storage

import (
	"context"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const lockKeyPrefix = "guardian:lock:"

// LocalLocker serialises callers within one process with a mutex per key.
// Entries are reference counted and dropped when the last holder leaves.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	mu   sync.Mutex
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}()

	lk.mu.Lock()
	defer lk.mu.Unlock()
	return fn(ctx)
}

// ErrLockLost is returned when a held lock could not be extended before it expired.
var ErrLockLost = errors.New("lock lost while held")

// RedisLockOptions configures the RedLock mutex.
type RedisLockOptions struct {
	Expiry time.Duration
	// ExtendInterval defaults to a third of Expiry.
	ExtendInterval time.Duration
	Tries          int
	RetryDelay     time.Duration
}

func DefaultRedisLockOptions() RedisLockOptions {
	return RedisLockOptions{
		Expiry:     5 * time.Minute,
		Tries:      32,
		RetryDelay: 250 * time.Millisecond,
	}
}

func (o RedisLockOptions) extendInterval() time.Duration {
	if o.ExtendInterval > 0 && o.ExtendInterval < o.Expiry {
		return o.ExtendInterval
	}
	return o.Expiry / 3
}

// RedisLocker serialises callers across processes with a RedLock mutex per key.
// The mutex is extended while fn runs; if an extension fails fn's context is
// cancelled with ErrLockLost as its cause.
type RedisLocker struct {
	rs   *redsync.Redsync
	opts RedisLockOptions
}

func NewRedisLocker(client redis.UniversalClient, opts RedisLockOptions) *RedisLocker {
	pool := goredis.NewPool(client)
	return &RedisLocker{rs: redsync.New(pool), opts: opts}
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	mutex := l.rs.NewMutex(
		lockKeyPrefix+key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return errors.Wrapf(err, "failed to acquire lock %s", key)
	}

	held, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		l.keepAlive(held, mutex, key, done, cancel)
	}()

	defer func() {
		close(done)
		<-stopped
		cancel(nil)
		// the caller's context may be done by now; release regardless
		if ok, err := mutex.UnlockContext(context.Background()); !ok || err != nil {
			log.Error().Err(err).Str("key", key).Bool("ok", ok).Msg("Failed to release lock")
		}
	}()

	err := fn(held)
	if errors.Is(context.Cause(held), ErrLockLost) {
		if err == nil {
			err = ErrLockLost
		}
		return errors.Wrapf(err, "lock %s lost", key)
	}
	return err
}

func (l *RedisLocker) keepAlive(ctx context.Context, mutex *redsync.Mutex, key string, done <-chan struct{}, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(l.opts.extendInterval())
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ok, err := mutex.ExtendContext(context.Background()); !ok || err != nil {
				log.Error().Err(err).Str("key", key).Bool("ok", ok).Msg("Failed to extend lock, cancelling guarded work")
				cancel(ErrLockLost)
				return
			}
		}
	}
}
