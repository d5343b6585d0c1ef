package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertSerialized(t *testing.T, locker Locker) {
	t.Helper()
	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), "batch:b1", func(ctx context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive)
}

func TestLocalLockerSerializesSameKey(t *testing.T) {
	l := NewLocalLocker()
	assertSerialized(t, l)
	assert.Empty(t, l.locks)
}

func TestLocalLockerIndependentKeys(t *testing.T) {
	l := NewLocalLocker()
	inner := make(chan struct{})

	go func() {
		_ = l.WithLock(context.Background(), "batch:a", func(ctx context.Context) error {
			<-inner
			return nil
		})
	}()

	done := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), "batch:b", func(ctx context.Context) error {
			close(done)
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
	close(inner)
}

func TestLockerPropagatesError(t *testing.T) {
	want := errors.New("boom")
	err := NewLocalLocker().WithLock(context.Background(), "k", func(ctx context.Context) error { return want })
	assert.Equal(t, want, err)
}

func TestRedisLockerSerializesSameKey(t *testing.T) {
	_, client := newTestRedis(t)
	opts := DefaultRedisLockOptions()
	opts.RetryDelay = 5 * time.Millisecond
	opts.Tries = 1000
	assertSerialized(t, NewRedisLocker(client, opts))
}

func TestRedisLockerReleases(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, DefaultRedisLockOptions())

	err := l.WithLock(context.Background(), "request:r1", func(ctx context.Context) error {
		require.True(t, mr.Exists(lockKeyPrefix+"request:r1"))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists(lockKeyPrefix+"request:r1"))
}

func TestRedisLockerExtendsWhileHeld(t *testing.T) {
	mr, client := newTestRedis(t)
	opts := RedisLockOptions{Expiry: time.Second, ExtendInterval: 100 * time.Millisecond, Tries: 1, RetryDelay: time.Millisecond}
	l := NewRedisLocker(client, opts)
	key := lockKeyPrefix + "request:r1"

	err := l.WithLock(context.Background(), "request:r1", func(ctx context.Context) error {
		// run past the expiry twice over; the extender resets the ttl in between
		for i := 0; i < 4; i++ {
			mr.FastForward(600 * time.Millisecond)
			time.Sleep(300 * time.Millisecond)
		}
		require.True(t, mr.Exists(key))
		require.NoError(t, ctx.Err())

		competing := l.WithLock(context.Background(), "request:r1", func(ctx context.Context) error {
			t.Error("second holder entered the critical section")
			return nil
		})
		assert.Error(t, competing)
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists(key))
}

func TestRedisLockerCancelsWorkWhenLockLost(t *testing.T) {
	mr, client := newTestRedis(t)
	opts := RedisLockOptions{Expiry: time.Second, ExtendInterval: 50 * time.Millisecond, Tries: 1, RetryDelay: time.Millisecond}
	l := NewRedisLocker(client, opts)

	err := l.WithLock(context.Background(), "batch:b1", func(ctx context.Context) error {
		mr.FastForward(2 * time.Second)
		require.False(t, mr.Exists(lockKeyPrefix+"batch:b1"))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			t.Fatal("guarded work was not cancelled after the lock expired")
			return nil
		}
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
