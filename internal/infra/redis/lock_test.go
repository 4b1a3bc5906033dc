package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestRedisClient(t *testing.T) *goredis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return rdb
}

func TestRedisLockerAcquireRelease(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)
	locker, err := NewRedisLocker(rdb)
	if err != nil {
		t.Fatalf("NewRedisLocker() error = %v", err)
	}

	acquired, err := locker.Acquire(context.Background(), "scheduler", time.Minute)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !acquired {
		t.Fatal("first acquire should succeed")
	}

	// Second holder is rejected while the lease is live.
	other, err := NewRedisLocker(rdb)
	if err != nil {
		t.Fatalf("NewRedisLocker() error = %v", err)
	}
	acquired, err = other.Acquire(context.Background(), "scheduler", time.Minute)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if acquired {
		t.Fatal("second acquire should fail while lock is held")
	}

	if err := locker.Release(context.Background(), "scheduler"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	acquired, err = other.Acquire(context.Background(), "scheduler", time.Minute)
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	if !acquired {
		t.Fatal("acquire after release should succeed")
	}
}

func TestRedisLockerReleaseWithoutHold(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)
	locker, err := NewRedisLocker(rdb)
	if err != nil {
		t.Fatalf("NewRedisLocker() error = %v", err)
	}

	if err := locker.Release(context.Background(), "scheduler"); err == nil {
		t.Fatal("releasing a lock that is not held should error")
	}
}

func TestRedisLockerReleaseDoesNotStealTakenOverLease(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)
	locker, err := NewRedisLocker(rdb)
	if err != nil {
		t.Fatalf("NewRedisLocker() error = %v", err)
	}

	if _, err := locker.Acquire(context.Background(), "scheduler", time.Minute); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// Simulate lease expiry plus takeover by another replica.
	if err := rdb.Set(context.Background(), "scheduler", "other-token", time.Minute).Err(); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := locker.Release(context.Background(), "scheduler"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	value, err := rdb.Get(context.Background(), "scheduler").Result()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if value != "other-token" {
		t.Fatalf("lock value = %q, want other-token (takeover lease must survive)", value)
	}
}

func TestRedisLockerWaitRetriesUntilAcquired(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	holder, err := NewRedisLocker(rdb)
	if err != nil {
		t.Fatalf("NewRedisLocker() error = %v", err)
	}
	if _, err := holder.Acquire(context.Background(), "scheduler", time.Minute); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	attempts := 0
	waiter, err := newRedisLocker(rdb, func(ctx context.Context, d time.Duration) error {
		attempts++
		if attempts == 2 {
			if err := holder.Release(ctx, "scheduler"); err != nil {
				t.Fatalf("Release() error = %v", err)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("newRedisLocker() error = %v", err)
	}

	if err := waiter.Wait(context.Background(), "scheduler", time.Minute); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if attempts < 2 {
		t.Fatalf("attempts = %d, want >= 2", attempts)
	}
}
