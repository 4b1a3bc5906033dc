package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hydrex-protocol/bribe-batcher/internal/locking"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL  = 30 * time.Second
	lockBackoffStep = 25 * time.Millisecond
	lockBackoffMax  = 250 * time.Millisecond
)

// releaseScript deletes the lock only when the stored token matches, so an
// expired lease taken over by another replica is never released by the old
// owner.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ locking.Locker = (*RedisLocker)(nil)

// RedisLocker is a lease-based distributed mutex backed by SET NX PX plus a
// compare-and-delete release script.
type RedisLocker struct {
	client *goredis.Client
	sleep  func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisLocker(client *goredis.Client) (*RedisLocker, error) {
	return newRedisLocker(client, sleepWithContext)
}

func newRedisLocker(client *goredis.Client, sleepFn func(ctx context.Context, d time.Duration) error) (*RedisLocker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisLocker{
		client: client,
		sleep:  sleepFn,
		tokens: make(map[string]string),
	}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l == nil || l.client == nil {
		return false, fmt.Errorf("locker is not initialized")
	}
	if strings.TrimSpace(key) == "" {
		return false, fmt.Errorf("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if ctx == nil {
		ctx = context.Background()
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %q: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()
	return true, nil
}

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return fmt.Errorf("locker is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	l.mu.Lock()
	token, ok := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()

	if !ok {
		return fmt.Errorf("lock %q is not held", key)
	}

	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && err != goredis.Nil {
		return fmt.Errorf("failed to release lock %q: %w", key, err)
	}
	return nil
}

func (l *RedisLocker) Wait(ctx context.Context, key string, ttl time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := lockBackoffStep
	for {
		acquired, err := l.Acquire(ctx, key, ttl)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}

		if err := l.sleep(ctx, backoff); err != nil {
			return err
		}

		backoff += lockBackoffStep
		if backoff > lockBackoffMax {
			backoff = lockBackoffMax
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
