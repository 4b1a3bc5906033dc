// Package locking defines the mutual-exclusion port used to serialize
// scheduler mutations across replicas.
package locking

import (
	"context"
	"time"
)

// Locker is a lease-based mutex. Acquire is non-blocking; Wait retries with
// backoff until the lock is held or the context ends.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
	Wait(ctx context.Context, key string, ttl time.Duration) error
}

// Noop satisfies Locker for single-replica deployments and tests, where the
// scheduler's in-process mutex is sufficient.
type Noop struct{}

func (Noop) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (Noop) Release(ctx context.Context, key string) error { return nil }

func (Noop) Wait(ctx context.Context, key string, ttl time.Duration) error { return nil }
