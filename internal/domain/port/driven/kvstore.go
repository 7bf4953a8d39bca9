package driven

import (
	"context"
	"errors"
	"time"
)

// ErrLockHeld is returned by Locker.Acquire when another holder owns the key.
var ErrLockHeld = errors.New("lock already held")

// Locker defines the driven port for TTL-based mutual exclusion.
type Locker interface {
	// Acquire takes the lock if it is free and returns a lease token that
	// identifies this holder. The lock expires on its own after ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Release removes the lock regardless of its holder.
	Release(ctx context.Context, key string) error

	// ReleaseIfHeld removes the lock only while it still carries token.
	ReleaseIfHeld(ctx context.Context, key, token string) (bool, error)

	// IsHeld reports whether anyone currently holds the lock.
	IsHeld(ctx context.Context, key string) (bool, error)
}

// Cache defines the driven port for a TTL key/value cache of JSON values.
type Cache interface {
	// Get decodes the cached value into dest and reports whether it existed.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}
