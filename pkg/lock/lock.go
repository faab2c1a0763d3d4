package lock

import (
	"context"
	"errors"
)

var (
	ErrClosed          = errors.New("lock manager is closed")
	ErrAlreadyAcquired = errors.New("lock is already being acquired or held by this handle")
)

// Manager creates named locks. Handles created by the same Manager for the
// same name refer to the same lock.
type Manager interface {
	// Create creates an unlocked handle to the lock for name
	Create(ctx context.Context, name string) (DistributedLock, error)
}

// DistributedLock is a handle to a lock that may span multiple processes
type DistributedLock interface {
	// Acquire blocks until the lock is held or ctx is done.
	//
	// The returned channel is closed once the lock is lost, which happens after
	// Unlock, or when the implementation can no longer guarantee exclusivity.
	Acquire(ctx context.Context) (<-chan struct{}, error)

	// Unlock releases the lock if held. It is idempotent.
	Unlock(ctx context.Context) error

	// IsLocked reports whether this handle holds the lock
	IsLocked() bool
}
