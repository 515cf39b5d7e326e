// Package lock provides the per-username critical section used to keep two
// checkouts for the same user from interleaving.
package lock

import (
	"context"
	"errors"
)

// ErrLocked is returned by Acquire when another checkout holds the lock.
var ErrLocked = errors.New("checkout already in progress")

// ReleaseFunc gives the lock back. It must be safe to call once.
type ReleaseFunc func(ctx context.Context) error

// Locker grants exclusive access per username.
type Locker interface {
	Acquire(ctx context.Context, username string) (ReleaseFunc, error)
}

// Noop never blocks. It is used when per-user serialization is disabled.
type Noop struct{}

// Acquire always succeeds.
func (Noop) Acquire(context.Context, string) (ReleaseFunc, error) {
	return func(context.Context) error { return nil }, nil
}
