package locker

import (
	"context"
	"errors"
)

// ErrLockTimeout is returned when the lock could not be taken before ctx ended.
var ErrLockTimeout = errors.New("locker: timed out waiting for lock")

// ReleaseFunc releases a held lock. It is safe to call more than once.
type ReleaseFunc func()

// Locker grants exclusive access per key.
type Locker interface {
	Lock(ctx context.Context, key string) (ReleaseFunc, error)
}
