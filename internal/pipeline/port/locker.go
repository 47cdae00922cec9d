package port

import (
	"context"
	"time"
)

//go:generate mockgen -destination=../service/mocks/locker_mock.go -package=mocks -source=locker.go

// Locker grants short-lived exclusive ownership of a key.
type Locker interface {
	// TryLock acquires key for ttl without waiting. It returns ErrLockHeld when the
	// key is owned elsewhere. The returned func releases the lock.
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}
