package locker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anthanhphan/statement-pipeline/internal/pipeline/port"
)

type lease struct {
	token   uint64
	expires time.Time
}

// Local holds leases in memory. Expired leases can be taken over.
type Local struct {
	mu     sync.Mutex
	leases map[string]lease
	next   uint64
	now    func() time.Time
}

// Ensure Local implements port.Locker.
var _ port.Locker = (*Local)(nil)

// NewLocal creates an in-process locker. A nil clock means time.Now.
func NewLocal(now func() time.Time) *Local {
	if now == nil {
		now = time.Now
	}
	return &Local{leases: make(map[string]lease), now: now}
}

func (l *Local) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.leases[key]; ok && now.Before(held.expires) {
		return nil, fmt.Errorf("%w: %s", port.ErrLockHeld, key)
	}
	l.next++
	token := l.next
	l.leases[key] = lease{token: token, expires: now.Add(ttl)}

	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if held, ok := l.leases[key]; ok && held.token == token {
			delete(l.leases, key)
		}
		return nil
	}
	return release, nil
}
