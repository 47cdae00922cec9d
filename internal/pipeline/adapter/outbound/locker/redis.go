// Package locker provides build locks: a Redis lease for multi-instance
// deployments and an in-process lease for single-instance runs.
package locker

import (
	"context"
	"fmt"
	"time"

	"github.com/anthanhphan/statement-pipeline/internal/pipeline/port"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still carries the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis holds leases as SET NX PX keys.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// Ensure Redis implements port.Locker.
var _ port.Locker = (*Redis)(nil)

// NewRedis creates a locker that namespaces keys with prefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (l *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	fullKey := l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", port.ErrLockHeld, key)
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err(); err != nil {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}
	return release, nil
}
