// Package runlock keeps two dispatcher runs from overlapping.
package runlock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Release gives a held lock back.
type Release func(ctx context.Context) error

// Lock hands out at most one holder per key.
type Lock interface {
	// TryAcquire returns acquired=false, without error, when another holder
	// has the key.
	TryAcquire(ctx context.Context, key string) (release Release, acquired bool, err error)
}

// NoopLock always grants the lock. Used when no Redis is configured.
type NoopLock struct{}

func (NoopLock) TryAcquire(ctx context.Context, key string) (Release, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}

// Only the token that set the key may delete it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a single-instance SET NX lock with a TTL. The TTL bounds
// how long a crashed holder blocks later runs.
type RedisLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLock connects using a redis:// URL.
func NewRedisLock(ctx context.Context, redisURL string, ttl time.Duration) (*RedisLock, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisLock{client: client, ttl: ttl}, nil
}

func (l *RedisLock) TryAcquire(ctx context.Context, key string) (Release, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}

func (l *RedisLock) Close() error {
	return l.client.Close()
}
