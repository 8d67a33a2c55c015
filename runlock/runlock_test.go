package runlock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopLock(t *testing.T) {
	var l Lock = NoopLock{}
	release, ok, err := l.TryAcquire(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, release(context.Background()))

	_, ok, _ = l.TryAcquire(context.Background(), "k")
	assert.True(t, ok)
}

func TestRedisLock(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()

	l, err := NewRedisLock(ctx, redisURL, time.Minute)
	require.NoError(t, err)
	defer l.Close()

	key := "test:runlock:" + uuid.NewString()

	release, ok, err := l.TryAcquire(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryAcquire(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	require.NoError(t, release(ctx))

	release, ok, err = l.TryAcquire(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, release(ctx))
}

func TestNewRedisLock_BadURL(t *testing.T) {
	_, err := NewRedisLock(context.Background(), "://nope", time.Minute)
	assert.Error(t, err)
}
