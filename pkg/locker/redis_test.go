package locker_test

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/dmitrymomot/faceswap/pkg/locker"
)

func TestRedis(t *testing.T) {
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := goredis.ParseURL(url)
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	l := locker.NewRedis(client, locker.WithLeaseTTL(time.Second), locker.WithRetryInterval(5*time.Millisecond))

	t.Run("exclusive until released", func(t *testing.T) {
		release, err := l.Lock(ctx, "user-1")
		require.NoError(t, err)

		short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err = l.Lock(short, "user-1")
		assert.ErrorIs(t, err, locker.ErrLockTimeout)

		release()
		again, err := l.Lock(ctx, "user-1")
		require.NoError(t, err)
		again()
	})

	t.Run("lease expires", func(t *testing.T) {
		_, err := l.Lock(ctx, "user-2")
		require.NoError(t, err)

		wait, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		release, err := l.Lock(wait, "user-2")
		require.NoError(t, err)
		release()
	})
}
