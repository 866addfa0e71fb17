package pgstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/dmitrymomot/faceswap/pkg/pg"
	"github.com/dmitrymomot/faceswap/store/pgstore"
	"github.com/dmitrymomot/faceswap/store/storetest"
)

func TestContract(t *testing.T) {
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("faceswap"),
		tcpostgres.WithUsername("faceswap"),
		tcpostgres.WithPassword("faceswap"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := pg.Config{
		ConnectionString:  dsn,
		MaxOpenConns:      20,
		MaxIdleConns:      2,
		HealthCheckPeriod: time.Minute,
		MaxConnIdleTime:   time.Minute,
		MaxConnLifetime:   time.Hour,
		RetryAttempts:     5,
		RetryInterval:     time.Second,
		MigrationsTable:   "schema_migrations",
	}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Healthcheck(pool)(ctx))
	require.NoError(t, pgstore.Migrate(ctx, pool, cfg, nil))
	// Re-running finds nothing pending.
	require.NoError(t, pgstore.Migrate(ctx, pool, cfg, nil))

	store := pgstore.New(pool)
	storetest.Run(t, func(*testing.T) storetest.Stores {
		return storetest.Stores{Users: store, Attempts: store, Subscriptions: store}
	})
}
