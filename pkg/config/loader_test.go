package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/faceswap/pkg/config"
)

type limitsConfig struct {
	Free    int `env:"CFGTEST_FREE_LIMIT" envDefault:"1"`
	Monthly int `env:"CFGTEST_MONTHLY_LIMIT" envDefault:"40"`
}

type requiredConfig struct {
	Secret string `env:"CFGTEST_SECRET,required"`
}

type prefixedConfig struct {
	URL string `env:"URL" envDefault:"none"`
}

type fileConfig struct {
	Wallet string `env:"CFGTEST_WALLET"`
}

func TestLoad(t *testing.T) {
	t.Run("reads values and defaults", func(t *testing.T) {
		config.Reset()
		t.Setenv("CFGTEST_MONTHLY_LIMIT", "10")

		cfg, err := config.Load[limitsConfig]()
		require.NoError(t, err)
		assert.Equal(t, 1, cfg.Free)
		assert.Equal(t, 10, cfg.Monthly)
	})

	t.Run("caches the first result", func(t *testing.T) {
		config.Reset()
		t.Setenv("CFGTEST_MONTHLY_LIMIT", "5")
		first, err := config.Load[limitsConfig]()
		require.NoError(t, err)

		t.Setenv("CFGTEST_MONTHLY_LIMIT", "6")
		second, err := config.Load[limitsConfig]()
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, 5, second.Monthly)
	})

	t.Run("missing required value", func(t *testing.T) {
		config.Reset()
		_, err := config.Load[requiredConfig]()
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("prefix is part of the cache key", func(t *testing.T) {
		config.Reset()
		t.Setenv("PRIMARY_URL", "mongodb://primary")
		t.Setenv("REPLICA_URL", "mongodb://replica")

		primary, err := config.Load[prefixedConfig](config.WithPrefix("PRIMARY_"))
		require.NoError(t, err)
		replica, err := config.Load[prefixedConfig](config.WithPrefix("REPLICA_"))
		require.NoError(t, err)

		assert.Equal(t, "mongodb://primary", primary.URL)
		assert.Equal(t, "mongodb://replica", replica.URL)
	})

	t.Run("explicit env file", func(t *testing.T) {
		config.Reset()
		path := filepath.Join(t.TempDir(), "test.env")
		require.NoError(t, os.WriteFile(path, []byte("CFGTEST_WALLET=0xabc\n"), 0o600))
		t.Cleanup(func() { _ = os.Unsetenv("CFGTEST_WALLET") })

		cfg, err := config.Load[fileConfig](config.WithEnvFiles(path))
		require.NoError(t, err)
		assert.Equal(t, "0xabc", cfg.Wallet)
	})

	t.Run("missing explicit env file", func(t *testing.T) {
		config.Reset()
		_, err := config.Load[fileConfig](config.WithEnvFiles(filepath.Join(t.TempDir(), "nope.env")))
		assert.ErrorIs(t, err, config.ErrEnvFile)
	})
}

func TestMustLoad(t *testing.T) {
	config.Reset()
	assert.Panics(t, func() { config.MustLoad[requiredConfig]() })
}
