package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piolab/piobridge/pkg/backend"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, backend.DefaultBaseURL, cfg.Backend.BaseURL)
		assert.Equal(t, 10*time.Second, cfg.Backend.Timeout)
		assert.Zero(t, cfg.Backend.RateLimit)

		assert.Empty(t, cfg.Bridge.UnitFilter)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "structured", cfg.Logging.Profile)

		assert.True(t, cfg.Health.Enabled)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
			"bridge": map[string]any{
				"unit_filter": "pioreactor*",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "pioreactor*", cfg.Bridge.UnitFilter)

		// Non-overridden values remain default.
		assert.Equal(t, "structured", cfg.Logging.Profile)
		assert.Equal(t, backend.DefaultBaseURL, cfg.Backend.BaseURL)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("PIOBRIDGE_PORT", "3000")
		t.Setenv("PIOBRIDGE_LOG_LEVEL", "warn")
		t.Setenv("PIOBRIDGE_BACKEND_URL", "http://pioreactor.local/api")
		t.Setenv("PIOBRIDGE_UNIT_FILTER", "rig-*")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, "http://pioreactor.local/api", cfg.Backend.BaseURL)
		assert.Equal(t, "rig-*", cfg.Bridge.UnitFilter)
	})

	t.Run("CanonicalEnvNames", func(t *testing.T) {
		t.Setenv("PIOBRIDGE_SERVER_PORT", "3100")
		t.Setenv("PIOBRIDGE_BACKEND_BASE_URL", "http://leader.local/api")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3100, cfg.Server.Port)
		assert.Equal(t, "http://leader.local/api", cfg.Backend.BaseURL)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		t.Setenv("PIOBRIDGE_PORT", "4000")

		overrides := map[string]any{
			"server": map[string]any{
				"port": 5000,
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		// Runtime override beats env var.
		assert.Equal(t, 5000, cfg.Server.Port)
	})
}

func TestDurationParsing(t *testing.T) {
	ctx := context.Background()

	t.Setenv("PIOBRIDGE_READ_TIMEOUT", "45s")
	t.Setenv("PIOBRIDGE_SHUTDOWN_TIMEOUT", "5m")
	t.Setenv("PIOBRIDGE_BACKEND_TIMEOUT", "3s")

	cfg, err := Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 3*time.Second, cfg.Backend.Timeout)
}

func TestGetConfig(t *testing.T) {
	ctx := context.Background()

	cfg, err := Load(ctx)
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
	assert.Equal(t, cfg.Logging.Level, retrieved.Logging.Level)
}

func TestConfigReload(t *testing.T) {
	ctx := context.Background()

	cfg1, err := Load(ctx)
	require.NoError(t, err)
	initialPort := cfg1.Server.Port

	overrides := map[string]any{
		"server": map[string]any{
			"port": initialPort + 1000,
		},
	}

	cfg2, err := Load(ctx, overrides)
	require.NoError(t, err)
	assert.Equal(t, initialPort+1000, cfg2.Server.Port)

	// GetConfig reflects the latest load.
	current := GetConfig()
	require.NotNil(t, current)
	assert.Equal(t, cfg2.Server.Port, current.Server.Port)
}
