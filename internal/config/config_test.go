package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, int64(1000), cfg.MaxConnections)
	assert.Equal(t, 20, cfg.MaxConnectionsPerIP)
	assert.Equal(t, 10.0, cfg.ConnectionsPerSec)
	assert.Equal(t, 10, cfg.ConnectionBurst)
	assert.Equal(t, time.Minute, cfg.OrphanSweepInterval)
}

func TestLoadRequiresRedisURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	_, err := Load()
	assert.ErrorContains(t, err, "REDIS_URL")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("PORT", "9999")
	t.Setenv("MAX_CONNECTIONS", "50")
	t.Setenv("ORPHAN_SWEEP_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, int64(50), cfg.MaxConnections)
	assert.Equal(t, 30*time.Second, cfg.OrphanSweepInterval)
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("MAX_CONNECTIONS", "lots")

	_, err := Load()
	assert.ErrorContains(t, err, "MAX_CONNECTIONS")
}

func TestLoadRejectsNonPositiveLimits(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("MAX_CONNECTIONS", "0")

	_, err := Load()
	assert.ErrorContains(t, err, "MAX_CONNECTIONS must be positive")
}
