package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 64, cfg.SendQueueSize)
	assert.Equal(t, int64(4096), cfg.MaxConnections)
	assert.Equal(t, 32, cfg.MaxConnectionsPerIP)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SEND_QUEUE_SIZE", "128")
	t.Setenv("MAX_CONNECTIONS", "100")
	t.Setenv("ALLOWED_ORIGINS", "http://a.lab, http://b.lab ,")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 128, cfg.SendQueueSize)
	assert.Equal(t, int64(100), cfg.MaxConnections)
	assert.Equal(t, []string{"http://a.lab", "http://b.lab"}, cfg.AllowedOrigins)
	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Setenv("SEND_QUEUE_SIZE", "not a number")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsZeroQueue(t *testing.T) {
	t.Setenv("SEND_QUEUE_SIZE", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsZeroConnectionLimits(t *testing.T) {
	t.Setenv("MAX_CONNECTIONS", "0")
	_, err := Load()
	assert.Error(t, err)
}
