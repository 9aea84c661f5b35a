package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves to dir so no stray .env is picked up
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sensors/+/+/+", cfg.MQTTTopicSensors)
	assert.Equal(t, "responses/{unit_id}", cfg.MQTTTopicPlan)
	assert.Equal(t, "status/{unit_id}", cfg.MQTTTopicStatus)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 4, cfg.InferenceWorkers)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, 300*time.Second, cfg.CacheTTL)
	assert.Equal(t, 30*time.Second, cfg.InferenceTimeout)
	assert.Equal(t, 5, cfg.MaxConcurrentOptimizations)
	assert.Equal(t, "balanced", cfg.DefaultStrategy)
	assert.Equal(t, 24, cfg.TimeHorizonHours)
	assert.Equal(t, time.Minute, cfg.OptimizeInterval)
	assert.Empty(t, cfg.ClickHouseAddr)
	assert.Empty(t, cfg.PostgresDSN)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CACHE_TTL", "2m")
	t.Setenv("INFERENCE_WORKERS", "8")
	t.Setenv("CACHE_ENABLED", "false")
	t.Setenv("DEFAULT_STRATEGY", "energy_efficient")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 8, cfg.InferenceWorkers)
	assert.False(t, cfg.CacheEnabled)
	assert.Equal(t, "energy_efficient", cfg.DefaultStrategy)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "carbon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("REDIS_ADDR: localhost:6379\nTIME_HORIZON_HOURS: 48\n"), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TIME_HORIZON_HOURS", "12")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 12, cfg.TimeHorizonHours)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("INFERENCE_WORKERS", "0")

	_, err := Load()
	assert.ErrorContains(t, err, "INFERENCE_WORKERS")
}

func TestLoadMissingConfigFile(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_FILE", "does-not-exist.yaml")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownDefaultStrategy(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DEFAULT_STRATEGY", "balanaced")

	_, err := Load()
	assert.ErrorContains(t, err, "DEFAULT_STRATEGY")
}

func TestLoadAcceptsDefaultStrategyFromStrategyFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`night_shift:
  priority_weights:
    efficiency: 0.2
    energy_savings: 0.7
    maintenance_risk: 0.1
`), 0o644))
	t.Setenv("STRATEGY_FILE", path)
	t.Setenv("DEFAULT_STRATEGY", "night_shift")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Contains(t, cfg.Strategies.Names(), "night_shift")
	assert.Contains(t, cfg.Strategies.Names(), "balanced")
}
