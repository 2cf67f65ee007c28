package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "worker.db", cfg.Database)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, CompilerConfig{Binary: "compiler", SourceDir: "/app/source", TargetDir: "/app/tests"}, cfg.Compiler)
	assert.Equal(t, "delegator", cfg.Delegator.Binary)
	assert.Equal(t, 1, cfg.Worker.Concurrency)
	assert.Equal(t, DeliveryConfig{
		MaxAttempts:     3,
		RetryDelay:      time.Second,
		RetryMultiplier: 2,
		Timeout:         10 * time.Second,
	}, cfg.Delivery)
	assert.Equal(t, 30*time.Second, cfg.TimeoutCheckPeriod)
	assert.Equal(t, time.Second, cfg.JobCompletedCheckPeriod)
	assert.Equal(t, APIConfig{RateLimit: 20, RateBurst: 40}, cfg.API)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WORKER_DATABASE", "/var/lib/worker.db")
	t.Setenv("WORKER_DELIVERY_MAX_ATTEMPTS", "5")
	t.Setenv("WORKER_DELIVERY_RETRY_DELAY", "250ms")
	t.Setenv("WORKER_COMPILER_SOURCE_DIR", "/src")
	t.Setenv("WORKER_METRICS_ENABLED", "false")

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/worker.db", cfg.Database)
	assert.Equal(t, 5, cfg.Delivery.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Delivery.RetryDelay)
	assert.Equal(t, "/src", cfg.Compiler.SourceDir)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9090"
worker:
  concurrency: 4
timeout_check:
  period: 5s
`), 0o644))

	v := New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.TimeoutCheckPeriod)
	assert.Equal(t, "worker.db", cfg.Database, "unset keys keep defaults")
}

func TestLoad_MissingConfigFile(t *testing.T) {
	v := New()
	v.SetConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load(v)
	assert.ErrorContains(t, err, "read config file")
}

func TestLoad_Invalid(t *testing.T) {
	v := New()
	v.Set("worker.concurrency", 0)
	v.Set("delivery.retry_multiplier", 0.5)
	v.Set("compiler.binary", " ")

	_, err := Load(v)
	require.Error(t, err)
	assert.ErrorContains(t, err, "worker.concurrency must be positive")
	assert.ErrorContains(t, err, "delivery.retry_multiplier must be at least 1")
	assert.ErrorContains(t, err, "compiler.binary must not be empty")
}
