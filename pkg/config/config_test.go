package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadHeartbeatDefaults(t *testing.T) {
	cfg, err := LoadHeartbeat(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "localhost:12211", cfg.ListenAddr)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 30*time.Second, cfg.SilenceThreshold)
	assert.Equal(t, 10*time.Second, cfg.SweepInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.TracingEnabled)
	assert.Equal(t, "heartbeatd", cfg.ServiceName)
}

func TestLoadHeartbeatFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	content := "listen_addr: 127.0.0.1:9999\nsilence_threshold: 1m\nlog_level: debug\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))

	t.Setenv("HEARTBEAT_LOG_LEVEL", "warn")
	t.Setenv("HEARTBEAT_METRICS_ADDR", "127.0.0.1:9100")

	cfg, err := LoadHeartbeat(dir)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.ListenAddr)
	assert.Equal(t, time.Minute, cfg.SilenceThreshold)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
}

func TestLoadHeartbeatRejectsInvalidValues(t *testing.T) {
	t.Setenv("HEARTBEAT_SWEEP_INTERVAL", "0s")

	_, err := LoadHeartbeat(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweep_interval")
}

func TestLoadHeartbeatMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("listen_addr: [unterminated"), 0o600))

	_, err := LoadHeartbeat(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}
