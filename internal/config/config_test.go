package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, InferenceWasm, cfg.InferenceMode)
	assert.Equal(t, "drop", cfg.Backpressure)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, time.Duration(0), cfg.RoomGCInterval)
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, "data", cfg.Store.Dir)
	assert.Equal(t, "http", cfg.Scheme())
}

func TestLoadFileOverrides(t *testing.T) {
	p := writeConfig(t, `
port: 9100
inference_mode: server
backpressure: kick
notify_peer_leave: true
room_gc_interval: 30s
store:
  driver: redis
  redis_prefix: bench
`)
	cfg, err := LoadFile(p)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, InferenceServer, cfg.InferenceMode)
	assert.Equal(t, "kick", cfg.Backpressure)
	assert.True(t, cfg.NotifyPeerLeave)
	assert.Equal(t, 30*time.Second, cfg.RoomGCInterval)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "bench", cfg.Store.RedisPrefix)
}

func TestLoadFileEnvOverride(t *testing.T) {
	t.Setenv("DETECTBENCH_PORT", "9200")
	t.Setenv("DETECTBENCH_STORE_DRIVER", "postgres")
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestLoadFileRejectsBadValues(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "inference_mode: gpu\n"))
	assert.Error(t, err)

	_, err = LoadFile(writeConfig(t, "backpressure: block\n"))
	assert.Error(t, err)

	_, err = LoadFile(writeConfig(t, "https: true\n"))
	assert.Error(t, err)
}
