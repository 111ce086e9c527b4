package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-cache/types"
)

const sampleConfig = `
name: orders-cache
version: 2.1.0
logger:
  level: debug
cache:
  max_entries: 50
  default_ttl: 90s
  default_namespace: orders
  sweep_interval: 1m
storage:
  type: sqlite
  compress: true
  config:
    path: /tmp/orders.db
admin:
  enabled: true
  port: 9090
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader_LoadFromBytes_MergesDefaults(t *testing.T) {
	cfg, err := NewLoader().LoadFromBytes([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "orders-cache", cfg.Name)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 50, cfg.Cache.MaxEntries)
	assert.Equal(t, 90*time.Second, cfg.Cache.DefaultTTL)
	assert.Equal(t, "orders", cfg.Cache.DefaultNamespace)
	assert.Equal(t, time.Minute, cfg.Cache.SweepInterval)
	assert.Equal(t, "cache:", cfg.Cache.PersistentPrefix)
	assert.True(t, cfg.Cache.Singleflight)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.True(t, cfg.Storage.Compress)
	assert.Equal(t, 1024, cfg.Storage.CompressMinSize)
	assert.True(t, cfg.Admin.Enabled)
	assert.Equal(t, 9090, cfg.Admin.Port)
	assert.Equal(t, "127.0.0.1", cfg.Admin.Host)
	assert.True(t, cfg.Health.Enabled)
}

func TestLoader_LoadFromBytes_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		err     error
	}{
		{name: "broken yaml", content: "cache: [", err: types.ErrConfigParseFailed},
		{name: "zero capacity", content: "cache:\n  max_entries: 0\n", err: types.ErrConfigValidateFailed},
		{name: "negative ttl", content: "cache:\n  default_ttl: -1s\n", err: types.ErrConfigValidateFailed},
		{name: "bad log level", content: "logger:\n  level: loud\n", err: types.ErrConfigValidateFailed},
		{name: "metrics without type", content: "metrics:\n  enabled: true\n  type: \"\"\n", err: types.ErrConfigValidateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadFromBytes([]byte(tt.content))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestLoader_LoadFromFile(t *testing.T) {
	loader := NewLoader()

	_, err := loader.LoadFromFile("")
	assert.ErrorIs(t, err, types.ErrConfigNotFound)

	_, err = loader.LoadFromFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorIs(t, err, types.ErrConfigNotFound)

	cfg, err := loader.LoadFromFile(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "orders-cache", cfg.Name)
}

func TestManager_Values(t *testing.T) {
	manager, err := NewManager(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "orders-cache", manager.GetConfig().Name)
	assert.Equal(t, 50, manager.GetValue("cache.max_entries", 0))
	assert.Equal(t, "/tmp/orders.db", manager.GetValue("storage.config.path", ""))
	assert.Equal(t, "fallback", manager.GetValue("cache.missing", "fallback"))
	assert.Equal(t, "fallback", manager.GetValue("name.deeper", "fallback"))

	var cacheConfig types.CacheConfig
	require.NoError(t, manager.GetAs("cache", &cacheConfig))
	assert.Equal(t, 90*time.Second, cacheConfig.DefaultTTL)
	assert.Equal(t, "orders", cacheConfig.DefaultNamespace)

	var missing types.AdminConfig
	assert.ErrorIs(t, manager.GetAs("nope", &missing), types.ErrConfigNotFound)
}

func TestManager_Reload(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	manager, err := NewManager(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("name: renamed\n"), 0o600))
	require.NoError(t, manager.Load())

	assert.Equal(t, "renamed", manager.GetConfig().Name)
	assert.Equal(t, 100, manager.GetConfig().Cache.MaxEntries)
}

func TestNewManagerFromConfig(t *testing.T) {
	cfg := NewLoader().Defaults()
	manager := NewManagerFromConfig(cfg)

	assert.Same(t, cfg, manager.GetConfig())
	assert.Equal(t, "default", manager.GetValue("cache.default_namespace", ""))
}
