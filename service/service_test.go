package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-cache/config"
	"github.com/saiset-co/sai-cache/types"
)

func testConfig() *types.ServiceConfig {
	cfg := config.NewLoader().Defaults()
	cfg.Logger.Level = "error"
	cfg.Metrics.Enabled = true
	cfg.Admin.Enabled = true
	cfg.Admin.Port = 0
	return cfg
}

func startService(t *testing.T, svc *Service) <-chan error {
	t.Helper()

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Start()
	}()

	require.Eventually(t, svc.IsRunning, 5*time.Second, 10*time.Millisecond)
	return errCh
}

func TestNewService_MissingConfig(t *testing.T) {
	_, err := NewService(context.Background(), "")
	assert.ErrorIs(t, err, types.ErrConfigNotFound)

	_, err = NewService(context.Background(), filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)

	_, err = NewServiceFromConfig(context.Background(), nil)
	assert.ErrorIs(t, err, types.ErrConfigIsNil)
}

func TestService_StartStop(t *testing.T) {
	svc, err := NewServiceFromConfig(context.Background(), testConfig())
	require.NoError(t, err)

	errCh := startService(t, svc)

	require.NotNil(t, svc.Cache())
	assert.True(t, svc.Cache().IsRunning())
	assert.NotEmpty(t, svc.AdminAddr())

	svc.Cache().Set("greeting", "hello")
	value, ok := svc.Cache().Get("greeting")
	require.True(t, ok)
	assert.Equal(t, "hello", value)

	assert.ErrorIs(t, svc.Start(), types.ErrServiceIsRunning)

	require.NoError(t, svc.Stop())

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("service did not stop")
	}

	assert.False(t, svc.IsRunning())
	assert.False(t, svc.Cache().IsRunning())
	assert.ErrorIs(t, svc.Stop(), types.ErrServiceIsNotRunning)
}

func TestService_StopsOnParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := testConfig()
	cfg.Admin.Enabled = false
	cfg.Metrics.Enabled = false

	svc, err := NewServiceFromConfig(ctx, cfg)
	require.NoError(t, err)

	errCh := startService(t, svc)
	assert.Empty(t, svc.AdminAddr())

	cancel()

	select {
	case <-svc.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("service did not observe context cancellation")
	}

	assert.NoError(t, <-errCh)
}

func TestNewService_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	data := []byte(`
name: file-cache
version: 0.1.0
logger:
  level: error
cache:
  max_entries: 10
  default_ttl: 1m
  default_namespace: app
  sweep_interval: 5m
storage:
  type: none
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	svc, err := NewService(context.Background(), path)
	require.NoError(t, err)

	errCh := startService(t, svc)

	stats := svc.Cache().Stats()
	assert.Equal(t, 10, stats.MaxEntries)

	require.NoError(t, svc.Stop())
	assert.NoError(t, <-errCh)
}

func TestNewService_UnknownStorage(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Type = "tape"

	_, err := NewServiceFromConfig(context.Background(), cfg)
	assert.ErrorIs(t, err, types.ErrStorageTypeUnknown)
}
