package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-cache/logger"
	"github.com/saiset-co/sai-cache/metrics"
	"github.com/saiset-co/sai-cache/types"
)

var errUnavailable = errors.New("store unavailable")

type failingStore struct{}

func (failingStore) GetItem(string) (string, bool, error) { return "", false, errUnavailable }
func (failingStore) SetItem(string, string) error         { return errUnavailable }
func (failingStore) RemoveItem(string) error              { return errUnavailable }
func (failingStore) Keys(string) ([]string, error)        { return nil, errUnavailable }
func (failingStore) Close() error                         { return nil }
func (failingStore) Ping() error                          { return errUnavailable }

type panickingStore struct{}

func (panickingStore) GetItem(string) (string, bool, error) { panic("get") }
func (panickingStore) SetItem(string, string) error         { panic("set") }
func (panickingStore) RemoveItem(string) error              { panic("remove") }
func (panickingStore) Keys(string) ([]string, error)        { panic("keys") }
func (panickingStore) Close() error                         { return nil }

func TestBrokenStores_DegradeToVolatile(t *testing.T) {
	tests := []struct {
		name  string
		store types.PersistentStore
	}{
		{name: "failing", store: failingStore{}},
		{name: "panicking", store: panickingStore{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			m := newTestManager(t, tt.store, clock)

			m.Set("k", "v", WithNamespace("ns"))
			value, found := m.Get("k", WithNamespace("ns"))
			require.True(t, found)
			assert.Equal(t, "v", value)

			assert.False(t, m.Has("missing"))

			m.Remove("k", WithNamespace("ns"))
			assert.False(t, m.Has("k", WithNamespace("ns")))

			m.Set("short", 1, WithTTL(1))
			clock.Advance(DefaultTTL)
			assert.Equal(t, 1, m.ClearExpired())

			m.Set("a", 1, WithNamespace("gone"))
			m.ClearNamespace("gone")
			assert.False(t, m.Has("a", WithNamespace("gone")))

			value, err := m.GetOrGenerate(context.Background(), "gen", func(context.Context) (interface{}, error) {
				return "fresh", nil
			})
			require.NoError(t, err)
			assert.Equal(t, "fresh", value)

			require.NoError(t, m.Start())
			require.NoError(t, m.Stop())

			assert.Greater(t, m.Stats().PersistenceFailures, uint64(0))
		})
	}
}

func TestPersistenceFailures_AreCountedInMetrics(t *testing.T) {
	metricsManager := metrics.NewMemoryMetrics(logger.NewNop(), &types.MetricsConfig{Enabled: true, Type: "memory"})

	m, err := NewManager(context.Background(), testCacheConfig(), nil, failingStore{}, logger.NewNop(), metricsManager)
	require.NoError(t, err)

	m.Set("k", "v")

	setFailures := metricsManager.Counter("cache_persistence_failures_total", map[string]string{"operation": "set"})
	assert.Equal(t, float64(1), setFailures.Get())
}

func TestStorageHealthCheck(t *testing.T) {
	healthy := newTestManager(t, newMemoryStore(t), newFakeClock())
	assert.Equal(t, types.StatusHealthy, healthy.checkStorage(context.Background()).Status)

	broken := newTestManager(t, failingStore{}, newFakeClock())
	check := broken.checkStorage(context.Background())
	assert.Equal(t, types.StatusUnhealthy, check.Status)
	assert.Contains(t, check.Message, errUnavailable.Error())

	assert.Equal(t, types.StatusUnhealthy, healthy.checkCache(context.Background()).Status)
	require.NoError(t, healthy.Start())
	defer func() { _ = healthy.Stop() }()
	assert.Equal(t, types.StatusHealthy, healthy.checkCache(context.Background()).Status)
}
