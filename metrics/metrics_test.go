package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-cache/logger"
	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

func TestMemoryMetrics_Series(t *testing.T) {
	m := NewMemoryMetrics(logger.NewNop(), &types.MetricsConfig{Labels: map[string]string{"instance": "a"}})

	hits := m.Counter("cache_operations_total", map[string]string{"operation": "get", "result": "hit"})
	hits.Inc()
	hits.Add(2)
	assert.Equal(t, 3.0, m.Counter("cache_operations_total", map[string]string{"result": "hit", "operation": "get"}).Get())

	misses := m.Counter("cache_operations_total", map[string]string{"operation": "get", "result": "miss"})
	assert.Zero(t, misses.Get())

	entries := m.Gauge("cache_volatile_entries", nil)
	entries.Set(10)
	entries.Inc()
	entries.Sub(3)
	entries.Dec()
	assert.Equal(t, 7.0, entries.Get())

	latency := m.Histogram("cache_operation_duration_seconds", []float64{0.1, 0.01, 1}, nil)
	latency.Observe(0.05)
	latency.Observe(2)
	assert.Equal(t, uint64(2), latency.GetCount())
	assert.InDelta(t, 2.05, latency.GetSum(), 1e-9)
}

func TestMemoryMetrics_Export(t *testing.T) {
	m := NewMemoryMetrics(logger.NewNop(), &types.MetricsConfig{Labels: map[string]string{"instance": "a"}})
	m.Counter("b_total", nil).Inc()
	m.Gauge("a_gauge", map[string]string{"kind": "x"}).Set(4)

	data, err := m.GetMetrics()
	require.NoError(t, err)

	var values []types.MetricValue
	require.NoError(t, utils.Unmarshal(data, &values))
	require.Len(t, values, 2)
	assert.Equal(t, "a_gauge", values[0].Name)
	assert.Equal(t, map[string]string{"instance": "a", "kind": "x"}, values[0].Labels)
	assert.Equal(t, "counter", values[1].Type)

	data, err = m.GetStats()
	require.NoError(t, err)

	var stats types.MetricsStats
	require.NoError(t, utils.Unmarshal(data, &stats))
	assert.Equal(t, 2, stats.TotalMetrics)
	assert.Equal(t, 1, stats.CounterMetrics)
}

func TestMemoryMetrics_Lifecycle(t *testing.T) {
	m := NewMemoryMetrics(logger.NewNop(), nil)

	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())
	assert.ErrorIs(t, m.Start(), types.ErrServerAlreadyRunning)
	require.NoError(t, m.Stop())
	assert.ErrorIs(t, m.Stop(), types.ErrServerNotRunning)
}

func TestPrometheusMetrics(t *testing.T) {
	p, err := NewPrometheusMetrics(logger.NewNop(), &types.MetricsConfig{
		Config: map[string]interface{}{"enable_go_metrics": false},
	})
	require.NoError(t, err)

	labels := map[string]string{"operation": "set", "result": "ok"}
	p.Counter("cache_operations_total", labels).Add(5)
	assert.Equal(t, 5.0, p.Counter("cache_operations_total", labels).Get())

	gauge := p.Gauge("cache_volatile_entries", nil)
	gauge.Set(42)
	gauge.Dec()
	assert.Equal(t, 41.0, gauge.Get())

	histogram := p.Histogram("cache_operation_duration_seconds", []float64{0.001, 0.01}, nil)
	histogram.Observe(0.005)
	assert.Equal(t, uint64(1), histogram.GetCount())
	assert.InDelta(t, 0.005, histogram.GetSum(), 1e-9)

	recorder := httptest.NewRecorder()
	p.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(recorder.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sai_cache_cache_operations_total{operation="set",result="ok"} 5`)
	assert.Contains(t, string(body), "sai_cache_cache_volatile_entries 41")

	data, err := p.GetMetrics()
	require.NoError(t, err)
	assert.Contains(t, string(data), "sai_cache_cache_volatile_entries")
}

func TestNewMetricsManager(t *testing.T) {
	log := logger.NewNop()

	_, err := NewMetricsManager(nil, log)
	assert.ErrorIs(t, err, types.ErrMetricsIsDisabled)

	_, err = NewMetricsManager(&types.MetricsConfig{Enabled: false}, log)
	assert.ErrorIs(t, err, types.ErrMetricsIsDisabled)

	manager, err := NewMetricsManager(&types.MetricsConfig{Enabled: true, Type: "memory"}, log)
	require.NoError(t, err)
	assert.IsType(t, &MemoryMetrics{}, manager)

	manager, err = NewMetricsManager(&types.MetricsConfig{
		Enabled: true,
		Type:    "prometheus",
		Config:  map[string]interface{}{"enable_go_metrics": false},
	}, log)
	require.NoError(t, err)
	assert.IsType(t, &PrometheusMetrics{}, manager)

	_, err = NewMetricsManager(&types.MetricsConfig{Enabled: true, Type: "statsd"}, log)
	assert.ErrorIs(t, err, types.ErrMetricsTypeUnknown)
}

func TestStatsCollector(t *testing.T) {
	m := NewMemoryMetrics(logger.NewNop(), nil)
	source := func() types.CacheStats {
		return types.CacheStats{Entries: 3, MaxEntries: 100, Hits: 3, Misses: 1, Evictions: 2}
	}

	collector := NewStatsCollector(context.Background(), logger.NewNop(), m, source, time.Hour)
	require.NoError(t, collector.Start())
	assert.True(t, collector.IsRunning())
	assert.ErrorIs(t, collector.Start(), types.ErrServerAlreadyRunning)

	assert.Equal(t, 3.0, m.Gauge("cache_stats_entries", nil).Get())
	assert.Equal(t, 100.0, m.Gauge("cache_stats_capacity", nil).Get())
	assert.Equal(t, 2.0, m.Gauge("cache_stats_evictions", nil).Get())
	assert.Equal(t, 0.75, m.Gauge("cache_stats_hit_ratio", nil).Get())
	assert.Positive(t, m.Gauge("system_goroutines_count", nil).Get())

	require.NoError(t, collector.Stop())
	assert.False(t, collector.IsRunning())
	assert.ErrorIs(t, collector.Stop(), types.ErrServerNotRunning)
}

func TestStatsCollector_Ticks(t *testing.T) {
	m := NewMemoryMetrics(logger.NewNop(), nil)

	var entries int
	source := func() types.CacheStats {
		entries++
		return types.CacheStats{Entries: entries}
	}

	collector := NewStatsCollector(context.Background(), logger.NewNop(), m, source, 10*time.Millisecond)
	require.NoError(t, collector.Start())
	defer func() { _ = collector.Stop() }()

	assert.Eventually(t, func() bool {
		return m.Gauge("cache_stats_entries", nil).Get() >= 3
	}, 2*time.Second, 5*time.Millisecond)
}
