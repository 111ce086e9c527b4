package server

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-cache/cache"
	"github.com/saiset-co/sai-cache/health"
	"github.com/saiset-co/sai-cache/logger"
	"github.com/saiset-co/sai-cache/metrics"
	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

type fixture struct {
	server *AdminServer
	cache  *cache.Manager
	health *health.Manager
	now    time.Time
}

func newFixture(t *testing.T, metricsManager types.MetricsManager) *fixture {
	t.Helper()

	f := &fixture{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	cacheManager, err := cache.NewManager(context.Background(), &types.CacheConfig{
		MaxEntries:       10,
		DefaultTTL:       time.Minute,
		DefaultNamespace: "default",
	}, nil, nil, logger.NewNop(), nil, cache.WithClock(func() time.Time { return f.now }))
	require.NoError(t, err)

	healthManager, err := health.NewManager(context.Background(), &types.HealthConfig{Enabled: true, CheckTimeout: time.Second}, logger.NewNop(), types.ServiceInfo{Name: "sai-cache", Version: "test"})
	require.NoError(t, err)
	cacheManager.RegisterHealthChecks(healthManager)

	server, err := NewAdminServer(context.Background(), &types.AdminConfig{Enabled: true, Host: "127.0.0.1"}, logger.NewNop(), cacheManager, healthManager, metricsManager, "test")
	require.NoError(t, err)

	f.server = server
	f.cache = cacheManager
	f.health = healthManager

	return f
}

func (f *fixture) do(method, uri string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)

	f.server.Handler()(ctx)

	return ctx
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	ctx := f.do(fasthttp.MethodGet, "/health")
	assert.Equal(t, fasthttp.StatusServiceUnavailable, ctx.Response.StatusCode())

	require.NoError(t, f.cache.Start())
	defer func() { _ = f.cache.Stop() }()

	ctx = f.do(fasthttp.MethodGet, "/health")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	var report types.HealthReport
	require.NoError(t, utils.Unmarshal(ctx.Response.Body(), &report))
	assert.Equal(t, types.StatusHealthy, report.Status)
	assert.Contains(t, report.Checks, "cache")
	assert.Contains(t, report.Checks, "storage")
}

func TestStatsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.cache.Set("k", "v")

	ctx := f.do(fasthttp.MethodGet, "/stats")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	var stats types.CacheStats
	require.NoError(t, utils.Unmarshal(ctx.Response.Body(), &stats))
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 10, stats.MaxEntries)
}

func TestSweepEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.cache.Set("short", 1, cache.WithTTL(time.Second))
	f.cache.Set("long", 2, cache.NoExpiry())
	f.now = f.now.Add(time.Hour)

	ctx := f.do(fasthttp.MethodPost, "/cache/sweep")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"removed":1}`, string(ctx.Response.Body()))
}

func TestClearNamespaceEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.cache.Set("k", 1, cache.WithNamespace("users"))
	f.cache.Set("k", 2, cache.WithNamespace("users:archive"))

	ctx := f.do(fasthttp.MethodDelete, "/cache/namespaces/users")
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())

	assert.False(t, f.cache.Has("k", cache.WithNamespace("users")))
	assert.True(t, f.cache.Has("k", cache.WithNamespace("users:archive")))

	ctx = f.do(fasthttp.MethodDelete, "/cache/namespaces/users%3Aarchive")
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
	assert.False(t, f.cache.Has("k", cache.WithNamespace("users:archive")))

	ctx = f.do(fasthttp.MethodDelete, "/cache/namespaces/")
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestMetricsEndpoint(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, nil)
		ctx := f.do(fasthttp.MethodGet, "/metrics")
		assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	})

	t.Run("memory", func(t *testing.T) {
		memoryMetrics := metrics.NewMemoryMetrics(logger.NewNop(), nil)
		memoryMetrics.Counter("cache_evictions_total", nil).Inc()

		f := newFixture(t, memoryMetrics)
		ctx := f.do(fasthttp.MethodGet, "/metrics")
		require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.Contains(t, string(ctx.Response.Body()), "cache_evictions_total")
	})

	t.Run("prometheus", func(t *testing.T) {
		promMetrics, err := metrics.NewPrometheusMetrics(logger.NewNop(), &types.MetricsConfig{
			Enabled: true,
			Type:    "prometheus",
			Config:  map[string]interface{}{"enable_go_metrics": false},
		})
		require.NoError(t, err)
		promMetrics.Counter("cache_evictions_total", nil).Inc()

		f := newFixture(t, promMetrics)
		ctx := f.do(fasthttp.MethodGet, "/metrics")
		require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.Contains(t, string(ctx.Response.Body()), "cache_evictions_total 1")
		assert.True(t, strings.HasPrefix(string(ctx.Response.Header.ContentType()), "text/plain"))
	})
}

func TestVersionEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	ctx := f.do(fasthttp.MethodGet, "/version")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	var info health.BuildInfo
	require.NoError(t, utils.Unmarshal(ctx.Response.Body(), &info))
	assert.Equal(t, "test", info.Version)
}

func TestUnknownRoutes(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, fasthttp.StatusNotFound, f.do(fasthttp.MethodGet, "/nope").Response.StatusCode())
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, f.do(fasthttp.MethodPost, "/stats").Response.StatusCode())
}

func TestAdminServer_StartStop(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.server.Start())
	assert.True(t, f.server.IsRunning())
	assert.ErrorIs(t, f.server.Start(), types.ErrServerAlreadyRunning)

	conn, err := net.DialTimeout("tcp", f.server.Addr(), time.Second)
	require.NoError(t, err)
	_ = conn.Close()

	require.NoError(t, f.server.Stop())
	assert.False(t, f.server.IsRunning())
	assert.ErrorIs(t, f.server.Stop(), types.ErrServerNotRunning)
}

type failingListener struct{}

func (failingListener) Accept() (net.Conn, error) { return nil, errors.New("accept failed") }
func (failingListener) Close() error              { return nil }
func (failingListener) Addr() net.Addr            { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

func TestAdminServer_ServeFailureMarksStopped(t *testing.T) {
	f := newFixture(t, nil)

	f.server.setState(StateRunning)
	f.server.serve(&fasthttp.Server{Handler: f.server.Handler()}, failingListener{})

	assert.False(t, f.server.IsRunning())
	assert.Equal(t, StateStopped, f.server.getState())
	assert.ErrorIs(t, f.server.Stop(), types.ErrServerNotRunning)
}

func TestAdminServer_ServeFailureKeepsStoppingState(t *testing.T) {
	f := newFixture(t, nil)

	f.server.setState(StateStopping)
	f.server.serve(&fasthttp.Server{Handler: f.server.Handler()}, failingListener{})

	assert.Equal(t, StateStopping, f.server.getState())
}
