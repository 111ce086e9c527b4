package cache

import (
	"context"
	"time"

	"github.com/saiset-co/sai-cache/types"
)

var operationBuckets = []float64{0.0001, 0.001, 0.01, 0.1, 1.0}

// NewCacheManager builds a Manager from service configuration, registers its
// health checks and, when metrics are enabled, wraps it with per-operation
// instrumentation.
func NewCacheManager(ctx context.Context, config types.ConfigManager, store types.PersistentStore, logger types.Logger, metrics types.MetricsManager, health types.HealthManager, opts ...Option) (types.CacheManager, error) {
	cacheConfig, storageConfig, err := readSections(config)
	if err != nil {
		return nil, err
	}

	impl, err := NewManager(ctx, cacheConfig, storageConfig, store, logger, metrics, opts...)
	if err != nil {
		return nil, types.WrapError(err, "failed to create cache manager")
	}

	impl.RegisterHealthChecks(health)

	if metrics == nil {
		return impl, nil
	}

	return newInstrumentedCacheManager(logger, metrics, impl), nil
}

// readSections decodes the cache and storage sections by path, so any
// ConfigManager carrying them can drive a manager. The storage section is
// optional.
func readSections(config types.ConfigManager) (*types.CacheConfig, *types.StorageConfig, error) {
	if config == nil {
		return nil, nil, types.ErrConfigIsNil
	}

	cacheConfig := &types.CacheConfig{}
	if err := config.GetAs("cache", cacheConfig); err != nil {
		if types.IsError(err, types.ErrConfigNotFound) {
			return nil, nil, types.ErrConfigIsNil
		}
		return nil, nil, types.WrapError(err, "failed to read cache config")
	}

	if config.GetValue("storage", nil) == nil {
		return cacheConfig, nil, nil
	}

	storageConfig := &types.StorageConfig{}
	if err := config.GetAs("storage", storageConfig); err != nil {
		return nil, nil, types.WrapError(err, "failed to read storage config")
	}

	return cacheConfig, storageConfig, nil
}

type instrumentedCacheManager struct {
	impl    types.CacheManager
	logger  types.Logger
	metrics types.MetricsManager
}

func newInstrumentedCacheManager(logger types.Logger, metrics types.MetricsManager, impl types.CacheManager) types.CacheManager {
	return &instrumentedCacheManager{
		impl:    impl,
		logger:  logger,
		metrics: metrics,
	}
}

func (icm *instrumentedCacheManager) Set(key string, data interface{}, opts ...types.CacheOption) {
	start := time.Now()
	icm.impl.Set(key, data, opts...)
	icm.recordMetric("set", "success", time.Since(start))
}

func (icm *instrumentedCacheManager) Get(key string, opts ...types.CacheOption) (interface{}, bool) {
	start := time.Now()
	value, found := icm.impl.Get(key, opts...)
	icm.recordMetric("get", hitOrMiss(found), time.Since(start))
	return value, found
}

func (icm *instrumentedCacheManager) Has(key string, opts ...types.CacheOption) bool {
	start := time.Now()
	found := icm.impl.Has(key, opts...)
	icm.recordMetric("has", hitOrMiss(found), time.Since(start))
	return found
}

func (icm *instrumentedCacheManager) Remove(key string, opts ...types.CacheOption) {
	start := time.Now()
	icm.impl.Remove(key, opts...)
	icm.recordMetric("remove", "success", time.Since(start))
}

func (icm *instrumentedCacheManager) ClearNamespace(namespace string) {
	start := time.Now()
	icm.impl.ClearNamespace(namespace)
	icm.recordMetric("clear_namespace", "success", time.Since(start))
}

func (icm *instrumentedCacheManager) ClearExpired() int {
	start := time.Now()
	removed := icm.impl.ClearExpired()
	icm.recordMetric("clear_expired", "success", time.Since(start))
	return removed
}

func (icm *instrumentedCacheManager) GetOrGenerate(ctx context.Context, key string, generator types.Generator, opts ...types.CacheOption) (interface{}, error) {
	start := time.Now()
	value, err := icm.impl.GetOrGenerate(ctx, key, generator, opts...)

	result := "success"
	if err != nil {
		result = "error"
	}

	icm.recordMetric("get_or_generate", result, time.Since(start))
	return value, err
}

func (icm *instrumentedCacheManager) Stats() types.CacheStats {
	return icm.impl.Stats()
}

func (icm *instrumentedCacheManager) Start() error {
	start := time.Now()
	err := icm.impl.Start()

	result := "success"
	if err != nil {
		result = "error"
	}

	icm.recordMetric("start", result, time.Since(start))
	return err
}

func (icm *instrumentedCacheManager) Stop() error {
	return icm.impl.Stop()
}

func (icm *instrumentedCacheManager) IsRunning() bool {
	return icm.impl.IsRunning()
}

func (icm *instrumentedCacheManager) recordMetric(operation, result string, duration time.Duration) {
	opCounter := icm.metrics.Counter("cache_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	})
	opCounter.Inc()

	opDuration := icm.metrics.Histogram("cache_operation_duration_seconds",
		operationBuckets,
		map[string]string{"operation": operation},
	)
	opDuration.Observe(duration.Seconds())
}

func hitOrMiss(found bool) string {
	if found {
		return "hit"
	}
	return "miss"
}
