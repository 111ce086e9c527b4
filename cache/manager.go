// Package cache implements the two-tier cache: a bounded volatile map in
// front of a best-effort persistent store.
package cache

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/saiset-co/sai-cache/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const (
	DefaultMaxEntries       = 100
	DefaultTTL              = 5 * time.Minute
	DefaultNamespace        = "default"
	DefaultSweepInterval    = 5 * time.Minute
	DefaultPersistentPrefix = "cache:"
	DefaultCompressMinSize  = 1024
)

type Manager struct {
	ctx        context.Context
	config     types.CacheConfig
	logger     types.Logger
	metrics    types.MetricsManager
	volatile   *volatileTier
	persistent *persistentTier
	sweeper    *sweeper
	flights    singleflight.Group
	now        func() time.Time
	instanceID string
	startedAt  atomic.Value
	state      atomic.Value

	hits                uint64
	misses              uint64
	persistentHits      uint64
	evictions           uint64
	swept               uint64
	persistenceFailures uint64
}

// NewManager builds a stopped manager. store may be nil for a volatile-only
// cache and metrics may be nil when metrics are disabled.
func NewManager(ctx context.Context, config *types.CacheConfig, storageConfig *types.StorageConfig, store types.PersistentStore, logger types.Logger, metrics types.MetricsManager, opts ...Option) (*Manager, error) {
	if config == nil {
		return nil, types.ErrConfigIsNil
	}

	if logger == nil {
		return nil, types.NewErrorf("cache logger is nil")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	cacheConfig := *config
	if cacheConfig.MaxEntries <= 0 {
		return nil, types.Errorf(types.ErrConfigValidateFailed, "max_entries must be positive, got %d", cacheConfig.MaxEntries)
	}
	if cacheConfig.DefaultTTL < 0 {
		return nil, types.Errorf(types.ErrConfigValidateFailed, "default_ttl must not be negative, got %s", cacheConfig.DefaultTTL)
	}
	if cacheConfig.DefaultNamespace == "" {
		cacheConfig.DefaultNamespace = DefaultNamespace
	}
	if cacheConfig.PersistentPrefix == "" {
		cacheConfig.PersistentPrefix = DefaultPersistentPrefix
	}

	compress := false
	compressMinSize := DefaultCompressMinSize
	if storageConfig != nil {
		compress = storageConfig.Compress
		if storageConfig.CompressMinSize > 0 {
			compressMinSize = storageConfig.CompressMinSize
		}
	}

	m := &Manager{
		ctx:        ctx,
		config:     cacheConfig,
		logger:     logger,
		metrics:    metrics,
		volatile:   newVolatileTier(cacheConfig.MaxEntries),
		now:        time.Now,
		instanceID: uuid.NewString(),
	}

	m.persistent = &persistentTier{
		store:     store,
		codec:     newEntryCodec(compress, compressMinSize),
		prefix:    cacheConfig.PersistentPrefix,
		logger:    logger,
		onFailure: m.recordPersistenceFailure,
	}

	m.sweeper = newSweeper(cacheConfig.SweepInterval, logger, m.sweep)

	for _, opt := range opts {
		opt(m)
	}

	m.state.Store(StateStopped)
	m.startedAt.Store(time.Time{})

	return m, nil
}

func (m *Manager) Set(key string, data interface{}, opts ...types.CacheOption) {
	options := m.resolveOptions(opts)
	compositeKey := composeKey(options.Namespace, key)

	now := m.now()
	entry := &types.CacheEntry{
		Data:      data,
		CreatedAt: now,
	}
	if options.TTL > 0 {
		entry.ExpiresAt = now.Add(options.TTL)
	}

	m.recordEvictions(m.volatile.set(compositeKey, entry))
	m.persistent.save(compositeKey, entry)
}

func (m *Manager) Get(key string, opts ...types.CacheOption) (interface{}, bool) {
	options := m.resolveOptions(opts)

	entry, found := m.lookup(composeKey(options.Namespace, key))
	if !found {
		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	atomic.AddUint64(&m.hits, 1)
	return entry.Data, true
}

func (m *Manager) Has(key string, opts ...types.CacheOption) bool {
	_, found := m.Get(key, opts...)
	return found
}

func (m *Manager) Remove(key string, opts ...types.CacheOption) {
	options := m.resolveOptions(opts)
	compositeKey := composeKey(options.Namespace, key)

	m.volatile.delete(compositeKey)
	m.persistent.remove(compositeKey)
	m.updateEntriesGauge()
}

// ClearNamespace drops every entry of namespace from both tiers. An empty
// namespace means the default one.
func (m *Manager) ClearNamespace(namespace string) {
	if namespace == "" {
		namespace = m.config.DefaultNamespace
	}

	prefix := namespacePrefix(namespace)

	volatileRemoved := m.volatile.removePrefix(prefix)

	persistentKeys := m.persistent.keys(prefix)
	for _, key := range persistentKeys {
		m.persistent.remove(key)
	}

	m.updateEntriesGauge()

	m.logger.Info("Namespace cleared",
		zap.String("namespace", namespace),
		zap.Int("volatile_removed", volatileRemoved),
		zap.Int("persistent_removed", len(persistentKeys)))
}

// ClearExpired removes expired entries from both tiers and returns the number
// of distinct keys removed.
func (m *Manager) ClearExpired() int {
	now := m.now()
	removed := make(map[string]struct{})

	for _, key := range m.volatile.removeExpired(now) {
		removed[key] = struct{}{}
		m.persistent.remove(key)
	}

	for _, key := range m.persistent.keys("") {
		if _, done := removed[key]; done {
			continue
		}

		entry, found := m.persistent.load(key)
		if !found || !entry.IsExpired(now) {
			continue
		}

		m.persistent.remove(key)
		m.volatile.deleteIfExpired(key, now)
		removed[key] = struct{}{}
	}

	count := len(removed)
	if count > 0 {
		atomic.AddUint64(&m.swept, uint64(count))
		m.counter("cache_swept_total", nil).Add(float64(count))
		m.updateEntriesGauge()
		m.logger.Debug("Expired entries cleared", zap.Int("removed", count))
	}

	return count
}

// GetOrGenerate returns the cached value or caches what generator produces.
// Concurrent misses for one key share a single generator call; a caller whose
// ctx ends stops waiting while the shared call still completes and caches.
func (m *Manager) GetOrGenerate(ctx context.Context, key string, generator types.Generator, opts ...types.CacheOption) (interface{}, error) {
	if generator == nil {
		return nil, types.ErrGeneratorIsNil
	}

	if value, found := m.Get(key, opts...); found {
		return value, nil
	}

	if !m.config.Singleflight {
		return m.generate(ctx, key, generator, opts)
	}

	options := m.resolveOptions(opts)
	compositeKey := composeKey(options.Namespace, key)
	flightCtx := context.WithoutCancel(ctx)

	results := m.flights.DoChan(compositeKey, func() (interface{}, error) {
		if entry, found := m.lookup(compositeKey); found {
			return entry.Data, nil
		}
		return m.generate(flightCtx, key, generator, opts)
	})

	select {
	case result := <-results:
		return result.Val, result.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		m.logger.Warn("Cache manager is already running")
		return types.ErrCacheAlreadyRunning
	}

	removed := m.ClearExpired()

	if err := m.sweeper.start(); err != nil {
		m.setState(StateStopped)
		return err
	}

	m.startedAt.Store(m.now())
	m.setState(StateRunning)

	m.logger.Info("Cache manager started",
		zap.String("instance_id", m.instanceID),
		zap.Int("max_entries", m.config.MaxEntries),
		zap.Bool("persistent", m.persistent.enabled()),
		zap.Int("initial_swept", removed))

	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		m.logger.Warn("Cache manager is not running")
		return types.ErrCacheNotRunning
	}

	m.sweeper.stop()
	m.setState(StateStopped)

	m.logger.Info("Cache manager stopped", zap.String("instance_id", m.instanceID))

	return nil
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *Manager) Stats() types.CacheStats {
	return types.CacheStats{
		InstanceID:          m.instanceID,
		Entries:             m.volatile.len(),
		MaxEntries:          m.config.MaxEntries,
		Hits:                atomic.LoadUint64(&m.hits),
		Misses:              atomic.LoadUint64(&m.misses),
		PersistentHits:      atomic.LoadUint64(&m.persistentHits),
		Evictions:           atomic.LoadUint64(&m.evictions),
		Swept:               atomic.LoadUint64(&m.swept),
		PersistenceFailures: atomic.LoadUint64(&m.persistenceFailures),
		StartedAt:           m.startedAt.Load().(time.Time),
	}
}

// RegisterHealthChecks adds the cache and storage checkers to health.
func (m *Manager) RegisterHealthChecks(health types.HealthManager) {
	if health == nil {
		return
	}

	health.RegisterChecker("cache", m.checkCache)
	health.RegisterChecker("storage", m.checkStorage)
}

func (m *Manager) checkCache(_ context.Context) types.HealthCheck {
	check := types.HealthCheck{
		Name:      "cache",
		Status:    types.StatusHealthy,
		LastCheck: time.Now(),
		Details: map[string]interface{}{
			"entries":     m.volatile.len(),
			"max_entries": m.config.MaxEntries,
		},
	}

	if !m.IsRunning() {
		check.Status = types.StatusUnhealthy
		check.Message = "cache manager is not running"
	}

	return check
}

func (m *Manager) checkStorage(_ context.Context) types.HealthCheck {
	start := time.Now()
	check := types.HealthCheck{
		Name:      "storage",
		Status:    types.StatusHealthy,
		LastCheck: start,
		Details: map[string]interface{}{
			"enabled": m.persistent.enabled(),
		},
	}

	if err := m.persistent.ping(); err != nil {
		check.Status = types.StatusUnhealthy
		check.Message = err.Error()
	}

	check.Duration = time.Since(start)
	return check
}

func (m *Manager) lookup(compositeKey string) (*types.CacheEntry, bool) {
	now := m.now()

	if entry, found := m.volatile.get(compositeKey); found {
		if !entry.IsExpired(now) {
			return entry, true
		}

		if m.volatile.deleteIf(compositeKey, entry) {
			m.persistent.remove(compositeKey)
			m.updateEntriesGauge()
		}
		return nil, false
	}

	entry, found := m.persistent.load(compositeKey)
	if !found {
		return nil, false
	}

	if entry.IsExpired(now) {
		m.persistent.remove(compositeKey)
		return nil, false
	}

	winner, evicted := m.volatile.promote(compositeKey, entry)
	m.recordEvictions(evicted)
	atomic.AddUint64(&m.persistentHits, 1)

	return winner, true
}

func (m *Manager) generate(ctx context.Context, key string, generator types.Generator, opts []types.CacheOption) (interface{}, error) {
	value, err := m.callGenerator(ctx, key, generator)
	if err != nil {
		m.logger.Debug("Generator failed, nothing cached", zap.String("key", key), zap.Error(err))
		return nil, err
	}

	m.Set(key, value, opts...)
	return value, nil
}

// callGenerator turns a generator panic into ErrGeneratorPanic so that it
// reaches every waiter of a shared generation instead of crashing the
// singleflight goroutine.
func (m *Manager) callGenerator(ctx context.Context, key string, generator types.Generator) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Generator panicked, nothing cached",
				zap.String("key", key),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
			value, err = nil, types.Errorf(types.ErrGeneratorPanic, "%v", r)
		}
	}()

	return generator(ctx)
}

func (m *Manager) sweep() {
	if m.ctx.Err() != nil || !m.IsRunning() {
		return
	}

	m.ClearExpired()
}

func (m *Manager) recordEvictions(evicted []string) {
	if len(evicted) > 0 {
		atomic.AddUint64(&m.evictions, uint64(len(evicted)))
		m.counter("cache_evictions_total", nil).Add(float64(len(evicted)))

		for _, key := range evicted {
			m.logger.Debug("Evicted oldest volatile entry", zap.String("key", key))
		}
	}

	m.updateEntriesGauge()
}

func (m *Manager) recordPersistenceFailure(operation string) {
	atomic.AddUint64(&m.persistenceFailures, 1)
	m.counter("cache_persistence_failures_total", map[string]string{"operation": operation}).Inc()
}

func (m *Manager) updateEntriesGauge() {
	if m.metrics == nil {
		return
	}
	m.metrics.Gauge("cache_volatile_entries", nil).Set(float64(m.volatile.len()))
}

func (m *Manager) counter(name string, labels map[string]string) types.Counter {
	if m.metrics == nil {
		return noopCounter{}
	}
	return m.metrics.Counter(name, labels)
}

func (m *Manager) getState() State {
	return m.state.Load().(State)
}

func (m *Manager) setState(newState State) {
	m.state.Store(newState)
}

func (m *Manager) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}

type noopCounter struct{}

func (noopCounter) Inc()          {}
func (noopCounter) Add(_ float64) {}
func (noopCounter) Get() float64  { return 0 }
