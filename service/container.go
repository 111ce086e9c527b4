package service

import (
	"sync/atomic"

	"github.com/saiset-co/sai-cache/metrics"
	"github.com/saiset-co/sai-cache/server"
	"github.com/saiset-co/sai-cache/types"
)

// Container holds the components of one service instance. Optional
// components stay nil when disabled in configuration.
type Container struct {
	Config    atomic.Pointer[types.ConfigManager]
	Logger    atomic.Pointer[types.LoggerManager]
	Metrics   atomic.Pointer[types.MetricsManager]
	Collector atomic.Pointer[metrics.StatsCollector]
	Health    atomic.Pointer[types.HealthManager]
	Store     atomic.Pointer[types.PersistentStore]
	Cache     atomic.Pointer[types.CacheManager]
	Admin     atomic.Pointer[server.AdminServer]
}

func NewContainer() *Container {
	return &Container{}
}

func (c *Container) SetConfig(config types.ConfigManager) {
	c.Config.Store(&config)
}

func (c *Container) SetLogger(logger types.LoggerManager) {
	c.Logger.Store(&logger)
}

func (c *Container) SetMetrics(metrics types.MetricsManager) {
	c.Metrics.Store(&metrics)
}

func (c *Container) SetHealth(health types.HealthManager) {
	c.Health.Store(&health)
}

func (c *Container) SetStore(store types.PersistentStore) {
	c.Store.Store(&store)
}

func (c *Container) SetCache(cache types.CacheManager) {
	c.Cache.Store(&cache)
}

func (c *Container) GetLogger() types.LoggerManager {
	if ptr := c.Logger.Load(); ptr != nil {
		return *ptr
	}
	return nil
}

func (c *Container) GetMetrics() types.MetricsManager {
	if ptr := c.Metrics.Load(); ptr != nil {
		return *ptr
	}
	return nil
}

func (c *Container) GetHealth() types.HealthManager {
	if ptr := c.Health.Load(); ptr != nil {
		return *ptr
	}
	return nil
}

func (c *Container) GetStore() types.PersistentStore {
	if ptr := c.Store.Load(); ptr != nil {
		return *ptr
	}
	return nil
}

func (c *Container) GetCache() types.CacheManager {
	if ptr := c.Cache.Load(); ptr != nil {
		return *ptr
	}
	return nil
}
