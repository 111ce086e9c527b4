package cache

import (
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
)

// WithTTL sets the entry lifetime. Zero means the entry never expires.
func WithTTL(ttl time.Duration) types.CacheOption {
	return func(o *types.CacheOptions) {
		o.TTL = ttl
		o.TTLSet = true
	}
}

func NoExpiry() types.CacheOption {
	return WithTTL(0)
}

func WithNamespace(namespace string) types.CacheOption {
	return func(o *types.CacheOptions) {
		o.Namespace = namespace
	}
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithInstanceID(id string) Option {
	return func(m *Manager) {
		if id != "" {
			m.instanceID = id
		}
	}
}

func (m *Manager) resolveOptions(opts []types.CacheOption) types.CacheOptions {
	options := types.CacheOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	if options.Namespace == "" {
		options.Namespace = m.config.DefaultNamespace
	}

	if !options.TTLSet {
		options.TTL = m.config.DefaultTTL
	} else if options.TTL < 0 {
		m.logger.Warn("Negative TTL replaced by default",
			zap.Duration("ttl", options.TTL),
			zap.Duration("default_ttl", m.config.DefaultTTL))
		options.TTL = m.config.DefaultTTL
	}

	return options
}
