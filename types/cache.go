package types

import (
	"context"
	"time"
)

type CacheManager interface {
	LifecycleManager
	Set(key string, data interface{}, opts ...CacheOption)
	Get(key string, opts ...CacheOption) (interface{}, bool)
	Has(key string, opts ...CacheOption) bool
	Remove(key string, opts ...CacheOption)
	ClearNamespace(namespace string)
	ClearExpired() int
	GetOrGenerate(ctx context.Context, key string, generator Generator, opts ...CacheOption) (interface{}, error)
	Stats() CacheStats
}

// Generator produces a value for GetOrGenerate on a cache miss.
type Generator func(ctx context.Context) (interface{}, error)

type CacheOption func(*CacheOptions)

// CacheOptions is the per-call view of the options. TTLSet distinguishes an
// explicit zero TTL (never expire) from "use the default".
type CacheOptions struct {
	TTL       time.Duration
	TTLSet    bool
	Namespace string
}

// CacheEntry is a cached value. A zero ExpiresAt means the entry never
// expires by TTL.
type CacheEntry struct {
	Data      interface{} `json:"data"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

func (e *CacheEntry) IsExpired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

type CacheStats struct {
	InstanceID          string    `json:"instance_id"`
	Entries             int       `json:"entries"`
	MaxEntries          int       `json:"max_entries"`
	Hits                uint64    `json:"hits"`
	Misses              uint64    `json:"misses"`
	PersistentHits      uint64    `json:"persistent_hits"`
	Evictions           uint64    `json:"evictions"`
	Swept               uint64    `json:"swept"`
	PersistenceFailures uint64    `json:"persistence_failures"`
	StartedAt           time.Time `json:"started_at"`
}

// PersistentStore is a string-keyed store backing the persistent tier.
type PersistentStore interface {
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
	Keys(prefix string) ([]string, error)
	Close() error
}

type StorePinger interface {
	Ping() error
}

type PersistentStoreCreator func(config interface{}) (PersistentStore, error)
