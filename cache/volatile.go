package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/saiset-co/sai-cache/types"
)

// volatileTier is the bounded in-process map. Entries are never mutated
// after insertion, so callers may read them without the lock.
type volatileTier struct {
	mu         sync.RWMutex
	data       map[string]*types.CacheEntry
	maxEntries int
}

func newVolatileTier(maxEntries int) *volatileTier {
	return &volatileTier{
		data:       make(map[string]*types.CacheEntry, maxEntries+1),
		maxEntries: maxEntries,
	}
}

func (v *volatileTier) get(key string) (*types.CacheEntry, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	entry, exists := v.data[key]
	return entry, exists
}

// set stores entry under key and returns the keys evicted to stay within
// maxEntries. The key just written is never a victim.
func (v *volatileTier) set(key string, entry *types.CacheEntry) []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.data[key] = entry
	return v.evictUnsafe(key)
}

// promote stores entry only if key is absent and returns the entry that ends
// up in the tier, which is the existing one when a writer got there first.
func (v *volatileTier) promote(key string, entry *types.CacheEntry) (*types.CacheEntry, []string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if existing, exists := v.data[key]; exists {
		return existing, nil
	}

	v.data[key] = entry
	return entry, v.evictUnsafe(key)
}

func (v *volatileTier) delete(key string) {
	v.mu.Lock()
	delete(v.data, key)
	v.mu.Unlock()
}

// deleteIf removes key only while it still holds entry.
func (v *volatileTier) deleteIf(key string, entry *types.CacheEntry) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if current, exists := v.data[key]; exists && current == entry {
		delete(v.data, key)
		return true
	}
	return false
}

func (v *volatileTier) deleteIfExpired(key string, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if entry, exists := v.data[key]; exists && entry.IsExpired(now) {
		delete(v.data, key)
		return true
	}
	return false
}

func (v *volatileTier) removeExpired(now time.Time) []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	var expired []string
	for key, entry := range v.data {
		if entry.IsExpired(now) {
			expired = append(expired, key)
		}
	}

	for _, key := range expired {
		delete(v.data, key)
	}

	return expired
}

func (v *volatileTier) removePrefix(prefix string) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	removed := 0
	for key := range v.data {
		if strings.HasPrefix(key, prefix) {
			delete(v.data, key)
			removed++
		}
	}

	return removed
}

func (v *volatileTier) len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.data)
}

func (v *volatileTier) evictUnsafe(justWritten string) []string {
	var evicted []string

	for len(v.data) > v.maxEntries {
		victim, found := v.findFIFOVictim(justWritten)
		if !found {
			break
		}
		delete(v.data, victim)
		evicted = append(evicted, victim)
	}

	return evicted
}

// findFIFOVictim picks the oldest insertion. Equal CreatedAt values fall back
// to the smaller key so the choice does not depend on map order.
func (v *volatileTier) findFIFOVictim(exclude string) (string, bool) {
	var oldestKey string
	var oldestTime time.Time
	found := false

	for key, entry := range v.data {
		if key == exclude {
			continue
		}

		if !found ||
			entry.CreatedAt.Before(oldestTime) ||
			(entry.CreatedAt.Equal(oldestTime) && key < oldestKey) {
			oldestKey = key
			oldestTime = entry.CreatedAt
			found = true
		}
	}

	return oldestKey, found
}
