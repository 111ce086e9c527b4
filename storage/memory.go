package storage

import (
	"sort"
	"strings"
	"sync"

	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

type MemoryConfig struct {
	// MaxBytes caps the summed length of keys and values. Zero means unlimited.
	MaxBytes int `json:"max_bytes"`
}

// MemoryStore is an in-process string store with a byte quota, the way a
// browser's localStorage behaves.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[string]string
	size   int
	limit  int
	closed bool
}

func NewMemoryStore(config interface{}) (*MemoryStore, error) {
	memConfig := &MemoryConfig{}

	if config != nil {
		if err := utils.UnmarshalConfig(config, memConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal memory storage config")
		}
	}

	if memConfig.MaxBytes < 0 {
		return nil, types.Errorf(types.ErrStorageConfigInvalid, "max_bytes: %d", memConfig.MaxBytes)
	}

	return &MemoryStore{
		items: make(map[string]string),
		limit: memConfig.MaxBytes,
	}, nil
}

func (s *MemoryStore) GetItem(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", false, types.ErrStorageClosed
	}

	value, ok := s.items[key]
	return value, ok, nil
}

func (s *MemoryStore) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrStorageClosed
	}

	newSize := s.size + len(key) + len(value)
	if old, ok := s.items[key]; ok {
		newSize -= len(key) + len(old)
	}

	if s.limit > 0 && newSize > s.limit {
		return types.Errorf(types.ErrStorageQuotaExceeded, "need %d bytes, limit %d", newSize, s.limit)
	}

	s.items[key] = value
	s.size = newSize

	return nil
}

func (s *MemoryStore) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrStorageClosed
	}

	if old, ok := s.items[key]; ok {
		s.size -= len(key) + len(old)
		delete(s.items, key)
	}

	return nil
}

func (s *MemoryStore) Keys(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, types.ErrStorageClosed
	}

	keys := make([]string, 0, len(s.items))
	for key := range s.items {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	return keys, nil
}

// Size reports the bytes currently counted against the quota.
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.items = make(map[string]string)
	s.size = 0

	return nil
}
