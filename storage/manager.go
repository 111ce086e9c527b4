// Package storage provides the string-keyed stores behind the persistent
// cache tier.
package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
)

const TypeNone = "none"

var customStoreCreators = make(map[string]types.PersistentStoreCreator)

func RegisterStore(storeType string, creator types.PersistentStoreCreator) {
	customStoreCreators[storeType] = creator
}

// NewStore builds the configured store. It returns a nil store for type
// "none", which leaves the cache volatile-only.
func NewStore(ctx context.Context, config *types.StorageConfig, logger types.Logger) (types.PersistentStore, error) {
	if config == nil {
		return nil, types.ErrConfigIsNil
	}

	var store types.PersistentStore
	var err error

	switch config.Type {
	case TypeNone, "":
		logger.Info("Persistent storage disabled")
		return nil, nil
	case "memory":
		store, err = NewMemoryStore(config.Config)
	case "redis":
		store, err = NewRedisStore(ctx, config.Config)
	case "clover":
		store, err = NewCloverStore(config.Config)
	case "sqlite":
		store, err = NewSQLiteStore(ctx, config.Config)
	default:
		creator, exists := customStoreCreators[config.Type]
		if !exists {
			return nil, types.Errorf(types.ErrStorageTypeUnknown, "type: %s", config.Type)
		}
		store, err = creator(config.Config)
	}

	if err != nil {
		return nil, types.WrapError(err, "failed to create "+config.Type+" storage")
	}

	logger.Info("Persistent storage ready", zap.String("type", config.Type))

	return store, nil
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}

	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}

	return d
}
