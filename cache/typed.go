package cache

import (
	"context"

	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

// GetAs reads key and converts the value to T. Values promoted from the
// persistent tier come back as generic JSON shapes and are converted through
// JSON. A value that cannot be converted reports not found.
func GetAs[T any](c types.CacheManager, key string, opts ...types.CacheOption) (T, bool) {
	var result T

	value, found := c.Get(key, opts...)
	if !found || value == nil {
		return result, found
	}

	if err := utils.Convert(value, &result); err != nil {
		var zero T
		return zero, false
	}

	return result, true
}

func GetOrGenerateAs[T any](ctx context.Context, c types.CacheManager, key string, generator func(ctx context.Context) (T, error), opts ...types.CacheOption) (T, error) {
	var result T

	if generator == nil {
		return result, types.ErrGeneratorIsNil
	}

	value, err := c.GetOrGenerate(ctx, key, func(ctx context.Context) (interface{}, error) {
		return generator(ctx)
	}, opts...)
	if err != nil {
		return result, err
	}

	if value == nil {
		return result, nil
	}

	if err := utils.Convert(value, &result); err != nil {
		return result, types.Errorf(types.ErrCacheEntryCorrupted, "cannot convert cached value: %v", err)
	}

	return result, nil
}
