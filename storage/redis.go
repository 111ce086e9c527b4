package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

type RedisConfig struct {
	Host               string `json:"host"`
	Port               int    `json:"port"`
	Password           string `json:"password"`
	DB                 int    `json:"db"`
	PoolSize           int    `json:"pool_size"`
	MinIdleConnections int    `json:"min_idle_connections"`
	DialTimeout        string `json:"dial_timeout"`
	ReadTimeout        string `json:"read_timeout"`
	WriteTimeout       string `json:"write_timeout"`
	KeyPrefix          string `json:"key_prefix"`
	ScanCount          int64  `json:"scan_count"`
}

type RedisStore struct {
	ctx    context.Context
	config *RedisConfig
	client redis.UniversalClient
}

func NewRedisStore(ctx context.Context, config interface{}) (*RedisStore, error) {
	var redisConfig = &RedisConfig{
		Host:               "localhost",
		Port:               6379,
		PoolSize:           10,
		MinIdleConnections: 2,
		DialTimeout:        "5s",
		ReadTimeout:        "3s",
		WriteTimeout:       "3s",
		KeyPrefix:          "sai-cache",
		ScanCount:          100,
	}

	if config != nil {
		err := utils.UnmarshalConfig(config, redisConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis storage config")
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port),
		Password:     redisConfig.Password,
		DB:           redisConfig.DB,
		PoolSize:     redisConfig.PoolSize,
		MinIdleConns: redisConfig.MinIdleConnections,
		DialTimeout:  parseDuration(redisConfig.DialTimeout, 5*time.Second),
		ReadTimeout:  parseDuration(redisConfig.ReadTimeout, 3*time.Second),
		WriteTimeout: parseDuration(redisConfig.WriteTimeout, 3*time.Second),
	})

	store := NewRedisStoreWithClient(ctx, client, redisConfig)

	if err := store.Ping(); err != nil {
		_ = client.Close()
		return nil, types.WrapError(err, "failed to connect to redis")
	}

	return store, nil
}

// NewRedisStoreWithClient wraps an existing client, e.g. a cluster client.
func NewRedisStoreWithClient(ctx context.Context, client redis.UniversalClient, config *RedisConfig) *RedisStore {
	if config == nil {
		config = &RedisConfig{ScanCount: 100}
	}

	return &RedisStore{
		ctx:    ctx,
		config: config,
		client: client,
	}
}

func (r *RedisStore) GetItem(key string) (string, bool, error) {
	value, err := r.client.Get(r.ctx, r.buildFullKey(key)).Result()
	if err != nil {
		if types.IsError(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, types.WrapError(err, "failed to get item")
	}

	return value, true, nil
}

func (r *RedisStore) SetItem(key, value string) error {
	if err := r.client.Set(r.ctx, r.buildFullKey(key), value, 0).Err(); err != nil {
		return types.WrapError(err, "failed to set item")
	}
	return nil
}

func (r *RedisStore) RemoveItem(key string) error {
	if err := r.client.Del(r.ctx, r.buildFullKey(key)).Err(); err != nil {
		return types.WrapError(err, "failed to delete item")
	}
	return nil
}

func (r *RedisStore) Keys(prefix string) ([]string, error) {
	pattern := escapeGlob(r.buildFullKey(prefix)) + "*"

	var keys []string
	iter := r.client.Scan(r.ctx, 0, pattern, r.config.ScanCount).Iterator()
	for iter.Next(r.ctx) {
		keys = append(keys, r.stripPrefix(iter.Val()))
	}

	if err := iter.Err(); err != nil {
		return nil, types.WrapError(err, "failed to scan keys")
	}

	return keys, nil
}

func (r *RedisStore) Ping() error {
	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	if err := r.client.Close(); err != nil {
		return types.WrapError(err, "failed to close redis client")
	}
	return nil
}

func (r *RedisStore) buildFullKey(key string) string {
	if r.config.KeyPrefix != "" {
		return r.config.KeyPrefix + ":" + key
	}
	return key
}

func (r *RedisStore) stripPrefix(fullKey string) string {
	if r.config.KeyPrefix != "" {
		return strings.TrimPrefix(fullKey, r.config.KeyPrefix+":")
	}
	return fullKey
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
