package storage

import (
	"regexp"
	"sync"
	"time"

	"github.com/ostafen/clover"

	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

const cloverCollection = "cache_items"

type CloverConfig struct {
	Path       string `json:"path"`
	Collection string `json:"collection"`
}

// CloverStore keeps items as {key, value, updated_at} documents.
type CloverStore struct {
	db         *clover.DB
	collection string
	mu         sync.Mutex
}

func NewCloverStore(config interface{}) (*CloverStore, error) {
	cloverConfig := &CloverConfig{
		Collection: cloverCollection,
	}

	if config != nil {
		if err := utils.UnmarshalConfig(config, cloverConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal clover storage config")
		}
	}

	if cloverConfig.Path == "" {
		return nil, types.Errorf(types.ErrStorageConfigInvalid, "clover path is empty")
	}

	db, err := clover.Open(cloverConfig.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open CloverDB")
	}

	exists, err := db.HasCollection(cloverConfig.Collection)
	if err != nil {
		_ = db.Close()
		return nil, types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		if err = db.CreateCollection(cloverConfig.Collection); err != nil {
			_ = db.Close()
			return nil, types.WrapError(err, "failed to create collection")
		}
	}

	return &CloverStore{
		db:         db,
		collection: cloverConfig.Collection,
	}, nil
}

func (c *CloverStore) GetItem(key string) (string, bool, error) {
	docs, err := c.byKey(key).FindAll()
	if err != nil {
		return "", false, types.WrapError(err, "failed to find item")
	}

	if len(docs) == 0 {
		return "", false, nil
	}

	value, ok := docs[0].Get("value").(string)
	if !ok {
		return "", false, types.Errorf(types.ErrCacheEntryCorrupted, "key %s has non-string value", key)
	}

	return value, true, nil
}

func (c *CloverStore) SetItem(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixNano()

	count, err := c.byKey(key).Count()
	if err != nil {
		return types.WrapError(err, "failed to count matching documents")
	}

	if count > 0 {
		err = c.byKey(key).Update(map[string]interface{}{
			"value":      value,
			"updated_at": now,
		})
		if err != nil {
			return types.WrapError(err, "failed to update item")
		}
		return nil
	}

	doc := clover.NewDocument()
	doc.Set("key", key)
	doc.Set("value", value)
	doc.Set("updated_at", now)

	if err = c.db.Insert(c.collection, doc); err != nil {
		return types.WrapError(err, "failed to insert item")
	}

	return nil
}

func (c *CloverStore) RemoveItem(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.byKey(key).Delete(); err != nil {
		return types.WrapError(err, "failed to delete item")
	}
	return nil
}

func (c *CloverStore) Keys(prefix string) ([]string, error) {
	query := c.db.Query(c.collection)
	if prefix != "" {
		query = query.Where(clover.Field("key").Like("^" + regexp.QuoteMeta(prefix)))
	}

	docs, err := query.FindAll()
	if err != nil {
		return nil, types.WrapError(err, "failed to list items")
	}

	keys := make([]string, 0, len(docs))
	for _, doc := range docs {
		if key, ok := doc.Get("key").(string); ok {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

func (c *CloverStore) Close() error {
	if err := c.db.Close(); err != nil {
		return types.WrapError(err, "failed to close CloverDB")
	}
	return nil
}

func (c *CloverStore) byKey(key string) *clover.Query {
	return c.db.Query(c.collection).Where(clover.Field("key").Eq(key))
}
