package storage

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-cache/logger"
	"github.com/saiset-co/sai-cache/types"
)

// exerciseStore runs the behaviour every persistent store must share.
func exerciseStore(t *testing.T, store types.PersistentStore) {
	t.Helper()

	t.Run("missing key", func(t *testing.T) {
		value, found, err := store.GetItem("absent")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, value)
	})

	t.Run("set get overwrite", func(t *testing.T) {
		require.NoError(t, store.SetItem("cache:default:a", `{"data":1}`))

		value, found, err := store.GetItem("cache:default:a")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, `{"data":1}`, value)

		require.NoError(t, store.SetItem("cache:default:a", `{"data":2}`))

		value, _, err = store.GetItem("cache:default:a")
		require.NoError(t, err)
		assert.Equal(t, `{"data":2}`, value)
	})

	t.Run("keys by prefix", func(t *testing.T) {
		require.NoError(t, store.SetItem("cache:default:b", "x"))
		require.NoError(t, store.SetItem("cache:users:a", "y"))
		require.NoError(t, store.SetItem("cache:users%3Aadmin:a", "z"))
		require.NoError(t, store.SetItem("other:a", "w"))

		keys, err := store.Keys("cache:default:")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"cache:default:a", "cache:default:b"}, keys)

		keys, err = store.Keys("cache:users:")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"cache:users:a"}, keys)

		keys, err = store.Keys("cache:")
		require.NoError(t, err)
		assert.Len(t, keys, 4)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, store.RemoveItem("cache:default:a"))
		require.NoError(t, store.RemoveItem("never-existed"))

		_, found, err := store.GetItem("cache:default:a")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("unicode", func(t *testing.T) {
		require.NoError(t, store.SetItem("cache:ünï:ключ", "значение"))

		keys, err := store.Keys("cache:ünï:")
		require.NoError(t, err)
		assert.Equal(t, []string{"cache:ünï:ключ"}, keys)

		value, found, err := store.GetItem("cache:ünï:ключ")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "значение", value)
	})
}

func TestMemoryStore(t *testing.T) {
	store, err := NewMemoryStore(nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	exerciseStore(t, store)
}

func TestMemoryStore_Quota(t *testing.T) {
	store, err := NewMemoryStore(map[string]interface{}{"max_bytes": 10})
	require.NoError(t, err)

	require.NoError(t, store.SetItem("k", "12345"))
	assert.Equal(t, 6, store.Size())

	err = store.SetItem("j", "123456")
	assert.ErrorIs(t, err, types.ErrStorageQuotaExceeded)

	require.NoError(t, store.SetItem("k", "123456789"))
	assert.Equal(t, 10, store.Size())

	require.NoError(t, store.RemoveItem("k"))
	assert.Zero(t, store.Size())
}

func TestMemoryStore_Closed(t *testing.T) {
	store, err := NewMemoryStore(nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, _, err = store.GetItem("k")
	assert.ErrorIs(t, err, types.ErrStorageClosed)
	assert.ErrorIs(t, store.SetItem("k", "v"), types.ErrStorageClosed)
}

func TestMemoryStore_InvalidConfig(t *testing.T) {
	_, err := NewMemoryStore(map[string]interface{}{"max_bytes": -1})
	assert.ErrorIs(t, err, types.ErrStorageConfigInvalid)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(context.Background(), map[string]interface{}{
		"path": filepath.Join(t.TempDir(), "cache.db"),
	})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Ping())
	exerciseStore(t, store)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	config := map[string]interface{}{"path": path}

	store, err := NewSQLiteStore(context.Background(), config)
	require.NoError(t, err)
	require.NoError(t, store.SetItem("cache:default:k", "v"))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(context.Background(), config)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	value, found, err := reopened.GetItem("cache:default:k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v", value)
}

func TestCloverStore(t *testing.T) {
	store, err := NewCloverStore(map[string]interface{}{
		"path": filepath.Join(t.TempDir(), "clover"),
	})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	exerciseStore(t, store)
}

func TestCloverStore_RequiresPath(t *testing.T) {
	_, err := NewCloverStore(nil)
	assert.ErrorIs(t, err, types.ErrStorageConfigInvalid)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("SAI_CACHE_REDIS_PORT")
	if addr == "" {
		t.Skip("SAI_CACHE_REDIS_PORT not set")
	}

	port, err := strconv.Atoi(addr)
	require.NoError(t, err)

	store, err := NewRedisStore(context.Background(), map[string]interface{}{
		"host":       "127.0.0.1",
		"port":       port,
		"key_prefix": "sai-cache-test-" + strconv.Itoa(os.Getpid()),
	})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	exerciseStore(t, store)

	keys, err := store.Keys("")
	require.NoError(t, err)
	for _, key := range keys {
		require.NoError(t, store.RemoveItem(key))
	}
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `cache:a\*b\?c\[d\]`, escapeGlob("cache:a*b?c[d]"))
}

func TestNewStore(t *testing.T) {
	log := logger.NewNop()

	store, err := NewStore(context.Background(), &types.StorageConfig{Type: TypeNone}, log)
	require.NoError(t, err)
	assert.Nil(t, store)

	store, err = NewStore(context.Background(), &types.StorageConfig{Type: "memory"}, log)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = NewStore(context.Background(), &types.StorageConfig{Type: "tape"}, log)
	assert.ErrorIs(t, err, types.ErrStorageTypeUnknown)

	_, err = NewStore(context.Background(), nil, log)
	assert.ErrorIs(t, err, types.ErrConfigIsNil)
}

func TestRegisterStore(t *testing.T) {
	RegisterStore("custom-test", func(config interface{}) (types.PersistentStore, error) {
		return NewMemoryStore(config)
	})

	store, err := NewStore(context.Background(), &types.StorageConfig{Type: "custom-test"}, logger.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, store)
}
