package cache

import (
	"strings"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
)

// persistentTier wraps a PersistentStore so that no failure of the store,
// including a panic, reaches the caller. Every failure is logged and
// reported through onFailure. A nil store turns every call into a no-op.
type persistentTier struct {
	store     types.PersistentStore
	codec     *entryCodec
	prefix    string
	logger    types.Logger
	onFailure func(operation string)
}

func (p *persistentTier) enabled() bool {
	return p.store != nil
}

func (p *persistentTier) load(key string) (*types.CacheEntry, bool) {
	if !p.enabled() {
		return nil, false
	}

	var raw string
	var found bool

	ok := p.call("get", key, func() error {
		var err error
		raw, found, err = p.store.GetItem(p.prefix + key)
		return err
	})
	if !ok || !found {
		return nil, false
	}

	entry, err := p.codec.decode(raw)
	if err != nil {
		p.fail("decode", key, err)
		p.remove(key)
		return nil, false
	}

	return entry, true
}

func (p *persistentTier) save(key string, entry *types.CacheEntry) {
	if !p.enabled() {
		return
	}

	value, err := p.codec.encode(entry)
	if err != nil {
		p.fail("encode", key, err)
		return
	}

	p.call("set", key, func() error {
		return p.store.SetItem(p.prefix+key, value)
	})
}

func (p *persistentTier) remove(key string) {
	if !p.enabled() {
		return
	}

	p.call("remove", key, func() error {
		return p.store.RemoveItem(p.prefix + key)
	})
}

// keys lists composite keys that start with prefix.
func (p *persistentTier) keys(prefix string) []string {
	if !p.enabled() {
		return nil
	}

	var storeKeys []string

	ok := p.call("keys", prefix, func() error {
		var err error
		storeKeys, err = p.store.Keys(p.prefix + prefix)
		return err
	})
	if !ok {
		return nil
	}

	keys := make([]string, 0, len(storeKeys))
	for _, storeKey := range storeKeys {
		if strings.HasPrefix(storeKey, p.prefix+prefix) {
			keys = append(keys, strings.TrimPrefix(storeKey, p.prefix))
		}
	}

	return keys
}

func (p *persistentTier) ping() error {
	if !p.enabled() {
		return nil
	}

	pinger, ok := p.store.(types.StorePinger)
	if !ok {
		return nil
	}

	return p.guard(pinger.Ping)
}

func (p *persistentTier) call(operation, key string, fn func() error) bool {
	if err := p.guard(fn); err != nil {
		p.fail(operation, key, err)
		return false
	}
	return true
}

func (p *persistentTier) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.Errorf(types.ErrStoragePanic, "%v", r)
		}
	}()

	return fn()
}

func (p *persistentTier) fail(operation, key string, err error) {
	p.logger.Warn("Persistent tier operation failed",
		zap.String("operation", operation),
		zap.String("key", key),
		zap.Error(err))

	if p.onFailure != nil {
		p.onFailure(operation)
	}
}
