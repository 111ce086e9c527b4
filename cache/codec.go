package cache

import (
	"bytes"
	"encoding/base64"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

const compressedPrefix = "br:"

// persistedEntry keeps timestamps as RFC 3339 strings, which cover every
// instant a time.Duration TTL can reach.
type persistedEntry struct {
	Data      interface{} `json:"data"`
	CreatedAt string      `json:"created_at"`
	ExpiresAt *string     `json:"expires_at"`
}

// entryCodec turns entries into the strings kept by a PersistentStore.
// Payloads of at least minSize bytes are brotli-compressed when enabled.
type entryCodec struct {
	compress   bool
	minSize    int
	writerPool sync.Pool
}

func newEntryCodec(compress bool, minSize int) *entryCodec {
	return &entryCodec{
		compress: compress,
		minSize:  minSize,
		writerPool: sync.Pool{
			New: func() interface{} {
				return brotli.NewWriterLevel(nil, brotli.DefaultCompression)
			},
		},
	}
}

func (c *entryCodec) encode(entry *types.CacheEntry) (string, error) {
	wire := persistedEntry{
		Data:      entry.Data,
		CreatedAt: formatTime(entry.CreatedAt),
	}

	if !entry.ExpiresAt.IsZero() {
		expiresAt := formatTime(entry.ExpiresAt)
		wire.ExpiresAt = &expiresAt
	}

	raw, err := utils.Marshal(wire)
	if err != nil {
		return "", types.WrapError(err, "failed to marshal cache entry")
	}

	if !c.compress || len(raw) < c.minSize {
		return string(raw), nil
	}

	compressed, err := c.compressPayload(raw)
	if err != nil {
		return "", err
	}

	return compressedPrefix + base64.StdEncoding.EncodeToString(compressed), nil
}

func (c *entryCodec) decode(value string) (*types.CacheEntry, error) {
	raw := []byte(value)

	if strings.HasPrefix(value, compressedPrefix) {
		compressed, err := base64.StdEncoding.DecodeString(value[len(compressedPrefix):])
		if err != nil {
			return nil, types.Errorf(types.ErrCacheEntryCorrupted, "bad base64 payload: %v", err)
		}

		raw, err = io.ReadAll(brotli.NewReader(bytes.NewReader(compressed)))
		if err != nil {
			return nil, types.Errorf(types.ErrCacheEntryCorrupted, "bad brotli payload: %v", err)
		}
	}

	var wire persistedEntry
	if err := utils.Unmarshal(raw, &wire); err != nil {
		return nil, types.Errorf(types.ErrCacheEntryCorrupted, "bad json payload: %v", err)
	}

	if wire.CreatedAt == "" {
		return nil, types.Errorf(types.ErrCacheEntryCorrupted, "missing created_at")
	}

	createdAt, err := time.Parse(time.RFC3339Nano, wire.CreatedAt)
	if err != nil {
		return nil, types.Errorf(types.ErrCacheEntryCorrupted, "bad created_at: %v", err)
	}

	entry := &types.CacheEntry{
		Data:      wire.Data,
		CreatedAt: createdAt,
	}

	if wire.ExpiresAt != nil {
		expiresAt, err := time.Parse(time.RFC3339Nano, *wire.ExpiresAt)
		if err != nil {
			return nil, types.Errorf(types.ErrCacheEntryCorrupted, "bad expires_at: %v", err)
		}
		entry.ExpiresAt = expiresAt
	}

	return entry, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (c *entryCodec) compressPayload(raw []byte) ([]byte, error) {
	var buf bytes.Buffer

	writer := c.writerPool.Get().(*brotli.Writer)
	writer.Reset(&buf)
	defer func() {
		writer.Reset(nil)
		c.writerPool.Put(writer)
	}()

	if _, err := writer.Write(raw); err != nil {
		return nil, types.WrapError(err, "failed to compress cache entry")
	}

	if err := writer.Close(); err != nil {
		return nil, types.WrapError(err, "failed to flush compressed cache entry")
	}

	return buf.Bytes(), nil
}
