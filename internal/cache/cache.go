package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cespare/xxhash/v2"

	"github.com/phobologic/layerguard/internal/model"
)

// FileCache stores extracted file references keyed by extractor schema
// version, file path and a content fingerprint. An edited file gets a new
// key, so entries never need invalidating.
type FileCache struct {
	store  Store
	schema string
	logger *slog.Logger
}

// NewFileCache wraps store. schema should change whenever the shape of
// extracted references changes.
func NewFileCache(store Store, schema string, logger *slog.Logger) *FileCache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileCache{store: store, schema: schema, logger: logger}
}

// Key returns the cache key for a file with the given content.
func (c *FileCache) Key(path string, content []byte) []byte {
	return fmt.Appendf(nil, "v%s\x00%s\x00%016x", c.schema, path, xxhash.Sum64(content))
}

// Get returns the cached reference for path and content. Unreadable or
// corrupt entries are logged and reported as misses.
func (c *FileCache) Get(path string, content []byte) (model.FileReference, bool) {
	raw, ok, err := c.store.Get(c.Key(path, content))
	if err != nil {
		c.logger.Warn("cache read failed", "file", path, "error", err)
		return model.FileReference{}, false
	}
	if !ok {
		return model.FileReference{}, false
	}
	var fr model.FileReference
	if err := json.Unmarshal(raw, &fr); err != nil || fr.Path != path {
		c.logger.Debug("discarding corrupt cache entry", "file", path)
		return model.FileReference{}, false
	}
	return fr, true
}

// Put stores fr for path and content. Concurrent puts for the same key
// write the same value.
func (c *FileCache) Put(path string, content []byte, fr model.FileReference) error {
	raw, err := json.Marshal(fr)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return c.store.Put(c.Key(path, content), raw)
}

// Close closes the underlying store.
func (c *FileCache) Close() error {
	return c.store.Close()
}
