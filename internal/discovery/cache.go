// Package discovery caches provider model lists in two tiers: a
// process-wide in-memory map and one JSON file per provider. Both tiers
// share TTL semantics; an entry older than its TTL is invalid regardless of
// where it lives. The file tier is foreign state that can be corrupted or
// absent at any time, so every file error degrades to a cache miss.
package discovery

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/scriptloom/llmrelay/pkg/types"
)

// DefaultTTL bounds how long a discovered model list is trusted.
const DefaultTTL = time.Hour

// entry is the stored record for one provider. The wire form matches the
// cache file layout: timestamp, models, and the (optional) provider name.
type entry struct {
	Timestamp int64         `json:"timestamp"`
	Models    []types.Model `json:"models"`
	Provider  string        `json:"provider,omitempty"`
}

// valid reports whether the record has a usable shape.
func (e entry) valid() bool {
	return e.Timestamp > 0 && e.Models != nil
}

// The memory tier is process-wide: every Cache instance and every provider
// of the same name shares it.
var memory = struct {
	sync.Mutex
	entries map[string]entry
}{entries: make(map[string]entry)}

// ClearAllMemory wipes the memory tier for every provider, leaving file
// tiers untouched. Used for test isolation and forced refresh.
func ClearAllMemory() {
	memory.Lock()
	defer memory.Unlock()
	memory.entries = make(map[string]entry)
}

// Cache is the two-tier model discovery cache for one cache directory.
type Cache struct {
	dir    string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// New creates a cache persisting under dir. An empty dir disables the file
// tier. A non-positive ttl falls back to the default.
func New(dir string, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		dir:    dir,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the cached model list for provider, consulting the memory
// tier first and falling through to the file tier. A file-tier hit
// repopulates the memory tier.
func (c *Cache) Get(provider string) ([]types.Model, bool) {
	memory.Lock()
	e, ok := memory.entries[provider]
	if ok {
		if !e.valid() {
			c.logger.Warn("evicting malformed cache entry", "provider", provider)
			delete(memory.entries, provider)
			memory.Unlock()
			return nil, false
		}
		if c.expired(e) {
			delete(memory.entries, provider)
			memory.Unlock()
			return nil, false
		}
		memory.Unlock()
		return e.Models, true
	}
	memory.Unlock()

	e, ok = c.readFile(provider)
	if !ok {
		return nil, false
	}

	memory.Lock()
	memory.entries[provider] = e
	memory.Unlock()
	return e.Models, true
}

// Set stores models in the memory tier and attempts to persist them to the
// file tier. Persistence failures are logged, never returned; the memory
// tier stays populated either way.
func (c *Cache) Set(provider string, models []types.Model) {
	if models == nil {
		models = []types.Model{}
	}
	e := entry{
		Timestamp: c.now().Unix(),
		Models:    models,
		Provider:  provider,
	}

	memory.Lock()
	memory.entries[provider] = e
	memory.Unlock()

	if c.dir == "" {
		return
	}
	if err := c.writeFile(provider, e); err != nil {
		c.logger.Warn("model cache persist failed", "provider", provider, "error", err)
	}
}

// Clear removes both tiers for one provider.
func (c *Cache) Clear(provider string) {
	memory.Lock()
	delete(memory.entries, provider)
	memory.Unlock()

	if c.dir == "" {
		return
	}
	if err := os.Remove(c.path(provider)); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("model cache file remove failed", "provider", provider, "error", err)
	}
}

func (c *Cache) path(provider string) string {
	return filepath.Join(c.dir, provider+".json")
}

func (c *Cache) expired(e entry) bool {
	return c.now().Sub(time.Unix(e.Timestamp, 0)) > c.ttl
}

// readFile parses the file tier for provider. Any read, parse, or shape
// problem is logged and treated as a miss.
func (c *Cache) readFile(provider string) (entry, bool) {
	if c.dir == "" {
		return entry{}, false
	}
	raw, err := os.ReadFile(c.path(provider))
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("model cache file unreadable", "provider", provider, "error", err)
		}
		return entry{}, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.logger.Warn("model cache file corrupt", "provider", provider, "error", err)
		return entry{}, false
	}
	if !e.valid() {
		c.logger.Warn("model cache file malformed", "provider", provider)
		return entry{}, false
	}
	if c.expired(e) {
		return entry{}, false
	}
	return e, true
}

// writeFile persists an entry atomically: write a temporary file in the
// cache directory, then rename it over the destination so a concurrent
// reader never observes a partial file.
func (c *Cache) writeFile(provider string, e entry) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, provider+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, c.path(provider)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
