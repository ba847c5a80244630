package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lingopad/lexsync/pkg/core"
)

// CacheKey is the single local store entry holding the ledger cache.
const CacheKey = "ledger"

// Cache persists the summary in the local store with a dirty bit, so the
// engine can mutate it freely and flush once per operation.
type Cache struct {
	store core.LocalStore

	mu      sync.Mutex
	summary *Summary
	dirty   bool
	loaded  bool
}

// NewCache wraps a local store.
func NewCache(store core.LocalStore) *Cache {
	return &Cache{store: store, summary: New()}
}

// Load reads the cached ledger. A missing or corrupted entry starts fresh
// rather than failing: the ledger is recomputable by design.
func (c *Cache) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}

	data, err := c.store.Get(ctx, CacheKey)
	if errors.Is(err, core.ErrNotFound) {
		c.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("load ledger cache: %w", err)
	}

	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		// Corrupted cache self-heals as empty; the next resync rebuilds it.
		c.summary = New()
		c.loaded = true
		return nil
	}
	if summary.Counts == nil {
		summary.Counts = make(map[core.Kind]int)
	}
	if summary.Groups == nil {
		summary.Groups = make(map[core.Kind]map[string]int)
	}
	if summary.LastSyncedAt == nil {
		summary.LastSyncedAt = make(map[core.Kind]time.Time)
	}
	c.summary = &summary
	c.loaded = true
	return nil
}

// Mutate applies fn to the summary under the cache lock and marks it dirty.
func (c *Cache) Mutate(fn func(*Summary)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.summary)
	c.dirty = true
}

// Snapshot returns a copy safe to read without holding the lock.
func (c *Cache) Snapshot() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary.Clone()
}

// Flush persists the summary if it changed since the last flush.
func (c *Cache) Flush(ctx context.Context) error {
	c.mu.Lock()
	if !c.dirty {
		c.mu.Unlock()
		return nil
	}
	data, err := json.Marshal(c.summary)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	if err := c.store.Set(ctx, CacheKey, data); err != nil {
		return fmt.Errorf("flush ledger cache: %w", err)
	}

	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()
	return nil
}
