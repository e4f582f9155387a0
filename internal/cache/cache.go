package cache

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Persister loads and saves full snapshots of the cache.
//
//go:generate mockgen -package=cachemock -destination=cachemock/mock_persister.go -source=cache.go Persister
type Persister interface {
	Load() (map[string]Entry, error)
	Save(entries map[string]Entry) error
}

// Cache is the process-wide symbol → Entry map shared by request handling
// and the refresher. The lock is only held for in-memory work.
type Cache struct {
	store Persister

	mu    sync.RWMutex
	items map[string]Entry

	// saveMu orders snapshot writes; the snapshot is taken while holding it
	// so the last save to finish always carries the newest state.
	saveMu sync.Mutex
}

// Open loads the snapshot from store. A missing snapshot yields an empty cache.
func Open(store Persister) (*Cache, error) {
	items, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load cache: %w", err)
	}
	if items == nil {
		items = make(map[string]Entry)
	}
	return &Cache{store: store, items: items}, nil
}

// Get returns the entry for symbol, if any.
func (c *Cache) Get(symbol string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[symbol]
	return e, ok
}

// Set replaces the entry for symbol.
func (c *Cache) Set(symbol string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[symbol] = e
}

// Symbols returns the sorted key set at the time of the call.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	keys := slices.Collect(maps.Keys(c.items))
	c.mu.RUnlock()
	slices.Sort(keys)
	return keys
}

// Snapshot returns a copy of all entries.
func (c *Cache) Snapshot() map[string]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.items)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Persist writes the full current state through the store.
func (c *Cache) Persist() error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	if err := c.store.Save(c.Snapshot()); err != nil {
		return fmt.Errorf("save cache: %w", err)
	}
	return nil
}
