// Package memcache is the process-local, default cache.Cache
// implementation: an RWMutex-guarded map with per-entry TTL expiry.
package memcache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Basilakis/kai-sub004/internal/cache"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Cache is an in-memory TTL cache. Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry

	hits          atomic.Int64
	misses        atomic.Int64
	sets          atomic.Int64
	invalidations atomic.Int64
}

// New builds an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]entry)}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		c.misses.Add(1)
		if ok {
			c.mu.Lock()
			delete(c.entries, key)
			c.mu.Unlock()
		}
		return nil, false, nil
	}
	c.hits.Add(1)
	return e.value, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(time.Duration(ttlSeconds) * time.Second)}
	c.mu.Unlock()
	c.sets.Add(1)
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, pattern string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pattern == "" {
		n := len(c.entries)
		c.entries = make(map[string]entry)
		c.invalidations.Add(int64(n))
		return n, nil
	}

	removed := 0
	for k := range c.entries {
		if strings.Contains(k, pattern) {
			delete(c.entries, k)
			removed++
		}
	}
	c.invalidations.Add(int64(removed))
	return removed, nil
}

func (c *Cache) Stats() cache.Stats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()

	return cache.Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Sets:          c.sets.Load(),
		Invalidations: c.invalidations.Load(),
		Size:          size,
	}
}

var _ cache.Cache = (*Cache)(nil)
