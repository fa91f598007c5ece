// Package rediscache is the Redis-backed cache.Cache implementation for
// multi-process deployments where the in-memory default would fragment
// the cache per replica.
package rediscache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Basilakis/kai-sub004/internal/cache"
	"github.com/Basilakis/kai-sub004/internal/domain"
)

const keyPrefix = "rag:cache:"

// Cache wraps a redis.Client. Hit/miss/set/invalidation counters are kept
// process-local since Redis itself is shared across replicas.
type Cache struct {
	client *redis.Client

	hits          atomic.Int64
	misses        atomic.Int64
	sets          atomic.Int64
	invalidations atomic.Int64
}

// New builds a Cache backed by client.
func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, domain.NewDependencyError("redis", "get", err)
	}
	c.hits.Add(1)
	return val, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	if err := c.client.Set(ctx, keyPrefix+key, value, time.Duration(ttlSeconds)*time.Second).Err(); err != nil {
		return domain.NewDependencyError("redis", "set", err)
	}
	c.sets.Add(1)
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, pattern string) (int, error) {
	var cursor uint64
	removed := 0
	match := keyPrefix + "*" + pattern + "*"
	if pattern == "" {
		match = keyPrefix + "*"
	}

	for {
		keys, next, err := c.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return removed, domain.NewDependencyError("redis", "scan", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, domain.NewDependencyError("redis", "del", err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.invalidations.Add(int64(removed))
	return removed, nil
}

func (c *Cache) Stats() cache.Stats {
	size, _ := c.client.DBSize(context.Background()).Result()
	return cache.Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Sets:          c.sets.Load(),
		Invalidations: c.invalidations.Load(),
		Size:          int(size),
	}
}

var _ cache.Cache = (*Cache)(nil)
