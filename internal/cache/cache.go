// Package cache defines the retrieval cache contract shared by the
// in-memory and Redis-backed implementations, plus the stable cache-key
// derivation the distributed retriever uses on both.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Cache is the pluggable backend the distributed retriever caches
// RetrievalResult payloads through.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	// Invalidate clears every key when pattern is empty, otherwise every
	// key containing pattern as a substring. Returns the count removed.
	Invalidate(ctx context.Context, pattern string) (int, error)
	Stats() Stats
}

// Stats is the counter snapshot every Cache implementation maintains.
type Stats struct {
	Hits         int64
	Misses       int64
	Sets         int64
	Invalidations int64
	Size         int
}

// HitRate returns Hits/(Hits+Misses), or 0 when no lookups have occurred.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// userScopedFields are excluded from the cache key so two users issuing an
// otherwise identical query share a cache entry.
var userScopedFields = map[string]bool{
	"user_id":   true,
	"session_id": true,
}

// Key derives a stable cache key for query+opts: a sha256 hash over the
// canonical JSON encoding of {query, options}, with user-scoped fields
// stripped from options first.
func Key(query string, opts map[string]any) string {
	scrubbed := make(map[string]any, len(opts))
	keys := make([]string, 0, len(opts))
	for k := range opts {
		if userScopedFields[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		scrubbed[k] = opts[k]
	}

	payload, _ := json.Marshal(struct {
		Query   string         `json:"query"`
		Options map[string]any `json:"options"`
	}{Query: query, Options: scrubbed})

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
