package memcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetGet(t *testing.T) {
	c := New()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), 60))
	val, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), val)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.InDelta(t, 0.5, stats.HitRate(), 0.001)
}

func TestCache_ExpiresEntries(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), 0))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok, "ttl of 0 should expire immediately")
}

func TestCache_Invalidate(t *testing.T) {
	tests := []struct {
		name       string
		seed       []string
		pattern    string
		wantRemoved int
		wantRemain  []string
	}{
		{
			name:       "empty pattern clears everything",
			seed:       []string{"a:1", "a:2", "b:1"},
			pattern:    "",
			wantRemoved: 3,
			wantRemain:  nil,
		},
		{
			name:       "substring pattern clears matching keys",
			seed:       []string{"a:1", "a:2", "b:1"},
			pattern:    "a:",
			wantRemoved: 2,
			wantRemain:  []string{"b:1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			ctx := context.Background()
			for _, k := range tt.seed {
				require.NoError(t, c.Set(ctx, k, []byte("v"), 60))
			}

			removed, err := c.Invalidate(ctx, tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRemoved, removed)

			for _, k := range tt.wantRemain {
				_, ok, _ := c.Get(ctx, k)
				assert.True(t, ok, "key %s should remain", k)
			}
			assert.Equal(t, len(tt.wantRemain), c.Stats().Size)
		})
	}
}
