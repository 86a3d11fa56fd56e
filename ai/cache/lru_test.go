package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache_SetGet(t *testing.T) {
	c := NewLRUCache[string, int](2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	// "b" is now least recently used.
	c.Set("c", 3)
	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())

	c.Set("a", 10)
	v, _ = c.Get("a")
	assert.Equal(t, 10, v)

	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
}

func TestLRUCache_TTL(t *testing.T) {
	c := NewLRUCache[string, int](10, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	now = now.Add(59 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRUCache_Defaults(t *testing.T) {
	c := NewLRUCache[string, int](0, 0)
	assert.Equal(t, 1000, c.capacity)
	assert.Equal(t, 5*time.Minute, c.ttl)
}

func TestLRUCache_Concurrent(t *testing.T) {
	c := NewLRUCache[int, int](50, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Set(base*1000+j, j)
				c.Get(base*1000 + j/2)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}

func TestVectorCache(t *testing.T) {
	c := NewVectorCache("model-a", 10, time.Minute)

	_, ok := c.Get("dark mode")
	assert.False(t, ok)

	vec := []float32{0.1, 0.2}
	c.Set("dark mode", vec)
	vec[0] = 9 // caller mutation must not leak into the cache

	got, ok := c.Get("dark mode")
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2}, got)

	got[1] = 9
	again, _ := c.Get("dark mode")
	assert.Equal(t, []float32{0.1, 0.2}, again)

	other := NewVectorCache("model-b", 10, time.Minute)
	assert.NotEqual(t, c.key("dark mode"), other.key("dark mode"))

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)

	var nilCache *VectorCache
	_, ok = nilCache.Get("x")
	assert.False(t, ok)
	nilCache.Set("x", vec)
	assert.Equal(t, VectorCacheStats{}, nilCache.Stats())
}
