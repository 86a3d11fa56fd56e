// Package cache holds per-process caches for the memory engine.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"
)

// VectorCache caches query embeddings so repeated searches for the same text
// skip the provider round trip. It never holds memory entry data.
type VectorCache struct {
	lru    *LRUCache[string, []float32]
	model  string
	hits   atomic.Int64
	misses atomic.Int64
}

// VectorCacheStats is a snapshot of cache effectiveness.
type VectorCacheStats struct {
	Hits   int64
	Misses int64
	Size   int
}

// NewVectorCache creates a cache for vectors produced by one embedding model.
func NewVectorCache(model string, capacity int, ttl time.Duration) *VectorCache {
	return &VectorCache{
		lru:   NewLRUCache[string, []float32](capacity, ttl),
		model: model,
	}
}

// key hashes model and text so long queries do not bloat the map keys.
func (c *VectorCache) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Get returns a copy of the cached vector for text.
func (c *VectorCache) Get(text string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	vec, ok := c.lru.Get(c.key(text))
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return append([]float32(nil), vec...), true
}

// Set stores a copy of vec for text.
func (c *VectorCache) Set(text string, vec []float32) {
	if c == nil || len(vec) == 0 {
		return
	}
	c.lru.Set(c.key(text), append([]float32(nil), vec...))
}

func (c *VectorCache) Stats() VectorCacheStats {
	if c == nil {
		return VectorCacheStats{}
	}
	return VectorCacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.lru.Len(),
	}
}
