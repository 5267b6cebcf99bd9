package embed

import (
	"context"
	"time"

	"github.com/Protocol-Lattice/story-memory/src/cache"
)

// CachedEmbedder memoizes embeddings by text. Embeddings are pure per model, so a
// cached vector is always valid for the same input.
type CachedEmbedder struct {
	inner Embedder
	cache *cache.LRU[[]float32]
	scope string
}

// NewCached wraps inner with an LRU of size entries. scope separates caches that
// share keys across models.
func NewCached(inner Embedder, size int, ttl time.Duration, scope string) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache.New[[]float32](size, ttl), scope: scope}
}

func (c *CachedEmbedder) Dimension() int { return DimensionOf(c.inner, 0) }

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.HashKey(c.scope, text)
	if v, ok := c.cache.Get(key); ok {
		return append([]float32(nil), v...), nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, append([]float32(nil), v...))
	return v, nil
}

// Stats exposes cache hit/miss counters.
func (c *CachedEmbedder) Stats() (hits, misses uint64) { return c.cache.Stats() }
