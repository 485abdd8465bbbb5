package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
	gocache "github.com/patrickmn/go-cache"
)

// CachedDriver memoizes embeddings of identical texts for a TTL. Follow-up
// questions in a thread often repeat the same search terms.
type CachedDriver struct {
	next  contracts.EmbeddingDriver
	cache *gocache.Cache
}

// NewCachedDriver wraps next with a TTL cache.
func NewCachedDriver(next contracts.EmbeddingDriver, ttl time.Duration) *CachedDriver {
	return &CachedDriver{
		next:  next,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (c *CachedDriver) Kind() string    { return c.next.Kind() }
func (c *CachedDriver) Dimensions() int { return c.next.Dimensions() }

// Embed serves cached vectors and embeds only the misses, preserving order.
func (c *CachedDriver) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if v, ok := c.cache.Get(text); ok {
			vectors[i] = v.([]float64)
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	fresh, err := c.next.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missing) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d texts", c.next.Kind(), len(fresh), len(missing))
	}
	for j, v := range fresh {
		vectors[missingIdx[j]] = v
		c.cache.SetDefault(missing[j], v)
	}
	return vectors, nil
}

// Len returns the number of cached texts.
func (c *CachedDriver) Len() int {
	return c.cache.ItemCount()
}
