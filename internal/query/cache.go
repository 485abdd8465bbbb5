package query

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// frameCache keeps recently decoded parquet files. Concurrent loads of the
// same href share one fetch.
type frameCache struct {
	fetch  func(ctx context.Context, href string) ([]byte, error)
	frames *lru.Cache[string, *frame]
	group  singleflight.Group
}

func newFrameCache(size int, fetch func(ctx context.Context, href string) ([]byte, error)) (*frameCache, error) {
	frames, err := lru.New[string, *frame](size)
	if err != nil {
		return nil, fmt.Errorf("create dataset cache: %w", err)
	}
	return &frameCache{fetch: fetch, frames: frames}, nil
}

func (c *frameCache) get(ctx context.Context, href string) (*frame, error) {
	if fr, ok := c.frames.Get(href); ok {
		return fr, nil
	}
	v, err, shared := c.group.Do(href, func() (interface{}, error) {
		data, err := c.fetch(ctx, href)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", href, err)
		}
		fr, err := decodeParquet(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", href, err)
		}
		c.frames.Add(href, fr)
		log.Debug().
			Str("href", href).
			Int("columns", len(fr.columns)).
			Int("rows", len(fr.rows)).
			Int("bytes", len(data)).
			Msg("Dataset loaded")
		return fr, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug().Str("href", href).Msg("Dataset load shared")
	}
	return v.(*frame), nil
}
