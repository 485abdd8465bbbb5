// Package selector picks the dataset that best matches a free-text query.
package selector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
	"github.com/rs/zerolog/log"
)

// ErrEmptyIndex is returned when the vector index holds no datasets.
var ErrEmptyIndex = errors.New("dataset index is empty")

// Selector embeds a query and asks the vector index for the single nearest
// dataset description.
type Selector struct {
	embeddings contracts.EmbeddingDriver
	index      contracts.VectorStoreDriver
}

// New creates a selector.
func New(emb contracts.EmbeddingDriver, index contracts.VectorStoreDriver) *Selector {
	return &Selector{embeddings: emb, index: index}
}

// Select returns the best-matching dataset and its similarity score.
// Errors are returned as-is; there is no retry.
func (s *Selector) Select(ctx context.Context, query string) (*models.Dataset, float64, error) {
	start := time.Now()

	vectors, err := s.embeddings.Embed(ctx, []string{query})
	if err != nil {
		return nil, 0, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, 0, fmt.Errorf("no embedding returned for query")
	}

	results, err := s.index.Search(ctx, vectors[0], 1)
	if err != nil {
		return nil, 0, fmt.Errorf("search index: %w", err)
	}
	if len(results) == 0 {
		return nil, 0, ErrEmptyIndex
	}

	ds, err := toDataset(results[0].Doc)
	if err != nil {
		return nil, 0, err
	}

	log.Info().
		Str("dataset", ds.ID()).
		Float64("score", results[0].Score).
		Dur("elapsed", time.Since(start)).
		Msg("Dataset selected")
	return ds, results[0].Score, nil
}

// List returns every indexed dataset in index order.
func (s *Selector) List(ctx context.Context) ([]*models.Dataset, error) {
	docs, err := s.index.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list index: %w", err)
	}
	out := make([]*models.Dataset, 0, len(docs))
	for _, doc := range docs {
		ds, err := toDataset(doc)
		if err != nil {
			log.Warn().Err(err).Str("doc", doc.ID).Msg("Skipping index entry without dataset metadata")
			continue
		}
		out = append(out, ds)
	}
	return out, nil
}

func toDataset(doc models.VectorDoc) (*models.Dataset, error) {
	meta, err := models.MetadataFromMap(doc.Metadata)
	if err != nil {
		return nil, fmt.Errorf("index entry %s: %w", doc.ID, err)
	}
	ds, err := meta.ToDataset()
	if err != nil {
		return nil, fmt.Errorf("index entry %s: %w", doc.ID, err)
	}
	return ds, nil
}
