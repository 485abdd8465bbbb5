// Package indexer embeds dataset descriptions into the vector index searched
// by the dataset selector.
package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultBatchSize is the number of descriptions embedded per request.
const DefaultBatchSize = 32

// Result summarizes one indexing run.
type Result struct {
	Datasets int           `json:"datasets"`
	Vectors  int           `json:"vectors"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Indexer handles dataset indexing: describe → embed → upsert.
type Indexer struct {
	embeddings contracts.EmbeddingDriver
	index      contracts.VectorStoreDriver
	batchSize  int
}

// New creates an indexer. batchSize <= 0 selects DefaultBatchSize.
func New(emb contracts.EmbeddingDriver, index contracts.VectorStoreDriver, batchSize int) *Indexer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Indexer{embeddings: emb, index: index, batchSize: batchSize}
}

// Index embeds the description of every dataset and upserts it keyed by the
// dataset id, so re-indexing replaces earlier documents.
func (ix *Indexer) Index(ctx context.Context, datasets []*models.Dataset) (*Result, error) {
	start := time.Now()
	if len(datasets) == 0 {
		return &Result{}, nil
	}

	texts := make([]string, len(datasets))
	for i, ds := range datasets {
		texts[i] = ds.Describe()
	}

	var vectors [][]float64
	for i := 0; i < len(texts); i += ix.batchSize {
		end := i + ix.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := ix.embeddings.Embed(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", i, end, err)
		}
		if len(batch) != end-i {
			return nil, fmt.Errorf("embed batch %d-%d: got %d vectors", i, end, len(batch))
		}
		vectors = append(vectors, batch...)
	}

	now := time.Now()
	docs := make([]models.VectorDoc, len(datasets))
	for i, ds := range datasets {
		meta, err := ds.ToMetadata()
		if err != nil {
			return nil, err
		}
		docs[i] = models.VectorDoc{
			ID:        ds.ID(),
			Content:   texts[i],
			Metadata:  meta.Map(),
			Vector:    vectors[i],
			CreatedAt: now,
		}
	}
	if err := ix.index.Upsert(ctx, docs); err != nil {
		return nil, fmt.Errorf("upsert vectors: %w", err)
	}

	result := &Result{Datasets: len(datasets), Vectors: len(docs), Elapsed: time.Since(start)}
	log.Info().
		Int("datasets", result.Datasets).
		Str("index", ix.index.Kind()).
		Dur("elapsed", result.Elapsed).
		Msg("Indexing complete")
	return result, nil
}
