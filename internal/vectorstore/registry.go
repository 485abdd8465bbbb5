// Package vectorstore holds the pre-indexed dataset descriptions searched by
// the dataset selector. Drivers: embedded (JSON snapshot, brute-force cosine)
// and pgvector (PostgreSQL).
package vectorstore

import (
	"context"
	"fmt"

	"github.com/adaptation-atlas/atlas-assistant/internal/config"
	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
	"github.com/rs/zerolog/log"
)

// Open returns the configured driver and a close function.
func Open(ctx context.Context, cfg *config.Config, dimensions int) (contracts.VectorStoreDriver, func(), error) {
	switch cfg.VectorStore.Kind {
	case "embedded":
		s, err := LoadSnapshot(ctx, cfg.VectorStore.Snapshot)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case "pgvector":
		s, err := NewPgvectorStore(ctx, cfg.Database.URL, cfg.Database.MaxConnections, dimensions)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("vector store driver not found: %s", cfg.VectorStore.Kind)
	}
}

// LogStats reports the document count of the store at startup.
func LogStats(ctx context.Context, store contracts.VectorStoreDriver) {
	n, err := store.Count(ctx)
	if err != nil {
		log.Warn().Err(err).Str("kind", store.Kind()).Msg("Vector store count failed")
		return
	}
	if n == 0 {
		log.Warn().Str("kind", store.Kind()).Msg("Vector store is empty; dataset selection will fail")
		return
	}
	log.Info().Str("kind", store.Kind()).Int("docs", n).Msg("Vector store driver registered")
}
