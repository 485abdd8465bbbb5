package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EmbeddedStore is an in-memory vector store using brute-force cosine
// similarity. The dataset catalog is small (hundreds of items), so a scan per
// query is fine. Its contents are loaded from a JSON snapshot written by the
// offline indexing job.
type EmbeddedStore struct {
	mu   sync.RWMutex
	docs map[string]*models.VectorDoc // key: doc ID
}

// NewEmbeddedStore creates an empty in-memory vector store.
func NewEmbeddedStore() *EmbeddedStore {
	return &EmbeddedStore{docs: make(map[string]*models.VectorDoc)}
}

// LoadSnapshot creates a store from a JSON array of VectorDocs.
func LoadSnapshot(ctx context.Context, path string) (*EmbeddedStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var docs []models.VectorDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	s := NewEmbeddedStore()
	if err := s.Upsert(ctx, docs); err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Int("docs", len(docs)).Msg("Embedded vector store loaded")
	return s, nil
}

// SaveSnapshot writes every document, vectors included, to path.
func (s *EmbeddedStore) SaveSnapshot(path string) error {
	s.mu.RLock()
	docs := make([]models.VectorDoc, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, *d)
	}
	s.mu.RUnlock()
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *EmbeddedStore) Kind() string { return "embedded" }

func (s *EmbeddedStore) Upsert(_ context.Context, docs []models.VectorDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, d := range docs {
		cp := d
		if cp.ID == "" {
			cp.ID = uuid.NewString()
		}
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		s.docs[cp.ID] = &cp
	}
	return nil
}

// Search ranks by cosine similarity; equal scores are ordered by ID so that
// results are stable across runs.
func (s *EmbeddedStore) Search(_ context.Context, vector []float64, topK int) ([]models.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []models.SearchResult
	for _, d := range s.docs {
		if len(d.Vector) != len(vector) {
			continue
		}
		candidates = append(candidates, models.SearchResult{Doc: *d, Score: cosineSimilarity(vector, d.Vector)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Doc.ID < candidates[j].Doc.ID
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}
	return candidates[:topK], nil
}

func (s *EmbeddedStore) List(_ context.Context) ([]models.VectorDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.VectorDoc, 0, len(s.docs))
	for _, d := range s.docs {
		cp := *d
		cp.Vector = nil
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *EmbeddedStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// ── Helpers ─────────────────────────────────────────────────

func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
