// Package contracts defines the collaborator interfaces of the assistant.
//
// The orchestrator and the API layer depend only on these interfaces, so a
// collaborator (model backend, vector index, query engine, thread store) can be
// swapped in the wiring code in pkg/server without touching the state machine.
package contracts

import (
	"context"
	"errors"

	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
)

// ErrNotFound is returned by stores when a key does not exist.
var ErrNotFound = errors.New("not found")

// ── Model Backend ───────────────────────────────────────────

// ModelBackend sends one completion request to a language model.
// Implementation: internal/llm.Router
type ModelBackend interface {
	Complete(ctx context.Context, req *models.CompletionRequest) (*models.CompletionResponse, error)
}

// ── Embeddings ──────────────────────────────────────────────

// EmbeddingDriver turns text into vectors.
// Implementations: internal/embeddings.OpenAIDriver, CachedDriver
type EmbeddingDriver interface {
	// Kind returns the driver identifier (e.g. "openai", "mistral", "ollama").
	Kind() string

	// Dimensions returns the vector size produced by the configured model.
	Dimensions() int

	// Embed returns one vector per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// ── Vector Store ────────────────────────────────────────────

// VectorStoreDriver holds pre-indexed dataset descriptions.
// Implementations: internal/vectorstore.EmbeddedStore, PgvectorStore
type VectorStoreDriver interface {
	Kind() string

	// Upsert adds or replaces documents.
	Upsert(ctx context.Context, docs []models.VectorDoc) error

	// Search returns the topK documents closest to vector, best first.
	Search(ctx context.Context, vector []float64, topK int) ([]models.SearchResult, error)

	// List returns every stored document without vectors.
	List(ctx context.Context) ([]models.VectorDoc, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)
}

// ── Query Engine ────────────────────────────────────────────

// QueryEngine executes SQL against dataset storage.
// Implementation: internal/query.SQLiteEngine
type QueryEngine interface {
	// Query runs sql and returns the full result.
	Query(ctx context.Context, sql string) (*models.Table, error)

	// Columns introspects the columns of the parquet file at href.
	Columns(ctx context.Context, href string) ([]models.TableColumn, error)
}

// ── Thread Store ────────────────────────────────────────────

// ThreadStore persists Conversation State keyed by thread id.
// Implementations: internal/sessions.MemoryStore, TTLStore, BoltStore
type ThreadStore interface {
	// GetThread returns ErrNotFound when the thread does not exist.
	GetThread(ctx context.Context, id string) (*models.Thread, error)

	// SaveThread creates or replaces the thread.
	SaveThread(ctx context.Context, thread *models.Thread) error

	DeleteThread(ctx context.Context, id string) error
}
