package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PgvectorStore implements VectorStoreDriver using PostgreSQL with the
// pgvector extension. The table is filled by the offline indexing job.
type PgvectorStore struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewPgvectorStore connects and creates the table if it doesn't exist.
func NewPgvectorStore(ctx context.Context, connURL string, maxConns, dimensions int) (*PgvectorStore, error) {
	poolCfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector config: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pgvector connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector ping: %w", err)
	}

	s := &PgvectorStore{pool: pool, dimensions: dimensions}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector migrate: %w", err)
	}

	log.Info().Str("host", poolCfg.ConnConfig.Host).Int("dims", dimensions).Msg("pgvector store initialized")
	return s, nil
}

func (s *PgvectorStore) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS atlas_datasets (
			id         TEXT PRIMARY KEY,
			content    TEXT NOT NULL DEFAULT '',
			metadata   JSONB NOT NULL DEFAULT '{}',
			vector     vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`, s.dimensions)

	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PgvectorStore) Kind() string { return "pgvector" }

func (s *PgvectorStore) Upsert(ctx context.Context, docs []models.VectorDoc) error {
	if len(docs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO atlas_datasets (id, content, metadata, vector, created_at) VALUES `)

	args := make([]interface{}, 0, len(docs)*5)
	for i, d := range docs {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i*5 + 1
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)", base, base+1, base+2, base+3, base+4)
		id := d.ID
		if id == "" {
			id = uuid.NewString()
		}
		created := d.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		metadata := d.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		args = append(args, id, d.Content, metadata, pgvectorArray(d.Vector), created)
	}

	sb.WriteString(` ON CONFLICT (id) DO UPDATE SET
		content = EXCLUDED.content,
		metadata = EXCLUDED.metadata,
		vector = EXCLUDED.vector`)

	_, err := s.pool.Exec(ctx, sb.String(), args...)
	return err
}

func (s *PgvectorStore) Search(ctx context.Context, vector []float64, topK int) ([]models.SearchResult, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, content, metadata, created_at,
		1 - (vector <=> $1) AS score
		FROM atlas_datasets
		ORDER BY vector <=> $1, id
		LIMIT $2`, pgvectorArray(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var doc models.VectorDoc
		var score float64
		if err := rows.Scan(&doc.ID, &doc.Content, &doc.Metadata, &doc.CreatedAt, &score); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		results = append(results, models.SearchResult{Doc: doc, Score: score})
	}
	return results, rows.Err()
}

func (s *PgvectorStore) List(ctx context.Context) ([]models.VectorDoc, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, content, metadata, created_at FROM atlas_datasets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("pgvector list: %w", err)
	}
	defer rows.Close()

	var docs []models.VectorDoc
	for rows.Next() {
		var doc models.VectorDoc
		if err := rows.Scan(&doc.ID, &doc.Content, &doc.Metadata, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PgvectorStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM atlas_datasets").Scan(&count)
	return count, err
}

// Close releases the connection pool.
func (s *PgvectorStore) Close() {
	s.pool.Close()
}

// pgvectorArray converts a float64 slice to pgvector's text format: [1.0,2.0,3.0]
func pgvectorArray(v []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%g", f)
	}
	sb.WriteByte(']')
	return sb.String()
}
