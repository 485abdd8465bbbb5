package query

import (
	"context"
	"fmt"

	"github.com/adaptation-atlas/atlas-assistant/internal/catalog"
	"github.com/adaptation-atlas/atlas-assistant/internal/llm"
	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
	"github.com/rs/zerolog/log"
)

// Synthesizer turns a question about a dataset into SQL.
type Synthesizer struct {
	backend  contracts.ModelBackend
	engine   contracts.QueryEngine
	model    string
	preferS3 bool
}

// SynthesizerOption configures a Synthesizer.
type SynthesizerOption func(*Synthesizer)

// WithModel sets the model used for SQL generation.
func WithModel(model string) SynthesizerOption {
	return func(s *Synthesizer) { s.model = model }
}

// WithS3 makes generated queries read the asset's s3 alternate when it has one.
func WithS3(prefer bool) SynthesizerOption {
	return func(s *Synthesizer) { s.preferS3 = prefer }
}

// NewSynthesizer creates a synthesizer. engine is used for schema
// introspection and the sample rows shown to the model.
func NewSynthesizer(backend contracts.ModelBackend, engine contracts.QueryEngine, opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{backend: backend, engine: engine}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Href is the location generated queries read for ds.
func (s *Synthesizer) Href(ds *models.Dataset) string {
	if s.preferS3 {
		if href := ds.S3Href(); href != "" {
			return href
		}
	}
	return ds.Href()
}

// Synthesize asks the model for query parts and assembles them.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, ds *models.Dataset) (*models.SQLQuery, error) {
	href := s.Href(ds)

	schema, err := catalog.SchemaTable(ctx, ds, href, s.engine)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	head, err := catalog.HeadTable(ctx, href, s.engine)
	if err != nil {
		// The sample rows help but are not required.
		log.Warn().Err(err).Str("dataset", ds.ID()).Msg("Sample rows unavailable")
		head = "(unavailable)"
	}

	messages := []models.ChatMessage{
		{Role: models.RoleSystem, Content: Prompt(schema, head, ds.Item.Properties)},
		{Role: models.RoleUser, Content: question},
	}
	var parts Parts
	if err := llm.Parse(ctx, s.backend, s.model, messages, "sql_query_parts", PartsSchema, &parts); err != nil {
		return nil, err
	}
	if parts.Select == "" {
		return nil, fmt.Errorf("model returned an empty select clause")
	}

	q := parts.Assemble(href)
	log.Debug().Str("dataset", ds.ID()).Str("sql", q.Query).Msg("SQL generated")
	return &q, nil
}
