package chart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/adaptation-atlas/atlas-assistant/internal/llm"
	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
	"github.com/rs/zerolog/log"
)

// PromptRows bounds the rows embedded in a chart prompt.
const PromptRows = 100

// NoDataMessage is the tool message when no result has been queried yet.
const NoDataMessage = "No data have been queried from the dataset"

// ColumnOrder tells the model how Check expects a result to be laid out.
const ColumnOrder = "Every chart needs the numeric value in the second column of the SQL result, " +
	"so put it right after the first category, e.g. SELECT crop, SUM(value) AS total, admin0_name."

// ErrUnsuitable is wrapped by Check when a result cannot be charted.
var ErrUnsuitable = errors.New("data cannot be charted")

// Check rejects results that cannot be charted: no rows, a single column,
// or a non-numeric second column.
func Check(t *models.Table) error {
	switch {
	case t.Len() == 0:
		return fmt.Errorf("%w: the queried data has no rows", ErrUnsuitable)
	case len(t.Columns) < 2:
		return fmt.Errorf("%w: the queried data has a single column, a chart needs a "+
			"category column followed by a numeric column", ErrUnsuitable)
	case !t.ColumnIsNumeric(1):
		return fmt.Errorf("%w: the second column `%s` is not numeric, re-generate the SQL so "+
			"that the second column holds the values to chart", ErrUnsuitable, t.Columns[1])
	}
	return nil
}

// Result is synthesized chart metadata.
type Result struct {
	Entry    Entry
	Metadata Metadata
	// Missing lists referenced columns absent from the data.
	Missing []string
}

// JSON returns the metadata as indented JSON.
func (r *Result) JSON() string {
	data, _ := json.MarshalIndent(r.Metadata, "", "  ")
	return string(data)
}

// Content is the tool message text for the result.
func (r *Result) Content() string {
	content := fmt.Sprintf("%s chart metadata:\n\n```json\n%s\n```", r.Entry.Label, r.JSON())
	if len(r.Missing) > 0 {
		content += fmt.Sprintf("\n\nWarning: these columns are not in the data: %s", strings.Join(r.Missing, ", "))
	}
	return content
}

// Chart returns the state form of the result.
func (r *Result) Chart() *models.Chart {
	data, _ := json.Marshal(r.Metadata)
	return &models.Chart{Kind: string(r.Entry.Kind), Metadata: data}
}

// Synthesizer asks the model backend for chart metadata.
type Synthesizer struct {
	backend contracts.ModelBackend
	model   string
}

// NewSynthesizer creates a synthesizer using model for every request.
func NewSynthesizer(backend contracts.ModelBackend, model string) *Synthesizer {
	return &Synthesizer{backend: backend, model: model}
}

// Synthesize builds metadata of the given kind for t. Callers check the
// kind with Lookup and the data with Check first; Synthesize repeats both
// checks and returns their errors.
func (s *Synthesizer) Synthesize(ctx context.Context, kind string, t *models.Table) (*Result, error) {
	entry, ok := Lookup(kind)
	if !ok {
		return nil, errors.New(UnknownKindMessage(kind))
	}
	if err := Check(t); err != nil {
		return nil, err
	}

	prompt, err := Prompt(entry, t)
	if err != nil {
		return nil, err
	}
	meta := entry.New()
	messages := []models.ChatMessage{{Role: models.RoleSystem, Content: prompt}}
	if err := llm.Parse(ctx, s.backend, s.model, messages, string(entry.Kind)+"_chart_metadata", entry.Schema(), meta); err != nil {
		return nil, err
	}
	meta.normalize()

	result := &Result{Entry: entry, Metadata: meta}
	known := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		known[c] = true
	}
	for _, c := range meta.Columns() {
		if !known[c] {
			result.Missing = append(result.Missing, c)
		}
	}
	if len(result.Missing) > 0 {
		log.Warn().
			Str("kind", string(entry.Kind)).
			Strs("missing", result.Missing).
			Strs("columns", t.Columns).
			Msg("Chart metadata references unknown columns")
	}
	return result, nil
}

// Prompt builds the system prompt for entry over t.
func Prompt(entry Entry, t *models.Table) (string, error) {
	rows := t
	if t.Len() > PromptRows {
		rows = t.Head(PromptRows)
	}
	data, err := json.MarshalIndent(rows.Records(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode chart data: %w", err)
	}
	schema, err := json.MarshalIndent(entry.Schema(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode chart schema: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert in data visualization%s.\n\n", entry.Expert)
	fmt.Fprintf(&b, "Your task is to analyze the following data and create %s by:\n\n", entry.Noun)
	for i, step := range entry.Steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	b.WriteString("\nData to visualize:\n\n```json\n")
	b.Write(data)
	b.WriteString("\n```\n\n")
	if t.Len() > PromptRows {
		fmt.Fprintf(&b, "Only the first %d of %d rows are shown.\n\n", PromptRows, t.Len())
	}
	b.WriteString("The data has these columns: ")
	b.WriteString(strings.Join(t.Columns, ", "))
	b.WriteString("\n\nYou must respond with a JSON object matching this schema:\n\n```json\n")
	b.Write(schema)
	b.WriteString("\n```\n")
	if len(entry.Notes) > 0 {
		b.WriteString("\nNotes:\n")
		for _, n := range entry.Notes {
			b.WriteString("- " + n + "\n")
		}
	}
	return b.String(), nil
}
