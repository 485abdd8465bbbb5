package chart_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/adaptation-atlas/atlas-assistant/internal/chart"
	"github.com/adaptation-atlas/atlas-assistant/internal/llm"
	"github.com/adaptation-atlas/atlas-assistant/internal/llm/llmtest"
	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cropTable() *models.Table {
	return &models.Table{
		Columns: []string{"crop", "total", "country"},
		Rows: [][]any{
			{"maize", 4.0, "KEN"},
			{"beans", int64(2), "KEN"},
		},
	}
}

func TestValidateRegistry(t *testing.T) {
	require.NoError(t, chart.ValidateRegistry())
	assert.Equal(t, []string{"bar", "map", "area", "line", "dot", "beeswarm", "heatmap"}, chart.ValidKinds())
	for _, e := range chart.Entries() {
		assert.Equal(t, "generate_"+string(e.Kind)+"_chart_metadata", e.ToolName())
	}
}

func TestLookup(t *testing.T) {
	e, ok := chart.Lookup(" Bar ")
	require.True(t, ok)
	assert.Equal(t, chart.Bar, e.Kind)

	_, ok = chart.Lookup("pie")
	assert.False(t, ok)
	assert.Equal(t, `Unknown chart kind "pie". Valid chart kinds are: bar, map, area, line, dot, beeswarm, heatmap`,
		chart.UnknownKindMessage("pie"))
}

func TestColumnOrderHint(t *testing.T) {
	for _, kind := range []string{"heatmap", "dot"} {
		e, ok := chart.Lookup(kind)
		require.True(t, ok)
		assert.Contains(t, e.Description, chart.ColumnOrder, kind)
	}

	// A heatmap shaped the way the hint asks for passes Check.
	table := &models.Table{
		Columns: []string{"crop", "total", "admin0_name"},
		Rows:    [][]any{{"maize", 12.5, "Kenya"}},
	}
	assert.NoError(t, chart.Check(table))
}

func TestSchema(t *testing.T) {
	e, _ := chart.Lookup("map")
	schema := e.Schema()
	assert.Equal(t, []string{"title", "id_column", "value_column", "color_scheme"}, schema["required"])
	props := schema["properties"].(map[string]interface{})
	assert.Equal(t, "string", props["id_column"].(map[string]interface{})["type"])
	assert.Equal(t, []string{"string", "null"}, props["color_scheme"].(map[string]interface{})["type"])
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name  string
		table *models.Table
		want  string
	}{
		{"no rows", &models.Table{Columns: []string{"a", "b"}}, "no rows"},
		{"one column", &models.Table{Columns: []string{"a"}, Rows: [][]any{{"x"}}}, "single column"},
		{"text second column", &models.Table{Columns: []string{"a", "b"}, Rows: [][]any{{"x", "y"}}}, "`b` is not numeric"},
		{"null second column", &models.Table{Columns: []string{"a", "b"}, Rows: [][]any{{"x", nil}}}, "not numeric"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := chart.Check(tt.table)
			require.Error(t, err)
			assert.True(t, errors.Is(err, chart.ErrUnsuitable))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.NoError(t, chart.Check(cropTable()))
}

func TestSynthesize_Bar(t *testing.T) {
	backend := llmtest.New().ReplyJSON(map[string]any{
		"title":           "Crop totals in Kenya",
		"x_column":        "crop",
		"y_column":        "total",
		"grouping_column": nil,
	})
	s := chart.NewSynthesizer(backend, "codestral-latest")

	result, err := s.Synthesize(context.Background(), "bar", cropTable())
	require.NoError(t, err)
	assert.Empty(t, result.Missing)

	meta, ok := result.Metadata.(*chart.BarMetadata)
	require.True(t, ok)
	assert.Equal(t, "crop", meta.XColumn)
	assert.Equal(t, "total", meta.YColumn)
	assert.Nil(t, meta.GroupingColumn)

	assert.Equal(t, "Bar chart metadata:\n\n```json\n{\n  \"title\": \"Crop totals in Kenya\",\n"+
		"  \"x_column\": \"crop\",\n  \"y_column\": \"total\",\n  \"grouping_column\": null\n}\n```",
		result.Content())

	c := result.Chart()
	assert.Equal(t, "bar", c.Kind)
	assert.JSONEq(t, `{"title":"Crop totals in Kenya","x_column":"crop","y_column":"total","grouping_column":null}`, string(c.Metadata))

	req := backend.Requests()[0]
	assert.Equal(t, "codestral-latest", req.Model)
	assert.Equal(t, "bar_chart_metadata", req.ResponseFormat.JSONSchema.Name)
	prompt := req.Messages[0].Content
	assert.True(t, strings.HasPrefix(prompt, "You are an expert in data visualization.\n\n"))
	assert.Contains(t, prompt, "create a bar chart by:\n\n1. Identifying the best categorical field for the X-axis\n")
	assert.Contains(t, prompt, `"crop": "maize"`)
	assert.Contains(t, prompt, "The data has these columns: crop, total, country")
}

func TestSynthesize_Defaults(t *testing.T) {
	tests := []struct {
		kind  string
		reply map[string]any
		want  string
	}{
		{"map", map[string]any{"title": "t", "id_column": "country", "value_column": "total", "color_scheme": nil}, "Oranges"},
		{"heatmap", map[string]any{"title": "t", "x_column": "crop", "y_column": "country", "value_column": "total", "color_scheme": ""}, "YlOrRd"},
		{"map", map[string]any{"title": "t", "id_column": "country", "value_column": "total", "color_scheme": "Blues"}, "Blues"},
	}
	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.want, func(t *testing.T) {
			s := chart.NewSynthesizer(llmtest.New().ReplyJSON(tt.reply), "")
			result, err := s.Synthesize(context.Background(), tt.kind, cropTable())
			require.NoError(t, err)
			assert.Contains(t, result.JSON(), `"color_scheme": "`+tt.want+`"`)
		})
	}
}

func TestSynthesize_MissingColumns(t *testing.T) {
	backend := llmtest.New().ReplyJSON(map[string]any{
		"title": "t", "x_column": "year", "y_column": "total", "grouping_column": "region", "size_column": nil,
	})
	s := chart.NewSynthesizer(backend, "")

	result, err := s.Synthesize(context.Background(), "dot", cropTable())
	require.NoError(t, err)
	assert.Equal(t, []string{"year", "region"}, result.Missing)
	assert.Contains(t, result.Content(), "Warning: these columns are not in the data: year, region")
}

func TestSynthesize_Rejections(t *testing.T) {
	backend := llmtest.New()
	s := chart.NewSynthesizer(backend, "")

	_, err := s.Synthesize(context.Background(), "pie", cropTable())
	assert.ErrorContains(t, err, "Valid chart kinds are")

	_, err = s.Synthesize(context.Background(), "bar", &models.Table{Columns: []string{"a"}, Rows: [][]any{{"x"}}})
	assert.ErrorIs(t, err, chart.ErrUnsuitable)
	assert.Empty(t, backend.Requests())
}

func TestSynthesize_BackendError(t *testing.T) {
	backend := llmtest.New().Fail(&llm.BackendError{Provider: "mistral", Err: errors.New("down")})
	s := chart.NewSynthesizer(backend, "")

	_, err := s.Synthesize(context.Background(), "line", cropTable())
	assert.ErrorIs(t, err, llm.ErrBackend)
}

func TestPrompt_TruncatesRows(t *testing.T) {
	table := &models.Table{Columns: []string{"i", "v"}}
	for i := 0; i < chart.PromptRows+5; i++ {
		table.Rows = append(table.Rows, []any{int64(i), float64(i)})
	}
	e, _ := chart.Lookup("area")
	prompt, err := chart.Prompt(e, table)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Only the first 100 of 105 rows are shown.")
	assert.NotContains(t, prompt, `"i": 104`)
	assert.Contains(t, prompt, "Notes:\n- The x_column should be a sequential")
}
