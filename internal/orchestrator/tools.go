package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/adaptation-atlas/atlas-assistant/internal/chart"
	"github.com/adaptation-atlas/atlas-assistant/internal/llm"
	"github.com/adaptation-atlas/atlas-assistant/internal/query"
	"github.com/adaptation-atlas/atlas-assistant/internal/telemetry"
	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Tool names.
const (
	ListDatasetsTool  = "list_datasets"
	SelectDatasetTool = "select_dataset"
	GenerateSQLTool   = "generate_sql"
	ExecuteSQLTool    = "execute_sql"
	GenerateChartTool = "generate_chart"
	OutputTool        = "Output"
)

// Precondition messages.
const (
	NoDatasetMessage = "No dataset selected"
	NoQueryMessage   = "No sql query has been generated"
)

type toolFunc func(ctx context.Context, thread *models.Thread, args json.RawMessage) (toolResult, error)

type tool struct {
	def models.ToolDefinition
	run toolFunc
}

// toolResult becomes one tool message. A non-nil error returned next to it
// from a toolFunc aborts the turn instead.
type toolResult struct {
	content  string
	status   string
	artifact any
}

func toolError(format string, args ...any) toolResult {
	return toolResult{content: fmt.Sprintf(format, args...), status: models.ToolStatusError}
}

func (r toolResult) message(call models.ToolCall) models.ChatMessage {
	status := r.status
	if status == "" {
		status = models.ToolStatusSuccess
	}
	msg := models.ChatMessage{
		Role:       models.RoleTool,
		Content:    r.content,
		ToolCallID: call.ID,
		Name:       call.Function.Name,
		Status:     status,
	}
	if r.artifact != nil {
		data, err := json.Marshal(r.artifact)
		if err != nil {
			log.Error().Err(err).Str("tool", call.Function.Name).Msg("Failed to encode tool artifact")
		} else {
			msg.Artifact = data
		}
	}
	return msg
}

// ── Registration ────────────────────────────────────────────

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	if required == nil {
		required = []string{}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func (o *Orchestrator) add(name, description string, params map[string]interface{}, run toolFunc) {
	def := models.ToolDefinition{
		Type: "function",
		Function: models.ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
	}
	o.defs = append(o.defs, def)
	if run != nil {
		o.tools[name] = &tool{def: def, run: run}
	}
}

func (o *Orchestrator) registerTools() {
	o.tools = make(map[string]*tool)
	noArgs := objectSchema(map[string]interface{}{})

	o.add(ListDatasetsTool, "Lists all datasets available to the assistant.", noArgs, o.listDatasets)
	o.add(SelectDatasetTool, "Selects a dataset based on a user's query.",
		objectSchema(map[string]interface{}{
			"query": map[string]interface{}{"type": "string", "description": "Search terms to select the dataset"},
		}, "query"), o.selectDataset)
	o.add(GenerateSQLTool, "Generates SQL to query a dataset.\n\nThere must be a selected dataset to generate SQL.",
		objectSchema(map[string]interface{}{
			"query": map[string]interface{}{"type": "string", "description": "The question that we're going to answer with an SQL query."},
		}, "query"), o.generateSQL)
	o.add(ExecuteSQLTool, "Executes the sql and returns the result.\n\nRequires that the SQL has been generated from the selected dataset.",
		noArgs, o.executeSQL)
	o.add(GenerateChartTool, "Generates metadata to use when creating a chart of the queried data.\n\n"+
		"Requires that we've generated a table of data first.",
		objectSchema(map[string]interface{}{
			"kind": map[string]interface{}{
				"type":        "string",
				"enum":        chart.ValidKinds(),
				"description": "The kind of chart to create",
			},
		}, "kind"), o.generateChart)
	for _, entry := range chart.Entries() {
		kind := string(entry.Kind)
		o.add(entry.ToolName(), entry.Description, noArgs,
			func(ctx context.Context, thread *models.Thread, _ json.RawMessage) (toolResult, error) {
				return o.chart(ctx, thread, kind)
			})
	}
	o.add(OutputTool, "Returns the final answer to the user. Call it once you are done.",
		objectSchema(map[string]interface{}{
			"answer": map[string]interface{}{"type": "string", "description": "A markdown-formatted answer to the user's question."},
			"queries": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Zero or more queries that will be used as suggestions for what the user might want to try next.",
			},
		}, "answer", "queries"), nil)
}

// ── Dispatch ────────────────────────────────────────────────

func (o *Orchestrator) dispatch(ctx context.Context, thread *models.Thread, call models.ToolCall) (toolResult, error) {
	name := call.Function.Name
	t, ok := o.tools[name]
	if !ok {
		names := make([]string, 0, len(o.tools))
		for n := range o.tools {
			names = append(names, n)
		}
		sort.Strings(names)
		return toolError("Error: %s is not a valid tool, try one of [%s].", name, strings.Join(names, ", ")), nil
	}

	args := json.RawMessage(call.Function.Arguments)
	if len(strings.TrimSpace(call.Function.Arguments)) == 0 {
		args = json.RawMessage("{}")
	}
	if !json.Valid(args) {
		return toolError("Error: invalid arguments for %s: %s", name, call.Function.Arguments), nil
	}

	ctx, span := telemetry.Tracer().Start(ctx, "tool."+name)
	defer span.End()
	span.SetAttributes(attribute.String("thread.id", thread.ID))

	start := time.Now()
	result, err := t.run(ctx, thread, args)
	elapsed := time.Since(start)

	status := result.status
	if status == "" {
		status = models.ToolStatusSuccess
	}
	if err != nil {
		status = models.ToolStatusError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	o.Metrics.ObserveTool(name, status, elapsed)
	log.Debug().
		Str("tool", name).
		Str("thread_id", thread.ID).
		Str("status", status).
		Dur("duration", elapsed).
		Msg("Tool dispatched")
	return result, err
}

// fatal separates backend failures, which end the turn, from other errors,
// which become tool messages.
func fatal(err error) bool {
	return errors.Is(err, llm.ErrBackend) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ── Tools ───────────────────────────────────────────────────

func (o *Orchestrator) listDatasets(ctx context.Context, _ *models.Thread, _ json.RawMessage) (toolResult, error) {
	datasets, err := o.Selector.List(ctx)
	if err != nil {
		if fatal(err) {
			return toolResult{}, err
		}
		return toolError("Error while listing datasets: %v", err), nil
	}
	descriptions := make([]string, len(datasets))
	for i, ds := range datasets {
		descriptions[i] = ds.Describe()
	}
	return toolResult{
		content: fmt.Sprintf("Got %d with these descriptions:\n\n", len(descriptions)) + strings.Join(descriptions, "- \n"),
	}, nil
}

func (o *Orchestrator) selectDataset(ctx context.Context, thread *models.Thread, raw json.RawMessage) (toolResult, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(raw, &args); err != nil || strings.TrimSpace(args.Query) == "" {
		return toolError("Error: select_dataset needs a non-empty query"), nil
	}
	ds, score, err := o.Selector.Select(ctx, args.Query)
	if err != nil {
		if fatal(err) {
			return toolResult{}, err
		}
		return toolError("Error while selecting a dataset: %v", err), nil
	}
	thread.Dataset = ds
	log.Info().
		Str("thread_id", thread.ID).
		Str("dataset", ds.ID()).
		Float64("score", score).
		Msg("Dataset selected")
	return toolResult{content: "Selected dataset: " + ds.Describe(), artifact: ds}, nil
}

func (o *Orchestrator) generateSQL(ctx context.Context, thread *models.Thread, raw json.RawMessage) (toolResult, error) {
	if thread.Dataset == nil {
		return toolResult{content: NoDatasetMessage}, nil
	}
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(raw, &args); err != nil || strings.TrimSpace(args.Query) == "" {
		return toolError("Error: generate_sql needs a non-empty query"), nil
	}
	q, err := o.SQL.Synthesize(ctx, args.Query, thread.Dataset)
	if err != nil {
		if fatal(err) {
			return toolResult{}, err
		}
		return toolError("Error while generating SQL: %v", err), nil
	}
	thread.SQLQuery = q
	return toolResult{content: query.GeneratedContent(q)}, nil
}

func (o *Orchestrator) executeSQL(ctx context.Context, thread *models.Thread, _ json.RawMessage) (toolResult, error) {
	if thread.SQLQuery == nil {
		return toolResult{content: NoQueryMessage}, nil
	}
	q := thread.SQLQuery
	table, err := o.Engine.Query(ctx, q.Query)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return toolResult{}, err
		}
		// A known-bad query must be regenerated, not retried.
		thread.SQLQuery = nil
		return toolError("%s", query.ErrorContent(err)), nil
	}
	thread.Result = table
	return toolResult{
		content:  query.ResultContent(table, q.Explanation),
		artifact: TableArtifact{Data: table, SQLQuery: q.Query},
	}, nil
}

func (o *Orchestrator) generateChart(ctx context.Context, thread *models.Thread, raw json.RawMessage) (toolResult, error) {
	var args struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return toolError("Error: invalid arguments for generate_chart: %v", err), nil
	}
	return o.chart(ctx, thread, args.Kind)
}

func (o *Orchestrator) chart(ctx context.Context, thread *models.Thread, kind string) (toolResult, error) {
	entry, ok := chart.Lookup(kind)
	if !ok {
		return toolError("%s", chart.UnknownKindMessage(kind)), nil
	}
	if thread.Result == nil {
		return toolResult{content: chart.NoDataMessage}, nil
	}
	if err := chart.Check(thread.Result); err != nil {
		return toolError("Cannot create %s: %v", entry.Noun, err), nil
	}

	result, err := o.Charts.Synthesize(ctx, string(entry.Kind), thread.Result)
	if err != nil {
		if fatal(err) {
			return toolResult{}, err
		}
		return toolError("Error while generating chart metadata: %v", err), nil
	}
	thread.Chart = result.Chart()
	return toolResult{
		content: result.Content(),
		artifact: ChartArtifact{
			ChartType:     string(entry.Kind),
			ChartMetadata: thread.Chart.Metadata,
			Data:          thread.Result,
		},
	}, nil
}
