package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ── Datasets ────────────────────────────────────────────────

// Item is a STAC item, reduced to the fields the assistant reads.
type Item struct {
	ID         string           `json:"id"`
	Properties Properties       `json:"properties"`
	Assets     map[string]Asset `json:"assets"`
}

// Properties holds the STAC item properties used for descriptions and prompts.
type Properties struct {
	Title           string        `json:"title,omitempty"`
	Description     string        `json:"description,omitempty"`
	TableColumns    []TableColumn `json:"table:columns,omitempty"`
	SQLInstructions []string      `json:"sql_instructions,omitempty"`
}

// TableColumn is one entry of the STAC table extension's column list.
type TableColumn struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Values      []any  `json:"values,omitempty"`
}

// Asset is a STAC asset. Href points at a parquet file.
type Asset struct {
	Href      string     `json:"href"`
	Title     string     `json:"title,omitempty"`
	Alternate *Alternate `json:"alternate,omitempty"`
}

// Alternate holds the alternate location of an asset, which points to s3.
type Alternate struct {
	S3 Asset `json:"s3"`
}

// Dataset is one queryable parquet asset inside a STAC item.
// It is treated as immutable once constructed.
type Dataset struct {
	Item     Item   `json:"item"`
	AssetKey string `json:"asset_key"`
}

// NewDataset builds a Dataset and checks that the asset key exists on the item.
func NewDataset(item Item, assetKey string) (*Dataset, error) {
	if item.ID == "" {
		return nil, fmt.Errorf("item id is required")
	}
	if _, ok := item.Assets[assetKey]; !ok {
		return nil, fmt.Errorf("item %s has no asset %q", item.ID, assetKey)
	}
	return &Dataset{Item: item, AssetKey: assetKey}, nil
}

// Asset returns the asset referenced by AssetKey.
func (d *Dataset) Asset() Asset {
	return d.Item.Assets[d.AssetKey]
}

// ID is the stable dataset identifier: item id and asset key.
func (d *Dataset) ID() string {
	return d.Item.ID + "/" + d.AssetKey
}

// Href returns the asset location with duplicated path slashes collapsed.
func (d *Dataset) Href() string {
	return CleanHref(d.Asset().Href)
}

// S3Href returns the alternate s3 location, or "" when the asset has none.
func (d *Dataset) S3Href() string {
	a := d.Asset()
	if a.Alternate == nil || a.Alternate.S3.Href == "" {
		return ""
	}
	return CleanHref(a.Alternate.S3.Href)
}

// Describe returns the deterministic text used for indexing and tool responses.
func (d *Dataset) Describe() string {
	var elements []string
	props := d.Item.Properties
	if props.Title != "" {
		elements = append(elements, "Title: "+props.Title)
	}
	if props.Description != "" {
		elements = append(elements, "Description: "+props.Description)
	} else {
		elements = append(elements, "ID: "+d.Item.ID)
	}
	if title := d.Asset().Title; title != "" {
		elements = append(elements, "Asset title: "+title)
	} else {
		elements = append(elements, "Asset key: "+d.AssetKey)
	}
	return strings.Join(elements, "\n")
}

// ToMetadata converts the dataset to the form stored next to its embedding.
func (d *Dataset) ToMetadata() (Metadata, error) {
	item, err := json.Marshal(d.Item)
	if err != nil {
		return Metadata{}, fmt.Errorf("encode item %s: %w", d.Item.ID, err)
	}
	return Metadata{Item: string(item), AssetKey: d.AssetKey}, nil
}

// Metadata is the vector-index representation of a Dataset.
// The item is kept as a JSON string.
type Metadata struct {
	Item     string `json:"item"`
	AssetKey string `json:"asset_key"`
}

// ToDataset decodes the metadata back into a Dataset.
func (m Metadata) ToDataset() (*Dataset, error) {
	var item Item
	if err := json.Unmarshal([]byte(m.Item), &item); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return NewDataset(item, m.AssetKey)
}

// MetadataFromMap reads Metadata out of a vector document's metadata map.
func MetadataFromMap(meta map[string]string) (Metadata, error) {
	item, ok := meta["item"]
	if !ok || item == "" {
		return Metadata{}, fmt.Errorf("metadata has no item")
	}
	return Metadata{Item: item, AssetKey: meta["asset_key"]}, nil
}

// Map returns the metadata as a flat string map for vector documents.
func (m Metadata) Map() map[string]string {
	return map[string]string{"item": m.Item, "asset_key": m.AssetKey}
}

// CleanHref collapses repeated slashes in the path part of an href,
// e.g. s3://bucket//key becomes s3://bucket/key.
func CleanHref(href string) string {
	scheme := ""
	rest := href
	if i := strings.Index(href, "://"); i >= 0 {
		scheme, rest = href[:i+3], href[i+3:]
	}
	for strings.Contains(rest, "//") {
		rest = strings.ReplaceAll(rest, "//", "/")
	}
	return scheme + rest
}

// ── Vector Index ────────────────────────────────────────────

// VectorDoc is a dataset description stored in the vector index.
type VectorDoc struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Vector    []float64         `json:"vector"`
	CreatedAt time.Time         `json:"created_at"`
}

// SearchResult is a single vector search result.
type SearchResult struct {
	Doc   VectorDoc `json:"doc"`
	Score float64   `json:"score"`
}

// ── Chat ────────────────────────────────────────────────────

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Query    string `json:"query"`
	ThreadID string `json:"thread_id,omitempty"`
}

// Output is the structured final answer of a chat turn.
type Output struct {
	Answer  string   `json:"answer"`
	Queries []string `json:"queries"`
}

// APIError is the body returned when the reasoning loop runs out of steps.
type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ── Model Backend ───────────────────────────────────────────

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Tool message statuses.
const (
	ToolStatusSuccess = "success"
	ToolStatusError   = "error"
)

// CompletionRequest is one call to the model backend.
type CompletionRequest struct {
	Messages []ChatMessage `json:"messages"`
	Model    string        `json:"model,omitempty"`

	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	Tools      []ToolDefinition `json:"tools,omitempty"`
	ToolChoice interface{}      `json:"tool_choice,omitempty"` // "auto", "none", "any", "required"

	// ParallelToolCalls is forwarded verbatim when set. The orchestrator
	// always sets it to false.
	ParallelToolCalls *bool `json:"parallel_tool_calls,omitempty"`
}

// ResponseFormat specifies structured output from the model.
type ResponseFormat struct {
	Type       string      `json:"type"` // "text", "json_object", "json_schema"
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// JSONSchema names a schema for json_schema response formats.
type JSONSchema struct {
	Name   string                 `json:"name"`
	Schema map[string]interface{} `json:"schema"`
	Strict bool                   `json:"strict,omitempty"`
}

// ToolDefinition describes a tool the model can call.
type ToolDefinition struct {
	Type     string       `json:"type"` // "function"
	Function ToolFunction `json:"function"`
}

// ToolFunction describes a callable function for tool-use.
type ToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"` // JSON Schema
}

// ToolCall is a structured tool call returned by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall is the function part of a ToolCall.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

// ChatMessage is one transcript entry.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // assistant messages with tool calls
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool result messages
	Name       string     `json:"name,omitempty"`         // tool name for tool messages

	// Fields below never reach the model backend.
	Status       string          `json:"status,omitempty"`        // tool messages
	Artifact     json.RawMessage `json:"artifact,omitempty"`      // tool messages
	FinishReason string          `json:"finish_reason,omitempty"` // assistant messages
	Output       *Output         `json:"output,omitempty"`        // final structured answer
}

// CompletionResponse is the model backend's reply.
type CompletionResponse struct {
	ID           string     `json:"id"`
	Provider     string     `json:"provider"`
	Model        string     `json:"model"`
	Content      string     `json:"content"`
	FinishReason string     `json:"finish_reason,omitempty"` // "stop", "tool_calls", "length"
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	Usage        TokenUsage `json:"usage"`
	LatencyMs    int64      `json:"latency_ms"`
}

// TokenUsage reports token counts for one completion.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// ── Conversation State ──────────────────────────────────────

// SQLQuery is the synthesized query plus the model's explanation of it.
type SQLQuery struct {
	Query       string `json:"query"`
	Explanation string `json:"explanation"`
}

// Table is an executed result. Every row has len(Columns) values.
type Table struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	DisplayNames []string `json:"display_names,omitempty"`
}

// Chart is the most recent chart request and its synthesized metadata.
type Chart struct {
	Kind     string          `json:"kind"`
	Metadata json.RawMessage `json:"metadata"`
}

// Thread is the Conversation State for one thread id.
type Thread struct {
	ID       string        `json:"id"`
	Messages []ChatMessage `json:"messages"`
	Dataset  *Dataset      `json:"dataset,omitempty"`
	SQLQuery *SQLQuery     `json:"sql_query,omitempty"`
	Result   *Table        `json:"result,omitempty"`
	Chart    *Chart        `json:"chart,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
