// Package transport converts orchestrator messages into Outbound Messages and
// frames them as newline-delimited JSON or server-sent events.
package transport

import (
	"encoding/json"

	"github.com/adaptation-atlas/atlas-assistant/internal/orchestrator"
	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
	"github.com/rs/zerolog/log"
)

// Outbound Message types.
const (
	TypeTool   = "tool"
	TypeAI     = "ai"
	TypeOutput = "output"
	TypeError  = "error"
)

// ToolMessage is the generic tool result.
type ToolMessage struct {
	Content  string `json:"content"`
	ThreadID string `json:"thread_id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Status   string `json:"status"`
}

// DatasetSelectedMessage is sent for select_dataset results.
type DatasetSelectedMessage struct {
	ToolMessage
	Dataset *models.Dataset `json:"dataset"`
}

// TableGeneratedMessage is sent for execute_sql results.
type TableGeneratedMessage struct {
	ToolMessage
	Data     *models.Table `json:"data"`
	SQLQuery string        `json:"sql_query"`
}

// ChartGeneratedMessage is sent for chart tool results.
type ChartGeneratedMessage struct {
	ToolMessage
	ChartType     string          `json:"chart_type"`
	ChartMetadata json.RawMessage `json:"chart_metadata"`
	Data          *models.Table   `json:"data"`
}

// AIMessage is assistant text.
type AIMessage struct {
	Content      string `json:"content"`
	ThreadID     string `json:"thread_id"`
	Type         string `json:"type"`
	FinishReason string `json:"finish_reason"`
}

// OutputMessage carries the final structured answer.
type OutputMessage struct {
	ThreadID string        `json:"thread_id"`
	Type     string        `json:"type"`
	Output   models.Output `json:"output"`
}

// ErrorMessage ends a stream that failed.
type ErrorMessage struct {
	Content  string `json:"content"`
	ThreadID string `json:"thread_id"`
	Type     string `json:"type"`
}

// NewError builds an error message.
func NewError(threadID, content string) ErrorMessage {
	return ErrorMessage{Content: content, ThreadID: threadID, Type: TypeError}
}

// Convert maps one transcript message to its Outbound Message. It reports
// false for messages that are not sent to the client.
func Convert(msg models.ChatMessage, threadID string) (any, bool) {
	if msg.Role == models.RoleAssistant && msg.Output != nil {
		out := *msg.Output
		if out.Queries == nil {
			out.Queries = []string{}
		}
		return OutputMessage{ThreadID: threadID, Type: TypeOutput, Output: out}, true
	}
	if msg.Content == "" {
		return nil, false
	}

	switch msg.Role {
	case models.RoleAssistant:
		return AIMessage{
			Content:      msg.Content,
			ThreadID:     threadID,
			Type:         TypeAI,
			FinishReason: msg.FinishReason,
		}, true
	case models.RoleTool:
		return convertTool(msg, threadID)
	}
	return nil, false
}

func convertTool(msg models.ChatMessage, threadID string) (any, bool) {
	if msg.Name == "" {
		log.Warn().
			Str("thread_id", threadID).
			Str("tool_call_id", msg.ToolCallID).
			Msg("Tool message does not have a name")
		return nil, false
	}
	base := ToolMessage{
		Content:  msg.Content,
		ThreadID: threadID,
		Type:     TypeTool,
		Name:     msg.Name,
		Status:   msg.Status,
	}
	if base.Status == "" {
		base.Status = models.ToolStatusSuccess
	}
	// Failed calls carry no artifact and go out as plain tool results.
	if len(msg.Artifact) == 0 {
		return base, true
	}

	switch orchestrator.ArtifactOf(msg.Name) {
	case orchestrator.ArtifactDataset:
		var ds models.Dataset
		if !decodeArtifact(msg, &ds) {
			return base, true
		}
		return DatasetSelectedMessage{ToolMessage: base, Dataset: &ds}, true
	case orchestrator.ArtifactTable:
		var a orchestrator.TableArtifact
		if !decodeArtifact(msg, &a) {
			return base, true
		}
		return TableGeneratedMessage{ToolMessage: base, Data: a.Data, SQLQuery: a.SQLQuery}, true
	case orchestrator.ArtifactChart:
		var a orchestrator.ChartArtifact
		if !decodeArtifact(msg, &a) {
			return base, true
		}
		return ChartGeneratedMessage{
			ToolMessage:   base,
			ChartType:     a.ChartType,
			ChartMetadata: a.ChartMetadata,
			Data:          a.Data,
		}, true
	}
	return base, true
}

func decodeArtifact(msg models.ChatMessage, v any) bool {
	if err := json.Unmarshal(msg.Artifact, v); err != nil {
		log.Error().Err(err).Str("tool", msg.Name).Msg("Failed to decode tool artifact")
		return false
	}
	return true
}
