package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
)

// Default API bases for OpenAI-compatible chat endpoints.
var defaultBaseURLs = map[string]string{
	"mistral": "https://api.mistral.ai/v1",
	"openai":  "https://api.openai.com/v1",
	"ollama":  "http://localhost:11434/v1",
}

// OpenAIDriver speaks the /chat/completions protocol shared by Mistral,
// OpenAI and Ollama, including tools and json_schema response formats.
type OpenAIDriver struct {
	client *http.Client
}

// NewOpenAIDriver creates a driver using client for all requests.
func NewOpenAIDriver(client *http.Client) *OpenAIDriver {
	return &OpenAIDriver{client: client}
}

func (d *OpenAIDriver) Kind() string { return "openai-compatible" }

type chatRequest struct {
	Model             string                  `json:"model"`
	Messages          []chatMessage           `json:"messages"`
	Temperature       *float64                `json:"temperature,omitempty"`
	MaxTokens         *int                    `json:"max_tokens,omitempty"`
	ResponseFormat    *models.ResponseFormat  `json:"response_format,omitempty"`
	Tools             []models.ToolDefinition `json:"tools,omitempty"`
	ToolChoice        interface{}             `json:"tool_choice,omitempty"`
	ParallelToolCalls *bool                   `json:"parallel_tool_calls,omitempty"`
}

// chatMessage is the wire form of a transcript entry. Artifacts and other
// local bookkeeping never leave the process.
type chatMessage struct {
	Role       string            `json:"role"`
	Content    string            `json:"content"`
	ToolCalls  []models.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Name       string            `json:"name,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   string            `json:"content"`
			ToolCalls []models.ToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

func (d *OpenAIDriver) Call(ctx context.Context, provider *Provider, req *models.CompletionRequest) (*models.CompletionResponse, error) {
	endpoint := provider.BaseURL
	if endpoint == "" {
		endpoint = defaultBaseURLs[provider.Kind]
	}
	endpoint = strings.TrimRight(endpoint, "/")

	wire := chatRequest{
		Model:             req.Model,
		Temperature:       req.Temperature,
		MaxTokens:         req.MaxTokens,
		ResponseFormat:    req.ResponseFormat,
		Tools:             req.Tools,
		ToolChoice:        req.ToolChoice,
		ParallelToolCalls: req.ParallelToolCalls,
	}
	for _, m := range req.Messages {
		wire.Messages = append(wire.Messages, chatMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		})
	}
	// parallel_tool_calls is only meaningful alongside tools.
	if len(wire.Tools) == 0 {
		wire.ParallelToolCalls = nil
		wire.ToolChoice = nil
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &BackendError{Provider: provider.Kind, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if provider.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+provider.APIKey)
	}

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, &BackendError{Provider: provider.Kind, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, &BackendError{
			Provider: provider.Kind,
			Status:   httpResp.StatusCode,
			Err:      fmt.Errorf("%s", strings.TrimSpace(string(respBody))),
		}
	}

	var resp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, &BackendError{Provider: provider.Kind, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return nil, &BackendError{Provider: provider.Kind, Err: fmt.Errorf("response has no choices")}
	}

	choice := resp.Choices[0]
	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return &models.CompletionResponse{
		ID:           resp.ID,
		Model:        model,
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		ToolCalls:    choice.Message.ToolCalls,
		Usage: models.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}
