package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adaptation-atlas/atlas-assistant/internal/config"
	"github.com/adaptation-atlas/atlas-assistant/internal/llm"
	"github.com/adaptation-atlas/atlas-assistant/internal/llm/llmtest"
	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
)

func boolPtr(b bool) *bool { return &b }

func newServer(t *testing.T, handler http.HandlerFunc) *llm.Router {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	provider := llm.Provider{Kind: "mistral", BaseURL: srv.URL, APIKey: "secret"}
	return llm.NewRouterWithDriver(provider, llm.NewOpenAIDriver(srv.Client()), "mistral-large-latest", nil)
}

func TestComplete_SendsToolsAndDecodesToolCalls(t *testing.T) {
	var got map[string]any
	router := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Authorization = %q, want %q", auth, "Bearer secret")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "cmpl-1",
			"model": "mistral-large-latest",
			"choices": [{
				"message": {
					"content": "",
					"tool_calls": [{"id": "abc123XYZ", "type": "function",
						"function": {"name": "select_dataset", "arguments": "{\"query\":\"maize\"}"}}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	})

	resp, err := router.Complete(context.Background(), &models.CompletionRequest{
		Messages: []models.ChatMessage{
			{Role: models.RoleUser, Content: "maize yields"},
			{Role: models.RoleTool, Content: "ok", Name: "x", ToolCallID: "1", Artifact: json.RawMessage(`{"secret":1}`)},
		},
		Tools: []models.ToolDefinition{{
			Type:     "function",
			Function: models.ToolFunction{Name: "select_dataset", Parameters: map[string]interface{}{"type": "object"}},
		}},
		ToolChoice:        "auto",
		ParallelToolCalls: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	if got["model"] != "mistral-large-latest" {
		t.Errorf("model = %v, want default chat model", got["model"])
	}
	if got["parallel_tool_calls"] != false {
		t.Errorf("parallel_tool_calls = %v, want false", got["parallel_tool_calls"])
	}
	msgs := got["messages"].([]any)
	if _, leaked := msgs[1].(map[string]any)["artifact"]; leaked {
		t.Error("artifact was sent to the backend")
	}

	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Function.Name != "select_dataset" {
		t.Fatalf("ToolCalls = %+v, want one select_dataset call", resp.ToolCalls)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
	if resp.Provider != "mistral" {
		t.Errorf("Provider = %q, want mistral", resp.Provider)
	}
}

func TestComplete_OmitsParallelFlagWithoutTools(t *testing.T) {
	var got map[string]any
	router := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"choices":[{"message":{"content":"hi"},"finish_reason":"stop"}]}`))
	})

	_, err := router.Complete(context.Background(), &models.CompletionRequest{
		Messages:          []models.ChatMessage{{Role: models.RoleUser, Content: "hello"}},
		ParallelToolCalls: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if _, ok := got["parallel_tool_calls"]; ok {
		t.Error("parallel_tool_calls sent without tools")
	}
}

func TestComplete_BackendErrors(t *testing.T) {
	router := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"rate limited"}`, http.StatusTooManyRequests)
	})

	_, err := router.Complete(context.Background(), &models.CompletionRequest{
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hello"}},
	})
	if !errors.Is(err, llm.ErrBackend) {
		t.Fatalf("error = %v, want ErrBackend", err)
	}
	var be *llm.BackendError
	if !errors.As(err, &be) || be.Status != http.StatusTooManyRequests {
		t.Errorf("BackendError = %+v, want status 429", be)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	router := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})

	_, err := router.Complete(context.Background(), &models.CompletionRequest{
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hello"}},
	})
	if !errors.Is(err, llm.ErrBackend) {
		t.Errorf("error = %v, want ErrBackend", err)
	}
}

func TestParse(t *testing.T) {
	backend := llmtest.New().Reply("```json\n{\"query\":\"SELECT 1\",\"explanation\":\"one\"}\n```")

	var out models.SQLQuery
	err := llm.Parse(context.Background(), backend, "codestral-latest", nil, "sql_query",
		map[string]interface{}{"type": "object"}, &out)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if out.Query != "SELECT 1" || out.Explanation != "one" {
		t.Errorf("Parse() = %+v, want query and explanation", out)
	}

	req := backend.Requests()[0]
	if req.Model != "codestral-latest" {
		t.Errorf("Model = %q, want codestral-latest", req.Model)
	}
	if req.ResponseFormat == nil || req.ResponseFormat.JSONSchema.Name != "sql_query" {
		t.Errorf("ResponseFormat = %+v, want json_schema sql_query", req.ResponseFormat)
	}
}

func TestParse_InvalidJSON(t *testing.T) {
	backend := llmtest.New().Reply("not json")

	var out models.SQLQuery
	err := llm.Parse(context.Background(), backend, "", nil, "sql_query", nil, &out)
	if err == nil {
		t.Fatal("Parse() succeeded on invalid JSON")
	}
	if errors.Is(err, llm.ErrBackend) {
		t.Error("decode failure reported as backend error")
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}```", `{"a":1}`},
		{"  {}  ", "{}"},
	}
	for _, tt := range tests {
		if got := llm.StripCodeFence(tt.in); got != tt.want {
			t.Errorf("StripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewRouter_Validation(t *testing.T) {
	if _, err := llm.NewRouter(configFor("mistral", ""), nil); err == nil {
		t.Error("NewRouter() accepted mistral without api key")
	}
	if _, err := llm.NewRouter(configFor("ollama", ""), nil); err != nil {
		t.Errorf("NewRouter(ollama) error: %v", err)
	}
	if _, err := llm.NewRouter(configFor("bogus", "k"), nil); err == nil {
		t.Error("NewRouter() accepted unknown provider")
	}
}

func configFor(provider, key string) config.LLMConfig {
	return config.LLMConfig{Provider: provider, APIKey: key, ChatModel: "m", Timeout: time.Second}
}
