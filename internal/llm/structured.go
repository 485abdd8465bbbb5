package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
)

// Parse asks the backend for a JSON object matching schema and decodes it
// into out. Backend failures keep their *BackendError type; a reply that does
// not decode is reported as a plain error.
func Parse(ctx context.Context, backend contracts.ModelBackend, model string, messages []models.ChatMessage, name string, schema map[string]interface{}, out any) error {
	resp, err := backend.Complete(ctx, &models.CompletionRequest{
		Model:    model,
		Messages: messages,
		ResponseFormat: &models.ResponseFormat{
			Type:       "json_schema",
			JSONSchema: &models.JSONSchema{Name: name, Schema: schema, Strict: true},
		},
	})
	if err != nil {
		return err
	}
	content := StripCodeFence(resp.Content)
	if content == "" {
		return fmt.Errorf("%s: empty structured response", name)
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("%s: decode structured response: %w", name, err)
	}
	return nil
}

// StripCodeFence removes a surrounding ```json ... ``` block, which some
// models emit even in JSON mode.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
