package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Default API bases of the OpenAI-compatible embedding endpoints.
const (
	OpenAIBaseURL  = "https://api.openai.com/v1"
	MistralBaseURL = "https://api.mistral.ai/v1"
	OllamaBaseURL  = "http://localhost:11434/v1"
)

// OpenAIDriver implements EmbeddingDriver for any OpenAI-compatible
// /embeddings endpoint: OpenAI, Mistral (mistral-embed) and Ollama's /v1 API.
type OpenAIDriver struct {
	kind       string
	apiKey     string
	model      string
	baseURL    string
	dimensions int
	batchSize  int
	client     *http.Client
}

// OpenAIOption configures the driver.
type OpenAIOption func(*OpenAIDriver)

// WithBaseURL overrides the API base (e.g. for proxies or a local Ollama).
func WithBaseURL(baseURL string) OpenAIOption {
	return func(d *OpenAIDriver) {
		if baseURL != "" {
			d.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithBatchSize sets the max texts per Embed call.
func WithBatchSize(size int) OpenAIOption {
	return func(d *OpenAIDriver) { d.batchSize = size }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(d *OpenAIDriver) { d.client = c }
}

// NewOpenAIDriver creates an embedding driver. kind is "openai", "mistral"
// or "ollama" and picks the default base URL.
func NewOpenAIDriver(kind, apiKey, model string, opts ...OpenAIOption) *OpenAIDriver {
	d := &OpenAIDriver{
		kind:       kind,
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL(kind),
		dimensions: modelDimensions(model),
		batchSize:  512,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func defaultBaseURL(kind string) string {
	switch kind {
	case "mistral":
		return MistralBaseURL
	case "ollama":
		return OllamaBaseURL
	default:
		return OpenAIBaseURL
	}
}

func modelDimensions(model string) int {
	switch model {
	case "mistral-embed":
		return 1024
	case "text-embedding-3-large":
		return 3072
	case "nomic-embed-text":
		return 768
	case "all-minilm", "all-minilm:l6-v2":
		return 384
	default:
		return 1536
	}
}

func (d *OpenAIDriver) Kind() string    { return d.kind }
func (d *OpenAIDriver) Dimensions() int { return d.dimensions }
func (d *OpenAIDriver) Model() string   { return d.model }

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Data  []embedData `json:"data"`
	Error *apiError   `json:"error,omitempty"`
}

type embedData struct {
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Embed generates vector embeddings for a batch of texts.
func (d *OpenAIDriver) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > d.batchSize {
		return nil, fmt.Errorf("batch size %d exceeds max %d", len(texts), d.batchSize)
	}

	body, err := json.Marshal(embedRequest{Input: texts, Model: d.model})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s embeddings API returned %d: %s", d.kind, resp.StatusCode, string(respBody))
	}

	var result embedResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("%s error: %s (%s)", d.kind, result.Error.Message, result.Error.Type)
	}

	vectors := make([][]float64, len(texts))
	for _, item := range result.Data {
		if item.Index >= 0 && item.Index < len(vectors) {
			vectors[item.Index] = item.Embedding
		}
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return vectors, nil
}
