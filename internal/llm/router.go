// Package llm talks to the language-model backend.
//
// The Router sends chat completions (with tools and structured output) to one
// configured OpenAI-compatible provider: Mistral, OpenAI or a local Ollama.
// Failures are wrapped in *BackendError so callers can tell a backend outage
// apart from their own errors.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/adaptation-atlas/atlas-assistant/internal/config"
	"github.com/adaptation-atlas/atlas-assistant/internal/telemetry"
	pkgmw "github.com/adaptation-atlas/atlas-assistant/pkg/middleware"
	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrBackend matches every *BackendError via errors.Is.
var ErrBackend = errors.New("model backend error")

// BackendError is a failed call to the model backend.
type BackendError struct {
	Provider string
	Status   int // HTTP status, 0 when the request never completed
	Err      error
}

func (e *BackendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackend }

// Provider is the configured backend endpoint.
type Provider struct {
	Kind    string // mistral, openai, ollama
	BaseURL string
	APIKey  string
}

// Driver performs the provider-specific HTTP exchange.
type Driver interface {
	Kind() string
	Call(ctx context.Context, provider *Provider, req *models.CompletionRequest) (*models.CompletionResponse, error)
}

// Router implements contracts.ModelBackend.
type Router struct {
	provider     Provider
	driver       Driver
	defaultModel string
	metrics      *telemetry.Metrics
}

// NewRouter creates a router for the configured provider.
func NewRouter(cfg config.LLMConfig, metrics *telemetry.Metrics) (*Router, error) {
	provider := Provider{Kind: cfg.Provider, BaseURL: cfg.BaseURL, APIKey: cfg.APIKey}
	client := &http.Client{Timeout: cfg.Timeout}

	var driver Driver
	switch cfg.Provider {
	case "mistral", "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%s: api key not configured", cfg.Provider)
		}
		driver = NewOpenAIDriver(client)
	case "ollama":
		driver = NewOpenAIDriver(client)
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.Provider)
	}
	return NewRouterWithDriver(provider, driver, cfg.ChatModel, metrics), nil
}

// NewRouterWithDriver builds a router around an explicit driver.
func NewRouterWithDriver(provider Provider, driver Driver, defaultModel string, metrics *telemetry.Metrics) *Router {
	return &Router{provider: provider, driver: driver, defaultModel: defaultModel, metrics: metrics}
}

// Complete sends one request. Errors are always *BackendError.
func (r *Router) Complete(ctx context.Context, req *models.CompletionRequest) (*models.CompletionResponse, error) {
	if req.Model == "" {
		req.Model = r.defaultModel
	}

	ctx, span := telemetry.Tracer().Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", r.provider.Kind),
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.messages", len(req.Messages)),
		attribute.Int("llm.tools", len(req.Tools)),
		attribute.String("thread.id", pkgmw.GetThreadID(ctx)),
	)

	start := time.Now()
	resp, err := r.driver.Call(ctx, &r.provider, req)
	purpose := "chat"
	if req.ResponseFormat != nil && req.ResponseFormat.JSONSchema != nil {
		purpose = req.ResponseFormat.JSONSchema.Name
	}
	r.metrics.ObserveModelCall(purpose, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().
			Err(err).
			Str("provider", r.provider.Kind).
			Str("model", req.Model).
			Str("thread_id", pkgmw.GetThreadID(ctx)).
			Msg("Model backend call failed")
		var be *BackendError
		if !errors.As(err, &be) {
			err = &BackendError{Provider: r.provider.Kind, Err: err}
		}
		return nil, err
	}

	resp.LatencyMs = time.Since(start).Milliseconds()
	resp.Provider = r.provider.Kind
	span.SetAttributes(
		attribute.String("llm.finish_reason", resp.FinishReason),
		attribute.Int64("llm.total_tokens", resp.Usage.TotalTokens),
	)
	log.Debug().
		Str("model", req.Model).
		Str("finish_reason", resp.FinishReason).
		Int("tool_calls", len(resp.ToolCalls)).
		Int64("latency_ms", resp.LatencyMs).
		Msg("Model backend call complete")
	return resp, nil
}
