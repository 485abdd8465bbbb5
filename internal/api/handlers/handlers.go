// Package handlers implements the HTTP handlers of the assistant API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/adaptation-atlas/atlas-assistant/internal/auth"
	"github.com/adaptation-atlas/atlas-assistant/internal/guardrails"
	"github.com/adaptation-atlas/atlas-assistant/internal/orchestrator"
	"github.com/adaptation-atlas/atlas-assistant/internal/telemetry"
	"github.com/adaptation-atlas/atlas-assistant/internal/transport"
	pkgmw "github.com/adaptation-atlas/atlas-assistant/pkg/middleware"
	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Runner runs one chat turn.
type Runner interface {
	Run(ctx context.Context, threadID, question string, emit func(orchestrator.Event) error) error
}

// DatasetLister lists the indexed datasets.
type DatasetLister interface {
	List(ctx context.Context) ([]*models.Dataset, error)
}

// Handlers holds all handler dependencies.
type Handlers struct {
	Chat     Runner
	Datasets DatasetLister
	// Guard is optional; nil accepts every question.
	Guard *guardrails.Guard
	// Local is nil unless local token auth is configured.
	Local   *auth.LocalProvider
	Metrics *telemetry.Metrics
}

// New creates a Handlers instance.
func New(chat Runner, datasets DatasetLister, guard *guardrails.Guard, local *auth.LocalProvider, metrics *telemetry.Metrics) *Handlers {
	return &Handlers{Chat: chat, Datasets: datasets, Guard: guard, Local: local, Metrics: metrics}
}

// ── Chat ────────────────────────────────────────────────────

// ChatHandler streams one chat turn.
// POST /chat
func (h *Handlers) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	if h.Guard != nil {
		if eval := h.Guard.Evaluate(req.Query); !eval.Passed {
			log.Warn().Str("thread_id", req.ThreadID).Str("reason", eval.Reason()).Msg("Question rejected by guardrails")
			respondError(w, http.StatusBadRequest, eval.Reason())
			return
		}
	}
	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	if h.Metrics != nil {
		h.Metrics.ChatRequests.Inc()
	}

	event := log.Info().Str("thread_id", threadID)
	if id := pkgmw.GetIdentity(r.Context()); id != nil {
		event = event.Str("subject", id.Subject)
	}
	event.Msg("💬 Chat turn started")

	stream := transport.NewStream(w, transport.FramingFor(r.Header.Get("Accept")), threadID)
	err := h.Chat.Run(r.Context(), threadID, req.Query, func(e orchestrator.Event) error {
		return stream.Send(e.Messages...)
	})
	if err == nil {
		return
	}

	var limit *orchestrator.StepLimitError
	if errors.As(err, &limit) {
		h.Metrics.ObserveStreamError("graph recursion")
		if !stream.Started() {
			respondJSON(w, http.StatusBadRequest, models.APIError{Type: "graph recursion", Message: err.Error()})
			return
		}
	} else {
		h.Metrics.ObserveStreamError("backend")
	}
	if r.Context().Err() != nil {
		log.Info().Str("thread_id", threadID).Msg("Client went away during chat turn")
		return
	}
	log.Error().Err(err).Str("thread_id", threadID).Msg("Chat turn failed")
	if sendErr := stream.SendError(err.Error()); sendErr != nil {
		log.Warn().Err(sendErr).Str("thread_id", threadID).Msg("Failed to send error frame")
	}
}

// ── Datasets ────────────────────────────────────────────────

// DatasetSummary is one entry of GET /datasets.
type DatasetSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description"`
	Href        string `json:"href"`
}

// ListDatasets returns every indexed dataset.
// GET /datasets
func (h *Handlers) ListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.Datasets.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]DatasetSummary, len(datasets))
	for i, ds := range datasets {
		out[i] = DatasetSummary{
			ID:          ds.ID(),
			Title:       ds.Item.Properties.Title,
			Description: ds.Describe(),
			Href:        ds.Href(),
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// ── Auth ────────────────────────────────────────────────────

// Token is the response of POST /token.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// IssueToken exchanges a username and password for a local token. It reads
// an OAuth2 password form or a JSON body.
// POST /token
func (h *Handlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	if h.Local == nil {
		respondError(w, http.StatusNotFound, "local authentication is not enabled")
		return
	}
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid form body")
			return
		}
		creds.Username = r.PostForm.Get("username")
		creds.Password = r.PostForm.Get("password")
	}

	token, err := h.Local.Login(creds.Username, creds.Password)
	if err != nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		respondError(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	log.Info().Str("user", creds.Username).Msg("🔑 Token issued")
	respondJSON(w, http.StatusOK, Token{AccessToken: token, TokenType: "bearer"})
}

// Me returns the caller identity.
// GET /me
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	id := pkgmw.GetIdentity(r.Context())
	if id == nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"username": id.Subject,
		"provider": id.Provider,
		"email":    id.Email,
		"name":     id.DisplayName,
	})
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
