package api

import (
	"encoding/json"
	"net/http"

	"github.com/adaptation-atlas/atlas-assistant/internal/api/handlers"
	"github.com/adaptation-atlas/atlas-assistant/internal/api/middleware"
	"github.com/adaptation-atlas/atlas-assistant/internal/config"
	"github.com/adaptation-atlas/atlas-assistant/internal/telemetry"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all API routes. auth may be nil,
// in which case every route is anonymous.
func NewRouter(cfg *config.Config, h *handlers.Handlers, auth *middleware.AuthMiddleware, metrics *telemetry.Metrics) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	// Only plain JSON is compressed; chat streams must flush frame by frame.
	r.Use(chimw.Compress(5, "application/json"))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if auth != nil {
		r.Use(auth.Handler)
	}

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))
	if metrics != nil && cfg.Telemetry.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	// Auth
	r.Post("/token", h.IssueToken)
	r.Get("/me", h.Me)

	// Assistant
	r.Post("/chat", h.ChatHandler)
	r.Get("/datasets", h.ListDatasets)

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "OK"})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "atlas-assistant",
		})
	}
}
