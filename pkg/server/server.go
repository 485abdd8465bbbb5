// Package server provides the public entry point for initializing the atlas
// assistant server.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8000", srv.Handler)
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/adaptation-atlas/atlas-assistant/internal/api"
	"github.com/adaptation-atlas/atlas-assistant/internal/api/handlers"
	"github.com/adaptation-atlas/atlas-assistant/internal/api/middleware"
	"github.com/adaptation-atlas/atlas-assistant/internal/auth"
	"github.com/adaptation-atlas/atlas-assistant/internal/catalog"
	"github.com/adaptation-atlas/atlas-assistant/internal/chart"
	"github.com/adaptation-atlas/atlas-assistant/internal/config"
	"github.com/adaptation-atlas/atlas-assistant/internal/embeddings"
	"github.com/adaptation-atlas/atlas-assistant/internal/guardrails"
	"github.com/adaptation-atlas/atlas-assistant/internal/indexer"
	"github.com/adaptation-atlas/atlas-assistant/internal/llm"
	"github.com/adaptation-atlas/atlas-assistant/internal/orchestrator"
	"github.com/adaptation-atlas/atlas-assistant/internal/query"
	"github.com/adaptation-atlas/atlas-assistant/internal/retention"
	"github.com/adaptation-atlas/atlas-assistant/internal/selector"
	"github.com/adaptation-atlas/atlas-assistant/internal/sessions"
	"github.com/adaptation-atlas/atlas-assistant/internal/telemetry"
	"github.com/adaptation-atlas/atlas-assistant/internal/vectorstore"
	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"

	"github.com/rs/zerolog/log"
)

// Server holds the initialized assistant.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Config is the resolved configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc releases stores and flushes telemetry. Call it once the
	// HTTP server has stopped.
	ShutdownFunc func(context.Context) error
}

// New loads configuration and initializes every component.
func New(ctx context.Context) (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig initializes the assistant with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	var closers []func() error
	fail := func(err error) (*Server, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return nil, err
	}

	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	closers = append(closers, func() error { return shutdownTelemetry(context.Background()) })
	metrics := telemetry.NewMetrics()

	backend, err := llm.NewRouter(cfg.LLM, metrics)
	if err != nil {
		return fail(fmt.Errorf("init model backend: %w", err))
	}
	log.Info().Str("provider", cfg.LLM.Provider).Str("model", cfg.LLM.ChatModel).Msg("✅ Model backend initialized")

	engine, err := query.NewSQLiteEngine(cfg.Storage)
	if err != nil {
		return fail(fmt.Errorf("init query engine: %w", err))
	}
	closers = append(closers, engine.Close)
	log.Info().Msg("✅ Query engine initialized")

	emb, err := embeddings.New(cfg.Embeddings)
	if err != nil {
		return fail(fmt.Errorf("init embeddings: %w", err))
	}
	index, closeIndex, err := OpenIndex(ctx, cfg, emb)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() error { closeIndex(); return nil })
	vectorstore.LogStats(ctx, index)

	threads, closeThreads, err := sessions.Open(cfg.Threads)
	if err != nil {
		return fail(fmt.Errorf("open thread store: %w", err))
	}
	closers = append(closers, closeThreads)
	log.Info().Str("store", cfg.Threads.Store).Msg("✅ Thread store initialized")

	bg, cancel := context.WithCancel(context.Background())
	closers = append(closers, func() error { cancel(); return nil })
	if purger, ok := threads.(retention.Purger); ok && cfg.Threads.TTL > 0 {
		go retention.NewJanitor(purger, cfg.Threads.TTL, cfg.Threads.PurgeInterval).Start(bg)
	}

	sel := selector.New(emb, index)
	orch, err := orchestrator.New(orchestrator.Deps{
		Backend:  backend,
		Threads:  threads,
		Selector: sel,
		SQL:      query.NewSynthesizer(backend, engine, query.WithModel(cfg.LLM.SQLModel), query.WithS3(cfg.Storage.S3Endpoint != "")),
		Engine:   engine,
		Charts:   chart.NewSynthesizer(backend, cfg.LLM.ChartModel),
		Metrics:  metrics,
	}, orchestrator.WithModel(cfg.LLM.ChatModel), orchestrator.WithMaxSteps(cfg.Orchestrator.MaxSteps))
	if err != nil {
		return fail(fmt.Errorf("init orchestrator: %w", err))
	}
	log.Info().Strs("tools", orch.ToolNames()).Msg("✅ Orchestrator initialized")

	chain, local := auth.NewChain(cfg.Auth, &http.Client{Timeout: cfg.LLM.Timeout})
	authMW := middleware.NewAuthMiddleware(chain, cfg.Auth.Mode != "none")

	guard, err := guardrails.New(cfg.Guardrails)
	if err != nil {
		return fail(err)
	}

	h := handlers.New(orch, sel, guard, local, metrics)
	router := api.NewRouter(cfg, h, authMW, metrics)

	return &Server{
		Handler: router,
		Config:  cfg,
		Port:    cfg.Port,
		ShutdownFunc: func(context.Context) error {
			var errs []error
			for i := len(closers) - 1; i >= 0; i-- {
				errs = append(errs, closers[i]())
			}
			return errors.Join(errs...)
		},
	}, nil
}

// OpenIndex opens the configured vector store. A missing embedded snapshot
// or an empty pgvector table is built from the STAC catalog first.
func OpenIndex(ctx context.Context, cfg *config.Config, emb contracts.EmbeddingDriver) (contracts.VectorStoreDriver, func(), error) {
	index, closeIndex, err := vectorstore.Open(ctx, cfg, emb.Dimensions())
	switch {
	case err == nil:
	case cfg.VectorStore.Kind == "embedded" && errors.Is(err, os.ErrNotExist):
		log.Warn().Str("path", cfg.VectorStore.Snapshot).Msg("No embedding snapshot; indexing the catalog")
		index, closeIndex = vectorstore.NewEmbeddedStore(), func() {}
	default:
		return nil, nil, fmt.Errorf("open vector store: %w", err)
	}

	n, err := index.Count(ctx)
	if err != nil {
		closeIndex()
		return nil, nil, fmt.Errorf("count vector store: %w", err)
	}
	if n == 0 {
		if _, err := BuildIndex(ctx, cfg, emb, index); err != nil {
			closeIndex()
			return nil, nil, err
		}
	}
	return index, closeIndex, nil
}

// BuildIndex embeds every dataset of the STAC catalog into index. The
// embedded store's snapshot is rewritten afterwards.
func BuildIndex(ctx context.Context, cfg *config.Config, emb contracts.EmbeddingDriver, index contracts.VectorStoreDriver) (*indexer.Result, error) {
	cat, err := catalog.LoadDir(cfg.Catalog.STACDir)
	if err != nil {
		return nil, err
	}
	res, err := indexer.New(emb, index, indexer.DefaultBatchSize).Index(ctx, cat.List())
	if err != nil {
		return nil, fmt.Errorf("index catalog: %w", err)
	}
	if es, ok := index.(*vectorstore.EmbeddedStore); ok && cfg.VectorStore.Snapshot != "" {
		if err := es.SaveSnapshot(cfg.VectorStore.Snapshot); err != nil {
			return nil, fmt.Errorf("save snapshot: %w", err)
		}
		log.Info().Str("path", cfg.VectorStore.Snapshot).Msg("💾 Embedding snapshot saved")
	}
	return res, nil
}
