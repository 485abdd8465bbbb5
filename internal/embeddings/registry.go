// Package embeddings provides the embedding drivers used to turn a search
// query into a vector for the dataset index.
package embeddings

import (
	"fmt"

	"github.com/adaptation-atlas/atlas-assistant/internal/config"
	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
	"github.com/rs/zerolog/log"
)

// New builds the configured driver, wrapped in a TTL cache when CacheTTL > 0.
func New(cfg config.EmbeddingConfig) (contracts.EmbeddingDriver, error) {
	var driver contracts.EmbeddingDriver
	switch cfg.Provider {
	case "openai", "mistral":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%s embeddings require an API key", cfg.Provider)
		}
		driver = NewOpenAIDriver(cfg.Provider, cfg.APIKey, cfg.Model, WithBaseURL(cfg.BaseURL))
	case "ollama":
		driver = NewOpenAIDriver(cfg.Provider, "", cfg.Model, WithBaseURL(cfg.BaseURL))
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	log.Info().
		Str("kind", driver.Kind()).
		Str("model", cfg.Model).
		Int("dims", driver.Dimensions()).
		Msg("Embedding driver registered")

	if cfg.CacheTTL > 0 {
		return NewCachedDriver(driver, cfg.CacheTTL), nil
	}
	return driver, nil
}
