package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	file := filepath.Join(dir, "atlas.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
port = 9000
cors_origins = ["https://atlas.example"]

[threads]
store = "ttl"
ttl = "2h"

[orchestrator]
max_steps = 12
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LLM_CHAT_MODEL=from-dotenv\nMAX_STEPS=40\n"), 0o644))

	t.Setenv("ATLAS_CONFIG", file)
	t.Setenv("MAX_STEPS", "7")
	t.Setenv("LLM_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, []string{"https://atlas.example"}, cfg.CORSOrigins)
	assert.Equal(t, "ttl", cfg.Threads.Store)
	assert.Equal(t, 2*time.Hour, cfg.Threads.TTL)
	assert.Equal(t, "from-dotenv", cfg.LLM.ChatModel)
	// The process environment wins over .env and the file.
	assert.Equal(t, 7, cfg.Orchestrator.MaxSteps)
	// Embeddings reuse the model key when none is set.
	assert.Equal(t, "sk-test", cfg.Embeddings.APIKey)
}

func TestLoadWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ATLAS_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Port, cfg.Port)
	assert.Equal(t, 25, cfg.Orchestrator.MaxSteps)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"max steps", func(c *Config) { c.Orchestrator.MaxSteps = 0 }},
		{"auth mode", func(c *Config) { c.Auth.Mode = "saml" }},
		{"local without secret", func(c *Config) { c.Auth.Mode = "local" }},
		{"oidc without url", func(c *Config) { c.Auth.Mode = "oidc" }},
		{"thread store", func(c *Config) { c.Threads.Store = "redis" }},
		{"vector store", func(c *Config) { c.VectorStore.Kind = "faiss" }},
		{"injection sensitivity", func(c *Config) { c.Guardrails.PromptInjection = "paranoid" }},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 1.5 }},
	}
	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseUsers(t *testing.T) {
	users := parseUsers([]string{
		"alice:$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA",
		"broken",
		":nohash",
	})
	assert.Len(t, users, 1)
	assert.Equal(t, "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA", users["alice"])
}

func TestEnvList(t *testing.T) {
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, envList("CORS_ORIGINS", nil))
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
