package embeddings_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adaptation-atlas/atlas-assistant/internal/config"
	"github.com/adaptation-atlas/atlas-assistant/internal/embeddings"
)

func newEmbedServer(t *testing.T, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %q, want /embeddings", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		type datum struct {
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Data []datum `json:"data"`
		}{}
		// Reverse order to exercise index-based reordering.
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, datum{Embedding: []float64{float64(len(req.Input[i])), 1}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestOpenAIDriverEmbed(t *testing.T) {
	var calls int
	srv := newEmbedServer(t, &calls)
	defer srv.Close()

	d := embeddings.NewOpenAIDriver("mistral", "secret", "mistral-embed", embeddings.WithBaseURL(srv.URL))
	if d.Dimensions() != 1024 {
		t.Errorf("Dimensions() = %d, want 1024", d.Dimensions())
	}

	vectors, err := d.Embed(context.Background(), []string{"a", "bbb"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 || vectors[0][0] != 1 || vectors[1][0] != 3 {
		t.Errorf("Embed() = %v, want ordered by input", vectors)
	}
}

func TestOpenAIDriverErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := embeddings.NewOpenAIDriver("openai", "secret", "text-embedding-3-small", embeddings.WithBaseURL(srv.URL))
	if _, err := d.Embed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestCachedDriver(t *testing.T) {
	var calls int
	srv := newEmbedServer(t, &calls)
	defer srv.Close()

	d := embeddings.NewCachedDriver(
		embeddings.NewOpenAIDriver("openai", "secret", "text-embedding-3-small", embeddings.WithBaseURL(srv.URL)),
		time.Minute,
	)

	ctx := context.Background()
	if _, err := d.Embed(ctx, []string{"crops in kenya"}); err != nil {
		t.Fatal(err)
	}
	vectors, err := d.Embed(ctx, []string{"crops in kenya", "rain"})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("backend calls = %d, want 2", calls)
	}
	if vectors[0][0] != 14 || vectors[1][0] != 4 {
		t.Errorf("Embed() = %v", vectors)
	}
	if _, err := d.Embed(ctx, []string{"rain"}); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("backend calls = %d after cached lookup, want 2", calls)
	}
	if d.Len() != 2 {
		t.Errorf("Len() = %d, want 2", d.Len())
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := embeddings.New(config.EmbeddingConfig{Provider: "mistral", Model: "mistral-embed"}); err == nil {
		t.Error("expected error without API key")
	}
	if _, err := embeddings.New(config.EmbeddingConfig{Provider: "word2vec"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	d, err := embeddings.New(config.EmbeddingConfig{Provider: "ollama", Model: "nomic-embed-text"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if d.Dimensions() != 768 {
		t.Errorf("Dimensions() = %d, want 768", d.Dimensions())
	}
}

type fixedDriver struct {
	vectors [][]float64
}

func (f fixedDriver) Kind() string    { return "fixed" }
func (f fixedDriver) Dimensions() int { return 2 }
func (f fixedDriver) Embed(context.Context, []string) ([][]float64, error) {
	return f.vectors, nil
}

func TestCachedDriverCountMismatch(t *testing.T) {
	tests := []struct {
		name    string
		vectors [][]float64
	}{
		{"too many", [][]float64{{1, 0}, {0, 1}, {1, 1}}},
		{"too few", [][]float64{{1, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := embeddings.NewCachedDriver(fixedDriver{vectors: tt.vectors}, time.Minute)
			if _, err := d.Embed(context.Background(), []string{"a", "b"}); err == nil {
				t.Fatal("expected an error for a mismatched vector count")
			}
			if d.Len() != 0 {
				t.Errorf("Len() = %d, want nothing cached", d.Len())
			}
		})
	}
}
