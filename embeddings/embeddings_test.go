package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fabfab/filing-agent/config"
)

func TestNewEmbedderDefaults(t *testing.T) {
	cfg := config.Config{
		Embeddings: config.EmbeddingConfig{
			Provider:  config.ProviderOllama,
			Model:     "nomic-embed-text",
			Dimension: 3,
		},
		OllamaHost: "http://localhost:11434",
	}

	embedder, err := NewEmbedder(cfg)
	if err != nil {
		t.Fatalf("expected embedder, got error: %v", err)
	}
	if embedder == nil {
		t.Fatal("expected non-nil embedder")
	}
}

func TestNewEmbedderRequiresAPIKeys(t *testing.T) {
	for _, provider := range []string{config.ProviderOpenAI, config.ProviderGemini} {
		cfg := config.Config{Embeddings: config.EmbeddingConfig{Provider: provider, Model: "m"}}
		if _, err := NewEmbedder(cfg); err == nil {
			t.Fatalf("expected error for missing %s api key", provider)
		}
	}
}

func TestNewEmbedderUnknownProvider(t *testing.T) {
	cfg := config.Config{Embeddings: config.EmbeddingConfig{Provider: "word2vec"}}
	if _, err := NewEmbedder(cfg); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestOllamaEmbedderBatches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		resp := ollamaEmbedResponse{}
		for i := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{float32(i), 1})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	embedder := NewOllamaEmbedder(Options{OllamaHost: server.URL, Model: "nomic-embed-text", Dimension: 2})
	vectors, err := embedder.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	if vectors[2][0] != 2 {
		t.Fatalf("vectors out of order: %v", vectors)
	}
}

func TestOllamaEmbedderDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1, 2, 3}}})
	}))
	defer server.Close()

	embedder := NewOllamaEmbedder(Options{OllamaHost: server.URL, Dimension: 768})
	if _, err := embedder.Embed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestOllamaEmbedderSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	embedder := NewOllamaEmbedder(Options{OllamaHost: server.URL})
	if _, err := embedder.Embed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected error for 404 response")
	}
}
