// Package retrieval finds the filing passages most similar to a question.
package retrieval

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/fabfab/filing-agent/embeddings"
	"github.com/fabfab/filing-agent/vectorstore"
)

const defaultSimilarityLimit = 5

// Passage is a ranked filing chunk.
type Passage = vectorstore.Passage

// Result holds passages in rank order plus optional graph context keyed by
// source filename.
type Result struct {
	Passages []Passage
	Insights map[string]FilingInsight
}

type Retriever struct {
	embedder embeddings.Embedder
	store    vectorstore.Store
	graph    GraphStore
	logger   *log.Logger
}

// NewRetriever wires a retriever. graph may be nil.
func NewRetriever(embedder embeddings.Embedder, store vectorstore.Store, graph GraphStore, logger *log.Logger) *Retriever {
	if logger == nil {
		logger = log.Default()
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		graph:    graph,
		logger:   logger,
	}
}

// Retrieve embeds query and returns up to k passages. An empty result is not
// an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, fmt.Errorf("query cannot be empty")
	}
	if r.embedder == nil {
		return Result{}, fmt.Errorf("embedder is not configured")
	}
	if r.store == nil {
		return Result{}, fmt.Errorf("vector store is not configured")
	}
	if k <= 0 {
		k = defaultSimilarityLimit
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return Result{}, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return Result{}, fmt.Errorf("embedder returned no vectors")
	}

	passages, err := r.store.Query(ctx, vectors[0], k)
	if err != nil {
		return Result{}, fmt.Errorf("vector search: %w", err)
	}

	result := Result{Passages: passages, Insights: map[string]FilingInsight{}}
	if r.graph == nil || len(passages) == 0 {
		return result, nil
	}

	sources := make([]string, 0, len(passages))
	for _, p := range passages {
		sources = append(sources, p.Source)
	}
	insights, err := r.graph.FilingInsights(ctx, unique(sources))
	if err != nil {
		// graph context is optional; retrieval still succeeds without it
		r.logger.Printf("graph insights error: %v", err)
		return result, nil
	}
	result.Insights = insights
	return result, nil
}

func unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
