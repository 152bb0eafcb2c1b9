package retrieval

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/fabfab/filing-agent/embeddings"
	"github.com/fabfab/filing-agent/vectorstore"
)

type stubEmbedder struct {
	vectors [][]float32
	err     error
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vectors, nil
}

var _ embeddings.Embedder = (*stubEmbedder)(nil)

type stubGraphStore struct {
	data    map[string]FilingInsight
	err     error
	sources []string
}

func (s *stubGraphStore) FilingInsights(ctx context.Context, sources []string) (map[string]FilingInsight, error) {
	s.sources = sources
	if s.err != nil {
		return nil, s.err
	}
	return s.data, nil
}

var _ GraphStore = (*stubGraphStore)(nil)

func seededStore(t *testing.T) vectorstore.Store {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	err := store.Upsert(context.Background(),
		vectorstore.Filing{Source: "ABC-20230101.htm", Company: "ABC", Year: "2023"},
		[]vectorstore.Chunk{
			{Page: 1, Content: "Revenue was $10B"},
			{Page: 2, Content: "Operating income was $2B"},
		},
		[][]float32{{1, 0}, {0, 1}},
	)
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestRetrieveRanksPassages(t *testing.T) {
	graph := &stubGraphStore{data: map[string]FilingInsight{"ABC-20230101.htm": {ChunkCount: 2}}}
	r := NewRetriever(&stubEmbedder{vectors: [][]float32{{0.1, 0.9}}}, seededStore(t), graph, quietLogger())

	result, err := r.Retrieve(context.Background(), "operating income", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Passages) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(result.Passages))
	}
	if result.Passages[0].Page != 2 {
		t.Fatalf("expected page 2 first, got %d", result.Passages[0].Page)
	}
	if len(graph.sources) != 1 {
		t.Fatalf("expected sources to be de-duplicated, got %v", graph.sources)
	}
	if result.Insights["ABC-20230101.htm"].ChunkCount != 2 {
		t.Fatalf("expected graph insight to be attached")
	}
}

func TestRetrieveToleratesGraphErrors(t *testing.T) {
	r := NewRetriever(&stubEmbedder{vectors: [][]float32{{1, 0}}}, seededStore(t), &stubGraphStore{err: errors.New("down")}, quietLogger())

	result, err := r.Retrieve(context.Background(), "revenue", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Passages) != 1 || result.Passages[0].Page != 1 {
		t.Fatalf("unexpected passages: %+v", result.Passages)
	}
}

func TestRetrieveEmptyStore(t *testing.T) {
	r := NewRetriever(&stubEmbedder{vectors: [][]float32{{1, 0}}}, vectorstore.NewMemoryStore(), nil, quietLogger())
	result, err := r.Retrieve(context.Background(), "revenue", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Passages) != 0 {
		t.Fatalf("expected no passages, got %d", len(result.Passages))
	}
}

func TestRetrieveValidates(t *testing.T) {
	r := NewRetriever(&stubEmbedder{}, vectorstore.NewMemoryStore(), nil, quietLogger())
	if _, err := r.Retrieve(context.Background(), "  ", 3); err == nil {
		t.Fatal("expected error for empty query")
	}
	if _, err := r.Retrieve(context.Background(), "q", 3); err == nil {
		t.Fatal("expected error when embedder returns no vectors")
	}

	boom := errors.New("boom")
	r = NewRetriever(&stubEmbedder{err: boom}, vectorstore.NewMemoryStore(), nil, quietLogger())
	if _, err := r.Retrieve(context.Background(), "q", 3); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped embed error, got %v", err)
	}
}
