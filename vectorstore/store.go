// Package vectorstore persists embedded filing chunks and answers nearest
// neighbour queries over them. Postgres (pgvector), SQLite and in-memory
// backends share the Store interface.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabfab/filing-agent/config"
)

// ErrEmptyVector is returned when a query carries no embedding.
var ErrEmptyVector = errors.New("embedding is empty")

// Filing identifies one ingested source document.
type Filing struct {
	Source  string
	Company string
	Year    string
	SHA256  string
}

// Chunk is an embedded slice of a Document Unit. Page is zero for
// section-tagged chunks and Section is empty for page-tagged chunks.
type Chunk struct {
	ID      string
	Source  string
	Company string
	Year    string
	Section string
	Page    int
	Index   int
	Content string
}

// Passage is a retrieved chunk with its similarity score; higher is closer.
type Passage struct {
	Chunk
	Score float64
}

type Store interface {
	// Init prepares the backing schema. It is safe to call repeatedly.
	Init(ctx context.Context) error
	// Upsert replaces every chunk previously stored for filing.Source.
	Upsert(ctx context.Context, filing Filing, chunks []Chunk, vectors [][]float32) error
	// Query returns at most k passages ordered by descending score.
	Query(ctx context.Context, vector []float32, k int) ([]Passage, error)
	// Populated reports whether any chunk has been stored.
	Populated(ctx context.Context) (bool, error)
	// Fingerprint returns the stored sha256 of a source, or "" when unknown.
	Fingerprint(ctx context.Context, source string) (string, error)
	Clear(ctx context.Context) error
}

// Open builds the store selected by cfg.VectorStore.Backend. The pool is only
// used by the postgres backend and may be nil otherwise. The returned close
// function releases backend resources.
func Open(cfg config.Config, pool *pgxpool.Pool, logger *log.Logger) (Store, func() error, error) {
	if logger == nil {
		logger = log.Default()
	}
	noop := func() error { return nil }

	switch cfg.VectorStore.Backend {
	case config.BackendPostgres:
		if pool == nil {
			return nil, noop, fmt.Errorf("postgres backend selected but no pool provided")
		}
		return NewPostgresStore(pool, cfg.Embeddings.Dimension), noop, nil
	case config.BackendSQLite:
		store, err := NewSQLiteStore(cfg.VectorStore.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case config.BackendMemory:
		logger.Printf("using in-memory vector store; ingested data is lost on exit")
		return NewMemoryStore(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown vector store backend: %s", cfg.VectorStore.Backend)
	}
}

func checkUpsert(filing Filing, chunks []Chunk, vectors [][]float32) error {
	if filing.Source == "" {
		return fmt.Errorf("filing source is empty")
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("embedding count mismatch: have %d chunks, %d embeddings", len(chunks), len(vectors))
	}
	for i, vec := range vectors {
		if len(vec) == 0 {
			return fmt.Errorf("chunk %d: %w", i, ErrEmptyVector)
		}
	}
	return nil
}
