package vectorstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/filing-agent/config"
	"github.com/fabfab/filing-agent/database"
)

func exerciseStore(t *testing.T, store Store, dim int) {
	t.Helper()
	ctx := context.Background()
	v := func(values ...float32) []float32 {
		out := make([]float32, dim)
		copy(out, values)
		return out
	}

	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.Clear(ctx))

	populated, err := store.Populated(ctx)
	require.NoError(t, err)
	assert.False(t, populated)

	filing := Filing{Source: "ABC-20230101.htm", Company: "ABC", Year: "2023", SHA256: "sha-1"}
	chunks := []Chunk{
		{Page: 1, Index: 0, Content: "Revenue was $10B"},
		{Page: 2, Index: 1, Content: "Operating income was $2B"},
		{Page: 3, Index: 2, Content: "Legal proceedings"},
	}
	vectors := [][]float32{v(1, 0, 0), v(0, 1, 0), v(0, 0, 1)}
	require.NoError(t, store.Upsert(ctx, filing, chunks, vectors))

	populated, err = store.Populated(ctx)
	require.NoError(t, err)
	assert.True(t, populated)

	sha, err := store.Fingerprint(ctx, filing.Source)
	require.NoError(t, err)
	assert.Equal(t, "sha-1", sha)

	sha, err = store.Fingerprint(ctx, "missing.htm")
	require.NoError(t, err)
	assert.Empty(t, sha)

	passages, err := store.Query(ctx, v(0.9, 0.1, 0), 2)
	require.NoError(t, err)
	require.Len(t, passages, 2)
	assert.Equal(t, "Revenue was $10B", passages[0].Content)
	assert.Equal(t, 1, passages[0].Page)
	assert.Equal(t, "ABC-20230101.htm", passages[0].Source)
	assert.Equal(t, "ABC", passages[0].Company)
	assert.Equal(t, "2023", passages[0].Year)
	assert.NotEmpty(t, passages[0].ID)
	assert.GreaterOrEqual(t, passages[0].Score, passages[1].Score)
	assert.Equal(t, 2, passages[1].Page)

	// re-ingesting a filing replaces its chunks
	filing.SHA256 = "sha-2"
	require.NoError(t, store.Upsert(ctx, filing, []Chunk{{Page: 4, Index: 0, Content: "Notes"}}, [][]float32{v(1, 0, 0)}))
	passages, err = store.Query(ctx, v(1, 0, 0), 10)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "Notes", passages[0].Content)

	sha, err = store.Fingerprint(ctx, filing.Source)
	require.NoError(t, err)
	assert.Equal(t, "sha-2", sha)

	_, err = store.Query(ctx, nil, 3)
	assert.ErrorIs(t, err, ErrEmptyVector)

	err = store.Upsert(ctx, filing, chunks, vectors[:1])
	assert.Error(t, err)

	require.NoError(t, store.Clear(ctx))
	populated, err = store.Populated(ctx)
	require.NoError(t, err)
	assert.False(t, populated)

	passages, err = store.Query(ctx, v(1, 0, 0), 3)
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(), 3)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	exerciseStore(t, store, 3)
}

func TestSQLiteStoreInMemory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	exerciseStore(t, store, 3)
}

func TestPostgresStore(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION_TESTS") != "1" {
		t.Skip("set RUN_DB_INTEGRATION_TESTS=1 to run database integration tests")
	}

	cfg := config.Load()
	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	require.NoError(t, err)
	defer pool.Close()

	exerciseStore(t, NewPostgresStore(pool, cfg.Embeddings.Dimension), cfg.Embeddings.Dimension)
}

func TestMemoryStoreKeepsInsertionOrderOnTies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Upsert(ctx, Filing{Source: "a"}, []Chunk{{Content: "first"}, {Content: "second"}}, [][]float32{{1, 0}, {1, 0}}))
	require.NoError(t, store.Upsert(ctx, Filing{Source: "b"}, []Chunk{{Content: "third"}}, [][]float32{{1, 0}}))

	passages, err := store.Query(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	require.Len(t, passages, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{passages[0].Content, passages[1].Content, passages[2].Content})
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosine([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 2}))
}

func TestVectorEncodingRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3}
	assert.Equal(t, vec, decodeVector(encodeVector(vec)))
}

func TestOpenSelectsBackend(t *testing.T) {
	cfg := config.Config{VectorStore: config.VectorStoreConfig{Backend: config.BackendMemory}}
	store, closeFn, err := Open(cfg, nil, nil)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &MemoryStore{}, store)

	cfg.VectorStore.Backend = config.BackendPostgres
	_, _, err = Open(cfg, nil, nil)
	assert.Error(t, err)

	cfg.VectorStore.Backend = "chroma"
	_, _, err = Open(cfg, nil, nil)
	assert.Error(t, err)
}
