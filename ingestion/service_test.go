package ingestion

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/filing-agent/embeddings"
	"github.com/fabfab/filing-agent/filing"
	"github.com/fabfab/filing-agent/knowledge"
	"github.com/fabfab/filing-agent/vectorstore"
)

const sectionFiling = `<html><head><style>p { color: red }</style></head><body>
<p>Table of contents</p>
<p>Item 1A. Risk Factors</p>
<p>Item 7. Management's Discussion</p>
<hr/>
<p>ITEM 1A. Competition may reduce our margins.</p>
<p>ITEM 3. Legal proceedings are immaterial.</p>
<hr/>
<p>ITEM 7. Revenue was $10B and operating income was $2B.</p>
</body></html>`

type lengthEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (e *lengthEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = []float32{float32(len(text)), 1}
	}
	return vectors, nil
}

var _ embeddings.Embedder = (*lengthEmbedder)(nil)

type recordingSyncer struct {
	mu      sync.Mutex
	filings []knowledge.Filing
}

func (r *recordingSyncer) SyncFiling(ctx context.Context, f knowledge.Filing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filings = append(r.filings, f)
	return nil
}

var _ knowledge.Syncer = (*recordingSyncer)(nil)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadUnitsSectionMode(t *testing.T) {
	meta := filing.Meta{Source: "ABC-20230101.htm", Company: "ABC", Year: "2023"}
	units, err := LoadUnits([]byte(sectionFiling), FormatHTML, filing.ModeSection, meta)
	require.NoError(t, err)

	require.Len(t, units, 2)
	assert.Equal(t, "ITEM 1A", units[0].Section)
	assert.Contains(t, units[0].Content, "Competition may reduce our margins.")
	assert.Equal(t, "ITEM 7", units[1].Section)
	assert.Contains(t, units[1].Content, "Revenue was $10B")
	assert.NotContains(t, units[1].Content, "color")
	for _, u := range units {
		assert.Zero(t, u.Page)
		assert.Equal(t, "2023", u.Year)
	}
}

func TestLoadUnitsPageMode(t *testing.T) {
	meta := filing.Meta{Source: "ABC-20230101.htm", Company: "ABC", Year: "2023"}
	units, err := LoadUnits([]byte(sectionFiling), FormatHTML, filing.ModePage, meta)
	require.NoError(t, err)

	require.Len(t, units, 3)
	for i, u := range units {
		assert.Equal(t, i+1, u.Page)
		assert.Empty(t, u.Section)
	}
	assert.Contains(t, units[2].Content, "operating income was $2B")
}

func TestLoadUnitsRejectsUnknownFormat(t *testing.T) {
	_, err := LoadUnits([]byte("x"), FormatUnknown, filing.ModePage, filing.Meta{Source: "notes.txt"})
	assert.Error(t, err)
}

func TestIngestDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ABC-20230101.htm", sectionFiling)
	writeFile(t, dir, "annual-report.htm", "<p>ITEM 8. Balance sheet totals.</p>")
	writeFile(t, dir, "XYZ-20220101.pdf", "not really a pdf")
	writeFile(t, dir, "EMPTY-20220101.htm", "<p>no items here</p>")
	writeFile(t, dir, "notes.txt", "ignored")

	store := vectorstore.NewMemoryStore()
	embedder := &lengthEmbedder{}
	graph := &recordingSyncer{}
	svc := NewService(store, embedder, graph, Options{Mode: filing.ModeSection}, quietLogger())

	summary, err := svc.IngestDirectory(context.Background(), dir, false)
	require.NoError(t, err)
	assert.Equal(t, Summary{Files: 4, Ingested: 2, Empty: 1, Failed: 1, Chunks: 3}, summary)

	populated, err := store.Populated(context.Background())
	require.NoError(t, err)
	assert.True(t, populated)

	passages, err := store.Query(context.Background(), []float32{1, 1}, 10)
	require.NoError(t, err)
	require.Len(t, passages, 3)
	bySource := map[string]vectorstore.Passage{}
	for _, p := range passages {
		bySource[p.Source+"/"+p.Section] = p
	}
	assert.Equal(t, "ABC", bySource["ABC-20230101.htm/ITEM 7"].Company)
	assert.Equal(t, "2023", bySource["ABC-20230101.htm/ITEM 7"].Year)
	nonConforming := bySource["annual-report.htm/ITEM 8"]
	assert.Contains(t, nonConforming.Content, "Balance sheet totals.")
	assert.Empty(t, nonConforming.Year)

	require.Len(t, graph.filings, 2)
	assert.Equal(t, "ABC-20230101.htm", graph.filings[0].Source)
	require.Len(t, graph.filings[0].Chunks, 2)
	assert.Equal(t, "Risk Factors", graph.filings[0].Chunks[0].Title)
}

func TestIngestDirectorySkipsPopulatedStore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ABC-20230101.htm", sectionFiling)

	store := vectorstore.NewMemoryStore()
	embedder := &lengthEmbedder{}
	svc := NewService(store, embedder, nil, Options{}, quietLogger())

	_, err := svc.IngestDirectory(context.Background(), dir, false)
	require.NoError(t, err)
	require.Equal(t, 1, embedder.calls)

	summary, err := svc.IngestDirectory(context.Background(), dir, false)
	require.NoError(t, err)
	assert.True(t, summary.Skipped)
	assert.Equal(t, 1, embedder.calls)

	summary, err = svc.IngestDirectory(context.Background(), dir, true)
	require.NoError(t, err)
	assert.Equal(t, Summary{Files: 1, Unchanged: 1}, summary)
	assert.Equal(t, 1, embedder.calls)

	writeFile(t, dir, "ABC-20230101.htm", strings.Replace(sectionFiling, "$10B", "$11B", 1))
	summary, err = svc.IngestDirectory(context.Background(), dir, true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Ingested)
	assert.Equal(t, 2, embedder.calls)
}

func TestIngestDirectoryPageMode(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ABC-20230101.htm", sectionFiling)

	store := vectorstore.NewMemoryStore()
	svc := NewService(store, &lengthEmbedder{}, nil, Options{Mode: filing.ModePage}, quietLogger())

	summary, err := svc.IngestDirectory(context.Background(), dir, false)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Chunks)

	passages, err := store.Query(context.Background(), []float32{1, 1}, 10)
	require.NoError(t, err)
	pages := map[int]bool{}
	for _, p := range passages {
		assert.Empty(t, p.Section)
		pages[p.Page] = true
	}
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, pages)
}

func TestIngestDirectoryErrors(t *testing.T) {
	store := vectorstore.NewMemoryStore()

	_, err := NewService(nil, &lengthEmbedder{}, nil, Options{}, quietLogger()).IngestDirectory(context.Background(), t.TempDir(), false)
	assert.Error(t, err)
	_, err = NewService(store, nil, nil, Options{}, quietLogger()).IngestDirectory(context.Background(), t.TempDir(), false)
	assert.Error(t, err)
	_, err = NewService(store, &lengthEmbedder{}, nil, Options{}, quietLogger()).IngestDirectory(context.Background(), filepath.Join(t.TempDir(), "missing"), false)
	assert.Error(t, err)
}
