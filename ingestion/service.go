package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/fabfab/filing-agent/embeddings"
	"github.com/fabfab/filing-agent/filing"
	"github.com/fabfab/filing-agent/knowledge"
	"github.com/fabfab/filing-agent/vectorstore"
)

var errNoUnits = errors.New("no units found")

type Options struct {
	Mode         filing.Mode
	ChunkSize    int
	ChunkOverlap int
}

// Summary counts what one IngestDirectory call did.
type Summary struct {
	Files    int `json:"files"`
	Ingested int `json:"ingested"`
	// Unchanged files already stored with the same sha256.
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
	// Empty files yielded no units in the configured mode.
	Empty   int  `json:"empty"`
	Chunks  int  `json:"chunks"`
	Skipped bool `json:"skipped"`
}

type Service struct {
	store    vectorstore.Store
	embedder embeddings.Embedder
	graph    knowledge.Syncer
	logger   *log.Logger
	opts     Options
}

// NewService wires the ingestion pipeline. graph may be nil, in which case
// filings are only written to the vector store.
func NewService(store vectorstore.Store, embedder embeddings.Embedder, graph knowledge.Syncer, opts Options, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if opts.Mode == "" {
		opts.Mode = filing.ModeSection
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = DefaultChunkOverlap
	}

	return &Service{
		store:    store,
		embedder: embedder,
		graph:    graph,
		logger:   logger,
		opts:     opts,
	}
}

// IngestDirectory loads every supported filing under dir. When the store
// already holds data the walk is skipped unless force is set. A failing file
// is logged and the walk continues.
func (s *Service) IngestDirectory(ctx context.Context, dir string, force bool) (Summary, error) {
	var summary Summary
	if s.store == nil {
		return summary, fmt.Errorf("vector store not configured")
	}
	if s.embedder == nil {
		return summary, fmt.Errorf("embedder not configured")
	}
	if err := s.store.Init(ctx); err != nil {
		return summary, fmt.Errorf("init vector store: %w", err)
	}

	if !force {
		populated, err := s.store.Populated(ctx)
		if err != nil {
			return summary, fmt.Errorf("check vector store: %w", err)
		}
		if populated {
			s.logger.Printf("vector store already populated, skipping ingestion (use force to re-ingest)")
			summary.Skipped = true
			return summary, nil
		}
	}

	if _, err := os.Stat(dir); err != nil {
		return summary, fmt.Errorf("data directory: %w", err)
	}

	paths := make([]string, 0)
	if err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if DetectFormat(path) != FormatUnknown {
			paths = append(paths, path)
		}
		return nil
	}); err != nil {
		return summary, fmt.Errorf("walk data directory: %w", err)
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		s.logger.Printf("no filings found in %s", dir)
		return summary, nil
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Files++

		chunks, changed, err := s.ingestFile(ctx, path)
		switch {
		case errors.Is(err, errNoUnits):
			summary.Empty++
			s.logger.Printf("skip %s: %v", path, err)
		case err != nil:
			summary.Failed++
			s.logger.Printf("ingest failed for %s: %v", path, err)
		case !changed:
			summary.Unchanged++
		default:
			summary.Ingested++
			summary.Chunks += chunks
		}
	}

	s.logger.Printf("ingestion finished: %d files, %d ingested, %d unchanged, %d empty, %d failed, %d chunks",
		summary.Files, summary.Ingested, summary.Unchanged, summary.Empty, summary.Failed, summary.Chunks)
	return summary, nil
}

func (s *Service) ingestFile(ctx context.Context, path string) (int, bool, error) {
	s.logger.Printf("loading contents of file %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false, fmt.Errorf("read file: %w", err)
	}
	hash := sha256.Sum256(data)
	hashHex := hex.EncodeToString(hash[:])

	meta, err := filing.ParseFilename(path)
	if err != nil {
		if !errors.Is(err, filing.ErrFilenameConvention) {
			return 0, false, err
		}
		s.logger.Printf("warning: %v; company and year will be missing from citations", err)
	}

	stored, err := s.store.Fingerprint(ctx, meta.Source)
	if err != nil {
		return 0, false, fmt.Errorf("read fingerprint: %w", err)
	}
	if stored == hashHex {
		s.logger.Printf("no updates required for %s", meta.Source)
		return 0, false, nil
	}

	units, err := LoadUnits(data, DetectFormat(path), s.opts.Mode, meta)
	if err != nil {
		return 0, false, fmt.Errorf("segment filing: %w", err)
	}
	units = ChunkUnits(units, s.opts.ChunkSize, s.opts.ChunkOverlap)
	s.logger.Printf("loaded --> %d docs", len(units))
	if len(units) == 0 {
		return 0, false, fmt.Errorf("%w (mode %s)", errNoUnits, s.opts.Mode)
	}

	texts := make([]string, len(units))
	chunks := make([]vectorstore.Chunk, len(units))
	for i, unit := range units {
		texts[i] = unit.Content
		chunks[i] = vectorstore.Chunk{
			ID:      uuid.NewString(),
			Source:  unit.Source,
			Company: unit.Company,
			Year:    unit.Year,
			Section: unit.Section,
			Page:    unit.Page,
			Index:   i,
			Content: unit.Content,
		}
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, false, fmt.Errorf("generate embeddings: %w", err)
	}

	record := vectorstore.Filing{Source: meta.Source, Company: meta.Company, Year: meta.Year, SHA256: hashHex}
	if err := s.store.Upsert(ctx, record, chunks, vectors); err != nil {
		return 0, false, fmt.Errorf("store chunks: %w", err)
	}

	if s.graph != nil {
		if err := s.graph.SyncFiling(ctx, graphFiling(record, chunks)); err != nil {
			return 0, false, fmt.Errorf("sync knowledge graph: %w", err)
		}
	}

	s.logger.Printf("ingested %s (%d chunks)", meta.Source, len(chunks))
	return len(chunks), true, nil
}

func graphFiling(record vectorstore.Filing, chunks []vectorstore.Chunk) knowledge.Filing {
	nodes := make([]knowledge.Chunk, len(chunks))
	for i, chunk := range chunks {
		nodes[i] = knowledge.Chunk{
			ID:      chunk.ID,
			Index:   chunk.Index,
			Text:    chunk.Content,
			Section: chunk.Section,
			Title:   filing.SectionTitle(chunk.Section),
			Page:    chunk.Page,
		}
	}
	return knowledge.Filing{
		Source:  record.Source,
		Company: record.Company,
		Year:    record.Year,
		SHA:     record.SHA256,
		Chunks:  nodes,
	}
}
