package vectorstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type memoryEntry struct {
	chunk  Chunk
	vector []float32
}

// MemoryStore keeps chunks in process memory. Reads may run concurrently;
// writes take the exclusive lock.
type MemoryStore struct {
	mu      sync.RWMutex
	order   []string
	filings map[string]Filing
	entries map[string][]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		filings: make(map[string]Filing),
		entries: make(map[string][]memoryEntry),
	}
}

func (s *MemoryStore) Init(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, filing Filing, chunks []Chunk, vectors [][]float32) error {
	if err := checkUpsert(filing, chunks, vectors); err != nil {
		return err
	}

	entries := make([]memoryEntry, len(chunks))
	for i, chunk := range chunks {
		if chunk.ID == "" {
			chunk.ID = uuid.NewString()
		}
		chunk.Source = filing.Source
		chunk.Company = filing.Company
		chunk.Year = filing.Year
		entries[i] = memoryEntry{chunk: chunk, vector: append([]float32(nil), vectors[i]...)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.filings[filing.Source]; !ok {
		s.order = append(s.order, filing.Source)
	}
	s.filings[filing.Source] = filing
	s.entries[filing.Source] = entries
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, vector []float32, k int) ([]Passage, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]Passage, 0)
	for _, source := range s.order {
		for _, entry := range s.entries[source] {
			candidates = append(candidates, Passage{Chunk: entry.chunk, Score: cosine(vector, entry.vector)})
		}
	}
	return topK(candidates, k), nil
}

func (s *MemoryStore) Populated(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entries := range s.entries {
		if len(entries) > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Fingerprint(ctx context.Context, source string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filings[source].SHA256, nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.filings = make(map[string]Filing)
	s.entries = make(map[string][]memoryEntry)
	return nil
}

var _ Store = (*MemoryStore)(nil)
