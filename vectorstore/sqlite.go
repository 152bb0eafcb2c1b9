package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists chunks and their embeddings in a single SQLite file.
// Similarity is computed in process by scanning every stored embedding, which
// suits a corpus of a few thousand chunks.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path. The path
// ":memory:" keeps the database in memory.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS filings (
			source TEXT PRIMARY KEY,
			company TEXT NOT NULL DEFAULT '',
			year TEXT NOT NULL DEFAULT '',
			sha256 TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL REFERENCES filings(source) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			section TEXT NOT NULL DEFAULT '',
			page_number INTEGER NOT NULL DEFAULT 0,
			content TEXT NOT NULL,
			embedding BLOB NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source, chunk_index)",
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, filing Filing, chunks []Chunk, vectors [][]float32) (err error) {
	if err := checkUpsert(filing, chunks, vectors); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO filings (source, company, year, sha256, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(source) DO UPDATE SET
			company = excluded.company,
			year = excluded.year,
			sha256 = excluded.sha256,
			updated_at = CURRENT_TIMESTAMP
	`, filing.Source, filing.Company, filing.Year, filing.SHA256); err != nil {
		return fmt.Errorf("upsert filing: %w", err)
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM chunks WHERE source = ?", filing.Source); err != nil {
		return fmt.Errorf("clear existing chunks: %w", err)
	}

	for idx, chunk := range chunks {
		id := chunk.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO chunks (id, source, chunk_index, section, page_number, content, embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, filing.Source, chunk.Index, chunk.Section, chunk.Page, chunk.Content, encodeVector(vectors[idx])); err != nil {
			return fmt.Errorf("insert chunk %d: %w", idx, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, vector []float32, k int) ([]Passage, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.source, f.company, f.year, c.section, c.page_number, c.chunk_index, c.content, c.embedding
		FROM chunks c
		JOIN filings f ON f.source = c.source
		ORDER BY f.rowid, c.chunk_index
	`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	candidates := make([]Passage, 0)
	for rows.Next() {
		var (
			p    Passage
			blob []byte
		)
		if err := rows.Scan(&p.ID, &p.Source, &p.Company, &p.Year, &p.Section, &p.Page, &p.Index, &p.Content, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		p.Score = cosine(vector, decodeVector(blob))
		candidates = append(candidates, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return topK(candidates, k), nil
}

func (s *SQLiteStore) Populated(ctx context.Context) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM chunks)").Scan(&exists); err != nil {
		return false, fmt.Errorf("check chunks: %w", err)
	}
	return exists, nil
}

func (s *SQLiteStore) Fingerprint(ctx context.Context, source string) (string, error) {
	var sha string
	err := s.db.QueryRowContext(ctx, "SELECT sha256 FROM filings WHERE source = ?", source).Scan(&sha)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query filing fingerprint: %w", err)
	}
	return sha, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM filings"); err != nil {
		return fmt.Errorf("delete filings: %w", err)
	}
	return nil
}

// encodeVector stores a vector as little-endian float32 values.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) []float32 {
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec
}

var _ Store = (*SQLiteStore)(nil)
