package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/fabfab/filing-agent/database"
)

// PostgresStore keeps filings and chunk embeddings in Postgres using the
// pgvector extension. Scores are 1/(1+L2 distance).
type PostgresStore struct {
	pool      *pgxpool.Pool
	dimension int
}

func NewPostgresStore(pool *pgxpool.Pool, dimension int) *PostgresStore {
	return &PostgresStore{pool: pool, dimension: dimension}
}

func (s *PostgresStore) Init(ctx context.Context) error {
	if err := database.EnsureRAGSchema(ctx, s.pool, s.dimension); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, filing Filing, chunks []Chunk, vectors [][]float32) (err error) {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if err := checkUpsert(filing, chunks, vectors); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	filingID, err := upsertFiling(ctx, tx, filing)
	if err != nil {
		return err
	}

	if _, err = tx.Exec(ctx, "DELETE FROM rag_chunks WHERE filing_id = $1", filingID); err != nil {
		return fmt.Errorf("clear existing chunks: %w", err)
	}

	for idx, chunk := range chunks {
		chunkID := uuid.New()
		if chunk.ID != "" {
			if parsed, parseErr := uuid.Parse(chunk.ID); parseErr == nil {
				chunkID = parsed
			}
		}
		var page *int
		if chunk.Page > 0 {
			p := chunk.Page
			page = &p
		}
		if _, err = tx.Exec(ctx, `
			INSERT INTO rag_chunks (id, filing_id, chunk_index, section, page_number, content, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		`, chunkID, filingID, chunk.Index, chunk.Section, page, chunk.Content, pgvector.NewVector(vectors[idx])); err != nil {
			return fmt.Errorf("insert chunk %d: %w", idx, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func upsertFiling(ctx context.Context, tx pgx.Tx, filing Filing) (uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, "SELECT id FROM rag_filings WHERE source = $1", filing.Source).Scan(&id)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("query filing: %w", err)
		}
		id = uuid.New()
		if _, err := tx.Exec(ctx, `
			INSERT INTO rag_filings (id, source, company, year, sha256, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		`, id, filing.Source, filing.Company, filing.Year, filing.SHA256); err != nil {
			return uuid.Nil, fmt.Errorf("insert filing: %w", err)
		}
		return id, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE rag_filings
		SET company = $2,
		    year = $3,
		    sha256 = $4,
		    updated_at = NOW()
		WHERE id = $1
	`, id, filing.Company, filing.Year, filing.SHA256); err != nil {
		return uuid.Nil, fmt.Errorf("update filing: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Query(ctx context.Context, vector []float32, k int) ([]Passage, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	if k <= 0 {
		k = defaultLimit
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	probes := k * 10
	if probes < 10 {
		probes = 10
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("set ivfflat probes: %w", err)
	}

	rows, err := conn.Query(ctx, `
		SELECT
			rc.id,
			rf.source,
			COALESCE(rf.company, ''),
			COALESCE(rf.year, ''),
			COALESCE(rc.section, ''),
			COALESCE(rc.page_number, 0),
			rc.chunk_index,
			rc.content,
			(rc.embedding <-> $1::vector) AS distance
		FROM rag_chunks rc
		JOIN rag_filings rf ON rf.id = rc.filing_id
		ORDER BY rc.embedding <-> $1::vector
		LIMIT $2
	`, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	passages := make([]Passage, 0, k)
	for rows.Next() {
		var (
			p        Passage
			id       uuid.UUID
			distance float64
		)
		if err := rows.Scan(&id, &p.Source, &p.Company, &p.Year, &p.Section, &p.Page, &p.Index, &p.Content, &distance); err != nil {
			return nil, fmt.Errorf("scan similar chunk: %w", err)
		}
		p.ID = id.String()
		p.Score = 1 / (1 + distance)
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar chunks: %w", err)
	}
	return passages, nil
}

func (s *PostgresStore) Populated(ctx context.Context) (bool, error) {
	if s.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM rag_chunks)").Scan(&exists); err != nil {
		return false, fmt.Errorf("check chunks: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Fingerprint(ctx context.Context, source string) (string, error) {
	if s.pool == nil {
		return "", fmt.Errorf("postgres pool is nil")
	}
	var sha string
	err := s.pool.QueryRow(ctx, "SELECT sha256 FROM rag_filings WHERE source = $1", source).Scan(&sha)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query filing fingerprint: %w", err)
	}
	return sha, nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	return database.TruncateRAG(ctx, s.pool)
}

var _ Store = (*PostgresStore)(nil)
