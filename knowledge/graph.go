// Package knowledge mirrors ingested filings into a Neo4j graph:
//
//	(:Company)-[:FILED]->(:Filing)-[:HAS_SECTION|HAS_PAGE]->(:Section|:Page)-[:HAS_CHUNK]->(:Chunk)
package knowledge

import (
	"context"
	"fmt"
	"log"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type Filing struct {
	Source  string
	Company string
	Year    string
	SHA     string
	Chunks  []Chunk
}

// Chunk is a filing chunk node. Exactly one of Section and Page is set.
type Chunk struct {
	ID      string
	Index   int
	Text    string
	Section string
	Title   string
	Page    int
}

// Syncer writes filings to the graph.
type Syncer interface {
	SyncFiling(ctx context.Context, filing Filing) error
}

type Neo4jSyncer struct {
	driver neo4j.DriverWithContext
	logger *log.Logger
}

func NewNeo4jSyncer(driver neo4j.DriverWithContext, logger *log.Logger) *Neo4jSyncer {
	if logger == nil {
		logger = log.Default()
	}
	return &Neo4jSyncer{driver: driver, logger: logger}
}

// SyncFiling replaces the graph of filing.Source with the given chunks.
func (s *Neo4jSyncer) SyncFiling(ctx context.Context, filing Filing) error {
	if s.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}
	if filing.Source == "" {
		return fmt.Errorf("filing source is empty")
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	params := map[string]any{
		"source":  filing.Source,
		"company": filing.Company,
		"year":    filing.Year,
		"sha":     filing.SHA,
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (f:Filing {source: $source})
			SET f.company = $company,
			    f.year = $year,
			    f.sha256 = $sha,
			    f.updated_at = datetime()
		`, params); err != nil {
			return nil, fmt.Errorf("upsert filing node: %w", err)
		}

		if _, err := tx.Run(ctx, `
			MATCH (c:Company)-[r:FILED]->(f:Filing {source: $source})
			DELETE r
		`, params); err != nil {
			return nil, fmt.Errorf("remove stale company relation: %w", err)
		}
		if filing.Company != "" {
			if _, err := tx.Run(ctx, `
				MATCH (f:Filing {source: $source})
				MERGE (c:Company {ticker: $company})
				MERGE (c)-[:FILED {year: $year}]->(f)
			`, params); err != nil {
				return nil, fmt.Errorf("upsert company relation: %w", err)
			}
		}

		if _, err := tx.Run(ctx, `
			MATCH (f:Filing {source: $source})-[:HAS_SECTION|HAS_PAGE]->(n)
			OPTIONAL MATCH (n)-[:HAS_CHUNK]->(c:Chunk)
			DETACH DELETE n, c
		`, params); err != nil {
			return nil, fmt.Errorf("clear existing filing structure: %w", err)
		}

		for _, chunk := range filing.Chunks {
			chunkParams := map[string]any{
				"source":      filing.Source,
				"chunk_id":    chunk.ID,
				"chunk_index": chunk.Index,
				"chunk_text":  chunk.Text,
			}

			var query string
			switch {
			case chunk.Section != "":
				chunkParams["section"] = chunk.Section
				chunkParams["title"] = chunk.Title
				query = `
					MATCH (f:Filing {source: $source})
					MERGE (s:Section {source: $source, name: $section})
					SET s.title = $title
					MERGE (f)-[:HAS_SECTION]->(s)
					MERGE (c:Chunk {id: $chunk_id})
					SET c.index = $chunk_index,
					    c.text = $chunk_text
					MERGE (s)-[:HAS_CHUNK {order: $chunk_index}]->(c)
				`
			case chunk.Page > 0:
				chunkParams["page"] = chunk.Page
				query = `
					MATCH (f:Filing {source: $source})
					MERGE (p:Page {source: $source, number: $page})
					MERGE (f)-[:HAS_PAGE]->(p)
					MERGE (c:Chunk {id: $chunk_id})
					SET c.index = $chunk_index,
					    c.text = $chunk_text
					MERGE (p)-[:HAS_CHUNK {order: $chunk_index}]->(c)
				`
			default:
				s.logger.Printf("skip untagged chunk %d of %s", chunk.Index, filing.Source)
				continue
			}

			if _, err := tx.Run(ctx, query, chunkParams); err != nil {
				return nil, fmt.Errorf("upsert chunk node %d: %w", chunk.Index, err)
			}
		}

		return nil, nil
	})
	if err != nil {
		return err
	}

	if _, err := session.Run(ctx, `
		MATCH (c:Company)
		WHERE NOT (c)-[:FILED]->(:Filing)
		DELETE c
	`, nil); err != nil {
		return fmt.Errorf("cleanup orphan companies: %w", err)
	}
	return nil
}

// Purge removes every node written by SyncFiling.
func Purge(ctx context.Context, driver neo4j.DriverWithContext) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	queries := []string{
		"MATCH (c:Chunk) DETACH DELETE c",
		"MATCH (s:Section) DETACH DELETE s",
		"MATCH (p:Page) DETACH DELETE p",
		"MATCH (f:Filing) DETACH DELETE f",
		"MATCH (c:Company) DETACH DELETE c",
	}
	for _, query := range queries {
		result, err := session.Run(ctx, query, nil)
		if err != nil {
			return fmt.Errorf("run purge query: %w", err)
		}
		if _, err := result.Consume(ctx); err != nil {
			return fmt.Errorf("consume purge result: %w", err)
		}
	}
	return nil
}

var _ Syncer = (*Neo4jSyncer)(nil)
