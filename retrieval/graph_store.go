package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// FilingInsight summarizes what the graph knows about a filing.
type FilingInsight struct {
	Company    string
	Year       string
	ChunkCount int
	PageCount  int
	Sections   []string
	// OtherYears lists the years of the company's other ingested filings.
	OtherYears []string
}

// Summary renders the insight as a single context line, or "" when empty.
func (i FilingInsight) Summary() string {
	parts := make([]string, 0, 4)
	if i.ChunkCount > 0 {
		parts = append(parts, fmt.Sprintf("%d chunks indexed", i.ChunkCount))
	}
	if i.PageCount > 0 {
		parts = append(parts, fmt.Sprintf("%d pages", i.PageCount))
	}
	if len(i.Sections) > 0 {
		parts = append(parts, "sections "+strings.Join(i.Sections, ", "))
	}
	if len(i.OtherYears) > 0 {
		parts = append(parts, "other filings for "+strings.Join(i.OtherYears, ", "))
	}
	return strings.Join(parts, "; ")
}

type GraphStore interface {
	FilingInsights(ctx context.Context, sources []string) (map[string]FilingInsight, error)
}

type Neo4jGraphStore struct {
	driver neo4j.DriverWithContext
}

func NewNeo4jGraphStore(driver neo4j.DriverWithContext) *Neo4jGraphStore {
	return &Neo4jGraphStore{driver: driver}
}

func (s *Neo4jGraphStore) FilingInsights(ctx context.Context, sources []string) (map[string]FilingInsight, error) {
	if s.driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}
	if len(sources) == 0 {
		return map[string]FilingInsight{}, nil
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (f:Filing)
		WHERE f.source IN $sources
		OPTIONAL MATCH (f)-[:HAS_SECTION]->(s:Section)
		WITH f, collect(DISTINCT s.name) AS sections
		OPTIONAL MATCH (f)-[:HAS_PAGE]->(p:Page)
		WITH f, sections, count(DISTINCT p) AS pageCount
		OPTIONAL MATCH (f)-[:HAS_SECTION|HAS_PAGE]->()-[:HAS_CHUNK]->(c:Chunk)
		WITH f, sections, pageCount, count(DISTINCT c) AS chunkCount
		OPTIONAL MATCH (co:Company {ticker: f.company})-[:FILED]->(other:Filing)
		WHERE other.source <> f.source
		RETURN f.source AS source,
		       f.company AS company,
		       f.year AS year,
		       chunkCount,
		       pageCount,
		       sections,
		       collect(DISTINCT other.year) AS otherYears
	`, map[string]any{"sources": sources})
	if err != nil {
		return nil, fmt.Errorf("run neo4j insights query: %w", err)
	}

	insights := make(map[string]FilingInsight, len(sources))
	for result.Next(ctx) {
		record := result.Record()
		sourceVal, _ := record.Get("source")
		source, ok := sourceVal.(string)
		if !ok {
			continue
		}
		company, _ := record.Get("company")
		year, _ := record.Get("year")
		chunkCount, _ := record.Get("chunkCount")
		pageCount, _ := record.Get("pageCount")
		sections, _ := record.Get("sections")
		otherYears, _ := record.Get("otherYears")

		insight := FilingInsight{
			Sections:   convertStringSlice(sections),
			OtherYears: convertStringSlice(otherYears),
		}
		insight.Company, _ = company.(string)
		insight.Year, _ = year.(string)
		insight.ChunkCount, _ = toInt(chunkCount)
		insight.PageCount, _ = toInt(pageCount)
		sort.Strings(insight.Sections)
		sort.Strings(insight.OtherYears)
		insights[source] = insight
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("neo4j insights result error: %w", err)
	}

	return insights, nil
}

var _ GraphStore = (*Neo4jGraphStore)(nil)

func convertStringSlice(value any) []string {
	raw, ok := value.([]any)
	if !ok {
		if v, ok := value.([]string); ok {
			return v
		}
		return nil
	}

	result := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			result = append(result, s)
		}
	}
	return result
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
