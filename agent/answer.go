package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fabfab/filing-agent/filing"
)

const excerptLimit = 300

type AnswerKind int

const (
	AnswerPlain AnswerKind = iota
	AnswerStructured
)

// Answer is the final result of Ask. Plain answers set Message; structured
// answers set Report.
type Answer struct {
	Kind    AnswerKind
	Message string
	Report  *Report
	Steps   []Step
}

type Report struct {
	Query      string   `json:"query"`
	Answer     string   `json:"answer"`
	Reasoning  string   `json:"reasoning"`
	SubQueries []string `json:"sub_queries"`
	Sources    []Source `json:"sources"`
	Incomplete bool     `json:"incomplete"`
}

// Source cites a retrieved passage. Page is 0 for section-tagged
// passages.
type Source struct {
	Company string `json:"company"`
	Year    string `json:"year"`
	Page    int    `json:"page"`
	Section string `json:"section,omitempty"`
	Excerpt string `json:"excerpt"`
}

// Text renders the answer for a terminal: the message for plain answers, the
// indented JSON report otherwise.
func (a Answer) Text() string {
	if a.Kind == AnswerPlain || a.Report == nil {
		return a.Message
	}
	data, err := json.MarshalIndent(a.Report, "", "  ")
	if err != nil {
		return a.Report.Answer
	}
	return string(data)
}

// buildSources cites the evidence behind every answered sub-query, in
// sub-query order and then rank order, once per (source, page, section).
func buildSources(subs []SubQuery) []Source {
	type key struct {
		source  string
		page    int
		section string
	}
	seen := make(map[key]struct{})
	sources := make([]Source, 0)
	for _, sq := range subs {
		if !sq.Resolved || sq.Insufficient {
			continue
		}
		for _, p := range sq.Evidence {
			k := key{source: p.Source, page: p.Page, section: p.Section}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}

			company := p.Company
			if company == "" {
				company = p.Source
			}
			sources = append(sources, Source{
				Company: company,
				Year:    p.Year,
				Page:    p.Page,
				Section: p.Section,
				Excerpt: truncate(p.Content, excerptLimit),
			})
		}
	}
	return sources
}

// renderContext formats passages with their citation headers for a prompt.
func renderContext(sq SubQuery) string {
	blocks := make([]string, 0, len(sq.Evidence))
	for _, p := range sq.Evidence {
		unit := filing.Unit{Source: p.Source, Year: p.Year, Section: p.Section, Page: p.Page}
		header := unit.Label()
		if p.Company != "" {
			header += " | Company: " + p.Company
		}
		if title := filing.SectionTitle(p.Section); title != "" {
			header += " (" + title + ")"
		}
		if insight, ok := sq.Insights[p.Source]; ok {
			if summary := insight.Summary(); summary != "" {
				header += "\nFiling context: " + summary
			}
		}
		blocks = append(blocks, header+"\n"+p.Content)
	}
	return strings.Join(blocks, "\n\n")
}

func insufficientEvidence(question string) string {
	return fmt.Sprintf("Insufficient evidence: no passages in the ingested filings address %q, so no figure is reported for it.", question)
}

// truncate cuts s to at most limit runes, marking the cut with "...".
func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit])) + "..."
}
