// Package ingestion loads a directory of 10-K filings, segments them into
// Document Units, chunks and embeds the units and persists them to the
// vector store and, when configured, the knowledge graph.
package ingestion

import (
	"path/filepath"
	"strings"
)

// DocumentFormat enumerates supported filing formats.
type DocumentFormat string

const (
	// FormatUnknown represents an unsupported file.
	FormatUnknown DocumentFormat = ""
	// FormatHTML represents EDGAR HTML filings.
	FormatHTML DocumentFormat = "html"
	// FormatPDF represents PDF filings.
	FormatPDF DocumentFormat = "pdf"
)

// DetectFormat infers a filing format from the path's extension.
func DetectFormat(path string) DocumentFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".htm", ".html":
		return FormatHTML
	case ".pdf":
		return FormatPDF
	default:
		return FormatUnknown
	}
}
