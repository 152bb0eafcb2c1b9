package ingestion

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fabfab/filing-agent/filing"
)

// LoadUnits segments one filing into Document Units. HTML filings are split
// by section or by <hr> page break; PDF filings use their own pages, or the
// concatenated page text when segmenting by section.
func LoadUnits(data []byte, format DocumentFormat, mode filing.Mode, meta filing.Meta) ([]filing.Unit, error) {
	switch format {
	case FormatHTML:
		switch mode {
		case filing.ModePage:
			markup, err := filing.StripMarkup(bytes.NewReader(data))
			if err != nil {
				return nil, err
			}
			return filing.SplitPages(markup, meta), nil
		default:
			text, err := filing.Normalize(bytes.NewReader(data))
			if err != nil {
				return nil, err
			}
			return filing.SplitSections(text, meta), nil
		}
	case FormatPDF:
		pages, err := filing.SplitPDFPages(data, meta)
		if err != nil {
			return nil, err
		}
		if mode == filing.ModePage {
			return pages, nil
		}
		texts := make([]string, len(pages))
		for i, page := range pages {
			texts[i] = page.Content
		}
		return filing.SplitSections(strings.Join(texts, " "), meta), nil
	default:
		return nil, fmt.Errorf("unsupported format for %s", meta.Source)
	}
}
