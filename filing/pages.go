package filing

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

var pageBreak = regexp.MustCompile(`(?i)<hr`)

// SplitPages splits script/style-free markup on horizontal rules and returns
// one Unit per non-empty page. Fragment i (1-based) becomes page i, so empty
// fragments leave gaps in the page numbering.
func SplitPages(markup string, meta Meta) []Unit {
	fragments := pageBreak.Split(markup, -1)

	units := make([]Unit, 0, len(fragments))
	for idx, fragment := range fragments {
		if idx > 0 {
			fragment = dropTagRemainder(fragment)
		}
		text := NormalizeString(fragment)
		if text == "" {
			continue
		}
		unit := newUnit(meta, text)
		unit.Page = idx + 1
		units = append(units, unit)
	}
	return units
}

// dropTagRemainder removes what is left of the <hr ...> tag at the start of a
// fragment (attributes and the closing bracket).
func dropTagRemainder(fragment string) string {
	if end := strings.IndexByte(fragment, '>'); end >= 0 {
		if lt := strings.IndexByte(fragment, '<'); lt < 0 || end < lt {
			return fragment[end+1:]
		}
	}
	return fragment
}

// SplitPDFPages returns one Unit per PDF page that has extractable text.
func SplitPDFPages(data []byte, meta Meta) ([]Unit, error) {
	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	units := make([]Unit, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// unreadable page: keep going with the rest of the filing
			continue
		}
		text = collapseSpaces(text)
		if text == "" {
			continue
		}
		unit := newUnit(meta, text)
		unit.Page = i
		units = append(units, unit)
	}
	return units, nil
}
