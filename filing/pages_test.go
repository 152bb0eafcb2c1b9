package filing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDropsScriptsAndCollapsesWhitespace(t *testing.T) {
	markup := `<html><head><style>p { color: red; }</style><script>var x = 1;</script></head>
<body><p>Revenue   was</p>
<p>$10B&nbsp;&nbsp;in fiscal 2023</p></body></html>`

	text, err := Normalize(strings.NewReader(markup))
	require.NoError(t, err)
	assert.Equal(t, "Revenue was $10B in fiscal 2023", text)
}

func TestNormalizeToleratesMalformedMarkup(t *testing.T) {
	text, err := Normalize(strings.NewReader(`<div><p>Unclosed <b>bold<table><tr><td>cell</div>`))
	require.NoError(t, err)
	assert.Equal(t, "Unclosed bold cell", text)
}

func TestStripMarkupKeepsPageBreaks(t *testing.T) {
	markup, err := StripMarkup(strings.NewReader(`<body><script>evil()</script><p>one</p><hr><p>two</p></body>`))
	require.NoError(t, err)
	assert.NotContains(t, markup, "evil")
	assert.Contains(t, strings.ToLower(markup), "<hr")
}

func TestSplitPagesSkipsEmptyFragments(t *testing.T) {
	// five fragments, two of them empty
	markup := `<p>Revenue was $10B</p><hr/>   <hr style="page-break-after:always"><p>Operating income was $2B</p><HR><p> </p><hr><p>Notes</p>`
	meta := Meta{Source: "ABC-20230101.htm", Company: "ABC", Year: "2023"}

	units := SplitPages(markup, meta)
	require.Len(t, units, 3)

	assert.Equal(t, []int{1, 3, 5}, pageNumbers(units))
	assert.Equal(t, "Revenue was $10B", units[0].Content)
	assert.Equal(t, "Operating income was $2B", units[1].Content)
	assert.Equal(t, "Notes", units[2].Content)
	for _, u := range units {
		assert.Equal(t, "2023", u.Year)
		assert.Empty(t, u.Section)
	}
}

func TestSplitPagesStrictlyIncreasing(t *testing.T) {
	fragments := []string{"a", "", "b", " ", "c", "d", ""}
	markup := strings.Join(fragments, "<hr>")

	units := SplitPages(markup, Meta{Source: "x"})
	require.Len(t, units, 4)
	pages := pageNumbers(units)
	for i := 1; i < len(pages); i++ {
		assert.Greater(t, pages[i], pages[i-1])
	}
}

func TestSplitPagesWithoutBreaks(t *testing.T) {
	units := SplitPages("<p>single page</p>", Meta{Source: "x"})
	require.Len(t, units, 1)
	assert.Equal(t, 1, units[0].Page)
}

func TestSplitPDFPagesRejectsGarbage(t *testing.T) {
	_, err := SplitPDFPages([]byte("not a pdf"), Meta{Source: "x.pdf"})
	assert.Error(t, err)
}

func TestParseFilename(t *testing.T) {
	meta, err := ParseFilename("/data/filings/nvda-20240128.htm")
	require.NoError(t, err)
	assert.Equal(t, Meta{Source: "nvda-20240128.htm", Company: "NVDA", Year: "2024"}, meta)

	meta, err = ParseFilename("ABC-20230101.htm")
	require.NoError(t, err)
	assert.Equal(t, "2023", meta.Year)
	assert.Equal(t, "ABC", meta.Company)
}

func TestParseFilenameConventionViolations(t *testing.T) {
	for _, name := range []string{"annual_report.htm", "abc-fy23.htm", "abc-20.htm", "-20230101.htm"} {
		meta, err := ParseFilename(name)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrFilenameConvention), name)
		assert.Equal(t, name, meta.Source)
		assert.Empty(t, meta.Year)
	}
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode(" Page ")
	require.NoError(t, err)
	assert.Equal(t, ModePage, mode)

	_, err = ParseMode("paragraph")
	assert.Error(t, err)
}

func TestUnitLabel(t *testing.T) {
	u := Unit{Source: "ABC-20230101.htm", Year: "2023", Page: 2}
	assert.Equal(t, "Page 2 | Source: ABC-20230101.htm | Year: 2023", u.Label())

	s := Unit{Source: "x", Section: "ITEM 7"}
	assert.Equal(t, "Section ITEM 7 | Source: x | Year: N/A", s.Label())
}

func pageNumbers(units []Unit) []int {
	pages := make([]int, len(units))
	for i, u := range units {
		pages[i] = u.Page
	}
	return pages
}
