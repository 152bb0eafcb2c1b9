package filing

import (
	"regexp"
	"strings"
)

// markerPattern matches "ITEM" followed by digits and an optional letter or
// period, e.g. "Item 7", "ITEM 1A", "item 8.".
var markerPattern = regexp.MustCompile(`(?i)\bITEM[\s\x{00A0}]+\d+(?:[A-Z]|\.)?\b`)

// allowedSections are the 10-K items relevant to financial questions, in
// filing order.
var allowedSections = []string{"ITEM 1A", "ITEM 7", "ITEM 7A", "ITEM 8", "ITEM 15"}

var sectionTitles = map[string]string{
	"ITEM 1A": "Risk Factors",
	"ITEM 7":  "Management's Discussion and Analysis",
	"ITEM 7A": "Quantitative and Qualitative Disclosures About Market Risk",
	"ITEM 8":  "Financial Statements and Supplementary Data",
	"ITEM 15": "Exhibits and Financial Statement Schedules",
}

// AllowedSections returns the retained section names.
func AllowedSections() []string {
	return append([]string(nil), allowedSections...)
}

// IsAllowedSection reports whether a normalized section name is retained.
func IsAllowedSection(name string) bool {
	_, ok := sectionTitles[name]
	return ok
}

// SectionTitle returns the descriptive title of an allow-listed section, or
// the empty string.
func SectionTitle(name string) string {
	return sectionTitles[name]
}

// NormalizeSectionName canonicalizes a marker: whitespace (including
// non-breaking spaces) collapses to single spaces, the result is upper-cased
// and trailing periods are stripped. NormalizeSectionName("Item   7.") is
// "ITEM 7"; applying it twice gives the same result as applying it once.
func NormalizeSectionName(name string) string {
	name = strings.ReplaceAll(name, "\u00a0", " ")
	name = strings.ToUpper(collapseSpaces(name))
	return strings.TrimRight(name, ". ")
}

// accumulator merges repeated occurrences of a section, remembering the order
// in which sections were first seen.
type accumulator struct {
	order []string
	text  map[string]*strings.Builder
}

func newAccumulator() *accumulator {
	return &accumulator{text: make(map[string]*strings.Builder)}
}

// add appends content to the section directly, without a separator.
func (a *accumulator) add(name, content string) {
	b, ok := a.text[name]
	if !ok {
		b = &strings.Builder{}
		a.text[name] = b
		a.order = append(a.order, name)
	}
	b.WriteString(content)
}

// SplitSections cuts normalized filing text at "ITEM n" markers and returns
// one Unit per allow-listed section. Text before the first marker is dropped;
// repeated occurrences of a section (table of contents, then the section
// itself) are concatenated in encounter order with no delimiter. Text with no
// allow-listed markers yields no units.
func SplitSections(text string, meta Meta) []Unit {
	locs := markerPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	acc := newAccumulator()
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}

		name := NormalizeSectionName(text[loc[0]:loc[1]])
		if !IsAllowedSection(name) {
			continue
		}
		content := strings.TrimSpace(text[loc[1]:end])
		if content == "" {
			continue
		}
		acc.add(name, content)
	}

	units := make([]Unit, 0, len(acc.order))
	for _, name := range acc.order {
		unit := newUnit(meta, acc.text[name].String())
		unit.Section = name
		units = append(units, unit)
	}
	return units
}
