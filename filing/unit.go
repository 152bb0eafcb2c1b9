// Package filing turns raw 10-K filing documents into addressable, citation
// bearing Units, either by filing section ("ITEM 7") or by page.
package filing

import (
	"fmt"
	"strings"
)

// Mode selects the tagging scheme used for a segmentation run. A run never
// mixes the two schemes.
type Mode string

const (
	ModeSection Mode = "section"
	ModePage    Mode = "page"
)

// ParseMode maps a configuration value onto a Mode.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeSection:
		return ModeSection, nil
	case ModePage:
		return ModePage, nil
	default:
		return "", fmt.Errorf("unknown segmentation mode: %q", value)
	}
}

// Meta identifies the filing a Unit was cut from.
type Meta struct {
	Source  string
	Company string
	Year    string
}

// Unit is the atomic retrievable piece of a filing. Section-tagged units set
// Section; page-tagged units set Page. Content is never empty.
type Unit struct {
	Content string
	Source  string
	Company string
	Year    string
	Section string
	Page    int
}

// Label renders the unit's citation header.
func (u Unit) Label() string {
	parts := make([]string, 0, 4)
	if u.Page > 0 {
		parts = append(parts, fmt.Sprintf("Page %d", u.Page))
	}
	if u.Section != "" {
		parts = append(parts, "Section "+u.Section)
	}
	parts = append(parts, "Source: "+orNA(u.Source))
	parts = append(parts, "Year: "+orNA(u.Year))
	return strings.Join(parts, " | ")
}

func orNA(value string) string {
	if value == "" {
		return "N/A"
	}
	return value
}

func newUnit(meta Meta, content string) Unit {
	return Unit{
		Content: content,
		Source:  meta.Source,
		Company: meta.Company,
		Year:    meta.Year,
	}
}
