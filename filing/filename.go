package filing

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrFilenameConvention reports a filing name that does not follow the
// <ticker>-<yyyymmdd>... convention.
var ErrFilenameConvention = errors.New("filename does not match <ticker>-<date> convention")

// ParseFilename reads the ticker and filing year out of a filing name such as
// "nvda-20240128.htm". The year is the first four characters of the second
// dash-delimited component; this is positional, not a date parser.
//
// The returned Meta always carries Source. On error Company and Year are left
// empty so callers can still ingest the file.
func ParseFilename(name string) (Meta, error) {
	base := filepath.Base(name)
	meta := Meta{Source: base}

	stem := strings.TrimSuffix(base, filepath.Ext(base))
	parts := strings.Split(stem, "-")
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" {
		return meta, fmt.Errorf("parse %q: %w", base, ErrFilenameConvention)
	}

	token := parts[1]
	if len(token) < 4 || !allDigits(token[:4]) {
		return meta, fmt.Errorf("parse %q: year token %q: %w", base, token, ErrFilenameConvention)
	}

	meta.Company = strings.ToUpper(strings.TrimSpace(parts[0]))
	meta.Year = token[:4]
	return meta, nil
}

func allDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return value != ""
}
