package ingestion

import (
	"strings"
	"unicode"

	"github.com/fabfab/filing-agent/filing"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

// ChunkText cuts text into windows of at most size runes. Consecutive
// windows share up to overlap runes. A window ends on whitespace when one
// exists in its second half, so words are rarely split.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= size {
		return []string{string(runes)}
	}

	chunks := make([]string, 0, len(runes)/(size-overlap)+1)
	start := 0
	for start < len(runes) {
		end := min(start+size, len(runes))
		if end < len(runes) {
			for cut := end; cut > start+size/2; cut-- {
				if unicode.IsSpace(runes[cut]) {
					end = cut
					break
				}
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(runes) {
			break
		}

		next := end - overlap
		// start the overlap on a word boundary
		for next < end && next > start && !unicode.IsSpace(runes[next-1]) {
			next++
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// ChunkUnits splits every unit into chunk-sized units carrying the same
// source, company, year, section and page.
func ChunkUnits(units []filing.Unit, size, overlap int) []filing.Unit {
	out := make([]filing.Unit, 0, len(units))
	for _, unit := range units {
		for _, text := range ChunkText(unit.Content, size, overlap) {
			chunk := unit
			chunk.Content = text
			out = append(out, chunk)
		}
	}
	return out
}
