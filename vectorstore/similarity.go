package vectorstore

import (
	"math"
	"sort"
)

const defaultLimit = 5

// cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector has zero norm.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// topK sorts candidates by descending score, keeping insertion order among
// equal scores, and truncates to k.
func topK(candidates []Passage, k int) []Passage {
	if k <= 0 {
		k = defaultLimit
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}
