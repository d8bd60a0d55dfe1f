package search

import (
	"strings"

	"github.com/Aman-CERP/amankb/internal/store"
)

// DefaultDedupThreshold is the Jaccard similarity above which a lower-ranked
// result is dropped.
const DefaultDedupThreshold = 0.85

// Deduplicator drops near-duplicate results. Each candidate is compared with
// every result already kept, so no two survivors exceed the threshold.
type Deduplicator struct {
	Threshold float64
}

// NewDeduplicator returns a deduplicator; a threshold outside (0,1] falls back
// to DefaultDedupThreshold.
func NewDeduplicator(threshold float64) *Deduplicator {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultDedupThreshold
	}
	return &Deduplicator{Threshold: threshold}
}

// Dedupe keeps results in order, dropping any whose similarity to a kept
// result is strictly greater than the threshold. Chunks without any word
// tokens are duplicates only when their text is identical. Survivors are
// re-ranked from 1.
func (d *Deduplicator) Dedupe(results []*Result) []*Result {
	kept := make([]*Result, 0, len(results))
	sets := make([]map[string]struct{}, 0, len(results))

	for _, r := range results {
		set := store.TokenSet(r.Content)
		duplicate := false
		for i, other := range sets {
			if len(set) == 0 && len(other) == 0 {
				duplicate = strings.TrimSpace(r.Content) == strings.TrimSpace(kept[i].Content)
			} else {
				duplicate = Jaccard(set, other) > d.Threshold
			}
			if duplicate {
				break
			}
		}
		if duplicate {
			continue
		}
		kept = append(kept, r)
		sets = append(sets, set)
	}

	for i, r := range kept {
		r.Rank = i + 1
	}
	return kept
}

// Jaccard is |a ∩ b| / |a ∪ b|. Two empty sets share nothing (0).
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
