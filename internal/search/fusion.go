package search

import (
	"cmp"
	"slices"

	"github.com/Aman-CERP/amankb/internal/store"
)

// DefaultRRFConstant is the RRF smoothing constant k.
const DefaultRRFConstant = 60

// DefaultBoostFactor scales the category boost.
const DefaultBoostFactor = 0.5

// FusionInput carries everything Fuse needs besides the candidate lists.
type FusionInput struct {
	Intent     Intent
	Confidence float64
	Weights    Weights
	// Categories maps chunk ID to the category of its document. Missing
	// entries are treated as general and never boosted.
	Categories map[string]store.Category
	// Quality maps chunk ID to its feedback multiplier. Missing means 1.0.
	Quality map[string]float64
}

// RRFFusion merges ranked lists with weighted Reciprocal Rank Fusion:
//
//	rrf(d) = Σ w_list / (k + rank_list(d))
//
// over the lists containing d (rank is 1-based). A document in one list
// scores through that list alone; a nil list contributes nothing.
type RRFFusion struct {
	K           int
	BoostFactor float64
	Threshold   float64
}

// NewRRFFusion returns a fusion with k=60, boost factor 0.5 and the default
// confidence threshold.
func NewRRFFusion() *RRFFusion {
	return &RRFFusion{K: DefaultRRFConstant, BoostFactor: DefaultBoostFactor, Threshold: DefaultPolicyThreshold}
}

// NewRRFFusionWith returns a fusion with the given parameters. A
// non-positive k or threshold falls back to the default; a boost factor of 0
// disables the boost.
func NewRRFFusionWith(k int, boostFactor, threshold float64) *RRFFusion {
	f := NewRRFFusion()
	if k > 0 {
		f.K = k
	}
	if boostFactor >= 0 {
		f.BoostFactor = boostFactor
	}
	if threshold > 0 {
		f.Threshold = threshold
	}
	return f
}

// BoostApplies reports whether the category boost fires for a result in
// category under in. It requires a known intent, confidence at or above the
// threshold, and a matching category.
func (f *RRFFusion) BoostApplies(in FusionInput, category store.Category) bool {
	if in.Intent == IntentUnknown || in.Intent == "" {
		return false
	}
	if in.Confidence < f.Threshold {
		return false
	}
	return string(category) == string(in.Intent)
}

// Fuse ranks the union of lexical and vector candidates.
//
//  1. weighted RRF per chunk
//  2. category boost: fused *= 1 + BoostFactor*confidence when BoostApplies
//  3. quality multiplier
//  4. sort by final score; ties go to the better pre-boost RRF rank, which is
//     itself ordered by chunk ID on equal RRF scores
//  5. normalize final scores by the maximum
//
// The output is deterministic for fixed inputs.
func (f *RRFFusion) Fuse(lexical []*store.LexicalResult, vector []*store.VectorResult, in FusionInput) []*Result {
	if len(lexical) == 0 && len(vector) == 0 {
		return []*Result{}
	}

	byID := make(map[string]*Result, len(lexical)+len(vector))
	order := make([]*Result, 0, len(lexical)+len(vector))
	get := func(id string) *Result {
		if r, ok := byID[id]; ok {
			return r
		}
		r := &Result{ChunkID: id, Boost: 1, Quality: 1}
		byID[id] = r
		order = append(order, r)
		return r
	}

	rrf := make(map[string]float64, len(lexical)+len(vector))
	for i, l := range lexical {
		r := get(l.ChunkID)
		if r.LexicalRank != 0 {
			continue // duplicate hit; the best rank counts
		}
		r.LexicalRank = i + 1
		r.LexicalScore = l.Score
		r.MatchedTerms = l.MatchedTerms
		rrf[l.ChunkID] += in.Weights.Lexical / float64(f.K+i+1)
	}
	for i, v := range vector {
		r := get(v.ID)
		if r.VectorRank != 0 {
			continue
		}
		r.VectorRank = i + 1
		r.VectorScore = float64(v.Score)
		rrf[v.ID] += in.Weights.Vector / float64(f.K+i+1)
	}

	// pre-boost ranking
	slices.SortFunc(order, func(a, b *Result) int {
		if c := cmp.Compare(rrf[b.ChunkID], rrf[a.ChunkID]); c != 0 {
			return c
		}
		return cmp.Compare(a.ChunkID, b.ChunkID)
	})
	maxRRF := rrf[order[0].ChunkID]
	for i, r := range order {
		r.PreBoostRank = i + 1
		raw := rrf[r.ChunkID]
		if maxRRF > 0 {
			r.FusedScore = raw / maxRRF
		}

		category := in.Categories[r.ChunkID]
		if category == "" {
			category = store.CategoryGeneral
		}
		r.Category = category
		if f.BoostApplies(in, category) {
			r.Boost = 1 + f.BoostFactor*in.Confidence
		}
		if q, ok := in.Quality[r.ChunkID]; ok && q > 0 {
			r.Quality = q
		}
		r.FinalScore = raw * r.Boost * r.Quality
	}

	SortByFinal(order)

	if top := order[0].FinalScore; top > 0 {
		for _, r := range order {
			r.FinalScore /= top
		}
	}
	for i, r := range order {
		r.Rank = i + 1
	}
	return order
}

// SortByFinal orders results by FinalScore descending, breaking ties by
// PreBoostRank and then chunk ID.
func SortByFinal(results []*Result) {
	slices.SortStableFunc(results, func(a, b *Result) int {
		if c := cmp.Compare(b.FinalScore, a.FinalScore); c != 0 {
			return c
		}
		if c := cmp.Compare(a.PreBoostRank, b.PreBoostRank); c != 0 {
			return c
		}
		return cmp.Compare(a.ChunkID, b.ChunkID)
	})
}
