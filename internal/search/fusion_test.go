package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amankb/internal/store"
)

func lexResults(ids ...string) []*store.LexicalResult {
	out := make([]*store.LexicalResult, len(ids))
	for i, id := range ids {
		out[i] = &store.LexicalResult{ChunkID: id, Score: float64(len(ids) - i), MatchedTerms: []string{"term"}}
	}
	return out
}

func vecResults(ids ...string) []*store.VectorResult {
	out := make([]*store.VectorResult, len(ids))
	for i, id := range ids {
		out[i] = &store.VectorResult{ID: id, Score: 0.9 - float32(i)*0.1}
	}
	return out
}

func ids(results []*Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ChunkID
	}
	return out
}

func byChunk(results []*Result) map[string]*Result {
	m := make(map[string]*Result, len(results))
	for _, r := range results {
		m[r.ChunkID] = r
	}
	return m
}

var evenWeights = Weights{Lexical: 0.5, Vector: 0.5}

func TestRRFFusion_WeightedScores(t *testing.T) {
	// Given: lexical [A, B, C] and vector [C, A, D]
	f := NewRRFFusion()

	// When: fusing with even weights
	results := f.Fuse(lexResults("A", "B", "C"), vecResults("C", "A", "D"), FusionInput{Weights: evenWeights})

	// Then: A (ranks 1,2) beats C (ranks 3,1), and single-list docs trail
	require.Len(t, results, 4)
	assert.Equal(t, []string{"A", "C", "B", "D"}, ids(results))

	m := byChunk(results)
	assert.Equal(t, 1, m["A"].LexicalRank)
	assert.Equal(t, 2, m["A"].VectorRank)
	assert.Equal(t, 0, m["B"].VectorRank)
	assert.Equal(t, 1.0, results[0].FinalScore)

	wantC := (0.5/63 + 0.5/61) / (0.5/61 + 0.5/62)
	assert.InDelta(t, wantC, m["C"].FusedScore, 1e-12)
}

func TestRRFFusion_SingleListScoresThroughThatList(t *testing.T) {
	f := NewRRFFusion()

	// When: the vector list is missing entirely
	results := f.Fuse(lexResults("A", "B"), nil, FusionInput{Weights: evenWeights})

	// Then: the lexical ranking is preserved
	assert.Equal(t, []string{"A", "B"}, ids(results))
	assert.InDelta(t, 61.0/62.0, results[1].FinalScore, 1e-12)
}

func TestRRFFusion_EmptyInputs(t *testing.T) {
	results := NewRRFFusion().Fuse(nil, nil, FusionInput{Weights: evenWeights})

	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRRFFusion_WeightsShiftRanking(t *testing.T) {
	f := NewRRFFusion()
	lex := lexResults("L", "X")
	vec := vecResults("V", "X")

	lexHeavy := f.Fuse(lex, vec, FusionInput{Weights: Weights{Lexical: 0.9, Vector: 0.1}})
	vecHeavy := f.Fuse(lex, vec, FusionInput{Weights: Weights{Lexical: 0.1, Vector: 0.9}})

	assert.Less(t, byChunk(lexHeavy)["L"].Rank, byChunk(lexHeavy)["V"].Rank)
	assert.Less(t, byChunk(vecHeavy)["V"].Rank, byChunk(vecHeavy)["L"].Rank)
}

func TestRRFFusion_BoostConditionality(t *testing.T) {
	// Given: a procedure chunk ranked first lexically and a policy chunk second
	lex := lexResults("proc", "pol")
	categories := map[string]store.Category{
		"proc": store.CategoryProcedure,
		"pol":  store.CategoryPolicy,
	}
	f := NewRRFFusion()

	tests := []struct {
		name       string
		intent     Intent
		confidence float64
		wantFirst  string
		wantBoost  map[string]float64
	}{
		{
			name: "confident policy query boosts only policy chunk", intent: IntentPolicy, confidence: 0.7,
			wantFirst: "pol", wantBoost: map[string]float64{"pol": 1.35, "proc": 1},
		},
		{
			name: "below threshold never boosts", intent: IntentPolicy, confidence: 0.39,
			wantFirst: "proc", wantBoost: map[string]float64{"pol": 1, "proc": 1},
		},
		{
			name: "exactly at threshold boosts", intent: IntentPolicy, confidence: 0.4,
			wantFirst: "pol", wantBoost: map[string]float64{"pol": 1.2, "proc": 1},
		},
		{
			name: "unknown intent never boosts", intent: IntentUnknown, confidence: 1,
			wantFirst: "proc", wantBoost: map[string]float64{"pol": 1, "proc": 1},
		},
		{
			name: "reference intent matches neither", intent: IntentReference, confidence: 1,
			wantFirst: "proc", wantBoost: map[string]float64{"pol": 1, "proc": 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := f.Fuse(lex, nil, FusionInput{
				Intent: tt.intent, Confidence: tt.confidence,
				Weights: evenWeights, Categories: categories,
			})

			assert.Equal(t, tt.wantFirst, results[0].ChunkID)
			m := byChunk(results)
			for id, boost := range tt.wantBoost {
				assert.InDelta(t, boost, m[id].Boost, 1e-12, id)
			}
		})
	}
}

func TestRRFFusion_HighLexicalScoreAloneIsNotBoosted(t *testing.T) {
	// Given: a general chunk with by far the best lexical score
	lex := []*store.LexicalResult{
		{ChunkID: "general", Score: 99},
		{ChunkID: "policy", Score: 1},
	}
	categories := map[string]store.Category{"policy": store.CategoryPolicy}

	// When: fusing for a confident policy query
	results := NewRRFFusion().Fuse(lex, nil, FusionInput{
		Intent: IntentPolicy, Confidence: 1, Weights: evenWeights, Categories: categories,
	})

	// Then: the general chunk gets no boost
	m := byChunk(results)
	assert.Equal(t, 1.0, m["general"].Boost)
	assert.Equal(t, store.CategoryGeneral, m["general"].Category)
	assert.Equal(t, 1.5, m["policy"].Boost)
}

func TestRRFFusion_BoostAppliedBeforeNormalization(t *testing.T) {
	// Given: a single boosted result
	results := NewRRFFusion().Fuse(lexResults("pol", "gen"), nil, FusionInput{
		Intent: IntentPolicy, Confidence: 1, Weights: evenWeights,
		Categories: map[string]store.Category{"pol": store.CategoryPolicy},
	})

	// Then: the boost widens the gap in the normalized scores
	m := byChunk(results)
	assert.Equal(t, 1.0, m["pol"].FinalScore)
	assert.InDelta(t, (0.5/62)/(1.5*0.5/61), m["gen"].FinalScore, 1e-12)
}

func TestRRFFusion_QualityMultiplier(t *testing.T) {
	// Given: B would trail A, but A has poor feedback
	results := NewRRFFusion().Fuse(lexResults("A", "B"), nil, FusionInput{
		Weights: evenWeights,
		Quality: map[string]float64{"A": 0.5, "B": 1.2},
	})

	assert.Equal(t, []string{"B", "A"}, ids(results))
	assert.Equal(t, 0.5, byChunk(results)["A"].Quality)
}

func TestRRFFusion_TiesBreakByPreBoostRankThenID(t *testing.T) {
	// Given: X and Y in mirrored positions, so their RRF scores tie
	f := NewRRFFusion()
	lex := lexResults("Y", "X")
	vec := vecResults("X", "Y")

	results := f.Fuse(lex, vec, FusionInput{Weights: evenWeights})

	// Then: the lower chunk ID wins the pre-boost tie and keeps it
	assert.Equal(t, []string{"X", "Y"}, ids(results))
	assert.Equal(t, 1, byChunk(results)["X"].PreBoostRank)
}

func TestRRFFusion_Deterministic(t *testing.T) {
	f := NewRRFFusion()
	lex := lexResults("a", "b", "c", "d", "e", "f")
	vec := vecResults("f", "e", "d", "c", "b", "a")
	in := FusionInput{
		Intent: IntentPolicy, Confidence: 0.5, Weights: evenWeights,
		Categories: map[string]store.Category{"c": store.CategoryPolicy, "d": store.CategoryPolicy},
		Quality:    map[string]float64{"a": 0.9},
	}

	want := ids(f.Fuse(lex, vec, in))
	for range 50 {
		assert.Equal(t, want, ids(f.Fuse(lex, vec, in)))
	}
}

func TestRRFFusion_DuplicateHitKeepsBestRank(t *testing.T) {
	results := NewRRFFusion().Fuse(lexResults("A", "A", "B"), nil, FusionInput{Weights: evenWeights})

	require.Len(t, results, 2)
	assert.Equal(t, 1, byChunk(results)["A"].LexicalRank)
}
