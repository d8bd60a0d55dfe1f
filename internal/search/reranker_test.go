package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

func TestNoOpReranker_PreservesOrder(t *testing.T) {
	reranker := &NoOpReranker{}

	results, err := reranker.Rerank(context.Background(), "query", []string{"doc1", "doc2", "doc3"}, 2)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Index)
	assert.InDelta(t, 0.99, results[1].Score, 0.001)
}

func TestTermOverlapReranker_PrefersFullCoverageAndPhrase(t *testing.T) {
	// Given: documents with no, partial and full phrase coverage
	r := &TermOverlapReranker{}
	docs := []string{
		"Printers are configured by the service desk.",
		"A drive is required for the flash firmware update.",
		"Using a flash drive on company laptops is prohibited.",
	}

	// When: reranking for "flash drive"
	results, err := r.Rerank(context.Background(), "flash drive", docs, 0)

	// Then: the phrase match ranks first with a perfect score
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 2, results[0].Index)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, 1, results[1].Index)
	assert.InDelta(t, 0.8, results[1].Score, 1e-9)
	assert.Equal(t, 0.0, results[2].Score)
}

func TestTermOverlapReranker_StopWordQuery(t *testing.T) {
	results, err := (&TermOverlapReranker{}).Rerank(context.Background(), "the and", []string{"the cat"}, 0)

	require.NoError(t, err)
	assert.Equal(t, 0.0, results[0].Score)
}

// scriptedReranker returns fixed scores per document index.
type scriptedReranker struct {
	scores []float64
	err    error
	calls  int
}

func (s *scriptedReranker) Rerank(_ context.Context, _ string, docs []string, _ int) ([]RerankResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]RerankResult, len(docs))
	for i := range docs {
		out[i] = RerankResult{Index: i, Score: s.scores[i], Document: docs[i]}
	}
	return out, nil
}

func (s *scriptedReranker) Available(context.Context) bool { return s.err == nil }
func (s *scriptedReranker) Close() error                   { return nil }

func rankedResults(finals ...float64) []*Result {
	out := make([]*Result, len(finals))
	for i, f := range finals {
		out[i] = &Result{ChunkID: string(rune('a' + i)), FinalScore: f, PreBoostRank: i + 1, Rank: i + 1, Content: "c"}
	}
	return out
}

func TestBlendRerank_BlendsOnlyTheHead(t *testing.T) {
	// Given: four results, topN 2, and a reranker that prefers the second
	r := &scriptedReranker{scores: []float64{0, 1}}
	results := rankedResults(1.0, 0.95, 0.5, 0.4)

	// When: blending with alpha 0.15
	out, err := BlendRerank(context.Background(), r, "q", results, 2, 0.15)

	// Then: the head is re-sorted by the blend and the tail keeps its order
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c", "d"}, ids(out))
	assert.InDelta(t, 0.15+0.85*0.95, out[0].FinalScore, 1e-12)
	assert.InDelta(t, 0.85, out[1].FinalScore, 1e-12)
	assert.InDelta(t, 0.85*0.5, out[2].FinalScore, 1e-12)
	assert.Equal(t, 1.0, out[0].RerankScore)
	assert.Equal(t, []int{1, 2, 3, 4}, []int{out[0].Rank, out[1].Rank, out[2].Rank, out[3].Rank})
}

func TestBlendRerank_FinalScoreFollowsRank(t *testing.T) {
	// Given: a head the reranker scores at zero and a close tail
	r := &scriptedReranker{scores: []float64{0, 0}}
	results := rankedResults(0.6, 0.58, 0.57, 0.2)

	out, err := BlendRerank(context.Background(), r, "q", results, 2, 0.5)

	// Then: scores never rise as rank falls
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(out))
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].FinalScore, out[i].FinalScore, "rank %d", out[i].Rank)
	}
}

func TestBlendRerank_SmallAlphaSharpensButDoesNotOverride(t *testing.T) {
	// Given: a strong fused lead and a reranker that disagrees
	r := &scriptedReranker{scores: []float64{0, 1}}

	out, err := BlendRerank(context.Background(), r, "q", rankedResults(1.0, 0.5), 10, 0.15)

	// Then: the fused leader stays first
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(out))
}

func TestBlendRerank_FailurePassesThrough(t *testing.T) {
	r := &scriptedReranker{err: errors.New("model crashed")}
	results := rankedResults(1.0, 0.9)

	out, err := BlendRerank(context.Background(), r, "q", results, 10, 0.15)

	assert.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(out))
	assert.Equal(t, 1.0, out[0].FinalScore)
}

func TestBlendRerank_ClampsScores(t *testing.T) {
	r := &scriptedReranker{scores: []float64{7, -3}}

	out, err := BlendRerank(context.Background(), r, "q", rankedResults(0.5, 0.4), 10, 0.5)

	require.NoError(t, err)
	assert.InDelta(t, 0.75, out[0].FinalScore, 1e-12)
	assert.InDelta(t, 0.2, out[1].FinalScore, 1e-12)
}

func rerankServer(t *testing.T, status *atomic.Int32, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/rerank", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if code := status.Load(); code != http.StatusOK {
			w.WriteHeader(int(code))
			return
		}
		var req rerankRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		var resp rerankResponse
		for i := range req.Documents {
			resp.Results = append(resp.Results, struct {
				Index int     `json:"index"`
				Score float64 `json:"score"`
			}{Index: i, Score: float64(i) / 10})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPReranker_SortsByScore(t *testing.T) {
	var status, calls atomic.Int32
	status.Store(http.StatusOK)
	srv := rerankServer(t, &status, &calls)

	r, err := NewHTTPReranker(context.Background(), HTTPRerankerConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	results, err := r.Rerank(context.Background(), "q", []string{"x", "y", "z"}, 2)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].Index)
	assert.Equal(t, "z", results[0].Document)
	assert.True(t, r.Available(context.Background()))
}

func TestHTTPReranker_BreakerOpensAfterFailures(t *testing.T) {
	// Given: an endpoint that always fails
	var status, calls atomic.Int32
	status.Store(http.StatusInternalServerError)
	srv := rerankServer(t, &status, &calls)

	r, err := NewHTTPReranker(context.Background(), HTTPRerankerConfig{
		Endpoint: srv.URL, MaxFailures: 2, ResetTimeout: time.Hour, SkipHealthCheck: true,
	})
	require.NoError(t, err)

	// When: calling more times than the failure budget
	for range 4 {
		_, err = r.Rerank(context.Background(), "q", []string{"x"}, 0)
		assert.Equal(t, kberrors.ErrCodeRerankUnavailable, kberrors.GetCode(err))
	}

	// Then: only the first two reached the server
	assert.Equal(t, int32(2), calls.Load())
	assert.False(t, r.Available(context.Background()))
}

func TestNewReranker_Providers(t *testing.T) {
	none, err := NewReranker(context.Background(), "none", "", "", 0)
	require.NoError(t, err)
	assert.Nil(t, none)

	term, err := NewReranker(context.Background(), "term", "", "", 0)
	require.NoError(t, err)
	assert.IsType(t, &TermOverlapReranker{}, term)

	_, err = NewReranker(context.Background(), "gpt", "", "", 0)
	assert.Error(t, err)

	_, err = NewReranker(context.Background(), "http", "", "", 0)
	assert.Error(t, err)
}
