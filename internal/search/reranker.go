package search

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/Aman-CERP/amankb/internal/store"
)

// Rerank defaults.
const (
	DefaultRerankTopN  = 10
	DefaultRerankAlpha = 0.15
)

// RerankResult is one rescored document.
type RerankResult struct {
	// Index is the position in the input documents slice.
	Index int
	// Score is the relevance in [0,1].
	Score float64
	// Document is the original document text.
	Document string
}

// Reranker rescores query-document pairs with a finer relevance model.
type Reranker interface {
	// Rerank returns results sorted by score descending. topK <= 0 returns all.
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error)

	// Available reports whether the reranker can serve requests.
	Available(ctx context.Context) bool

	Close() error
}

// NoOpReranker returns documents in their original order.
type NoOpReranker struct{}

var _ Reranker = (*NoOpReranker)(nil)

// Rerank assigns decreasing scores so the order is preserved.
func (n *NoOpReranker) Rerank(_ context.Context, _ string, documents []string, topK int) ([]RerankResult, error) {
	results := make([]RerankResult, len(documents))
	for i, doc := range documents {
		results[i] = RerankResult{Index: i, Score: 1.0 - float64(i)*0.01, Document: doc}
	}
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

func (n *NoOpReranker) Available(_ context.Context) bool { return true }

func (n *NoOpReranker) Close() error { return nil }

// TermOverlapReranker scores a document by the share of distinct query terms
// it contains, with a bonus for the query appearing as a contiguous phrase.
// It is local and deterministic.
type TermOverlapReranker struct{}

var _ Reranker = (*TermOverlapReranker)(nil)

// Rerank scores every document against query.
func (t *TermOverlapReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	terms := store.QueryTerms(query)
	phrase := strings.Join(store.Tokenize(query), " ")

	results := make([]RerankResult, len(documents))
	for i, doc := range documents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results[i] = RerankResult{Index: i, Document: doc, Score: termOverlap(terms, phrase, doc)}
	}

	slices.SortStableFunc(results, func(a, b RerankResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

func (t *TermOverlapReranker) Available(_ context.Context) bool { return true }

func (t *TermOverlapReranker) Close() error { return nil }

func termOverlap(terms []string, phrase, doc string) float64 {
	if len(terms) == 0 {
		return 0
	}
	tokens := store.Tokenize(doc)
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}

	seen := make(map[string]struct{}, len(terms))
	hits := 0
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		if _, ok := set[term]; ok {
			hits++
		}
	}
	score := float64(hits) / float64(len(seen))

	// phrase bonus, scaled so the score stays within [0,1]
	if phrase != "" && len(seen) > 1 && strings.Contains(" "+strings.Join(tokens, " ")+" ", " "+phrase+" ") {
		score = 0.8*score + 0.2
	} else {
		score *= 0.8
	}
	return score
}

// BlendRerank rescores the first topN results as
// alpha*rerank + (1-alpha)*final and re-sorts only that head. The tail keeps
// its order and is scaled by (1-alpha), as if its rerank score were 0, so
// FinalScore stays non-increasing in rank. On any reranker error the input is returned unchanged along with
// the error, which callers only log.
func BlendRerank(ctx context.Context, r Reranker, query string, results []*Result, topN int, alpha float64) ([]*Result, error) {
	if r == nil || len(results) == 0 {
		return results, nil
	}
	if topN <= 0 {
		topN = DefaultRerankTopN
	}
	if alpha < 0 || alpha > 1 {
		alpha = DefaultRerankAlpha
	}
	n := min(topN, len(results))
	head := results[:n]

	docs := make([]string, n)
	for i, res := range head {
		docs[i] = res.Content
	}
	scored, err := r.Rerank(ctx, query, docs, 0)
	if err != nil {
		return results, err
	}

	rerank := make([]float64, n)
	seen := make([]bool, n)
	for _, s := range scored {
		if s.Index < 0 || s.Index >= n || seen[s.Index] {
			continue
		}
		seen[s.Index] = true
		rerank[s.Index] = min(max(s.Score, 0), 1)
	}

	out := make([]*Result, len(results))
	copy(out, results)
	for i, res := range out[:n] {
		res.RerankScore = rerank[i]
		res.FinalScore = alpha*rerank[i] + (1-alpha)*res.FinalScore
	}
	SortByFinal(out[:n])
	for _, res := range out[n:] {
		res.RerankScore = 0
		res.FinalScore *= 1 - alpha
	}
	for i, res := range out {
		res.Rank = i + 1
	}
	return out, nil
}
