package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amankb/internal/config"
	"github.com/Aman-CERP/amankb/internal/embed"
	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/store"
	"github.com/Aman-CERP/amankb/internal/telemetry"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Engine answers search queries. The strategy is fixed at construction from
// the collaborators supplied: lexical only, hybrid (vector store and
// embedder present), or hybrid+rerank.
type Engine struct {
	lexical  store.LexicalIndex
	chunks   ChunkSource
	vector   store.VectorStore
	embedder embed.Embedder

	classifier Classifier
	reranker   Reranker
	quality    QualitySource
	metrics    *telemetry.Metrics

	fusion *RRFFusion
	dedup  *Deduplicator
	config Config
}

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithVectorSearch enables the vector branch. Both arguments must be non-nil;
// otherwise the option is ignored and the engine stays lexical-only.
func WithVectorSearch(vs store.VectorStore, e embed.Embedder) EngineOption {
	return func(eng *Engine) {
		if vs == nil || e == nil {
			return
		}
		eng.vector = vs
		eng.embedder = e
	}
}

// WithClassifier replaces the default rule classifier.
func WithClassifier(c Classifier) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.classifier = c
		}
	}
}

// WithReranker enables the rerank stage.
func WithReranker(r Reranker) EngineOption {
	return func(e *Engine) {
		e.reranker = r
	}
}

// WithQuality applies feedback multipliers during fusion.
func WithQuality(q QualitySource) EngineOption {
	return func(e *Engine) {
		e.quality = q
	}
}

// WithMetrics records search telemetry.
func WithMetrics(m *telemetry.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an engine over a lexical index and the chunk store.
func NewEngine(lexical store.LexicalIndex, chunks ChunkSource, cfg Config, opts ...EngineOption) (*Engine, error) {
	if lexical == nil {
		return nil, fmt.Errorf("%w: lexical index is required", ErrNilDependency)
	}
	if chunks == nil {
		return nil, fmt.Errorf("%w: chunk source is required", ErrNilDependency)
	}

	cfg = withDefaults(cfg)
	e := &Engine{
		lexical: lexical,
		chunks:  chunks,
		config:  cfg,
		fusion:  NewRRFFusionWith(cfg.RRFConstant, cfg.BoostFactor, cfg.PolicyThreshold),
		dedup:   NewDeduplicator(cfg.DedupThreshold),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.classifier == nil {
		rc, err := NewRuleClassifier(config.NewConfig().Classifier)
		if err != nil {
			return nil, err
		}
		e.classifier = rc
	}
	return e, nil
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = def.MaxLimit
	}
	if cfg.Overfetch <= 0 {
		cfg.Overfetch = def.Overfetch
	}
	if cfg.RRFConstant <= 0 {
		cfg.RRFConstant = def.RRFConstant
	}
	if len(cfg.IntentWeights) == 0 {
		cfg.IntentWeights = def.IntentWeights
	}
	if cfg.PolicyThreshold <= 0 {
		cfg.PolicyThreshold = def.PolicyThreshold
	}
	if cfg.DedupThreshold <= 0 {
		cfg.DedupThreshold = def.DedupThreshold
	}
	if cfg.RerankTopN <= 0 {
		cfg.RerankTopN = def.RerankTopN
	}
	if cfg.RerankAlpha <= 0 {
		cfg.RerankAlpha = def.RerankAlpha
	}
	if cfg.RerankTimeout <= 0 {
		cfg.RerankTimeout = def.RerankTimeout
	}
	if cfg.QualityMin <= 0 {
		cfg.QualityMin = def.QualityMin
	}
	if cfg.QualityMax <= 0 {
		cfg.QualityMax = def.QualityMax
	}
	if cfg.VectorTimeout <= 0 {
		cfg.VectorTimeout = def.VectorTimeout
	}
	if cfg.LexicalTimeout <= 0 {
		cfg.LexicalTimeout = def.LexicalTimeout
	}
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = def.SnippetLength
	}
	return cfg
}

// Strategy reports the pipeline selected by the available collaborators.
func (e *Engine) Strategy() Strategy {
	switch {
	case e.vector == nil:
		return StrategyLexical
	case e.reranker != nil:
		return StrategyHybridRerank
	default:
		return StrategyHybrid
	}
}

// Config returns the effective ranking parameters.
func (e *Engine) Config() Config { return e.config }

// Search runs the full pipeline for q.
//
// A blank query is rejected with ERR_403. An unknown namespace or an
// unindexed corpus yields an empty response with a Reason. A failing vector
// branch degrades to lexical-only (Degraded=true); only when every available
// index fails is ERR_301 returned.
func (e *Engine) Search(ctx context.Context, q Query) (*Response, error) {
	start := time.Now()

	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, kberrors.New(kberrors.ErrCodeMalformedQuery, "query is empty", nil).
			WithSuggestion("Provide search text")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = e.config.DefaultLimit
	}
	limit = min(limit, e.config.MaxLimit)

	resp := &Response{
		Query:     text,
		Namespace: q.Namespace,
		Results:   []*Result{},
		Intent:    IntentUnknown,
		Strategy:  e.Strategy(),
	}
	defer func() {
		resp.Took = time.Since(start)
		e.metrics.ObserveSearch(telemetry.QueryEvent{
			Query:       text,
			Namespace:   q.Namespace,
			Intent:      string(resp.Intent),
			Strategy:    string(resp.Strategy),
			Degraded:    resp.Degraded,
			ResultCount: len(resp.Results),
			Latency:     resp.Took,
		})
	}()

	if q.Namespace != "" {
		if _, err := e.chunks.GetNamespace(ctx, q.Namespace); err != nil {
			if errors.Is(err, kberrors.ErrNamespaceNotFound) {
				resp.Reason = ReasonNamespaceNotFound
				return resp, nil
			}
			return nil, err
		}
	}
	if store.ParseQuery(store.SanitizeQuery(text)).Empty() {
		resp.Reason = ReasonEmptyQuery
		return resp, nil
	}

	var (
		cand    *candidates
		weights Weights
		results []*Result
	)
	fetch := limit * e.config.Overfetch
	for round := 0; ; round++ {
		var err error
		cand, err = e.retrieve(ctx, text, q.Namespace, fetch)
		if err != nil {
			return nil, err
		}
		weights = e.config.WeightsFor(cand.intent)
		if q.Weights != nil {
			weights = *q.Weights
		}
		results, err = e.rank(ctx, text, q.Namespace, cand, weights)
		if err != nil {
			return nil, err
		}
		// Dedup can leave fewer than limit results while an index still had
		// more to give; ask again with a wider window.
		if len(results) >= limit || round == maxWidenings || !cand.full(fetch) {
			break
		}
		slog.Debug("search_widened",
			slog.String("query", truncate(text, 80)),
			slog.Int("fetch", fetch*2),
			slog.Int("results", len(results)))
		fetch *= 2
	}
	resp.Intent, resp.Confidence = cand.intent, cand.confidence
	resp.Candidates.Lexical = len(cand.lexical)
	resp.Candidates.Vector = len(cand.vector)
	resp.Weights = weights

	switch {
	case cand.vecErr != nil:
		resp.Degraded = true
		resp.Reason = ReasonVectorUnavailable
		slog.Warn("vector_search_degraded",
			slog.String("query", truncate(text, 80)),
			slog.String("error", cand.vecErr.Error()))
	case cand.lexErr != nil:
		resp.Degraded = true
		resp.Reason = ReasonLexicalFailed
		slog.Warn("lexical_search_degraded",
			slog.String("query", truncate(text, 80)),
			slog.String("error", cand.lexErr.Error()))
	}

	resp.Candidates.Fused = cand.fused
	resp.Candidates.Deduped = len(results)

	if len(results) > limit {
		results = results[:limit]
	}
	for i, r := range results {
		r.Rank = i + 1
		r.Snippet = makeSnippet(r.Content, r.MatchedTerms, e.config.SnippetLength)
		r.Scores = Scores{Lexical: r.LexicalScore, Vector: r.VectorScore, Fused: r.FusedScore, Final: r.FinalScore}
	}
	resp.Results = results

	if len(results) == 0 && resp.Reason == "" {
		resp.Reason = e.emptyReason(ctx, q.Namespace)
	}
	return resp, nil
}

// maxWidenings bounds the re-queries made when dedup leaves fewer results
// than requested.
const maxWidenings = 2

type candidates struct {
	lexical    []*store.LexicalResult
	vector     []*store.VectorResult
	lexErr     error
	vecErr     error
	intent     Intent
	confidence float64
	fused      int
}

// full reports whether either index returned all n candidates asked for, so
// a wider request could find more.
func (c *candidates) full(n int) bool {
	return len(c.lexical) >= n || len(c.vector) >= n
}

// retrieve runs classification, the lexical query and the vector query
// concurrently, each side under its own timeout.
func (e *Engine) retrieve(ctx context.Context, text, namespace string, n int) (*candidates, error) {
	c := &candidates{intent: IntentUnknown}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c.intent, c.confidence = e.classifier.Classify(gctx, text)
		return nil
	})

	g.Go(func() error {
		lctx, cancel := context.WithTimeout(gctx, e.config.LexicalTimeout)
		defer cancel()
		c.lexical, c.lexErr = e.lexical.Search(lctx, text, namespace, n)
		return nil
	})

	if e.vector != nil {
		g.Go(func() error {
			vctx, cancel := context.WithTimeout(gctx, e.config.VectorTimeout)
			defer cancel()
			c.vector, c.vecErr = e.vectorSearch(vctx, text, namespace, n)
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.lexErr != nil && (e.vector == nil || c.vecErr != nil) {
		return nil, kberrors.IndexUnavailable("lexical and vector", errors.Join(c.lexErr, c.vecErr))
	}
	return c, nil
}

func (e *Engine) vectorSearch(ctx context.Context, text, namespace string, n int) ([]*store.VectorResult, error) {
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != e.vector.Dimensions() {
		return nil, kberrors.New(kberrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query embedding has %d dimensions, index has %d", len(vec), e.vector.Dimensions()), nil).
			WithSuggestion("Run 'amankb reindex --vectors'")
	}
	return e.vector.Search(ctx, vec, namespace, n)
}

// rank enriches candidates from the store, fuses, dedupes and reranks.
// Candidates whose chunk no longer exists, or that belong to another
// namespace, are dropped before fusion.
func (e *Engine) rank(ctx context.Context, text, namespace string, c *candidates, weights Weights) ([]*Result, error) {
	ids := lo.Uniq(append(
		lo.Map(c.lexical, func(r *store.LexicalResult, _ int) string { return r.ChunkID }),
		lo.Map(c.vector, func(r *store.VectorResult, _ int) string { return r.ID })...))
	if len(ids) == 0 {
		return []*Result{}, nil
	}

	chunks, err := e.chunks.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*store.Chunk, len(chunks))
	for _, ch := range chunks {
		if namespace == "" || ch.Namespace == namespace {
			byID[ch.ID] = ch
		}
	}
	docIDs := lo.Uniq(lo.MapToSlice(byID, func(_ string, ch *store.Chunk) string { return ch.DocumentID }))
	docs, err := e.chunks.GetDocuments(ctx, docIDs)
	if err != nil {
		return nil, err
	}

	lexical := lo.Filter(c.lexical, func(r *store.LexicalResult, _ int) bool { return byID[r.ChunkID] != nil })
	vector := lo.Filter(c.vector, func(r *store.VectorResult, _ int) bool { return byID[r.ID] != nil })

	categories := make(map[string]store.Category, len(byID))
	for id, ch := range byID {
		if d, ok := docs[ch.DocumentID]; ok {
			categories[id] = d.Category
		}
	}

	fused := e.fusion.Fuse(lexical, vector, FusionInput{
		Intent:     c.intent,
		Confidence: c.confidence,
		Weights:    weights,
		Categories: categories,
		Quality:    e.qualityFor(ctx, byID),
	})
	c.fused = len(fused)

	for _, r := range fused {
		ch := byID[r.ChunkID]
		r.DocumentID = ch.DocumentID
		r.Namespace = ch.Namespace
		r.HeadingPath = ch.HeadingPath
		r.Content = ch.Content
		if d, ok := docs[ch.DocumentID]; ok {
			r.Title = d.Title
			r.SourceURI = d.SourceURI
		}
	}

	results := e.dedup.Dedupe(fused)

	if e.reranker != nil {
		rctx, cancel := context.WithTimeout(ctx, e.config.RerankTimeout)
		reranked, err := BlendRerank(rctx, e.reranker, text, results, e.config.RerankTopN, e.config.RerankAlpha)
		cancel()
		if err != nil {
			e.metrics.RerankFailed()
			slog.Warn("rerank_failed_passthrough", slog.String("error", err.Error()))
		}
		results = reranked
	}
	return results, nil
}

// qualityFor combines chunk and document multipliers, clamped to the
// configured bounds. Lookup failures are logged and treated as neutral.
func (e *Engine) qualityFor(ctx context.Context, chunks map[string]*store.Chunk) map[string]float64 {
	if e.quality == nil || len(chunks) == 0 {
		return nil
	}
	ids := make([]string, 0, 2*len(chunks))
	for id, ch := range chunks {
		ids = append(ids, id, ch.DocumentID)
	}
	mult, err := e.quality.QualityFor(ctx, lo.Uniq(ids))
	if err != nil {
		slog.Warn("quality_lookup_failed", slog.String("error", err.Error()))
		return nil
	}

	out := make(map[string]float64, len(chunks))
	for id, ch := range chunks {
		cq, ok1 := mult[id]
		dq, ok2 := mult[ch.DocumentID]
		if !ok1 && !ok2 {
			continue
		}
		if !ok1 {
			cq = 1
		}
		if !ok2 {
			dq = 1
		}
		out[id] = min(max(cq*dq, e.config.QualityMin), e.config.QualityMax)
	}
	return out
}

// emptyReason explains an empty result set when nothing has been indexed.
func (e *Engine) emptyReason(ctx context.Context, namespace string) string {
	if namespace != "" {
		stats, err := e.chunks.NamespaceStats(ctx, namespace)
		if err == nil && stats.Chunks == 0 {
			return ReasonNotIndexed
		}
		return ""
	}

	namespaces, err := e.chunks.ListNamespaces(ctx)
	if err != nil {
		return ""
	}
	for _, ns := range namespaces {
		stats, err := e.chunks.NamespaceStats(ctx, ns.ID)
		if err != nil || stats.Chunks > 0 {
			return ""
		}
	}
	return ReasonNotIndexed
}

// makeSnippet returns up to length runes of content around the first
// matched term.
func makeSnippet(content string, terms []string, length int) string {
	content = strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(content) <= length {
		return content
	}

	runes := []rune(content)
	start := 0
	lower := strings.ToLower(content)
	for _, t := range terms {
		if idx := strings.Index(lower, strings.ToLower(t)); idx >= 0 {
			start = max(utf8.RuneCountInString(lower[:idx])-length/4, 0)
			break
		}
	}
	end := min(start+length, len(runes))
	start = max(end-length, 0)

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet += "..."
	}
	return snippet
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
