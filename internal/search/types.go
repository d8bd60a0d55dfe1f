// Package search ranks chunks for a query: lexical and vector retrieval run
// in parallel, results are fused with intent-weighted Reciprocal Rank Fusion,
// boosted by category, adjusted by feedback quality, deduplicated and
// optionally reranked.
package search

import (
	"context"
	"time"

	"github.com/Aman-CERP/amankb/internal/config"
	"github.com/Aman-CERP/amankb/internal/store"
)

// Intent is the coarse purpose of a query.
type Intent string

const (
	IntentPolicy    Intent = config.IntentPolicy
	IntentProcedure Intent = config.IntentProcedure
	IntentReference Intent = config.IntentReference
	IntentUnknown   Intent = config.IntentUnknown
)

// Intents lists the classifiable intents in tie-break order.
var Intents = []Intent{IntentPolicy, IntentProcedure, IntentReference}

// DefaultPolicyThreshold is the minimum confidence for a query to count as
// confidently classified (and so eligible for the category boost).
const DefaultPolicyThreshold = 0.4

// Classifier maps a query to an intent and a confidence in [0,1]. It always
// returns a pair; a query with no signal is (IntentUnknown, 0).
type Classifier interface {
	Classify(ctx context.Context, query string) (Intent, float64)
}

// Classification is a classifier verdict.
type Classification struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// IsConfident reports whether the verdict clears threshold for a known intent.
func (c Classification) IsConfident(threshold float64) bool {
	return c.Intent != IntentUnknown && c.Confidence >= threshold
}

// Strategy is the retrieval pipeline chosen from the available collaborators.
type Strategy string

const (
	// StrategyLexical runs the lexical index only (no embedder configured).
	StrategyLexical Strategy = "lexical"
	// StrategyHybrid fuses lexical and vector results.
	StrategyHybrid Strategy = "hybrid"
	// StrategyHybridRerank fuses and then reranks the top results.
	StrategyHybridRerank Strategy = "hybrid+rerank"
)

// Weights scales the lexical and vector RRF contributions.
type Weights struct {
	Lexical float64 `json:"lexical"`
	Vector  float64 `json:"vector"`
}

// Query is one search request.
type Query struct {
	Text      string   `json:"query"`
	Namespace string   `json:"namespace,omitempty"`
	Limit     int      `json:"limit,omitempty"`
	Weights   *Weights `json:"weights,omitempty"`
}

// Scores groups the per-stage scores of a result.
type Scores struct {
	Lexical float64 `json:"lexical"`
	Vector  float64 `json:"vector"`
	Fused   float64 `json:"fused"`
	Final   float64 `json:"final"`
}

// Result is one ranked chunk.
type Result struct {
	ChunkID     string         `json:"chunk_id"`
	DocumentID  string         `json:"document_id"`
	Namespace   string         `json:"namespace"`
	SourceURI   string         `json:"source_uri,omitempty"`
	Title       string         `json:"title,omitempty"`
	HeadingPath string         `json:"heading_path,omitempty"`
	Category    store.Category `json:"category"`
	Snippet     string         `json:"snippet"`
	Content     string         `json:"-"`

	LexicalScore float64 `json:"-"`
	VectorScore  float64 `json:"-"`
	LexicalRank  int     `json:"lexical_rank,omitempty"` // 1-based, 0 if absent
	VectorRank   int     `json:"vector_rank,omitempty"`  // 1-based, 0 if absent
	// PreBoostRank is the position by raw RRF score; it breaks final ties.
	PreBoostRank int `json:"-"`

	FusedScore  float64 `json:"-"` // RRF score normalized by the best RRF score
	Boost       float64 `json:"boost"`
	Quality     float64 `json:"quality"`
	RerankScore float64 `json:"rerank_score,omitempty"`
	FinalScore  float64 `json:"-"`

	MatchedTerms []string `json:"matched_terms,omitempty"`
	Scores       Scores   `json:"scores"`
	Rank         int      `json:"rank"`
}

// Response is the outcome of a search.
type Response struct {
	Query      string         `json:"query"`
	Namespace  string         `json:"namespace,omitempty"`
	Results    []*Result      `json:"results"`
	Intent     Intent         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Strategy   Strategy       `json:"strategy"`
	Degraded   bool           `json:"degraded"`
	Reason     string         `json:"reason,omitempty"`
	Weights    Weights        `json:"weights"`
	Took       time.Duration  `json:"took_ns"`
	Candidates CandidateStats `json:"candidates"`
}

// CandidateStats counts what each stage saw.
type CandidateStats struct {
	Lexical int `json:"lexical"`
	Vector  int `json:"vector"`
	Fused   int `json:"fused"`
	Deduped int `json:"deduped"`
}

// Reasons attached to empty or partial responses.
const (
	ReasonNotIndexed        = "not yet indexed"
	ReasonNamespaceNotFound = "namespace not found"
	ReasonEmptyQuery        = "query is empty after sanitization"
	ReasonVectorUnavailable = "vector index unavailable; lexical results only"
	ReasonLexicalFailed     = "lexical index unavailable; vector results only"
)

// ChunkSource is the read side of the chunk store the engine needs.
type ChunkSource interface {
	GetChunks(ctx context.Context, ids []string) ([]*store.Chunk, error)
	GetDocuments(ctx context.Context, ids []string) (map[string]*store.Document, error)
	GetNamespace(ctx context.Context, id string) (*store.Namespace, error)
	NamespaceStats(ctx context.Context, id string) (*store.NamespaceStats, error)
	ListNamespaces(ctx context.Context) ([]*store.Namespace, error)
}

// QualitySource supplies feedback multipliers by target ID (chunk or
// document). Missing IDs mean neutral (1.0).
type QualitySource interface {
	QualityFor(ctx context.Context, ids []string) (map[string]float64, error)
}

// Config holds the ranking parameters.
type Config struct {
	DefaultLimit int
	MaxLimit     int
	// Overfetch multiplies the limit for per-index candidate counts so that
	// dedup does not shrink results below the limit.
	Overfetch int

	RRFConstant     int
	IntentWeights   map[Intent]Weights
	BoostFactor     float64
	PolicyThreshold float64
	DedupThreshold  float64

	RerankTopN    int
	RerankAlpha   float64
	RerankTimeout time.Duration

	QualityMin float64
	QualityMax float64

	VectorTimeout  time.Duration
	LexicalTimeout time.Duration
	SnippetLength  int
}

// DefaultConfig returns the built-in ranking parameters.
func DefaultConfig() Config {
	return ConfigFromSettings(config.NewConfig())
}

// ConfigFromSettings maps the loaded configuration onto engine parameters.
func ConfigFromSettings(cfg *config.Config) Config {
	weights := make(map[Intent]Weights, len(cfg.Search.IntentWeights))
	for intent, w := range cfg.Search.IntentWeights {
		weights[Intent(intent)] = Weights{Lexical: w.Lexical, Vector: w.Vector}
	}
	return Config{
		DefaultLimit:    cfg.Search.DefaultLimit,
		MaxLimit:        cfg.Search.MaxLimit,
		Overfetch:       cfg.Search.Overfetch,
		RRFConstant:     cfg.Search.RRFConstant,
		IntentWeights:   weights,
		BoostFactor:     cfg.Search.BoostFactor,
		PolicyThreshold: cfg.Search.PolicyThreshold,
		DedupThreshold:  cfg.Search.DedupThreshold,
		RerankTopN:      cfg.Reranker.TopN,
		RerankAlpha:     cfg.Reranker.Alpha,
		RerankTimeout:   config.Duration(cfg.Reranker.Timeout, 3*time.Second),
		QualityMin:      cfg.Feedback.MinMultiplier,
		QualityMax:      cfg.Feedback.MaxMultiplier,
		VectorTimeout:   config.Duration(cfg.Search.VectorTimeout, 2*time.Second),
		LexicalTimeout:  config.Duration(cfg.Search.LexicalTimeout, 5*time.Second),
		SnippetLength:   240,
	}
}

// WeightsFor returns the configured weights of intent, falling back to the
// unknown row and then to an even split.
func (c Config) WeightsFor(intent Intent) Weights {
	if w, ok := c.IntentWeights[intent]; ok {
		return w
	}
	if w, ok := c.IntentWeights[IntentUnknown]; ok {
		return w
	}
	return Weights{Lexical: 0.5, Vector: 0.5}
}
