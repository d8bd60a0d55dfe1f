package search

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

// HTTP reranker defaults.
const (
	DefaultRerankerTimeout      = 3 * time.Second
	DefaultRerankerMaxFailures  = 3
	DefaultRerankerResetTimeout = 30 * time.Second
)

// HTTPRerankerConfig configures a remote cross-encoder endpoint.
type HTTPRerankerConfig struct {
	// Endpoint is the base URL; requests go to Endpoint + "/rerank".
	Endpoint string
	Model    string
	Timeout  time.Duration

	MaxFailures  int
	ResetTimeout time.Duration

	// SkipHealthCheck skips the startup /health probe.
	SkipHealthCheck bool
}

// HTTPReranker calls a cross-encoder service. A circuit breaker stops calls
// after repeated failures so a dead endpoint costs nothing per query.
type HTTPReranker struct {
	client  *http.Client
	config  HTTPRerankerConfig
	breaker *kberrors.CircuitBreaker

	mu     sync.RWMutex
	closed bool
}

var _ Reranker = (*HTTPReranker)(nil)

// NewHTTPReranker creates the client and, unless skipped, probes /health.
func NewHTTPReranker(ctx context.Context, cfg HTTPRerankerConfig) (*HTTPReranker, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("http reranker: endpoint is required")
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRerankerTimeout
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultRerankerMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultRerankerResetTimeout
	}

	r := &HTTPReranker{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		config: cfg,
		breaker: kberrors.NewCircuitBreaker("reranker",
			kberrors.WithMaxFailures(cfg.MaxFailures),
			kberrors.WithResetTimeout(cfg.ResetTimeout)),
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		if err := r.healthCheck(checkCtx); err != nil {
			return nil, kberrors.New(kberrors.ErrCodeRerankUnavailable, "reranker health check failed", err).
				WithDetail("endpoint", cfg.Endpoint)
		}
	}

	slog.Debug("http_reranker_created",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("model", cfg.Model),
		slog.Duration("timeout", cfg.Timeout))
	return r, nil
}

func (r *HTTPReranker) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.config.Endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unhealthy (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
	TopK      int      `json:"top_k,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// Rerank posts the documents and returns scores sorted descending.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("reranker is closed")
	}
	if len(documents) == 0 {
		return []RerankResult{}, nil
	}

	body, err := json.Marshal(rerankRequest{Query: query, Documents: documents, Model: r.config.Model, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	start := time.Now()
	out, err := kberrors.CircuitCall(ctx, r.breaker, func(ctx context.Context) (*rerankResponse, error) {
		reqCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
		return r.post(reqCtx, body)
	})
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeRerankUnavailable, "rerank request failed", err)
	}

	results := make([]RerankResult, 0, len(out.Results))
	for _, res := range out.Results {
		if res.Index < 0 || res.Index >= len(documents) {
			continue
		}
		results = append(results, RerankResult{Index: res.Index, Score: res.Score, Document: documents[res.Index]})
	}
	slices.SortStableFunc(results, func(a, b RerankResult) int { return cmp.Compare(b.Score, a.Score) })
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}

	slog.Debug("rerank_complete",
		slog.Int("documents", len(documents)),
		slog.Duration("took", time.Since(start)))
	return results, nil
}

func (r *HTTPReranker) post(ctx context.Context, body []byte) (*rerankResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.Endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("rerank failed (status %d): %s", resp.StatusCode, string(msg))
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}
	return &out, nil
}

// Available reports whether the breaker is closed and /health answers.
func (r *HTTPReranker) Available(ctx context.Context) bool {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed || r.breaker.State() == kberrors.StateOpen {
		return false
	}
	checkCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()
	return r.healthCheck(checkCtx) == nil
}

// Close releases idle connections.
func (r *HTTPReranker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if transport, ok := r.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}

// NewReranker builds the reranker selected by provider: "none" (or empty)
// returns nil, "term" the local TermOverlapReranker, "http" an HTTPReranker.
func NewReranker(ctx context.Context, provider, endpoint, model string, timeout time.Duration) (Reranker, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "none":
		return nil, nil
	case "term":
		return &TermOverlapReranker{}, nil
	case "http":
		return NewHTTPReranker(ctx, HTTPRerankerConfig{Endpoint: endpoint, Model: model, Timeout: timeout})
	default:
		return nil, fmt.Errorf("unknown reranker provider %q (valid: none, term, http)", provider)
	}
}
