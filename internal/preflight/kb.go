package preflight

import (
	"context"
	"fmt"
	"time"

	"github.com/Aman-CERP/amankb/internal/async"
	"github.com/Aman-CERP/amankb/internal/config"
	"github.com/Aman-CERP/amankb/internal/embed"
	"github.com/Aman-CERP/amankb/internal/index"
	"github.com/Aman-CERP/amankb/internal/search"
)

// CheckWriterLock warns when another process holds the writer lock. Readers
// still work; ingest, watch and repair will be refused.
func (c *Checker) CheckWriterLock(dataDir string) CheckResult {
	result := CheckResult{Name: "writer_lock"}

	lock := index.NewFileLock(dataDir)
	if err := lock.TryLock(); err != nil {
		result.Status = StatusWarn
		result.Message = "held by another process"
		result.Details = lock.Path()
		return result
	}
	_ = lock.Unlock()

	result.Status = StatusPass
	result.Message = "free"
	return result
}

// CheckInterruptedIngest warns when a background ingest did not finish.
func (c *Checker) CheckInterruptedIngest(dataDir string) CheckResult {
	result := CheckResult{Name: "background_ingest"}
	if async.HasIncompleteRun(dataDir) {
		result.Status = StatusWarn
		result.Message = "a previous background ingest was interrupted"
		result.Details = "Run the same ingest again; unchanged documents are skipped"
		return result
	}
	result.Status = StatusPass
	result.Message = "no interrupted run"
	return result
}

// CheckEmbedder builds the configured embedder and probes it. Failure means
// lexical-only search, not a failed start.
func (c *Checker) CheckEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) CheckResult {
	result := CheckResult{Name: "embedder"}

	e, err := embed.NewEmbedder(ctx, cfg)
	if err != nil {
		result.Status = StatusWarn
		result.Message = "unavailable, search will be lexical-only"
		result.Details = err.Error()
		return result
	}
	if e == nil {
		result.Status = StatusWarn
		result.Message = "disabled, search is lexical-only"
		return result
	}
	defer func() { _ = e.Close() }()

	info := embed.GetInfo(ctx, e)
	if !info.Available {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s not responding, search will be lexical-only", info.Provider)
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s %s (%d dims)", info.Provider, info.Model, info.Dimensions)
	return result
}

// CheckReranker probes the optional rerank stage.
func (c *Checker) CheckReranker(ctx context.Context, cfg config.RerankerConfig) CheckResult {
	result := CheckResult{Name: "reranker"}

	r, err := search.NewReranker(ctx, cfg.Provider, cfg.Endpoint, cfg.Model,
		config.Duration(cfg.Timeout, 3*time.Second))
	switch {
	case err != nil:
		result.Status = StatusWarn
		result.Message = "unavailable, results are not reranked"
		result.Details = err.Error()
		return result
	case r == nil:
		result.Status = StatusPass
		result.Message = "disabled"
		return result
	}
	defer func() { _ = r.Close() }()

	if !r.Available(ctx) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s not responding, results are not reranked", cfg.Provider)
		return result
	}
	result.Status = StatusPass
	result.Message = cfg.Provider
	return result
}
