package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/amankb/internal/config"
	"github.com/Aman-CERP/amankb/internal/embed"
	"github.com/Aman-CERP/amankb/internal/feedback"
	"github.com/Aman-CERP/amankb/internal/search"
	"github.com/Aman-CERP/amankb/internal/store"
	"github.com/Aman-CERP/amankb/internal/telemetry"
)

// OpenOptions controls how a knowledge base is opened.
type OpenOptions struct {
	// Writer takes the data directory lock. Only writers may ingest, delete
	// or rebuild; an embedding model change is rebuilt on open.
	Writer bool

	// Metrics is shared with the caller (for a /metrics endpoint). A fresh
	// registry is created when nil.
	Metrics *telemetry.Metrics
}

// KB is an opened knowledge base: the store, both indices and every service
// built on them.
type KB struct {
	Config      *config.Config
	Store       *store.SQLiteStore
	Lexical     store.LexicalIndex
	Vectors     *store.HNSWStore // nil when running lexical-only
	Embedder    embed.Embedder   // nil when running lexical-only
	Coordinator *Coordinator
	Engine      *search.Engine
	Feedback    *feedback.Service
	Metrics     *telemetry.Metrics

	// Degraded explains why vector search is off, if it is.
	Degraded string

	lock *FileLock
}

// Open wires a KB from configuration.
func Open(ctx context.Context, cfg *config.Config, opts OpenOptions) (kb *KB, err error) {
	dataDir := cfg.Paths.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	kb = &KB{Config: cfg, Metrics: opts.Metrics}
	if kb.Metrics == nil {
		kb.Metrics = telemetry.NewMetrics()
	}
	defer func() {
		if err != nil {
			_ = kb.Close()
		}
	}()

	if opts.Writer {
		kb.lock = NewFileLock(dataDir)
		if err := kb.lock.TryLock(); err != nil {
			return nil, err
		}
	}

	kb.Store, err = store.OpenSQLiteStore(filepath.Join(dataDir, store.DatabaseFile))
	if err != nil {
		return nil, err
	}

	backend := cfg.Search.LexicalBackend
	if backend == "" {
		backend = string(store.DetectLexicalBackend(dataDir))
	}
	kb.Lexical, err = store.NewLexicalIndex(backend, kb.Store, dataDir)
	if err != nil {
		return nil, err
	}

	if err := kb.openVectors(ctx); err != nil {
		return nil, err
	}

	var batcher *embed.Batcher
	var vectors store.VectorStore
	if kb.Vectors != nil {
		batcher = embed.NewBatcher(kb.Embedder, cfg.Embeddings.BatchSize, cfg.Embeddings.Concurrency)
		vectors = kb.Vectors
	}
	policy, err := ParseLockPolicy(cfg.Index.LockPolicy)
	if err != nil {
		return nil, err
	}
	kb.Coordinator, err = NewCoordinator(CoordinatorConfig{
		Store:          kb.Store,
		Lexical:        kb.Lexical,
		Vectors:        vectors,
		Batcher:        batcher,
		Metrics:        kb.Metrics,
		MaxChunkTokens: cfg.Index.MaxChunkTokens,
		LockPolicy:     policy,
	})
	if err != nil {
		return nil, err
	}

	if kb.Vectors != nil {
		if err := kb.checkModel(ctx, opts.Writer); err != nil {
			return nil, err
		}
	}

	kb.Feedback = feedback.NewService(feedback.NewSQLiteLog(kb.Store),
		feedback.BoundsFromConfig(cfg.Feedback), feedback.WithMetrics(kb.Metrics))

	if err := kb.buildEngine(ctx); err != nil {
		return nil, err
	}

	slog.Debug("kb_opened",
		slog.String("data_dir", dataDir),
		slog.String("lexical_backend", backend),
		slog.String("strategy", string(kb.Engine.Strategy())),
		slog.Bool("writer", opts.Writer))
	return kb, nil
}

// openVectors creates the embedder and loads stored vectors into HNSW. An
// unavailable embedder leaves the KB lexical-only.
func (kb *KB) openVectors(ctx context.Context) error {
	e, err := embed.NewEmbedder(ctx, kb.Config.Embeddings)
	if err != nil {
		kb.Degraded = err.Error()
		slog.Warn("embedder_unavailable_lexical_only", slog.String("error", err.Error()))
		return nil
	}
	if e == nil {
		return nil
	}
	kb.Embedder = e

	kb.Vectors, err = store.NewHNSWStore(store.DefaultVectorStoreConfig(e.Dimensions()))
	if err != nil {
		return err
	}
	n, err := kb.Vectors.Load(kb.Store.LoadVectors(ctx))
	var mismatch store.ErrDimensionMismatch
	switch {
	case errors.As(err, &mismatch):
		// The model changed dimension; checkModel rebuilds for writers.
		slog.Warn("stored_vectors_dimension_mismatch",
			slog.Int("expected", mismatch.Expected),
			slog.Int("got", mismatch.Got))
		_ = kb.Vectors.Close()
		kb.Vectors, err = store.NewHNSWStore(store.DefaultVectorStoreConfig(e.Dimensions()))
		if err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		slog.Debug("vectors_loaded", slog.Int("count", n))
	}
	return nil
}

// checkModel compares index_state with the embedder. Writers rebuild on a
// change; readers fall back to lexical-only until a writer has rebuilt.
func (kb *KB) checkModel(ctx context.Context, writer bool) error {
	change, err := kb.Coordinator.CheckEmbeddingModel(ctx)
	if err != nil || change == nil {
		return err
	}
	slog.Warn("embedding_model_changed",
		slog.String("stored_model", change.StoredModel),
		slog.Int("stored_dims", change.StoredDims),
		slog.String("model", change.Model),
		slog.Int("dims", change.Dims))

	if !writer {
		kb.Degraded = fmt.Sprintf("embedding model changed from %s to %s; run 'amankb reindex --vectors'",
			change.StoredModel, change.Model)
		_ = kb.Vectors.Close()
		kb.Vectors = nil
		return nil
	}
	_, err = kb.Coordinator.RebuildVectors(ctx, nil)
	return err
}

func (kb *KB) buildEngine(ctx context.Context) error {
	cfg := kb.Config
	classifier, err := search.NewRuleClassifier(cfg.Classifier)
	if err != nil {
		return err
	}
	opts := []search.EngineOption{
		search.WithClassifier(classifier),
		search.WithQuality(kb.Feedback),
		search.WithMetrics(kb.Metrics),
	}
	if kb.Vectors != nil {
		opts = append(opts, search.WithVectorSearch(kb.Vectors, kb.Embedder))
	}

	reranker, err := search.NewReranker(ctx, cfg.Reranker.Provider, cfg.Reranker.Endpoint, cfg.Reranker.Model,
		config.Duration(cfg.Reranker.Timeout, search.DefaultConfig().RerankTimeout))
	if err != nil {
		slog.Warn("reranker_unavailable", slog.String("error", err.Error()))
	} else if reranker != nil {
		opts = append(opts, search.WithReranker(reranker))
	}

	kb.Engine, err = search.NewEngine(kb.Lexical, kb.Store, search.ConfigFromSettings(cfg), opts...)
	return err
}

// Close releases every resource; it is safe on a partly opened KB.
func (kb *KB) Close() error {
	var errs []error
	if kb.Vectors != nil {
		errs = append(errs, kb.Vectors.Close())
	}
	if kb.Embedder != nil {
		errs = append(errs, kb.Embedder.Close())
	}
	if kb.Lexical != nil {
		errs = append(errs, kb.Lexical.Close())
	}
	if kb.Store != nil {
		errs = append(errs, kb.Store.Close())
	}
	if kb.lock != nil {
		errs = append(errs, kb.lock.Unlock())
	}
	return errors.Join(errs...)
}
