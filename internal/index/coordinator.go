// Package index applies ingested documents to the chunk store and keeps the
// lexical and vector indices in line with it: hash-skip reindex, atomic
// per-document replacement, namespace cascade deletes, embedding model
// rebuilds and consistency repair.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/Aman-CERP/amankb/internal/chunk"
	"github.com/Aman-CERP/amankb/internal/embed"
	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/store"
	"github.com/Aman-CERP/amankb/internal/telemetry"
)

// rebuildBatch is the number of chunks embedded per store write during a
// vector rebuild or repair.
const rebuildBatch = 256

// CoordinatorConfig contains the collaborators of a Coordinator.
type CoordinatorConfig struct {
	// Store is the system of record (required).
	Store *store.SQLiteStore

	// Lexical is the lexical index (required). The FTS5 backend is written
	// inside the store transaction; other backends get the Replacement after
	// commit.
	Lexical store.LexicalIndex

	// Vectors and Batcher are optional. Without them documents are indexed
	// lexical-only.
	Vectors store.VectorStore
	Batcher *embed.Batcher

	Metrics *telemetry.Metrics

	// MaxChunkTokens is the hard cap; longer chunks are re-split.
	MaxChunkTokens int

	LockPolicy LockPolicy

	// Now overrides the clock (tests).
	Now func() time.Time
}

// IngestResult reports what Ingest did with one document.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Namespace  string `json:"namespace"`
	SourceURI  string `json:"source_uri"`
	// Skipped is true when the content hash matched and nothing was written.
	Skipped bool `json:"skipped"`
	Chunks  int  `json:"chunks"`
	// VectorsSkipped is true when the document was stored without vectors
	// because the embedder failed. `status --check --repair` fills them in.
	VectorsSkipped bool     `json:"vectors_skipped,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

// Coordinator serializes writers per document and applies every committed
// change to the out-of-transaction indices.
type Coordinator struct {
	config CoordinatorConfig
	locks  *docLocks
	ns     *nsLocks
	now    func() time.Time
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Lexical == nil {
		return nil, fmt.Errorf("lexical index is required")
	}
	if (cfg.Vectors == nil) != (cfg.Batcher == nil) {
		return nil, fmt.Errorf("vector store and batcher must be set together")
	}
	if cfg.MaxChunkTokens <= 0 {
		cfg.MaxChunkTokens = 500
	}
	if cfg.LockPolicy == "" {
		cfg.LockPolicy = LockWait
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Coordinator{config: cfg, locks: newDocLocks(cfg.LockPolicy), ns: newNSLocks(), now: now}, nil
}

// HasVectors reports whether documents are embedded on ingest.
func (c *Coordinator) HasVectors() bool { return c.config.Batcher != nil }

// Ingest indexes one document. An unchanged content hash is a no-op that
// touches neither the store nor the indices.
func (c *Coordinator) Ingest(ctx context.Context, doc *IngestedDocument) (*IngestResult, error) {
	if doc == nil {
		return nil, kberrors.ValidationError("document is nil", nil)
	}
	if err := doc.Validate(); err != nil {
		c.config.Metrics.ObserveIngest(telemetry.OutcomeFailed, 0)
		return nil, err
	}

	// Namespace before document: a document holder never waits on the
	// namespace lock, so a pending DeleteNamespace cannot deadlock writers.
	defer c.ns.shared(doc.Namespace)()

	docID := store.DocumentID(doc.Namespace, doc.SourceURI)
	release, err := c.locks.acquire(ctx, docID)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := c.ingestLocked(ctx, docID, doc)
	if err != nil {
		c.config.Metrics.ObserveIngest(telemetry.OutcomeFailed, 0)
		slog.Warn("ingest_failed",
			slog.String("namespace", doc.Namespace),
			slog.String("source_uri", doc.SourceURI),
			slog.String("error", err.Error()))
		return nil, err
	}
	return res, nil
}

func (c *Coordinator) ingestLocked(ctx context.Context, docID string, doc *IngestedDocument) (*IngestResult, error) {
	res := &IngestResult{DocumentID: docID, Namespace: doc.Namespace, SourceURI: doc.SourceURI}
	hash := doc.Hash()

	if _, err := c.config.Store.GetNamespace(ctx, doc.Namespace); err != nil {
		return nil, err
	}

	existing, err := c.config.Store.GetDocument(ctx, docID)
	switch {
	case err == nil && existing.ContentHash == hash:
		res.Skipped = true
		res.Chunks = existing.ChunkCount
		c.config.Metrics.ObserveIngest(telemetry.OutcomeSkipped, 0)
		slog.Debug("ingest_skipped_unchanged",
			slog.String("document", docID),
			slog.String("hash", hash))
		return res, nil
	case err != nil && kberrors.GetCode(err) != kberrors.ErrCodeDocumentNotFound:
		return nil, err
	}

	capped := doc.cappedChunks(c.config.MaxChunkTokens)
	chunks := lo.Map(capped, func(ch *chunk.Chunk, _ int) *store.Chunk {
		return &store.Chunk{
			ID:          store.ChunkID(docID, ch.Ordinal, ch.Text),
			DocumentID:  docID,
			Namespace:   doc.Namespace,
			Ordinal:     ch.Ordinal,
			HeadingPath: ch.HeadingPath,
			Content:     ch.Text,
			WordCount:   ch.WordCount,
		}
	})

	var vectors [][]float32
	var model string
	if c.config.Batcher != nil {
		vectors, err = c.embedChunks(ctx, chunks)
		switch {
		case err == nil:
			model = c.config.Batcher.Embedder().ModelName()
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case kberrors.GetCode(err) == kberrors.ErrCodeDimensionMismatch:
			return nil, err
		default:
			slog.Warn("ingest_embedding_failed",
				slog.String("document", docID),
				slog.String("error", err.Error()))
			vectors = nil
			res.VectorsSkipped = true
			res.Warnings = append(res.Warnings, "embedding failed; stored without vectors")
		}
	}

	sdoc := &store.Document{
		ID:          docID,
		Namespace:   doc.Namespace,
		SourceType:  sourceType(doc.SourceType),
		SourceURI:   doc.SourceURI,
		ContentHash: hash,
		Title:       doc.Title,
		Category:    store.ParseCategory(strings.ToLower(strings.TrimSpace(doc.Category))),
		IndexedAt:   c.now(),
	}
	rep, err := c.config.Store.PutDocument(ctx, sdoc, chunks, vectors, model)
	if err != nil {
		return nil, err
	}

	res.Warnings = append(res.Warnings, c.applyToIndices(ctx, rep)...)
	res.Chunks = len(chunks)
	c.config.Metrics.ObserveIngest(telemetry.OutcomeIndexed, len(chunks))
	slog.Info("document_indexed",
		slog.String("document", docID),
		slog.String("namespace", doc.Namespace),
		slog.Int("chunks", len(chunks)),
		slog.Int("replaced", len(rep.RemovedIDs)),
		slog.Bool("vectors", vectors != nil))
	return res, nil
}

// embedChunks embeds chunk text with its heading breadcrumb.
func (c *Coordinator) embedChunks(ctx context.Context, chunks []*store.Chunk) ([][]float32, error) {
	texts := lo.Map(chunks, func(ch *store.Chunk, _ int) string { return EmbeddingText(ch) })
	vecs, err := c.config.Batcher.EmbedAll(ctx, texts)
	if err != nil {
		return nil, err
	}
	if c.config.Vectors != nil {
		want := c.config.Vectors.Dimensions()
		for _, v := range vecs {
			if len(v) != want {
				return nil, kberrors.New(kberrors.ErrCodeDimensionMismatch,
					store.ErrDimensionMismatch{Expected: want, Got: len(v)}.Error(), nil)
			}
		}
	}
	return vecs, nil
}

// EmbeddingText is what gets embedded for a chunk.
func EmbeddingText(ch *store.Chunk) string {
	if ch.HeadingPath == "" {
		return ch.Content
	}
	return ch.HeadingPath + "\n\n" + ch.Content
}

// applyToIndices mirrors a committed replacement into HNSW and a non-FTS5
// lexical backend. Failures here leave SQLite authoritative and are returned
// as warnings; the consistency checker repairs the drift.
func (c *Coordinator) applyToIndices(ctx context.Context, rep *store.Replacement) []string {
	var warnings []string
	if c.config.Vectors != nil {
		if err := c.config.Vectors.Apply(ctx, rep); err != nil {
			slog.Warn("vector_index_apply_failed", slog.String("error", err.Error()))
			warnings = append(warnings, "vector index out of date: "+err.Error())
		}
	}
	if !lexicalInStore(c.config.Lexical) {
		if err := c.config.Lexical.Apply(ctx, rep); err != nil {
			slog.Warn("lexical_index_apply_failed", slog.String("error", err.Error()))
			warnings = append(warnings, "lexical index out of date: "+err.Error())
		}
	}
	return warnings
}

func lexicalInStore(l store.LexicalIndex) bool {
	in, ok := l.(interface{ InStore() bool })
	return ok && in.InStore()
}

func sourceType(s string) store.SourceType {
	if s == "" {
		return store.SourceFile
	}
	return store.SourceType(s)
}

// DeleteDocument removes one document by its natural key.
func (c *Coordinator) DeleteDocument(ctx context.Context, namespace, sourceURI string) (int, error) {
	defer c.ns.shared(namespace)()

	docID := store.DocumentID(namespace, sourceURI)
	release, err := c.locks.acquire(ctx, docID)
	if err != nil {
		return 0, err
	}
	defer release()

	rep, err := c.config.Store.DeleteDocument(ctx, docID)
	if err != nil {
		return 0, err
	}
	c.applyToIndices(ctx, rep)
	slog.Info("document_deleted",
		slog.String("document", docID),
		slog.Int("chunks", len(rep.RemovedIDs)))
	return len(rep.RemovedIDs), nil
}

// CreateNamespace registers a namespace; existing namespaces are left as is.
func (c *Coordinator) CreateNamespace(ctx context.Context, id, displayName string) error {
	return c.config.Store.CreateNamespace(ctx, &store.Namespace{ID: id, DisplayName: displayName})
}

// DeleteNamespace cascades to documents, chunks, FTS rows and vectors in one
// transaction, then evicts the chunks from HNSW and Bleve. It waits for
// in-flight writes to the namespace and blocks new ones until both indices
// are clean.
func (c *Coordinator) DeleteNamespace(ctx context.Context, id string) (int, error) {
	defer c.ns.exclusive(id)()

	rep, err := c.config.Store.DeleteNamespace(ctx, id)
	if err != nil {
		return 0, err
	}
	c.applyToIndices(ctx, rep)
	slog.Info("namespace_deleted",
		slog.String("namespace", id),
		slog.Int("chunks", len(rep.RemovedIDs)))
	return len(rep.RemovedIDs), nil
}

// ModelChange describes a mismatch between the stored vectors and the
// configured embedder.
type ModelChange struct {
	StoredModel string
	StoredDims  int
	Model       string
	Dims        int
}

// CheckEmbeddingModel compares index_state with the configured embedder.
// A fresh store records the current model and reports no change.
func (c *Coordinator) CheckEmbeddingModel(ctx context.Context) (*ModelChange, error) {
	if c.config.Batcher == nil {
		return nil, nil
	}
	e := c.config.Batcher.Embedder()
	storedModel, err := c.config.Store.GetState(ctx, store.StateKeyEmbeddingModel)
	if err != nil {
		return nil, err
	}
	storedDimsStr, err := c.config.Store.GetState(ctx, store.StateKeyEmbeddingDimension)
	if err != nil {
		return nil, err
	}
	if storedModel == "" {
		return nil, c.recordModel(ctx)
	}
	storedDims, _ := strconv.Atoi(storedDimsStr)
	if storedModel == e.ModelName() && storedDims == e.Dimensions() {
		return nil, nil
	}
	return &ModelChange{StoredModel: storedModel, StoredDims: storedDims, Model: e.ModelName(), Dims: e.Dimensions()}, nil
}

func (c *Coordinator) recordModel(ctx context.Context) error {
	e := c.config.Batcher.Embedder()
	if err := c.config.Store.SetState(ctx, store.StateKeyEmbeddingModel, e.ModelName()); err != nil {
		return err
	}
	return c.config.Store.SetState(ctx, store.StateKeyEmbeddingDimension, strconv.Itoa(e.Dimensions()))
}

// RebuildVectors drops every vector and re-embeds all chunks with the current
// embedder. progress, if set, is called after each batch.
func (c *Coordinator) RebuildVectors(ctx context.Context, progress func(done, total int)) (int, error) {
	if c.config.Batcher == nil {
		return 0, kberrors.EmbeddingUnavailable("no embedder configured", nil)
	}
	ids, err := c.config.Store.AllChunkIDs(ctx)
	if err != nil {
		return 0, err
	}

	if err := c.config.Store.DeleteAllVectors(ctx); err != nil {
		return 0, err
	}
	if err := c.config.Vectors.Delete(ctx, c.config.Vectors.AllIDs()); err != nil {
		return 0, err
	}

	all := lo.Keys(ids)
	sort.Strings(all)
	n, err := c.embedMissing(ctx, all, func(done int) {
		if progress != nil {
			progress(done, len(ids))
		}
	})
	if err != nil {
		return n, err
	}
	if err := c.recordModel(ctx); err != nil {
		return n, err
	}
	slog.Info("vectors_rebuilt", slog.Int("chunks", n))
	return n, nil
}

// embedMissing embeds the given chunk IDs in batches, writes the vectors to
// the store and then to HNSW.
func (c *Coordinator) embedMissing(ctx context.Context, ids []string, progress func(done int)) (int, error) {
	model := c.config.Batcher.Embedder().ModelName()
	done := 0
	for _, batch := range lo.Chunk(ids, rebuildBatch) {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		chunks, err := c.config.Store.GetChunks(ctx, batch)
		if err != nil {
			return done, err
		}
		if len(chunks) == 0 {
			continue
		}
		vecs, err := c.embedChunks(ctx, chunks)
		if err != nil {
			return done, err
		}
		for ns, idx := range lo.GroupBy(lo.Range(len(chunks)), func(i int) string { return chunks[i].Namespace }) {
			nsIDs := lo.Map(idx, func(i int, _ int) string { return chunks[i].ID })
			nsVecs := lo.Map(idx, func(i int, _ int) []float32 { return vecs[i] })
			if err := c.writeVectors(ctx, ns, nsIDs, nsVecs, model); err != nil {
				return done, err
			}
		}
		done += len(chunks)
		if progress != nil {
			progress(done)
		}
	}
	return done, nil
}

// writeVectors stores and graphs vectors for chunks of one namespace under
// its shared lock. Chunks deleted since they were read are dropped, so a
// concurrent DeleteNamespace cannot leave orphans behind.
func (c *Coordinator) writeVectors(ctx context.Context, ns string, ids []string, vecs [][]float32, model string) error {
	defer c.ns.shared(ns)()

	live, err := c.config.Store.GetChunks(ctx, ids)
	if err != nil {
		return err
	}
	alive := lo.SliceToMap(live, func(ch *store.Chunk) (string, bool) { return ch.ID, true })
	var keepIDs []string
	var keepVecs [][]float32
	for i, id := range ids {
		if alive[id] {
			keepIDs = append(keepIDs, id)
			keepVecs = append(keepVecs, vecs[i])
		}
	}
	if len(keepIDs) == 0 {
		return nil
	}
	if err := c.config.Store.ReplaceVectors(ctx, keepIDs, keepVecs, model); err != nil {
		return err
	}
	return c.config.Vectors.Upsert(ctx, keepIDs, keepVecs, ns)
}

// IsAlreadyIndexing reports whether err is the reject-policy lock error.
func IsAlreadyIndexing(err error) bool {
	return errors.Is(err, kberrors.ErrAlreadyIndexing)
}
