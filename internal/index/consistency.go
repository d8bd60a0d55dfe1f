package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/Aman-CERP/amankb/internal/store"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphanLexical is a lexical entry without a chunk.
	InconsistencyOrphanLexical InconsistencyType = iota
	// InconsistencyOrphanVector is an HNSW node without a chunk.
	InconsistencyOrphanVector
	// InconsistencyMissingLexical is a chunk absent from the lexical index.
	InconsistencyMissingLexical
	// InconsistencyMissingVector is a chunk with no stored embedding.
	InconsistencyMissingVector
	// InconsistencyMissingFromGraph is a stored embedding absent from HNSW.
	InconsistencyMissingFromGraph
)

// String returns the short name of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanLexical:
		return "orphan_lexical"
	case InconsistencyOrphanVector:
		return "orphan_vector"
	case InconsistencyMissingLexical:
		return "missing_lexical"
	case InconsistencyMissingVector:
		return "missing_vector"
	case InconsistencyMissingFromGraph:
		return "missing_from_graph"
	default:
		return "unknown"
	}
}

// Inconsistency is one cross-store issue.
type Inconsistency struct {
	Type    InconsistencyType `json:"-"`
	Kind    string            `json:"type"`
	ChunkID string            `json:"chunk_id"`
}

// CheckResult is the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of chunks in the store.
	Checked         int             `json:"checked"`
	Inconsistencies []Inconsistency `json:"inconsistencies"`
	Duration        time.Duration   `json:"duration_ns"`
}

// Consistent reports whether no issue was found.
func (r *CheckResult) Consistent() bool { return len(r.Inconsistencies) == 0 }

// Counts tallies issues by type name.
func (r *CheckResult) Counts() map[string]int {
	return lo.CountValuesBy(r.Inconsistencies, func(i Inconsistency) string { return i.Kind })
}

func (r *CheckResult) ids(t InconsistencyType) []string {
	return lo.FilterMap(r.Inconsistencies, func(i Inconsistency, _ int) (string, bool) {
		return i.ChunkID, i.Type == t
	})
}

// RepairResult reports what Repair fixed.
type RepairResult struct {
	LexicalRemoved int `json:"lexical_removed"`
	LexicalAdded   int `json:"lexical_added"`
	VectorsRemoved int `json:"vectors_removed"`
	VectorsAdded   int `json:"vectors_added"`
	GraphReloaded  int `json:"graph_reloaded"`
}

// ConsistencyChecker compares the chunk store (source of truth) with the
// lexical index, the stored vectors and the in-memory HNSW graph.
type ConsistencyChecker struct {
	coord *Coordinator
}

// NewConsistencyChecker creates a checker over the coordinator's stores.
func NewConsistencyChecker(coord *Coordinator) *ConsistencyChecker {
	return &ConsistencyChecker{coord: coord}
}

// Check scans every store. It is O(n) in the number of chunks.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()
	cfg := c.coord.config

	chunks, err := cfg.Store.AllChunkIDs(ctx)
	if err != nil {
		return nil, err
	}
	result := &CheckResult{Checked: len(chunks)}
	add := func(t InconsistencyType, ids []string) {
		sort.Strings(ids)
		for _, id := range ids {
			result.Inconsistencies = append(result.Inconsistencies,
				Inconsistency{Type: t, Kind: t.String(), ChunkID: id})
		}
	}

	lexIDs, err := cfg.Lexical.AllIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lexical ids: %w", err)
	}
	lexSet := lo.SliceToMap(lexIDs, func(id string) (string, struct{}) { return id, struct{}{} })
	add(InconsistencyOrphanLexical, lo.Filter(lexIDs, func(id string, _ int) bool { _, ok := chunks[id]; return !ok }))
	add(InconsistencyMissingLexical, lo.Filter(lo.Keys(chunks), func(id string, _ int) bool { _, ok := lexSet[id]; return !ok }))

	if cfg.Vectors != nil {
		stored, err := cfg.Store.VectorChunkIDs(ctx)
		if err != nil {
			return nil, err
		}
		graph := cfg.Vectors.AllIDs()
		graphSet := lo.SliceToMap(graph, func(id string) (string, struct{}) { return id, struct{}{} })

		add(InconsistencyOrphanVector, lo.Filter(graph, func(id string, _ int) bool { _, ok := chunks[id]; return !ok }))
		add(InconsistencyMissingVector, lo.Filter(lo.Keys(chunks), func(id string, _ int) bool { _, ok := stored[id]; return !ok }))
		add(InconsistencyMissingFromGraph, lo.Filter(lo.Keys(stored), func(id string, _ int) bool { _, ok := graphSet[id]; return !ok }))
	}

	result.Duration = time.Since(start)
	slog.Debug("consistency_check_complete",
		slog.Int("checked", result.Checked),
		slog.Int("inconsistencies", len(result.Inconsistencies)),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// Repair fixes the issues found by Check: orphans are removed, missing
// lexical rows are rewritten from the store, chunks without embeddings are
// embedded, and stored embeddings missing from HNSW are reloaded.
func (c *ConsistencyChecker) Repair(ctx context.Context, result *CheckResult) (*RepairResult, error) {
	out := &RepairResult{}
	if result == nil || result.Consistent() {
		return out, nil
	}
	cfg := c.coord.config

	if orphans := result.ids(InconsistencyOrphanLexical); len(orphans) > 0 {
		if err := cfg.Lexical.Apply(ctx, &store.Replacement{RemovedIDs: orphans}); err != nil {
			return out, fmt.Errorf("remove lexical orphans: %w", err)
		}
		out.LexicalRemoved = len(orphans)
	}

	if missing := result.ids(InconsistencyMissingLexical); len(missing) > 0 {
		n, err := c.reindexLexical(ctx, missing)
		out.LexicalAdded = n
		if err != nil {
			return out, fmt.Errorf("restore lexical rows: %w", err)
		}
	}

	if cfg.Vectors == nil {
		return out, nil
	}

	if orphans := result.ids(InconsistencyOrphanVector); len(orphans) > 0 {
		if err := cfg.Vectors.Delete(ctx, orphans); err != nil {
			return out, fmt.Errorf("remove vector orphans: %w", err)
		}
		out.VectorsRemoved = len(orphans)
	}

	if missing := result.ids(InconsistencyMissingFromGraph); len(missing) > 0 {
		n, err := c.reloadGraph(ctx, missing)
		out.GraphReloaded = n
		if err != nil {
			return out, fmt.Errorf("reload vectors: %w", err)
		}
	}

	if missing := result.ids(InconsistencyMissingVector); len(missing) > 0 {
		n, err := c.coord.embedMissing(ctx, missing, nil)
		out.VectorsAdded = n
		if err != nil {
			return out, fmt.Errorf("embed missing vectors: %w", err)
		}
	}

	slog.Info("consistency_repaired",
		slog.Int("lexical_removed", out.LexicalRemoved),
		slog.Int("lexical_added", out.LexicalAdded),
		slog.Int("vectors_removed", out.VectorsRemoved),
		slog.Int("vectors_added", out.VectorsAdded),
		slog.Int("graph_reloaded", out.GraphReloaded))
	return out, nil
}

// reindexLexical rewrites lexical rows per document so each carries its title.
func (c *ConsistencyChecker) reindexLexical(ctx context.Context, ids []string) (int, error) {
	cfg := c.coord.config
	chunks, err := cfg.Store.GetChunks(ctx, ids)
	if err != nil {
		return 0, err
	}
	byDoc := lo.GroupBy(chunks, func(ch *store.Chunk) string { return ch.DocumentID })
	docs, err := cfg.Store.GetDocuments(ctx, lo.Keys(byDoc))
	if err != nil {
		return 0, err
	}

	n := 0
	for docID, group := range byDoc {
		rep := &store.Replacement{Namespace: group[0].Namespace, Added: group}
		if d, ok := docs[docID]; ok {
			rep.Title = d.Title
		}
		if err := cfg.Lexical.Apply(ctx, rep); err != nil {
			return n, err
		}
		n += len(group)
	}
	return n, nil
}

// reloadGraph upserts stored vectors whose IDs are in ids into HNSW.
func (c *ConsistencyChecker) reloadGraph(ctx context.Context, ids []string) (int, error) {
	cfg := c.coord.config
	want := lo.SliceToMap(ids, func(id string) (string, struct{}) { return id, struct{}{} })
	n := 0
	for v, err := range cfg.Store.LoadVectors(ctx) {
		if err != nil {
			return n, err
		}
		if _, ok := want[v.ChunkID]; !ok {
			continue
		}
		if err := cfg.Vectors.Upsert(ctx, []string{v.ChunkID}, [][]float32{v.Vector}, v.Namespace); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
