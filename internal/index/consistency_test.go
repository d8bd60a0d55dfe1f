package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amankb/internal/embed"
	"github.com/Aman-CERP/amankb/internal/store"
)

func ingestFixture(t *testing.T, env *testEnv) []string {
	t.Helper()
	ctx := context.Background()
	_, err := env.coord.Ingest(ctx, testDoc("it-support", "vpn.md", "VPN", "procedure",
		"Install the VPN client from the portal.", "Sign in with your badge number."))
	require.NoError(t, err)
	_, err = env.coord.Ingest(ctx, testDoc("it-support", "usb.md", "USB", "policy",
		"Flash drives are blocked on managed laptops."))
	require.NoError(t, err)

	ids, err := env.store.AllChunkIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	return lo.Keys(ids)
}

func TestConsistencyChecker_CleanIndex(t *testing.T) {
	env := newTestEnv(t)
	ingestFixture(t, env)
	checker := NewConsistencyChecker(env.coord)

	result, err := checker.Check(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, result.Checked)
	assert.True(t, result.Consistent())
	assert.Empty(t, result.Counts())

	repaired, err := checker.Repair(context.Background(), result)
	require.NoError(t, err)
	assert.Equal(t, RepairResult{}, *repaired)
}

func TestConsistencyChecker_VectorDrift(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ids := ingestFixture(t, env)
	checker := NewConsistencyChecker(env.coord)

	// Given: an HNSW node with no chunk and a stored vector missing from HNSW
	orphan := make([]float32, testDims)
	orphan[0] = 1
	require.NoError(t, env.vectors.Upsert(ctx, []string{"ghost"}, [][]float32{orphan}, "it-support"))
	require.NoError(t, env.vectors.Delete(ctx, ids[:1]))

	// When: the stores are compared
	result, err := checker.Check(ctx)
	require.NoError(t, err)

	// Then: both issues are reported by type
	assert.False(t, result.Consistent())
	assert.Equal(t, map[string]int{"orphan_vector": 1, "missing_from_graph": 1}, result.Counts())

	repaired, err := checker.Repair(ctx, result)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired.VectorsRemoved)
	assert.Equal(t, 1, repaired.GraphReloaded)

	assert.False(t, env.vectors.Contains("ghost"))
	assert.True(t, env.vectors.Contains(ids[0]))

	after, err := checker.Check(ctx)
	require.NoError(t, err)
	assert.True(t, after.Consistent())
}

func TestConsistencyChecker_EmbedsMissingVectors(t *testing.T) {
	ctx := context.Background()

	// Given: a document ingested while the embedder was down
	env := newTestEnv(t, withEmbedder(failingEmbedder{embed.NewStaticEmbedderWithDims(testDims)}))
	res, err := env.coord.Ingest(ctx, testDoc("it-support", "vpn.md", "VPN", "procedure",
		"Install the VPN client.", "Sign in with your badge."))
	require.NoError(t, err)
	require.True(t, res.VectorsSkipped)

	result, err := NewConsistencyChecker(env.coord).Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"missing_vector": 2}, result.Counts())

	// When: repair runs once the embedder is back
	healthy, err := NewCoordinator(CoordinatorConfig{
		Store:   env.store,
		Lexical: env.lexical,
		Vectors: env.vectors,
		Batcher: embed.NewBatcher(embed.NewStaticEmbedderWithDims(testDims), 8, 2),
	})
	require.NoError(t, err)
	checker := NewConsistencyChecker(healthy)
	repaired, err := checker.Repair(ctx, result)

	// Then: every chunk has a stored vector and an HNSW node
	require.NoError(t, err)
	assert.Equal(t, 2, repaired.VectorsAdded)
	assert.Equal(t, 2, env.vectors.Count())

	stored, err := env.store.VectorChunkIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	after, err := checker.Check(ctx)
	require.NoError(t, err)
	assert.True(t, after.Consistent())
}

func TestConsistencyChecker_LexicalDrift(t *testing.T) {
	ctx := context.Background()
	bleve, err := store.NewBleveLexicalIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bleve.Close() })

	env := newTestEnv(t, withLexical(bleve))
	ids := ingestFixture(t, env)
	checker := NewConsistencyChecker(env.coord)

	// Given: one chunk dropped from the lexical index and one stale entry
	require.NoError(t, bleve.Apply(ctx, &store.Replacement{RemovedIDs: ids[:1]}))
	require.NoError(t, bleve.Apply(ctx, &store.Replacement{
		Namespace: "it-support",
		Added:     []*store.Chunk{{ID: "stale", DocumentID: "gone", Namespace: "it-support", Content: "old printer notes"}},
	}))

	result, err := checker.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"orphan_lexical": 1, "missing_lexical": 1}, result.Counts())

	// When
	repaired, err := checker.Repair(ctx, result)

	// Then
	require.NoError(t, err)
	assert.Equal(t, 1, repaired.LexicalRemoved)
	assert.Equal(t, 1, repaired.LexicalAdded)

	lexIDs, err := bleve.AllIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, lexIDs)
}

func TestConsistencyChecker_LexicalOnly(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenSQLiteStore(filepath.Join(t.TempDir(), store.DatabaseFile))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	coord, err := NewCoordinator(CoordinatorConfig{Store: s, Lexical: store.NewSQLiteLexicalIndex(s)})
	require.NoError(t, err)
	require.NoError(t, coord.CreateNamespace(ctx, "it-support", ""))
	_, err = coord.Ingest(ctx, testDoc("it-support", "a.md", "A", "", "printer on floor three"))
	require.NoError(t, err)

	// vector checks are skipped entirely without a vector store
	result, err := NewConsistencyChecker(coord).Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Checked)
	assert.True(t, result.Consistent())
}

func TestInconsistencyType_String(t *testing.T) {
	assert.Equal(t, "orphan_lexical", InconsistencyOrphanLexical.String())
	assert.Equal(t, "missing_from_graph", InconsistencyMissingFromGraph.String())
	assert.Equal(t, "unknown", InconsistencyType(99).String())
}
