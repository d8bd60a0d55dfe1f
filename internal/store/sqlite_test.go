package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), DatabaseFile))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustNamespace(t *testing.T, s *SQLiteStore, id string) {
	t.Helper()
	require.NoError(t, s.CreateNamespace(context.Background(), &Namespace{ID: id}))
}

// buildDoc returns a document and chunks for contents under ns/uri.
func buildDoc(ns, uri string, category Category, contents ...string) (*Document, []*Chunk) {
	doc := &Document{
		ID:          DocumentID(ns, uri),
		Namespace:   ns,
		SourceType:  SourceFile,
		SourceURI:   uri,
		ContentHash: fmt.Sprintf("hash-%d", len(contents)),
		Title:       uri,
		Category:    category,
		IndexedAt:   time.Now().UTC(),
	}
	chunks := make([]*Chunk, len(contents))
	for i, c := range contents {
		chunks[i] = &Chunk{
			ID:         ChunkID(doc.ID, i, c),
			DocumentID: doc.ID,
			Namespace:  ns,
			Ordinal:    i,
			Content:    c,
			WordCount:  len(Tokenize(c)),
		}
	}
	return doc, chunks
}

func TestSQLiteStore_PutDocument_StoresChunks(t *testing.T) {
	// Given: a store with namespace "hr"
	ctx := context.Background()
	s := newTestStore(t)
	mustNamespace(t, s, "hr")

	// When: a document with two chunks is put
	doc, chunks := buildDoc("hr", "handbook.md", CategoryPolicy, "first chunk", "second chunk")
	rep, err := s.PutDocument(ctx, doc, chunks, nil, "")
	require.NoError(t, err)

	// Then: both chunks are retrievable and nothing was removed
	assert.Empty(t, rep.RemovedIDs)
	assert.Len(t, rep.Added, 2)

	got, err := s.GetChunk(ctx, chunks[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "second chunk", got.Content)
	assert.Equal(t, 1, got.Ordinal)

	stored, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, CategoryPolicy, stored.Category)
	assert.Equal(t, 2, stored.ChunkCount)
}

func TestSQLiteStore_PutDocument_ReplacesPreviousVersion(t *testing.T) {
	// Given: a document with three chunks
	ctx := context.Background()
	s := newTestStore(t)
	mustNamespace(t, s, "hr")
	doc, old := buildDoc("hr", "a.md", CategoryGeneral, "one", "two", "three")
	_, err := s.PutDocument(ctx, doc, old, nil, "")
	require.NoError(t, err)

	// When: a new version with one chunk is put
	doc2, fresh := buildDoc("hr", "a.md", CategoryGeneral, "replacement")
	rep, err := s.PutDocument(ctx, doc2, fresh, nil, "")
	require.NoError(t, err)

	// Then: the old chunk IDs are reported removed and are gone
	assert.ElementsMatch(t, []string{old[0].ID, old[1].ID, old[2].ID}, rep.RemovedIDs)
	for _, c := range old {
		_, err := s.GetChunk(ctx, c.ID)
		assert.ErrorIs(t, err, kberrors.ErrChunkNotFound)
	}

	var listed []*Chunk
	for c, err := range s.ListByNamespace(ctx, "hr") {
		require.NoError(t, err)
		listed = append(listed, c)
	}
	require.Len(t, listed, 1)
	assert.Equal(t, "replacement", listed[0].Content)

	ftsIDs, err := NewSQLiteLexicalIndex(s).AllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{fresh[0].ID}, ftsIDs)
}

func TestSQLiteStore_PutDocument_FailureLeavesPriorState(t *testing.T) {
	// Given: a stored document
	ctx := context.Background()
	s := newTestStore(t)
	mustNamespace(t, s, "hr")
	doc, chunks := buildDoc("hr", "a.md", CategoryGeneral, "kept one", "kept two")
	_, err := s.PutDocument(ctx, doc, chunks, nil, "")
	require.NoError(t, err)
	writes := s.WriteCount()

	// When: a replacement violates the (document, ordinal) constraint
	doc2, bad := buildDoc("hr", "a.md", CategoryGeneral, "new one", "new two")
	bad[1].Ordinal = 0
	_, err = s.PutDocument(ctx, doc2, bad, nil, "")

	// Then: a retryable storage error is returned
	require.Error(t, err)
	assert.ErrorIs(t, err, kberrors.ErrStorage)
	assert.True(t, kberrors.IsRetryable(err))

	// And: the previous chunks are untouched
	for _, c := range chunks {
		got, err := s.GetChunk(ctx, c.ID)
		require.NoError(t, err)
		assert.Contains(t, got.Content, "kept")
	}
	assert.Equal(t, writes, s.WriteCount())
}

func TestSQLiteStore_PutDocument_UnknownNamespace(t *testing.T) {
	s := newTestStore(t)
	doc, chunks := buildDoc("missing", "a.md", CategoryGeneral, "text")

	_, err := s.PutDocument(context.Background(), doc, chunks, nil, "")

	assert.ErrorIs(t, err, kberrors.ErrNamespaceNotFound)
}

func TestSQLiteStore_Vectors_RoundTrip(t *testing.T) {
	// Given: a document stored with vectors
	ctx := context.Background()
	s := newTestStore(t)
	mustNamespace(t, s, "eng")
	doc, chunks := buildDoc("eng", "v.md", CategoryReference, "alpha", "beta")
	vecs := [][]float32{{1, 0, 0.5}, {0, 1, -0.25}}
	_, err := s.PutDocument(ctx, doc, chunks, vecs, "static")
	require.NoError(t, err)

	// When: vectors are loaded back
	loaded := map[string][]float32{}
	for v, err := range s.LoadVectors(ctx) {
		require.NoError(t, err)
		assert.Equal(t, "eng", v.Namespace)
		loaded[v.ChunkID] = v.Vector
	}

	// Then: values survive the BLOB encoding exactly
	assert.Equal(t, vecs[0], loaded[chunks[0].ID])
	assert.Equal(t, vecs[1], loaded[chunks[1].ID])

	ids, err := s.VectorChunkIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestSQLiteStore_PutDocument_VectorLengthMismatch(t *testing.T) {
	s := newTestStore(t)
	mustNamespace(t, s, "eng")
	doc, chunks := buildDoc("eng", "v.md", CategoryGeneral, "alpha", "beta")

	_, err := s.PutDocument(context.Background(), doc, chunks, [][]float32{{1}}, "static")

	assert.Equal(t, kberrors.ErrCodeInvalidInput, kberrors.GetCode(err))
}

func TestSQLiteStore_DeleteNamespace_RemovesEverything(t *testing.T) {
	// Given: two namespaces with documents
	ctx := context.Background()
	s := newTestStore(t)
	mustNamespace(t, s, "hr")
	mustNamespace(t, s, "eng")
	hrDoc, hrChunks := buildDoc("hr", "h.md", CategoryPolicy, "leave policy")
	engDoc, engChunks := buildDoc("eng", "e.md", CategoryReference, "deploy guide")
	_, err := s.PutDocument(ctx, hrDoc, hrChunks, [][]float32{{1, 0}}, "m")
	require.NoError(t, err)
	_, err = s.PutDocument(ctx, engDoc, engChunks, [][]float32{{0, 1}}, "m")
	require.NoError(t, err)

	// When: "hr" is deleted
	rep, err := s.DeleteNamespace(ctx, "hr")
	require.NoError(t, err)

	// Then: its chunks, FTS rows and vectors are gone
	assert.Equal(t, []string{hrChunks[0].ID}, rep.RemovedIDs)
	_, err = s.GetNamespace(ctx, "hr")
	assert.ErrorIs(t, err, kberrors.ErrNamespaceNotFound)
	_, err = s.GetDocument(ctx, hrDoc.ID)
	assert.ErrorIs(t, err, kberrors.ErrDocumentNotFound)

	all, err := s.AllChunkIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{engChunks[0].ID: "eng"}, all)

	vecs, err := s.VectorChunkIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{engChunks[0].ID: "eng"}, vecs)

	fts, err := NewSQLiteLexicalIndex(s).AllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{engChunks[0].ID}, fts)
}

func TestSQLiteStore_CreateNamespace_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.CreateNamespace(ctx, &Namespace{ID: "hr", DisplayName: "Human Resources"}))
	require.NoError(t, s.CreateNamespace(ctx, &Namespace{ID: "hr", DisplayName: "Other"}))

	ns, err := s.GetNamespace(ctx, "hr")
	require.NoError(t, err)
	assert.Equal(t, "Human Resources", ns.DisplayName)
	assert.Equal(t, int64(1), s.WriteCount())
}

func TestSQLiteStore_CreateNamespace_RejectsBadSlug(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"", "HR", "a b", "x/y"} {
		err := s.CreateNamespace(context.Background(), &Namespace{ID: id})
		assert.ErrorIs(t, err, kberrors.ErrInvalidNamespace, "id %q", id)
	}
}

func TestSQLiteStore_NamespaceStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustNamespace(t, s, "hr")
	doc, chunks := buildDoc("hr", "a.md", CategoryGeneral, "one", "two")
	_, err := s.PutDocument(ctx, doc, chunks, [][]float32{{1}, {2}}, "m")
	require.NoError(t, err)

	st, err := s.NamespaceStats(ctx, "hr")
	require.NoError(t, err)

	assert.Equal(t, &NamespaceStats{Namespace: "hr", Documents: 1, Chunks: 2, Vectors: 2}, st)
}

func TestSQLiteStore_DeleteDocument(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustNamespace(t, s, "hr")
	doc, chunks := buildDoc("hr", "a.md", CategoryGeneral, "one")
	_, err := s.PutDocument(ctx, doc, chunks, nil, "")
	require.NoError(t, err)

	rep, err := s.DeleteDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{chunks[0].ID}, rep.RemovedIDs)

	_, err = s.DeleteDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, kberrors.ErrDocumentNotFound)
}

func TestSQLiteStore_State(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v, err := s.GetState(ctx, StateKeyEmbeddingModel)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetState(ctx, StateKeyEmbeddingModel, "static-256"))
	require.NoError(t, s.SetState(ctx, StateKeyEmbeddingModel, "nomic"))

	v, err = s.GetState(ctx, StateKeyEmbeddingModel)
	require.NoError(t, err)
	assert.Equal(t, "nomic", v)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	// Given: a store that is written and closed
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), DatabaseFile)
	s, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateNamespace(ctx, &Namespace{ID: "hr"}))
	doc, chunks := buildDoc("hr", "a.md", CategoryGeneral, "persisted")
	_, err = s.PutDocument(ctx, doc, chunks, nil, "")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// When: it is reopened (migrations run again)
	s, err = OpenSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	// Then: the chunk is still there
	got, err := s.GetChunk(ctx, chunks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Content)
}

func TestSQLiteStore_InMemory(t *testing.T) {
	s, err := OpenSQLiteStore("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.CreateNamespace(context.Background(), &Namespace{ID: "tmp"}))
	list, err := s.ListNamespaces(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "tmp", list[0].ID)
}
