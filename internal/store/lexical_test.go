package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lexicalFixture stores a small corpus and returns an index of the given
// backend kept in line with it.
func lexicalFixture(t *testing.T, backend string) LexicalIndex {
	t.Helper()
	ctx := context.Background()
	s := newTestStore(t)
	mustNamespace(t, s, "hr")
	mustNamespace(t, s, "eng")

	idx, err := NewLexicalIndex(backend, s, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	put := func(ns, uri string, contents ...string) {
		doc, chunks := buildDoc(ns, uri, CategoryGeneral, contents...)
		rep, err := s.PutDocument(ctx, doc, chunks, nil, "")
		require.NoError(t, err)
		if _, inStore := idx.(interface{ InStore() bool }); !inStore {
			require.NoError(t, idx.Apply(ctx, rep))
		}
	}

	put("hr", "devices.md",
		"Employees may not connect a flash drive to company laptops.",
		"Drive carefully when using the company car.",
	)
	put("hr", "leave.md", "Annual leave must be requested two weeks in advance.")
	put("eng", "deploy.md", "Deploy the service with the release pipeline. Flash the firmware first.")
	return idx
}

var lexicalBackends = []string{string(LexicalBackendSQLite), string(LexicalBackendBleve)}

func TestLexicalIndex_SingleTerm(t *testing.T) {
	for _, backend := range lexicalBackends {
		t.Run(backend, func(t *testing.T) {
			idx := lexicalFixture(t, backend)

			results, err := idx.Search(context.Background(), "leave", "hr", 10)

			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Greater(t, results[0].Score, 0.0)
			assert.Contains(t, results[0].MatchedTerms, "leave")
		})
	}
}

func TestLexicalIndex_PhraseRequiresAdjacency(t *testing.T) {
	for _, backend := range lexicalBackends {
		t.Run(backend, func(t *testing.T) {
			// Given: "flash" and "drive" adjacent in one chunk only
			idx := lexicalFixture(t, backend)

			// When: searching the quoted phrase
			results, err := idx.Search(context.Background(), `"flash drive"`, "hr", 10)

			// Then: only the chunk with the adjacent words matches
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.NotEmpty(t, results[0].MatchedTerms)
		})
	}
}

func TestLexicalIndex_MultiWordMatchesEither(t *testing.T) {
	for _, backend := range lexicalBackends {
		t.Run(backend, func(t *testing.T) {
			idx := lexicalFixture(t, backend)

			results, err := idx.Search(context.Background(), "flash drive", "hr", 10)

			require.NoError(t, err)
			assert.Len(t, results, 2)
		})
	}
}

func TestLexicalIndex_NamespaceFilter(t *testing.T) {
	for _, backend := range lexicalBackends {
		t.Run(backend, func(t *testing.T) {
			idx := lexicalFixture(t, backend)
			ctx := context.Background()

			hr, err := idx.Search(ctx, "flash", "hr", 10)
			require.NoError(t, err)
			eng, err := idx.Search(ctx, "flash", "eng", 10)
			require.NoError(t, err)
			all, err := idx.Search(ctx, "flash", "", 10)
			require.NoError(t, err)

			assert.Len(t, hr, 1)
			assert.Len(t, eng, 1)
			assert.Len(t, all, 2)
			assert.NotEqual(t, hr[0].ChunkID, eng[0].ChunkID)
		})
	}
}

func TestLexicalIndex_HostileQueriesNeverFail(t *testing.T) {
	queries := []string{
		"",
		"   ",
		`"unbalanced flash`,
		"flash AND OR NOT NEAR(",
		"drive* ^2 :col",
		"\x00\x01flash\u200b",
		`""`,
		"the a of",
	}
	for _, backend := range lexicalBackends {
		t.Run(backend, func(t *testing.T) {
			idx := lexicalFixture(t, backend)
			for _, q := range queries {
				_, err := idx.Search(context.Background(), q, "hr", 10)
				assert.NoError(t, err, "query %q", q)
			}
		})
	}
}

func TestLexicalIndex_ApplyRemovesChunks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustNamespace(t, s, "hr")
	idx, err := NewBleveLexicalIndex("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	doc, chunks := buildDoc("hr", "a.md", CategoryGeneral, "vacation days")
	rep, err := s.PutDocument(ctx, doc, chunks, nil, "")
	require.NoError(t, err)
	require.NoError(t, idx.Apply(ctx, rep))

	rep, err = s.DeleteDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.NoError(t, idx.Apply(ctx, rep))

	ids, err := idx.AllIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestNewLexicalIndex_UnknownBackend(t *testing.T) {
	_, err := NewLexicalIndex("lucene", nil, "")
	assert.Error(t, err)
}
