package search

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amankb/internal/embed"
	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/store"
	"github.com/Aman-CERP/amankb/internal/telemetry"
)

const testDims = 64

// corpus bundles a real store with both indices.
type corpus struct {
	store    *store.SQLiteStore
	lexical  *store.SQLiteLexicalIndex
	vectors  *store.HNSWStore
	embedder embed.Embedder
}

func newCorpus(t *testing.T) *corpus {
	t.Helper()
	s, err := store.OpenSQLiteStore(filepath.Join(t.TempDir(), store.DatabaseFile))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	vs, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(testDims))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })

	return &corpus{
		store:    s,
		lexical:  store.NewSQLiteLexicalIndex(s),
		vectors:  vs,
		embedder: embed.NewStaticEmbedderWithDims(testDims),
	}
}

func (c *corpus) namespace(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, c.store.CreateNamespace(context.Background(), &store.Namespace{ID: id}))
}

// add indexes one document with one chunk per content string.
func (c *corpus) add(t *testing.T, ns, uri, title string, category store.Category, contents ...string) *store.Document {
	t.Helper()
	ctx := context.Background()
	doc := &store.Document{
		ID:          store.DocumentID(ns, uri),
		Namespace:   ns,
		SourceType:  store.SourceFile,
		SourceURI:   uri,
		ContentHash: uri,
		Title:       title,
		Category:    category,
		IndexedAt:   time.Now().UTC(),
	}
	chunks := make([]*store.Chunk, len(contents))
	for i, text := range contents {
		chunks[i] = &store.Chunk{
			ID:         store.ChunkID(doc.ID, i, text),
			DocumentID: doc.ID,
			Namespace:  ns,
			Ordinal:    i,
			Content:    text,
			WordCount:  len(store.Tokenize(text)),
		}
	}
	vecs, err := c.embedder.EmbedBatch(ctx, contents)
	require.NoError(t, err)

	rep, err := c.store.PutDocument(ctx, doc, chunks, vecs, c.embedder.ModelName())
	require.NoError(t, err)
	require.NoError(t, c.vectors.Apply(ctx, rep))
	return doc
}

func (c *corpus) engine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	opts = append([]EngineOption{WithVectorSearch(c.vectors, c.embedder)}, opts...)
	e, err := NewEngine(c.lexical, c.store, DefaultConfig(), opts...)
	require.NoError(t, err)
	return e
}

// seedIT loads the removable-media corpus used by several tests.
func seedIT(t *testing.T, c *corpus) (policy, procedure, reference *store.Document) {
	t.Helper()
	c.namespace(t, "it")
	policy = c.add(t, "it", "security/removable-media.md", "Flash Drive and USB Storage", store.CategoryPolicy,
		"Flash drives and other USB storage devices are not permitted on company laptops. Exceptions require written approval from IT security.")
	procedure = c.add(t, "it", "howto/format-drive.md", "Formatting a Drive", store.CategoryProcedure,
		"To format a flash drive, insert the drive, open Disk Utility, select the drive and choose Erase.")
	reference = c.add(t, "it", "glossary/usb.md", "USB", store.CategoryReference,
		"USB (Universal Serial Bus) is a standard for connecting peripherals such as keyboards and flash drives.")
	return policy, procedure, reference
}

func TestEngine_PolicyQueryRanksPolicyFirst(t *testing.T) {
	// Given: a policy, a procedure and a reference document about flash drives
	c := newCorpus(t)
	policy, _, _ := seedIT(t, c)
	e := c.engine(t)

	// When: asking a permission question
	resp, err := e.Search(context.Background(), Query{Text: "Can I use a flash drive on my company laptop?", Namespace: "it"})

	// Then: the query is classified as policy and the policy document leads
	require.NoError(t, err)
	assert.Equal(t, IntentPolicy, resp.Intent)
	assert.GreaterOrEqual(t, resp.Confidence, DefaultPolicyThreshold)
	assert.Equal(t, StrategyHybrid, resp.Strategy)
	assert.False(t, resp.Degraded)
	require.NotEmpty(t, resp.Results)

	top := resp.Results[0]
	assert.Equal(t, policy.ID, top.DocumentID)
	assert.Equal(t, store.CategoryPolicy, top.Category)
	assert.Equal(t, "Flash Drive and USB Storage", top.Title)
	assert.InDelta(t, 1.0, top.FinalScore, 1e-9)
	assert.Greater(t, top.Boost, 1.0)
	assert.Equal(t, 1, top.Rank)
	assert.NotEmpty(t, top.Snippet)
}

func TestEngine_PolicyOutranksInstallProcedures(t *testing.T) {
	// Given: one removable-media policy among several software installation procedures
	c := newCorpus(t)
	c.namespace(t, "it")
	policy := c.add(t, "it", "security/removable-media.md", "Removable Media", store.CategoryPolicy,
		"Using a flash drive or other USB storage on company devices is not allowed without written approval from IT security.")
	c.add(t, "it", "howto/install-vpn.md", "Installing the VPN Client", store.CategoryProcedure,
		"To install the VPN client, download the installer from the portal, run it and use your company credentials.")
	c.add(t, "it", "howto/install-office.md", "Installing Office", store.CategoryProcedure,
		"Use the software center to install Office. If the install fails, open a ticket with the service desk.")
	c.add(t, "it", "howto/install-drivers.md", "Installing Printer Drivers", store.CategoryProcedure,
		"Open the software center, search for your printer model and use the install button to add the driver.")
	c.add(t, "it", "howto/install-browser.md", "Installing a Browser", store.CategoryProcedure,
		"You can use the software center to install an approved browser. Restart when the install completes.")
	e := c.engine(t)

	// When: asking the plain permission question
	resp, err := e.Search(context.Background(), Query{Text: "Can I use a flash drive?", Namespace: "it"})

	// Then: the policy leads with the confidence-scaled boost
	require.NoError(t, err)
	assert.Equal(t, IntentPolicy, resp.Intent)
	assert.InDelta(t, 0.7, resp.Confidence, 1e-9)
	require.NotEmpty(t, resp.Results)
	top := resp.Results[0]
	assert.Equal(t, policy.ID, top.DocumentID)
	assert.InDelta(t, 1+DefaultBoostFactor*0.7, top.Boost, 1e-9)
	for _, r := range resp.Results[1:] {
		assert.Equal(t, store.CategoryProcedure, r.Category)
		assert.Equal(t, 1.0, r.Boost)
	}
}

func TestEngine_WidensFetchWhenDedupShrinksResults(t *testing.T) {
	// Given: five copies of one answer that outrank three distinct ones
	c := newCorpus(t)
	c.namespace(t, "facilities")
	for i := range 5 {
		c.add(t, "facilities", fmt.Sprintf("copies/toner-%d.md", i), "Toner", store.CategoryProcedure,
			"Printer toner: replace printer toner cartridges through the facilities desk.")
	}
	c.add(t, "facilities", "floor3.md", "Floor 3", store.CategoryReference,
		"Spare toner for the third floor printer is stored in room 3B.")
	c.add(t, "facilities", "leaks.md", "Leaks", store.CategoryProcedure,
		"Report toner leaks from a printer to building services immediately.")
	c.add(t, "facilities", "colour.md", "Colour", store.CategoryPolicy,
		"Colour printer toner orders need manager approval.")

	// And: a lexical-only engine asking each index for exactly limit candidates
	cfg := DefaultConfig()
	cfg.Overfetch = 1
	e, err := NewEngine(c.lexical, c.store, cfg)
	require.NoError(t, err)

	// When: searching with limit 3
	resp, err := e.Search(context.Background(), Query{Text: "printer toner", Namespace: "facilities", Limit: 3})

	// Then: the result still fills the limit with distinct chunks
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	contents := map[string]bool{}
	for _, r := range resp.Results {
		contents[r.Content] = true
	}
	assert.Len(t, contents, 3)
	assert.Greater(t, resp.Candidates.Lexical, 3)
}

func TestEngine_ScoresAreNormalizedAndOrdered(t *testing.T) {
	c := newCorpus(t)
	seedIT(t, c)
	e := c.engine(t)

	resp, err := e.Search(context.Background(), Query{Text: "flash drive", Namespace: "it"})

	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	for i, r := range resp.Results {
		assert.Equal(t, i+1, r.Rank)
		assert.LessOrEqual(t, r.FinalScore, 1.0)
		assert.Equal(t, r.FinalScore, r.Scores.Final)
		if i > 0 {
			assert.LessOrEqual(t, r.FinalScore, resp.Results[i-1].FinalScore)
		}
	}
}

func TestEngine_BlankQueryIsRejected(t *testing.T) {
	e := newCorpus(t).engine(t)

	_, err := e.Search(context.Background(), Query{Text: "   "})

	require.Error(t, err)
	assert.Equal(t, kberrors.ErrCodeMalformedQuery, kberrors.GetCode(err))
}

func TestEngine_UnknownNamespace(t *testing.T) {
	c := newCorpus(t)
	seedIT(t, c)

	resp, err := c.engine(t).Search(context.Background(), Query{Text: "flash drive", Namespace: "finance"})

	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, ReasonNamespaceNotFound, resp.Reason)
}

func TestEngine_NotYetIndexed(t *testing.T) {
	// Given: a namespace with no documents
	c := newCorpus(t)
	c.namespace(t, "hr")
	e := c.engine(t)

	for _, ns := range []string{"hr", ""} {
		// When: searching it (or everything)
		resp, err := e.Search(context.Background(), Query{Text: "vacation days", Namespace: ns})

		// Then: the response is empty with a reason, not an error
		require.NoError(t, err)
		assert.Empty(t, resp.Results)
		assert.Equal(t, ReasonNotIndexed, resp.Reason)
	}
}

func TestEngine_PunctuationOnlyQuery(t *testing.T) {
	c := newCorpus(t)
	seedIT(t, c)

	resp, err := c.engine(t).Search(context.Background(), Query{Text: `"*()"`})

	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, ReasonEmptyQuery, resp.Reason)
}

func TestEngine_NamespaceIsolation(t *testing.T) {
	// Given: near-identical content in two namespaces
	c := newCorpus(t)
	c.namespace(t, "hr")
	c.namespace(t, "it")
	hrDoc := c.add(t, "hr", "leave.md", "Leave", store.CategoryPolicy, "Employees accrue vacation days monthly.")
	c.add(t, "it", "leave.md", "Leave", store.CategoryPolicy, "Contractors accrue vacation days weekly.")
	e := c.engine(t)

	// When: searching only hr
	resp, err := e.Search(context.Background(), Query{Text: "vacation days", Namespace: "hr"})

	// Then: no result from it appears
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		assert.Equal(t, "hr", r.Namespace)
		assert.Equal(t, hrDoc.ID, r.DocumentID)
	}
}

func TestEngine_LimitIsHonored(t *testing.T) {
	c := newCorpus(t)
	c.namespace(t, "kb")
	for _, uri := range []string{"a.md", "b.md", "c.md", "d.md"} {
		c.add(t, "kb", uri, uri, store.CategoryGeneral, "printer setup guide for "+uri+" floor "+uri)
	}

	resp, err := c.engine(t).Search(context.Background(), Query{Text: "printer setup", Namespace: "kb", Limit: 2})

	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
}

func TestEngine_DuplicateContentIsCollapsed(t *testing.T) {
	c := newCorpus(t)
	c.namespace(t, "kb")
	c.add(t, "kb", "one.md", "One", store.CategoryGeneral, "Reset your password from the account settings page.")
	c.add(t, "kb", "two.md", "Two", store.CategoryGeneral, "Reset your password from the account settings page!")

	resp, err := c.engine(t).Search(context.Background(), Query{Text: "reset password", Namespace: "kb"})

	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
	assert.Equal(t, 2, resp.Candidates.Fused)
	assert.Equal(t, 1, resp.Candidates.Deduped)
}

// failingVector is a vector store whose searches fail or hang.
type failingVector struct {
	*store.HNSWStore
	err  error
	hang bool
}

func (f *failingVector) Search(ctx context.Context, _ []float32, _ string, _ int) ([]*store.VectorResult, error) {
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, f.err
}

// failingLexical is a lexical index whose searches fail.
type failingLexical struct {
	store.LexicalIndex
	err error
}

func (f *failingLexical) Search(context.Context, string, string, int) ([]*store.LexicalResult, error) {
	return nil, f.err
}

func TestEngine_VectorFailureDegradesToLexical(t *testing.T) {
	// Given: a vector index that errors
	c := newCorpus(t)
	seedIT(t, c)
	vs := &failingVector{HNSWStore: c.vectors, err: errors.New("graph corrupted")}
	e, err := NewEngine(c.lexical, c.store, DefaultConfig(), WithVectorSearch(vs, c.embedder))
	require.NoError(t, err)

	// When: searching
	resp, err := e.Search(context.Background(), Query{Text: "flash drive", Namespace: "it"})

	// Then: lexical results are returned and the response is flagged degraded
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, ReasonVectorUnavailable, resp.Reason)
	assert.NotEmpty(t, resp.Results)
	assert.Zero(t, resp.Candidates.Vector)
	for _, r := range resp.Results {
		assert.Zero(t, r.VectorRank)
	}
}

func TestEngine_VectorTimeoutDegrades(t *testing.T) {
	// Given: a vector index that never answers and a short timeout
	c := newCorpus(t)
	seedIT(t, c)
	cfg := DefaultConfig()
	cfg.VectorTimeout = 50 * time.Millisecond
	vs := &failingVector{HNSWStore: c.vectors, hang: true}
	e, err := NewEngine(c.lexical, c.store, cfg, WithVectorSearch(vs, c.embedder))
	require.NoError(t, err)

	// When: searching
	start := time.Now()
	resp, err := e.Search(context.Background(), Query{Text: "flash drive", Namespace: "it"})

	// Then: the search returns promptly with lexical results
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, resp.Degraded)
	assert.NotEmpty(t, resp.Results)
}

func TestEngine_DimensionMismatchDegrades(t *testing.T) {
	c := newCorpus(t)
	seedIT(t, c)
	e, err := NewEngine(c.lexical, c.store, DefaultConfig(),
		WithVectorSearch(c.vectors, embed.NewStaticEmbedderWithDims(32)))
	require.NoError(t, err)

	resp, err := e.Search(context.Background(), Query{Text: "flash drive", Namespace: "it"})

	require.NoError(t, err)
	assert.True(t, resp.Degraded)
}

func TestEngine_LexicalFailureUsesVectors(t *testing.T) {
	c := newCorpus(t)
	seedIT(t, c)
	lex := &failingLexical{LexicalIndex: c.lexical, err: errors.New("fts corrupted")}
	e, err := NewEngine(lex, c.store, DefaultConfig(), WithVectorSearch(c.vectors, c.embedder))
	require.NoError(t, err)

	resp, err := e.Search(context.Background(), Query{Text: "flash drive", Namespace: "it"})

	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, ReasonLexicalFailed, resp.Reason)
	assert.NotEmpty(t, resp.Results)
}

func TestEngine_AllIndicesFail(t *testing.T) {
	c := newCorpus(t)
	seedIT(t, c)
	lex := &failingLexical{LexicalIndex: c.lexical, err: errors.New("fts corrupted")}
	vs := &failingVector{HNSWStore: c.vectors, err: errors.New("graph corrupted")}

	tests := []struct {
		name string
		opts []EngineOption
	}{
		{"lexical only", nil},
		{"hybrid", []EngineOption{WithVectorSearch(vs, c.embedder)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEngine(lex, c.store, DefaultConfig(), tt.opts...)
			require.NoError(t, err)

			_, err = e.Search(context.Background(), Query{Text: "flash drive", Namespace: "it"})

			require.Error(t, err)
			assert.Equal(t, kberrors.ErrCodeIndexUnavailable, kberrors.GetCode(err))
		})
	}
}

func TestEngine_Strategy(t *testing.T) {
	c := newCorpus(t)

	lexOnly, err := NewEngine(c.lexical, c.store, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, StrategyLexical, lexOnly.Strategy())

	halfVector, err := NewEngine(c.lexical, c.store, DefaultConfig(), WithVectorSearch(c.vectors, nil))
	require.NoError(t, err)
	assert.Equal(t, StrategyLexical, halfVector.Strategy())

	assert.Equal(t, StrategyHybrid, c.engine(t).Strategy())
	assert.Equal(t, StrategyHybridRerank, c.engine(t, WithReranker(&TermOverlapReranker{})).Strategy())
}

func TestNewEngine_NilDependencies(t *testing.T) {
	c := newCorpus(t)

	_, err := NewEngine(nil, c.store, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewEngine(c.lexical, nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestEngine_RerankFailurePassesThrough(t *testing.T) {
	// Given: a reranker that always fails
	c := newCorpus(t)
	seedIT(t, c)
	metrics := telemetry.NewMetrics()
	plain := c.engine(t)
	broken := c.engine(t, WithReranker(&scriptedReranker{err: errors.New("oom")}), WithMetrics(metrics))

	// When: searching with and without it
	want, err := plain.Search(context.Background(), Query{Text: "flash drive", Namespace: "it"})
	require.NoError(t, err)
	got, err := broken.Search(context.Background(), Query{Text: "flash drive", Namespace: "it"})
	require.NoError(t, err)

	// Then: the order is the fused order and the failure is counted
	assert.Equal(t, ids(want.Results), ids(got.Results))
	assert.Equal(t, StrategyHybridRerank, got.Strategy)
	assert.Equal(t, int64(1), metrics.Queries().Snapshot().TotalQueries)
}

// staticQuality returns fixed multipliers.
type staticQuality map[string]float64

func (q staticQuality) QualityFor(_ context.Context, ids []string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, id := range ids {
		if m, ok := q[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func TestEngine_QualityMultiplierReordersEvenMatches(t *testing.T) {
	// Given: two equally relevant documents, the second one favored by feedback
	c := newCorpus(t)
	c.namespace(t, "kb")
	c.add(t, "kb", "a.md", "A", store.CategoryGeneral, "Badge access is renewed yearly.")
	b := c.add(t, "kb", "b.md", "B", store.CategoryGeneral, "Badge access is renewed annually.")

	e, err := NewEngine(c.lexical, c.store, DefaultConfig(), WithQuality(staticQuality{b.ID: 1.5}))
	require.NoError(t, err)

	// When: searching
	resp, err := e.Search(context.Background(), Query{Text: "badge access", Namespace: "kb"})

	// Then: the favored document leads with its multiplier recorded
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, b.ID, resp.Results[0].DocumentID)
	assert.Equal(t, 1.5, resp.Results[0].Quality)
}

func TestEngine_QualityIsClamped(t *testing.T) {
	c := newCorpus(t)
	c.namespace(t, "kb")
	doc := c.add(t, "kb", "a.md", "A", store.CategoryGeneral, "Badge access is renewed yearly.")
	chunkIDs, err := c.store.ChunkIDsByDocument(context.Background(), doc.ID)
	require.NoError(t, err)

	e, err := NewEngine(c.lexical, c.store, DefaultConfig(),
		WithQuality(staticQuality{doc.ID: 1.5, chunkIDs[0]: 1.5}))
	require.NoError(t, err)

	resp, err := e.Search(context.Background(), Query{Text: "badge", Namespace: "kb"})

	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 1.5, resp.Results[0].Quality)
}

func TestEngine_WeightOverride(t *testing.T) {
	c := newCorpus(t)
	seedIT(t, c)

	resp, err := c.engine(t).Search(context.Background(), Query{
		Text: "flash drive", Namespace: "it", Weights: &Weights{Lexical: 1, Vector: 0},
	})

	require.NoError(t, err)
	assert.Equal(t, Weights{Lexical: 1, Vector: 0}, resp.Weights)
}

func TestEngine_RecordsMetrics(t *testing.T) {
	c := newCorpus(t)
	seedIT(t, c)
	metrics := telemetry.NewMetrics()
	e := c.engine(t, WithMetrics(metrics))

	_, err := e.Search(context.Background(), Query{Text: "flash drive", Namespace: "it"})
	require.NoError(t, err)
	_, err = e.Search(context.Background(), Query{Text: "zebra migration", Namespace: "it"})
	require.NoError(t, err)

	snap := metrics.Queries().Snapshot()
	assert.Equal(t, int64(2), snap.TotalQueries)
}

func TestMakeSnippet(t *testing.T) {
	short := "Short content."
	assert.Equal(t, short, makeSnippet(short, nil, 50))

	long := "Intro text that goes on for a while before the interesting part. " +
		"The vacation policy grants twenty days. Closing remarks follow here at length."
	s := makeSnippet(long, []string{"vacation"}, 40)
	assert.Contains(t, s, "vacation")
	assert.True(t, len([]rune(s)) <= 46)
}
