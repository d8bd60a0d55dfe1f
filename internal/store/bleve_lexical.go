package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

const (
	// ChunkTokenizerName is the registered name of the chunk tokenizer.
	ChunkTokenizerName = "amankb_chunk_tokenizer"

	// ChunkAnalyzerName is the analyzer applied to chunk content.
	ChunkAnalyzerName = "amankb_chunk_analyzer"

	bleveFieldContent   = "content"
	bleveFieldNamespace = "namespace"
)

func init() {
	_ = registry.RegisterTokenizer(ChunkTokenizerName, chunkTokenizerConstructor)
}

// BleveLexicalIndex implements LexicalIndex on a Bleve index kept beside the
// chunk store. It is brought in line with each committed Replacement.
type BleveLexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ LexicalIndex = (*BleveLexicalIndex)(nil)

type bleveChunk struct {
	Content   string `json:"content"`
	Namespace string `json:"namespace"`
}

// validateBleveIntegrity checks index_meta.json before opening.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isBleveCorruption(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveLexicalIndex opens or creates a Bleve index at path. An empty path
// creates an in-memory index. A corrupted index is cleared and recreated; the
// consistency checker then repopulates it from the chunk store.
func NewBleveLexicalIndex(path string) (*BleveLexicalIndex, error) {
	m, err := newChunkMapping()
	if err != nil {
		return nil, kberrors.InternalError("failed to create index mapping", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}

		if validErr := validateBleveIntegrity(path); validErr != nil {
			slog.Warn("lexical_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, kberrors.New(kberrors.ErrCodeCorruptIndex,
					"lexical index corrupted and cannot be removed", removeErr)
			}
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, m)
		} else if err != nil && isBleveCorruption(err) {
			slog.Warn("lexical_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, kberrors.New(kberrors.ErrCodeCorruptIndex,
					"lexical index corrupted and cannot be removed", removeErr)
			}
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, kberrors.StorageError("failed to open lexical index", err)
	}

	return &BleveLexicalIndex{index: idx, path: path}, nil
}

func newChunkMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	if err := m.AddCustomAnalyzer(ChunkAnalyzerName, map[string]any{
		"type":      custom.Name,
		"tokenizer": ChunkTokenizerName,
	}); err != nil {
		return nil, err
	}

	content := bleve.NewTextFieldMapping()
	content.Analyzer = ChunkAnalyzerName
	content.Store = false
	content.IncludeTermVectors = true

	ns := bleve.NewKeywordFieldMapping()
	ns.Store = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(bleveFieldContent, content)
	doc.AddFieldMappingsAt(bleveFieldNamespace, ns)

	m.DefaultMapping = doc
	m.DefaultAnalyzer = ChunkAnalyzerName
	return m, nil
}

// Search runs phrases as match-phrase queries and loose terms as match
// queries, OR-combined and restricted to namespace when given.
func (b *BleveLexicalIndex) Search(ctx context.Context, queryStr, namespace string, limit int) ([]*LexicalResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, kberrors.IndexUnavailable("lexical", fmt.Errorf("index is closed"))
	}

	parsed := ParseQuery(queryStr)
	if parsed.Empty() || limit <= 0 {
		return []*LexicalResult{}, nil
	}

	var clauses []query.Query
	for _, ph := range parsed.Phrases {
		q := bleve.NewMatchPhraseQuery(strings.Join(ph, " "))
		q.SetField(bleveFieldContent)
		clauses = append(clauses, q)
	}
	for _, t := range parsed.Terms {
		q := bleve.NewMatchQuery(t)
		q.SetField(bleveFieldContent)
		clauses = append(clauses, q)
	}

	var q query.Query = bleve.NewDisjunctionQuery(clauses...)
	if namespace != "" {
		nsq := bleve.NewTermQuery(namespace)
		nsq.SetField(bleveFieldNamespace)
		q = bleve.NewConjunctionQuery(q, nsq)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.IncludeLocations = true
	req.SortBy([]string{"-_score", "_id"})

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, kberrors.StorageError("lexical search", err)
	}

	out := make([]*LexicalResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, &LexicalResult{
			ChunkID:      hit.ID,
			Score:        hit.Score,
			MatchedTerms: hitTerms(hit),
		})
	}
	return out, nil
}

func hitTerms(hit *search.DocumentMatch) []string {
	var terms []string
	for term := range hit.Locations[bleveFieldContent] {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// Apply deletes removed chunks and indexes added ones in one batch.
func (b *BleveLexicalIndex) Apply(ctx context.Context, r *Replacement) error {
	if r == nil || (len(r.RemovedIDs) == 0 && len(r.Added) == 0) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return kberrors.IndexUnavailable("lexical", fmt.Errorf("index is closed"))
	}

	batch := b.index.NewBatch()
	for _, id := range r.RemovedIDs {
		batch.Delete(id)
	}
	for _, c := range r.Added {
		doc := bleveChunk{
			Content:   r.Title + "\n" + c.HeadingPath + "\n" + c.Content,
			Namespace: c.Namespace,
		}
		if err := batch.Index(c.ID, doc); err != nil {
			return kberrors.StorageError("index chunk", err).WithDetail("chunk", c.ID)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return kberrors.StorageError("apply lexical batch", err)
	}
	return nil
}

// AllIDs returns every indexed chunk ID.
func (b *BleveLexicalIndex) AllIDs(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, kberrors.IndexUnavailable("lexical", fmt.Errorf("index is closed"))
	}

	count, err := b.index.DocCount()
	if err != nil {
		return nil, kberrors.StorageError("count lexical index", err)
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	req.Fields = []string{}

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, kberrors.StorageError("list lexical ids", err)
	}
	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes the index. Safe to call twice.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

func chunkTokenizerConstructor(config map[string]any, cache *registry.Cache) (analysis.Tokenizer, error) {
	return chunkTokenizer{}, nil
}

// chunkTokenizer emits the same tokens as Tokenize with sequential positions
// so phrase queries see adjacency.
type chunkTokenizer struct{}

func (chunkTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	lower := strings.ToLower(text)
	tokens := Tokenize(text)

	stream := make(analysis.TokenStream, 0, len(tokens))
	offset := 0
	for i, tok := range tokens {
		start := strings.Index(lower[offset:], tok)
		if start < 0 {
			start = offset
		} else {
			start += offset
		}
		end := min(start+len(tok), len(text))
		stream = append(stream, &analysis.Token{
			Term:     []byte(tok),
			Start:    start,
			End:      end,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
		offset = end
	}
	return stream
}
