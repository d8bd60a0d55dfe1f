// Package store persists namespaces, documents and chunks in SQLite and
// provides the lexical (FTS5 or Bleve) and vector (HNSW) indices over them.
package store

import (
	"context"
	"fmt"
	"iter"
	"time"
)

// SourceType identifies what kind of source a document came from.
type SourceType string

const (
	SourceFile  SourceType = "file"
	SourceURL   SourceType = "url"
	SourceVideo SourceType = "video"
	SourceCode  SourceType = "code"
)

// Valid reports whether t is a known source type.
func (t SourceType) Valid() bool {
	switch t {
	case SourceFile, SourceURL, SourceVideo, SourceCode:
		return true
	}
	return false
}

// Category is the editorial class of a document. The category boost fires
// when it matches the query intent.
type Category string

const (
	CategoryPolicy    Category = "policy"
	CategoryProcedure Category = "procedure"
	CategoryReference Category = "reference"
	CategoryGeneral   Category = "general"
)

// ParseCategory maps free text to a Category; unknown values become general.
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategoryPolicy, CategoryProcedure, CategoryReference:
		return Category(s)
	}
	return CategoryGeneral
}

// State keys for the index_state table.
const (
	StateKeyEmbeddingModel     = "embedding_model"
	StateKeyEmbeddingDimension = "embedding_dimension"
)

// Namespace is a logical partition of the corpus.
type Namespace struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}

// NamespaceStats counts what a namespace owns.
type NamespaceStats struct {
	Namespace string
	Documents int
	Chunks    int
	Vectors   int
}

// Document is one ingested unit. (Namespace, SourceURI) is unique.
type Document struct {
	ID          string
	Namespace   string
	SourceType  SourceType
	SourceURI   string
	ContentHash string
	Title       string
	Category    Category
	IndexedAt   time.Time
	ChunkCount  int
}

// Chunk is a retrieval unit cut from a document.
type Chunk struct {
	ID          string
	DocumentID  string
	Namespace   string
	Ordinal     int
	HeadingPath string
	Content     string
	WordCount   int
}

// LexicalResult is one lexical hit.
type LexicalResult struct {
	ChunkID      string
	Score        float64
	MatchedTerms []string
}

// VectorResult is one vector hit.
type VectorResult struct {
	ID       string
	Distance float32 // cosine distance, 0 (identical) to 2 (opposite)
	Score    float32 // 1 - Distance/2
}

// StoredVector is a persisted embedding row.
type StoredVector struct {
	ChunkID   string
	Namespace string
	Vector    []float32
}

// ChunkStore is the system of record for documents and chunks.
type ChunkStore interface {
	// PutDocument atomically replaces every chunk (and vector) of doc.ID.
	// vectors is nil or aligned with chunks.
	PutDocument(ctx context.Context, doc *Document, chunks []*Chunk, vectors [][]float32, model string) (*Replacement, error)
	GetDocument(ctx context.Context, id string) (*Document, error)
	GetDocuments(ctx context.Context, ids []string) (map[string]*Document, error)
	GetChunk(ctx context.Context, id string) (*Chunk, error)
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)
	ChunkIDsByDocument(ctx context.Context, documentID string) ([]string, error)
	ListByNamespace(ctx context.Context, namespace string) iter.Seq2[*Chunk, error]
	DeleteDocument(ctx context.Context, id string) (*Replacement, error)

	CreateNamespace(ctx context.Context, ns *Namespace) error
	GetNamespace(ctx context.Context, id string) (*Namespace, error)
	ListNamespaces(ctx context.Context) ([]*Namespace, error)
	DeleteNamespace(ctx context.Context, id string) (*Replacement, error)
	NamespaceStats(ctx context.Context, id string) (*NamespaceStats, error)

	Close() error
}

// Replacement describes a committed write so that out-of-transaction indices
// (HNSW, Bleve) can be brought in line.
type Replacement struct {
	Namespace  string
	Title      string // title of the document Added belongs to
	RemovedIDs []string
	Added      []*Chunk
	Vectors    [][]float32
}

// LexicalIndex is full-text search over chunk content.
type LexicalIndex interface {
	// Search returns chunks ranked by BM25 relevance, best first. An empty
	// namespace searches all namespaces. The query is sanitized, never rejected.
	Search(ctx context.Context, query, namespace string, limit int) ([]*LexicalResult, error)

	// Apply mirrors a committed Replacement into the index.
	Apply(ctx context.Context, r *Replacement) error

	// AllIDs returns every indexed chunk ID (for consistency checks).
	AllIDs(ctx context.Context) ([]string, error)

	Close() error
}

// VectorStore is approximate nearest-neighbor search over chunk embeddings.
type VectorStore interface {
	Upsert(ctx context.Context, ids []string, vectors [][]float32, namespace string) error
	// Apply mirrors a committed Replacement under one lock.
	Apply(ctx context.Context, r *Replacement) error
	Delete(ctx context.Context, ids []string) error
	// Search returns up to limit nearest chunks within namespace ("" = all).
	Search(ctx context.Context, query []float32, namespace string, limit int) ([]*VectorResult, error)
	AllIDs() []string
	Count() int
	Dimensions() int
	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'amankb reindex --vectors')", e.Expected, e.Got)
}
