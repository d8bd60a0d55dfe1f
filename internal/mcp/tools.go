package mcp

import (
	"github.com/Aman-CERP/amankb/internal/async"
)

// Tool names.
const (
	ToolSearch         = "search"
	ToolFeedback       = "feedback"
	ToolIndexStatus    = "index_status"
	ToolListNamespaces = "list_namespaces"
)

// SearchInput is the input schema of the search tool.
type SearchInput struct {
	Query     string `json:"query" jsonschema:"the question or keywords to search for"`
	Namespace string `json:"namespace,omitempty" jsonschema:"knowledge base namespace, e.g. it-support; empty searches every namespace"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchOutput is the structured output of the search tool.
type SearchOutput struct {
	Query      string               `json:"query"`
	Namespace  string               `json:"namespace,omitempty"`
	Intent     string               `json:"intent" jsonschema:"detected query intent: policy, procedure, reference or unknown"`
	Confidence float64              `json:"confidence"`
	Strategy   string               `json:"strategy" jsonschema:"lexical, hybrid or hybrid+rerank"`
	Degraded   bool                 `json:"degraded" jsonschema:"true when one retrieval path failed and results are partial"`
	Reason     string               `json:"reason,omitempty"`
	Results    []SearchResultOutput `json:"results"`
}

// SearchResultOutput is one ranked chunk.
type SearchResultOutput struct {
	Rank         int      `json:"rank"`
	ChunkID      string   `json:"chunk_id" jsonschema:"pass to the feedback tool to rate this result"`
	DocumentID   string   `json:"document_id"`
	Title        string   `json:"title,omitempty"`
	HeadingPath  string   `json:"heading_path,omitempty"`
	SourceURI    string   `json:"source_uri,omitempty"`
	Category     string   `json:"category"`
	Snippet      string   `json:"snippet"`
	Score        float64  `json:"score" jsonschema:"final relevance score"`
	MatchReason  string   `json:"match_reason,omitempty" jsonschema:"why this result matched"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

// FeedbackInput is the input schema of the feedback tool.
type FeedbackInput struct {
	TargetID string `json:"target_id" jsonschema:"chunk_id or document_id being rated"`
	Rating   string `json:"rating" jsonschema:"helpful, not_helpful, incorrect, or 1 to 5"`
	Comment  string `json:"comment,omitempty"`
}

// FeedbackOutput confirms a recorded rating.
type FeedbackOutput struct {
	ID       string  `json:"id"`
	TargetID string  `json:"target_id"`
	Rating   string  `json:"rating"`
	Quality  float64 `json:"quality" jsonschema:"current quality multiplier of the target"`
	Samples  int     `json:"samples"`
}

// IndexStatusInput has no parameters.
type IndexStatusInput struct{}

// IndexStatusOutput describes the knowledge base.
type IndexStatusOutput struct {
	Namespaces []NamespaceOutput            `json:"namespaces"`
	Documents  int                          `json:"documents"`
	Chunks     int                          `json:"chunks"`
	Vectors    int                          `json:"vectors"`
	Strategy   string                       `json:"strategy"`
	Degraded   string                       `json:"degraded,omitempty" jsonschema:"why vector search is off, if it is"`
	Embeddings EmbeddingInfo                `json:"embeddings"`
	Indexing   *async.IndexProgressSnapshot `json:"indexing,omitempty" jsonschema:"present while a background ingest runs"`
}

// EmbeddingInfo describes the active embedder.
type EmbeddingInfo struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Status     string `json:"status" jsonschema:"ready, unavailable or disabled"`
}

// ListNamespacesInput has no parameters.
type ListNamespacesInput struct{}

// ListNamespacesOutput lists the namespaces.
type ListNamespacesOutput struct {
	Namespaces []NamespaceOutput `json:"namespaces"`
}

// NamespaceOutput is one namespace with its counts.
type NamespaceOutput struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Documents   int    `json:"documents"`
	Chunks      int    `json:"chunks"`
	Vectors     int    `json:"vectors"`
}
