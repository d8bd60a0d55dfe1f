package index

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/Aman-CERP/amankb/internal/chunk"
	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/store"
)

// IngestedDocument is the already-chunked unit handed over by ingestion
// adapters (file, URL, video and code loaders live outside this module).
type IngestedDocument struct {
	Namespace   string          `json:"namespace"`
	SourceType  string          `json:"source_type"`
	SourceURI   string          `json:"source_uri"`
	ContentHash string          `json:"content_hash,omitempty"`
	Title       string          `json:"title,omitempty"`
	Category    string          `json:"category,omitempty"`
	Chunks      []IngestedChunk `json:"chunks"`
}

// IngestedChunk is one pre-split piece of an IngestedDocument.
type IngestedChunk struct {
	Ordinal     int    `json:"ordinal"`
	HeadingPath string `json:"heading_path,omitempty"`
	Text        string `json:"text"`
	WordCount   int    `json:"word_count,omitempty"`
}

// Validate checks the fields the store relies on.
func (d *IngestedDocument) Validate() error {
	if err := store.ValidateNamespace(d.Namespace); err != nil {
		return err
	}
	if strings.TrimSpace(d.SourceURI) == "" {
		return kberrors.ValidationError("source_uri is required", nil).
			WithDetail("namespace", d.Namespace)
	}
	if d.SourceType != "" && !store.SourceType(d.SourceType).Valid() {
		return kberrors.ValidationError(fmt.Sprintf("unknown source_type %q", d.SourceType), nil).
			WithDetail("source_uri", d.SourceURI).
			WithSuggestion("Use one of: file, url, video, code")
	}
	if !lo.SomeBy(d.Chunks, func(c IngestedChunk) bool { return strings.TrimSpace(c.Text) != "" }) {
		return kberrors.ValidationError("document has no chunk text", nil).
			WithDetail("source_uri", d.SourceURI)
	}
	return nil
}

// ComputeContentHash hashes what ends up in the index: title, category and
// every chunk's heading path and text in ordinal order.
func (d *IngestedDocument) ComputeContentHash() string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	write(d.Title)
	write(d.Category)
	for _, c := range d.sortedChunks() {
		write(c.HeadingPath)
		write(strings.TrimSpace(c.Text))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Hash returns ContentHash, computing it when the adapter left it blank.
func (d *IngestedDocument) Hash() string {
	if d.ContentHash != "" {
		return d.ContentHash
	}
	return d.ComputeContentHash()
}

func (d *IngestedDocument) sortedChunks() []IngestedChunk {
	out := make([]IngestedChunk, len(d.Chunks))
	copy(out, d.Chunks)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}

// cappedChunks orders the chunks, drops blanks and re-splits anything over
// maxTokens. Ordinals come back contiguous from 0.
func (d *IngestedDocument) cappedChunks(maxTokens int) []*chunk.Chunk {
	in := lo.FilterMap(d.sortedChunks(), func(c IngestedChunk, _ int) (*chunk.Chunk, bool) {
		text := strings.TrimSpace(c.Text)
		return &chunk.Chunk{
			Ordinal:     c.Ordinal,
			HeadingPath: c.HeadingPath,
			Text:        text,
			WordCount:   chunk.EstimateTokens(text),
		}, text != ""
	})
	return chunk.EnforceCap(in, maxTokens)
}

// FromChunked converts the output of a raw-file chunker into an
// IngestedDocument. Front matter may override the title and category.
func FromChunked(namespace, sourceURI string, doc *chunk.Document) *IngestedDocument {
	out := &IngestedDocument{
		Namespace:  namespace,
		SourceType: string(store.SourceFile),
		SourceURI:  sourceURI,
		Title:      doc.Title,
		Category:   doc.Category,
		Chunks: lo.Map(doc.Chunks, func(c *chunk.Chunk, _ int) IngestedChunk {
			return IngestedChunk{Ordinal: c.Ordinal, HeadingPath: c.HeadingPath, Text: c.Text, WordCount: c.WordCount}
		}),
	}
	out.ContentHash = out.ComputeContentHash()
	return out
}
