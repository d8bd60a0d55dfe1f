// Package chunk splits raw markdown and text files into heading-aware
// chunks and enforces the hard token cap on any chunk list.
package chunk

import (
	"context"
	"strings"
	"unicode"
)

// Chunk size defaults. Tokens are estimated per whitespace-separated word;
// see EstimateTokens.
const (
	DefaultMaxChunkTokens    = 500 // hard cap, never exceeded
	DefaultTargetChunkTokens = 350 // packing target when a section is split
)

// A word longer than MaxWordRunes is not prose (URLs, hashes, base64) and
// costs one token per RunesPerToken runes.
const (
	MaxWordRunes  = 16
	RunesPerToken = 4
)

// Chunk is one retrieval unit cut from a file.
type Chunk struct {
	Ordinal     int
	HeadingPath string // "Title > Section > Subsection"
	Text        string
	WordCount   int // EstimateTokens(Text)
}

// Document is a chunked file with the metadata found in its front matter.
type Document struct {
	Title    string
	Category string
	Meta     map[string]string
	Chunks   []*Chunk
}

// FileInput is input for the Chunker interface.
type FileInput struct {
	Path    string
	Content []byte
}

// Chunker splits a file into chunks.
type Chunker interface {
	Chunk(ctx context.Context, file *FileInput) (*Document, error)

	// SupportedExtensions returns the file extensions this chunker handles.
	SupportedExtensions() []string
}

// EstimateTokens approximates the token count of text. An ordinary word is
// one token, every CJK character is one token, and overlong words are costed
// by length. The estimate is additive over words.
func EstimateTokens(text string) int {
	n := 0
	for _, word := range strings.Fields(text) {
		n += wordTokens(word)
	}
	return n
}

func wordTokens(word string) int {
	ideographs, rest := 0, 0
	for _, r := range word {
		if isIdeograph(r) {
			ideographs++
		} else {
			rest++
		}
	}
	return ideographs + restTokens(rest)
}

func restTokens(runes int) int {
	switch {
	case runes == 0:
		return 0
	case runes <= MaxWordRunes:
		return 1
	}
	return (runes + RunesPerToken - 1) / RunesPerToken
}

func isIdeograph(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

func newChunk(headingPath, text string) *Chunk {
	text = strings.TrimSpace(text)
	return &Chunk{HeadingPath: headingPath, Text: text, WordCount: EstimateTokens(text)}
}

func renumber(chunks []*Chunk) []*Chunk {
	for i, c := range chunks {
		c.Ordinal = i
	}
	return chunks
}
