package chunk

import (
	"strings"
	"unicode"
)

// EnforceCap returns chunks with every chunk at or below maxTokens estimated
// tokens. Oversized chunks are cut at sentence boundaries, sentences that
// alone exceed the cap at word boundaries, and words that alone exceed it
// (unspaced CJK text, long URLs) into rune windows. Pieces keep the heading
// path of their source chunk, blank chunks are dropped, and ordinals are
// renumbered from 0.
func EnforceCap(chunks []*Chunk, maxTokens int) []*Chunk {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxChunkTokens
	}

	out := make([]*Chunk, 0, len(chunks))
	for _, c := range chunks {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		if EstimateTokens(text) <= maxTokens {
			out = append(out, &Chunk{HeadingPath: c.HeadingPath, Text: text, WordCount: EstimateTokens(text)})
			continue
		}
		for _, piece := range splitText(text, maxTokens) {
			out = append(out, newChunk(c.HeadingPath, piece))
		}
	}
	return renumber(out)
}

// splitText packs sentences into pieces of at most maxTokens tokens.
func splitText(text string, maxTokens int) []string {
	var pieces []string
	var cur []string
	n := 0

	emit := func() {
		if len(cur) > 0 {
			pieces = append(pieces, strings.Join(cur, " "))
			cur, n = nil, 0
		}
	}
	add := func(unit string, tokens int) {
		if n+tokens > maxTokens {
			emit()
		}
		cur = append(cur, unit)
		n += tokens
	}

	for _, sentence := range splitSentences(text) {
		if tokens := EstimateTokens(sentence); tokens <= maxTokens {
			add(sentence, tokens)
			continue
		}
		emit()
		for _, word := range strings.Fields(sentence) {
			for _, part := range splitWord(word, maxTokens) {
				add(part, wordTokens(part))
			}
		}
		emit()
	}
	emit()
	return pieces
}

// splitWord cuts a word into the longest rune windows that stay within
// maxTokens.
func splitWord(word string, maxTokens int) []string {
	if wordTokens(word) <= maxTokens {
		return []string{word}
	}
	var parts []string
	runes := []rune(word)
	start, ideographs, rest := 0, 0, 0
	for i, r := range runes {
		if isIdeograph(r) {
			ideographs++
		} else {
			rest++
		}
		if ideographs+restTokens(rest) > maxTokens {
			parts = append(parts, string(runes[start:i]))
			start, ideographs, rest = i, 0, 0
			if isIdeograph(r) {
				ideographs = 1
			} else {
				rest = 1
			}
		}
	}
	return append(parts, string(runes[start:]))
}

// splitSentences cuts after '.', '!' or '?' followed by whitespace, and at
// blank lines.
func splitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		endOfSentence := (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && unicode.IsSpace(runes[i+1])
		paragraphBreak := r == '\n' && i+1 < len(runes) && runes[i+1] == '\n'
		if endOfSentence || paragraphBreak {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}
