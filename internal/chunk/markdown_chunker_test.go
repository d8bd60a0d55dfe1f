package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkString(t *testing.T, c *MarkdownChunker, content string) *Document {
	t.Helper()
	doc, err := c.Chunk(context.Background(), &FileInput{Path: "doc.md", Content: []byte(content)})
	require.NoError(t, err)
	return doc
}

func TestMarkdownChunker_HeaderBasedSplitting(t *testing.T) {
	content := `# Title

Welcome to the handbook.

## Section 1

Content for section 1.

## Section 2

Content for section 2.
`
	doc := chunkString(t, NewMarkdownChunker(), content)

	require.Len(t, doc.Chunks, 3)
	assert.Contains(t, doc.Chunks[0].Text, "Welcome to the handbook")
	assert.Contains(t, doc.Chunks[1].Text, "## Section 1")
	assert.Contains(t, doc.Chunks[2].Text, "Content for section 2")
	assert.Equal(t, "Title", doc.Title)
	for i, c := range doc.Chunks {
		assert.Equal(t, i, c.Ordinal)
		assert.Equal(t, EstimateTokens(c.Text), c.WordCount)
	}
}

func TestMarkdownChunker_HeadingPath(t *testing.T) {
	content := `# Security

## Devices

### Removable Media

Flash drives are not permitted.

## Accounts

Passwords rotate every 90 days.
`
	doc := chunkString(t, NewMarkdownChunker(), content)

	require.Len(t, doc.Chunks, 2)
	assert.Equal(t, "Security > Devices > Removable Media", doc.Chunks[0].HeadingPath)
	assert.Equal(t, "Security > Accounts", doc.Chunks[1].HeadingPath)
}

func TestMarkdownChunker_FrontMatter(t *testing.T) {
	content := `---
title: USB Storage Policy
category: policy
tags: [security, devices]
---

Flash drives are not permitted on company laptops.
`
	doc := chunkString(t, NewMarkdownChunker(), content)

	assert.Equal(t, "USB Storage Policy", doc.Title)
	assert.Equal(t, "policy", doc.Category)
	assert.Equal(t, "security, devices", doc.Meta["tags"])
	require.Len(t, doc.Chunks, 1)
	assert.NotContains(t, doc.Chunks[0].Text, "category:")
}

func TestMarkdownChunker_InvalidFrontMatter(t *testing.T) {
	_, err := NewMarkdownChunker().Chunk(context.Background(), &FileInput{
		Path:    "bad.md",
		Content: []byte("---\ntitle: [unclosed\n---\nbody\n"),
	})
	assert.Error(t, err)
}

func TestMarkdownChunker_HeadingInsideCodeFence(t *testing.T) {
	content := "# Setup\n\nRun:\n\n```bash\n# not a heading\nmake install\n```\n"

	doc := chunkString(t, NewMarkdownChunker(), content)

	require.Len(t, doc.Chunks, 1)
	assert.Contains(t, doc.Chunks[0].Text, "# not a heading")
	assert.Equal(t, "Setup", doc.Chunks[0].HeadingPath)
}

func TestMarkdownChunker_EmptySectionsSkipped(t *testing.T) {
	content := "# Title\n\n## Empty\n\n## Filled\n\nSomething here.\n"

	doc := chunkString(t, NewMarkdownChunker(), content)

	require.Len(t, doc.Chunks, 1)
	assert.Equal(t, "Title > Filled", doc.Chunks[0].HeadingPath)
	assert.Equal(t, 0, doc.Chunks[0].Ordinal)
}

func TestMarkdownChunker_EmptyInput(t *testing.T) {
	for _, content := range []string{"", "   \n\t\n"} {
		doc := chunkString(t, NewMarkdownChunker(), content)
		assert.NotNil(t, doc.Chunks)
		assert.Empty(t, doc.Chunks)
	}
}

func TestMarkdownChunker_PlainText(t *testing.T) {
	doc := chunkString(t, NewMarkdownChunker(), "First paragraph.\n\nSecond paragraph.\n")

	require.Len(t, doc.Chunks, 1)
	assert.Equal(t, "", doc.Chunks[0].HeadingPath)
	assert.Equal(t, "", doc.Title)
}

func TestMarkdownChunker_LargeSectionRespectsCap(t *testing.T) {
	// Given: one section of 30 paragraphs of 40 words each
	para := strings.TrimSpace(strings.Repeat("word ", 39)) + " end."
	content := "# Big\n\n" + strings.Repeat(para+"\n\n", 30)
	c := NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{MaxChunkTokens: 200, TargetChunkTokens: 120})

	// When: chunking
	doc := chunkString(t, c, content)

	// Then: several chunks, none over the cap, all with the heading path
	require.Greater(t, len(doc.Chunks), 1)
	for i, ch := range doc.Chunks {
		assert.LessOrEqual(t, ch.WordCount, 200)
		assert.Equal(t, i, ch.Ordinal)
		assert.Equal(t, "Big", ch.HeadingPath)
	}
}

func TestMarkdownChunker_Options(t *testing.T) {
	c := NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{MaxChunkTokens: 100, TargetChunkTokens: 400})
	assert.Equal(t, 100, c.options.TargetChunkTokens)

	def := NewMarkdownChunker()
	assert.Equal(t, DefaultMaxChunkTokens, def.options.MaxChunkTokens)
	assert.Equal(t, DefaultTargetChunkTokens, def.options.TargetChunkTokens)
	assert.Contains(t, def.SupportedExtensions(), ".md")
	assert.Contains(t, def.SupportedExtensions(), ".txt")
}

func TestMarkdownChunker_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMarkdownChunker().Chunk(ctx, &FileInput{Path: "a.md", Content: []byte("# A\n\nbody\n")})
	assert.ErrorIs(t, err, context.Canceled)
}
