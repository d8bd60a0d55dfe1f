package chunk

import (
	"context"
	"regexp"
	"strings"
)

// MarkdownChunkerOptions configures the markdown chunker.
type MarkdownChunkerOptions struct {
	MaxChunkTokens    int // hard cap (default DefaultMaxChunkTokens)
	TargetChunkTokens int // packing target for split sections (default DefaultTargetChunkTokens)
}

// MarkdownChunker splits markdown at headings. Each section becomes one
// chunk carrying its heading breadcrumb; sections over the cap are packed by
// paragraph and then cut at sentence and word boundaries. Plain text files
// are treated as a single headingless section.
type MarkdownChunker struct {
	options MarkdownChunkerOptions
}

var _ Chunker = (*MarkdownChunker)(nil)

var (
	// Matches headers: # Title, ## Title, etc.
	headerPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)

	fencePattern = regexp.MustCompile("^\\s*(```|~~~)")
)

// NewMarkdownChunker creates a chunker with default options.
func NewMarkdownChunker() *MarkdownChunker {
	return NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{})
}

// NewMarkdownChunkerWithOptions creates a chunker with custom options.
func NewMarkdownChunkerWithOptions(opts MarkdownChunkerOptions) *MarkdownChunker {
	if opts.MaxChunkTokens <= 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.TargetChunkTokens <= 0 || opts.TargetChunkTokens > opts.MaxChunkTokens {
		opts.TargetChunkTokens = min(DefaultTargetChunkTokens, opts.MaxChunkTokens)
	}
	return &MarkdownChunker{options: opts}
}

// SupportedExtensions returns file extensions this chunker handles.
func (c *MarkdownChunker) SupportedExtensions() []string {
	return []string{".md", ".markdown", ".mdx", ".txt"}
}

// Chunk splits file into chunks. Front matter keys title and category set
// the document metadata; otherwise the first level-1 heading is the title.
func (c *MarkdownChunker) Chunk(ctx context.Context, file *FileInput) (*Document, error) {
	meta, body, err := ParseFrontMatter(strings.ReplaceAll(string(file.Content), "\r\n", "\n"))
	if err != nil {
		return nil, err
	}
	doc := &Document{Meta: meta, Title: meta["title"], Category: meta["category"]}

	if strings.TrimSpace(body) == "" {
		doc.Chunks = []*Chunk{}
		return doc, nil
	}

	var chunks []*Chunk
	for _, sec := range parseSections(body) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if doc.Title == "" && sec.level == 1 {
			doc.Title = sec.title
		}
		chunks = append(chunks, c.sectionChunks(sec)...)
	}
	doc.Chunks = EnforceCap(chunks, c.options.MaxChunkTokens)
	return doc, nil
}

// section is a heading with the lines up to the next heading.
type section struct {
	level int
	title string
	path  string
	body  string
}

// parseSections splits content at headings outside fenced code blocks.
// Content before the first heading is a level-0 section.
func parseSections(content string) []*section {
	var sections []*section
	stack := make([]string, 6)
	cur := &section{}
	var b strings.Builder
	inFence := false

	flush := func() {
		cur.body = b.String()
		sections = append(sections, cur)
		b.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		if fencePattern.MatchString(line) {
			inFence = !inFence
		}
		if m := headerPattern.FindStringSubmatch(line); m != nil && !inFence {
			flush()

			level := len(m[1])
			title := strings.TrimSpace(m[2])
			stack[level-1] = title
			for i := level; i < 6; i++ {
				stack[i] = ""
			}
			var parts []string
			for _, s := range stack[:level] {
				if s != "" {
					parts = append(parts, s)
				}
			}
			cur = &section{level: level, title: title, path: strings.Join(parts, " > ")}
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	flush()
	return sections
}

func (c *MarkdownChunker) sectionChunks(sec *section) []*Chunk {
	text := strings.TrimSpace(sec.body)
	if text == "" {
		return nil
	}
	// a heading with no body carries no content of its own
	if lines := strings.Split(text, "\n"); len(lines) == 1 && headerPattern.MatchString(lines[0]) {
		return nil
	}

	if EstimateTokens(text) <= c.options.MaxChunkTokens {
		return []*Chunk{newChunk(sec.path, text)}
	}
	return c.packParagraphs(sec.path, splitParagraphs(text))
}

// packParagraphs groups paragraphs into chunks of about TargetChunkTokens.
func (c *MarkdownChunker) packParagraphs(path string, paragraphs []string) []*Chunk {
	var chunks []*Chunk
	var cur strings.Builder
	tokens := 0

	for _, para := range paragraphs {
		n := EstimateTokens(para)
		if cur.Len() > 0 && tokens+n > c.options.TargetChunkTokens {
			chunks = append(chunks, newChunk(path, cur.String()))
			cur.Reset()
			tokens = 0
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
		tokens += n
	}
	if cur.Len() > 0 {
		chunks = append(chunks, newChunk(path, cur.String()))
	}
	return chunks
}

// splitParagraphs splits at blank lines, keeping fenced code blocks whole.
func splitParagraphs(text string) []string {
	var out []string
	var open strings.Builder
	for _, part := range strings.Split(text, "\n\n") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if open.Len() > 0 {
			open.WriteString("\n\n")
			open.WriteString(part)
			if strings.Count(part, "```")%2 == 1 {
				out = append(out, open.String())
				open.Reset()
			}
			continue
		}
		if strings.Count(part, "```")%2 == 1 {
			open.WriteString(part)
			continue
		}
		out = append(out, part)
	}
	if open.Len() > 0 {
		out = append(out, open.String())
	}
	return out
}
