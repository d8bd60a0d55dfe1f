package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Match(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		path     string
		isDir    bool
		want     bool
	}{
		{"extension anywhere", []string{"*.tmp"}, "drafts/notes.tmp", false, true},
		{"extension miss", []string{"*.tmp"}, "drafts/notes.md", false, false},
		{"directory pattern matches dir", []string{"drafts/"}, "drafts", true, true},
		{"directory pattern matches contents", []string{"drafts/"}, "hr/drafts/leave.md", false, true},
		{"directory pattern skips file of same name", []string{"drafts/"}, "drafts", false, false},
		{"anchored at root", []string{"/archive"}, "archive/old.md", false, true},
		{"anchored not nested", []string{"/archive"}, "hr/archive", true, false},
		{"inner slash anchors", []string{"policies/old"}, "policies/old", true, true},
		{"double star", []string{"**/private/*.md"}, "hr/private/pay.md", false, true},
		{"double star at root", []string{"**/private/*.md"}, "private/pay.md", false, true},
		{"negation re-includes", []string{"*.md", "!README.md"}, "README.md", false, false},
		{"last match wins", []string{"!keep.md", "*.md"}, "keep.md", false, true},
		{"question mark", []string{"v?.md"}, "v1.md", false, true},
		{"character class", []string{"[ab].md"}, "b.md", false, true},
		{"escaped hash", []string{`\#notes.md`}, "#notes.md", false, true},
		{"comment ignored", []string{"# *.md"}, "a.md", false, false},
		{"dots are literal", []string{"a.md"}, "abmd", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.patterns...)
			assert.Equal(t, tt.want, m.Match(tt.path, tt.isDir))
		})
	}
}

func TestMatcher_AddFile(t *testing.T) {
	// Given: an ignore file with a comment, a blank line and two patterns
	dir := t.TempDir()
	path := filepath.Join(dir, IgnoreFile)
	require.NoError(t, os.WriteFile(path, []byte("# drafts\n\ndrafts/\n*.bak\n"), 0o644))

	// When: it is loaded
	m := New()
	require.NoError(t, m.AddFile(path))

	// Then: only the patterns are active
	assert.Equal(t, 2, m.Len())
	assert.True(t, m.Match("drafts/a.md", false))
	assert.True(t, m.Match("x.bak", false))
}

func TestMatcher_AddFile_Missing(t *testing.T) {
	m := New()

	require.NoError(t, m.AddFile(filepath.Join(t.TempDir(), IgnoreFile)))
	assert.Zero(t, m.Len())
}
