package index

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amankb/internal/chunk"
	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/ui"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeJSONDoc(t *testing.T, path string, doc *IngestedDocument) {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	writeFile(t, path, string(data))
}

// corpusDir holds two markdown files, one pre-chunked JSON document, a hidden
// directory and a file type nothing handles.
func corpusDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "vpn.md"), "---\ncategory: procedure\n---\n# VPN\n\nInstall the VPN client from the portal.\n")
	writeFile(t, filepath.Join(dir, "policies", "usb.md"), "# USB Storage\n\nFlash drives are blocked on managed laptops.\n")
	writeJSONDoc(t, filepath.Join(dir, "wiki", "printers.json"),
		testDoc("", "https://wiki/printers", "Printers", "reference", "Floor three uses the HP queue."))
	writeFile(t, filepath.Join(dir, ".git", "notes.md"), "# Hidden\n\nnever ingested\n")
	writeFile(t, filepath.Join(dir, "logo.png"), "not text")
	return dir
}

func newTestRunner(t *testing.T, env *testEnv) (*Runner, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	r, err := NewRunner(RunnerDependencies{
		Renderer:    ui.NewPlainRenderer(ui.NewConfig(buf)),
		Coordinator: env.coord,
	})
	require.NoError(t, err)
	return r, buf
}

func TestNewRunner_RequiresDependencies(t *testing.T) {
	env := newTestEnv(t)

	_, err := NewRunner(RunnerDependencies{Coordinator: env.coord})
	assert.Error(t, err)

	_, err = NewRunner(RunnerDependencies{Renderer: ui.NewPlainRenderer(ui.NewConfig(&bytes.Buffer{}))})
	assert.Error(t, err)
}

func TestRunner_IngestsDirectory(t *testing.T) {
	// Given: a corpus directory and an empty knowledge base
	env := newTestEnv(t)
	runner, out := newTestRunner(t, env)
	dir := corpusDir(t)

	// When: the directory is ingested into it-support
	res, err := runner.Run(context.Background(), RunnerConfig{Paths: []string{dir}, Namespace: "it-support", Workers: 2})

	// Then: the three supported files are indexed and the rest ignored
	require.NoError(t, err)
	assert.Equal(t, 3, res.Files)
	assert.Equal(t, 3, res.Indexed)
	assert.Zero(t, res.Skipped)
	assert.Zero(t, res.Errors)
	assert.Equal(t, 3, res.Chunks)

	docs, err := env.store.ListDocuments(context.Background(), "it-support")
	require.NoError(t, err)
	titles := map[string]string{}
	for _, d := range docs {
		titles[d.Title] = string(d.Category)
	}
	assert.Equal(t, map[string]string{"VPN": "procedure", "USB Storage": "general", "Printers": "reference"}, titles)

	assert.Contains(t, out.String(), "[SCAN]")
	assert.Contains(t, out.String(), "[INDEX] 3/3")
	assert.Contains(t, out.String(), "Complete: 3 documents, 3 chunks indexed, 0 unchanged")
	assert.NotContains(t, out.String(), "notes.md")
}

func TestRunner_SecondRunSkipsUnchanged(t *testing.T) {
	env := newTestEnv(t)
	runner, _ := newTestRunner(t, env)
	dir := corpusDir(t)
	cfg := RunnerConfig{Paths: []string{dir}, Namespace: "it-support"}
	_, err := runner.Run(context.Background(), cfg)
	require.NoError(t, err)
	writes := env.store.WriteCount()

	res, err := runner.Run(context.Background(), cfg)

	require.NoError(t, err)
	assert.Equal(t, 3, res.Skipped)
	assert.Zero(t, res.Indexed)
	assert.Equal(t, writes, env.store.WriteCount())
}

func TestRunner_ReportsBadFilesAndContinues(t *testing.T) {
	env := newTestEnv(t)
	runner, out := newTestRunner(t, env)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.json"), "{not json")
	writeJSONDoc(t, filepath.Join(dir, "unknown-ns.json"), testDoc("hr", "hr://leave", "Leave", "", "Annual leave is 25 days."))
	writeFile(t, filepath.Join(dir, "ok.md"), "# OK\n\nThis one works.\n")

	res, err := runner.Run(context.Background(), RunnerConfig{Paths: []string{dir}, Namespace: "it-support"})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
	assert.Equal(t, 2, res.Errors)
	assert.Contains(t, out.String(), "ERROR: "+filepath.Join(dir, "broken.json"))
	assert.Contains(t, out.String(), "unknown-ns.json")
}

func TestRunner_ExcludePatterns(t *testing.T) {
	// Given: a corpus with drafts and an ignore file excluding them
	env := newTestEnv(t)
	runner, _ := newTestRunner(t, env)
	dir := corpusDir(t)
	writeFile(t, filepath.Join(dir, "drafts", "wip.md"), "# WIP\n\nNot ready.\n")
	writeFile(t, filepath.Join(dir, ".amankbignore"), "drafts/\n")

	// When: ingesting with a configured pattern as well
	res, err := runner.Run(context.Background(), RunnerConfig{
		Paths: []string{dir}, Namespace: "it-support", Exclude: []string{"policies/*.md"},
	})

	// Then: both the ignore file and the pattern are honoured
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)
	docs, err := env.store.ListDocuments(context.Background(), "it-support")
	require.NoError(t, err)
	for _, d := range docs {
		assert.NotContains(t, d.SourceURI, "drafts")
		assert.NotContains(t, d.SourceURI, "usb.md")
	}
}

func TestRunner_CreatesNamespace(t *testing.T) {
	env := newTestEnv(t)
	runner, _ := newTestRunner(t, env)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "leave.md"), "# Leave\n\nAnnual leave is 25 days.\n")

	res, err := runner.Run(context.Background(), RunnerConfig{Paths: []string{dir}, Namespace: "hr", CreateNamespace: true})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
	ns, err := env.store.GetNamespace(context.Background(), "hr")
	require.NoError(t, err)
	assert.Equal(t, "hr", ns.ID)
}

func TestRunner_SkipsOversizeFiles(t *testing.T) {
	env := newTestEnv(t)
	runner, out := newTestRunner(t, env)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "big.md"), "# Big\n\n"+string(bytes.Repeat([]byte("word "), 100)))

	res, err := runner.Run(context.Background(), RunnerConfig{Paths: []string{dir}, Namespace: "it-support", MaxFileSize: 64})

	require.NoError(t, err)
	assert.Zero(t, res.Files)
	assert.Contains(t, out.String(), "WARN: "+filepath.Join(dir, "big.md")+": file exceeds 64 bytes")
}

func TestRunner_Canceled(t *testing.T) {
	env := newTestEnv(t)
	runner, _ := newTestRunner(t, env)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, RunnerConfig{Paths: []string{corpusDir(t)}, Namespace: "it-support"})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	chunker := chunk.NewMarkdownChunker()

	t.Run("raw file needs a namespace", func(t *testing.T) {
		path := filepath.Join(dir, "a.md")
		writeFile(t, path, "# A\n\ntext\n")

		_, err := LoadFile(ctx, path, "", chunker)

		require.Error(t, err)
		assert.Equal(t, kberrors.ErrCodeInvalidInput, kberrors.GetCode(err))
	})

	t.Run("title falls back to file name", func(t *testing.T) {
		path := filepath.Join(dir, "printer-setup.txt")
		writeFile(t, path, "Open the print queue and add the HP device.\n")

		doc, err := LoadFile(ctx, path, "it-support", chunker)

		require.NoError(t, err)
		assert.Equal(t, "printer-setup", doc.Title)
		assert.Equal(t, path, doc.SourceURI)
		assert.NotEmpty(t, doc.ContentHash)
	})

	t.Run("json keeps its own namespace", func(t *testing.T) {
		path := filepath.Join(dir, "doc.json")
		writeJSONDoc(t, path, testDoc("coding", "git://guide", "Guide", "", "Use feature branches."))

		doc, err := LoadFile(ctx, path, "it-support", chunker)

		require.NoError(t, err)
		assert.Equal(t, "coding", doc.Namespace)
		assert.Equal(t, "git://guide", doc.SourceURI)
	})
}
