package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()

	assert.Equal(t, "server.log", filepath.Base(path))
	assert.Contains(t, path, ".amankb")
}

func TestDefaultAndDebugConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, 10, cfg.MaxSizeMB)
	assert.Equal(t, 5, cfg.MaxFiles)
	assert.True(t, cfg.WriteToStderr)

	assert.Equal(t, "debug", DebugConfig().Level)
	assert.False(t, ServeConfig("info").WriteToStderr)
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: a file-only config
	logPath := filepath.Join(t.TempDir(), "nested", "test.log")
	cfg := Config{Level: "debug", FilePath: logPath, MaxSizeMB: 1, MaxFiles: 2}

	// When: logging through the returned logger
	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	logger.Debug("search_complete", "results", 3)
	cleanup()

	// Then: the entry is a JSON line in the file
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"search_complete"`)
	assert.Contains(t, string(data), `"results":3`)
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"INFO", "INFO"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"bogus", "INFO"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, LevelFromString(tt.input).String(), tt.input)
	}
}

func TestRotatingWriter_RotatesAndKeepsMaxFiles(t *testing.T) {
	// Given: a writer with a tiny size limit
	logPath := filepath.Join(t.TempDir(), "server.log")
	w, err := NewRotatingWriter(logPath, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()
	w.maxSize = 10

	// When: writing several lines larger than the limit
	for i := 0; i < 4; i++ {
		_, err := w.Write([]byte("0123456789\n"))
		require.NoError(t, err)
	}

	// Then: two backups exist and no third
	assert.FileExists(t, logPath)
	assert.FileExists(t, logPath+".1")
	assert.FileExists(t, logPath+".2")
	assert.NoFileExists(t, logPath+".3")
}

func TestRotatingWriter_ImmediateSyncVisible(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "server.log")
	w, err := NewRotatingWriter(logPath, 1, 3)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	line := []byte(`{"level":"INFO","msg":"x"}` + "\n")
	_, err = w.Write(line)
	require.NoError(t, err)

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, string(line), string(content))
}

func TestTail_FiltersByLevelAndCount(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "server.log")
	lines := []string{
		`{"time":"t1","level":"DEBUG","msg":"a"}`,
		`{"time":"t2","level":"WARN","msg":"b","namespace":"coding"}`,
		`not json`,
		`{"time":"t3","level":"ERROR","msg":"c"}`,
	}
	require.NoError(t, os.WriteFile(logPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	entries, err := Tail(logPath, 2, "warn")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Message)
	assert.Equal(t, "coding", entries[0].Attrs["namespace"])
	assert.Equal(t, "c", entries[1].Message)

	var buf bytes.Buffer
	Print(&buf, entries)
	assert.Contains(t, buf.String(), "namespace=coding")
}

func TestFindLogFile_Explicit(t *testing.T) {
	_, err := FindLogFile("/nonexistent/log.log")
	assert.Error(t, err)

	logPath := filepath.Join(t.TempDir(), "x.log")
	require.NoError(t, os.WriteFile(logPath, []byte("x"), 0o644))
	found, err := FindLogFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, logPath, found)
}
