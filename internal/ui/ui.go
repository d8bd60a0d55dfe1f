// Package ui renders ingest progress and knowledge base status in the terminal.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is one step of an ingest run.
type Stage int

const (
	// StageScanning walks the input paths.
	StageScanning Stage = iota
	// StageChunking loads files and splits raw ones into chunks.
	StageChunking
	// StageEmbedding embeds chunks (vector rebuilds and repairs).
	StageEmbedding
	// StageIndexing writes documents to the store and both indices.
	StageIndexing
	// StageComplete marks the end of the run.
	StageComplete
)

var stageNames = [...]struct{ name, icon string }{
	StageScanning:  {"Scanning", "SCAN"},
	StageChunking:  {"Chunking", "CHUNK"},
	StageEmbedding: {"Embedding", "EMBED"},
	StageIndexing:  {"Indexing", "INDEX"},
	StageComplete:  {"Complete", "DONE"},
}

// String returns the stage name.
func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "Unknown"
	}
	return stageNames[s].name
}

// Icon returns the short tag used by plain output.
func (s Stage) Icon() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "???"
	}
	return stageNames[s].icon
}

// ProgressEvent is a progress update.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent is a per-file error or warning. The run continues.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// StageTimings holds the duration of each stage.
type StageTimings struct {
	Scan  time.Duration
	Chunk time.Duration
	Index time.Duration // store write, embedding and both indices
}

// EmbedderInfo describes the embedding backend used by a run.
type EmbedderInfo struct {
	Backend    string
	Model      string
	Dimensions int
}

// CompletionStats summarizes a finished run.
type CompletionStats struct {
	Documents int // indexed or replaced
	Skipped   int // unchanged content hash
	Chunks    int
	Duration  time.Duration
	Errors    int
	Warnings  int
	Stages    StageTimings
	Embedder  EmbedderInfo
}

// Renderer displays progress for a run.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	AddError(event ErrorEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// Config configures a renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Title      string // shown in the bar header, usually the namespace
}

// ConfigOption modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) { c.ForcePlain = force }
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) { c.NoColor = noColor }
}

// WithTitle sets the header shown above the progress bar.
func WithTitle(title string) ConfigOption {
	return func(c *Config) { c.Title = title }
}

// NewConfig creates a Config for output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output, NoColor: DetectNoColor()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns a progress bar renderer for interactive terminals and
// a plain line renderer for pipes, CI, or when plain output is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	return NewBarRenderer(cfg)
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI reports whether the process runs under a CI system.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}

// formatDuration renders d the way the summaries print it.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}
