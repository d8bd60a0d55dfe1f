package ui

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const (
	barWidth     = 40
	maxFileWidth = 48
	clearLine    = "\r\033[K"
)

// BarRenderer redraws a single status line with a progress bar. Errors and
// warnings are printed above it as they arrive.
type BarRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	title   string
	styles  Styles
	bar     progress.Model
	tracker *ProgressTracker
	drawn   bool
}

// NewBarRenderer creates a progress bar renderer.
func NewBarRenderer(cfg Config) *BarRenderer {
	opts := []progress.Option{progress.WithWidth(barWidth), progress.WithoutPercentage()}
	if cfg.NoColor {
		opts = append(opts, progress.WithColorProfile(termenv.Ascii), progress.WithFillCharacters('#', '.'))
	} else {
		opts = append(opts, progress.WithSolidFill(ColorLime))
	}
	return &BarRenderer{
		out:     cfg.Output,
		title:   cfg.Title,
		styles:  GetStyles(cfg.NoColor),
		bar:     progress.New(opts...),
		tracker: NewProgressTracker(),
	}
}

// Start implements Renderer.
func (r *BarRenderer) Start(ctx context.Context) error {
	if r.title != "" {
		r.mu.Lock()
		defer r.mu.Unlock()
		_, _ = fmt.Fprintln(r.out, r.styles.Header.Render("Ingesting into "+r.title))
	}
	return nil
}

// UpdateProgress implements Renderer.
func (r *BarRenderer) UpdateProgress(event ProgressEvent) {
	r.tracker.Apply(event)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.drawLocked(event.Message)
}

// AddError implements Renderer.
func (r *BarRenderer) AddError(event ErrorEvent) {
	r.tracker.AddError(event)

	r.mu.Lock()
	defer r.mu.Unlock()

	label, style := "ERROR", r.styles.Error
	if event.IsWarn {
		label, style = "WARN", r.styles.Warning
	}
	line := fmt.Sprintf("%s %v", style.Render(label), event.Err)
	if event.File != "" {
		line = fmt.Sprintf("%s %s: %v", style.Render(label), truncatePath(event.File, maxFileWidth), event.Err)
	}
	_, _ = fmt.Fprint(r.out, clearLine+line+"\n")
	if r.drawn {
		r.drawLocked("")
	}
}

func (r *BarRenderer) drawLocked(message string) {
	s := r.tracker.Stats()

	var b strings.Builder
	b.WriteString(clearLine)
	b.WriteString(r.styles.Active.Render(fmt.Sprintf("%-9s", s.Stage.String())))
	b.WriteString(" ")
	if s.Total > 0 {
		b.WriteString(r.bar.ViewAs(s.Progress))
		b.WriteString(r.styles.Label.Render(fmt.Sprintf(" %d/%d", s.Current, s.Total)))
		if s.ETA > 0 {
			b.WriteString(r.styles.Dim.Render(" eta " + formatDuration(s.ETA)))
		}
	}
	switch {
	case message != "":
		b.WriteString(" " + r.styles.Label.Render(message))
	case s.CurrentFile != "":
		b.WriteString(" " + r.styles.Dim.Render(truncatePath(s.CurrentFile, maxFileWidth)))
	}
	_, _ = fmt.Fprint(r.out, b.String())
	r.drawn = true
}

// Complete implements Renderer.
func (r *BarRenderer) Complete(stats CompletionStats) {
	r.tracker.Complete()

	r.mu.Lock()
	defer r.mu.Unlock()

	lines := []string{
		r.styles.Success.Render(fmt.Sprintf("%d documents indexed", stats.Documents)) +
			r.styles.Label.Render(fmt.Sprintf(", %d chunks, %d unchanged", stats.Chunks, stats.Skipped)),
		r.styles.Label.Render(fmt.Sprintf("scan %s  chunk %s  index %s  total %s",
			formatDuration(stats.Stages.Scan), formatDuration(stats.Stages.Chunk),
			formatDuration(stats.Stages.Index), formatDuration(stats.Duration))),
	}
	if stats.Errors > 0 || stats.Warnings > 0 {
		lines = append(lines, r.styles.Warning.Render(
			fmt.Sprintf("%d errors, %d warnings", stats.Errors, stats.Warnings)))
	}
	if stats.Embedder.Backend != "" {
		lines = append(lines, r.styles.Dim.Render(fmt.Sprintf("embedder %s (%s, %d dims)",
			stats.Embedder.Backend, stats.Embedder.Model, stats.Embedder.Dimensions)))
	}

	panel := r.styles.Panel.BorderForeground(lipgloss.Color(ColorLime)).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
	_, _ = fmt.Fprint(r.out, clearLine+panel+"\n")
	r.drawn = false
}

// Stop implements Renderer.
func (r *BarRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.drawn {
		_, _ = fmt.Fprintln(r.out)
		r.drawn = false
	}
	return nil
}

// truncatePath shortens a path from the left, keeping the file name.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	base := filepath.Base(path)
	if len(base)+4 >= maxLen {
		return "..." + base[max(0, len(base)-maxLen+3):]
	}
	return "..." + path[len(path)-maxLen+3:]
}
