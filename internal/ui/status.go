package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"
)

// NamespaceInfo is one namespace row of a status report.
type NamespaceInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Documents   int    `json:"documents"`
	Chunks      int    `json:"chunks"`
	Vectors     int    `json:"vectors"`
}

// StatusInfo describes the health of a knowledge base.
type StatusInfo struct {
	DataDir     string          `json:"data_dir"`
	Namespaces  []NamespaceInfo `json:"namespaces"`
	Documents   int             `json:"documents"`
	Chunks      int             `json:"chunks"`
	Vectors     int             `json:"vectors"`
	LastIndexed time.Time       `json:"last_indexed,omitzero"`

	// Storage sizes in bytes
	DatabaseSize int64 `json:"database_size"`
	LexicalSize  int64 `json:"lexical_size"`
	TotalSize    int64 `json:"total_size"`

	LexicalBackend string `json:"lexical_backend"`
	SearchStrategy string `json:"search_strategy"`
	EmbedderType   string `json:"embedder_type"`
	EmbedderStatus string `json:"embedder_status"` // "ready", "offline", "disabled"
	EmbedderModel  string `json:"embedder_model,omitempty"`
	Dimensions     int    `json:"dimensions,omitempty"`
	Reranker       string `json:"reranker"`
	Degraded       string `json:"degraded,omitempty"`

	// Consistency is set when a check ran: issue counts by type.
	Consistency map[string]int `json:"consistency,omitempty"`
}

// StatusRenderer displays StatusInfo.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes the human-readable report.
func (r *StatusRenderer) Render(info StatusInfo) error {
	w := &errWriter{w: r.out}
	w.printf("%s\n\n", r.styles.Header.Render("Knowledge base: "+info.DataDir))

	w.printf("  Documents:    %d\n", info.Documents)
	w.printf("  Chunks:       %d\n", info.Chunks)
	w.printf("  Vectors:      %d\n", info.Vectors)
	if !info.LastIndexed.IsZero() {
		w.printf("  Last indexed: %s\n", formatTime(info.LastIndexed))
	}
	w.printf("\n")

	if len(info.Namespaces) > 0 {
		w.printf("  Namespaces:\n")
		for _, ns := range info.Namespaces {
			name := ns.ID
			if ns.DisplayName != "" && ns.DisplayName != ns.ID {
				name = fmt.Sprintf("%s (%s)", ns.ID, ns.DisplayName)
			}
			w.printf("    %-28s %5d docs %7d chunks\n", name, ns.Documents, ns.Chunks)
		}
		w.printf("\n")
	}

	w.printf("  Storage:\n")
	w.printf("    Database:   %s\n", FormatBytes(info.DatabaseSize))
	w.printf("    Lexical:    %s (%s)\n", FormatBytes(info.LexicalSize), info.LexicalBackend)
	w.printf("    Total:      %s\n\n", FormatBytes(info.TotalSize))

	w.printf("  Search:\n")
	w.printf("    Strategy: %s\n", info.SearchStrategy)
	w.printf("    Embedder: %s %s\n", info.EmbedderType, r.renderStatus(info.EmbedderStatus))
	if info.EmbedderModel != "" {
		w.printf("    Model:    %s (%d dims)\n", info.EmbedderModel, info.Dimensions)
	}
	w.printf("    Reranker: %s\n", info.Reranker)
	if info.Degraded != "" {
		w.printf("    %s\n", r.styles.Warning.Render("Degraded: "+info.Degraded))
	}

	if info.Consistency != nil {
		w.printf("\n  Consistency: ")
		if len(info.Consistency) == 0 {
			w.printf("%s\n", r.styles.Success.Render("ok"))
		} else {
			parts := make([]string, 0, len(info.Consistency))
			for _, kind := range slices.Sorted(maps.Keys(info.Consistency)) {
				parts = append(parts, fmt.Sprintf("%s=%d", kind, info.Consistency[kind]))
			}
			w.printf("%s\n", r.styles.Error.Render(strings.Join(parts, " ")))
		}
	}
	return w.err
}

// RenderJSON writes the report as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready":
		return r.styles.Success.Render(status)
	case "offline":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return r.styles.Dim.Render(status)
	}
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// formatTime renders t relative to now.
func formatTime(t time.Time) string {
	diff := time.Since(t)
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes renders a byte count for humans.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
