// Package output formats command results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Aman-CERP/amankb/internal/search"
	"github.com/Aman-CERP/amankb/internal/ui"
)

// Writer prints CLI output. Color is used only on a terminal without NO_COLOR.
type Writer struct {
	out    io.Writer
	styles ui.Styles
}

// New creates a Writer for out.
func New(out io.Writer) *Writer {
	noColor := ui.DetectNoColor() || !ui.IsTTY(out)
	return &Writer{out: out, styles: ui.GetStyles(noColor)}
}

// Status prints a message with a leading icon, or indented without one.
// Write errors are ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Success.Render("✓"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Warning.Render("!"), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Error.Render("✗"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON prints v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table prints rows under a header, columns aligned.
func (w *Writer) Table(header []string, rows [][]string) {
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}

// SearchResponse prints ranked results with their scores. explain adds the
// per-stage scores of each result.
func (w *Writer) SearchResponse(resp *search.Response, explain bool) {
	header := fmt.Sprintf("intent: %s (%.2f) · strategy: %s · %s",
		resp.Intent, resp.Confidence, resp.Strategy, resp.Took.Round(100_000))
	_, _ = fmt.Fprintln(w.out, w.styles.Dim.Render(header))
	if resp.Degraded {
		w.Warning(resp.Reason)
	}

	if len(resp.Results) == 0 {
		msg := fmt.Sprintf("No results for %q", resp.Query)
		if resp.Reason != "" && !resp.Degraded {
			msg += " (" + resp.Reason + ")"
		}
		_, _ = fmt.Fprintln(w.out, msg)
		return
	}

	for _, r := range resp.Results {
		title := r.Title
		if title == "" {
			title = r.DocumentID
		}
		_, _ = fmt.Fprintf(w.out, "\n%s %s %s\n",
			w.styles.Header.Render(fmt.Sprintf("%d.", r.Rank)),
			w.styles.Active.Render(title),
			w.styles.Dim.Render(fmt.Sprintf("[%s] %.3f", r.Category, r.Scores.Final)))
		if r.HeadingPath != "" && r.HeadingPath != r.Title {
			_, _ = fmt.Fprintf(w.out, "   %s\n", w.styles.Label.Render(r.HeadingPath))
		}
		for _, line := range strings.Split(r.Snippet, "\n") {
			_, _ = fmt.Fprintf(w.out, "   %s\n", line)
		}
		_, _ = fmt.Fprintf(w.out, "   %s\n", w.styles.Dim.Render(r.ChunkID))
		if explain {
			_, _ = fmt.Fprintf(w.out, "   lexical %.3f (#%d) · vector %.3f (#%d) · fused %.3f · boost %.2f · quality %.2f\n",
				r.Scores.Lexical, r.LexicalRank, r.Scores.Vector, r.VectorRank,
				r.Scores.Fused, r.Boost, r.Quality)
		}
	}
}
