package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amankb/internal/logging"
)

// followInterval is how often --follow checks the log for new lines.
const followInterval = 500 * time.Millisecond

type logsOptions struct {
	lines  int
	level  string
	filter string
	file   string
	follow bool
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View server logs",
		Long: `Show the newest entries of ~/.amankb/logs/server.log, written by
'amankb serve' and by any command run with --debug.

Examples:
  amankb logs
  amankb logs -n 200 --level warn
  amankb logs --filter search_completed -f`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runLogs(ctx, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of entries to show")
	cmd.Flags().StringVar(&opts.level, "level", "debug", "Minimum level: debug, info, warn, error")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only entries whose raw line matches this regex")
	cmd.Flags().StringVar(&opts.file, "file", "", "Log file (default ~/.amankb/logs/server.log)")
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Keep printing new entries")
	return cmd
}

func runLogs(ctx context.Context, w io.Writer, opts logsOptions) error {
	path, err := logging.FindLogFile(opts.file)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		if pattern, err = regexp.Compile(opts.filter); err != nil {
			return fmt.Errorf("invalid filter: %w", err)
		}
	}
	keep := func(e logging.LogEntry) bool {
		return pattern == nil || pattern.MatchString(e.Raw)
	}

	// Tail filters by level only; read everything so the regex filter still
	// yields up to opts.lines entries.
	entries, err := logging.Tail(path, 0, opts.level)
	if err != nil {
		return err
	}
	var shown []logging.LogEntry
	for _, e := range entries {
		if keep(e) {
			shown = append(shown, e)
		}
	}
	if opts.lines > 0 && len(shown) > opts.lines {
		shown = shown[len(shown)-opts.lines:]
	}
	logging.Print(w, shown)

	if !opts.follow {
		return nil
	}
	return followLog(ctx, w, path, opts.level, keep)
}

// followLog prints entries appended to path until ctx is done. A file that
// shrinks (rotation) is read again from the start.
func followLog(ctx context.Context, w io.Writer, path, minLevel string, keep func(logging.LogEntry) bool) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	offset := info.Size()
	min := logging.LevelFromString(minLevel)

	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.Size() < offset {
			offset = 0
		}
		if info.Size() == offset {
			continue
		}

		f, err := os.Open(path)
		if err != nil {
			continue
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			continue
		}
		reader := bufio.NewReader(f)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				// Partial lines are picked up on the next tick.
				break
			}
			offset += int64(len(line))
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			e := logging.ParseLine(line)
			if logging.LevelFromString(e.Level) >= min && keep(e) {
				logging.Print(w, []logging.LogEntry{e})
			}
		}
		_ = f.Close()
	}
}
