package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// LogEntry is one parsed JSON log line.
type LogEntry struct {
	Time    string
	Level   string
	Message string
	Attrs   map[string]any
	Raw     string
}

// Tail returns the last n entries of the log at path whose level is at least
// minLevel. Lines that are not JSON are returned raw at info level.
func Tail(path string, n int, minLevel string) ([]LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer func() { _ = f.Close() }()

	min := parseLevel(minLevel)
	var entries []LogEntry

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry := ParseLine(line)
		if parseLevel(entry.Level) < min {
			continue
		}
		entries = append(entries, entry)
		if n > 0 && len(entries) > n {
			entries = entries[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return entries, nil
}

// ParseLine decodes a slog JSON line.
func ParseLine(line string) LogEntry {
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		return LogEntry{Level: slog.LevelInfo.String(), Message: line, Raw: line}
	}

	entry := LogEntry{Raw: line, Attrs: make(map[string]any)}
	for k, v := range m {
		switch k {
		case slog.TimeKey:
			entry.Time = fmt.Sprint(v)
		case slog.LevelKey:
			entry.Level = fmt.Sprint(v)
		case slog.MessageKey:
			entry.Message = fmt.Sprint(v)
		default:
			entry.Attrs[k] = v
		}
	}
	return entry
}

// Print writes entries as "time LEVEL msg key=value ..." lines.
func Print(w io.Writer, entries []LogEntry) {
	for _, e := range entries {
		keys := make([]string, 0, len(e.Attrs))
		for k := range e.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sb strings.Builder
		fmt.Fprintf(&sb, "%s %-5s %s", e.Time, e.Level, e.Message)
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%v", k, e.Attrs[k])
		}
		_, _ = fmt.Fprintln(w, sb.String())
	}
}
