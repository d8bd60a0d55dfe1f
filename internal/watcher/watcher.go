package watcher

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Aman-CERP/amankb/internal/ignore"
)

// Operation is a file system change.
type Operation int

const (
	// OpCreate is a new file.
	OpCreate Operation = iota
	// OpModify is a changed file.
	OpModify
	// OpDelete is a removed file.
	OpDelete
	// OpRename is a file moved away; the new name arrives as OpCreate.
	OpRename
)

// String returns the operation name.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change under the watched root.
type FileEvent struct {
	// Path is relative to the watched root.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Watcher reports debounced batches of file events.
type Watcher interface {
	// Start watches path recursively until Stop or ctx is done.
	Start(ctx context.Context, path string) error
	// Stop releases resources. Safe to call multiple times.
	Stop() error
	// Events is closed when the watcher stops.
	Events() <-chan []FileEvent
	// Errors carries non-fatal errors; closed when the watcher stops.
	Errors() <-chan error
}

// Options configures a watcher.
type Options struct {
	// DebounceWindow is the quiet period before a batch is emitted.
	DebounceWindow time.Duration

	// PollInterval is used when fsnotify is unavailable.
	PollInterval time.Duration

	EventBufferSize int

	// Extensions limits events to files with these extensions. Empty accepts
	// every file.
	Extensions []string

	// Exclude holds gitignore-style patterns relative to the watched root.
	Exclude []string

	// ForcePolling skips fsnotify.
	ForcePolling bool

	exclude *ignore.Matcher
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 100,
	}
}

// WithDefaults fills zero values from DefaultOptions.
func (o Options) WithDefaults() Options {
	def := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = def.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = def.EventBufferSize
	}
	if len(o.Exclude) > 0 && o.exclude == nil {
		o.exclude = ignore.New(o.Exclude...)
	}
	return o
}

// ignored reports whether a relative path is skipped: anything hidden (editor
// swap files, .git), excluded paths, partial downloads, and files with other
// extensions.
func (o Options) ignored(relPath string, isDir bool) bool {
	if o.exclude != nil && o.exclude.Match(relPath, isDir) {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	if isDir {
		return false
	}
	base := filepath.Base(relPath)
	if strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".tmp") || strings.HasSuffix(base, ".part") {
		return true
	}
	if len(o.Extensions) == 0 {
		return false
	}
	return !slices.Contains(o.Extensions, strings.ToLower(filepath.Ext(base)))
}
