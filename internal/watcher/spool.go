package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/Aman-CERP/amankb/internal/chunk"
	"github.com/Aman-CERP/amankb/internal/index"
)

// Ingester is the part of index.Coordinator the spool needs.
type Ingester interface {
	Ingest(ctx context.Context, doc *index.IngestedDocument) (*index.IngestResult, error)
}

// SpoolConfig configures a SpoolWatcher.
type SpoolConfig struct {
	// Dir is the spool directory.
	Dir string

	// Namespace is used for raw files and JSON documents that name none.
	Namespace string

	// Chunker splits raw files. Defaults to the markdown chunker.
	Chunker chunk.Chunker

	// Exclude holds gitignore-style patterns skipped by the initial sweep.
	Exclude []string
}

// SpoolStats counts what a SpoolWatcher has done.
type SpoolStats struct {
	Indexed int64 `json:"indexed"`
	Skipped int64 `json:"skipped"`
	Failed  int64 `json:"failed"`
}

// SpoolWatcher ingests files created or changed in a directory. Deleting a
// spool file does not delete the document; that is an explicit operation.
type SpoolWatcher struct {
	watcher  Watcher
	ingester Ingester
	config   SpoolConfig

	indexed atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

// SpoolExtensions are the file types a spool accepts.
var SpoolExtensions = []string{".json", ".md", ".markdown", ".mdx", ".txt"}

// NewSpoolWatcher creates a spool over w. w must not be started yet.
func NewSpoolWatcher(w Watcher, ingester Ingester, cfg SpoolConfig) *SpoolWatcher {
	if cfg.Chunker == nil {
		cfg.Chunker = chunk.NewMarkdownChunker()
	}
	return &SpoolWatcher{watcher: w, ingester: ingester, config: cfg}
}

// Stats returns the running totals.
func (s *SpoolWatcher) Stats() SpoolStats {
	return SpoolStats{Indexed: s.indexed.Load(), Skipped: s.skipped.Load(), Failed: s.failed.Load()}
}

// Run ingests what is already in the spool, then follows changes until ctx
// is done.
func (s *SpoolWatcher) Run(ctx context.Context) error {
	dir, err := filepath.Abs(s.config.Dir)
	if err != nil {
		return fmt.Errorf("resolve spool dir: %w", err)
	}
	if err := s.sweep(ctx, dir); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("sweep %s: %w", dir, err)
	}

	watchErr := make(chan error, 1)
	go func() { watchErr <- s.watcher.Start(ctx, dir) }()
	defer func() { _ = s.watcher.Stop() }()

	slog.Info("spool_watching", slog.String("dir", dir), slog.String("namespace", s.config.Namespace))

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-watchErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
			return nil
		case batch, ok := <-s.watcher.Events():
			if !ok {
				return nil
			}
			s.handle(ctx, dir, batch)
		case err, ok := <-s.watcher.Errors():
			if ok {
				slog.Warn("spool_watch_error", slog.String("error", err.Error()))
			}
		}
	}
}

// sweep ingests every accepted file already present. Unchanged files are
// hash-skipped by the ingester.
func (s *SpoolWatcher) sweep(ctx context.Context, dir string) error {
	opts := Options{Extensions: SpoolExtensions, Exclude: s.config.Exclude}.WithDefaults()
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, _ := filepath.Rel(dir, path)
		if rel == "." {
			return nil
		}
		if opts.ignored(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			s.ingestFile(ctx, path)
		}
		return nil
	})
}

func (s *SpoolWatcher) handle(ctx context.Context, dir string, batch []FileEvent) {
	for _, ev := range batch {
		if ctx.Err() != nil {
			return
		}
		switch ev.Operation {
		case OpCreate, OpModify:
			s.ingestFile(ctx, filepath.Join(dir, ev.Path))
		default:
			slog.Debug("spool_event_ignored",
				slog.String("path", ev.Path),
				slog.String("op", ev.Operation.String()))
		}
	}
}

func (s *SpoolWatcher) ingestFile(ctx context.Context, path string) {
	doc, err := index.LoadFile(ctx, path, s.config.Namespace, s.config.Chunker)
	if err == nil {
		var res *index.IngestResult
		res, err = s.ingester.Ingest(ctx, doc)
		if err == nil {
			if res.Skipped {
				s.skipped.Add(1)
			} else {
				s.indexed.Add(1)
				slog.Info("spool_ingested",
					slog.String("path", path),
					slog.String("document_id", res.DocumentID),
					slog.Int("chunks", res.Chunks))
			}
			return
		}
	}
	s.failed.Add(1)
	slog.Warn("spool_ingest_failed", slog.String("path", path), slog.String("error", err.Error()))
}
