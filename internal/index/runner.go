package index

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amankb/internal/chunk"
	"github.com/Aman-CERP/amankb/internal/embed"
	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/ignore"
	"github.com/Aman-CERP/amankb/internal/ui"
)

// DefaultMaxFileSize bounds the files a run reads. Larger files are skipped
// with a warning.
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// RunnerConfig configures one ingest run.
type RunnerConfig struct {
	// Paths are files or directories to ingest.
	Paths []string

	// Namespace receives raw files and JSON documents that name none.
	Namespace string

	// CreateNamespace registers Namespace before ingesting.
	CreateNamespace bool

	// Workers bounds documents ingested in parallel (default 1).
	Workers int

	// Exclude holds gitignore-style patterns, relative to each path. A
	// .amankbignore file at the root of a directory adds to them.
	Exclude []string

	MaxFileSize int64
}

// RunnerResult is the outcome of a run.
type RunnerResult struct {
	Files    int           `json:"files"`
	Indexed  int           `json:"indexed"`
	Skipped  int           `json:"skipped"`
	Chunks   int           `json:"chunks"`
	Errors   int           `json:"errors"`
	Warnings int           `json:"warnings"`
	Duration time.Duration `json:"duration_ns"`
}

// RunnerDependencies are the injected collaborators of a Runner.
type RunnerDependencies struct {
	// Renderer for progress display (required).
	Renderer ui.Renderer

	// Coordinator applies each document (required).
	Coordinator *Coordinator

	// Chunker splits raw files. Defaults to the markdown chunker.
	Chunker chunk.Chunker

	// Embedder is only described in the completion summary.
	Embedder embed.Embedder
}

// Runner loads files from disk and ingests them with progress reporting.
type Runner struct {
	renderer ui.Renderer
	coord    *Coordinator
	chunker  chunk.Chunker
	embedder embed.Embedder
}

// NewRunner creates a Runner.
func NewRunner(deps RunnerDependencies) (*Runner, error) {
	if deps.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	chunker := deps.Chunker
	if chunker == nil {
		chunker = chunk.NewMarkdownChunker()
	}
	return &Runner{
		renderer: deps.Renderer,
		coord:    deps.Coordinator,
		chunker:  chunker,
		embedder: deps.Embedder,
	}, nil
}

type stageTiming struct {
	scan  time.Duration
	chunk time.Duration
	index time.Duration
}

// Run scans, loads and ingests. A failing document is reported and counted;
// the run continues. Cancellation is checked between documents.
func (r *Runner) Run(ctx context.Context, cfg RunnerConfig) (*RunnerResult, error) {
	start := time.Now()
	var timing stageTiming
	result := &RunnerResult{}

	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.CreateNamespace && cfg.Namespace != "" {
		if err := r.coord.CreateNamespace(ctx, cfg.Namespace, ""); err != nil {
			return nil, err
		}
	}

	// Stage 1: scan
	scanStart := time.Now()
	files, err := r.scan(ctx, cfg)
	if err != nil {
		return nil, err
	}
	timing.scan = time.Since(scanStart)
	result.Files = len(files)

	// Stage 2: load and chunk
	chunkStart := time.Now()
	docs := make([]*IngestedDocument, 0, len(files))
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.renderer.UpdateProgress(ui.ProgressEvent{
			Stage: ui.StageChunking, Current: i + 1, Total: len(files), CurrentFile: path,
		})
		doc, err := LoadFile(ctx, path, cfg.Namespace, r.chunker)
		if err != nil {
			result.Errors++
			r.renderer.AddError(ui.ErrorEvent{File: path, Err: err})
			continue
		}
		docs = append(docs, doc)
	}
	timing.chunk = time.Since(chunkStart)

	// Stage 3: index
	indexStart := time.Now()
	var mu sync.Mutex
	done := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, doc := range docs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.coord.Ingest(gctx, doc)

			mu.Lock()
			defer mu.Unlock()
			done++
			r.renderer.UpdateProgress(ui.ProgressEvent{
				Stage: ui.StageIndexing, Current: done, Total: len(docs), CurrentFile: doc.SourceURI,
			})
			switch {
			case err != nil && gctx.Err() != nil:
				return gctx.Err()
			case err != nil:
				result.Errors++
				r.renderer.AddError(ui.ErrorEvent{File: doc.SourceURI, Err: err})
			case res.Skipped:
				result.Skipped++
			default:
				result.Indexed++
				result.Chunks += res.Chunks
				for _, w := range res.Warnings {
					result.Warnings++
					r.renderer.AddError(ui.ErrorEvent{File: doc.SourceURI, Err: fmt.Errorf("%s", w), IsWarn: true})
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timing.index = time.Since(indexStart)
	result.Duration = time.Since(start)

	info := embed.GetInfo(ctx, r.embedder)
	r.renderer.Complete(ui.CompletionStats{
		Documents: result.Indexed,
		Skipped:   result.Skipped,
		Chunks:    result.Chunks,
		Duration:  result.Duration,
		Errors:    result.Errors,
		Warnings:  result.Warnings,
		Stages:    ui.StageTimings{Scan: timing.scan, Chunk: timing.chunk, Index: timing.index},
		Embedder: ui.EmbedderInfo{
			Backend:    string(info.Provider),
			Model:      info.Model,
			Dimensions: info.Dimensions,
		},
	})

	slog.Info("ingest_run_complete",
		slog.Int("files", result.Files),
		slog.Int("indexed", result.Indexed),
		slog.Int("skipped", result.Skipped),
		slog.Int("chunks", result.Chunks),
		slog.Int("errors", result.Errors),
		slog.Int64("duration_scan_ms", timing.scan.Milliseconds()),
		slog.Int64("duration_chunk_ms", timing.chunk.Milliseconds()),
		slog.Int64("duration_index_ms", timing.index.Milliseconds()),
		slog.Int64("duration_total_ms", result.Duration.Milliseconds()))
	return result, nil
}

// scan expands cfg.Paths into the sorted list of ingestible files. Hidden
// directories and excluded paths are skipped.
func (r *Runner) scan(ctx context.Context, cfg RunnerConfig) ([]string, error) {
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageScanning,
		Message: fmt.Sprintf("Scanning %s...", strings.Join(cfg.Paths, ", ")),
	})

	exts := append([]string{".json"}, r.chunker.SupportedExtensions()...)
	var files []string
	for _, root := range cfg.Paths {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		excluded, err := excludeMatcher(abs, cfg.Exclude)
		if err != nil {
			return nil, err
		}
		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if path != abs {
				rel, _ := filepath.Rel(abs, path)
				if excluded.Match(rel, d.IsDir()) {
					if d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
			}
			if d.IsDir() {
				if path != abs && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if !slices.Contains(exts, strings.ToLower(filepath.Ext(path))) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			if info.Size() > cfg.MaxFileSize {
				r.renderer.AddError(ui.ErrorEvent{
					File: path, Err: fmt.Errorf("file exceeds %d bytes", cfg.MaxFileSize), IsWarn: true,
				})
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", root, err)
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

// excludeMatcher combines configured patterns with the ignore file at root.
func excludeMatcher(root string, patterns []string) (*ignore.Matcher, error) {
	m := ignore.New(patterns...)
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		if err := m.AddFile(filepath.Join(root, ignore.IgnoreFile)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// LoadFile turns one file into an IngestedDocument. JSON files hold a
// pre-chunked document; anything else is split by chunker. namespace fills
// in a JSON document that names none.
func LoadFile(ctx context.Context, path, namespace string, chunker chunk.Chunker) (*IngestedDocument, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		var doc IngestedDocument
		if err := json.Unmarshal(content, &doc); err != nil {
			return nil, kberrors.ValidationError("invalid document JSON", err).WithDetail("file", path)
		}
		if doc.Namespace == "" {
			doc.Namespace = namespace
		}
		return &doc, nil
	}

	if namespace == "" {
		return nil, kberrors.ValidationError("a namespace is required for raw files", nil).
			WithDetail("file", path).
			WithSuggestion("Pass --namespace")
	}
	chunked, err := chunker.Chunk(ctx, &chunk.FileInput{Path: path, Content: content})
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeChunkingFailed, "chunking failed", err).WithDetail("file", path)
	}
	if chunked.Title == "" {
		chunked.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return FromChunked(namespace, path, chunked), nil
}
