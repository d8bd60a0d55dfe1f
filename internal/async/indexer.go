package async

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Aman-CERP/amankb/internal/embed"
	"github.com/Aman-CERP/amankb/internal/index"
)

// MarkerFile exists in the data directory while a background run is in
// progress. Finding it at startup means a run was interrupted.
const MarkerFile = ".ingest.marker"

// ErrAlreadyRunning is returned by Start while a run is in progress.
var ErrAlreadyRunning = errors.New("background ingest already running")

// IndexFunc does the work of one run, reporting into progress.
type IndexFunc func(ctx context.Context, progress *IndexProgress) error

// IndexerConfig configures a BackgroundIndexer.
type IndexerConfig struct {
	DataDir string
}

// BackgroundIndexer runs one IndexFunc at a time in a goroutine.
type BackgroundIndexer struct {
	config   IndexerConfig
	progress *IndexProgress

	// IndexFunc is the work to run. Injected for tests.
	IndexFunc IndexFunc

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
	err     error
}

// NewBackgroundIndexer creates an idle indexer.
func NewBackgroundIndexer(cfg IndexerConfig) *BackgroundIndexer {
	done := make(chan struct{})
	close(done)
	return &BackgroundIndexer{config: cfg, progress: NewIndexProgress(), doneCh: done}
}

// RunnerFunc adapts an ingest run over coord into an IndexFunc.
func RunnerFunc(coord *index.Coordinator, embedder embed.Embedder, cfg index.RunnerConfig) IndexFunc {
	return func(ctx context.Context, progress *IndexProgress) error {
		runner, err := index.NewRunner(index.RunnerDependencies{
			Renderer:    progress,
			Coordinator: coord,
			Embedder:    embedder,
		})
		if err != nil {
			return err
		}
		_, err = runner.Run(ctx, cfg)
		return err
	}
}

// Progress returns the tracker of the current or last run.
func (b *BackgroundIndexer) Progress() *IndexProgress {
	return b.progress
}

// IsRunning reports whether a run is in progress.
func (b *BackgroundIndexer) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Start launches a run and returns immediately. Use Wait to block.
func (b *BackgroundIndexer) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	b.running = true
	b.cancel = cancel
	b.err = nil
	b.doneCh = make(chan struct{})
	b.progress.begin()

	go b.run(ctx, b.doneCh)
	return nil
}

func (b *BackgroundIndexer) run(ctx context.Context, done chan struct{}) {
	err := b.execute(ctx)
	if err != nil {
		b.progress.SetError(err.Error())
	} else {
		b.progress.SetReady()
	}

	b.mu.Lock()
	b.err = err
	b.running = false
	b.cancel()
	b.mu.Unlock()
	close(done)
}

func (b *BackgroundIndexer) execute(ctx context.Context) error {
	if err := os.MkdirAll(b.config.DataDir, 0o755); err != nil {
		return err
	}
	marker := filepath.Join(b.config.DataDir, MarkerFile)
	if err := os.WriteFile(marker, []byte(time.Now().Format(time.RFC3339)), 0o644); err != nil {
		return err
	}
	defer func() { _ = os.Remove(marker) }()

	if b.IndexFunc == nil {
		return nil
	}
	return b.IndexFunc(ctx, b.progress)
}

// Stop cancels a run in progress and waits for it to finish.
func (b *BackgroundIndexer) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.doneCh
	running := b.running
	b.mu.Unlock()

	if running && cancel != nil {
		cancel()
	}
	<-done
}

// Wait blocks until the current run completes and returns its error.
func (b *BackgroundIndexer) Wait() error {
	b.mu.Lock()
	done := b.doneCh
	b.mu.Unlock()

	<-done
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// HasIncompleteRun reports whether a previous run was interrupted.
func HasIncompleteRun(dataDir string) bool {
	_, err := os.Stat(filepath.Join(dataDir, MarkerFile))
	return err == nil
}
