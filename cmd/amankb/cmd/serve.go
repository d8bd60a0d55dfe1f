package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amankb/internal/async"
	"github.com/Aman-CERP/amankb/internal/config"
	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/feedback"
	"github.com/Aman-CERP/amankb/internal/index"
	"github.com/Aman-CERP/amankb/internal/logging"
	"github.com/Aman-CERP/amankb/internal/mcp"
	"github.com/Aman-CERP/amankb/internal/preflight"
	"github.com/Aman-CERP/amankb/internal/watcher"
)

// shutdownTimeout bounds graceful shutdown of the metrics listener and the
// quality scheduler.
const shutdownTimeout = 5 * time.Second

type serveOptions struct {
	transport       string
	metricsAddr     string
	ingest          []string
	namespace       string
	createNamespace bool
	spoolDir        string
	polling         bool
	skipCheck       bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the knowledge base over MCP",
		Long: `Start the MCP server on stdio. Tools: search, feedback, index_status and
list_namespaces. Chunks are readable as chunk://{id} resources.

stdout carries only MCP messages; logs go to ~/.amankb/logs/server.log.

--ingest runs an ingest in the background while searches are served, and
--spool follows a drop directory. Both take the writer lock.

Examples:
  amankb serve
  amankb serve --metrics-addr 127.0.0.1:9464
  amankb serve --ingest ./handbook --namespace it-support
  amankb serve --spool ~/kb-inbox --namespace it-support`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runServe(ctx, cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", "", "MCP transport (default from config: stdio)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().StringSliceVar(&opts.ingest, "ingest", nil, "Paths to ingest in the background (repeatable)")
	cmd.Flags().StringVar(&opts.namespace, "namespace", "", "Namespace for --ingest and --spool")
	cmd.Flags().BoolVar(&opts.createNamespace, "create-namespace", false, "Create the namespace if it does not exist")
	cmd.Flags().StringVar(&opts.spoolDir, "spool", "", "Ingest files dropped into this directory")
	cmd.Flags().BoolVar(&opts.polling, "polling", false, "Poll the spool instead of using file system events")
	cmd.Flags().BoolVar(&opts.skipCheck, "skip-check", false, "Skip the first-start system check")
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts serveOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// stdout belongs to the MCP transport.
	if !debugMode {
		cleanup, err := logging.SetupDefault(logging.ServeConfig(cfg.Server.LogLevel))
		if err != nil {
			return err
		}
		defer cleanup()
	}

	if !opts.skipCheck && preflight.NeedsCheck(cfg) {
		if err := runPreflight(ctx, cfg); err != nil {
			return err
		}
	}

	writer := len(opts.ingest) > 0 || opts.spoolDir != ""
	kb, err := index.Open(ctx, cfg, index.OpenOptions{Writer: writer})
	if err != nil {
		return err
	}
	defer func() { _ = kb.Close() }()

	srv, err := mcp.NewServer(mcp.Dependencies{
		Engine:   kb.Engine,
		Feedback: kb.Feedback,
		Catalog:  kb.Store,
		Embedder: kb.Embedder,
		Config:   cfg,
		Metrics:  kb.Metrics,
		Degraded: kb.Degraded,
	})
	if err != nil {
		return err
	}

	stopScheduler, err := startQualityScheduler(kb.Feedback, cfg.Feedback.RecomputeSchedule)
	if err != nil {
		return err
	}
	defer stopScheduler()

	if opts.createNamespace && opts.namespace != "" {
		if err := kb.Coordinator.CreateNamespace(ctx, opts.namespace, ""); err != nil {
			return err
		}
	}

	if len(opts.ingest) > 0 {
		bg := startBackgroundIngest(ctx, kb, opts)
		srv.SetIndexProgress(bg.Progress())
		defer bg.Stop()
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(serveCtx)

	if opts.spoolDir != "" {
		spool, err := newSpool(kb, opts.spoolDir, opts.namespace, opts.polling)
		if err != nil {
			return err
		}
		g.Go(func() error { return spool.Run(gctx) })
	}

	addr := opts.metricsAddr
	if addr == "" {
		addr = cfg.Server.MetricsAddr
	}
	if addr != "" {
		startMetricsServer(gctx, g, addr, kb.Metrics.Handler())
	}

	transport := opts.transport
	if transport == "" {
		transport = cfg.Server.Transport
	}
	g.Go(func() error {
		defer cancel()
		return srv.Serve(gctx, transport)
	})

	slog.Info("server_started",
		slog.String("transport", transport),
		slog.String("data_dir", cfg.Paths.DataDir),
		slog.String("strategy", string(kb.Engine.Strategy())),
		slog.Bool("writer", writer))

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	slog.Info("server_stopped")
	return err
}

func startBackgroundIngest(ctx context.Context, kb *index.KB, opts serveOptions) *async.BackgroundIndexer {
	dataDir := kb.Config.Paths.DataDir
	if async.HasIncompleteRun(dataDir) {
		slog.Warn("previous_ingest_interrupted", slog.String("data_dir", dataDir))
	}

	bg := async.NewBackgroundIndexer(async.IndexerConfig{DataDir: dataDir})
	bg.IndexFunc = async.RunnerFunc(kb.Coordinator, kb.Embedder, index.RunnerConfig{
		Paths:     opts.ingest,
		Namespace: opts.namespace,
		Workers:   kb.Config.Index.Workers,
		Exclude:   kb.Config.Paths.Exclude,
	})
	if err := bg.Start(ctx); err != nil {
		slog.Warn("background_ingest_not_started", slog.String("error", err.Error()))
	}
	return bg
}

func startMetricsServer(ctx context.Context, g *errgroup.Group, addr string, metrics http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	httpSrv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		slog.Info("metrics_listening", slog.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})
}

// startQualityScheduler runs the periodic quality recompute. An empty
// schedule disables it.
func startQualityScheduler(svc *feedback.Service, schedule string) (func(), error) {
	if schedule == "" {
		return func() {}, nil
	}
	s, err := feedback.NewScheduler(svc, schedule)
	if err != nil {
		return nil, err
	}
	s.Start()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.Stop(ctx)
	}, nil
}

// newSpool builds a spool watcher over dir that ingests into kb.
func newSpool(kb *index.KB, dir, namespace string, polling bool) (*watcher.SpoolWatcher, error) {
	w, err := watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow: config.Duration(kb.Config.Index.WatchDebounce, watcher.DefaultOptions().DebounceWindow),
		Extensions:     watcher.SpoolExtensions,
		Exclude:        kb.Config.Paths.Exclude,
		ForcePolling:   polling,
	})
	if err != nil {
		return nil, err
	}
	return watcher.NewSpoolWatcher(w, kb.Coordinator, watcher.SpoolConfig{
		Dir:       dir,
		Namespace: namespace,
		Chunker:   chunkerFor(kb.Config),
		Exclude:   kb.Config.Paths.Exclude,
	}), nil
}

// runPreflight runs the system check quietly; stdout belongs to MCP. Warnings
// are logged, a failed required check stops the server.
func runPreflight(ctx context.Context, cfg *config.Config) error {
	checker := preflight.New(preflight.WithOutput(io.Discard))
	results := checker.RunAll(ctx, cfg)
	for _, r := range results {
		switch {
		case r.IsCritical():
			slog.Error("preflight_failed", slog.String("check", r.Name), slog.String("message", r.Message))
		case r.Status != preflight.StatusPass:
			slog.Warn("preflight_warning", slog.String("check", r.Name), slog.String("message", r.Message))
		}
	}
	if checker.HasCriticalFailures(results) {
		return kberrors.New(kberrors.ErrCodeConfigInvalid, "system check failed", nil).
			WithSuggestion("Run 'amankb doctor' for details, or pass --skip-check")
	}
	if err := preflight.MarkPassed(cfg); err != nil {
		slog.Warn("preflight_marker_failed", slog.String("error", err.Error()))
	}
	return nil
}
