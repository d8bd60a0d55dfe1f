package cmd

import (
	"context"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amankb/internal/index"
	"github.com/Aman-CERP/amankb/internal/output"
	"github.com/Aman-CERP/amankb/internal/ui"
)

type ingestOptions struct {
	namespace       string
	createNamespace bool
	workers         int
	maxFileSize     int64
	exclude         []string
	plain           bool
	noColor         bool
	jsonOutput      bool
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Ingest documents into a namespace",
		Long: `Ingest markdown, text and pre-chunked JSON documents.

Directories are walked recursively; hidden entries are skipped, as are
paths matching paths.exclude, --exclude or a .amankbignore file. Raw files
are chunked at headings and land in --namespace. JSON files carry their own
namespace, source URI and chunks. Documents whose content hash is unchanged
are skipped without touching the indices.

Examples:
  amankb ingest ./handbook --namespace it-support
  amankb ingest ./hr --namespace hr --create-namespace
  amankb ingest ./wiki --namespace coding --exclude 'drafts/'
  amankb ingest export/*.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runIngest(ctx, cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.namespace, "namespace", "", "Namespace for raw files and JSON documents that name none")
	cmd.Flags().BoolVar(&opts.createNamespace, "create-namespace", false, "Create the namespace if it does not exist")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Concurrent document writers (default from config)")
	cmd.Flags().Int64Var(&opts.maxFileSize, "max-file-size", index.DefaultMaxFileSize, "Skip files larger than this many bytes")
	cmd.Flags().StringSliceVar(&opts.exclude, "exclude", nil, "Gitignore-style pattern to skip (repeatable)")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain line output instead of a progress bar")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colors")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the run summary as JSON")
	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, paths []string, opts ingestOptions) error {
	kb, err := openKB(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = kb.Close() }()

	var progressOut io.Writer = cmd.OutOrStdout()
	if opts.jsonOutput {
		progressOut = io.Discard
	}
	renderer := ui.NewRenderer(ui.NewConfig(progressOut,
		ui.WithForcePlain(opts.plain),
		ui.WithNoColor(opts.noColor || ui.DetectNoColor()),
		ui.WithTitle(opts.namespace)))

	runner, err := index.NewRunner(index.RunnerDependencies{
		Renderer:    renderer,
		Coordinator: kb.Coordinator,
		Chunker:     chunkerFor(kb.Config),
		Embedder:    kb.Embedder,
	})
	if err != nil {
		return err
	}

	workers := opts.workers
	if workers <= 0 {
		workers = kb.Config.Index.Workers
	}

	if err := renderer.Start(ctx); err != nil {
		return err
	}
	res, err := runner.Run(ctx, index.RunnerConfig{
		Paths:           paths,
		Namespace:       opts.namespace,
		CreateNamespace: opts.createNamespace,
		Workers:         workers,
		MaxFileSize:     opts.maxFileSize,
		Exclude:         append(slices.Clone(kb.Config.Paths.Exclude), opts.exclude...),
	})
	_ = renderer.Stop()
	if err != nil {
		return err
	}

	slog.Info("ingest_complete",
		slog.Int("files", res.Files),
		slog.Int("indexed", res.Indexed),
		slog.Int("skipped", res.Skipped),
		slog.Int("errors", res.Errors))

	if opts.jsonOutput {
		return output.New(cmd.OutOrStdout()).JSON(res)
	}
	return nil
}
