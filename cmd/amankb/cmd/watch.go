package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amankb/internal/output"
)

type watchOptions struct {
	namespace       string
	createNamespace bool
	polling         bool
}

func newWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Ingest files dropped into a spool directory",
		Long: `Follow a spool directory and ingest every .json, .md, .markdown, .mdx or
.txt file created or changed in it. Files already present are ingested at
start; unchanged content is skipped by hash. Deleting a spool file does not
delete the document.

Without an argument the directory comes from paths.spool_dir.

Examples:
  amankb watch ~/kb-inbox --namespace it-support
  amankb watch --polling`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runWatch(ctx, cmd, dir, opts)
		},
	}

	cmd.Flags().StringVar(&opts.namespace, "namespace", "", "Namespace for raw files and JSON documents that name none")
	cmd.Flags().BoolVar(&opts.createNamespace, "create-namespace", false, "Create the namespace if it does not exist")
	cmd.Flags().BoolVar(&opts.polling, "polling", false, "Poll instead of using file system events")
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, dir string, opts watchOptions) error {
	kb, err := openKB(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = kb.Close() }()

	if dir == "" {
		dir = kb.Config.Paths.SpoolDir
	}
	if dir == "" {
		return errors.New("no spool directory: pass one or set paths.spool_dir")
	}
	if opts.createNamespace && opts.namespace != "" {
		if err := kb.Coordinator.CreateNamespace(ctx, opts.namespace, ""); err != nil {
			return err
		}
	}

	stopScheduler, err := startQualityScheduler(kb.Feedback, kb.Config.Feedback.RecomputeSchedule)
	if err != nil {
		return err
	}
	defer stopScheduler()

	spool, err := newSpool(kb, dir, opts.namespace, opts.polling)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("", "Watching %s (Ctrl+C to stop)", dir)
	slog.Info("watch_started", slog.String("dir", dir), slog.String("namespace", opts.namespace))

	runErr := spool.Run(ctx)

	stats := spool.Stats()
	out.Successf("Stopped: %d indexed, %d unchanged, %d failed", stats.Indexed, stats.Skipped, stats.Failed)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
