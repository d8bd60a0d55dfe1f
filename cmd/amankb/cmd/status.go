package cmd

import (
	"context"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amankb/internal/embed"
	"github.com/Aman-CERP/amankb/internal/index"
	"github.com/Aman-CERP/amankb/internal/output"
	"github.com/Aman-CERP/amankb/internal/store"
	"github.com/Aman-CERP/amankb/internal/ui"
)

type statusOptions struct {
	jsonOutput bool
	noColor    bool
	check      bool
	repair     bool
}

func newStatusCmd() *cobra.Command {
	var opts statusOptions

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show knowledge base health",
		Long: `Show document, chunk and vector counts per namespace, storage sizes,
and which search strategy is active.

--check compares the chunk store with the lexical index, the stored vectors
and the in-memory vector graph. --repair fixes what the check finds; it
needs the writer lock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colors")
	cmd.Flags().BoolVar(&opts.check, "check", false, "Run a cross-index consistency check")
	cmd.Flags().BoolVar(&opts.repair, "repair", false, "Repair inconsistencies (implies --check)")
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, opts statusOptions) error {
	kb, err := openKB(ctx, opts.repair)
	if err != nil {
		return err
	}
	defer func() { _ = kb.Close() }()

	info, err := collectStatus(ctx, kb)
	if err != nil {
		return err
	}

	var repaired *index.RepairResult
	if opts.check || opts.repair {
		checker := index.NewConsistencyChecker(kb.Coordinator)
		result, err := checker.Check(ctx)
		if err != nil {
			return err
		}
		if opts.repair && !result.Consistent() {
			repaired, err = checker.Repair(ctx, result)
			if err != nil {
				return err
			}
			if result, err = checker.Check(ctx); err != nil {
				return err
			}
		}
		info.Consistency = result.Counts()
	}

	if opts.jsonOutput {
		return ui.NewStatusRenderer(cmd.OutOrStdout(), true).RenderJSON(info)
	}
	noColor := opts.noColor || ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout())
	if err := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor).Render(info); err != nil {
		return err
	}
	if repaired != nil {
		output.New(cmd.OutOrStdout()).Successf(
			"Repaired: lexical +%d/-%d, vectors +%d/-%d, graph reloaded %d",
			repaired.LexicalAdded, repaired.LexicalRemoved,
			repaired.VectorsAdded, repaired.VectorsRemoved, repaired.GraphReloaded)
	}
	return nil
}

func collectStatus(ctx context.Context, kb *index.KB) (ui.StatusInfo, error) {
	cfg := kb.Config
	info := ui.StatusInfo{
		DataDir:        cfg.Paths.DataDir,
		SearchStrategy: string(kb.Engine.Strategy()),
		Reranker:       cfg.Reranker.Provider,
		Degraded:       kb.Degraded,
	}

	namespaces, err := namespaceInfos(ctx, kb.Store)
	if err != nil {
		return info, err
	}
	info.Namespaces = namespaces
	for _, ns := range namespaces {
		info.Documents += ns.Documents
		info.Chunks += ns.Chunks
		info.Vectors += ns.Vectors

		docs, err := kb.Store.ListDocuments(ctx, ns.ID)
		if err != nil {
			return info, err
		}
		for _, d := range docs {
			if d.IndexedAt.After(info.LastIndexed) {
				info.LastIndexed = d.IndexedAt
			}
		}
	}

	backend := cfg.Search.LexicalBackend
	if backend == "" {
		backend = string(store.DetectLexicalBackend(cfg.Paths.DataDir))
	}
	info.LexicalBackend = backend
	info.DatabaseSize = pathSize(filepath.Join(cfg.Paths.DataDir, store.DatabaseFile))
	if store.LexicalBackend(backend) == store.LexicalBackendBleve {
		info.LexicalSize = pathSize(store.LexicalIndexPath(cfg.Paths.DataDir, backend))
	}
	info.TotalSize = pathSize(cfg.Paths.DataDir)

	ei := embed.GetInfo(ctx, kb.Embedder)
	info.EmbedderType = string(ei.Provider)
	info.EmbedderModel = ei.Model
	info.Dimensions = ei.Dimensions
	switch {
	case kb.Embedder == nil:
		info.EmbedderStatus = "disabled"
	case ei.Available:
		info.EmbedderStatus = "ready"
	default:
		info.EmbedderStatus = "offline"
	}
	return info, nil
}

// pathSize returns the size of a file, or the total size of a directory tree.
// Missing paths count as zero.
func pathSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if fi, err := d.Info(); err == nil {
				total += fi.Size()
			}
		}
		return nil
	})
	return total
}
