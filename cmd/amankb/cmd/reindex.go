package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/index"
	"github.com/Aman-CERP/amankb/internal/output"
	"github.com/Aman-CERP/amankb/internal/ui"
)

func newReindexCmd() *cobra.Command {
	var vectors, plain bool

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the derived indices from the chunk store",
		Long: `The chunk store is the source of truth; the lexical index and the vectors
are derived from it.

By default reindex brings both indices back in line with the store,
re-embedding only chunks that lack a vector. With --vectors every chunk is
re-embedded with the configured model, which is what an embedding model
change needs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runReindex(ctx, cmd, vectors, plain)
		},
	}

	cmd.Flags().BoolVar(&vectors, "vectors", false, "Re-embed every chunk")
	cmd.Flags().BoolVar(&plain, "plain", false, "Plain line output instead of a progress bar")
	return cmd
}

func runReindex(ctx context.Context, cmd *cobra.Command, vectors, plain bool) error {
	kb, err := openKB(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = kb.Close() }()
	out := output.New(cmd.OutOrStdout())

	if !vectors {
		checker := index.NewConsistencyChecker(kb.Coordinator)
		result, err := checker.Check(ctx)
		if err != nil {
			return err
		}
		if result.Consistent() {
			out.Successf("All %d chunks are indexed", result.Checked)
			return nil
		}
		rep, err := checker.Repair(ctx, result)
		if err != nil {
			return err
		}
		out.Successf("Reindexed: lexical +%d/-%d, vectors +%d/-%d",
			rep.LexicalAdded, rep.LexicalRemoved, rep.VectorsAdded, rep.VectorsRemoved)
		return nil
	}

	if !kb.Coordinator.HasVectors() {
		return kberrors.EmbeddingUnavailable("vector search is disabled", nil).
			WithSuggestion("Set embeddings.provider to static or ollama")
	}

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(), ui.WithForcePlain(plain), ui.WithTitle("vectors")))
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	start := time.Now()
	n, err := kb.Coordinator.RebuildVectors(ctx, func(done, total int) {
		renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Current: done, Total: total})
	})
	if err == nil {
		renderer.Complete(ui.CompletionStats{
			Chunks:   n,
			Duration: time.Since(start),
			Embedder: ui.EmbedderInfo{
				Backend:    kb.Config.Embeddings.Provider,
				Model:      kb.Embedder.ModelName(),
				Dimensions: kb.Embedder.Dimensions(),
			},
		})
	}
	_ = renderer.Stop()
	return err
}
