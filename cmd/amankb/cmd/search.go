package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amankb/internal/output"
	"github.com/Aman-CERP/amankb/internal/search"
)

type searchOptions struct {
	namespace     string
	limit         int
	format        string // "text", "json"
	explain       bool
	lexicalWeight float64
	vectorWeight  float64
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Long: `Answer a natural-language question with ranked chunks.

The question is classified as policy, procedure or reference; the intent
picks the lexical/vector fusion weights and may boost documents of the
matching category. Without --namespace every namespace is searched.

Examples:
  amankb search "can I use a USB flash drive" --namespace it-support
  amankb search "how do I reset my password" --limit 3
  amankb search "vpn gateway" --format json
  amankb search "printer on floor three" --explain`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.namespace, "namespace", "", "Namespace to search (default all)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show per-stage scores of each result")
	cmd.Flags().Float64Var(&opts.lexicalWeight, "lexical-weight", 0, "Override the lexical fusion weight")
	cmd.Flags().Float64Var(&opts.vectorWeight, "vector-weight", 0, "Override the vector fusion weight")
	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q (use text or json)", opts.format)
	}

	kb, err := openKB(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = kb.Close() }()

	q := search.Query{Text: query, Namespace: opts.namespace, Limit: opts.limit}
	if cmd.Flags().Changed("lexical-weight") || cmd.Flags().Changed("vector-weight") {
		w := kb.Engine.Config().WeightsFor(search.IntentUnknown)
		if cmd.Flags().Changed("lexical-weight") {
			w.Lexical = opts.lexicalWeight
		}
		if cmd.Flags().Changed("vector-weight") {
			w.Vector = opts.vectorWeight
		}
		q.Weights = &w
	}

	resp, err := kb.Engine.Search(ctx, q)
	if err != nil {
		return err
	}
	slog.Debug("search_complete",
		slog.String("intent", string(resp.Intent)),
		slog.Int("results", len(resp.Results)))

	out := output.New(cmd.OutOrStdout())
	if opts.format == "json" {
		return out.JSON(resp)
	}
	out.SearchResponse(resp, opts.explain)
	return nil
}
