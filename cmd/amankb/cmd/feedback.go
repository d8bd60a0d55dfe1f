package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amankb/internal/output"
)

func newFeedbackCmd() *cobra.Command {
	var comment string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "feedback <chunk-or-document-id> <rating>",
		Short: "Rate a search result",
		Long: `Record a rating for a chunk or document.

Ratings are helpful, not_helpful, incorrect, or a number from 1 to 5.
Once a target has enough ratings its quality multiplier moves search
scores up or down within the configured bounds.

Examples:
  amankb feedback 3f2a9c1e helpful
  amankb feedback 3f2a9c1e incorrect --comment "policy changed in March"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeedback(cmd.Context(), cmd, args[0], args[1], comment, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&comment, "comment", "m", "", "Optional comment stored with the rating")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the record as JSON")
	return cmd
}

func runFeedback(ctx context.Context, cmd *cobra.Command, target, rating, comment string, jsonOutput bool) error {
	kb, err := openKB(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = kb.Close() }()

	rec, err := kb.Feedback.RecordFeedback(ctx, target, rating, comment)
	if err != nil {
		return err
	}
	q, err := kb.Feedback.Quality(ctx, target)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if jsonOutput {
		return out.JSON(struct {
			Record  any `json:"record"`
			Quality any `json:"quality"`
		}{rec, q})
	}
	out.Successf("Recorded %s for %s", rec.Rating, target)
	out.Statusf("", "quality %.2f from %d rating(s)", q.Multiplier, q.Samples)
	return nil
}

func newQualityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quality",
		Short: "Inspect or recompute feedback quality",
	}
	cmd.AddCommand(newQualityShowCmd())
	cmd.AddCommand(newQualityRecomputeCmd())
	return cmd
}

func newQualityShowCmd() *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <chunk-or-document-id>",
		Short: "Show the quality multiplier and rating history of a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			kb, err := openKB(ctx, false)
			if err != nil {
				return err
			}
			defer func() { _ = kb.Close() }()

			q, err := kb.Feedback.Quality(ctx, args[0])
			if err != nil {
				return err
			}
			history, err := kb.Feedback.History(ctx, args[0], limit)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(struct {
					Quality any `json:"quality"`
					History any `json:"history"`
				}{q, history})
			}

			out.Statusf("", "%s: quality %.2f from %d rating(s)", args[0], q.Multiplier, q.Samples)
			if len(history) == 0 {
				return nil
			}
			out.Newline()
			rows := make([][]string, 0, len(history))
			for _, r := range history {
				rows = append(rows, []string{
					r.CreatedAt.Format("2006-01-02 15:04"),
					string(r.Rating),
					strconv.FormatFloat(r.Signal, 'f', 2, 64),
					r.Comment,
				})
			}
			out.Table([]string{"WHEN", "RATING", "SIGNAL", "COMMENT"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Newest ratings to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newQualityRecomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild every quality multiplier from the feedback log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			kb, err := openKB(ctx, false)
			if err != nil {
				return err
			}
			defer func() { _ = kb.Close() }()

			n, err := kb.Feedback.RecomputeAll(ctx)
			if err != nil {
				return fmt.Errorf("recompute quality: %w", err)
			}
			output.New(cmd.OutOrStdout()).Successf("Recomputed quality for %d target(s)", n)
			return nil
		},
	}
}
