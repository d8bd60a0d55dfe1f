package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/output"
	"github.com/Aman-CERP/amankb/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose bool
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that this machine can run the knowledge base",
		Long: `Run the checks serve runs on first start: data directory, disk space, file
descriptors, configuration, writer lock, embedder and reranker.

Failed required checks exit non-zero. A passing run refreshes the marker so
serve skips its own check.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			checker := preflight.New(preflight.WithOutput(cmd.OutOrStdout()), preflight.WithVerbose(verbose))
			results := checker.RunAll(cmd.Context(), cfg)

			if jsonOut {
				if err := output.New(cmd.OutOrStdout()).JSON(map[string]any{
					"status": checker.SummaryStatus(results),
					"checks": results,
				}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				_ = preflight.ClearMarker(cfg.Paths.DataDir)
				return kberrors.New(kberrors.ErrCodeConfigInvalid, "system check failed", nil).
					WithSuggestion("Fix the failed checks above and run 'amankb doctor' again")
			}
			if err := preflight.MarkPassed(cfg); err != nil {
				return fmt.Errorf("write preflight marker: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for each check")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
