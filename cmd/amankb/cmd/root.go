// Package cmd provides the CLI commands for AmanKB.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amankb/internal/chunk"
	"github.com/Aman-CERP/amankb/internal/config"
	"github.com/Aman-CERP/amankb/internal/index"
	"github.com/Aman-CERP/amankb/internal/logging"
	"github.com/Aman-CERP/amankb/internal/profiling"
	"github.com/Aman-CERP/amankb/pkg/version"
)

// Global flags
var (
	debugMode      bool
	dataDirFlag    string
	configDirFlag  string
	loggingCleanup func()

	profileOpts    profiling.Options
	profileSession *profiling.Session
)

// NewRootCmd creates the root command for the amankb CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "amankb",
		Short: "Local hybrid search over team knowledge",
		Long: `AmanKB indexes policies, procedures and reference documents into
namespaces and answers natural-language questions over them.

Ranking fuses keyword (lexical) and semantic (vector) search, boosts the
document category that matches the question's intent, and learns from
helpful / not helpful feedback.

Everything runs locally. Serve it to AI assistants over MCP with
'amankb serve'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("amankb version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.amankb/logs/")
	cmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Knowledge base directory (default ~/.amankb/data)")
	cmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", "", "Directory holding .amankb.yaml (default current directory)")

	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write a CPU profile to this file")
	cmd.PersistentFlags().StringVar(&profileOpts.Mem, "profile-mem", "", "Write a heap profile to this file on exit")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write an execution trace to this file")
	_ = cmd.PersistentFlags().MarkHidden("profile-trace")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := startLogging(cmd, args); err != nil {
			return err
		}
		return startProfiling()
	}
	cmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		stopProfiling()
		return stopLogging(cmd, args)
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newFeedbackCmd())
	cmd.AddCommand(newQualityCmd())
	cmd.AddCommand(newNamespaceCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging installs the debug file logger when --debug is set, and a
// quiet stderr logger otherwise.
func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		slog.SetDefault(logging.StderrLogger("warn"))
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug_logging_enabled",
		slog.String("log_file", logging.DefaultLogPath()),
		slog.String("version", version.Version))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		slog.Info("debug_logging_stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

func startProfiling() error {
	if !profileOpts.Enabled() {
		return nil
	}
	s, err := profiling.Start(profileOpts)
	if err != nil {
		return err
	}
	profileSession = s
	return nil
}

// stopProfiling flushes profiles. It also runs after a failed command, where
// cobra skips the post-run hook.
func stopProfiling() {
	if profileSession == nil {
		return
	}
	if err := profileSession.Stop(); err != nil {
		slog.Warn("profile_write_failed", slog.String("error", err.Error()))
	}
	profileSession = nil
}

// Execute runs the root command.
func Execute() error {
	defer stopProfiling()
	return NewRootCmd().Execute()
}

// loadConfig resolves configuration for the config directory and applies
// the --data-dir override.
func loadConfig() (*config.Config, error) {
	dir := configDirFlag
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		dir = wd
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if dataDirFlag != "" {
		cfg.Paths.DataDir = dataDirFlag
	}
	return cfg, nil
}

// openKB loads configuration and opens the knowledge base. Writers hold the
// data directory lock until Close.
func openKB(ctx context.Context, writer bool) (*index.KB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return index.Open(ctx, cfg, index.OpenOptions{Writer: writer})
}

// signalContext cancels on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// chunkerFor builds the raw-file chunker from index settings.
func chunkerFor(cfg *config.Config) chunk.Chunker {
	return chunk.NewMarkdownChunkerWithOptions(chunk.MarkdownChunkerOptions{
		MaxChunkTokens:    cfg.Index.MaxChunkTokens,
		TargetChunkTokens: cfg.Index.TargetChunkTokens,
	})
}
