package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/mergewatch/internal/config"
	"github.com/steveyegge/mergewatch/internal/logging"
	"github.com/steveyegge/mergewatch/internal/telemetry"
	"github.com/steveyegge/mergewatch/internal/ui"
)

// Version is the mergewatch release.
var Version = "0.3.0"

var (
	configFile  string
	verboseFlag bool
	noColorFlag bool
	botFlag     string

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc

	logger   *slog.Logger
	settings config.Settings
)

var rootCmd = &cobra.Command{
	Use:   "mergewatch",
	Short: "mergewatch - functional tests for the merge service",
	Long: `Drives a Perforce server and a running merge service through scripted
scenarios and checks that the service merges, blocks and resolves as expected.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		if err := config.Initialize(configFile); err != nil {
			return err
		}
		if botFlag != "" {
			config.Set("bot", botFlag)
		}
		if verboseFlag {
			config.Set("log.level", "verbose")
		}
		settings = config.Load()

		level, err := logging.ParseLevel(settings.LogLevel)
		if err != nil {
			return err
		}
		color := settings.Color && !noColorFlag && ui.ShouldUseColor()
		ui.ApplyColorProfile(color)
		logger = logging.New(os.Stderr, level, color)
		slog.SetDefault(logger)

		if err := telemetry.Init(rootCtx, "mergewatch", Version); err != nil {
			WarnError("telemetry disabled: %v", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if rootCtx != nil {
			telemetry.Shutdown(rootCtx)
		}
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ./mergewatch.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "log every poll decision")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&botFlag, "bot", "", "bot to test (overrides config)")
	rootCmd.Version = Version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		FatalError("%v", err)
	}
}

// printf writes command output to stdout.
func printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format, args...)
}
