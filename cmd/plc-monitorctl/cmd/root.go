package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/plc-monitor/internal/config"
	"github.com/oshokin/plc-monitor/internal/service/control"
	"github.com/oshokin/plc-monitor/internal/version"
)

var (
	// options collects the persistent flag values shared by every subcommand.
	options control.Options

	// rootCmd represents the base command for operator actions.
	rootCmd = &cobra.Command{
		Use:   "plc-monitorctl",
		Short: "Control a running plc-monitor.",
		Long: `Sends operator commands to a running plc-monitor over gRPC.

Commands are queued for the next poll cycle; a reset is only written to systems
whose ethernet interfaces respond and whose alarm tag could be read. Every
command is audited on the monitor with the user and host that issued it.`,
		SilenceUsage: true,
	}

	resetCmd = &cobra.Command{
		Use:   "reset <system>",
		Short: "Reset the alarm of one system.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withSignals(func(ctx context.Context) error {
				return control.ResetSystem(ctx, &options, args[0])
			})
		},
	}

	resetAllCmd = &cobra.Command{
		Use:   "reset-all",
		Short: "Reset the alarm of every known system.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withSignals(func(ctx context.Context) error {
				return control.ResetAll(ctx, &options)
			})
		},
	}

	reloadCmd = &cobra.Command{
		Use:   "reload <topology-file>",
		Short: "Replace the monitored topology with the given host file.",
		Long: `Replaces the monitored topology with the given host file.

The path is opened by the monitor process. On failure the monitor keeps the
current topology and reports an import_failed event. When topology watching
is enabled, the monitor watches the reloaded file from then on.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withSignals(func(ctx context.Context) error {
				return control.ReloadTopology(ctx, &options, args[0])
			})
		},
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Print the latest state of every system.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			options.Output = cmd.OutOrStdout()

			return withSignals(func(ctx context.Context) error {
				return control.List(ctx, &options)
			})
		},
	}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Stream snapshots and topology events until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			options.Output = cmd.OutOrStdout()

			return withSignals(func(ctx context.Context) error {
				return control.Watch(ctx, &options)
			})
		},
	}
)

// withSignals runs fn with a context canceled on SIGTERM or SIGINT.
func withSignals(fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return fn(ctx)
}

// Execute runs the plc-monitorctl CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.PersistentFlags()

	// Setup command flags with consistent naming and descriptions.
	flags.StringVarP(&options.ConfigPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVarP(&options.ServerAddress, "server", "s", "", "monitor gRPC address override")
	flags.DurationVarP(&options.Timeout, "timeout", "t", 0, "per-call timeout override")
	flags.BoolVar(&options.JSON, "json", false, "print JSON instead of text")

	rootCmd.AddCommand(resetCmd, resetAllCmd, reloadCmd, listCmd, watchCmd)
}
