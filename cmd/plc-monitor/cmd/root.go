package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/plc-monitor/internal/config"
	"github.com/oshokin/plc-monitor/internal/service/monitor"
	"github.com/oshokin/plc-monitor/internal/version"
)

var (
	// options collects the flag values passed to monitor.Run.
	options monitor.Options

	// rootCmd represents the base command for running the poller.
	rootCmd = &cobra.Command{
		Use:   "plc-monitor [topology-file]",
		Short: "Poll PLC systems and serve their alarm state.",
		Long: `Continuously monitors fleets of PLC systems listed in a host file.

Every poll interval all hosts are pinged; systems whose ethernet interfaces all
respond get their alarm-summary tag read over EtherNet/IP within a fixed
deadline. Systems with an unreachable ethernet host report an unknown alarm.

Operators send resets and topology reloads with plc-monitorctl over gRPC.
Snapshots are also available as Prometheus metrics, a websocket feed and a
pub/sub stream when the corresponding addresses are configured.

The host file format is one "label,address" pair per line, for example:
  PLC1_eth0,10.0.0.1
  PLC1_node1,10.0.0.3`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use topology file argument if provided, otherwise rely on config.
			if len(args) > 0 {
				options.TopologyFile = args[0]
			}

			return monitor.Run(ctx, &options)
		},
	}
)

// Execute runs the plc-monitor CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.Flags()

	// Setup command flags with consistent naming and descriptions.
	flags.StringVarP(&options.ConfigPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVarP(&options.ListenAddress, "listen", "l", "", "gRPC listen address override")
	flags.StringVar(&options.MetricsAddress, "metrics", "", "Prometheus endpoint address override")
	flags.StringVar(&options.WebsocketAddress, "websocket", "", "websocket feed address override")
	flags.StringVar(&options.PublishAddress, "publish", "", "PUB socket address override, e.g. tcp://0.0.0.0:40899")
	flags.StringVarP(&options.ProbeMethod, "probe", "p", "", "reachability probe method override: ping or nmap")
	flags.StringVar(&options.LogLevel, "log-level", "", "log level override: debug, info, warn, error")
	flags.BoolVar(&options.AllowMultiple, "allow-multiple", false, "skip the single instance check")

	err := flags.MarkHidden("allow-multiple")
	if err != nil {
		panic(err)
	}
}
