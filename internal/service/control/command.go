package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/oshokin/plc-monitor/internal/api/wire"
	"github.com/oshokin/plc-monitor/internal/config"
	"github.com/oshokin/plc-monitor/internal/logger"
	"github.com/oshokin/plc-monitor/internal/service/common"
)

// Options controls how plc-monitorctl reaches the monitor.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerAddress overrides the monitor gRPC address.
	ServerAddress string
	// Timeout overrides the per-call timeout.
	Timeout time.Duration
	// JSON prints machine-readable output.
	JSON bool
	// Output receives listings and events; defaults to stdout.
	Output io.Writer
}

// ResetSystem requests an alarm reset of one system.
func ResetSystem(ctx context.Context, opts *Options, name string) error {
	return withClient(ctx, opts, func(ctx context.Context, client *common.Client) error {
		if err := client.ResetSystem(ctx, name); err != nil {
			return err
		}

		logger.InfoKV(ctx, "Reset requested", "system", name)

		return nil
	})
}

// ResetAll requests an alarm reset of every system.
func ResetAll(ctx context.Context, opts *Options) error {
	return withClient(ctx, opts, func(ctx context.Context, client *common.Client) error {
		if err := client.ResetAll(ctx); err != nil {
			return err
		}

		logger.Info(ctx, "Reset of all systems requested")

		return nil
	})
}

// ReloadTopology requests a topology reload from source.
// A source that exists locally is sent as an absolute path.
func ReloadTopology(ctx context.Context, opts *Options, source string) error {
	if _, err := os.Stat(source); err == nil {
		if absolute, err := filepath.Abs(source); err == nil {
			source = absolute
		}
	}

	return withClient(ctx, opts, func(ctx context.Context, client *common.Client) error {
		if err := client.ReloadTopology(ctx, source); err != nil {
			return err
		}

		logger.InfoKV(ctx, "Topology reload requested", "source", source)

		return nil
	})
}

// List prints the latest snapshot of every system.
func List(ctx context.Context, opts *Options) error {
	return withClient(ctx, opts, func(ctx context.Context, client *common.Client) error {
		systems, err := client.ListSystems(ctx)
		if err != nil {
			return err
		}

		if opts.JSON {
			return writeJSON(opts.output(), systems)
		}

		return writeTable(opts.output(), systems)
	})
}

// Watch prints events until ctx is canceled.
func Watch(ctx context.Context, opts *Options) error {
	return withClient(ctx, opts, func(ctx context.Context, client *common.Client) error {
		out := opts.output()

		return client.WatchEvents(ctx, func(event *wire.Event) error {
			if opts.JSON {
				return writeJSON(out, event)
			}

			_, err := fmt.Fprintln(out, FormatEvent(event))

			return err
		})
	})
}

// FormatEvent renders an event as one human-readable line.
func FormatEvent(event *wire.Event) string {
	switch {
	case event.System != nil:
		s := event.System

		line := fmt.Sprintf("cycle %d %s alarm=%s eth=%s nodes=%s", event.Cycle, s.Name, s.Alarm, s.EthernetStatus, s.NodesStatus)
		if len(s.FailedHosts) > 0 {
			line += " down=" + strings.Join(s.FailedHosts, ",")
		}

		return line
	case event.Message != "":
		return fmt.Sprintf("%s %s: %s", event.Kind, event.Source, event.Message)
	case event.Source != "":
		return fmt.Sprintf("%s %s: %s", event.Kind, event.Source, strings.Join(event.Systems, ","))
	default:
		return event.Kind
	}
}

func writeJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}

func writeTable(out io.Writer, systems []wire.System) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(tw, "SYSTEM\tALARM\tETHERNET\tNODES\tDOWN")

	for _, s := range systems {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			s.Name, s.Alarm, s.EthernetStatus, s.NodesStatus, strings.Join(s.FailedHosts, ","))
	}

	return tw.Flush()
}

func (o *Options) output() io.Writer {
	if o.Output == nil {
		return os.Stdout
	}

	return o.Output
}

// withClient resolves settings, dials the monitor and runs fn.
func withClient(ctx context.Context, opts *Options, fn func(context.Context, *common.Client) error) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "plc-monitorctl")

	cfg, err := config.Load(opts.ConfigPath)

	switch {
	case err == nil:
	case config.IsDefaultPath(opts.ConfigPath) && errors.Is(err, os.ErrNotExist):
		cfg = config.Default()
	default:
		return fmt.Errorf("load configuration: %w", err)
	}

	// Determine server address: command line argument overrides config.
	serverAddress := cfg.ListenAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	timeout := cfg.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	// Detect current system actor for audit logging.
	actor, err := common.DetectActor()
	if err != nil {
		return fmt.Errorf("detect actor: %w", err)
	}

	client, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(timeout), common.WithActor(actor))
	if err != nil {
		return fmt.Errorf("dial monitor: %w", err)
	}

	// Ensure connection cleanup on function exit.
	defer func() {
		_ = client.Close()
	}()

	return fn(ctx, client)
}
