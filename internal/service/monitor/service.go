package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	api "github.com/oshokin/plc-monitor/internal/api/grpc/monitor"
	"github.com/oshokin/plc-monitor/internal/api/ws"
	"github.com/oshokin/plc-monitor/internal/bridge"
	"github.com/oshokin/plc-monitor/internal/config"
	"github.com/oshokin/plc-monitor/internal/domain/plc"
	"github.com/oshokin/plc-monitor/internal/logger"
	"github.com/oshokin/plc-monitor/internal/metrics"
	"github.com/oshokin/plc-monitor/internal/probe"
	"github.com/oshokin/plc-monitor/internal/publish"
	"github.com/oshokin/plc-monitor/internal/repository/topology"
	"github.com/oshokin/plc-monitor/internal/service/instance"
	"github.com/oshokin/plc-monitor/internal/service/poller"
	"github.com/oshokin/plc-monitor/internal/tagclient"
	"github.com/oshokin/plc-monitor/internal/version"
	"github.com/oshokin/plc-monitor/internal/watcher"
)

// Options controls the plc-monitor process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// TopologyFile overrides the host list from the settings.
	TopologyFile string
	// ListenAddress overrides the gRPC listen address.
	ListenAddress string
	// MetricsAddress overrides the Prometheus endpoint address.
	MetricsAddress string
	// WebsocketAddress overrides the websocket feed address.
	WebsocketAddress string
	// PublishAddress overrides the PUB socket address.
	PublishAddress string
	// ProbeMethod overrides the reachability probe method.
	ProbeMethod string
	// LogLevel overrides the log level.
	LogLevel string
	// AllowMultiple skips the single instance check.
	AllowMultiple bool
}

// gracefulStopTimeout bounds the graceful shutdown of the gRPC server.
const gracefulStopTimeout = 5 * time.Second

// watcherActor is the audit identity of reloads triggered by file changes.
//
//nolint:gochecknoglobals // Immutable audit identity.
var watcherActor = &plc.Actor{Hostname: "localhost", Username: "topology-watcher"}

// Run starts the poller and every configured surface and blocks until ctx is
// canceled or one of them fails.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "monitor")

	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return err
	}

	if level, ok := logger.ParseLogLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	} else {
		logger.WarnKV(ctx, "Unknown log level, keeping current", "log_level", cfg.LogLevel)
	}

	if !opts.AllowMultiple {
		if err = instance.NewGuard().Check(ctx); err != nil {
			return err
		}
	}

	prober, err := probe.New(cfg.Probe.Method, probe.Policy{
		Attempts: cfg.Probe.Attempts,
		Timeout:  cfg.Probe.Timeout,
	})
	if err != nil {
		return fmt.Errorf("create prober: %w", err)
	}

	//nolint:gosec // Validate keeps the slot within a byte.
	tags := tagclient.New(tagclient.NewEIPDialer(cfg.PLC.Port, byte(cfg.PLC.Slot)), cfg.PLC.Deadline)

	collector := metrics.New()
	store := NewStore(collector)
	sinks := poller.Fanout{store}

	var hub *ws.Hub
	if cfg.WebsocketAddress != "" {
		hub = ws.NewHub(store.Systems)
		sinks = append(sinks, hub)
	}

	if cfg.PublishAddress != "" {
		publisher, err := publish.Listen(cfg.PublishAddress)
		if err != nil {
			return fmt.Errorf("open publisher: %w", err)
		}

		defer func() {
			_ = publisher.Close()
		}()

		sinks = append(sinks, publisher)

		logger.InfoKV(ctx, "Publishing events", "address", cfg.PublishAddress)
	}

	w, err := newTopologyWatcher(cfg, store)
	if err != nil {
		return err
	}

	if w != nil {
		sinks = append(sinks, followReloads(w))
	}

	p, err := poller.New(poller.Options{
		Prober:        prober,
		Tags:          tags,
		Importer:      topology.NewFileImporter(),
		Bridge:        bridge.New(cfg.CommandBuffer),
		Sink:          sinks,
		Observer:      collector,
		Period:        cfg.PollInterval,
		InitialSource: cfg.TopologyFile,
	})
	if err != nil {
		return fmt.Errorf("create poller: %w", err)
	}

	logger.InfoKV(ctx, "Starting monitor",
		"version", version.Short(),
		"topology_file", cfg.TopologyFile,
		"poll_interval", cfg.PollInterval.String(),
		"probe_method", cfg.Probe.Method,
		"plc_deadline", cfg.PLC.Deadline.String())

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return p.Run(groupCtx)
	})

	group.Go(func() error {
		return serveGRPC(groupCtx, cfg.ListenAddress, store)
	})

	if cfg.MetricsAddress != "" {
		group.Go(func() error {
			return collector.Serve(groupCtx, cfg.MetricsAddress)
		})
	}

	if hub != nil {
		group.Go(func() error {
			return hub.Serve(groupCtx, cfg.WebsocketAddress)
		})
	}

	if w != nil {
		group.Go(func() error {
			if err := w.Watch(groupCtx); err != nil {
				// The poller keeps running without automatic reloads.
				logger.WarnKV(groupCtx, "Topology watcher stopped", "error", err)
			}

			return nil
		})
	}

	if err = group.Wait(); err != nil {
		return err
	}

	logger.Info(ctx, "Monitor stopped")

	return nil
}

// newTopologyWatcher returns a watcher queuing reloads through store, or nil
// when watching is disabled.
func newTopologyWatcher(cfg *config.Config, store *Store) (*watcher.Watcher, error) {
	if !cfg.WatchTopology {
		return nil, nil //nolint:nilnil // Watching is optional.
	}

	w, err := watcher.New(cfg.TopologyFile, func(ctx context.Context, path string) {
		if err := store.ReloadTopology(ctx, watcherActor, path); err != nil {
			logger.WarnKV(ctx, "Topology reload not queued", "path", path, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create topology watcher: %w", err)
	}

	return w, nil
}

// followReloads points w at the source of every successful reload.
func followReloads(w *watcher.Watcher) poller.Sink {
	return poller.SinkFunc(func(ctx context.Context, event poller.Event) {
		reloaded, ok := event.(poller.Reloaded)
		if !ok {
			return
		}

		if err := w.Retarget(reloaded.Source); err != nil {
			logger.WarnKV(ctx, "Topology watcher not retargeted", "source", reloaded.Source, "error", err)
		}
	})
}

// loadConfig reads the settings file and applies command line overrides.
// A missing default settings file falls back to built-in defaults.
func loadConfig(ctx context.Context, opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)

	switch {
	case err == nil:
	case config.IsDefaultPath(opts.ConfigPath) && errors.Is(err, os.ErrNotExist):
		logger.InfoKV(ctx, "Settings file not found, using defaults", "path", config.DefaultConfigFilename)

		cfg = config.Default()
	default:
		return nil, fmt.Errorf("load settings: %w", err)
	}

	overrides := []struct {
		value  string
		target *string
	}{
		{opts.TopologyFile, &cfg.TopologyFile},
		{opts.ListenAddress, &cfg.ListenAddress},
		{opts.MetricsAddress, &cfg.MetricsAddress},
		{opts.WebsocketAddress, &cfg.WebsocketAddress},
		{opts.PublishAddress, &cfg.PublishAddress},
		{opts.ProbeMethod, &cfg.Probe.Method},
		{opts.LogLevel, &cfg.LogLevel},
	}

	for _, override := range overrides {
		if override.value != "" {
			*override.target = override.value
		}
	}

	if err = config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate settings: %w", err)
	}

	return cfg, nil
}

// serveGRPC serves the operator API until ctx is canceled.
func serveGRPC(ctx context.Context, address string, store *Store) error {
	// Setup TCP listener for gRPC server.
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	grpcServer := grpc.NewServer()
	api.RegisterPLCMonitorServer(grpcServer, api.NewServer(store))

	logger.InfoKV(ctx, "Monitor API listening", "listen_address", lis.Addr().String())

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")

		stopped := make(chan struct{})

		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()

		// Event streams only end when their clients go away.
		select {
		case <-stopped:
		case <-time.After(gracefulStopTimeout):
			grpcServer.Stop()
		}

		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "GRPC server stopped")

	return nil
}
