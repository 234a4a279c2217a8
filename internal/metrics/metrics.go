// Package metrics exposes poll loop instrumentation in the Prometheus format.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oshokin/plc-monitor/internal/domain/plc"
	"github.com/oshokin/plc-monitor/internal/logger"
	"github.com/oshokin/plc-monitor/internal/service/poller"
)

const (
	namespace = "plc_monitor"
	subsystem = "poller"
)

// shutdownTimeout bounds the graceful shutdown of the metrics endpoint.
const shutdownTimeout = 5 * time.Second

// Collector records poll cycles and operator command outcomes.
type Collector struct {
	registry *prometheus.Registry

	cycleDuration  prometheus.Histogram
	cycles         prometheus.Counter
	commands       prometheus.Counter
	rejected       prometheus.Counter
	importFailures prometheus.Counter
	transactions   prometheus.Counter
	resets         prometheus.Counter
	systems        prometheus.Gauge
	hosts          prometheus.Gauge
	responding     prometheus.Gauge
	ethernetDown   prometheus.Gauge
	alarms         *prometheus.GaugeVec
}

// New creates a collector registered on its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of poll cycles excluding the trailing sleep.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 5},
		}),
		cycles:         counter("cycles_total", "Completed poll cycles."),
		commands:       counter("commands_total", "Operator commands drained from the command bridge."),
		rejected:       counter("commands_rejected_total", "Operator commands rejected by a full command bridge."),
		importFailures: counter("import_failures_total", "Failed topology reloads."),
		transactions:   counter("transactions_total", "Device transactions launched."),
		resets:         counter("resets_total", "Device transactions that requested an alarm reset."),
		systems:        gauge("systems", "Systems in the current topology."),
		hosts:          gauge("hosts", "Addresses probed in the last cycle."),
		responding:     gauge("hosts_responding", "Addresses that responded in the last cycle."),
		ethernetDown:   gauge("systems_ethernet_down", "Systems with at least one ethernet host down in the last cycle."),
		alarms: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "systems_by_alarm_state",
				Help:      "Systems per alarm state after the last cycle.",
			},
			[]string{"state"},
		),
	}

	c.registry.MustRegister(
		c.cycleDuration,
		c.cycles,
		c.commands,
		c.rejected,
		c.importFailures,
		c.transactions,
		c.resets,
		c.systems,
		c.hosts,
		c.responding,
		c.ethernetDown,
		c.alarms,
	)

	return c
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// Registry returns the registry holding the collector metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveCycle implements poller.Observer.
func (c *Collector) ObserveCycle(stats poller.CycleStats) {
	c.cycleDuration.Observe(stats.Duration.Seconds())
	c.cycles.Inc()
	c.commands.Add(float64(stats.Commands))
	c.importFailures.Add(float64(stats.ImportFailures))
	c.transactions.Add(float64(stats.Transactions))
	c.resets.Add(float64(stats.Resets))
	c.systems.Set(float64(stats.Systems))
	c.hosts.Set(float64(stats.Hosts))
	c.responding.Set(float64(stats.Responding))
	c.ethernetDown.Set(float64(stats.EthernetDown))

	for _, state := range []plc.AlarmState{plc.AlarmUnknown, plc.AlarmActive, plc.AlarmInactive} {
		c.alarms.WithLabelValues(state.String()).Set(float64(stats.Alarms[state]))
	}
}

// CommandRejected counts a command refused by a full bridge.
func (c *Collector) CommandRejected() {
	c.rejected.Inc()
}

// Handler serves the collector registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes /metrics on address until ctx is canceled.
func (c *Collector) Serve(ctx context.Context, address string) error {
	ctx = logger.WithName(ctx, "metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WarnKV(ctx, "Failed to shut down metrics server cleanly", "error", err)
		}
	}()

	logger.InfoKV(ctx, "Metrics endpoint listening", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}

	return nil
}
