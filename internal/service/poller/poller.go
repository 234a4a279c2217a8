package poller

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/oshokin/plc-monitor/internal/bridge"
	"github.com/oshokin/plc-monitor/internal/domain/plc"
	"github.com/oshokin/plc-monitor/internal/logger"
	"github.com/oshokin/plc-monitor/internal/probe"
	"github.com/oshokin/plc-monitor/internal/repository/topology"
	"github.com/oshokin/plc-monitor/internal/tagclient"
)

// TagReader runs a batch of device transactions.
type TagReader interface {
	ReadAndReset(ctx context.Context, requests []tagclient.Request) map[string]plc.AlarmState
}

// Options wires the poller to its collaborators.
type Options struct {
	// Prober checks host reachability.
	Prober probe.Prober
	// Tags reads alarm tags and writes resets.
	Tags TagReader
	// Importer loads topologies for ReloadTopology commands.
	Importer topology.Importer
	// Bridge carries operator commands; a default-sized bridge is created when nil.
	Bridge *bridge.Bridge
	// Sink receives events.
	Sink Sink
	// Observer is notified after every cycle; optional.
	Observer Observer
	// Period is the target cycle duration.
	Period time.Duration
	// InitialSource is imported before the first cycle when set.
	InitialSource string
}

// DefaultPeriod is the target cycle duration used when none is configured.
const DefaultPeriod = time.Second

var (
	// ErrMissingDependency is returned by New when a required collaborator is nil.
	ErrMissingDependency = errors.New("missing poller dependency")
	// errNoImporter is reported when a reload arrives without an importer.
	errNoImporter = errors.New("no topology importer configured")
)

// Poller owns the system map and drives the monitoring cycle.
// A Poller is not safe for concurrent use; Run and RunCycle belong to one goroutine.
type Poller struct {
	// prober checks host reachability.
	prober probe.Prober
	// tags runs device transactions.
	tags TagReader
	// importer loads topologies.
	importer topology.Importer
	// bridge carries operator commands.
	bridge *bridge.Bridge
	// sink receives events.
	sink Sink
	// observer receives cycle statistics.
	observer Observer
	// period is the target cycle duration.
	period time.Duration
	// initialSource is imported by Run before the first cycle.
	initialSource string
	// systems is the authoritative system map.
	systems topology.Systems
	// source is the origin of the current system map.
	source string
	// resets holds the system names to reset in the current cycle.
	resets map[string]struct{}
	// cycle is the sequence number of the last started cycle.
	cycle uint64
	// now returns the current time.
	now func() time.Time
}

// New validates opts and creates a poller with an empty topology.
func New(opts Options) (*Poller, error) {
	switch {
	case opts.Prober == nil:
		return nil, fmt.Errorf("%w: prober", ErrMissingDependency)
	case opts.Tags == nil:
		return nil, fmt.Errorf("%w: tag reader", ErrMissingDependency)
	case opts.Sink == nil:
		return nil, fmt.Errorf("%w: sink", ErrMissingDependency)
	}

	if opts.Bridge == nil {
		opts.Bridge = bridge.New(bridge.DefaultCapacity)
	}

	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}

	return &Poller{
		prober:        opts.Prober,
		tags:          opts.Tags,
		importer:      opts.Importer,
		bridge:        opts.Bridge,
		sink:          opts.Sink,
		observer:      opts.Observer,
		period:        opts.Period,
		initialSource: opts.InitialSource,
		systems:       make(topology.Systems),
		resets:        make(map[string]struct{}),
		now:           time.Now,
	}, nil
}

// Commands returns the command entry point.
func (p *Poller) Commands() CommandSink {
	return p.bridge
}

// Run emits Ready, imports the initial topology and runs cycles until ctx is canceled.
// Every cycle is followed by a sleep of max(0, period - elapsed); overruns are not caught up.
func (p *Poller) Run(ctx context.Context) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "poller")

	p.sink.Emit(ctx, Ready{Commands: p.bridge})

	if p.initialSource != "" {
		p.reload(ctx, p.initialSource)
	}

	logger.InfoKV(ctx, "Poller started", "period", p.period.String(), "systems", len(p.systems))

	for {
		if ctx.Err() != nil {
			logger.Info(ctx, "Context canceled, poller exiting")

			return nil
		}

		started := p.now()

		p.RunCycle(ctx)

		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, poller exiting")

			return nil
		case <-time.After(max(0, p.period-p.now().Sub(started))):
		}
	}
}

// RunCycle performs one monitoring cycle without the trailing sleep.
func (p *Poller) RunCycle(ctx context.Context) CycleStats {
	p.cycle++

	started := p.now()
	stats := CycleStats{
		Cycle:  p.cycle,
		Alarms: make(map[plc.AlarmState]int),
	}

	// Apply queued operator commands.
	commands := p.bridge.Drain()
	stats.Commands = len(commands)

	for _, cmd := range commands {
		if !p.handle(ctx, cmd) {
			stats.ImportFailures++
		}
	}

	stats.Systems = len(p.systems)

	if len(p.systems) > 0 {
		p.probe(ctx, &stats)

		if ctx.Err() != nil {
			return stats
		}

		p.readAlarms(ctx, &stats)

		if ctx.Err() != nil {
			return stats
		}

		p.emitUpdates(ctx, &stats)
	}

	clear(p.resets)

	stats.Duration = p.now().Sub(started)

	if p.observer != nil {
		p.observer.ObserveCycle(stats)
	}

	return stats
}

// handle applies one command and reports false for a failed import.
func (p *Poller) handle(ctx context.Context, cmd bridge.Command) bool {
	switch c := cmd.(type) {
	case bridge.ResetOne:
		if _, ok := p.systems[c.System]; !ok {
			logger.WarnKV(ctx, "Reset requested for unknown system", "system", c.System)

			return true
		}

		p.resets[c.System] = struct{}{}

		logger.InfoKV(ctx, "Reset scheduled", "system", c.System)
	case bridge.ResetAll:
		scheduled := 0

		for _, name := range c.Systems {
			if _, ok := p.systems[name]; !ok {
				continue
			}

			p.resets[name] = struct{}{}
			scheduled++
		}

		logger.InfoKV(ctx, "Reset scheduled for all systems",
			"requested", len(c.Systems), "scheduled", scheduled)
	case bridge.ReloadTopology:
		return p.reload(ctx, c.Source)
	default:
		logger.WarnKV(ctx, "Unsupported command ignored", "command", cmd)
	}

	return true
}

// reload replaces the system map wholesale; on failure the current map is kept.
func (p *Poller) reload(ctx context.Context, source string) bool {
	if p.importer == nil {
		p.importFailed(ctx, source, errNoImporter)

		return false
	}

	systems, err := p.importer.Import(ctx, source)
	if err != nil {
		p.importFailed(ctx, source, err)

		return false
	}

	if systems == nil {
		systems = make(topology.Systems)
	}

	p.systems = systems
	p.source = source

	// Pending resets refer to the previous topology.
	clear(p.resets)

	names := systems.Names()
	slices.Sort(names)

	logger.InfoKV(ctx, "Topology loaded", "source", source, "systems", len(systems))

	p.sink.Emit(ctx, Reloaded{Source: source, Systems: names})

	return true
}

func (p *Poller) importFailed(ctx context.Context, source string, err error) {
	logger.ErrorKV(ctx, "Topology import failed", "source", source, "error", err)

	p.sink.Emit(ctx, ImportFailed{Source: source, Message: err.Error()})
}

// probe refreshes Responding on every host.
func (p *Poller) probe(ctx context.Context, stats *CycleStats) {
	addresses := p.systems.Addresses()
	results := p.prober.Probe(ctx, addresses)

	stats.Hosts = len(results)

	for _, responding := range results {
		if responding {
			stats.Responding++
		}
	}

	for _, system := range p.systems {
		if missing := system.ApplyReachability(results); len(missing) > 0 {
			logger.ErrorKV(ctx, "Prober omitted addresses, marking them down",
				"system", system.Name,
				"addresses", missing)
		}
	}
}

// readAlarms runs device transactions for systems with a reachable control path.
func (p *Poller) readAlarms(ctx context.Context, stats *CycleStats) {
	requests := make([]tagclient.Request, 0, len(p.systems))

	for name, system := range p.systems {
		// A system is only trusted while every ethernet host answers.
		if !system.EthernetOK() {
			system.Alarm = plc.AlarmUnknown
			stats.EthernetDown++

			continue
		}

		address, ok := system.EthernetAddress()
		if !ok {
			system.Alarm = plc.AlarmUnknown

			continue
		}

		_, reset := p.resets[name]
		if reset {
			stats.Resets++
		}

		requests = append(requests, tagclient.Request{
			System:  name,
			Address: address,
			Reset:   reset,
		})
	}

	stats.Transactions = len(requests)

	if len(requests) == 0 {
		return
	}

	states := p.tags.ReadAndReset(ctx, requests)

	for _, req := range requests {
		// A missing entry is a failed transaction.
		p.systems[req.System].Alarm = states[req.System]
	}
}

// emitUpdates sends a snapshot of every system.
func (p *Poller) emitUpdates(ctx context.Context, stats *CycleStats) {
	at := p.now()

	for _, system := range p.systems {
		stats.Alarms[system.Alarm]++

		p.sink.Emit(ctx, Updated{
			Cycle:  p.cycle,
			At:     at,
			System: system.Clone(),
		})
	}
}
