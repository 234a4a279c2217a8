package poller

import (
	"context"
	"time"

	"github.com/oshokin/plc-monitor/internal/bridge"
	"github.com/oshokin/plc-monitor/internal/domain/plc"
)

// Event kinds.
const (
	KindReady        = "ready"
	KindUpdated      = "updated"
	KindImportFailed = "import_failed"
	KindReloaded     = "reloaded"
)

// Event is a message emitted by the poller.
type Event interface {
	// Kind names the event variant.
	Kind() string
}

// CommandSink accepts operator commands.
type CommandSink interface {
	Send(cmd bridge.Command) error
}

// Ready is emitted once at startup and carries the command entry point.
type Ready struct {
	// Commands accepts operator commands for the poller.
	Commands CommandSink
}

// Updated is emitted once per system per cycle.
type Updated struct {
	// Cycle is the sequence number of the cycle, starting at 1.
	Cycle uint64
	// At is the time the snapshot was taken.
	At time.Time
	// System is a copy of the system state; receivers may keep it.
	System *plc.SystemInfo
}

// ImportFailed is emitted when a topology reload fails.
type ImportFailed struct {
	// Source is the topology source that failed to import.
	Source string
	// Message describes the failure.
	Message string
}

// Reloaded is emitted after a topology reload replaced the system map.
type Reloaded struct {
	// Source is the imported topology source.
	Source string
	// Systems lists the system names of the new map.
	Systems []string
}

// Kind implements Event.
func (Ready) Kind() string { return KindReady }

// Kind implements Event.
func (Updated) Kind() string { return KindUpdated }

// Kind implements Event.
func (ImportFailed) Kind() string { return KindImportFailed }

// Kind implements Event.
func (Reloaded) Kind() string { return KindReloaded }

// Sink receives poller events.
// Emit is called from the poll loop and must not block for long.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event)

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, event Event) {
	f(ctx, event)
}

// Fanout delivers every event to each sink in order.
type Fanout []Sink

// Emit implements Sink.
func (f Fanout) Emit(ctx context.Context, event Event) {
	for _, sink := range f {
		if sink != nil {
			sink.Emit(ctx, event)
		}
	}
}
