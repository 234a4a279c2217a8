package poller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/plc-monitor/internal/bridge"
	"github.com/oshokin/plc-monitor/internal/domain/plc"
	"github.com/oshokin/plc-monitor/internal/repository/topology"
	"github.com/oshokin/plc-monitor/internal/tagclient"
)

var errImport = errors.New("import failed")

// fakeProber reports every address up except the ones listed in down.
type fakeProber struct {
	mu    sync.Mutex
	down  map[string]bool
	omit  map[string]bool
	calls [][]string
}

func (f *fakeProber) Probe(_ context.Context, addresses []string) map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, append([]string(nil), addresses...))

	results := make(map[string]bool, len(addresses))
	for _, address := range addresses {
		if f.omit[address] {
			continue
		}

		results[address] = !f.down[address]
	}

	return results
}

func (f *fakeProber) setDown(addresses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.down = make(map[string]bool, len(addresses))
	for _, address := range addresses {
		f.down[address] = true
	}
}

// fakeTags answers every request from alarms; systems missing there are unknown.
type fakeTags struct {
	mu     sync.Mutex
	alarms map[string]plc.AlarmState
	calls  [][]tagclient.Request
}

func (f *fakeTags) ReadAndReset(_ context.Context, requests []tagclient.Request) map[string]plc.AlarmState {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, append([]tagclient.Request(nil), requests...))

	states := make(map[string]plc.AlarmState, len(requests))
	for _, req := range requests {
		states[req.System] = f.alarms[req.System]
	}

	return states
}

func (f *fakeTags) lastCall() []tagclient.Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.calls) == 0 {
		return nil
	}

	return f.calls[len(f.calls)-1]
}

// fakeImporter parses host lists registered by source name.
type fakeImporter struct {
	sources map[string]string
}

func (f *fakeImporter) Import(_ context.Context, source string) (topology.Systems, error) {
	text, ok := f.sources[source]
	if !ok {
		return nil, errImport
	}

	return topology.Parse(strings.NewReader(text))
}

// recordingSink stores every emitted event.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Emit(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
}

func (s *recordingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Event(nil), s.events...)
}

// updates returns the systems of Updated events of cycle, by name.
func (s *recordingSink) updates(cycle uint64) map[string]*plc.SystemInfo {
	systems := make(map[string]*plc.SystemInfo)

	for _, event := range s.snapshot() {
		if updated, ok := event.(Updated); ok && updated.Cycle == cycle {
			systems[updated.System.Name] = updated.System
		}
	}

	return systems
}

const twoSystems = "PLC1_eth0,10.0.0.1\nPLC1_eth1,10.0.0.2\nPLC1_node1,10.0.0.3\nPLC2_eth0,10.0.1.1\nPLC2_node1,10.0.1.2\n"

// harness bundles a poller with its fakes.
type harness struct {
	poller   *Poller
	prober   *fakeProber
	tags     *fakeTags
	importer *fakeImporter
	sink     *recordingSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		prober: new(fakeProber),
		tags: &fakeTags{alarms: map[string]plc.AlarmState{
			"PLC1": plc.AlarmInactive,
			"PLC2": plc.AlarmActive,
		}},
		importer: &fakeImporter{sources: map[string]string{
			"two.txt": twoSystems,
			"one.txt": "PLC3_eth0,10.0.2.1\n",
		}},
		sink: new(recordingSink),
	}

	p, err := New(Options{
		Prober:   h.prober,
		Tags:     h.tags,
		Importer: h.importer,
		Sink:     h.sink,
	})
	require.NoError(t, err)

	h.poller = p

	return h
}

// load imports source through the command bridge and runs one cycle.
func (h *harness) load(t *testing.T, source string) CycleStats {
	t.Helper()

	require.NoError(t, h.poller.Commands().Send(bridge.ReloadTopology{Source: source}))

	return h.poller.RunCycle(context.Background())
}
