package monitor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/plc-monitor/internal/bridge"
	"github.com/oshokin/plc-monitor/internal/domain/plc"
	"github.com/oshokin/plc-monitor/internal/service/poller"
)

// rejectionRecorder counts rejected commands.
type rejectionRecorder struct {
	count int
}

func (r *rejectionRecorder) CommandRejected() { r.count++ }

var operator = &plc.Actor{Hostname: "scada-01", Username: "operator"}

func system(name string, alarm plc.AlarmState) *plc.SystemInfo {
	s := plc.NewSystemInfo(name)
	s.AddHost(name+"_eth0", "10.0.0.1")
	s.Alarm = alarm

	return s
}

// TestStore_CommandsBeforeReady rejects commands until the poller announces its sink.
func TestStore_CommandsBeforeReady(t *testing.T) {
	t.Parallel()

	s := NewStore(nil)

	require.ErrorIs(t, s.ResetAll(context.Background(), operator), plc.ErrNotReady)
}

// TestStore_RelaysCommands forwards validated commands to the bridge.
func TestStore_RelaysCommands(t *testing.T) {
	t.Parallel()

	var (
		b   = bridge.New(8)
		s   = NewStore(nil)
		ctx = context.Background()
	)

	s.Emit(ctx, poller.Ready{Commands: b})
	s.Emit(ctx, poller.Reloaded{Source: "hosts.txt", Systems: []string{"PLC2", "PLC1"}})

	require.NoError(t, s.ResetSystem(ctx, operator, " PLC1 "))
	require.ErrorIs(t, s.ResetSystem(ctx, operator, "PLC9"), plc.ErrUnknownSystem)
	require.ErrorIs(t, s.ResetSystem(ctx, operator, ""), plc.ErrEmptyArgument)
	require.NoError(t, s.ResetAll(ctx, operator))
	require.NoError(t, s.ReloadTopology(ctx, nil, "other.txt"))
	require.ErrorIs(t, s.ReloadTopology(ctx, operator, "  "), plc.ErrEmptyArgument)

	require.Equal(t, []bridge.Command{
		bridge.ResetOne{System: "PLC1"},
		bridge.ResetAll{Systems: []string{"PLC1", "PLC2"}},
		bridge.ReloadTopology{Source: "other.txt"},
	}, b.Drain())
}

// TestStore_ResetAllUsesKnownSystems captures the systems known when the command is sent.
func TestStore_ResetAllUsesKnownSystems(t *testing.T) {
	t.Parallel()

	var (
		b   = bridge.New(8)
		s   = NewStore(nil)
		ctx = context.Background()
	)

	s.Emit(ctx, poller.Ready{Commands: b})
	require.NoError(t, s.ResetAll(ctx, operator))

	s.Emit(ctx, poller.Reloaded{Source: "hosts.txt", Systems: []string{"PLC3"}})
	require.NoError(t, s.ReloadTopology(ctx, operator, "other.txt"))
	require.NoError(t, s.ResetAll(ctx, operator))

	require.Equal(t, []bridge.Command{
		bridge.ResetAll{Systems: []string{}},
		bridge.ReloadTopology{Source: "other.txt"},
		bridge.ResetAll{Systems: []string{"PLC3"}},
	}, b.Drain())
}

// TestStore_ResetBeforeTopology accepts any name while no topology is loaded.
func TestStore_ResetBeforeTopology(t *testing.T) {
	t.Parallel()

	b := bridge.New(1)
	s := NewStore(nil)
	s.Emit(context.Background(), poller.Ready{Commands: b})

	require.NoError(t, s.ResetSystem(context.Background(), operator, "PLC1"))
}

// TestStore_BridgeFull surfaces saturation and counts it.
func TestStore_BridgeFull(t *testing.T) {
	t.Parallel()

	var (
		b        = bridge.New(1)
		recorder = new(rejectionRecorder)
		s        = NewStore(recorder)
		ctx      = context.Background()
	)

	s.Emit(ctx, poller.Ready{Commands: b})

	require.NoError(t, s.ResetAll(ctx, operator))
	require.ErrorIs(t, s.ResetAll(ctx, operator), bridge.ErrBridgeFull)
	require.Equal(t, 1, recorder.count)
}

// TestStore_Snapshots keeps the latest snapshot and drops systems removed by a reload.
func TestStore_Snapshots(t *testing.T) {
	t.Parallel()

	var (
		s   = NewStore(nil)
		ctx = context.Background()
	)

	s.Emit(ctx, poller.Updated{Cycle: 1, System: system("PLC2", plc.AlarmActive)})
	s.Emit(ctx, poller.Updated{Cycle: 1, System: system("PLC1", plc.AlarmInactive)})
	s.Emit(ctx, poller.Updated{Cycle: 2, System: system("PLC1", plc.AlarmUnknown)})

	systems := s.Systems()
	require.Len(t, systems, 2)
	require.Equal(t, "PLC1", systems[0].Name)
	require.Equal(t, plc.AlarmUnknown, systems[0].Alarm)

	systems[0].Alarm = plc.AlarmActive

	got, ok := s.System("PLC1")
	require.True(t, ok)
	require.Equal(t, plc.AlarmUnknown, got.Alarm)

	s.Emit(ctx, poller.Reloaded{Source: "hosts.txt", Systems: []string{"PLC1"}})

	_, ok = s.System("PLC2")
	require.False(t, ok)
	require.Len(t, s.Systems(), 1)
}

// TestStore_ImportFailure records the last failed reload.
func TestStore_ImportFailure(t *testing.T) {
	t.Parallel()

	s := NewStore(nil)

	_, ok := s.LastImportFailure()
	require.False(t, ok)

	s.Emit(context.Background(), poller.ImportFailed{Source: "hosts.txt", Message: "not found"})

	failure, ok := s.LastImportFailure()
	require.True(t, ok)
	require.Equal(t, "hosts.txt", failure.Source)
}

// TestStore_Subscribe delivers events without blocking on slow subscribers.
func TestStore_Subscribe(t *testing.T) {
	t.Parallel()

	var (
		s   = NewStore(nil)
		ctx = context.Background()
	)

	events, unsubscribe := s.Subscribe(1)

	s.Emit(ctx, poller.Updated{Cycle: 1, System: system("PLC1", plc.AlarmActive)})
	s.Emit(ctx, poller.Updated{Cycle: 2, System: system("PLC1", plc.AlarmActive)})

	event := <-events
	require.Equal(t, uint64(1), event.(poller.Updated).Cycle)

	unsubscribe()
	unsubscribe()

	_, open := <-events
	require.False(t, open)

	s.Emit(ctx, poller.Ready{})
}
