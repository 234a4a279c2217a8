package tagclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/plc-monitor/internal/domain/plc"
)

var errFake = errors.New("fake failure")

// fakeSession records the writes it receives.
type fakeSession struct {
	mu       sync.Mutex
	alarm    bool
	readErr  error
	writeErr error
	block    bool
	writes   []string
	closed   bool
}

func (s *fakeSession) ReadBool(ctx context.Context, _ string) (bool, error) {
	if s.block {
		<-ctx.Done()

		return false, ctx.Err()
	}

	return s.alarm, s.readErr
}

func (s *fakeSession) WriteBool(_ context.Context, tag string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value {
		s.writes = append(s.writes, tag)
	}

	return s.writeErr
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	return nil
}

func (s *fakeSession) snapshot() ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.writes...), s.closed
}

// fakeDialer hands out sessions by address.
type fakeDialer struct {
	sessions map[string]*fakeSession
}

//nolint:ireturn // Test double.
func (d *fakeDialer) Dial(_ context.Context, address string) (Session, error) {
	session, ok := d.sessions[address]
	if !ok {
		return nil, errFake
	}

	return session, nil
}

func TestTagNames(t *testing.T) {
	t.Parallel()

	require.Equal(t, "B_LINE1_SumAlarm_hb", SumAlarmTag("LINE1"))
	require.Equal(t, "B_LINE1_Alarm_Reset_Man_C", ResetManualTag("LINE1"))
	require.Equal(t, "B_LINE1_Alarm_Reset_Auto_C", ResetAutoTag("LINE1"))
}

func TestReadAndResetOutcomes(t *testing.T) {
	t.Parallel()

	var (
		active   = &fakeSession{alarm: true}
		inactive = &fakeSession{}
		broken   = &fakeSession{readErr: errFake}
		dialer   = &fakeDialer{sessions: map[string]*fakeSession{
			"10.0.0.1": active,
			"10.0.0.2": inactive,
			"10.0.0.3": broken,
		}}
		client = New(dialer, time.Second)
	)

	states := client.ReadAndReset(context.Background(), []Request{
		{System: "A", Address: "10.0.0.1"},
		{System: "B", Address: "10.0.0.2"},
		{System: "C", Address: "10.0.0.3"},
		{System: "D", Address: "10.0.0.4"},
	})

	require.Equal(t, map[string]plc.AlarmState{
		"A": plc.AlarmActive,
		"B": plc.AlarmInactive,
		"C": plc.AlarmUnknown,
		"D": plc.AlarmUnknown,
	}, states)

	for _, session := range []*fakeSession{active, inactive, broken} {
		writes, closed := session.snapshot()
		require.Empty(t, writes)
		require.True(t, closed)
	}
}

func TestReadAndResetWritesBothLatches(t *testing.T) {
	t.Parallel()

	session := &fakeSession{alarm: true}
	client := New(&fakeDialer{sessions: map[string]*fakeSession{"10.0.0.1": session}}, time.Second)

	states := client.ReadAndReset(context.Background(), []Request{
		{System: "LINE1", Address: "10.0.0.1", Reset: true},
	})

	require.Equal(t, plc.AlarmActive, states["LINE1"])

	writes, _ := session.snapshot()
	require.ElementsMatch(t, []string{
		"B_LINE1_Alarm_Reset_Man_C",
		"B_LINE1_Alarm_Reset_Auto_C",
	}, writes)
}

func TestReadAndResetSkipsWritesAfterFailedRead(t *testing.T) {
	t.Parallel()

	session := &fakeSession{readErr: errFake}
	client := New(&fakeDialer{sessions: map[string]*fakeSession{"10.0.0.1": session}}, time.Second)

	states := client.ReadAndReset(context.Background(), []Request{
		{System: "LINE1", Address: "10.0.0.1", Reset: true},
	})

	require.Equal(t, plc.AlarmUnknown, states["LINE1"])

	writes, _ := session.snapshot()
	require.Empty(t, writes)
}

func TestReadAndResetWriteFailureIsUnknown(t *testing.T) {
	t.Parallel()

	session := &fakeSession{alarm: true, writeErr: errFake}
	client := New(&fakeDialer{sessions: map[string]*fakeSession{"10.0.0.1": session}}, time.Second)

	states := client.ReadAndReset(context.Background(), []Request{
		{System: "LINE1", Address: "10.0.0.1", Reset: true},
	})

	require.Equal(t, plc.AlarmUnknown, states["LINE1"])

	writes, _ := session.snapshot()
	require.Len(t, writes, 2)
}

func TestReadAndResetDeadline(t *testing.T) {
	t.Parallel()

	var (
		slow   = &fakeSession{block: true}
		fast   = &fakeSession{alarm: true}
		dialer = &fakeDialer{sessions: map[string]*fakeSession{
			"10.0.0.1": slow,
			"10.0.0.2": fast,
		}}
		client = New(dialer, 50*time.Millisecond)
	)

	started := time.Now()
	states := client.ReadAndReset(context.Background(), []Request{
		{System: "SLOW", Address: "10.0.0.1"},
		{System: "FAST", Address: "10.0.0.2"},
	})

	require.Less(t, time.Since(started), time.Second)
	require.Equal(t, plc.AlarmUnknown, states["SLOW"])
	require.Equal(t, plc.AlarmActive, states["FAST"])

	require.Eventually(t, func() bool {
		_, closed := slow.snapshot()

		return closed
	}, time.Second, 5*time.Millisecond)
}

func TestReadAndResetEmpty(t *testing.T) {
	t.Parallel()

	client := New(&fakeDialer{}, 0)

	require.Empty(t, client.ReadAndReset(context.Background(), nil))
	require.Equal(t, DefaultDeadline, client.deadline)
}

// TestCollect_KeepsResultsDeliveredAtDeadline does not drop finished transactions when ctx ends.
func TestCollect_KeepsResultsDeliveredAtDeadline(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Both channels are ready; select picks either case at random.
	for range 50 {
		results := make(chan result, 3)
		results <- result{system: "PLC1", state: plc.AlarmActive}
		results <- result{system: "PLC2", state: plc.AlarmInactive}

		states := map[string]plc.AlarmState{
			"PLC1": plc.AlarmUnknown,
			"PLC2": plc.AlarmUnknown,
			"PLC3": plc.AlarmUnknown,
		}

		require.Equal(t, 1, collect(ctx, results, 3, states))
		require.Equal(t, map[string]plc.AlarmState{
			"PLC1": plc.AlarmActive,
			"PLC2": plc.AlarmInactive,
			"PLC3": plc.AlarmUnknown,
		}, states)
	}
}
