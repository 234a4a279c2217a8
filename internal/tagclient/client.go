package tagclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/plc-monitor/internal/domain/plc"
	"github.com/oshokin/plc-monitor/internal/logger"
	"github.com/oshokin/plc-monitor/internal/tagclient/eip"
)

// Session is an open protocol session with one controller.
type Session interface {
	ReadBool(ctx context.Context, tag string) (bool, error)
	WriteBool(ctx context.Context, tag string, value bool) error
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	//nolint:ireturn // Protocol adapters return their own session type.
	Dial(ctx context.Context, address string) (Session, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, address string) (Session, error)

// Dial calls f.
//
//nolint:ireturn // See Dialer.
func (f DialerFunc) Dial(ctx context.Context, address string) (Session, error) {
	return f(ctx, address)
}

// Request describes one device transaction.
type Request struct {
	// System is the system name used to derive tag names.
	System string
	// Address is the ethernet address of the controller.
	Address string
	// Reset requests the reset writes after a successful read.
	Reset bool
}

// Client runs batches of device transactions under a shared deadline.
type Client struct {
	// dialer opens controller sessions.
	dialer Dialer
	// deadline is the wall-clock budget for a batch.
	deadline time.Duration
}

// DefaultDeadline is the batch budget used when none is configured.
const DefaultDeadline = 800 * time.Millisecond

var (
	errResetIncomplete = errors.New("reset incomplete")
	errNilSession      = errors.New("dialer returned no session")
)

// New creates a client; a non-positive deadline selects DefaultDeadline.
func New(dialer Dialer, deadline time.Duration) *Client {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}

	return &Client{
		dialer:   dialer,
		deadline: deadline,
	}
}

// NewEIPDialer opens EtherNet/IP sessions routed to slot.
func NewEIPDialer(port int, slot byte) Dialer {
	return DialerFunc(func(ctx context.Context, address string) (Session, error) {
		return eip.Dial(ctx, address, eip.Options{Port: port, Slot: slot})
	})
}

// SumAlarmTag is the alarm-summary tag of a system.
func SumAlarmTag(system string) string {
	return "B_" + system + "_SumAlarm_hb"
}

// ResetManualTag is the manual reset tag of a system.
func ResetManualTag(system string) string {
	return "B_" + system + "_Alarm_Reset_Man_C"
}

// ResetAutoTag is the automatic reset tag of a system.
func ResetAutoTag(system string) string {
	return "B_" + system + "_Alarm_Reset_Auto_C"
}

// result is the outcome of one transaction.
type result struct {
	system string
	state  plc.AlarmState
}

// ReadAndReset runs all requests concurrently and returns the alarm state per system.
// Every request has an entry; transactions failing or still pending at the deadline are AlarmUnknown.
func (c *Client) ReadAndReset(ctx context.Context, requests []Request) map[string]plc.AlarmState {
	states := make(map[string]plc.AlarmState, len(requests))
	for _, req := range requests {
		states[req.System] = plc.AlarmUnknown
	}

	if len(requests) == 0 {
		return states
	}

	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	// Buffered so abandoned transactions never block on send after the deadline.
	results := make(chan result, len(requests))

	for _, req := range requests {
		go func() {
			results <- result{system: req.System, state: c.transact(ctx, req)}
		}()
	}

	if pending := collect(ctx, results, len(requests), states); pending > 0 {
		logger.WarnKV(ctx, "Device transactions exceeded deadline",
			"pending", pending,
			"deadline", c.deadline.String())
	}

	return states
}

// collect stores up to expected results in states until ctx is done and
// returns the number still pending. Results already delivered when ctx ends are kept.
func collect(ctx context.Context, results <-chan result, expected int, states map[string]plc.AlarmState) int {
	received := 0

	for received < expected {
		select {
		case r := <-results:
			states[r.system] = r.state
			received++
		case <-ctx.Done():
			for received < expected {
				select {
				case r := <-results:
					states[r.system] = r.state
					received++
				default:
					return expected - received
				}
			}
		}
	}

	return 0
}

// transact reads the alarm-summary tag and performs the requested reset.
func (c *Client) transact(ctx context.Context, req Request) (state plc.AlarmState) {
	ctx = logger.WithKV(ctx, "system", req.System, "address", req.Address)

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorKV(ctx, "Device transaction crashed", "panic", fmt.Sprint(r))

			state = plc.AlarmUnknown
		}
	}()

	session, err := c.dial(ctx, req.Address)
	if err != nil {
		logger.DebugKV(ctx, "Connect failed", "error", err)

		return plc.AlarmUnknown
	}

	defer func() {
		if err := session.Close(); err != nil {
			logger.DebugKV(ctx, "Session close failed", "error", err)
		}
	}()

	active, err := session.ReadBool(ctx, SumAlarmTag(req.System))
	if err != nil {
		logger.DebugKV(ctx, "Alarm read failed", "error", err)

		return plc.AlarmUnknown
	}

	if req.Reset {
		if err := reset(ctx, session, req.System); err != nil {
			logger.WarnKV(ctx, "Alarm reset failed", "error", err)

			return plc.AlarmUnknown
		}

		logger.InfoKV(ctx, "Alarm reset written")
	}

	return plc.AlarmFromBool(active)
}

// dial opens a session, turning a nil session into an error.
func (c *Client) dial(ctx context.Context, address string) (Session, error) {
	session, err := c.dialer.Dial(ctx, address)
	if err != nil {
		return nil, err
	}

	if session == nil {
		return nil, errNilSession
	}

	return session, nil
}

// reset writes both reset tags; each latch is attempted even if the other fails.
func reset(ctx context.Context, session Session, system string) error {
	var errs []error

	for _, tag := range []string{ResetManualTag(system), ResetAutoTag(system)} {
		if err := session.WriteBool(ctx, tag, true); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", errResetIncomplete, errors.Join(errs...))
	}

	return nil
}
