// Package bridge carries operator commands into the poll loop.
//
// The bridge is bounded and never blocks: producers get ErrBridgeFull when
// the loop falls behind, and the loop drains whatever is queued at the start
// of each cycle without waiting.
package bridge

import (
	"errors"
	"fmt"
)

// DefaultCapacity is the queue size used when none is configured.
const DefaultCapacity = 1000

var (
	// ErrBridgeFull is returned when a command cannot be queued.
	ErrBridgeFull = errors.New("command bridge is full")
	// ErrNilCommand is returned for a nil command.
	ErrNilCommand = errors.New("nil command")
)

// Bridge is a bounded single-consumer command queue.
type Bridge struct {
	// commands holds queued commands.
	commands chan Command
}

// New creates a bridge; a non-positive capacity selects DefaultCapacity.
func New(capacity int) *Bridge {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Bridge{
		commands: make(chan Command, capacity),
	}
}

// Send queues cmd without blocking.
func (b *Bridge) Send(cmd Command) error {
	if cmd == nil {
		return ErrNilCommand
	}

	select {
	case b.commands <- cmd:
		return nil
	default:
		return fmt.Errorf("send %T: %w", cmd, ErrBridgeFull)
	}
}

// Drain returns every queued command in send order without blocking.
func (b *Bridge) Drain() []Command {
	var drained []Command

	for {
		select {
		case cmd := <-b.commands:
			drained = append(drained, cmd)
		default:
			return drained
		}
	}
}

// Len returns the number of queued commands.
func (b *Bridge) Len() int {
	return len(b.commands)
}

// Cap returns the queue capacity.
func (b *Bridge) Cap() int {
	return cap(b.commands)
}
