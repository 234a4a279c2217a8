package plc

import "errors"

var (
	// ErrNotReady is returned for commands issued before the poller accepts them.
	ErrNotReady = errors.New("poller is not ready")
	// ErrUnknownSystem is returned for a system missing from the topology.
	ErrUnknownSystem = errors.New("unknown system")
	// ErrEmptyArgument is returned for a blank system name or topology source.
	ErrEmptyArgument = errors.New("argument must not be empty")
)
