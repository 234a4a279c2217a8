// Package tagclient reads the alarm-summary tag of many controllers at once
// and issues alarm resets.
//
// Client launches one transaction per system and enforces a wall-clock
// deadline over the whole batch: when it expires the shared context is
// canceled, pending sessions release their connections and their systems
// resolve to an unknown alarm state for the cycle. Sessions are opened
// through the Dialer capability, so tests and alternative protocols can plug
// in without touching the fan-out logic.
package tagclient
