package poller

import (
	"time"

	"github.com/oshokin/plc-monitor/internal/domain/plc"
)

// CycleStats summarizes one completed cycle.
type CycleStats struct {
	// Cycle is the sequence number of the cycle.
	Cycle uint64
	// Duration is the time spent in the cycle, excluding the sleep.
	Duration time.Duration
	// Commands is the number of commands drained.
	Commands int
	// ImportFailures is the number of failed topology reloads.
	ImportFailures int
	// Systems is the number of known systems.
	Systems int
	// Hosts is the number of probed addresses.
	Hosts int
	// Responding is the number of responding addresses.
	Responding int
	// EthernetDown is the number of systems excluded from device transactions.
	EthernetDown int
	// Transactions is the number of device transactions launched.
	Transactions int
	// Resets is the number of transactions that requested a reset.
	Resets int
	// Alarms counts systems per alarm state after the merge.
	Alarms map[plc.AlarmState]int
}

// Observer is notified after every cycle.
type Observer interface {
	ObserveCycle(stats CycleStats)
}
