// Package poller runs the monitoring cycle.
//
// Each cycle drains operator commands, probes every known host, reads the
// alarm-summary tag of systems whose ethernet path is fully reachable and
// emits one snapshot per system. The poller owns the system map: probe and
// device tasks only receive copies of what they need and return results that
// are merged between phases.
package poller
