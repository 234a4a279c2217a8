// Package control implements the plc-monitorctl operations: alarm resets,
// topology reloads, the system listing and the live event feed of a running
// monitor.
package control
