// Package plc contains the core domain types of the monitor.
//
// A SystemInfo groups the ethernet interface hosts and subordinate node hosts
// of one controller together with its remote alarm flag. Clone helpers keep
// snapshots handed to consumers independent from the poller's own map.
package plc
