// Package probe checks host reachability.
//
// A Prober fans out over a set of addresses and always returns an entry for
// every submitted address: a probe that cannot be spawned, fails or panics
// reports false. PingProber runs the native ping binary once per address,
// NmapProber sweeps all addresses with a single nmap host discovery scan.
package probe
