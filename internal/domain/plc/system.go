package plc

import (
	"fmt"
	"strings"
)

// Host is a single addressable device of a system.
type Host struct {
	// Label is the host name from the topology source.
	Label string
	// Address is the probe target; unique within a system.
	Address string
	// Responding is the outcome of the latest reachability probe.
	Responding bool
}

// SystemInfo is the monitored state of one controller.
type SystemInfo struct {
	// Name is derived from the host labels at import time.
	Name string
	// EthernetHosts are the network-facing interfaces of the controller.
	EthernetHosts []Host
	// NodeHosts are the subordinate devices behind the controller.
	NodeHosts []Host
	// Alarm is the remote alarm flag.
	Alarm AlarmState
}

// NewSystemInfo creates an empty system.
func NewSystemInfo(name string) *SystemInfo {
	return &SystemInfo{Name: name}
}

// IsEthernetLabel reports whether a host label names an ethernet interface.
func IsEthernetLabel(label string) bool {
	return strings.Contains(strings.ToLower(label), "eth")
}

// SystemNameFromLabel returns the label prefix before the first underscore.
func SystemNameFromLabel(label string) string {
	name, _, _ := strings.Cut(label, "_")

	return name
}

// AddHost appends a host to the ethernet or node list according to its label.
// A host whose address is already known to the system is ignored and false is returned.
func (s *SystemInfo) AddHost(label, address string) bool {
	if s.hasAddress(address) {
		return false
	}

	host := Host{Label: label, Address: address}
	if IsEthernetLabel(label) {
		s.EthernetHosts = append(s.EthernetHosts, host)
	} else {
		s.NodeHosts = append(s.NodeHosts, host)
	}

	return true
}

// Addresses returns the addresses of all hosts, ethernet first.
func (s *SystemInfo) Addresses() []string {
	addresses := make([]string, 0, len(s.EthernetHosts)+len(s.NodeHosts))
	for _, host := range s.EthernetHosts {
		addresses = append(addresses, host.Address)
	}

	for _, host := range s.NodeHosts {
		addresses = append(addresses, host.Address)
	}

	return addresses
}

// ApplyReachability sets Responding on every host from the probe results.
// Addresses missing from results are marked down and returned so the caller can report them.
func (s *SystemInfo) ApplyReachability(results map[string]bool) []string {
	var missing []string

	apply := func(hosts []Host) {
		for i := range hosts {
			responding, ok := results[hosts[i].Address]
			if !ok {
				missing = append(missing, hosts[i].Address)
			}

			hosts[i].Responding = responding
		}
	}

	apply(s.EthernetHosts)
	apply(s.NodeHosts)

	return missing
}

// EthernetOK reports whether every ethernet host responds.
// It is vacuously true for a system without ethernet hosts.
func (s *SystemInfo) EthernetOK() bool {
	return allResponding(s.EthernetHosts)
}

// NodesOK reports whether every node host responds.
func (s *SystemInfo) NodesOK() bool {
	return allResponding(s.NodeHosts)
}

// EthernetAddress returns the first responding ethernet address, or the first one.
// ok is false when the system has no ethernet hosts.
func (s *SystemInfo) EthernetAddress() (string, bool) {
	if len(s.EthernetHosts) == 0 {
		return "", false
	}

	for _, host := range s.EthernetHosts {
		if host.Responding {
			return host.Address, true
		}
	}

	return s.EthernetHosts[0].Address, true
}

// EthernetStatus renders "responding/total" for ethernet hosts.
func (s *SystemInfo) EthernetStatus() string {
	return fmt.Sprintf("%d/%d", countResponding(s.EthernetHosts), len(s.EthernetHosts))
}

// NodesStatus renders "responding/total" for node hosts.
func (s *SystemInfo) NodesStatus() string {
	return fmt.Sprintf("%d/%d", countResponding(s.NodeHosts), len(s.NodeHosts))
}

// RespondingCount returns the number of responding hosts of both kinds.
func (s *SystemInfo) RespondingCount() int {
	return countResponding(s.EthernetHosts) + countResponding(s.NodeHosts)
}

// HostCount returns the number of hosts of both kinds.
func (s *SystemInfo) HostCount() int {
	return len(s.EthernetHosts) + len(s.NodeHosts)
}

// FailedHosts returns labels of non-responding hosts, ethernet first.
func (s *SystemInfo) FailedHosts() []string {
	var failed []string

	for _, hosts := range [][]Host{s.EthernetHosts, s.NodeHosts} {
		for _, host := range hosts {
			if !host.Responding {
				failed = append(failed, host.Label)
			}
		}
	}

	return failed
}

// Clone returns a deep copy of the system.
func (s *SystemInfo) Clone() *SystemInfo {
	if s == nil {
		return nil
	}

	return &SystemInfo{
		Name:          s.Name,
		EthernetHosts: cloneHosts(s.EthernetHosts),
		NodeHosts:     cloneHosts(s.NodeHosts),
		Alarm:         s.Alarm,
	}
}

func (s *SystemInfo) hasAddress(address string) bool {
	for _, hosts := range [][]Host{s.EthernetHosts, s.NodeHosts} {
		for _, host := range hosts {
			if host.Address == address {
				return true
			}
		}
	}

	return false
}

func allResponding(hosts []Host) bool {
	for _, host := range hosts {
		if !host.Responding {
			return false
		}
	}

	return true
}

func countResponding(hosts []Host) int {
	count := 0

	for _, host := range hosts {
		if host.Responding {
			count++
		}
	}

	return count
}

func cloneHosts(hosts []Host) []Host {
	if hosts == nil {
		return nil
	}

	cloned := make([]Host, len(hosts))
	copy(cloned, hosts)

	return cloned
}
