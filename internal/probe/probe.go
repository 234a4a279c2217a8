package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Prober determines the liveness of a set of addresses.
type Prober interface {
	// Probe returns a result for every unique address in addresses.
	Probe(ctx context.Context, addresses []string) map[string]bool
}

// Policy bounds the work done for a single address.
type Policy struct {
	// Attempts is the number of echo requests.
	Attempts int
	// Timeout is the reply timeout per attempt.
	Timeout time.Duration
}

const (
	// MethodPing selects PingProber.
	MethodPing = "ping"
	// MethodNmap selects NmapProber.
	MethodNmap = "nmap"
)

// ErrUnknownMethod is returned by New for an unsupported method.
var ErrUnknownMethod = errors.New("unknown probe method")

// DefaultPolicy is two attempts with a one second timeout.
func DefaultPolicy() Policy {
	return Policy{Attempts: 2, Timeout: time.Second}
}

// New returns the prober implementing method.
//
//nolint:ireturn // Callers select the implementation from configuration.
func New(method string, policy Policy) (Prober, error) {
	switch strings.ToLower(method) {
	case MethodPing, "":
		return NewPingProber(policy), nil
	case MethodNmap:
		return NewNmapProber(policy), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

// unique returns addresses without duplicates, keeping the first occurrence order.
func unique(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	result := make([]string, 0, len(addresses))

	for _, address := range addresses {
		if _, ok := seen[address]; ok {
			continue
		}

		seen[address] = struct{}{}
		result = append(result, address)
	}

	return result
}

// allDown returns a result map with every address marked unreachable.
func allDown(addresses []string) map[string]bool {
	results := make(map[string]bool, len(addresses))
	for _, address := range addresses {
		results[address] = false
	}

	return results
}
