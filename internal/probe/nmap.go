package probe

import (
	"context"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"

	"github.com/oshokin/plc-monitor/internal/logger"
)

// NmapProber sweeps all addresses with a single nmap host discovery scan (-sn).
type NmapProber struct {
	// policy bounds the retries and per-host wait of the scan.
	policy Policy
	// scan runs nmap over the targets; replaced in tests.
	scan func(ctx context.Context, targets []string, policy Policy) (*nmap.Run, error)
}

// NewNmapProber creates a prober backed by the nmap binary.
func NewNmapProber(policy Policy) *NmapProber {
	if policy.Attempts <= 0 || policy.Timeout <= 0 {
		policy = DefaultPolicy()
	}

	return &NmapProber{
		policy: policy,
		scan:   runNmap,
	}
}

// Probe runs the sweep; addresses nmap does not report as up are marked down.
func (p *NmapProber) Probe(ctx context.Context, addresses []string) map[string]bool {
	targets := unique(addresses)
	if len(targets) == 0 {
		return map[string]bool{}
	}

	run, err := p.scan(ctx, targets, p.policy)
	if err != nil {
		logger.WarnKV(ctx, "Nmap sweep failed, marking all hosts down", "targets", len(targets), "error", err)

		return allDown(targets)
	}

	return upHosts(run, targets)
}

// upHosts maps every target to whether the scan reported it up.
func upHosts(run *nmap.Run, targets []string) map[string]bool {
	results := allDown(targets)
	if run == nil {
		return results
	}

	for _, host := range run.Hosts {
		if host.Status.State != "up" {
			continue
		}

		for _, address := range host.Addresses {
			if _, ok := results[address.Addr]; ok {
				results[address.Addr] = true
			}
		}
	}

	return results
}

// runNmap performs a ping scan of targets.
func runNmap(ctx context.Context, targets []string, policy Policy) (*nmap.Run, error) {
	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets(targets...),
		nmap.WithPingScan(),
		nmap.WithMaxRetries(policy.Attempts-1),
		nmap.WithHostTimeout(policy.Timeout*time.Duration(policy.Attempts)),
	)
	if err != nil {
		return nil, err
	}

	run, warnings, err := scanner.Run()
	if err != nil {
		return nil, err
	}

	if warnings != nil && len(*warnings) > 0 {
		logger.DebugKV(ctx, "Nmap warnings", "warnings", *warnings)
	}

	return run, nil
}
