package probe

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/plc-monitor/internal/logger"
)

// PingProber probes each address with the native ping binary.
type PingProber struct {
	// args is the per-OS argument list placed before the address.
	args []string
	// run executes one ping and reports success; replaced in tests.
	run func(ctx context.Context, args []string) error
}

// NewPingProber creates a prober using the ping arguments of the current OS.
func NewPingProber(policy Policy) *PingProber {
	return &PingProber{
		args: PingArgs(runtime.GOOS, policy),
		run:  runPing,
	}
}

// PingArgs returns the ping arguments implementing policy on goos.
func PingArgs(goos string, policy Policy) []string {
	if policy.Attempts <= 0 || policy.Timeout <= 0 {
		policy = DefaultPolicy()
	}

	attempts := strconv.Itoa(policy.Attempts)
	seconds := strconv.Itoa(int(math.Max(1, math.Ceil(policy.Timeout.Seconds()))))

	switch strings.ToLower(goos) {
	case "windows":
		return []string{"-n", attempts, "-w", strconv.FormatInt(policy.Timeout.Milliseconds(), 10)}
	case "darwin", "freebsd", "openbsd", "netbsd":
		return []string{"-c", attempts, "-t", seconds}
	default:
		return []string{"-c", attempts, "-W", seconds}
	}
}

// Probe launches one ping per unique address and waits for all of them.
func (p *PingProber) Probe(ctx context.Context, addresses []string) map[string]bool {
	targets := unique(addresses)
	responding := make([]bool, len(targets))

	var group errgroup.Group

	for i, address := range targets {
		group.Go(func() error {
			responding[i] = p.probeOne(ctx, address)

			return nil
		})
	}

	//nolint:errcheck // Probe tasks never return errors; failures are reported as false.
	_ = group.Wait()

	results := make(map[string]bool, len(targets))
	for i, address := range targets {
		results[address] = responding[i]
	}

	return results
}

// probeOne pings a single address; a panic counts as unreachable.
func (p *PingProber) probeOne(ctx context.Context, address string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorKV(ctx, "Ping task crashed", "address", address, "panic", fmt.Sprint(r))

			ok = false
		}
	}()

	args := append(append(make([]string, 0, len(p.args)+1), p.args...), address)

	if err := p.run(ctx, args); err != nil {
		logger.DebugKV(ctx, "Host not responding", "address", address, "error", err)

		return false
	}

	return true
}

// runPing executes the ping binary; a non-zero exit means no reply.
func runPing(ctx context.Context, args []string) error {
	//nolint:gosec // Arguments are built from the policy and the topology address.
	return exec.CommandContext(ctx, "ping", args...).Run()
}
