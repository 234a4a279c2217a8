package integration

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/plc-monitor/internal/config"
	"github.com/oshokin/plc-monitor/internal/domain/plc"
	"github.com/oshokin/plc-monitor/internal/service/common"
	"github.com/oshokin/plc-monitor/internal/service/monitor"
)

// testActor is the operator identity used by integration tests.
//
//nolint:gochecknoglobals // Shared immutable fixture.
var testActor = &plc.Actor{Hostname: "test-host", Username: "test-user"}

// monitorEnv describes a running monitor.
type monitorEnv struct {
	// addr is the gRPC address.
	addr string
	// topologyPath is the watched host list.
	topologyPath string
	// client is connected to addr.
	client *common.Client
}

// startMonitor runs monitor.Run with a temporary config and host list.
// The monitor is stopped when the test ends.
func startMonitor(t *testing.T, topology string) *monitorEnv {
	t.Helper()

	dir := t.TempDir()
	addr := reservePort(t)
	topologyPath := filepath.Join(dir, "plc-hosts.txt")
	cfgPath := filepath.Join(dir, "settings.yaml")

	require.NoError(t, os.WriteFile(topologyPath, []byte(topology), 0o600))

	// Point device sessions at a closed port so transactions fail fast.
	cfg := config.Default()
	cfg.TopologyFile = topologyPath
	cfg.ListenAddress = addr
	cfg.PollInterval = 200 * time.Millisecond
	cfg.PLC.Deadline = 100 * time.Millisecond
	cfg.PLC.Port = reservedPortNumber(t)
	cfg.Probe.Attempts = 1

	require.NoError(t, config.Save(cfgPath, cfg))

	// Create cancellable context for monitor lifecycle.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- monitor.Run(ctx, &monitor.Options{
			ConfigPath:    cfgPath,
			AllowMultiple: true,
		})
	}()

	client, err := common.Dial(ctx, addr,
		common.WithCallTimeout(3*time.Second),
		common.WithActor(testActor))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()

		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("monitor did not stop")
		}
	})

	return &monitorEnv{
		addr:         addr,
		topologyPath: topologyPath,
		client:       client,
	}
}

// reservePort returns address on a free TCP port and closes it.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	_ = l.Close()

	return addr
}

// reservedPortNumber returns a free TCP port number.
func reservedPortNumber(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := l.Addr().(*net.TCPAddr).Port //nolint:forcetypeassert // TCP listener.
	_ = l.Close()

	return port
}
