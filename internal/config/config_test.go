package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate checks required fields and format validations.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Missing listen address.
	require.Error(t, Validate(new(Config)))

	// Bad listen address.
	require.Error(t, Validate(&Config{ListenAddress: "no-port"}))

	// Unknown probe method.
	cfg := Default()
	cfg.Probe.Method = "arping"
	require.Error(t, Validate(cfg))

	// Deadline longer than the cycle.
	cfg = Default()
	cfg.PLC.Deadline = 2 * time.Second
	require.Error(t, Validate(cfg))

	// Bad slot.
	cfg = Default()
	cfg.PLC.Slot = 300
	require.Error(t, Validate(cfg))

	// Bad optional address.
	cfg = Default()
	cfg.MetricsAddress = "9100"
	require.Error(t, Validate(cfg))

	require.Error(t, Validate(nil))
}

// TestValidateFillsDefaults ensures zero values are replaced with defaults.
func TestValidateFillsDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{ListenAddress: ":50061", Probe: Probe{Method: " NMAP "}}
	require.NoError(t, Validate(cfg))

	require.Equal(t, DefaultTopologyFilename, cfg.TopologyFile)
	require.Equal(t, DefaultPollInterval, cfg.PollInterval)
	require.Equal(t, DefaultCommandBuffer, cfg.CommandBuffer)
	require.Equal(t, "nmap", cfg.Probe.Method)
	require.Equal(t, DefaultProbeAttempts, cfg.Probe.Attempts)
	require.Equal(t, DefaultProbeTimeout, cfg.Probe.Timeout)
	require.Equal(t, DefaultPLCDeadline, cfg.PLC.Deadline)
	require.Equal(t, DefaultPLCPort, cfg.PLC.Port)
	require.Equal(t, DefaultTimeout, cfg.Timeout)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")

	cfg := Default()
	cfg.TopologyFile = "/etc/plc/hosts.txt"
	cfg.PollInterval = 2 * time.Second
	cfg.PLC.Deadline = 900 * time.Millisecond
	cfg.PLC.Slot = 3
	cfg.MetricsAddress = ":9161"

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

// TestLoadKeepsDefaultsForMissingKeys checks partial files.
func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	contents := "listen_address: \":7000\"\npoll_interval: 3s\nwatch_topology: false\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), DefaultFilePermissions))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.ListenAddress)
	require.Equal(t, 3*time.Second, cfg.PollInterval)
	require.False(t, cfg.WatchTopology)
	require.Equal(t, DefaultProbeMethod, cfg.Probe.Method)
	require.Equal(t, DefaultPLCDeadline, cfg.PLC.Deadline)
}

func TestIsDefaultPath(t *testing.T) {
	t.Parallel()

	require.True(t, IsDefaultPath(""))
	require.True(t, IsDefaultPath(DefaultConfigFilename))
	require.False(t, IsDefaultPath("/etc/plc-monitor/settings.yaml"))
}
