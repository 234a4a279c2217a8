package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the monitor binaries.
type Config struct {
	// TopologyFile is the host list loaded at startup.
	TopologyFile string `yaml:"topology_file"`
	// WatchTopology reloads the topology whenever TopologyFile changes on disk.
	WatchTopology bool `yaml:"watch_topology"`
	// PollInterval is the target duration of one poll cycle.
	PollInterval time.Duration `yaml:"poll_interval"`
	// CommandBuffer is the capacity of the operator command bridge.
	CommandBuffer int `yaml:"command_buffer"`
	// Probe configures the reachability prober.
	Probe Probe `yaml:"probe"`
	// PLC configures the device tag client.
	PLC PLC `yaml:"plc"`
	// ListenAddress is the gRPC address for operator commands and event streams.
	ListenAddress string `yaml:"listen_address"`
	// MetricsAddress serves Prometheus metrics when set.
	MetricsAddress string `yaml:"metrics_address"`
	// WebsocketAddress serves the live event feed when set.
	WebsocketAddress string `yaml:"websocket_address"`
	// PublishAddress is the mangos PUB endpoint (e.g. tcp://0.0.0.0:40899) when set.
	PublishAddress string `yaml:"publish_address"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// Timeout bounds operator RPC calls made by plc-monitorctl.
	Timeout time.Duration `yaml:"timeout"`
}

// Probe configures how host reachability is checked.
type Probe struct {
	// Method selects the prober: "ping" or "nmap".
	Method string `yaml:"method"`
	// Attempts is the number of echo requests per host.
	Attempts int `yaml:"attempts"`
	// Timeout is the per-attempt reply timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// PLC configures the EtherNet/IP tag client.
type PLC struct {
	// Deadline is the wall-clock budget for all device transactions of a cycle.
	Deadline time.Duration `yaml:"deadline"`
	// Port is the EtherNet/IP encapsulation port.
	Port int `yaml:"port"`
	// Slot is the backplane slot of the controller.
	Slot int `yaml:"slot"`
}

const (
	// DefaultConfigFilename is the default filename for monitor settings.
	DefaultConfigFilename = "plc-monitor-settings.yaml"

	// DefaultTopologyFilename is the default host list.
	DefaultTopologyFilename = "plc-hosts.txt"

	// DefaultPollInterval is the target cycle period.
	DefaultPollInterval = time.Second

	// DefaultCommandBuffer is the command bridge capacity.
	DefaultCommandBuffer = 1000

	// DefaultProbeMethod uses the native ping binary.
	DefaultProbeMethod = "ping"

	// DefaultProbeAttempts is the echo request count per host.
	DefaultProbeAttempts = 2

	// DefaultProbeTimeout is the per-attempt reply timeout.
	DefaultProbeTimeout = time.Second

	// DefaultPLCDeadline is the device transaction budget per cycle.
	DefaultPLCDeadline = 800 * time.Millisecond

	// DefaultPLCPort is the registered EtherNet/IP TCP port.
	DefaultPLCPort = 44818

	// DefaultTimeout bounds operator RPC calls.
	DefaultTimeout = 5 * time.Second

	// DefaultFilePermissions is the permission used when saving settings.
	DefaultFilePermissions = 0o600

	// maxSlot is the highest addressable backplane slot.
	maxSlot = 255
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errListenAddressRequired is returned when the gRPC address is missing.
	errListenAddressRequired = errors.New("listen address must be provided")
	// errUnknownProbeMethod is returned for an unsupported probe method.
	errUnknownProbeMethod = errors.New("unknown probe method")
	// errDeadlineTooLong is returned when the PLC deadline exceeds the poll interval.
	errDeadlineTooLong = errors.New("plc deadline must not exceed poll interval")
	// errInvalidPort is returned for an out-of-range port.
	errInvalidPort = errors.New("plc port out of range")
	// errInvalidSlot is returned for an out-of-range backplane slot.
	errInvalidSlot = errors.New("plc slot out of range")
)

// Default returns a configuration with every optional field set.
func Default() *Config {
	return &Config{
		TopologyFile:  DefaultTopologyFilename,
		WatchTopology: true,
		PollInterval:  DefaultPollInterval,
		CommandBuffer: DefaultCommandBuffer,
		Probe: Probe{
			Method:   DefaultProbeMethod,
			Attempts: DefaultProbeAttempts,
			Timeout:  DefaultProbeTimeout,
		},
		PLC: PLC{
			Deadline: DefaultPLCDeadline,
			Port:     DefaultPLCPort,
		},
		ListenAddress: "127.0.0.1:50061",
		LogLevel:      "info",
		Timeout:       DefaultTimeout,
	}
}

// Load reads configuration from the provided path and validates it.
// Fields absent from the file keep the values of Default.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and fills zero values with defaults.
//
//nolint:cyclop // A flat list of field checks reads better than helpers.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.ListenAddress == "" {
		return errListenAddressRequired
	}

	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	for _, optional := range []string{cfg.MetricsAddress, cfg.WebsocketAddress} {
		if optional == "" {
			continue
		}

		if _, _, err := net.SplitHostPort(optional); err != nil {
			return fmt.Errorf("invalid address %q: %w", optional, err)
		}
	}

	if cfg.TopologyFile == "" {
		cfg.TopologyFile = DefaultTopologyFilename
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = DefaultCommandBuffer
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	cfg.Probe.Method = strings.ToLower(strings.TrimSpace(cfg.Probe.Method))
	switch cfg.Probe.Method {
	case "":
		cfg.Probe.Method = DefaultProbeMethod
	case "ping", "nmap":
	default:
		return fmt.Errorf("%w: %q", errUnknownProbeMethod, cfg.Probe.Method)
	}

	if cfg.Probe.Attempts <= 0 {
		cfg.Probe.Attempts = DefaultProbeAttempts
	}

	if cfg.Probe.Timeout <= 0 {
		cfg.Probe.Timeout = DefaultProbeTimeout
	}

	if cfg.PLC.Deadline <= 0 {
		cfg.PLC.Deadline = DefaultPLCDeadline
	}

	if cfg.PLC.Deadline > cfg.PollInterval {
		return fmt.Errorf("%w: %s > %s", errDeadlineTooLong, cfg.PLC.Deadline, cfg.PollInterval)
	}

	if cfg.PLC.Port == 0 {
		cfg.PLC.Port = DefaultPLCPort
	}

	if cfg.PLC.Port < 0 || cfg.PLC.Port > 65535 {
		return fmt.Errorf("%w: %d", errInvalidPort, cfg.PLC.Port)
	}

	if cfg.PLC.Slot < 0 || cfg.PLC.Slot > maxSlot {
		return fmt.Errorf("%w: %d", errInvalidSlot, cfg.PLC.Slot)
	}

	return nil
}

// IsDefaultPath reports whether path selects the default settings file.
// A missing default file means "use defaults"; a missing explicit file is an error.
func IsDefaultPath(path string) bool {
	return path == "" || path == DefaultConfigFilename
}
