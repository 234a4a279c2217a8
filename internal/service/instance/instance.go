// Package instance keeps a second poller from running on the same machine.
//
// Two pollers would double the probe and device traffic and race on resets,
// so startup scans the process table for another process with the same
// executable name.
package instance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/plc-monitor/internal/logger"
)

// ErrAnotherInstance is returned when a process with the same executable is running.
var ErrAnotherInstance = errors.New("another instance is already running")

// Lister returns the running processes.
type Lister func() ([]ps.Process, error)

// Guard checks the process table for duplicates of the current executable.
type Guard struct {
	// list enumerates processes.
	list Lister
	// pid is the process id of this process.
	pid int
	// executable is the executable name to look for.
	executable string
}

// NewGuard creates a guard for the current process.
func NewGuard() *Guard {
	return &Guard{
		list:       ps.Processes,
		pid:        os.Getpid(),
		executable: currentExecutable(),
	}
}

// Check returns ErrAnotherInstance when another process runs the same executable.
func (g *Guard) Check(ctx context.Context) error {
	processes, err := g.list()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	for _, process := range processes {
		if process.Pid() == g.pid || process.PPid() == g.pid {
			continue
		}

		if !strings.EqualFold(process.Executable(), g.executable) {
			continue
		}

		logger.WarnKV(ctx, "Found another instance", "pid", process.Pid(), "executable", process.Executable())

		return fmt.Errorf("%w: pid %d", ErrAnotherInstance, process.Pid())
	}

	return nil
}

// currentExecutable returns the base name of this process executable.
func currentExecutable() string {
	path, err := os.Executable()
	if err != nil {
		return filepath.Base(os.Args[0])
	}

	return filepath.Base(path)
}
