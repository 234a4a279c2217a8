package topology

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/plc-monitor/internal/domain/plc"
)

// Systems maps system names to their topology.
type Systems map[string]*plc.SystemInfo

// Addresses returns every host address of every system.
func (s Systems) Addresses() []string {
	var addresses []string
	for _, system := range s {
		addresses = append(addresses, system.Addresses()...)
	}

	return addresses
}

// Names returns the system names.
func (s Systems) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}

	return names
}

// Importer loads a topology from a source such as a file path.
type Importer interface {
	Import(ctx context.Context, source string) (Systems, error)
}

// FileImporter reads host lists from the filesystem.
type FileImporter struct{}

// ErrNotFound is returned when the host list does not exist.
var ErrNotFound = errors.New("topology file not found")

// maxLineLength caps a single host list line.
const maxLineLength = 64 * 1024

// NewFileImporter creates an importer for host list files.
func NewFileImporter() *FileImporter {
	return new(FileImporter)
}

// Import reads and parses the host list at source.
func (FileImporter) Import(ctx context.Context, source string) (Systems, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Clean(source))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, source)
		}

		return nil, fmt.Errorf("open topology file: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	systems, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("read topology file: %w", err)
	}

	return systems, nil
}

// Parse builds the system map from a host list.
// Lines without exactly two comma-separated fields are skipped, as are
// lines with an empty label or address and repeated addresses within a system.
func Parse(r io.Reader) (Systems, error) {
	systems := make(Systems)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineLength)

	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), ",")
		if len(fields) != 2 {
			continue
		}

		label := strings.TrimSpace(fields[0])
		address := strings.TrimSpace(fields[1])

		if label == "" || address == "" {
			continue
		}

		name := plc.SystemNameFromLabel(label)

		system, ok := systems[name]
		if !ok {
			system = plc.NewSystemInfo(name)
			systems[name] = system
		}

		system.AddHost(label, address)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return systems, nil
}
