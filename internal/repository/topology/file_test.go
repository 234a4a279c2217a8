package topology

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestParse_Roundtrip imports one system with two ethernet hosts and one node.
func TestParse_Roundtrip(t *testing.T) {
	t.Parallel()

	systems, err := Parse(strings.NewReader("PLC1_eth0,10.0.0.1\nPLC1_eth1,10.0.0.2\nPLC1_node1,10.0.0.3\n"))
	require.NoError(t, err)
	require.Len(t, systems, 1)

	system := systems["PLC1"]
	require.NotNil(t, system)
	require.Equal(t, "PLC1", system.Name)
	require.Len(t, system.EthernetHosts, 2)
	require.Len(t, system.NodeHosts, 1)
	require.Equal(t, "10.0.0.3", system.NodeHosts[0].Address)
	require.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, system.Addresses())
}

// TestParse_SkipsMalformedLines drops lines that are not exactly "label,address".
func TestParse_SkipsMalformedLines(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"# comment without comma",
		"PLC1_eth0,10.0.0.1,extra",
		"",
		" PLC1_ETH0 , 10.0.0.1 ",
		",10.0.0.9",
		"PLC2_node1,",
		"PLC2_io1,10.0.1.5",
		"PLC2_io1,10.0.1.5",
	}, "\n")

	systems, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	names := systems.Names()
	sort.Strings(names)
	require.Equal(t, []string{"PLC1", "PLC2"}, names)

	require.Len(t, systems["PLC1"].EthernetHosts, 1)
	require.Equal(t, "PLC1_ETH0", systems["PLC1"].EthernetHosts[0].Label)
	require.Empty(t, systems["PLC2"].EthernetHosts)
	require.Len(t, systems["PLC2"].NodeHosts, 1)
}

// TestFileImporter_NotFound verifies Import reports a missing file.
func TestFileImporter_NotFound(t *testing.T) {
	t.Parallel()

	_, err := NewFileImporter().Import(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	require.ErrorIs(t, err, ErrNotFound)
}

// TestFileImporter_Import reads a host list from disk.
func TestFileImporter_Import(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hosts.txt")
	require.NoError(t, os.WriteFile(path, []byte("A_eth,10.1.0.1\nB_eth,10.2.0.1\nB_node,10.2.0.2\n"), 0o600))

	systems, err := NewFileImporter().Import(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, systems, 2)
	require.Len(t, systems.Addresses(), 3)
}
