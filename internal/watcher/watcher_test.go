package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestWatch_DebouncesWrites reports a burst of writes once.
func TestWatch_DebouncesWrites(t *testing.T) {
	t.Parallel()

	var (
		dir     = t.TempDir()
		path    = filepath.Join(dir, "plc-hosts.txt")
		changes atomic.Int32
		seen    = make(chan string, 8)
	)

	require.NoError(t, os.WriteFile(path, []byte("PLC1_eth0,10.0.0.1\n"), 0o600))

	w, err := New(path, func(_ context.Context, changed string) {
		changes.Add(1)
		seen <- changed
	})
	require.NoError(t, err)

	w.WithDebounce(100 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- w.Watch(ctx)
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	for i := range 3 {
		require.NoError(t, os.WriteFile(path, []byte("PLC1_eth0,10.0.0."+string(rune('1'+i))+"\n"), 0o600))
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o600))

	select {
	case changed := <-seen:
		require.Equal(t, w.path, changed)
	case <-time.After(5 * time.Second):
		t.Fatal("change not reported")
	}

	time.Sleep(300 * time.Millisecond)
	require.Equal(t, int32(1), changes.Load())

	cancel()
	require.NoError(t, <-done)
}

// TestWatch_MissingDirectory fails to start.
func TestWatch_MissingDirectory(t *testing.T) {
	t.Parallel()

	w, err := New(filepath.Join(t.TempDir(), "absent", "hosts.txt"), func(context.Context, string) {})
	require.NoError(t, err)

	require.Error(t, w.Watch(context.Background()))
}

// TestWatch_Retarget follows the new file and ignores the previous one.
func TestWatch_Retarget(t *testing.T) {
	t.Parallel()

	var (
		first  = filepath.Join(t.TempDir(), "plc-hosts.txt")
		second = filepath.Join(t.TempDir(), "other-hosts.txt")
		seen   = make(chan string, 8)
	)

	require.NoError(t, os.WriteFile(first, []byte("PLC1_eth0,10.0.0.1\n"), 0o600))
	require.NoError(t, os.WriteFile(second, []byte("PLC2_eth0,10.0.0.2\n"), 0o600))

	w, err := New(first, func(_ context.Context, changed string) {
		seen <- changed
	})
	require.NoError(t, err)

	w.WithDebounce(50 * time.Millisecond)
	require.NoError(t, w.Retarget(second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- w.Watch(ctx)
	}()

	// Give the watcher time to register the directories.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(first, []byte("PLC1_eth0,10.0.0.9\n"), 0o600))

	select {
	case changed := <-seen:
		t.Fatalf("previous file reported: %s", changed)
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(second, []byte("PLC2_eth0,10.0.0.9\n"), 0o600))

	expected, err := filepath.Abs(second)
	require.NoError(t, err)

	select {
	case changed := <-seen:
		require.Equal(t, expected, changed)
	case <-time.After(5 * time.Second):
		t.Fatal("change not reported")
	}

	cancel()
	require.NoError(t, <-done)
}

// TestRetarget_KeepsLatest replaces a pending request.
func TestRetarget_KeepsLatest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	w, err := New(filepath.Join(dir, "a.txt"), func(context.Context, string) {})
	require.NoError(t, err)

	require.NoError(t, w.Retarget(filepath.Join(dir, "b.txt")))
	require.NoError(t, w.Retarget(filepath.Join(dir, "c.txt")))

	require.Equal(t, filepath.Join(dir, "c.txt"), <-w.retarget)
}
