// Package watcher reports changes of a single file.
//
// The parent directory is watched so editors that replace the file through a
// rename are noticed. Bursts of events are collapsed into one notification.
// The watched file can be switched at runtime with Retarget.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/oshokin/plc-monitor/internal/logger"
)

// DefaultDebounce is the quiet period required before a change is reported.
const DefaultDebounce = 500 * time.Millisecond

// Watcher calls onChange after the watched file changes.
type Watcher struct {
	// path is the absolute path of the watched file.
	path string
	// onChange is called from the Watch goroutine.
	onChange func(ctx context.Context, path string)
	// debounce is the quiet period before onChange is called.
	debounce time.Duration
	// retarget carries the latest requested path to the Watch goroutine.
	retarget chan string
}

// New creates a watcher for path.
func New(path string, onChange func(ctx context.Context, path string)) (*Watcher, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	return &Watcher{
		path:     absolute,
		onChange: onChange,
		debounce: DefaultDebounce,
		retarget: make(chan string, 1),
	}, nil
}

// Retarget switches the watched file to path. Only the latest pending request is kept.
func (w *Watcher) Retarget(path string) error {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	for {
		select {
		case w.retarget <- absolute:
			return nil
		default:
		}

		select {
		case <-w.retarget:
		default:
		}
	}
}

// WithDebounce sets the debounce duration.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d

	return w
}

// Watch blocks until ctx is canceled or the underlying watcher fails to start.
func (w *Watcher) Watch(ctx context.Context) error {
	ctx = logger.WithName(ctx, "watcher")

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	defer func() {
		_ = fsw.Close()
	}()

	if err = fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	logger.InfoKV(ctx, "Watching topology file", "path", w.path)

	debounce := time.NewTimer(w.debounce)
	debounce.Stop()

	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}

			if !w.relevant(event) {
				continue
			}

			logger.DebugKV(ctx, "Topology file event", "op", event.Op.String())

			debounce.Reset(w.debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}

			logger.WarnKV(ctx, "Watcher error", "error", err)
		case path := <-w.retarget:
			w.switchTo(ctx, fsw, path)
			debounce.Stop()
		case <-debounce.C:
			logger.InfoKV(ctx, "Topology file changed", "path", w.path)

			w.onChange(ctx, w.path)
		}
	}
}

// switchTo moves the watch to path; on failure the current file stays watched.
func (w *Watcher) switchTo(ctx context.Context, fsw *fsnotify.Watcher, path string) {
	if path == w.path {
		return
	}

	oldDir, newDir := filepath.Dir(w.path), filepath.Dir(path)

	if newDir != oldDir {
		if err := fsw.Add(newDir); err != nil {
			logger.WarnKV(ctx, "Failed to watch new topology file", "path", path, "error", err)

			return
		}

		_ = fsw.Remove(oldDir)
	}

	logger.InfoKV(ctx, "Watching topology file", "path", path, "previous", w.path)

	w.path = path
}

// relevant reports whether event touches the watched file contents.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	name, err := filepath.Abs(event.Name)
	if err != nil || name != w.path {
		return false
	}

	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
