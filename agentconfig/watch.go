package agentconfig

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a config file on disk and signals on Changed whenever its
// content is rewritten, debouncing rapid successive writes (editors and
// atomic-rename deploys often produce several events for one logical
// change).
//
// Adapted from the teacher's pkg/config/provider/file.go FileProvider, with
// the Provider abstraction dropped: this runtime only ever loads config
// from a local file, so the indirection bought nothing.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	Changed <-chan struct{}
}

// WatchConfig starts watching path's containing directory for writes to
// path itself, matching the teacher's "watch the directory, not the file"
// approach (editors replace files via rename, which some platforms don't
// surface as an event on the original inode).
func WatchConfig(ctx context.Context, path string) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("agentconfig: resolve watch path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("agentconfig: create file watcher: %w", err)
	}

	dir := filepath.Dir(absPath)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("agentconfig: watch dir %s: %w", dir, err)
	}

	ch := make(chan struct{}, 1)
	w := &Watcher{path: absPath, watcher: fw, Changed: ch}
	go w.loop(ctx, filepath.Base(absPath), ch)

	slog.Info("watching agent config", "path", absPath)
	return w, nil
}

func (w *Watcher) loop(ctx context.Context, name string, ch chan<- struct{}) {
	defer close(ch)
	defer w.watcher.Close()

	const debounceDelay = 200 * time.Millisecond
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceDelay, func() {
				select {
				case ch <- struct{}{}:
				default:
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("config watcher error", "error", err, "path", w.path)
		}
	}
}

// Close stops the watch and releases the underlying inotify/kqueue handle.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
