// Package watch triggers resyncs when the workspace config or a local
// source file changes on disk.
package watch

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/apidb-dev/apidb/internal/config"
	"github.com/apidb-dev/apidb/internal/logger"
	"github.com/apidb-dev/apidb/internal/workspace"
)

// Debounce window: editors often emit several events per save, and a
// single resync should cover all of them.
const debounceDelay = 500 * time.Millisecond

// Watcher observes config.json and local file sources, invoking a
// callback after changes settle.
type Watcher struct {
	handle   workspace.Handle
	fsw      *fsnotify.Watcher
	onChange func(context.Context)
	watched  map[string]bool
}

// New creates a Watcher over the workspace. onChange runs after each
// debounced burst of changes; it typically performs a sync.
func New(h workspace.Handle, onChange func(context.Context)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		handle:   h,
		fsw:      fsw,
		onChange: onChange,
		watched:  make(map[string]bool),
	}
	if err := w.refresh(); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// refresh rebuilds the watch set from the current config: the workspace
// directory (for config.json) plus the directory of every enabled local
// file source. Directories are watched rather than files because many
// editors save by rename, which drops file-level watches.
func (w *Watcher) refresh() error {
	cfg, err := config.Load(w.handle)
	if err != nil {
		return err
	}

	watched := map[string]bool{filepath.Clean(w.handle.ConfigPath()): true}
	dirs := map[string]bool{w.handle.Dir(): true}

	for _, src := range cfg.EnabledSources() {
		if isHTTPURL(src.Location) {
			continue
		}
		path := src.Location
		if !filepath.IsAbs(path) {
			path = filepath.Join(w.handle.Root(), path)
		}
		path = filepath.Clean(path)
		watched[path] = true
		dirs[filepath.Dir(path)] = true
	}

	for dir := range dirs {
		if err := w.fsw.Add(dir); err != nil {
			logger.Warn("Cannot watch %s: %v", dir, err)
		}
	}

	w.watched = watched
	return nil
}

// Run blocks, dispatching debounced change callbacks until the context
// is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(debounceDelay)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.watched[filepath.Clean(ev.Name)] {
				continue
			}
			logger.Debug("Change detected: %s (%s)", ev.Name, ev.Op)
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(debounceDelay)
			pending = true

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watch error: %v", err)

		case <-timer.C:
			pending = false
			w.onChange(ctx)
			// Config edits may have changed which files matter.
			if err := w.refresh(); err != nil {
				logger.Warn("Cannot refresh watch set: %v", err)
			}
		}
	}
}

func isHTTPURL(location string) bool {
	u, err := url.Parse(location)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}
