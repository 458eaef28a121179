// Package fswatch reloads operator-managed files (workflow templates, alert
// rule files) when they change on disk.
package fswatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Target is a watched file or directory. Reload runs once per burst of
// changes to it.
type Target struct {
	Name   string
	Path   string
	Reload func(ctx context.Context) error
}

// Watcher debounces filesystem events and runs the matching Reload.
type Watcher struct {
	targets  []target
	debounce time.Duration

	mu     sync.Mutex
	timers map[int]*time.Timer
}

type target struct {
	Target
	dir   bool
	clean string
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a reload runs.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New builds a watcher. Targets with an empty path are ignored.
func New(targets []Target, opts ...Option) *Watcher {
	w := &Watcher{debounce: defaultDebounce, timers: make(map[int]*time.Timer)}
	for _, opt := range opts {
		opt(w)
	}
	for _, t := range targets {
		if t.Path == "" || t.Reload == nil {
			continue
		}
		p := t.Path
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		p = filepath.Clean(p)
		info, err := os.Stat(p)
		w.targets = append(w.targets, target{Target: t, dir: err == nil && info.IsDir(), clean: p})
	}
	return w
}

// Run watches until ctx is done. A directory target is watched directly; a
// file target through its parent so editors that replace the file are seen.
func (w *Watcher) Run(ctx context.Context) error {
	if len(w.targets) == 0 {
		<-ctx.Done()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	added := make(map[string]bool)
	for _, t := range w.targets {
		dir := t.clean
		if !t.dir {
			dir = filepath.Dir(t.clean)
		}
		if added[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			slog.Warn("file watch disabled", "target", t.Name, "path", dir, "error", err)
			continue
		}
		added[dir] = true
		slog.Info("watching for changes", "target", t.Name, "path", dir)
	}

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	name := filepath.Clean(ev.Name)
	for i, t := range w.targets {
		if t.dir && filepath.Dir(name) == t.clean || !t.dir && name == t.clean {
			w.schedule(ctx, i)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, i int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if tm, ok := w.timers[i]; ok {
		tm.Stop()
	}
	t := w.targets[i]
	w.timers[i] = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		if err := t.Reload(ctx); err != nil {
			slog.Error("reload failed, keeping previous version", "target", t.Name, "path", t.clean, "error", err)
			return
		}
		slog.Info("reloaded", "target", t.Name, "path", t.clean)
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, tm := range w.timers {
		tm.Stop()
		delete(w.timers, i)
	}
}
