// Package watcher turns raw filesystem events into debounced,
// extension-filtered WatchEvents dispatched synchronously to handlers, per
// spec §4.5. The OS backend is github.com/fsnotify/fsnotify, replacing the
// teacher's hand-rolled polling FileWatcher
// (cmd/lynx/internal/run/watcher.go) with the real inotify/kqueue/
// ReadDirectoryChangesW mechanism the spec's "raw filesystem event" model
// assumes.
package watcher

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-lynx/pluginrt/internal/logging"
	"github.com/go-lynx/pluginrt/plugin"
)

// Watcher watches directories, filters by extension, debounces, and
// dispatches Events to registered handlers.
type Watcher struct {
	cfg Config
	log *log.Helper

	mu         sync.Mutex
	running    bool
	fsw        *fsnotify.Watcher
	queuedDirs map[string]struct{}
	handlers   []Handler
	lastEvents map[string]time.Time

	// installed maps each path passed to Watch to the set of directories
	// actually registered with fsw for it: just itself when Recursive is
	// false, or itself plus every descendant directory when true. Kept so
	// Unwatch can tear down the whole subtree it installed.
	installed map[string][]string

	done chan struct{}
}

// New constructs an idle watcher; Start binds the OS mechanism.
func New(cfg Config) *Watcher {
	return &Watcher{
		cfg:        cfg,
		log:        logging.Helper("watcher"),
		queuedDirs: map[string]struct{}{},
		lastEvents: map[string]time.Time{},
		installed:  map[string][]string{},
	}
}

// dirsToInstall returns path plus, when cfg.Recursive is set, every
// subdirectory beneath it, since fsnotify v1.6.0's Add is single-level
// only (it does not itself recurse).
func (w *Watcher) dirsToInstall(path string) []string {
	if !w.cfg.Recursive {
		return []string{path}
	}
	dirs := []string{path}
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && p != path {
			dirs = append(dirs, p)
		}
		return nil
	})
	return dirs
}

// OnEvent registers a handler, dispatched in registration order.
func (w *Watcher) OnEvent(h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Watch queues path for watching. Before Start it is remembered; after
// Start it (and, when Config.Recursive is set, every subdirectory beneath
// it) is installed immediately.
func (w *Watcher) Watch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		w.queuedDirs[path] = struct{}{}
		return nil
	}
	dirs := w.dirsToInstall(path)
	for _, d := range dirs {
		if err := w.fsw.Add(d); err != nil {
			return plugin.ErrWatch("add watch failed", err)
		}
	}
	w.installed[path] = dirs
	return nil
}

// Unwatch removes path, and every subdirectory installed for it, from the
// watch set.
func (w *Watcher) Unwatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.queuedDirs, path)
	if !w.running {
		return nil
	}
	dirs, ok := w.installed[path]
	if !ok {
		dirs = []string{path}
	}
	delete(w.installed, path)
	for _, d := range dirs {
		if err := w.fsw.Remove(d); err != nil {
			return plugin.ErrWatch("remove watch failed", err)
		}
	}
	return nil
}

// Start binds the OS watch mechanism and installs queued paths, then
// begins dispatching events on a dedicated goroutine.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return plugin.ErrWatch("failed to start OS watcher", err)
	}
	w.fsw = fsw
	w.done = make(chan struct{})
	for dir := range w.queuedDirs {
		dirs := w.dirsToInstall(dir)
		for _, d := range dirs {
			if err := fsw.Add(d); err != nil {
				w.log.Warnf("watch %q: %v", d, err)
			}
		}
		w.installed[dir] = dirs
	}
	w.running = true
	w.mu.Unlock()

	go w.loop(fsw, w.done)
	return nil
}

// Stop unbinds the OS watcher. Already-queued paths are remembered for a
// subsequent Start.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	close(w.done)
	err := w.fsw.Close()
	w.fsw = nil
	if err != nil {
		return plugin.ErrWatch("failed to stop OS watcher", err)
	}
	return nil
}

func (w *Watcher) loop(fsw *fsnotify.Watcher, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleRaw(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.Warnf("watch error: %v", err)
		}
	}
}

func mapKind(op fsnotify.Op) (Kind, bool) {
	switch {
	case op&fsnotify.Create != 0:
		return Created, true
	case op&fsnotify.Write != 0:
		return Modified, true
	case op&fsnotify.Remove != 0, op&fsnotify.Rename != 0:
		// Renames are observed as Removed{from} then a separate Created{to}
		// per spec §4.5 when the backend doesn't expose atomic pairs;
		// fsnotify reports rename-away as Rename on the old path, which we
		// map to Removed and let the corresponding Create on the new path
		// arrive as its own event.
		return Removed, true
	default:
		return 0, false
	}
}

func (w *Watcher) handleRaw(ev fsnotify.Event) {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if !running {
		return
	}

	kind, ok := mapKind(ev.Op)
	if !ok {
		return
	}

	if !w.extensionAllowed(ev.Name) {
		return
	}

	if !w.admitDebounce(ev.Name) {
		return
	}

	w.dispatch(Event{Kind: kind, Path: ev.Name})
}

func (w *Watcher) extensionAllowed(path string) bool {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	for _, e := range w.cfg.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) admitDebounce(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	if last, ok := w.lastEvents[path]; ok && now.Sub(last) < w.cfg.Debounce {
		return false
	}
	w.lastEvents[path] = now
	return true
}

func (w *Watcher) dispatch(ev Event) {
	w.mu.Lock()
	hs := make([]Handler, len(w.handlers))
	copy(hs, w.handlers)
	w.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}

// EvictStale drops debounce entries older than threshold, bounding the
// lastEvents map's memory over a long-running session. Implementation
// freedom per §4.5's "storm control" note, not a contract.
func (w *Watcher) EvictStale(threshold time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	for path, last := range w.lastEvents {
		if now.Sub(last) > threshold {
			delete(w.lastEvents, path)
		}
	}
}
