// Package registry is the concurrent name→plugin index: admission
// (capacity, duplicates, overwrite policy), enumeration, bulk lifecycle
// operations with partial-failure semantics, and query-by-tag/capability.
package registry

import (
	"hash/fnv"
	"sync"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-lynx/pluginrt/internal/logging"
	"github.com/go-lynx/pluginrt/plugin"
	"github.com/hashicorp/go-multierror"
)

const shardCount = 16

type shard struct {
	mu      sync.RWMutex
	plugins map[string]plugin.Handle
}

// Registry is a shard-striped concurrent map name → plugin.Handle.
// Distinct-key operations do not contend with each other; per-plugin
// operations still serialize on the plugin's own lock (§5).
type Registry struct {
	cfg    Config
	shards [shardCount]*shard
	log    *log.Helper
}

func shardIndex(name string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return int(h.Sum32() % shardCount)
}

// New constructs an empty Registry with cfg's admission policy.
func New(cfg Config) *Registry {
	r := &Registry{cfg: cfg, log: logging.Helper("registry")}
	for i := range r.shards {
		r.shards[i] = &shard{plugins: make(map[string]plugin.Handle)}
	}
	return r
}

func (r *Registry) shardFor(name string) *shard {
	return r.shards[shardIndex(name)]
}

// Len returns an approximate total count, summed across shards under
// their individual read locks (not a single atomic snapshot, matching
// the "hash order acceptable" looseness §4.4 allows for enumeration).
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.plugins)
		s.mu.RUnlock()
	}
	return n
}

func (r *Registry) IsEmpty() bool { return r.Len() == 0 }

// Register admits handle under its manifest name. Admission order: full
// check, duplicate check (overwrite policy), then insert. The capacity
// check is not atomic with the insert across shards; §9 Option A accepts
// the resulting benign overshoot.
func (r *Registry) Register(h plugin.Handle) error {
	name := h.Manifest().Name

	if r.cfg.MaxPlugins > 0 && r.Len() >= r.cfg.MaxPlugins {
		return plugin.ErrRegistry("full")
	}

	s := r.shardFor(name)
	s.mu.Lock()
	existing, ok := s.plugins[name]
	if ok {
		if !r.cfg.AllowOverwrite {
			s.mu.Unlock()
			return plugin.ErrPluginAlreadyLoaded(name)
		}
		delete(s.plugins, name)
	}
	s.plugins[name] = h
	s.mu.Unlock()

	if ok {
		if err := existing.Unload(); err != nil {
			r.log.Warnf("unload of overwritten plugin %q failed: %v", name, err)
		}
	}
	return nil
}

// Unregister removes name, unloading it (errors swallowed, logged).
func (r *Registry) Unregister(name string) error {
	s := r.shardFor(name)
	s.mu.Lock()
	h, ok := s.plugins[name]
	if !ok {
		s.mu.Unlock()
		return plugin.ErrPluginNotFound(name)
	}
	delete(s.plugins, name)
	s.mu.Unlock()

	if err := h.Unload(); err != nil {
		r.log.Warnf("unload of unregistered plugin %q failed: %v", name, err)
	}
	return nil
}

// Get returns the handle for name, if present.
func (r *Registry) Get(name string) (plugin.Handle, bool) {
	s := r.shardFor(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.plugins[name]
	return h, ok
}

func (r *Registry) Contains(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns all registered plugin names in unspecified order.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.Len())
	for _, s := range r.shards {
		s.mu.RLock()
		for n := range s.plugins {
			names = append(names, n)
		}
		s.mu.RUnlock()
	}
	return names
}

// All returns every registered handle in unspecified order.
func (r *Registry) All() []plugin.Handle {
	all := make([]plugin.Handle, 0, r.Len())
	for _, s := range r.shards {
		s.mu.RLock()
		for _, h := range s.plugins {
			all = append(all, h)
		}
		s.mu.RUnlock()
	}
	return all
}

// ByState filters a snapshot by lifecycle state.
func (r *Registry) ByState(state plugin.LifecycleState) []plugin.Handle {
	var out []plugin.Handle
	for _, h := range r.All() {
		if h.State() == state {
			out = append(out, h)
		}
	}
	return out
}

func (r *Registry) Running() []plugin.Handle { return r.ByState(plugin.Running) }

// Stats is a single-pass, point-in-time approximation: because states can
// change mid-scan, category counts may not sum to Total.
type Stats struct {
	Total    int
	Running  int
	Stopped  int
	Error    int
	Unloaded int
}

func (r *Registry) StatsSnapshot() Stats {
	var st Stats
	for _, h := range r.All() {
		st.Total++
		switch h.State() {
		case plugin.Running:
			st.Running++
		case plugin.Stopped:
			st.Stopped++
		case plugin.ErrorState:
			st.Error++
		case plugin.Unloaded:
			st.Unloaded++
		}
	}
	return st
}

// Result is one plugin's outcome within a bulk operation.
type Result struct {
	Name string
	Err  error
}

// Results is the per-item outcome slice bulk operations return. It is
// always returned in registry iteration order and never short-circuits,
// per §4.4.
type Results []Result

// Combined aggregates every non-nil error into one, additive to (not a
// replacement for) the authoritative per-item Results slice.
func (rs Results) Combined() error {
	var merr *multierror.Error
	for _, r := range rs {
		if r.Err != nil {
			merr = multierror.Append(merr, r.Err)
		}
	}
	return merr.ErrorOrNil()
}

func (r *Registry) StartAll() Results {
	var out Results
	for _, h := range r.All() {
		out = append(out, Result{Name: h.Manifest().Name, Err: h.Start()})
	}
	return out
}

func (r *Registry) StopAll() Results {
	var out Results
	for _, h := range r.All() {
		out = append(out, Result{Name: h.Manifest().Name, Err: h.Stop()})
	}
	return out
}

func (r *Registry) ReloadAll() Results {
	var out Results
	for _, h := range r.All() {
		name := h.Manifest().Name
		out = append(out, Result{Name: name, Err: h.Reload()})
	}
	return out
}

// UnloadAll best-effort unloads every plugin, then clears the map.
func (r *Registry) UnloadAll() Results {
	var out Results
	for _, s := range r.shards {
		s.mu.Lock()
		for name, h := range s.plugins {
			out = append(out, Result{Name: name, Err: h.Unload()})
		}
		s.plugins = make(map[string]plugin.Handle)
		s.mu.Unlock()
	}
	return out
}

// Reload delegates to the named plugin's own Reload.
func (r *Registry) Reload(name string) error {
	h, ok := r.Get(name)
	if !ok {
		return plugin.ErrPluginNotFound(name)
	}
	return h.Reload()
}

// FindByTag linear-scans manifests for tag.
func (r *Registry) FindByTag(tag string) []plugin.Handle {
	var out []plugin.Handle
	for _, h := range r.All() {
		for _, t := range h.Manifest().Tags {
			if t == tag {
				out = append(out, h)
				break
			}
		}
	}
	return out
}

// FindByCapability linear-scans manifests for a declared capability.
func (r *Registry) FindByCapability(cap string) []plugin.Handle {
	var out []plugin.Handle
	for _, h := range r.All() {
		if h.RequiresCapability(cap) {
			out = append(out, h)
		}
	}
	return out
}

// Cleanup removes Unloaded entries (and Stopped ones iff
// AutoUnloadStopped), returning the count removed. Safe to call
// concurrently with other operations.
func (r *Registry) Cleanup() int {
	removed := 0
	for _, s := range r.shards {
		s.mu.Lock()
		for name, h := range s.plugins {
			st := h.State()
			if st == plugin.Unloaded || (r.cfg.AutoUnloadStopped && st == plugin.Stopped) {
				delete(s.plugins, name)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Close unloads every remaining plugin, the Go counterpart of the
// spec's "Drop unloads all" registry behavior.
func (r *Registry) Close() Results {
	return r.UnloadAll()
}
