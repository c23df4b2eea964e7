// Package runtime is the sibling façade composing Loader + Registry +
// Watcher + hook dispatch for callers who want a single entry point. It
// is a thin layer and not part of the hard core (§2).
package runtime

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-lynx/pluginrt/capability"
	"github.com/go-lynx/pluginrt/engine"
	"github.com/go-lynx/pluginrt/internal/logging"
	"github.com/go-lynx/pluginrt/internal/telemetry"
	"github.com/go-lynx/pluginrt/loader"
	"github.com/go-lynx/pluginrt/plugin"
	"github.com/go-lynx/pluginrt/registry"
	"github.com/go-lynx/pluginrt/watcher"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Runtime composes a Loader, a Registry, a Watcher and lifecycle hooks.
type Runtime struct {
	cfg      Config
	ld       *loader.Loader
	registry *registry.Registry
	watcher  *watcher.Watcher
	hooks    *plugin.Hooks
	resolver *capability.Registry
	metrics  *telemetry.Metrics

	// reloadGroup coalesces overlapping watcher-triggered reload requests
	// for the same plugin name into one in-flight Registry.Reload call.
	// The watcher dispatches events one at a time, so events delivered in
	// sequence each run their own reload.
	reloadGroup singleflight.Group

	log *log.Helper
}

// New constructs a Runtime. resolver is the host's capability registry;
// compiler is the engine's compile/validate surface.
func New(cfg Config, resolver *capability.Registry, compiler *engine.Compiler) *Runtime {
	hooks := plugin.NewHooks()
	metrics := telemetry.New(telemetry.DefaultConfig())
	rt := &Runtime{
		cfg:      cfg,
		ld:       loader.New(cfg.Loader, resolver, compiler, hooks),
		registry: registry.New(cfg.Registry),
		watcher:  watcher.New(cfg.Watcher),
		hooks:    hooks,
		resolver: resolver,
		metrics:  metrics,
		log:      logging.Helper("runtime"),
	}
	rt.watcher.OnEvent(rt.handleWatchEvent)
	hooks.Register(rt.recordLifecycleMetric)
	return rt
}

// Metrics returns the runtime's Prometheus metrics collector, for hosts
// that want to serve it via promhttp or scrape it directly.
func (rt *Runtime) Metrics() *telemetry.Metrics { return rt.metrics }

func (rt *Runtime) recordLifecycleMetric(ev plugin.LifecycleEvent) {
	switch ev.Kind {
	case plugin.EventUnloaded:
		rt.metrics.RecordUnload()
	case plugin.EventError:
		rt.metrics.RecordError()
	}
}

// OnLifecycleEvent registers a hook receiving every plugin's lifecycle
// transitions.
func (rt *Runtime) OnLifecycleEvent(fn plugin.HookFunc) {
	rt.hooks.Register(fn)
}

// StartWatching binds the watcher's OS backend and installs
// Config.PluginDirs as watched paths.
func (rt *Runtime) StartWatching() error {
	for _, dir := range rt.cfg.PluginDirs {
		if err := rt.watcher.Watch(dir); err != nil {
			return err
		}
	}
	return rt.watcher.Start()
}

// handleWatchEvent is the watcher → reload subscriber. auto_reload is a
// hint read here, never enforced by the watcher itself (§9).
func (rt *Runtime) handleWatchEvent(ev watcher.Event) {
	if !rt.cfg.Watcher.AutoReload {
		return
	}
	name := pluginNameForPath(ev.Path)
	correlation := uuid.New().String()
	rt.log.Infof("watch event kind=%s path=%s plugin=%s correlation=%s", ev.Kind, ev.Path, name, correlation)

	_, err, _ := rt.reloadGroup.Do(name, func() (interface{}, error) {
		return nil, rt.registry.Reload(name)
	})
	if err != nil {
		rt.log.Warnf("reload %q (correlation=%s): %v", name, correlation, err)
	}
}

// pluginNameForPath maps a watched path to a plugin name. The mapping is
// the handler's responsibility per §4.5; this façade uses the file stem,
// matching how LoadSource and LoadBytecode name synthetic manifests.
func pluginNameForPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// LoadManifest loads and registers a plugin from an already-parsed
// manifest.
func (rt *Runtime) LoadManifest(m *plugin.Manifest, manifestPath string, baseCaps capability.Set) (*plugin.Plugin, error) {
	start := time.Now()
	p, err := rt.ld.LoadManifest(m, manifestPath, baseCaps)
	if err != nil {
		return nil, err
	}
	if err := rt.registry.Register(p); err != nil {
		return nil, err
	}
	rt.metrics.RecordLoad(time.Since(start))
	return p, nil
}

// LoadSource loads and registers a raw source file under a synthetic
// manifest.
func (rt *Runtime) LoadSource(path string) (*plugin.Plugin, error) {
	start := time.Now()
	p, err := rt.ld.LoadSource(path)
	if err != nil {
		return nil, err
	}
	if err := rt.registry.Register(p); err != nil {
		return nil, err
	}
	rt.metrics.RecordLoad(time.Since(start))
	return p, nil
}

// LoadBytecode loads and registers a precompiled artifact under a
// synthetic manifest.
func (rt *Runtime) LoadBytecode(path string) (*plugin.Plugin, error) {
	start := time.Now()
	p, err := rt.ld.LoadBytecodeFile(path)
	if err != nil {
		return nil, err
	}
	if err := rt.registry.Register(p); err != nil {
		return nil, err
	}
	rt.metrics.RecordLoad(time.Since(start))
	return p, nil
}

func (rt *Runtime) Unload(name string) error        { return rt.registry.Unregister(name) }
func (rt *Runtime) Get(name string) (plugin.Handle, bool) { return rt.registry.Get(name) }
func (rt *Runtime) HasPlugin(name string) bool       { return rt.registry.Contains(name) }
func (rt *Runtime) Plugins() []string                { return rt.registry.Names() }
func (rt *Runtime) Running() []plugin.Handle         { return rt.registry.Running() }
func (rt *Runtime) PluginCount() int                 { return rt.registry.Len() }
func (rt *Runtime) Stats() registry.Stats            { return rt.registry.StatsSnapshot() }

func (rt *Runtime) Start(name string) error {
	h, ok := rt.registry.Get(name)
	if !ok {
		return plugin.ErrPluginNotFound(name)
	}
	return h.Start()
}

func (rt *Runtime) Stop(name string) error {
	h, ok := rt.registry.Get(name)
	if !ok {
		return plugin.ErrPluginNotFound(name)
	}
	return h.Stop()
}

func (rt *Runtime) Reload(name string) error { return rt.registry.Reload(name) }

func (rt *Runtime) StartAll() registry.Results  { return rt.registry.StartAll() }
func (rt *Runtime) StopAll() registry.Results   { return rt.registry.StopAll() }
func (rt *Runtime) ReloadAll() registry.Results { return rt.registry.ReloadAll() }

// Call dispatches function on the named running plugin.
func (rt *Runtime) Call(name, function string, args []plugin.Value) (plugin.Value, error) {
	h, ok := rt.registry.Get(name)
	if !ok {
		return nil, plugin.ErrPluginNotFound(name)
	}
	start := time.Now()
	v, err := h.Call(function, args)
	rt.metrics.RecordCall(time.Since(start))
	return v, err
}

// Cleanup removes unloaded (and, if configured, stopped) plugins.
func (rt *Runtime) Cleanup() int { return rt.registry.Cleanup() }

// Shutdown stops the watcher and unloads every remaining plugin, the Go
// counterpart of original_source's PluginRuntime::shutdown / Drop.
func (rt *Runtime) Shutdown() registry.Results {
	if err := rt.watcher.Stop(); err != nil {
		rt.log.Warnf("watcher stop: %v", err)
	}
	return rt.registry.Close()
}
