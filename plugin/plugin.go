package plugin

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var nextPluginID uint64

// Engine is the narrow interface a Plugin drives. The runtime ships one
// reference implementation (package engine); production hosts supply
// their own scripting engine behind this interface.
type Engine interface {
	Execute(expression string) (Value, error)
}

// Value is the textual-interpolation-friendly argument/return type the
// engine consumes and produces; see §9's "call expression construction by
// textual interpolation" note.
type Value interface {
	// Text renders the value in the engine's expression-literal syntax.
	Text() string
}

// Info is a point-in-time, read-only snapshot of a Plugin's bookkeeping
// fields, safe to copy and hold.
type Info struct {
	ID              uint64
	Name            string
	State           LifecycleState
	InvocationCount uint64
	ReloadCount     uint64
	LoadedAt        time.Time
	LastReload      time.Time
}

// Plugin owns one loaded plugin's mutable state: its manifest, engine
// instance, bytecode, lifecycle state and counters. All mutation happens
// under mu; reads may proceed under mu's shared (read) lock, matching
// §5's per-plugin serialization contract.
type Plugin struct {
	mu sync.RWMutex

	id       uint64
	manifest Manifest
	state    LifecycleState
	engine   Engine
	bytecode []byte

	invocationCount uint64
	reloadCount     uint64
	loadedAt        time.Time
	lastReload      time.Time

	hooks *Hooks
}

// New constructs a Plugin in the Created state. bytecode may be nil if
// the plugin will be initialized with a freshly compiled engine.
func New(manifest Manifest, bytecode []byte, hooks *Hooks) *Plugin {
	id := atomic.AddUint64(&nextPluginID, 1)
	p := &Plugin{
		id:       id,
		manifest: manifest,
		state:    Created,
		bytecode: bytecode,
		loadedAt: time.Now(),
		hooks:    hooks,
	}
	p.emit(EventCreated, "")
	return p
}

func (p *Plugin) emit(kind EventKind, msg string) {
	if p.hooks == nil {
		return
	}
	p.hooks.Emit(LifecycleEvent{Kind: kind, PluginName: p.manifest.Name, ReloadCount: p.reloadCount, Message: msg})
}

// Info returns a snapshot under the shared lock.
func (p *Plugin) Info() Info {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Info{
		ID:              p.id,
		Name:            p.manifest.Name,
		State:           p.state,
		InvocationCount: p.invocationCount,
		ReloadCount:     p.reloadCount,
		LoadedAt:        p.loadedAt,
		LastReload:      p.lastReload,
	}
}

// State returns the current lifecycle state.
func (p *Plugin) State() LifecycleState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Manifest returns a copy of the plugin's manifest. Copying is
// cheap-by-contract per §3; a Manifest's slices are never mutated after
// construction so a shallow copy is safe to hand out.
func (p *Plugin) Manifest() Manifest {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.manifest
}

// HasExport reports whether name is in the manifest's exports, or is the
// always-exportable "main".
func (p *Plugin) HasExport(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hasExportLocked(name)
}

func (p *Plugin) hasExportLocked(name string) bool {
	if name == "main" {
		return true
	}
	for _, e := range p.manifest.Exports {
		if e == name {
			return true
		}
	}
	return false
}

// RequiresCapability reports whether the manifest declares capability
// name.
func (p *Plugin) RequiresCapability(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.manifest.RequiresCapability(name)
}

// EngineConfig is the capability-granted configuration an engine is
// constructed from. The runtime never inspects it beyond Capabilities;
// concrete engines may embed additional fields.
type EngineConfig interface {
	Capabilities() CapabilitySet
}

// CapabilitySet is the narrow interface §6 names for the capability
// registry's set type.
type CapabilitySet interface {
	Has(name string) bool
}

// EngineFactory constructs an Engine from a capability-granted config and
// this plugin's bytecode. Supplied by the loader.
type EngineFactory func(cfg EngineConfig, bytecode []byte) (Engine, error)

// Initialize is legal from {Created, Stopped}. It checks every declared
// capability is both known and granted, constructs an engine, and on
// success transitions to Initialized.
func (p *Plugin) Initialize(cfg EngineConfig, resolver CapabilityResolver, newEngine EngineFactory) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.isTerminal() {
		return ErrPluginUnloaded
	}
	if !p.state.canInitialize() {
		return ErrInvalidState(Created, p.state)
	}

	for _, c := range p.manifest.Capabilities {
		if _, ok := resolver.FromName(c); !ok {
			return ErrInvalidManifest(fmt.Sprintf("unknown capability %q", c))
		}
		if !cfg.Capabilities().Has(c) {
			return ErrMissingCapability(c)
		}
	}

	eng, err := newEngine(cfg, p.bytecode)
	if err != nil {
		return ErrInitializationFailed("engine construction failed", err)
	}

	p.engine = eng
	p.state = Initialized
	p.emit(EventInitialized, "")
	return nil
}

// Start is legal from Initialized. If the manifest exports "init", it is
// invoked before the transition to Running.
func (p *Plugin) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.isTerminal() {
		return ErrPluginUnloaded
	}
	if !p.state.canStart() {
		return ErrInvalidState(Initialized, p.state)
	}

	if p.hasExportLocked("init") {
		if _, err := p.engine.Execute("init()"); err != nil {
			return ErrInitializationFailed("init() failed", err)
		}
	}

	p.state = Running
	p.emit(EventStarted, "")
	return nil
}

// Stop is legal from Running. If the manifest exports "cleanup", it is
// invoked; a cleanup error is discarded, neither returned to the caller
// nor logged. The transition to Stopped is unconditional.
func (p *Plugin) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.isTerminal() {
		return ErrPluginUnloaded
	}
	if !p.state.canStop() {
		return ErrInvalidState(Running, p.state)
	}

	if p.hasExportLocked("cleanup") {
		_, _ = p.engine.Execute("cleanup()")
	}

	p.state = Stopped
	p.emit(EventStopped, "")
	return nil
}

// Call is legal from Running. function must be exported (or "main").
// invocation_count increments before dispatch, per §9: it counts attempts,
// not successes.
func (p *Plugin) Call(function string, args []Value) (Value, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.isTerminal() {
		return nil, ErrPluginUnloaded
	}
	if !p.state.canCall() {
		return nil, ErrInvalidState(Running, p.state)
	}
	if !p.hasExportLocked(function) {
		return nil, ErrFunctionNotFound(function)
	}

	expr := buildCallExpression(function, args)
	p.invocationCount++

	v, err := p.engine.Execute(expr)
	if err != nil {
		return nil, ErrExecutionFailed(fmt.Sprintf("call to %q failed", function), err)
	}
	return v, nil
}

func buildCallExpression(function string, args []Value) string {
	if len(args) == 0 {
		return function + "()"
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Text()
	}
	return function + "(" + strings.Join(parts, ", ") + ")"
}

// Reload is legal from any non-Unloaded state. If the plugin was Running,
// cleanup() (if exported) is invoked first with errors swallowed; state
// moves to Initialized and counters update; if it was running, init() (if
// exported) is invoked to restart it — failure surfaces ReloadFailed and
// leaves state at Initialized, never Running nor Error.
func (p *Plugin) Reload() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.isTerminal() {
		return ErrPluginUnloaded
	}
	if !p.state.canReload() {
		return ErrInvalidState(Initialized, p.state)
	}

	wasRunning := p.state == Running
	if wasRunning && p.hasExportLocked("cleanup") {
		_, _ = p.engine.Execute("cleanup()")
	}

	p.state = Initialized
	p.lastReload = time.Now()
	p.reloadCount++
	p.emit(EventReloaded, "")

	if !wasRunning {
		return nil
	}

	if p.hasExportLocked("init") {
		if _, err := p.engine.Execute("init()"); err != nil {
			return ErrReloadFailed("init() failed after reload", err)
		}
	}
	p.state = Running
	p.emit(EventStarted, "")
	return nil
}

// Unload is legal from any state. If Running and cleanup is exported it
// is invoked (errors swallowed); the engine and bytecode are dropped and
// state moves to Unloaded, terminal.
func (p *Plugin) Unload() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.isTerminal() {
		return nil
	}

	if p.state == Running && p.hasExportLocked("cleanup") {
		_, _ = p.engine.Execute("cleanup()")
	}

	p.engine = nil
	p.bytecode = nil
	p.state = Unloaded
	p.emit(EventUnloaded, "")
	return nil
}

// SetBytecode replaces the plugin's stored bytecode. Legal in any
// non-terminal state. The loader does not call it: it hands compiled
// bytecode to New instead.
func (p *Plugin) SetBytecode(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.isTerminal() {
		return ErrPluginUnloaded
	}
	p.bytecode = b
	return nil
}

// ID returns the plugin's monotonic process-wide identifier.
func (p *Plugin) ID() uint64 {
	return p.id
}
