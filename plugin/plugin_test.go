package plugin

import (
	"errors"
	"testing"
)

type stringValue string

func (s stringValue) Text() string { return string(s) }

type fakeEngine struct {
	calls     []string
	failNext  bool
	failOn    string
}

func (e *fakeEngine) Execute(expr string) (Value, error) {
	e.calls = append(e.calls, expr)
	if e.failOn != "" && expr == e.failOn {
		return nil, errors.New("boom")
	}
	if e.failNext {
		e.failNext = false
		return nil, errors.New("boom")
	}
	return stringValue("ok"), nil
}

type fakeCapSet struct{ granted map[string]struct{} }

func (s fakeCapSet) Has(name string) bool { _, ok := s.granted[name]; return ok }

type fakeEngineConfig struct{ caps fakeCapSet }

func (c fakeEngineConfig) Capabilities() CapabilitySet { return c.caps }

func testEngineFactory(eng *fakeEngine) EngineFactory {
	return func(cfg EngineConfig, bytecode []byte) (Engine, error) {
		return eng, nil
	}
}

func testManifest(exports ...string) Manifest {
	return Manifest{Name: "p", VersionStr: "1.0.0", Source: "p.fsx", Exports: exports}
}

// TestLifecycleHappyPath ports §8 scenario 4.
func TestLifecycleHappyPath(t *testing.T) {
	p := New(testManifest("main"), nil, nil)
	eng := &fakeEngine{}

	if err := p.Initialize(fakeEngineConfig{}, newFakeResolver(), testEngineFactory(eng)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if p.State() != Initialized {
		t.Fatalf("state = %v, want Initialized", p.State())
	}

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.State() != Running {
		t.Fatalf("state = %v, want Running", p.State())
	}

	v, err := p.Call("main", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v.Text() != "ok" {
		t.Errorf("Call result = %q, want %q", v.Text(), "ok")
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.State() != Stopped {
		t.Fatalf("state = %v, want Stopped", p.State())
	}

	_, err = p.Call("main", nil)
	var asErr *Error
	if !errors.As(err, &asErr) || asErr.Code != CodeInvalidState {
		t.Errorf("call after stop: expected InvalidState, got %v", err)
	}

	if err := p.Unload(); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if p.State() != Unloaded {
		t.Fatalf("state = %v, want Unloaded", p.State())
	}
}

// TestInitializeMissingCapability ports §8 scenario 5, and invariant I3.
func TestInitializeMissingCapability(t *testing.T) {
	m := testManifest("main")
	m.Capabilities = []string{"fs:read"}
	resolver := newFakeResolver("fs:read")

	p := New(m, nil, nil)
	err := p.Initialize(fakeEngineConfig{caps: fakeCapSet{granted: map[string]struct{}{}}}, resolver, testEngineFactory(&fakeEngine{}))
	if !IsCode(err, CodeMissingCapability) {
		t.Fatalf("expected MissingCapability, got %v", err)
	}
	if p.State() != Created {
		t.Fatalf("state must not advance on failed initialize: got %v", p.State())
	}

	err = p.Initialize(fakeEngineConfig{caps: fakeCapSet{granted: map[string]struct{}{"fs:read": {}}}}, resolver, testEngineFactory(&fakeEngine{}))
	if err != nil {
		t.Fatalf("expected success with capability granted, got %v", err)
	}
	if p.State() != Initialized {
		t.Fatalf("state = %v, want Initialized", p.State())
	}
}

// TestCallNeverDispatchesWhenNotRunning ports invariant I2.
func TestCallNeverDispatchesWhenNotRunning(t *testing.T) {
	p := New(testManifest("main"), nil, nil)
	eng := &fakeEngine{}
	if err := p.Initialize(fakeEngineConfig{}, newFakeResolver(), testEngineFactory(eng)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	_, err := p.Call("main", nil)
	if !IsCode(err, CodeInvalidState) {
		t.Fatalf("expected InvalidState calling before Running, got %v", err)
	}
	if len(eng.calls) != 0 {
		t.Fatalf("engine must not be dispatched to: got calls %v", eng.calls)
	}
}

func TestCallRequiresExport(t *testing.T) {
	p := New(testManifest("foo"), nil, nil)
	eng := &fakeEngine{}
	_ = p.Initialize(fakeEngineConfig{}, newFakeResolver(), testEngineFactory(eng))
	_ = p.Start()

	_, err := p.Call("bar", nil)
	if !IsCode(err, CodeFunctionNotFound) {
		t.Fatalf("expected FunctionNotFound, got %v", err)
	}

	// "main" is always implicitly exportable.
	_, err = p.Call("main", nil)
	if err != nil {
		t.Fatalf("main should be callable even when not declared: %v", err)
	}
}

func TestInvocationCountIncrementsBeforeDispatch(t *testing.T) {
	p := New(testManifest("main"), nil, nil)
	eng := &fakeEngine{failNext: true}
	_ = p.Initialize(fakeEngineConfig{}, newFakeResolver(), testEngineFactory(eng))
	_ = p.Start()

	_, err := p.Call("main", nil)
	if err == nil {
		t.Fatal("expected call failure")
	}
	if p.Info().InvocationCount != 1 {
		t.Errorf("invocation count = %d, want 1 even though the call failed", p.Info().InvocationCount)
	}
}

// TestReloadFromRunningRestartsRunning ports invariant I4 (success case).
func TestReloadFromRunningRestartsRunning(t *testing.T) {
	p := New(testManifest("main", "init", "cleanup"), nil, nil)
	eng := &fakeEngine{}
	_ = p.Initialize(fakeEngineConfig{}, newFakeResolver(), testEngineFactory(eng))
	_ = p.Start()

	if err := p.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if p.State() != Running {
		t.Fatalf("state after successful reload of a running plugin = %v, want Running", p.State())
	}
	if p.Info().ReloadCount != 1 {
		t.Errorf("reload count = %d, want 1", p.Info().ReloadCount)
	}
}

// TestReloadFailureLeavesInitialized ports invariant I4 (failure case).
func TestReloadFailureLeavesInitialized(t *testing.T) {
	p := New(testManifest("main", "init"), nil, nil)
	eng := &fakeEngine{}
	_ = p.Initialize(fakeEngineConfig{}, newFakeResolver(), testEngineFactory(eng))
	_ = p.Start()

	eng.failOn = "init()"
	err := p.Reload()
	if !IsCode(err, CodeReloadFailed) {
		t.Fatalf("expected ReloadFailed, got %v", err)
	}
	if p.State() != Initialized {
		t.Fatalf("state after failed reload = %v, want Initialized (not Running, not Error)", p.State())
	}
}

// TestReloadFromErrorGoesToInitializedWithoutInit codifies §9's open
// question: reload from a never-Running plugin does not invoke init().
func TestReloadFromErrorGoesToInitializedWithoutInit(t *testing.T) {
	p := New(testManifest("main", "init"), nil, nil)
	eng := &fakeEngine{}
	_ = p.Initialize(fakeEngineConfig{}, newFakeResolver(), testEngineFactory(eng))
	p.state = ErrorState

	if err := p.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if p.State() != Initialized {
		t.Fatalf("state = %v, want Initialized", p.State())
	}
	for _, c := range eng.calls {
		if c == "init()" {
			t.Fatalf("init() must not be invoked when the plugin was never Running, calls=%v", eng.calls)
		}
	}
}

func TestReloadFromUnloadedFails(t *testing.T) {
	p := New(testManifest("main"), nil, nil)
	_ = p.Unload()

	if err := p.Reload(); !errors.Is(err, ErrPluginUnloaded) {
		t.Fatalf("reload from Unloaded: expected PluginUnloaded, got %v", err)
	}
}

func TestUnloadIsTerminalAndRejectsEverything(t *testing.T) {
	p := New(testManifest("main"), nil, nil)
	eng := &fakeEngine{}
	_ = p.Initialize(fakeEngineConfig{}, newFakeResolver(), testEngineFactory(eng))
	_ = p.Start()
	_ = p.Unload()

	if _, err := p.Call("main", nil); !errors.Is(err, ErrPluginUnloaded) {
		t.Errorf("Call after unload: expected PluginUnloaded, got %v", err)
	}
	if err := p.Start(); !errors.Is(err, ErrPluginUnloaded) {
		t.Errorf("Start after unload: expected PluginUnloaded, got %v", err)
	}
	if err := p.Stop(); !errors.Is(err, ErrPluginUnloaded) {
		t.Errorf("Stop after unload: expected PluginUnloaded, got %v", err)
	}
}
