package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-lynx/pluginrt/capability"
	"github.com/go-lynx/pluginrt/engine"
	"github.com/go-lynx/pluginrt/plugin"
)

func newTestRuntime() *Runtime {
	cfg := DefaultConfig()
	return New(cfg, capability.NewRegistry(), engine.NewCompiler())
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
	return path
}

// counterMetric returns the value of the runtime's counter named name, or
// 0 if no such metric family is registered.
func counterMetric(t *testing.T, rt *Runtime, name string) float64 {
	t.Helper()
	families, err := rt.Metrics().Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name && len(f.GetMetric()) > 0 {
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestLoadSourceRunsAndRecordsMetrics(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "greeter.fsx", "main()")

	rt := newTestRuntime()
	p, err := rt.LoadSource(path)
	if err != nil {
		t.Fatalf("LoadSource: %v", err)
	}
	if !rt.HasPlugin("greeter") {
		t.Fatal("expected the loaded plugin to be registered under its stem name")
	}
	if p.State() != plugin.Running {
		t.Fatalf("state = %v, want Running", p.State())
	}
	if got := counterMetric(t, rt, "pluginrt_loaded_total"); got != 1 {
		t.Errorf("pluginrt_loaded_total = %v, want 1", got)
	}
}

func TestUnloadRemovesFromRegistryAndRecordsMetric(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "greeter.fsx", "main()")

	rt := newTestRuntime()
	if _, err := rt.LoadSource(path); err != nil {
		t.Fatalf("LoadSource: %v", err)
	}
	if err := rt.Unload("greeter"); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if rt.HasPlugin("greeter") {
		t.Fatal("expected plugin to be gone after Unload")
	}
	if got := counterMetric(t, rt, "pluginrt_unloaded_total"); got != 1 {
		t.Errorf("pluginrt_unloaded_total = %v, want 1", got)
	}
}

func TestBroadcastCallsEveryRunningExporter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.fsx", "main()")
	writeFile(t, dir, "b.fsx", "main()")

	rt := newTestRuntime()
	if _, err := rt.LoadSource(filepath.Join(dir, "a.fsx")); err != nil {
		t.Fatalf("load a: %v", err)
	}
	if _, err := rt.LoadSource(filepath.Join(dir, "b.fsx")); err != nil {
		t.Fatalf("load b: %v", err)
	}

	results := rt.Broadcast("main", nil)
	if len(results) != 2 {
		t.Fatalf("expected 2 broadcast results, got %d", len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("%s: unexpected error %v", r.Name, r.Err)
		}
	}
}

func TestDiscoverLoadsManifestsMatchingPatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "p.fsx", "main()")
	writeFile(t, dir, "manifest.toml", `
name = "p"
version = "1.0.0"
source = "p.fsx"
`)

	cfg := DefaultConfig()
	cfg.PluginDirs = []string{dir}
	rt := New(cfg, capability.NewRegistry(), engine.NewCompiler())

	loaded, err := rt.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 discovered plugin, got %d", len(loaded))
	}
	if !rt.HasPlugin("p") {
		t.Fatal("expected discovered plugin to be registered")
	}
}

func TestCallUnknownPluginReturnsNotFound(t *testing.T) {
	rt := newTestRuntime()
	if _, err := rt.Call("missing", "main", nil); !plugin.IsCode(err, plugin.CodePluginNotFound) {
		t.Fatalf("expected PluginNotFound, got %v", err)
	}
}
