package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDebounceSuppressesRapidEvents ports §8 scenario 6 at the unit
// level through admitAt, a fixed-clock copy of admitDebounce's window
// rule, avoiding a dependency on real OS event timing.
func TestDebounceSuppressesRapidEvents(t *testing.T) {
	w := New(Config{Debounce: 500 * time.Millisecond, Extensions: []string{"fsx"}})

	t0 := time.Now()
	admits := []bool{}
	for _, offset := range []time.Duration{0, 100 * time.Millisecond, 600 * time.Millisecond, 650 * time.Millisecond} {
		now := t0.Add(offset)
		admits = append(admits, admitAt(w, "a.fsx", now))
	}

	want := []bool{true, false, true, false}
	for i := range want {
		if admits[i] != want[i] {
			t.Errorf("event %d: admitted=%v, want %v", i, admits[i], want[i])
		}
	}
}

// admitAt is admitDebounce parameterized over a fixed clock, for
// deterministic tests of the debounce window without sleeping.
func admitAt(w *Watcher, path string, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if last, ok := w.lastEvents[path]; ok && now.Sub(last) < w.cfg.Debounce {
		return false
	}
	w.lastEvents[path] = now
	return true
}

func TestExtensionFilter(t *testing.T) {
	w := New(Config{Extensions: []string{"fsx", "toml"}})
	if !w.extensionAllowed("/plugins/a.fsx") {
		t.Error("expected .fsx to be allowed")
	}
	if w.extensionAllowed("/plugins/a.txt") {
		t.Error("expected .txt to be suppressed")
	}
}

func TestWatchBeforeStartQueues(t *testing.T) {
	dir := t.TempDir()
	w := New(DefaultConfig())
	if err := w.Watch(dir); err != nil {
		t.Fatalf("Watch before Start: %v", err)
	}
	if _, queued := w.queuedDirs[dir]; !queued {
		t.Fatal("expected pre-Start Watch to queue the path")
	}

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()
}

func TestEndToEndModifyDispatches(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{Debounce: 10 * time.Millisecond, Extensions: []string{"txt"}})

	events := make(chan Event, 8)
	w.OnEvent(func(e Event) { events <- e })

	// Create the file before watching so the write below is a modification.
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := w.Watch(dir); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("hello again"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Path != path {
			t.Errorf("event path = %q, want %q", ev.Path, path)
		}
		if ev.Kind != Modified {
			t.Errorf("event kind = %v, want %v", ev.Kind, Modified)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a watch event")
	}
}
