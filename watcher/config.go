package watcher

import "time"

// Config is the watcher's tuning knobs, per spec §4.5.
type Config struct {
	Debounce    time.Duration
	Recursive   bool
	Extensions  []string
	AutoReload  bool
}

// DefaultConfig mirrors original_source's WatchConfig defaults.
func DefaultConfig() Config {
	return Config{
		Debounce:   500 * time.Millisecond,
		Recursive:  true,
		Extensions: []string{"fsx", "fzb", "toml"},
		AutoReload: true,
	}
}
