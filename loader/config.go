package loader

import "github.com/go-lynx/pluginrt/plugin"

// Config is the loader's per-load configuration, per spec §4.3.
type Config struct {
	HostAPIVersion   plugin.Version
	BasePath         string
	AutoStart        bool
	StrictValidation bool
}

// DefaultConfig returns a permissive default: strict validation on,
// auto-start on, host API at the package default.
func DefaultConfig() Config {
	return Config{
		HostAPIVersion:   plugin.DefaultAPIVersion,
		AutoStart:        true,
		StrictValidation: true,
	}
}

// Strict returns the preset original_source calls Loader::strict: same as
// DefaultConfig, kept as a distinct name for callers porting that idiom.
func Strict(host plugin.Version) Config {
	cfg := DefaultConfig()
	cfg.HostAPIVersion = host
	return cfg
}
