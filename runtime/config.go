package runtime

import (
	"github.com/go-lynx/pluginrt/loader"
	"github.com/go-lynx/pluginrt/registry"
	"github.com/go-lynx/pluginrt/watcher"
)

// Config composes the three subsystem configs plus the supplemental
// discovery settings ported from original_source's RuntimeConfig.
type Config struct {
	Loader   loader.Config
	Registry registry.Config
	Watcher  watcher.Config

	// PluginDirs / PluginPatterns drive Discover; ported from
	// original_source/src/runtime.rs (auto_discover/plugin_patterns),
	// dropped by the distillation but not excluded by any Non-goal.
	PluginDirs     []string
	PluginPatterns []string
}

// DefaultConfig mirrors original_source's RuntimeConfig::default, with
// discovery off (empty dirs) until a caller opts in.
func DefaultConfig() Config {
	return Config{
		Loader:         loader.DefaultConfig(),
		Registry:       registry.DefaultConfig(),
		Watcher:        watcher.DefaultConfig(),
		PluginPatterns: []string{"*.toml", "plugin.toml"},
	}
}
