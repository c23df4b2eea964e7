// Package hostconfig loads the host process's bootstrap configuration —
// where plugins live, watch/reload tuning, registry admission policy —
// the way go-lynx-lynx's boot package turns a Kratos config.Config into
// typed component configs, but via spf13/viper (a direct dependency of
// the open-policy-agent-opa example) instead of Kratos's own config
// loader, since this module doesn't otherwise depend on Kratos's config
// package.
package hostconfig

import (
	"time"

	"github.com/spf13/viper"

	"github.com/go-lynx/pluginrt/loader"
	"github.com/go-lynx/pluginrt/plugin"
	"github.com/go-lynx/pluginrt/registry"
	"github.com/go-lynx/pluginrt/runtime"
	"github.com/go-lynx/pluginrt/watcher"
)

// Config is the host bootstrap configuration read by Load, translated
// into the runtime's own Config types by RuntimeConfig.
type Config struct {
	HostAPIVersion string   `mapstructure:"host_api_version"`
	BasePath       string   `mapstructure:"base_path"`
	AutoStart      bool     `mapstructure:"auto_start"`
	Strict         bool     `mapstructure:"strict_validation"`

	MaxPlugins        int  `mapstructure:"max_plugins"`
	AllowOverwrite    bool `mapstructure:"allow_overwrite"`
	AutoUnloadStopped bool `mapstructure:"auto_unload_stopped"`

	Debounce    time.Duration `mapstructure:"debounce"`
	Recursive   bool          `mapstructure:"recursive"`
	Extensions  []string      `mapstructure:"extensions"`
	AutoReload  bool          `mapstructure:"auto_reload"`

	PluginDirs     []string `mapstructure:"plugin_dirs"`
	PluginPatterns []string `mapstructure:"plugin_patterns"`
}

// Load reads a YAML/JSON/TOML bootstrap file at path into a Config via
// viper, defaulting unset fields to the runtime's own defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("host_api_version", plugin.DefaultAPIVersion.String())
	v.SetDefault("auto_start", true)
	v.SetDefault("strict_validation", true)
	v.SetDefault("max_plugins", 256)
	v.SetDefault("debounce", 500*time.Millisecond)
	v.SetDefault("recursive", true)
	v.SetDefault("extensions", []string{"fsx", "fzb", "toml"})
	v.SetDefault("auto_reload", true)
	v.SetDefault("plugin_patterns", []string{"*.toml", "plugin.toml"})

	if err := v.ReadInConfig(); err != nil {
		return Config{}, plugin.ErrIO(err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, plugin.ErrManifestParse("invalid host configuration", err)
	}
	return cfg, nil
}

// RuntimeConfig translates the host bootstrap Config into runtime.Config.
func (c Config) RuntimeConfig() (runtime.Config, error) {
	hostVersion, err := plugin.ParseVersion(c.HostAPIVersion)
	if err != nil {
		return runtime.Config{}, plugin.ErrManifestParse("invalid host_api_version", err)
	}

	return runtime.Config{
		Loader: loader.Config{
			HostAPIVersion:   hostVersion,
			BasePath:         c.BasePath,
			AutoStart:        c.AutoStart,
			StrictValidation: c.Strict,
		},
		Registry: registry.Config{
			MaxPlugins:        c.MaxPlugins,
			AllowOverwrite:    c.AllowOverwrite,
			AutoUnloadStopped: c.AutoUnloadStopped,
		},
		Watcher: watcher.Config{
			Debounce:   c.Debounce,
			Recursive:  c.Recursive,
			Extensions: c.Extensions,
			AutoReload: c.AutoReload,
		},
		PluginDirs:     c.PluginDirs,
		PluginPatterns: c.PluginPatterns,
	}, nil
}
