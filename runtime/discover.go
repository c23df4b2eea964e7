package runtime

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-lynx/pluginrt/capability"
	"github.com/go-lynx/pluginrt/plugin"
)

// Discover scans Config.PluginDirs for files matching PluginPatterns and
// loads each as a manifest. Ported from original_source/src/runtime.rs's
// PluginRuntime::discover (dropped by spec.md's distillation, not
// excluded by any Non-goal) using path/filepath.Glob as the stdlib
// counterpart to the Rust glob crate already stubbed there.
func (rt *Runtime) Discover(ctx context.Context) ([]*plugin.Plugin, error) {
	var loaded []*plugin.Plugin

	for _, dir := range rt.cfg.PluginDirs {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}
		for _, pattern := range rt.cfg.PluginPatterns {
			matches, err := filepath.Glob(filepath.Join(dir, pattern))
			if err != nil {
				rt.log.Warnf("discover glob %q in %q: %v", pattern, dir, err)
				continue
			}
			for _, path := range matches {
				p, err := rt.loadManifestFile(path)
				if err != nil {
					rt.log.Warnf("discover load %q: %v", path, err)
					continue
				}
				loaded = append(loaded, p)
			}
		}
	}
	return loaded, nil
}

func (rt *Runtime) loadManifestFile(path string) (*plugin.Plugin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, plugin.ErrIO(err)
	}

	var m *plugin.Manifest
	switch filepath.Ext(path) {
	case ".json":
		m, err = plugin.ManifestFromJSON(data)
	default:
		m, err = plugin.ManifestFromTOML(data)
	}
	if err != nil {
		return nil, err
	}

	p, err := rt.ld.LoadManifest(m, path, capability.None())
	if err != nil {
		return nil, err
	}
	if err := rt.registry.Register(p); err != nil {
		return nil, err
	}
	return p, nil
}
