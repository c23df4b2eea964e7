// Package loader resolves a manifest (or a raw source/bytecode file) into
// an initialized, optionally started Plugin: validate, check host
// compatibility, compile or validate bytecode, grant capabilities, and
// hand the result to whoever wants it (typically registry.Register).
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-lynx/pluginrt/capability"
	"github.com/go-lynx/pluginrt/engine"
	"github.com/go-lynx/pluginrt/internal/logging"
	"github.com/go-lynx/pluginrt/plugin"
)

// Loader drives manifest/source/bytecode resolution into a constructed,
// initialized Plugin.
type Loader struct {
	cfg      Config
	resolver *capability.Registry
	compiler *engine.Compiler
	hooks    *plugin.Hooks
	log      interface {
		Warnf(string, ...interface{})
		Infof(string, ...interface{})
	}
}

// New constructs a Loader. resolver is the host's capability registry;
// compiler is the engine's compile/validate surface; hooks (may be nil)
// receives lifecycle events emitted by constructed plugins.
func New(cfg Config, resolver *capability.Registry, compiler *engine.Compiler, hooks *plugin.Hooks) *Loader {
	return &Loader{cfg: cfg, resolver: resolver, compiler: compiler, hooks: hooks, log: logging.Helper("loader")}
}

func engineFactory(cfg plugin.EngineConfig, bytecode []byte) (plugin.Engine, error) {
	ec, ok := cfg.(*engine.Config)
	if !ok {
		return nil, fmt.Errorf("unexpected engine config type %T", cfg)
	}
	return engine.New(ec, bytecode)
}

// LoadManifest implements spec §4.3's 8-step load_manifest: validate,
// compatibility check, entry-point resolution, compile/validate, grant
// capabilities, initialize, optionally auto-start.
func (l *Loader) LoadManifest(m *plugin.Manifest, manifestPath string, baseCaps capability.Set) (*plugin.Plugin, error) {
	if l.cfg.StrictValidation {
		if err := m.Validate(l.resolver); err != nil {
			return nil, err
		}
	}

	if !m.IsCompatibleWithHost(l.cfg.HostAPIVersion) {
		return nil, plugin.ErrAPIVersionMismatch(m.APIVersion, l.cfg.HostAPIVersion)
	}

	dir := l.cfg.BasePath
	if manifestPath != "" {
		dir = filepath.Dir(manifestPath)
	}
	resolved := *m
	resolved = resolved.WithManifestDir(dir)

	bytecode, err := l.resolveEntryPoint(&resolved)
	if err != nil {
		return nil, err
	}

	engineCaps := baseCaps.Clone()
	for _, c := range resolved.Capabilities {
		if _, ok := l.resolver.FromName(c); !ok {
			return nil, plugin.ErrInvalidManifest(fmt.Sprintf("unknown capability %q", c))
		}
		engineCaps.Grant(c)
	}
	engineCfg := engine.NewConfig(engineCaps)

	p := plugin.New(resolved, bytecode, l.hooks)
	if err := p.Initialize(engineCfg, l.resolver, engineFactory); err != nil {
		return nil, err
	}

	if l.cfg.AutoStart {
		if err := p.Start(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (l *Loader) resolveEntryPoint(m *plugin.Manifest) ([]byte, error) {
	path := m.EntryPoint()
	if m.UsesSource() {
		result, err := l.compiler.CompileFile(path, engine.CompileOptions{})
		if err != nil {
			return nil, plugin.ErrCompilation(fmt.Sprintf("failed to compile %q", path), err)
		}
		for _, w := range result.Warnings {
			l.log.Warnf("compile warning for %q: %s", path, w)
		}
		return result.Bytecode, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, plugin.ErrIO(err)
	}
	if _, err := l.compiler.ValidateBytecode(data); err != nil {
		return nil, plugin.ErrCompilation(fmt.Sprintf("invalid bytecode %q", path), err)
	}
	return data, nil
}

// LoadSource builds a minimal synthetic manifest (name = file stem,
// version "0.0.0") around a raw source file, skipping manifest-level
// validation and capability grants, per §4.3.
func (l *Loader) LoadSource(path string) (*plugin.Plugin, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	m := plugin.NewManifestBuilder(name, "0.0.0").Source(path).BuildUnchecked()

	result, err := l.compiler.CompileFile(path, engine.CompileOptions{})
	if err != nil {
		return nil, plugin.ErrCompilation(fmt.Sprintf("failed to compile %q", path), err)
	}

	engineCfg := engine.NewConfig(capability.None())
	p := plugin.New(*m, result.Bytecode, l.hooks)
	if err := p.Initialize(engineCfg, l.resolver, engineFactory); err != nil {
		return nil, err
	}
	if l.cfg.AutoStart {
		if err := p.Start(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// LoadBytecodeFile builds a minimal synthetic manifest around a
// precompiled artifact, using the bytecode's reported compiler version as
// the synthetic manifest's version.
func (l *Loader) LoadBytecodeFile(path string) (*plugin.Plugin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, plugin.ErrIO(err)
	}
	info, err := l.compiler.ValidateBytecode(data)
	if err != nil {
		return nil, plugin.ErrCompilation(fmt.Sprintf("invalid bytecode %q", path), err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	version := info.CompilerVersion
	if version == "" {
		version = "0.0.0"
	}
	m := plugin.NewManifestBuilder(name, version).Bytecode(path).BuildUnchecked()

	engineCfg := engine.NewConfig(capability.None())
	p := plugin.New(*m, data, l.hooks)
	if err := p.Initialize(engineCfg, l.resolver, engineFactory); err != nil {
		return nil, err
	}
	if l.cfg.AutoStart {
		if err := p.Start(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Reload delegates to the plugin's own Reload; the plugin's existing
// engine instance and bytecode carry through unchanged.
func (l *Loader) Reload(p *plugin.Plugin) error {
	return p.Reload()
}
