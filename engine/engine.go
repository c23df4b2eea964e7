// Package engine is the concrete reference implementation of the
// scripting-engine collaborator the specification places out of scope
// (compilation, bytecode validation, and execution internals). It exists
// only to exercise the plugin package's interface contract with a real,
// if deliberately minimal, engine: Expr treats "source" as a registry of
// named Go closures invoked by the name(args...) textual call convention
// the spec mandates for call/init/cleanup.
package engine

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-lynx/pluginrt/capability"
	"github.com/go-lynx/pluginrt/plugin"
)

// Value is engine's Value implementation: a plain string, rendered
// verbatim as its own textual form. Numeric/bool literals can be wrapped
// with Value(fmt.Sprint(x)).
type Value string

func (v Value) Text() string { return string(v) }

// CompileOptions is accepted but unused by Expr; a real engine would
// thread optimization levels, debug-info flags, etc. through it.
type CompileOptions struct {
	Debug bool
}

// CompileResult carries the compiled bytecode and any non-fatal
// diagnostics, per §6.
type CompileResult struct {
	Bytecode []byte
	Warnings []string
}

// BytecodeInfo is what ValidateBytecode reports about a precompiled
// artifact.
type BytecodeInfo struct {
	CompilerVersion string
}

// Config is the capability-granted configuration a Plugin constructs an
// Engine from.
type Config struct {
	caps      capability.Set
	functions map[string]func(args ...Value) (Value, error)
}

// NewConfig returns a Config with the given granted capability set and
// an initially empty function registry; callers add functions with
// Register before handing the config to a plugin.
func NewConfig(caps capability.Set) *Config {
	return &Config{caps: caps, functions: map[string]func(args ...Value) (Value, error){}}
}

// Capabilities implements plugin.EngineConfig.
func (c *Config) Capabilities() plugin.CapabilitySet { return c.caps }

// Register adds a named closure the compiled "source" can call by name.
func (c *Config) Register(name string, fn func(args ...Value) (Value, error)) {
	c.functions[name] = fn
}

// Compiler is the out-of-scope compile/validate surface §6 names. Expr's
// "compilation" is a no-op: the source text is just the list of function
// names the manifest already declares in its exports, so there is nothing
// to lower — the bytecode produced is the source text itself, reused
// as a marker that compilation happened.
type Compiler struct{}

func NewCompiler() *Compiler { return &Compiler{} }

func (c *Compiler) Compile(source string, _ CompileOptions) (CompileResult, error) {
	return CompileResult{Bytecode: []byte(source)}, nil
}

func (c *Compiler) CompileFile(path string, opts CompileOptions) (CompileResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CompileResult{}, err
	}
	return c.Compile(string(data), opts)
}

func (c *Compiler) ValidateBytecode(b []byte) (BytecodeInfo, error) {
	if len(b) == 0 {
		return BytecodeInfo{}, fmt.Errorf("empty bytecode")
	}
	return BytecodeInfo{CompilerVersion: "expr-0.1"}, nil
}

// Expr is the reference Engine: a registry of named closures addressed
// by the name(args...) call convention.
type Expr struct {
	cfg *Config
}

// New constructs an Expr engine from cfg and the plugin's bytecode. The
// bytecode itself is unused by this reference engine — the callable
// registry lives on Config — but the parameter is accepted to match
// plugin.EngineFactory's signature.
func New(cfg *Config, _ []byte) (*Expr, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil engine config")
	}
	return &Expr{cfg: cfg}, nil
}

// Execute parses the "name(a1, a2, ...)" call convention and dispatches
// to the matching registered closure. The return type satisfies
// plugin.Engine's interface contract directly.
func (e *Expr) Execute(expression string) (plugin.Value, error) {
	name, args, err := parseCall(expression)
	if err != nil {
		return nil, err
	}
	fn, ok := e.cfg.functions[name]
	if !ok {
		return nil, fmt.Errorf("undefined function %q", name)
	}
	return fn(args...)
}

func parseCall(expr string) (string, []Value, error) {
	open := strings.IndexByte(expr, '(')
	if open < 0 || !strings.HasSuffix(expr, ")") {
		return "", nil, fmt.Errorf("malformed call expression %q", expr)
	}
	name := expr[:open]
	inner := expr[open+1 : len(expr)-1]
	if strings.TrimSpace(inner) == "" {
		return name, nil, nil
	}
	parts := strings.Split(inner, ",")
	args := make([]Value, len(parts))
	for i, p := range parts {
		args[i] = Value(strings.TrimSpace(p))
	}
	return name, args, nil
}
