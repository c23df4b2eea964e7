// Package pluginrt is the core of a plugin runtime for a host application
// that embeds a scripting engine: manifest/version compatibility, a
// per-plugin lifecycle state machine, a concurrent registry, and a
// debounced file watcher for hot reload.
//
// The hard subsystems live in their own packages — plugin, loader,
// registry, watcher — composed by the runtime façade for callers who want
// a single entry point.
package pluginrt

// Version is this runtime's own release string, exposed per the external
// interfaces section of the specification.
const Version = "0.1.0"
