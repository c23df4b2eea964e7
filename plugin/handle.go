package plugin

// Handle is a shared reference to a Plugin. Per §9, Go's garbage collector
// stands in for the reference-counted pointer the spec describes: a
// *Plugin handed out by the registry and held by callers needs no
// refcounting, only the Unloaded-state-rejects-everything terminal
// behavior already enforced by Plugin's lifecycle operations.
type Handle = *Plugin
