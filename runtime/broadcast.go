package runtime

import "github.com/go-lynx/pluginrt/plugin"

// BroadcastResult is one plugin's outcome from Broadcast.
type BroadcastResult struct {
	Name  string
	Value plugin.Value
	Err   error
}

// Broadcast calls function on every currently Running plugin that
// exports it, collecting all results without short-circuiting — the
// same partial-failure discipline registry bulk operations use. Ported
// from original_source/src/runtime.rs's PluginRuntime::broadcast.
func (rt *Runtime) Broadcast(function string, args []plugin.Value) []BroadcastResult {
	var out []BroadcastResult
	for _, h := range rt.registry.Running() {
		if !h.HasExport(function) {
			continue
		}
		v, err := h.Call(function, args)
		out = append(out, BroadcastResult{Name: h.Manifest().Name, Value: v, Err: err})
	}
	return out
}
