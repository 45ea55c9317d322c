package model

import "sync"

// The process-wide registry backs callers that do not wire their own, such
// as one-off CLI invocations constructing a bare llm.Client.
var (
	globalMu       sync.Mutex
	globalRegistry *Registry
)

// Global returns the shared registry, building the default capability map
// on first use.
func Global() *Registry {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalRegistry == nil {
		globalRegistry = NewDefaultRegistry()
	}
	return globalRegistry
}

// InitGlobal installs r as the shared registry. It has no effect once
// Global has been called or a previous InitGlobal won.
func InitGlobal(r *Registry) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalRegistry == nil {
		globalRegistry = r
	}
}

// ResetGlobal clears the shared registry so tests start from a known state.
// Not safe against concurrent Global callers.
func ResetGlobal() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalRegistry = nil
}
