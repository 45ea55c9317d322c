// Package tools provides the tool registry: named operations the model may
// invoke, each with a JSON-schema definition and an executor.
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360studio/bookwright/llm"
)

// Executor runs tool calls for the tools it declares via ListTools.
type Executor interface {
	// Execute runs a tool call. Execution failures are returned as a
	// structured failure payload, never as a Go error; the error return is
	// reserved for infrastructure problems.
	Execute(ctx context.Context, call llm.ToolCall) llm.ToolResult

	// ListTools returns the definitions this executor handles.
	ListTools() []llm.ToolDefinition
}

// Registry maps tool names to their executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
	order     []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register adds every tool an executor declares. Later registrations win on
// name conflicts.
func (r *Registry) Register(exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, def := range exec.ListTools() {
		if _, exists := r.executors[def.Name]; !exists {
			r.order = append(r.order, def.Name)
		}
		r.executors[def.Name] = exec
	}
}

// Definitions returns all tool definitions in registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		if def, ok := r.definition(name); ok {
			defs = append(defs, def)
		}
	}
	return defs
}

// Subset returns definitions for the named tools only, preserving the given
// order. Unknown names are skipped.
func (r *Registry) Subset(names ...string) []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		if def, ok := r.definition(name); ok {
			defs = append(defs, def)
		}
	}
	return defs
}

// definition looks up a single tool definition. Caller holds the lock.
func (r *Registry) definition(name string) (llm.ToolDefinition, bool) {
	exec, ok := r.executors[name]
	if !ok {
		return llm.ToolDefinition{}, false
	}
	for _, def := range exec.ListTools() {
		if def.Name == name {
			return def, true
		}
	}
	return llm.ToolDefinition{}, false
}

// Execute dispatches a call to its executor. Unknown tool names return a
// structured failure so the loop can feed it back to the model.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	r.mu.RLock()
	exec, ok := r.executors[call.Name]
	r.mu.RUnlock()

	if !ok {
		return llm.FailureResult(call, fmt.Sprintf("unknown tool: %s", call.Name))
	}
	return exec.Execute(ctx, call)
}
