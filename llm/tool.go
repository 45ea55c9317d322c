package llm

import "encoding/json"

// ToolDefinition describes a tool the model may call. Parameters is a
// JSON-schema object in the shape providers expect.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the outcome of executing a tool call. Payload is the
// structured result fed back to the model; it always carries a "success" key.
type ToolResult struct {
	CallID  string         `json:"call_id"`
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload"`
}

// Success reports whether the payload indicates a successful execution.
func (r ToolResult) Success() bool {
	ok, _ := r.Payload["success"].(bool)
	return ok
}

// JSON renders the payload for inclusion in a tool message. Marshal failures
// degrade to a generic error payload rather than propagating.
func (r ToolResult) JSON() string {
	data, err := json.Marshal(r.Payload)
	if err != nil {
		return `{"success":false,"error":"unserializable tool result"}`
	}
	return string(data)
}

// FailureResult builds a structured failure payload for a call.
func FailureResult(call ToolCall, msg string) ToolResult {
	return ToolResult{
		CallID: call.ID,
		Name:   call.Name,
		Payload: map[string]any{
			"success": false,
			"error":   msg,
		},
	}
}

// ParseArguments decodes a raw JSON argument string into a map. Malformed
// arguments yield an empty map so a bad call can still be dispatched and
// rejected by the tool itself.
func ParseArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}
