package providers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/bookwright/llm"
)

func TestOllamaBuildURL(t *testing.T) {
	p := &OllamaProvider{}

	assert.Equal(t, "http://localhost:11434/v1/chat/completions", p.BuildURL(""))
	assert.Equal(t, "http://gpu-box:8000/v1/chat/completions", p.BuildURL("http://gpu-box:8000/v1/"))
	assert.Equal(t, "http://gpu-box:8000/v1/chat/completions", p.BuildURL("http://gpu-box:8000/v1/chat/completions"))
}

func TestOllamaSetHeaders(t *testing.T) {
	p := &OllamaProvider{}

	t.Setenv("OPENAI_API_KEY", "")
	req, _ := http.NewRequest(http.MethodPost, "http://localhost:11434", nil)
	p.SetHeaders(req)
	assert.Empty(t, req.Header.Get("Authorization"))

	t.Setenv("OPENAI_API_KEY", "sk-local")
	p.SetHeaders(req)
	assert.Equal(t, "Bearer sk-local", req.Header.Get("Authorization"))
}

func TestOllamaBuildRequestBody(t *testing.T) {
	p := &OllamaProvider{}
	temp := 0.7

	body, err := p.BuildRequestBody("llama3.2", []llm.Message{
		{Role: "system", Content: "You are terse."},
		{Role: "user", Content: "hello"},
	}, &temp, 256, []llm.ToolDefinition{
		{Name: "read_file", Description: "Read a file", Parameters: map[string]any{"type": "object"}},
	}, "auto", false)
	require.NoError(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal(body, &req))
	assert.Equal(t, "llama3.2", req["model"])
	assert.Equal(t, 0.7, req["temperature"])
	assert.Equal(t, float64(256), req["max_tokens"])
	assert.Equal(t, "auto", req["tool_choice"])
	assert.Len(t, req["messages"], 2)

	tools := req["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "read_file", fn["name"])

	_, hasStream := req["stream_options"]
	assert.False(t, hasStream, "stream_options only applies to streaming requests")
}

func TestOllamaBuildRequestBodyStreaming(t *testing.T) {
	p := &OllamaProvider{}

	body, err := p.BuildRequestBody("llama3.2", []llm.Message{{Role: "user", Content: "go"}},
		nil, 0, nil, "", true)
	require.NoError(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal(body, &req))
	assert.Equal(t, true, req["stream"])
	assert.Equal(t, map[string]any{"include_usage": true}, req["stream_options"])

	_, hasTemp := req["temperature"]
	assert.False(t, hasTemp, "nil temperature is omitted")
	_, hasMax := req["max_tokens"]
	assert.False(t, hasMax, "zero max_tokens is omitted")
}

func TestOllamaBuildRequestBodyToolRoundTrip(t *testing.T) {
	p := &OllamaProvider{}

	body, err := p.BuildRequestBody("llama3.2", []llm.Message{
		{Role: "assistant", ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "list_files", Arguments: map[string]any{"path": "chapters"}},
		}},
		{Role: "tool", ToolCallID: "call_1", Content: `{"success":true}`},
	}, nil, 0, nil, "", false)
	require.NoError(t, err)

	var req struct {
		Messages []openAIMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(body, &req))
	require.Len(t, req.Messages, 2)

	call := req.Messages[0].ToolCalls[0]
	assert.Equal(t, "call_1", call.ID)
	assert.Equal(t, "function", call.Type)
	assert.Equal(t, "list_files", call.Function.Name)
	assert.JSONEq(t, `{"path":"chapters"}`, call.Function.Arguments)

	assert.Equal(t, "call_1", req.Messages[1].ToolCallID)
}

func TestOllamaParseResponse(t *testing.T) {
	p := &OllamaProvider{}

	resp, err := p.ParseResponse([]byte(`{
		"model": "llama3.2",
		"choices": [{
			"message": {
				"role": "assistant",
				"content": "The harbor was quiet.",
				"tool_calls": [{
					"id": "call_9",
					"type": "function",
					"function": {"name": "write_file", "arguments": "{\"path\":\"notes.md\"}"}
				}]
			},
			"finish_reason": "tool_calls"
		}],
		"usage": {"prompt_tokens": 100, "completion_tokens": 40, "total_tokens": 140}
	}`), "llama3.2")
	require.NoError(t, err)

	assert.Equal(t, "The harbor was quiet.", resp.Content)
	assert.Equal(t, "llama3.2", resp.Model)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, 140, resp.Usage.TotalTokens)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_9", resp.ToolCalls[0].ID)
	assert.Equal(t, "write_file", resp.ToolCalls[0].Name)
	assert.Equal(t, map[string]any{"path": "notes.md"}, resp.ToolCalls[0].Arguments)
}

func TestOllamaParseResponseNoChoices(t *testing.T) {
	p := &OllamaProvider{}

	_, err := p.ParseResponse([]byte(`{"model":"llama3.2","choices":[]}`), "llama3.2")
	assert.ErrorContains(t, err, "no choices")
}

func TestOllamaParseStreamEvent(t *testing.T) {
	p := &OllamaProvider{}
	acc := &llm.StreamAccumulator{}

	events, err := p.ParseStreamEvent([]byte(`{
		"model": "llama3.2",
		"choices": [{"delta": {"content": "Ink "}, "finish_reason": ""}]
	}`), acc)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, llm.StreamContent, events[0].Type)
	assert.Equal(t, "Ink ", events[0].Delta)

	_, err = p.ParseStreamEvent([]byte(`{
		"choices": [{"delta": {"content": "and paper."}, "finish_reason": "stop"}]
	}`), acc)
	require.NoError(t, err)

	_, err = p.ParseStreamEvent([]byte(`{
		"choices": [],
		"usage": {"prompt_tokens": 12, "completion_tokens": 6, "total_tokens": 18}
	}`), acc)
	require.NoError(t, err)

	resp := acc.Finish()
	assert.Equal(t, "Ink and paper.", resp.Content)
	assert.Equal(t, "llama3.2", resp.Model)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 18, resp.Usage.TotalTokens)
}

func TestOllamaParseStreamEventToolCall(t *testing.T) {
	p := &OllamaProvider{}
	acc := &llm.StreamAccumulator{}

	events, err := p.ParseStreamEvent([]byte(`{
		"choices": [{"delta": {"tool_calls": [
			{"index": 0, "id": "call_3", "function": {"name": "grep_search", "arguments": "{\"pat"}}
		]}}]
	}`), acc)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, llm.StreamToolCallStart, events[0].Type)
	assert.Equal(t, "grep_search", events[0].ToolName)

	_, err = p.ParseStreamEvent([]byte(`{
		"choices": [{"delta": {"tool_calls": [
			{"index": 0, "function": {"arguments": "tern\":\"rain\"}"}}
		]}, "finish_reason": "tool_calls"}]
	}`), acc)
	require.NoError(t, err)

	resp := acc.Finish()
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_3", resp.ToolCalls[0].ID)
	assert.Equal(t, "grep_search", resp.ToolCalls[0].Name)
	assert.Equal(t, map[string]any{"pattern": "rain"}, resp.ToolCalls[0].Arguments)
}

func TestOllamaParseStreamEventMalformed(t *testing.T) {
	p := &OllamaProvider{}

	_, err := p.ParseStreamEvent([]byte(`{not json`), &llm.StreamAccumulator{})
	assert.Error(t, err)
}
