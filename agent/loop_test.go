package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/bookwright/llm"
	"github.com/c360studio/bookwright/tools"
)

// scriptedClient returns canned responses in order, then repeats the last.
type scriptedClient struct {
	responses []*llm.Response
	requests  []llm.Request
}

func (c *scriptedClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	c.requests = append(c.requests, req)
	i := len(c.requests) - 1
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	if c.responses[i] == nil {
		return nil, fmt.Errorf("scripted failure")
	}
	return c.responses[i], nil
}

func (c *scriptedClient) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	resp, err := c.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	events := make(chan llm.StreamEvent, 2)
	if resp.Content != "" {
		events <- llm.StreamEvent{Type: llm.StreamContent, Delta: resp.Content}
	}
	events <- llm.StreamEvent{Type: llm.StreamTurnComplete, Response: resp}
	close(events)
	return events, nil
}

// echoExecutor is a single echo tool that reports its arguments back.
type echoExecutor struct {
	calls int
}

func (e *echoExecutor) ListTools() []llm.ToolDefinition {
	return []llm.ToolDefinition{{
		Name:        "echo",
		Description: "Echo the input back",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
		},
	}}
}

func (e *echoExecutor) Execute(_ context.Context, call llm.ToolCall) llm.ToolResult {
	e.calls++
	return llm.ToolResult{
		CallID: call.ID,
		Name:   call.Name,
		Payload: map[string]any{
			"success": true,
			"text":    call.Arguments["text"],
		},
	}
}

func newTestRegistry(exec *echoExecutor) *tools.Registry {
	reg := tools.NewRegistry()
	reg.Register(exec)
	return reg
}

func TestLoopFinishesWithoutToolCalls(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		{Content: "all done"},
	}}
	exec := &echoExecutor{}
	loop := NewLoop(client, newTestRegistry(exec), 5, nil)

	result, err := loop.Run(context.Background(), "chat", exec.ListTools(), []llm.Message{
		{Role: "user", Content: "hello"},
	})
	require.NoError(t, err)

	assert.True(t, result.Finished)
	assert.Equal(t, "all done", result.Content)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, 0, exec.calls)
}

func TestLoopExecutesToolsAndFeedsResultsBack(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		{
			Content: "checking",
			ToolCalls: []llm.ToolCall{{
				ID:        "call-1",
				Name:      "echo",
				Arguments: map[string]any{"text": "ping"},
			}},
		},
		{Content: "done"},
	}}
	exec := &echoExecutor{}
	loop := NewLoop(client, newTestRegistry(exec), 5, nil)

	result, err := loop.Run(context.Background(), "chat", exec.ListTools(), []llm.Message{
		{Role: "user", Content: "use the tool"},
	})
	require.NoError(t, err)

	assert.True(t, result.Finished)
	assert.Equal(t, "done", result.Content)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, 1, exec.calls)
	require.Len(t, result.ToolResults, 1)
	assert.True(t, result.ToolResults[0].Success())

	// The second completion saw the tool result as a tool-role message.
	require.Len(t, client.requests, 2)
	second := client.requests[1].Messages
	last := second[len(second)-1]
	assert.Equal(t, "tool", last.Role)
	assert.Equal(t, "call-1", last.ToolCallID)
	assert.Contains(t, last.Content, `"success":true`)
}

func TestLoopBudgetExhaustionIsSoftFailure(t *testing.T) {
	// The model keeps requesting tools forever.
	client := &scriptedClient{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c", Name: "echo", Arguments: map[string]any{"text": "again"}}}},
	}}
	exec := &echoExecutor{}
	loop := NewLoop(client, newTestRegistry(exec), 3, nil)

	result, err := loop.Run(context.Background(), "chat", exec.ListTools(), []llm.Message{
		{Role: "user", Content: "loop forever"},
	})
	require.NoError(t, err)

	assert.False(t, result.Finished)
	assert.Equal(t, 3, result.Iterations)
	assert.Equal(t, 3, exec.calls)
}

func TestLoopUnknownToolIsStructuredFailure(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "no_such_tool"}}},
		{Content: "recovered"},
	}}
	exec := &echoExecutor{}
	loop := NewLoop(client, newTestRegistry(exec), 5, nil)

	result, err := loop.Run(context.Background(), "chat", exec.ListTools(), []llm.Message{
		{Role: "user", Content: "call something odd"},
	})
	require.NoError(t, err)

	// The failure is a payload handed back to the model, not an error.
	assert.True(t, result.Finished)
	require.Len(t, result.ToolResults, 1)
	assert.False(t, result.ToolResults[0].Success())
	assert.Contains(t, result.ToolResults[0].JSON(), "no_such_tool")
}

func TestLoopCompletionErrorPropagates(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{nil}}
	exec := &echoExecutor{}
	loop := NewLoop(client, newTestRegistry(exec), 5, nil)

	_, err := loop.Run(context.Background(), "chat", exec.ListTools(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scripted failure")
}

func TestRunStreamEmitsEventsAndFinalResult(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		{
			ToolCalls: []llm.ToolCall{{ID: "c1", Name: "echo", Arguments: map[string]any{"text": "hi"}}},
		},
		{Content: "finished"},
	}}
	exec := &echoExecutor{}
	loop := NewLoop(client, newTestRegistry(exec), 5, nil)

	var (
		toolResults int
		turns       int
		final       *LoopResult
	)
	for ev := range loop.RunStream(context.Background(), "chat", exec.ListTools(), []llm.Message{{Role: "user", Content: "go"}}) {
		switch ev.Type {
		case EventToolResult:
			toolResults++
		case EventTurnComplete:
			turns++
		case EventComplete:
			final = ev.Final
		case EventError:
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
	}

	assert.Equal(t, 1, toolResults)
	assert.Equal(t, 2, turns)
	require.NotNil(t, final)
	assert.True(t, final.Finished)
	assert.Equal(t, "finished", final.Content)
	assert.Equal(t, 2, final.Iterations)
}
