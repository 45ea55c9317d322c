package agent

import (
	"context"
	"fmt"

	"github.com/c360studio/bookwright/llm"
)

// EventType identifies a streaming loop event.
type EventType string

const (
	// EventContent carries a partial content token.
	EventContent EventType = "content"

	// EventToolCallStart fires when the model begins emitting a tool call.
	EventToolCallStart EventType = "tool_call_start"

	// EventToolResult carries one executed tool result.
	EventToolResult EventType = "tool_result"

	// EventTurnComplete fires at the end of each completion turn.
	EventTurnComplete EventType = "turn_complete"

	// EventComplete carries the final LoopResult. Last event on success.
	EventComplete EventType = "complete"

	// EventError carries a terminal error. Last event on failure.
	EventError EventType = "error"
)

// Event is one element of a streaming loop run.
type Event struct {
	Type     EventType
	Delta    string
	ToolName string
	Result   *llm.ToolResult
	Final    *LoopResult
	Err      error
}

// RunStream executes the loop like Run but surfaces partial content and tool
// activity as they occur. Termination and iteration-cap semantics are
// identical to Run; EventComplete carries the same LoopResult that Run would
// have returned. The channel closes after EventComplete or EventError.
func (l *Loop) RunStream(ctx context.Context, capability string, defs []llm.ToolDefinition, messages []llm.Message) <-chan Event {
	events := make(chan Event)

	go func() {
		defer close(events)

		emit := func(ev Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		conversation := append([]llm.Message(nil), messages...)
		result := &LoopResult{}

		for result.Iterations < l.maxIterations {
			if err := ctx.Err(); err != nil {
				emit(Event{Type: EventError, Err: err})
				return
			}
			result.Iterations++

			stream, err := l.client.Stream(ctx, llm.Request{
				Capability: capability,
				Messages:   conversation,
				Tools:      defs,
				ToolChoice: "auto",
			})
			if err != nil {
				emit(Event{Type: EventError, Err: fmt.Errorf("completion turn %d: %w", result.Iterations, err)})
				return
			}

			var resp *llm.Response
			for ev := range stream {
				switch ev.Type {
				case llm.StreamContent:
					if !emit(Event{Type: EventContent, Delta: ev.Delta}) {
						return
					}
				case llm.StreamToolCallStart:
					if !emit(Event{Type: EventToolCallStart, ToolName: ev.ToolName}) {
						return
					}
				case llm.StreamTurnComplete:
					resp = ev.Response
				case llm.StreamError:
					emit(Event{Type: EventError, Err: ev.Err})
					return
				}
			}
			if resp == nil {
				emit(Event{Type: EventError, Err: fmt.Errorf("stream ended without a final response")})
				return
			}

			assistant := llm.Message{
				Role:      "assistant",
				Content:   resp.Content,
				ToolCalls: resp.ToolCalls,
			}
			conversation = append(conversation, assistant)
			result.Messages = append(result.Messages, assistant)
			result.Content = resp.Content

			if !emit(Event{Type: EventTurnComplete}) {
				return
			}

			if len(resp.ToolCalls) == 0 {
				result.Finished = true
				emit(Event{Type: EventComplete, Final: result})
				return
			}

			for _, call := range resp.ToolCalls {
				toolResult := l.registry.Execute(ctx, call)
				result.ToolResults = append(result.ToolResults, toolResult)

				toolMsg := llm.Message{
					Role:       "tool",
					Content:    toolResult.JSON(),
					ToolCallID: call.ID,
				}
				conversation = append(conversation, toolMsg)
				result.Messages = append(result.Messages, toolMsg)

				if !emit(Event{Type: EventToolResult, ToolName: call.Name, Result: &toolResult}) {
					return
				}
			}
		}

		result.Finished = false
		emit(Event{Type: EventComplete, Final: result})
	}()

	return events
}
