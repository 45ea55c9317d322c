// Package agent implements the tool-calling loop and the phase orchestrator
// that drives book production end to end.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/bookwright/llm"
	"github.com/c360studio/bookwright/tools"
)

// defaultMaxIterations bounds a tool-call loop when no explicit cap is given.
const defaultMaxIterations = 20

// CompletionClient is the completion gateway the agent talks to.
type CompletionClient interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
	Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error)
}

// Loop runs the bounded tool-call protocol: send the conversation and tool
// definitions, execute requested tools, feed results back, repeat until a
// turn needs no tools or the iteration budget runs out.
type Loop struct {
	client        CompletionClient
	registry      *tools.Registry
	maxIterations int
	logger        *slog.Logger
}

// NewLoop creates a tool-call loop. maxIterations <= 0 uses the default cap.
func NewLoop(client CompletionClient, registry *tools.Registry, maxIterations int, logger *slog.Logger) *Loop {
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		client:        client,
		registry:      registry,
		maxIterations: maxIterations,
		logger:        logger,
	}
}

// LoopResult is the outcome of a loop run. Finished is false when the
// iteration budget ran out with tool calls still pending; that is a soft
// failure, not an error.
type LoopResult struct {
	// Content is the final (or, unfinished, the latest) assistant text.
	Content string

	// Messages is the full transcript appended during the run, including
	// the assistant turns and tool results.
	Messages []llm.Message

	// ToolResults are all tool executions in order.
	ToolResults []llm.ToolResult

	// Iterations is the number of completion turns consumed.
	Iterations int

	// Finished is true when the model ended a turn with no tool calls.
	Finished bool
}

// Run executes the loop. The capability selects the model; defs is the tool
// set offered to the model; messages seeds the conversation (a system message
// first, then caller-supplied history).
func (l *Loop) Run(ctx context.Context, capability string, defs []llm.ToolDefinition, messages []llm.Message) (*LoopResult, error) {
	conversation := append([]llm.Message(nil), messages...)
	result := &LoopResult{}

	for result.Iterations < l.maxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Iterations++

		started := time.Now()
		resp, err := l.client.Complete(ctx, llm.Request{
			Capability: capability,
			Messages:   conversation,
			Tools:      defs,
			ToolChoice: "auto",
		})
		if err != nil {
			return nil, fmt.Errorf("completion turn %d: %w", result.Iterations, err)
		}

		l.logger.Debug("Loop turn complete",
			"iteration", result.Iterations,
			"tool_calls", len(resp.ToolCalls),
			"duration", time.Since(started))

		assistant := llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		conversation = append(conversation, assistant)
		result.Messages = append(result.Messages, assistant)
		result.Content = resp.Content

		if len(resp.ToolCalls) == 0 {
			result.Finished = true
			return result, nil
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

			l.logger.Debug("Tool executed",
				"tool", call.Name,
				"call_id", call.ID,
				"success", toolResult.Success())
		}
	}

	// Budget exhausted with tool calls still pending: soft failure.
	l.logger.Warn("Loop iteration budget exhausted", "iterations", result.Iterations)
	result.Finished = false
	return result, nil
}
