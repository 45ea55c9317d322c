package llm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// StreamEventType identifies the kind of a streaming event.
type StreamEventType string

const (
	// StreamContent carries a text delta.
	StreamContent StreamEventType = "content"

	// StreamToolCallStart signals that the model began emitting a tool call.
	StreamToolCallStart StreamEventType = "tool_call_start"

	// StreamTurnComplete carries the assembled final response. It is the
	// last event before the channel closes on success.
	StreamTurnComplete StreamEventType = "turn_complete"

	// StreamError carries a terminal error. The channel closes after it.
	StreamError StreamEventType = "error"
)

// StreamEvent is one event from a streaming completion.
type StreamEvent struct {
	Type     StreamEventType
	Delta    string    // StreamContent
	ToolName string    // StreamToolCallStart
	Response *Response // StreamTurnComplete
	Err      error     // StreamError
}

// partialToolCall accumulates a tool call across stream chunks.
type partialToolCall struct {
	ID   string
	Name string
	Args strings.Builder
}

// StreamAccumulator folds provider stream chunks into a final Response.
// Providers mutate it from ParseStreamEvent; it is not safe for concurrent use.
type StreamAccumulator struct {
	Model string

	content      strings.Builder
	toolCalls    []*partialToolCall
	usage        TokenUsage
	finishReason string
	done         bool
}

// AppendContent records a text delta.
func (a *StreamAccumulator) AppendContent(delta string) {
	a.content.WriteString(delta)
}

// ToolCallAt returns the partial tool call at index, extending the slice as
// needed. OpenAI-style streams address tool calls by index.
func (a *StreamAccumulator) ToolCallAt(index int) *partialToolCall {
	for len(a.toolCalls) <= index {
		a.toolCalls = append(a.toolCalls, &partialToolCall{})
	}
	return a.toolCalls[index]
}

// SetUsage records token usage, usually from the final chunk.
func (a *StreamAccumulator) SetUsage(u TokenUsage) {
	a.usage = u
}

// SetOutputTokens records the cumulative completion-token count.
func (a *StreamAccumulator) SetOutputTokens(n int) {
	if n <= 0 {
		return
	}
	a.usage.CompletionTokens = n
	a.usage.TotalTokens = a.usage.PromptTokens + a.usage.CompletionTokens
}

// SetFinishReason records why generation stopped.
func (a *StreamAccumulator) SetFinishReason(reason string) {
	if reason != "" {
		a.finishReason = reason
	}
}

// MarkDone flags the stream as complete.
func (a *StreamAccumulator) MarkDone() {
	a.done = true
}

// Done reports whether the provider signalled end of stream.
func (a *StreamAccumulator) Done() bool {
	return a.done
}

// Finish assembles the final response from accumulated state.
func (a *StreamAccumulator) Finish() *Response {
	resp := &Response{
		Content:      a.content.String(),
		Model:        a.Model,
		Usage:        a.usage,
		FinishReason: a.finishReason,
	}
	for _, pc := range a.toolCalls {
		if pc.Name == "" {
			continue
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        pc.ID,
			Name:      pc.Name,
			Arguments: ParseArguments(pc.Args.String()),
		})
	}
	return resp
}

// Stream sends a completion request and returns a channel of events. The
// channel closes after StreamTurnComplete or StreamError. Endpoint fallback
// applies only until the first byte arrives; a stream that breaks mid-flight
// surfaces StreamError rather than restarting on another model.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	chain, err := c.fallbackChain(req.Capability)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, modelName := range chain {
		endpoint := c.registry.GetEndpoint(modelName)
		if endpoint == nil || !c.registry.IsEndpointAvailable(modelName) {
			continue
		}

		provider := GetProvider(endpoint.Provider)
		if provider == nil {
			lastErr = fmt.Errorf("unknown provider: %s", endpoint.Provider)
			continue
		}

		httpResp, err := c.openStream(ctx, provider, endpoint.URL, endpoint.Model, req)
		if err != nil {
			lastErr = err
			c.registry.MarkEndpointFailure(modelName)
			if IsFatal(err) {
				return nil, err
			}
			c.logger.Warn("Stream open failed, trying fallback", "model", modelName, "error", err)
			continue
		}

		c.registry.MarkEndpointSuccess(modelName)

		events := make(chan StreamEvent)
		go c.consumeStream(ctx, httpResp, provider, endpoint.Model, events)
		return events, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no available endpoints")
	}
	return nil, fmt.Errorf("all endpoints failed for capability %s: %w", req.Capability, lastErr)
}

// openStream issues the HTTP request with stream=true and verifies the status.
func (c *Client) openStream(ctx context.Context, provider Provider, baseURL, modelName string, req Request) (*http.Response, error) {
	body, err := provider.BuildRequestBody(modelName, req.Messages, req.Temperature, req.MaxTokens, req.Tools, req.ToolChoice, true)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.BuildURL(baseURL), bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	provider.SetHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		respBody := make([]byte, 0, 512)
		buf := make([]byte, 512)
		if n, _ := httpResp.Body.Read(buf); n > 0 {
			respBody = buf[:n]
		}
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	return httpResp, nil
}

// consumeStream reads SSE lines, delegates parsing to the provider, and
// closes the event channel when the stream ends.
func (c *Client) consumeStream(ctx context.Context, httpResp *http.Response, provider Provider, modelName string, events chan<- StreamEvent) {
	defer close(events)
	defer httpResp.Body.Close()

	startedAt := time.Now()
	acc := &StreamAccumulator{Model: modelName}

	emit := func(ev StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") || strings.HasPrefix(line, "event:") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			acc.MarkDone()
			break
		}

		parsed, err := provider.ParseStreamEvent([]byte(data), acc)
		if err != nil {
			emit(StreamEvent{Type: StreamError, Err: fmt.Errorf("parse stream event: %w", err)})
			observeRequest(provider.Name(), modelName, "stream_error", time.Since(startedAt))
			return
		}
		for _, ev := range parsed {
			if !emit(ev) {
				return
			}
		}
		if acc.Done() {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		emit(StreamEvent{Type: StreamError, Err: fmt.Errorf("read stream: %w", err)})
		observeRequest(provider.Name(), modelName, "stream_error", time.Since(startedAt))
		return
	}

	resp := acc.Finish()
	observeRequest(provider.Name(), modelName, "success", time.Since(startedAt))
	observeUsage(modelName, resp.Usage)
	emit(StreamEvent{Type: StreamTurnComplete, Response: resp})
}
