package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/bookwright/model"
)

// wireProvider speaks a minimal JSON wire for tests: requests echo their
// inputs, responses carry {"content": ...}, streams carry {"delta": ...} and
// {"finish": ...} payloads.
type wireProvider struct{}

func (wireProvider) Name() string { return "wire" }

func (wireProvider) BuildURL(baseURL string) string { return baseURL + "/complete" }

func (wireProvider) SetHeaders(req *http.Request) {
	req.Header.Set("X-Wire-Test", "1")
}

func (wireProvider) BuildRequestBody(model string, messages []Message, temperature *float64, maxTokens int, tools []ToolDefinition, toolChoice string, stream bool) ([]byte, error) {
	return json.Marshal(map[string]any{
		"model":    model,
		"messages": messages,
		"stream":   stream,
	})
}

func (wireProvider) ParseResponse(body []byte, model string) (*Response, error) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, NewFatalError(fmt.Errorf("parse response: %w", err))
	}
	return &Response{
		Content: payload.Content,
		Model:   model,
		Usage:   TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (wireProvider) ParseStreamEvent(data []byte, acc *StreamAccumulator) ([]StreamEvent, error) {
	var chunk struct {
		Delta  string `json:"delta"`
		Finish string `json:"finish"`
	}
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, err
	}
	if chunk.Finish != "" {
		acc.SetFinishReason(chunk.Finish)
		acc.MarkDone()
		return nil, nil
	}
	acc.AppendContent(chunk.Delta)
	return []StreamEvent{{Type: StreamContent, Delta: chunk.Delta}}, nil
}

func init() {
	RegisterProvider(wireProvider{})
}

// testRegistry wires the chat capability to the given endpoints in order.
func testRegistry(urls ...string) *model.Registry {
	endpoints := make(map[string]*model.EndpointConfig, len(urls))
	names := make([]string, 0, len(urls))
	for i, u := range urls {
		name := fmt.Sprintf("wire-%d", i)
		endpoints[name] = &model.EndpointConfig{Provider: "wire", URL: u, Model: name}
		names = append(names, name)
	}
	caps := map[model.Capability]*model.CapabilityConfig{
		model.CapabilityChat: {Preferred: names[:1], Fallback: names[1:]},
	}
	return model.NewRegistry(caps, endpoints)
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       2,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1,
		MaxBackoff:        time.Millisecond,
	}
}

func chatRequest() Request {
	return Request{
		Capability: "chat",
		Messages:   []Message{{Role: "user", Content: "hello"}},
	}
}

func TestCompleteSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/complete", r.URL.Path)
		assert.Equal(t, "1", r.Header.Get("X-Wire-Test"))
		fmt.Fprint(w, `{"content":"hi there"}`)
	}))
	defer server.Close()

	client := NewClient(testRegistry(server.URL), WithRetryConfig(fastRetry()))

	resp, err := client.Complete(context.Background(), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, "wire-0", resp.Model)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestCompleteValidatesRequest(t *testing.T) {
	client := NewClient(testRegistry("http://unused"))

	_, err := client.Complete(context.Background(), Request{Capability: "chat"})
	assert.ErrorContains(t, err, "at least one message")

	_, err = client.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "x"}}})
	assert.ErrorContains(t, err, "capability")
}

func TestCompleteFatalErrorSkipsRetriesAndFallback(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("fallback should not be reached on a fatal error")
	}))
	defer fallback.Close()

	client := NewClient(testRegistry(server.URL, fallback.URL), WithRetryConfig(fastRetry()))

	_, err := client.Complete(context.Background(), chatRequest())
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, int32(1), calls.Load(), "fatal errors are not retried")
}

func TestCompleteTransientErrorRetriesThenFallsBack(t *testing.T) {
	var primaryCalls atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryCalls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer primary.Close()

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content":"fallback answer"}`)
	}))
	defer fallback.Close()

	client := NewClient(testRegistry(primary.URL, fallback.URL), WithRetryConfig(fastRetry()))

	resp, err := client.Complete(context.Background(), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, "fallback answer", resp.Content)
	assert.Equal(t, int32(2), primaryCalls.Load(), "transient errors retry up to the attempt cap")
}

func TestCompleteRetryRecoversWithinEndpoint(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "try again", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"content":"second time lucky"}`)
	}))
	defer server.Close()

	client := NewClient(testRegistry(server.URL), WithRetryConfig(fastRetry()))

	resp, err := client.Complete(context.Background(), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, "second time lucky", resp.Content)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCompleteCircuitBreakerSkipsUnhealthyEndpoint(t *testing.T) {
	reg := testRegistry("http://localhost:1", "http://localhost:2")
	// Trip the primary's circuit.
	for i := 0; i < 3; i++ {
		reg.MarkEndpointFailure("wire-0")
	}
	assert.False(t, reg.IsEndpointAvailable("wire-0"))

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content":"healthy"}`)
	}))
	defer fallback.Close()
	reg.SetEndpoint("wire-1", &model.EndpointConfig{Provider: "wire", URL: fallback.URL, Model: "wire-1"})

	client := NewClient(reg, WithRetryConfig(fastRetry()))
	resp, err := client.Complete(context.Background(), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, "healthy", resp.Content)
}

func TestStreamDeliversDeltasAndFinalResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream bool `json:"stream"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"delta\":\"Once \"}\n\n")
		fmt.Fprint(w, ": keepalive comment\n\n")
		fmt.Fprint(w, "data: {\"delta\":\"upon a time.\"}\n\n")
		fmt.Fprint(w, "data: {\"finish\":\"stop\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(testRegistry(server.URL), WithRetryConfig(fastRetry()))

	events, err := client.Stream(context.Background(), chatRequest())
	require.NoError(t, err)

	var content string
	var final *Response
	for ev := range events {
		switch ev.Type {
		case StreamContent:
			content += ev.Delta
		case StreamTurnComplete:
			final = ev.Response
		case StreamError:
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
	}

	assert.Equal(t, "Once upon a time.", content)
	require.NotNil(t, final)
	assert.Equal(t, "Once upon a time.", final.Content)
	assert.Equal(t, "stop", final.FinishReason)
	assert.Equal(t, "wire-0", final.Model)
}

func TestStreamOpenFailureFallsBack(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"delta\":\"ok\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer working.Close()

	client := NewClient(testRegistry(broken.URL, working.URL), WithRetryConfig(fastRetry()))

	events, err := client.Stream(context.Background(), chatRequest())
	require.NoError(t, err)

	var final *Response
	for ev := range events {
		if ev.Type == StreamTurnComplete {
			final = ev.Response
		}
	}
	require.NotNil(t, final)
	assert.Equal(t, "ok", final.Content)
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content":"OK"}`)
	}))
	defer server.Close()

	client := NewClient(testRegistry(server.URL), WithRetryConfig(fastRetry()))
	assert.NoError(t, client.Ping(context.Background(), "chat"))

	server.Close()
	assert.Error(t, client.Ping(context.Background(), "chat"))
}
