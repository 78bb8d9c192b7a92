package llm

import (
	"context"
	"fmt"
	"sync"

	"taskpilot/internal/agent/ports"
)

// MockClient implements ports.LLMClient for testing. Responses are served
// from a script in call order; streaming responses are delivered chunk by
// chunk through the callbacks.
type MockClient struct {
	mu sync.Mutex

	// Script entries are consumed in order, one per Complete/StreamComplete
	// call. An entry with Err set fails the call.
	Script []MockResponse

	// Requests records every request received, for assertions.
	Requests []ports.CompletionRequest

	calls int
}

// MockResponse is one scripted reply.
type MockResponse struct {
	Content   string
	Chunks    []string // streaming delivery; Content is used when empty
	ToolCalls []ports.ToolCall
	Err       error
}

// NewMockClient builds a mock that replays the given script.
func NewMockClient(script ...MockResponse) *MockClient {
	return &MockClient{Script: script}
}

func (m *MockClient) Model() string {
	return "mock-model"
}

func (m *MockClient) next(req ports.CompletionRequest) (MockResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	if m.calls >= len(m.Script) {
		return MockResponse{}, fmt.Errorf("mock client: unscripted call %d", m.calls+1)
	}
	resp := m.Script[m.calls]
	m.calls++
	return resp, nil
}

func (m *MockClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := m.next(req)
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	content := resp.Content
	if content == "" && len(resp.Chunks) > 0 {
		for _, chunk := range resp.Chunks {
			content += chunk
		}
	}
	return &ports.CompletionResponse{
		Content:    content,
		ToolCalls:  resp.ToolCalls,
		StopReason: "stop",
	}, nil
}

func (m *MockClient) StreamComplete(ctx context.Context, req ports.CompletionRequest, callbacks ports.CompletionStreamCallbacks) (*ports.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := m.next(req)
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}

	chunks := resp.Chunks
	if len(chunks) == 0 && resp.Content != "" {
		chunks = []string{resp.Content}
	}

	var content string
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content += chunk
		if callbacks.OnContentDelta != nil {
			callbacks.OnContentDelta(ports.ContentDelta{Delta: chunk})
		}
	}
	if callbacks.OnContentDelta != nil {
		callbacks.OnContentDelta(ports.ContentDelta{Final: true})
	}

	return &ports.CompletionResponse{
		Content:    content,
		StopReason: "stop",
	}, nil
}
