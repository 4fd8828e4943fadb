package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockResponse scripts one Generate outcome for the Mock provider.
type MockResponse struct {
	Text string
	Err  error
}

// Mock is a scripted Provider for tests and the "mock" provider mode.
// Responses are consumed in order; when the script runs out, the last
// entry repeats.
type Mock struct {
	mu        sync.Mutex
	responses []MockResponse
	calls     []MockCall
}

// MockCall records one Generate invocation.
type MockCall struct {
	Model string
	Parts []Part
}

// NewMock creates a Mock provider with the given script.
func NewMock(responses ...MockResponse) *Mock {
	return &Mock{responses: responses}
}

// Enqueue appends responses to the script.
func (m *Mock) Enqueue(responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

// Name implements Provider.
func (m *Mock) Name() string {
	return "mock"
}

// Generate implements Provider.
func (m *Mock) Generate(ctx context.Context, model string, parts []Part) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Model: model, Parts: parts})

	if len(m.responses) == 0 {
		return "", fmt.Errorf("mock provider has no scripted responses")
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return resp.Text, resp.Err
}

// HealthCheck implements Provider.
func (m *Mock) HealthCheck(ctx context.Context) error {
	return nil
}

// Calls returns a copy of the recorded invocations.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Generate invocations.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
