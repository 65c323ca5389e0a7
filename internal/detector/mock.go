package detector

import (
	"context"
	"sync"
	"time"
)

// Mock is a scripted backend for tests and --mock mode. It cycles through
// its responses; a responder, when set, takes precedence.
type Mock struct {
	mu        sync.Mutex
	responses []string
	responder func(call int) (string, error)
	delay     time.Duration
	calls     int
}

// NewMock creates a mock backend. With no responses it always answers "No".
func NewMock(responses ...string) *Mock {
	if len(responses) == 0 {
		responses = []string{"No"}
	}
	return &Mock{responses: responses}
}

// WithResponder sets a function that produces the answer for each call.
func (m *Mock) WithResponder(fn func(call int) (string, error)) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = fn
	return m
}

// WithDelay simulates inference latency.
func (m *Mock) WithDelay(d time.Duration) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

func (m *Mock) Name() string {
	return "mock"
}

// Calls returns how many requests were made.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Mock) SendOnce(ctx context.Context, image []byte, req Request) (string, error) {
	m.mu.Lock()
	call := m.calls
	m.calls++
	delay := m.delay
	responder := m.responder
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if responder != nil {
		return responder(call)
	}
	return m.responses[call%len(m.responses)], nil
}
