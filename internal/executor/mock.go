package executor

import (
	"context"
	"sync"
)

// MockExecutor replays pre-seeded responses in FIFO order. It drives the
// loop deterministically in tests without a real backend: an empty queue
// yields a failed response, never a block or a panic.
type MockExecutor struct {
	mu      sync.Mutex
	queue   []string
	prompts []string
}

// NewMock creates an empty mock executor.
func NewMock() *MockExecutor {
	return &MockExecutor{}
}

// SetResponse enqueues a canned raw payload for a future Execute call.
func (m *MockExecutor) SetResponse(raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, raw)
}

// Prompts returns the prompts received so far, oldest first.
func (m *MockExecutor) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// Execute dequeues the next payload and parses it into an action.
func (m *MockExecutor) Execute(_ context.Context, prompt string) *ActionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)

	if len(m.queue) == 0 {
		return failure("", "no response queued")
	}
	raw := m.queue[0]
	m.queue = m.queue[1:]

	action, err := ParseAction(raw)
	if err != nil {
		return failure(raw, err.Error())
	}
	return &ActionResponse{Success: true, Action: action, RawOutput: raw}
}
