// Package executor abstracts the agent backend behind a uniform contract:
// one prompt in, one structured action out.
package executor

import (
	"context"
	"fmt"
	"time"
)

// Type selects an executor backend.
type Type string

const (
	TypeMock    Type = "mock"
	TypeProcess Type = "process"
)

// Config describes how to construct an executor.
type Config struct {
	Type    Type
	Command string
	Args    []string
	Timeout time.Duration
	Env     map[string]string
}

// ActionResponse is the result of one executor invocation. Failures are
// reported in-band: Success is false and Error carries the reason. The
// response itself is always non-nil so callers never branch on a nil.
type ActionResponse struct {
	Success   bool
	Action    *Action
	RawOutput string
	Error     string
}

// failure builds a failed response.
func failure(raw, reason string) *ActionResponse {
	return &ActionResponse{RawOutput: raw, Error: reason}
}

// ExecutorError classifies a failed ActionResponse for the loop's retry
// policy. Spawn failures, timeouts, non-zero exits, and malformed action
// payloads all surface through here.
type ExecutorError struct {
	Reason string
}

func (e *ExecutorError) Error() string {
	return "executor: " + e.Reason
}

// AsError converts a failed response into an *ExecutorError; a successful
// response converts to nil.
func (r *ActionResponse) AsError() error {
	if r.Success {
		return nil
	}
	return &ExecutorError{Reason: r.Error}
}

// Executor produces one structured action per invocation. Execute must
// honor the context deadline: on expiry it returns a timeout response and
// tears down anything it spawned. It never blocks past the deadline.
type Executor interface {
	Execute(ctx context.Context, prompt string) *ActionResponse
}

// New constructs an executor for the given config. An unrecognized type
// fails here, at construction, not at first use.
func New(cfg Config) (Executor, error) {
	switch cfg.Type {
	case TypeMock:
		return NewMock(), nil
	case TypeProcess:
		if cfg.Command == "" {
			return nil, fmt.Errorf("process executor requires a command")
		}
		return NewProcess(cfg), nil
	default:
		return nil, fmt.Errorf("unknown executor type: %q", cfg.Type)
	}
}
