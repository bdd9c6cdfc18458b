// Package fsm implements the loop-control finite state machine.
package fsm

import (
	"fmt"
	"time"
)

// State represents a loop-control state.
type State string

const (
	StateInit        State = "INIT"
	StatePlan        State = "PLAN"
	StateExecute     State = "EXECUTE"
	StateObserve     State = "OBSERVE"
	StateCritique    State = "CRITIQUE"
	StateCheckpoint  State = "CHECKPOINT"
	StateTaskFailure State = "TASK_FAILURE"
	StateBlocked     State = "BLOCKED"
	StateComplete    State = "COMPLETE"
)

// validTransitions defines the legal state transitions.
// Each key is a source state, and the value is the set of valid target states.
var validTransitions = map[State]map[State]bool{
	StateInit:        {StatePlan: true},
	StatePlan:        {StateExecute: true},
	StateExecute:     {StateObserve: true, StateTaskFailure: true},
	StateObserve:     {StateCritique: true, StateTaskFailure: true},
	StateCritique:    {StateCheckpoint: true, StateTaskFailure: true},
	StateCheckpoint:  {StateComplete: true, StatePlan: true},
	StateTaskFailure: {StatePlan: true, StateBlocked: true},
}

// terminalStates are states with no outgoing edges.
var terminalStates = map[State]bool{
	StateComplete: true,
	StateBlocked:  true,
}

// IsValidTransition checks if a state transition is legal.
func IsValidTransition(from, to State) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// TransitionError reports an attempted illegal state transition.
// The context is left unchanged when this error is returned.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}

// Entry records a single completed transition.
type Entry struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Context holds the mutable state of one loop. All mutation goes through
// Transition; a single-writer discipline is assumed.
type Context struct {
	current             State
	consecutiveFailures int
	taskRetries         int
	iterationCount      int
	history             []Entry
}

// NewContext creates a context in the INIT state.
func NewContext() *Context {
	return &Context{current: StateInit}
}

// Current returns the current state.
func (c *Context) Current() State { return c.current }

// ConsecutiveFailures returns the count of uninterrupted TASK_FAILURE
// entries since the last successful transition.
func (c *Context) ConsecutiveFailures() int { return c.consecutiveFailures }

// TaskRetries returns the retry count for the current task.
func (c *Context) TaskRetries() int { return c.taskRetries }

// IterationCount returns the number of PLAN cycles started.
func (c *Context) IterationCount() int { return c.iterationCount }

// History returns a copy of the recorded transitions, oldest first.
func (c *Context) History() []Entry {
	out := make([]Entry, len(c.history))
	copy(out, c.history)
	return out
}

// IsTerminal reports whether the context has reached a terminal state.
func (c *Context) IsTerminal() bool {
	return terminalStates[c.current]
}

// Transition moves the context to the target state. An illegal edge returns
// a *TransitionError and leaves every field unchanged.
//
// Counter rules:
//   - entering TASK_FAILURE increments the consecutive failure count;
//     entering any other state resets it to zero
//   - TASK_FAILURE -> PLAN counts as a task retry
//   - CHECKPOINT -> PLAN and INIT -> PLAN start a fresh iteration and reset
//     the per-task retry counter
func (c *Context) Transition(target State, reason string) error {
	if !IsValidTransition(c.current, target) {
		return &TransitionError{From: c.current, To: target}
	}

	from := c.current
	c.history = append(c.history, Entry{
		From:      from,
		To:        target,
		Reason:    reason,
		Timestamp: time.Now(),
	})

	if target == StateTaskFailure {
		c.consecutiveFailures++
	} else {
		c.consecutiveFailures = 0
	}

	switch {
	case from == StateTaskFailure && target == StatePlan:
		c.taskRetries++
	case target == StatePlan:
		// Fresh iteration from INIT or CHECKPOINT.
		c.taskRetries = 0
		c.iterationCount++
	}

	c.current = target
	return nil
}

// Snapshot captures the context for persistence.
type Snapshot struct {
	Current             State   `json:"current_state"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	TaskRetries         int     `json:"task_retries"`
	IterationCount      int     `json:"iteration_count"`
	History             []Entry `json:"history,omitempty"`
}

// Snapshot returns a copy of the context suitable for persistence.
func (c *Context) Snapshot() Snapshot {
	return Snapshot{
		Current:             c.current,
		ConsecutiveFailures: c.consecutiveFailures,
		TaskRetries:         c.taskRetries,
		IterationCount:      c.iterationCount,
		History:             c.History(),
	}
}

// Restore rebuilds a context from a snapshot.
func Restore(s Snapshot) *Context {
	history := make([]Entry, len(s.History))
	copy(history, s.History)
	current := s.Current
	if current == "" {
		current = StateInit
	}
	return &Context{
		current:             current,
		consecutiveFailures: s.ConsecutiveFailures,
		taskRetries:         s.TaskRetries,
		iterationCount:      s.IterationCount,
		history:             history,
	}
}
