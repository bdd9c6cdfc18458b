// Package loop drives the iteration cycle: request an action from the
// executor, validate proposed writes against the manifest, apply the
// action to the workspace, run verification gates, and advance the state
// machine based on outcomes. All retry and escalation decisions live
// here; components report failures but never retry themselves.
package loop

import (
	"fmt"

	"github.com/vinayprograms/gyre/internal/fsm"
	"github.com/vinayprograms/gyre/internal/semantic"
	"github.com/vinayprograms/gyre/internal/session"
)

// Task describes one unit of work handed to the loop.
type Task struct {
	Description    string
	AllowedWrites  []string
	AllowedCreates []string
}

// Result is the terminal outcome of a run.
type Result struct {
	RunID      string
	State      fsm.State
	Iterations int
	Run        *session.Run
}

// WriteGuardViolation reports a proposed write the manifest rejected. It
// is surfaced back to the agent as an actionable rejection, not treated
// as a task failure.
type WriteGuardViolation struct {
	Path   string
	Reason string
}

func (e *WriteGuardViolation) Error() string {
	return fmt.Sprintf("write to %s rejected: %s", e.Path, e.Reason)
}

// FileSearcher ranks candidate files for a set of expanded search terms.
// Implementations live outside the loop; a nil searcher disables context
// widening.
type FileSearcher interface {
	Search(terms []semantic.WeightedTerm) []string
}

// Sink receives progress reports. The loop never formats for a terminal
// itself; presentation belongs to the sink.
type Sink interface {
	Progress(iteration int, state fsm.State, message string)
}

type nopSink struct{}

func (nopSink) Progress(int, fsm.State, string) {}
