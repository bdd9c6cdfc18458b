// Package gates runs tiered verification commands against the workspace.
// Tier1 covers correctness, tier2 style, tier3 security. Each tier carries
// a failure policy that tells the loop whether a failed tier is retryable.
package gates

import (
	"context"
	"fmt"
	"time"
)

// Policy decides what a failed tier means for the run.
type Policy string

const (
	// PolicyTaskFailure retries the task within the retry budget.
	PolicyTaskFailure Policy = "task_failure"
	// PolicyBlocked halts the run immediately, budget notwithstanding.
	PolicyBlocked Policy = "blocked"
)

// Tier is an ordered group of shell commands sharing one failure policy.
// Fix, when set, runs after a failure and the tier is retried once.
type Tier struct {
	Name      string
	Commands  []string
	OnFailure Policy
	Fix       string
}

// Validate rejects tiers the runner could not execute meaningfully.
func (t Tier) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("gate tier missing name")
	}
	switch t.OnFailure {
	case PolicyTaskFailure, PolicyBlocked:
	default:
		return fmt.Errorf("gate tier %s: unknown failure policy %q", t.Name, t.OnFailure)
	}
	return nil
}

// CommandResult captures one command's outcome.
type CommandResult struct {
	Command  string
	ExitCode int
	Output   string
	Duration time.Duration
}

// TierResult is the outcome of running one tier. Commands after the first
// failure are never run, so Results may be shorter than Tier.Commands.
type TierResult struct {
	Tier    string
	Passed  bool
	Fixed   bool
	Results []CommandResult
}

// Failed returns the result of the command that failed, or nil.
func (r *TierResult) Failed() *CommandResult {
	if r.Passed || len(r.Results) == 0 {
		return nil
	}
	return &r.Results[len(r.Results)-1]
}

// GateFailure reports a tier whose commands did not all pass. The policy
// is carried along so the loop can decide between retry and halt without
// re-reading configuration.
type GateFailure struct {
	Tier    string
	Command string
	Policy  Policy
}

func (e *GateFailure) Error() string {
	return fmt.Sprintf("gate %s failed on %q", e.Tier, e.Command)
}

// Runner executes one tier's commands in order, stopping at the first
// failure. Implementations capture output but never retry on their own;
// retry decisions belong to the loop.
type Runner interface {
	RunTier(ctx context.Context, tier Tier) (*TierResult, error)
}
