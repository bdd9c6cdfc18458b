package gates

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/vinayprograms/gyre/internal/logging"
)

// ShellRunner executes tier commands through bash in the workspace
// directory. One command failing short-circuits the rest of the tier; if
// the tier declares a fix command, the fix runs once and the tier is
// retried a single time before the failure counts.
type ShellRunner struct {
	workspace string
	logger    *logging.Logger
}

// NewShellRunner creates a runner rooted at the given workspace directory.
func NewShellRunner(workspace string) *ShellRunner {
	return &ShellRunner{
		workspace: workspace,
		logger:    logging.New().WithComponent("gates"),
	}
}

// RunTier runs the tier's commands in order. The returned error is a
// *GateFailure when a command fails; other errors mean the runner itself
// could not operate (bad tier definition, context cancelled mid-tier).
func (s *ShellRunner) RunTier(ctx context.Context, tier Tier) (*TierResult, error) {
	if err := tier.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	s.logger.GateTierStart(tier.Name, len(tier.Commands))

	result, err := s.runOnce(ctx, tier)
	if err != nil {
		return nil, err
	}

	if !result.Passed && tier.Fix != "" {
		fixRes := s.run(ctx, tier.Fix)
		if fixRes.ExitCode == 0 {
			retried, err := s.runOnce(ctx, tier)
			if err != nil {
				return nil, err
			}
			if retried.Passed {
				retried.Fixed = true
				result = retried
			}
		}
	}

	s.logger.GateTierResult(tier.Name, result.Passed, time.Since(start))
	if !result.Passed {
		failed := result.Failed()
		return result, &GateFailure{Tier: tier.Name, Command: failed.Command, Policy: tier.OnFailure}
	}
	return result, nil
}

func (s *ShellRunner) runOnce(ctx context.Context, tier Tier) (*TierResult, error) {
	result := &TierResult{Tier: tier.Name, Passed: true}
	for _, command := range tier.Commands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := s.run(ctx, command)
		result.Results = append(result.Results, res)
		if res.ExitCode != 0 {
			result.Passed = false
			break
		}
	}
	return result, nil
}

func (s *ShellRunner) run(ctx context.Context, command string) CommandResult {
	start := time.Now()
	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = s.workspace
	output, err := cmd.CombinedOutput()

	res := CommandResult{
		Command:  command,
		Output:   string(output),
		Duration: time.Since(start),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			res.Output = err.Error()
		}
	}
	return res
}
