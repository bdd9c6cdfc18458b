package loop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/vinayprograms/gyre/internal/checkpoint"
	"github.com/vinayprograms/gyre/internal/config"
	"github.com/vinayprograms/gyre/internal/executor"
	"github.com/vinayprograms/gyre/internal/fsm"
	"github.com/vinayprograms/gyre/internal/gates"
	"github.com/vinayprograms/gyre/internal/logging"
	"github.com/vinayprograms/gyre/internal/manifest"
	"github.com/vinayprograms/gyre/internal/semantic"
	"github.com/vinayprograms/gyre/internal/session"
)

// Options collects the controller's collaborators. Config and Executor
// are required; the rest default to inert implementations.
type Options struct {
	Config      *config.Config
	Executor    executor.Executor
	Gates       gates.Runner
	Searcher    FileSearcher
	Sink        Sink
	Checkpoints *checkpoint.Store
	Expander    *semantic.Expander
	Workspace   string
}

// Controller owns one run at a time. It is not safe for concurrent use;
// one controller, one workspace, one loop.
type Controller struct {
	cfg       *config.Config
	exec      executor.Executor
	runner    gates.Runner
	searcher  FileSearcher
	sink      Sink
	ckpt      *checkpoint.Store
	expander  *semantic.Expander
	workspace string
	logger    *logging.Logger

	machine  *fsm.Context
	mf       *manifest.Manifest
	run      *session.Run
	feedback []string
	done     bool
	mutated  bool
}

// New creates a controller.
func New(opts Options) (*Controller, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("loop: config is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("loop: executor is required")
	}
	sink := opts.Sink
	if sink == nil {
		sink = nopSink{}
	}
	expander := opts.Expander
	if expander == nil {
		expander = semantic.NewExpander(nil)
	}
	workspace := opts.Workspace
	if workspace == "" {
		workspace = "."
	}
	return &Controller{
		cfg:       opts.Config,
		exec:      opts.Executor,
		runner:    opts.Gates,
		searcher:  opts.Searcher,
		sink:      sink,
		ckpt:      opts.Checkpoints,
		expander:  expander,
		workspace: workspace,
		logger:    logging.New().WithComponent("loop"),
	}, nil
}

// Run executes a fresh task to a terminal state.
func (c *Controller) Run(ctx context.Context, task Task) (*Result, error) {
	c.machine = fsm.NewContext()
	c.mf = manifest.New(task.AllowedWrites, task.AllowedCreates)
	c.run = session.NewRun(task.Description)
	c.feedback = nil
	return c.execute(ctx, task)
}

// Resume continues a previously checkpointed run.
func (c *Controller) Resume(ctx context.Context, rec *checkpoint.Record) (*Result, error) {
	c.machine = fsm.Restore(rec.Machine)
	c.mf = manifest.Restore(rec.Manifest)
	c.run = session.ResumeRun(rec.RunID, rec.Task, rec.Events)
	c.feedback = nil
	task := Task{
		Description:    rec.Task,
		AllowedWrites:  rec.Manifest.AllowedWrites,
		AllowedCreates: rec.Manifest.AllowedCreates,
	}
	return c.execute(ctx, task)
}

func (c *Controller) execute(ctx context.Context, task Task) (*Result, error) {
	logger := c.logger.WithRunID(c.run.ID)
	logger.RunStart(task.Description)
	start := time.Now()

	ctx, span := startRunSpan(ctx, c.run.ID, task.Description)

	if c.cfg.Loop.WatchFiles {
		if w, err := manifest.NewWatcher(c.mf, c.workspace); err == nil {
			defer w.Close()
		} else {
			logger.Warn("file watcher unavailable", map[string]interface{}{"error": err.Error()})
		}
	}

	switch c.machine.Current() {
	case fsm.StateInit:
		if err := c.transition(fsm.StatePlan, "task started"); err != nil {
			endRunSpan(span, string(c.machine.Current()), err)
			return nil, err
		}
	case fsm.StateCheckpoint:
		// A resumed run's snapshot is taken at CHECKPOINT.
		if err := c.transition(fsm.StatePlan, "resumed"); err != nil {
			endRunSpan(span, string(c.machine.Current()), err)
			return nil, err
		}
	}

	for !c.machine.IsTerminal() {
		if err := ctx.Err(); err != nil {
			c.run.Finish(session.StatusFailed, err.Error())
			endRunSpan(span, string(c.machine.Current()), err)
			return c.result(), err
		}
		if err := c.iterate(ctx, task); err != nil {
			c.run.Finish(session.StatusFailed, err.Error())
			endRunSpan(span, string(c.machine.Current()), err)
			return c.result(), err
		}
	}

	switch c.machine.Current() {
	case fsm.StateComplete:
		c.run.Finish(session.StatusComplete, "")
		if c.ckpt != nil {
			c.ckpt.Delete(c.run.ID)
		}
	case fsm.StateBlocked:
		c.run.Finish(session.StatusBlocked, lastReason(c.machine))
		c.saveCheckpoint(task)
	}

	logger.RunComplete(task.Description, time.Since(start), string(c.machine.Current()))
	endRunSpan(span, string(c.machine.Current()), nil)
	return c.result(), nil
}

func (c *Controller) result() *Result {
	return &Result{
		RunID:      c.run.ID,
		State:      c.machine.Current(),
		Iterations: c.machine.IterationCount(),
		Run:        c.run,
	}
}

// iterate runs one PLAN..CHECKPOINT cycle. It is entered with the machine
// in PLAN and leaves it in PLAN, COMPLETE, or BLOCKED.
func (c *Controller) iterate(ctx context.Context, task Task) error {
	iteration := c.machine.IterationCount()
	c.logger.IterationStart(iteration)
	c.sink.Progress(iteration, c.machine.Current(), "planning")

	ctx, span := startIterationSpan(ctx, iteration)
	defer span.End()

	if iteration > c.cfg.Loop.MaxIterations {
		if err := c.transition(fsm.StateExecute, "iteration limit check"); err != nil {
			return err
		}
		if err := c.transition(fsm.StateTaskFailure, "max iterations exceeded"); err != nil {
			return err
		}
		return c.transition(fsm.StateBlocked, "iteration budget exhausted")
	}

	c.done = false
	c.mutated = false

	prompt := c.buildPrompt(task)
	if err := c.transition(fsm.StateExecute, "prompt ready"); err != nil {
		return err
	}

	c.sink.Progress(iteration, c.machine.Current(), "executing")
	c.logger.ExecutorCall(c.cfg.Executor.Type)
	c.run.AddEvent(session.Event{Type: session.EventExecutorCall, Iteration: iteration})

	resp := c.exec.Execute(ctx, prompt)
	if !resp.Success {
		failed := false
		c.run.AddEvent(session.Event{
			Type: session.EventExecutorResult, Iteration: iteration,
			Success: &failed, Error: resp.Error,
		})
		return c.fail(resp.AsError().Error())
	}
	ok := true
	c.run.AddEvent(session.Event{Type: session.EventExecutorResult, Iteration: iteration, Success: &ok})

	if err := c.transition(fsm.StateObserve, "action received"); err != nil {
		return err
	}

	c.sink.Progress(iteration, c.machine.Current(), string(resp.Action.Kind))
	if err := c.apply(ctx, resp.Action); err != nil {
		return c.fail(err.Error())
	}

	if err := c.transition(fsm.StateCritique, "action applied"); err != nil {
		return err
	}

	if gateErr := c.verify(ctx, iteration); gateErr != nil {
		var gf *gates.GateFailure
		if errors.As(gateErr, &gf) && gf.Policy == gates.PolicyBlocked {
			if err := c.transition(fsm.StateTaskFailure, gateErr.Error()); err != nil {
				return err
			}
			return c.transition(fsm.StateBlocked, "gate policy forces halt")
		}
		return c.fail(gateErr.Error())
	}

	if err := c.transition(fsm.StateCheckpoint, "verified"); err != nil {
		return err
	}
	c.saveCheckpoint(task)

	if c.done {
		return c.transition(fsm.StateComplete, "task done")
	}
	return c.transition(fsm.StatePlan, "next iteration")
}

// fail routes a component failure through TASK_FAILURE and decides between
// retry and escalation. This is the single authority: components never
// retry themselves.
func (c *Controller) fail(reason string) error {
	if err := c.transition(fsm.StateTaskFailure, reason); err != nil {
		return err
	}
	c.pushFeedback("previous attempt failed: " + reason)

	if c.machine.ConsecutiveFailures() >= c.cfg.Loop.MaxConsecutiveFailures {
		return c.transition(fsm.StateBlocked, "too many consecutive failures")
	}
	if c.machine.TaskRetries() >= c.cfg.Loop.MaxTaskRetries {
		return c.transition(fsm.StateBlocked, "task retry budget exhausted")
	}
	return c.transition(fsm.StatePlan, "retrying task")
}

// apply carries out the agent's action against the workspace. A returned
// error is a hard failure routed through TASK_FAILURE; soft outcomes
// (denied write, failed read, non-zero run) become feedback instead.
func (c *Controller) apply(ctx context.Context, action *executor.Action) error {
	switch action.Kind {
	case executor.KindRead:
		data, err := os.ReadFile(filepath.Join(c.workspace, action.Path))
		c.mf.RecordRead(action.Path, err == nil)
		if err != nil {
			c.pushFeedback(fmt.Sprintf("could not read %s: %v", action.Path, err))
			return nil
		}
		c.pushFeedback(fmt.Sprintf("content of %s:\n%s", action.Path, clip(string(data), 4000)))
		return nil

	case executor.KindWrite, executor.KindPatch:
		allowed, reason := c.mf.CanWrite(action.Path)
		if !allowed {
			violation := &WriteGuardViolation{Path: action.Path, Reason: reason}
			c.logger.WriteDenied(action.Path, reason)
			c.run.AddEvent(session.Event{
				Type: session.EventWriteDenied,
				Path: action.Path, Reason: reason,
			})
			c.pushFeedback(violation.Error() + "; read the file first, then retry")
			return nil
		}
		if action.Kind == executor.KindWrite {
			target := filepath.Join(c.workspace, action.Path)
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("write %s: %w", action.Path, err)
			}
			if err := os.WriteFile(target, []byte(action.Content), 0644); err != nil {
				return fmt.Errorf("write %s: %w", action.Path, err)
			}
		} else {
			if err := c.applyPatch(ctx, action.Diff); err != nil {
				return fmt.Errorf("patch %s: %w", action.Path, err)
			}
		}
		// The agent authored the new content, so the file counts as read.
		c.mf.RecordRead(action.Path, true)
		c.mutated = true
		c.pushFeedback(fmt.Sprintf("applied %s to %s", action.Kind, action.Path))
		return nil

	case executor.KindRun:
		output, code := c.runCommand(ctx, action.Command)
		c.mutated = true
		c.pushFeedback(fmt.Sprintf("ran %q (exit %d):\n%s", action.Command, code, clip(output, 4000)))
		return nil

	case executor.KindDone:
		c.done = true
		return nil
	}
	return fmt.Errorf("unhandled action %q", action.Kind)
}

func (c *Controller) applyPatch(ctx context.Context, diff string) error {
	cmd := exec.CommandContext(ctx, "patch", "-p0")
	cmd.Dir = c.workspace
	cmd.Stdin = strings.NewReader(diff)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%v: %s", err, clip(string(output), 500))
	}
	return nil
}

func (c *Controller) runCommand(ctx context.Context, command string) (string, int) {
	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = c.workspace
	output, err := cmd.CombinedOutput()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
			output = []byte(err.Error())
		}
	}
	return string(output), code
}

// verify runs quality gates. Mutating iterations run tier1; a done signal
// runs every configured tier before COMPLETE is reachable.
func (c *Controller) verify(ctx context.Context, iteration int) error {
	if c.runner == nil {
		return nil
	}
	var tiers []gates.Tier
	switch {
	case c.done:
		tiers = c.cfg.Tiers()
	case c.mutated:
		all := c.cfg.Tiers()
		tiers = all[:1]
	default:
		return nil
	}

	for _, tier := range tiers {
		if len(tier.Commands) == 0 {
			continue
		}
		result, err := c.runner.RunTier(ctx, tier)
		passed := err == nil
		evt := session.Event{
			Type: session.EventGateTier, Iteration: iteration,
			Tier: tier.Name, Success: &passed,
		}
		if result != nil && result.Failed() != nil {
			evt.Command = result.Failed().Command
			evt.Error = clip(result.Failed().Output, 1000)
		}
		c.run.AddEvent(evt)
		if err != nil {
			if result != nil && result.Failed() != nil {
				c.pushFeedback(fmt.Sprintf("gate %s failed on %q:\n%s",
					tier.Name, result.Failed().Command, clip(result.Failed().Output, 2000)))
			}
			return err
		}
	}
	return nil
}

func (c *Controller) saveCheckpoint(task Task) {
	if c.cfg.Loop.AutoCommit && c.mutated {
		msg := fmt.Sprintf("checkpoint iteration %d", c.machine.IterationCount())
		if out, code := c.runCommand(context.Background(), "git add -A && git commit -m "+fmt.Sprintf("%q", msg)); code != 0 {
			c.logger.Warn("auto-commit failed", map[string]interface{}{"output": clip(out, 300)})
		}
	}
	if c.ckpt == nil {
		return
	}
	rec := &checkpoint.Record{
		RunID:    c.run.ID,
		Task:     task.Description,
		Machine:  c.machine.Snapshot(),
		Manifest: c.mf.Snapshot(),
		Events:   c.run.Events,
	}
	if err := c.ckpt.Save(rec); err != nil {
		c.logger.Error("checkpoint save failed", map[string]interface{}{"error": err.Error()})
		return
	}
	c.run.AddEvent(session.Event{Type: session.EventCheckpoint, Iteration: c.machine.IterationCount()})
	c.logger.CheckpointSaved(c.run.ID, c.machine.IterationCount())
}

func (c *Controller) transition(target fsm.State, reason string) error {
	from := c.machine.Current()
	if err := c.machine.Transition(target, reason); err != nil {
		c.logger.TransitionDenied(string(from), string(target))
		return err
	}
	c.logger.Transition(string(from), string(target), reason)
	c.run.AddEvent(session.Event{
		Type: session.EventTransition,
		From: string(from), To: string(target), Reason: reason,
		Iteration: c.machine.IterationCount(),
	})
	return nil
}

func (c *Controller) pushFeedback(msg string) {
	c.feedback = append(c.feedback, msg)
}

func lastReason(machine *fsm.Context) string {
	history := machine.History()
	if len(history) == 0 {
		return ""
	}
	return history[len(history)-1].Reason
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n[truncated]"
}
