package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/vinayprograms/gyre/internal/checkpoint"
	"github.com/vinayprograms/gyre/internal/config"
	"github.com/vinayprograms/gyre/internal/executor"
	"github.com/vinayprograms/gyre/internal/fsm"
	"github.com/vinayprograms/gyre/internal/loop"
	"github.com/vinayprograms/gyre/internal/semantic"
	"github.com/vinayprograms/gyre/internal/session"
	"github.com/vinayprograms/gyre/internal/trace"
)

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadDefault()
}

func buildExpander(cfg *config.Config) (*semantic.Expander, error) {
	overrides, err := semantic.LoadOverrides(cfg.Semantic.Synonyms)
	if err != nil {
		return nil, err
	}
	var opts []semantic.Option
	if cfg.Semantic.MaxDepth > 0 {
		opts = append(opts, semantic.WithMaxDepth(cfg.Semantic.MaxDepth))
	}
	if cfg.Semantic.Decay > 0 {
		opts = append(opts, semantic.WithDecay(cfg.Semantic.Decay))
	}
	return semantic.NewExpander(overrides, opts...), nil
}

func buildController(cfg *config.Config, workspace string) (*loop.Controller, *checkpoint.Store, *session.FileStore, error) {
	execCfg, err := cfg.BuildExecutorConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	exec, err := executor.New(execCfg)
	if err != nil {
		return nil, nil, nil, err
	}
	expander, err := buildExpander(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	ckpts, err := checkpoint.NewStore(filepath.Join(cfg.Storage.Path, "checkpoints"))
	if err != nil {
		return nil, nil, nil, err
	}
	runs, err := session.NewFileStore(filepath.Join(cfg.Storage.Path, "runs"))
	if err != nil {
		return nil, nil, nil, err
	}

	ctrl, err := loop.New(loop.Options{
		Config:      cfg,
		Executor:    exec,
		Gates:       newGateRunner(workspace),
		Searcher:    newWorkspaceSearcher(workspace),
		Sink:        consoleSink{},
		Checkpoints: ckpts,
		Expander:    expander,
		Workspace:   workspace,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return ctrl, ckpts, runs, nil
}

// signalContext cancels on SIGINT/SIGTERM so the loop checkpoints instead
// of dying mid-iteration.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func reportResult(result *loop.Result, runs *session.FileStore) error {
	if err := runs.Save(result.Run); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not persist run log: %v\n", err)
	}
	fmt.Printf("\nrun %s finished in state %s after %d iteration(s)\n",
		result.RunID, result.State, result.Iterations)
	if result.State != fsm.StateComplete {
		return fmt.Errorf("run ended %s", result.State)
	}
	return nil
}

// Run executes a task.
func (c *RunCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	ctrl, _, runs, err := buildController(cfg, c.Workspace)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := ctrl.Run(ctx, loop.Task{
		Description:    strings.Join(c.Task, " "),
		AllowedWrites:  c.Write,
		AllowedCreates: c.Create,
	})
	if err != nil {
		if result != nil {
			runs.Save(result.Run)
		}
		return err
	}
	return reportResult(result, runs)
}

// Run continues a checkpointed run.
func (c *ResumeCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	ctrl, ckpts, runs, err := buildController(cfg, c.Workspace)
	if err != nil {
		return err
	}

	rec, err := ckpts.Load(c.RunID)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := ctrl.Resume(ctx, rec)
	if err != nil {
		if result != nil {
			runs.Save(result.Run)
		}
		return err
	}
	return reportResult(result, runs)
}

// Run lists the preset catalog.
func (c *PresetsCmd) Run() error {
	for _, name := range executor.ListPresets() {
		preset, err := executor.GetPreset(name)
		if err != nil {
			return err
		}
		fmt.Printf("%-10s %s %s\n    %s\n", name, preset.Command,
			strings.Join(preset.Args, " "), preset.Description)
	}
	return nil
}

// Run renders a run log.
func (c *TraceCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	runs, err := session.NewFileStore(filepath.Join(cfg.Storage.Path, "runs"))
	if err != nil {
		return err
	}

	runID := c.RunID
	if runID == "" {
		ids, err := runs.List()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("no runs recorded under %s", cfg.Storage.Path)
		}
		runID = ids[0]
	}

	run, err := runs.Load(runID)
	if err != nil {
		return err
	}
	trace.NewRenderer(os.Stdout).Render(run)
	return nil
}

// Run prints version information.
func (c *VersionCmd) Run() error {
	fmt.Printf("gyre version %s (commit: %s, built: %s)\n", version, commit, buildTime)
	return nil
}
