// Package main defines the CLI structure using kong.
package main

// CLI defines the command-line interface.
type CLI struct {
	Run     RunCmd     `cmd:"" help:"Run a task to completion"`
	Resume  ResumeCmd  `cmd:"" help:"Resume a checkpointed run"`
	Presets PresetsCmd `cmd:"" help:"List known executor presets"`
	Trace   TraceCmd   `cmd:"" help:"Render a run's event log"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// RunCmd executes one task through the loop.
type RunCmd struct {
	Task      []string `arg:"" help:"Task description"`
	Write     []string `short:"w" help:"File the agent may modify (repeatable)"`
	Create    []string `short:"c" help:"File the agent may create (repeatable)"`
	Config    string   `help:"Config file path (default: gyre.toml in cwd)"`
	Workspace string   `default:"." help:"Workspace directory"`
}

// ResumeCmd continues a run from its last checkpoint.
type ResumeCmd struct {
	RunID     string `arg:"" help:"Run to resume"`
	Config    string `help:"Config file path (default: gyre.toml in cwd)"`
	Workspace string `default:"." help:"Workspace directory"`
}

// PresetsCmd lists the executor preset catalog.
type PresetsCmd struct{}

// TraceCmd renders a persisted run log.
type TraceCmd struct {
	RunID  string `arg:"" optional:"" help:"Run to render (default: most recent)"`
	Config string `help:"Config file path (default: gyre.toml in cwd)"`
}

// VersionCmd shows version information.
type VersionCmd struct{}
