// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/gyre/internal/executor"
	"github.com/vinayprograms/gyre/internal/gates"
)

// ConfigError is fatal at startup: the run never begins with a config the
// loop cannot honor.
type ConfigError struct {
	Field  string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Detail)
}

// Config represents one run's configuration. It is loaded once at startup
// and treated as immutable for the run.
type Config struct {
	Loop     LoopConfig     `toml:"loop"`
	Executor ExecutorConfig `toml:"executor"`
	Gates    GatesConfig    `toml:"gates"`
	Semantic SemanticConfig `toml:"semantic"`
	Storage  StorageConfig  `toml:"storage"`
}

// LoopConfig contains iteration limits and feature toggles.
type LoopConfig struct {
	MaxIterations          int  `toml:"max_iterations"`
	MaxConsecutiveFailures int  `toml:"max_consecutive_failures"`
	MaxTaskRetries         int  `toml:"max_task_retries"`
	AutoCommit             bool `toml:"auto_commit"`
	WatchFiles             bool `toml:"watch_files"`
}

// ExecutorConfig selects and shapes the agent backend.
type ExecutorConfig struct {
	Type    string            `toml:"type"`    // mock | process
	Preset  string            `toml:"preset"`  // named CLI preset; overrides command/args
	Command string            `toml:"command"`
	Args    []string          `toml:"args"`
	Timeout int               `toml:"timeout"` // seconds
	Env     map[string]string `toml:"env"`
}

// TierConfig is one verification tier's command list and failure policy.
type TierConfig struct {
	Commands  []string `toml:"commands"`
	OnFailure string   `toml:"on_failure"`
	Fix       string   `toml:"fix"`
}

// GatesConfig holds the three verification tiers.
type GatesConfig struct {
	Tier1 TierConfig `toml:"tier1"`
	Tier2 TierConfig `toml:"tier2"`
	Tier3 TierConfig `toml:"tier3"`
}

// SemanticConfig tunes context-search expansion.
type SemanticConfig struct {
	Synonyms string  `toml:"synonyms"` // optional YAML cluster overrides
	MaxDepth int     `toml:"max_depth"`
	Decay    float64 `toml:"decay"`
}

// StorageConfig locates persisted run state.
type StorageConfig struct {
	Path string `toml:"path"` // directory for checkpoint records
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		Loop: LoopConfig{
			MaxIterations:          25,
			MaxConsecutiveFailures: 3,
			MaxTaskRetries:         3,
		},
		Executor: ExecutorConfig{
			Type:    "process",
			Preset:  "claude",
			Timeout: 300,
		},
		Gates: GatesConfig{
			Tier1: TierConfig{OnFailure: string(gates.PolicyTaskFailure)},
			Tier2: TierConfig{OnFailure: string(gates.PolicyTaskFailure)},
			Tier3: TierConfig{OnFailure: string(gates.PolicyBlocked)},
		},
		Storage: StorageConfig{
			Path: ".gyre",
		},
	}
}

// LoadFile loads configuration from a TOML file and validates it.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads gyre.toml from the current directory, falling back to
// defaults when the file does not exist.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	path := filepath.Join(cwd, "gyre.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := New()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return LoadFile(path)
}

// Validate checks the config before any state mutation happens.
func (c *Config) Validate() error {
	if c.Loop.MaxIterations <= 0 {
		return &ConfigError{Field: "loop.max_iterations", Detail: "must be positive"}
	}
	if c.Loop.MaxConsecutiveFailures <= 0 {
		return &ConfigError{Field: "loop.max_consecutive_failures", Detail: "must be positive"}
	}
	if c.Loop.MaxTaskRetries <= 0 {
		return &ConfigError{Field: "loop.max_task_retries", Detail: "must be positive"}
	}

	switch c.Executor.Type {
	case string(executor.TypeMock):
	case string(executor.TypeProcess):
		if c.Executor.Preset == "" && c.Executor.Command == "" {
			return &ConfigError{Field: "executor", Detail: "process executor requires a preset or a command"}
		}
		if c.Executor.Preset != "" {
			if _, err := executor.GetPreset(c.Executor.Preset); err != nil {
				return &ConfigError{Field: "executor.preset", Detail: err.Error()}
			}
		}
	default:
		return &ConfigError{Field: "executor.type", Detail: fmt.Sprintf("unknown type %q", c.Executor.Type)}
	}

	for _, tier := range c.Tiers() {
		if len(tier.Commands) == 0 {
			continue
		}
		if err := tier.Validate(); err != nil {
			return &ConfigError{Field: "gates", Detail: err.Error()}
		}
	}

	if c.Semantic.Decay < 0 || c.Semantic.Decay > 1 {
		return &ConfigError{Field: "semantic.decay", Detail: "must be in [0, 1]"}
	}
	return nil
}

// BuildExecutorConfig resolves the preset (if any) into a concrete
// executor configuration.
func (c *Config) BuildExecutorConfig() (executor.Config, error) {
	cfg := executor.Config{
		Type:    executor.Type(c.Executor.Type),
		Command: c.Executor.Command,
		Args:    c.Executor.Args,
		Timeout: time.Duration(c.Executor.Timeout) * time.Second,
		Env:     c.Executor.Env,
	}
	if c.Executor.Type == string(executor.TypeProcess) && c.Executor.Preset != "" {
		preset, err := executor.GetPreset(c.Executor.Preset)
		if err != nil {
			return executor.Config{}, &ConfigError{Field: "executor.preset", Detail: err.Error()}
		}
		if cfg.Command == "" {
			cfg.Command = preset.Command
			cfg.Args = preset.Args
		}
	}
	return cfg, nil
}

// Tiers returns the configured tiers in run order. Tiers with no commands
// are included so callers can log the skip.
func (c *Config) Tiers() []gates.Tier {
	return []gates.Tier{
		{Name: "tier1", Commands: c.Gates.Tier1.Commands, OnFailure: gates.Policy(c.Gates.Tier1.OnFailure), Fix: c.Gates.Tier1.Fix},
		{Name: "tier2", Commands: c.Gates.Tier2.Commands, OnFailure: gates.Policy(c.Gates.Tier2.OnFailure), Fix: c.Gates.Tier2.Fix},
		{Name: "tier3", Commands: c.Gates.Tier3.Commands, OnFailure: gates.Policy(c.Gates.Tier3.OnFailure), Fix: c.Gates.Tier3.Fix},
	}
}
