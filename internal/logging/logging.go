// Package logging provides structured, standards-compliant logging.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger provides structured logging to stdout.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	runID     string
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
		runID:     l.runID,
	}
}

// WithRunID returns a new logger tagged with the given run ID.
func (l *Logger) WithRunID(runID string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		runID:     runID,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry in traditional format: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}
	if l.runID != "" {
		fieldStr = " run=" + l.runID + fieldStr
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Loop lifecycle ---

// RunStart logs the start of a loop run.
func (l *Logger) RunStart(task string) {
	l.Info("run_start", map[string]interface{}{
		"task": task,
	})
}

// RunComplete logs the completion of a loop run.
func (l *Logger) RunComplete(task string, duration time.Duration, state string) {
	l.Info("run_complete", map[string]interface{}{
		"task":     task,
		"duration": duration.String(),
		"state":    state,
	})
}

// IterationStart logs the start of a loop iteration.
func (l *Logger) IterationStart(iteration int) {
	l.Info("iteration_start", map[string]interface{}{
		"iteration": iteration,
	})
}

// Transition logs a state transition.
func (l *Logger) Transition(from, to, reason string) {
	l.Info("transition", map[string]interface{}{
		"from":   from,
		"to":     to,
		"reason": reason,
	})
}

// TransitionDenied logs a rejected state transition.
func (l *Logger) TransitionDenied(from, to string) {
	l.Warn("transition_denied", map[string]interface{}{
		"from": from,
		"to":   to,
	})
}

// --- Executor ---

// ExecutorCall logs an executor invocation.
func (l *Logger) ExecutorCall(kind string) {
	// Don't log the prompt to avoid leaking workspace content.
	l.Info("executor_call", map[string]interface{}{
		"executor": kind,
	})
}

// ExecutorResult logs an executor result.
func (l *Logger) ExecutorResult(kind string, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"executor": kind,
		"duration": duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Error("executor_error", fields)
	} else {
		l.Debug("executor_result", fields)
	}
}

// --- Manifest ---

// WriteDenied logs a rejected write attempt.
func (l *Logger) WriteDenied(path, reason string) {
	l.Warn("write_denied", map[string]interface{}{
		"path":   path,
		"reason": reason,
	})
}

// Pruned logs a file being pruned from context.
func (l *Logger) Pruned(path string) {
	l.Debug("pruned", map[string]interface{}{
		"path": path,
	})
}

// --- Gates ---

// GateTierStart logs the start of a gate tier.
func (l *Logger) GateTierStart(tier string, commands int) {
	l.Info("gate_tier_start", map[string]interface{}{
		"tier":     tier,
		"commands": commands,
	})
}

// GateTierResult logs the outcome of a gate tier.
func (l *Logger) GateTierResult(tier string, passed bool, duration time.Duration) {
	l.Info("gate_tier_result", map[string]interface{}{
		"tier":     tier,
		"passed":   passed,
		"duration": duration.String(),
	})
}

// CheckpointSaved logs when a checkpoint is saved.
func (l *Logger) CheckpointSaved(runID string, iteration int) {
	l.Debug("checkpoint_saved", map[string]interface{}{
		"run":       runID,
		"iteration": iteration,
	})
}
