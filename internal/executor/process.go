package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/vinayprograms/gyre/internal/logging"
)

// DefaultProcessTimeout caps a single agent invocation when neither the
// caller's context nor the config supplies a deadline.
const DefaultProcessTimeout = 5 * time.Minute

// ProcessExecutor spawns the configured agent CLI, writes the prompt to its
// stdin, and parses its stdout as an action payload. The child runs in its
// own process group so that a timeout kill also reaps any grandchildren.
type ProcessExecutor struct {
	cfg    Config
	logger *logging.Logger
}

// NewProcess creates a process-backed executor.
func NewProcess(cfg Config) *ProcessExecutor {
	return &ProcessExecutor{
		cfg:    cfg,
		logger: logging.New().WithComponent("executor"),
	}
}

// Execute runs one agent invocation under the caller's deadline.
func (p *ProcessExecutor) Execute(ctx context.Context, prompt string) *ActionResponse {
	timeout := p.cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultProcessTimeout
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.Command(p.cfg.Command, p.cfg.Args...)
	cmd.Stdin = strings.NewReader(prompt)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if len(p.cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range p.cfg.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		p.logger.ExecutorResult(p.cfg.Command, time.Since(start), err)
		return failure("", fmt.Sprintf("spawn failed: %v", err))
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		// Kill the whole process group, then wait so the child is reaped.
		syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
		p.logger.ExecutorResult(p.cfg.Command, time.Since(start), ctx.Err())
		return failure(stdout.String(), "timeout")
	case err := <-done:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				p.logger.Warn("agent process failed", map[string]interface{}{
					"command": p.cfg.Command,
					"code":    exitErr.ExitCode(),
					"stderr":  truncate(stderr.String(), 500),
				})
				return failure(stdout.String(), fmt.Sprintf("process exited with code %d", exitErr.ExitCode()))
			}
			return failure(stdout.String(), fmt.Sprintf("wait failed: %v", err))
		}
	}

	raw := stdout.String()
	action, err := ParseAction(raw)
	if err != nil {
		p.logger.ExecutorResult(p.cfg.Command, time.Since(start), err)
		return failure(raw, err.Error())
	}

	p.logger.ExecutorResult(p.cfg.Command, time.Since(start), nil)
	return &ActionResponse{Success: true, Action: action, RawOutput: raw}
}

// truncate shortens a string for logging purposes.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
