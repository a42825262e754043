// Package gitexec runs git as a subprocess, implementing the GitRunner port.
package gitexec

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/example/loom/internal/apperr"
	"github.com/example/loom/internal/ports/secondary"
)

// DefaultTimeout bounds a single git invocation.
const DefaultTimeout = 30 * time.Second

// Runner executes git commands with a bounded deadline.
type Runner struct {
	timeout time.Duration
}

// NewRunner creates a Runner with the default timeout.
func NewRunner() *Runner {
	return &Runner{timeout: DefaultTimeout}
}

// NewRunnerWithTimeout creates a Runner with a custom timeout.
func NewRunnerWithTimeout(timeout time.Duration) *Runner {
	return &Runner{timeout: timeout}
}

// Run executes git with the given args in cwd. A non-zero exit is reported
// through GitResult.Code, not as an error; errors are reserved for the git
// binary being absent or the deadline expiring.
func (r *Runner) Run(ctx context.Context, cwd string, args ...string) (secondary.GitResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := secondary.GitResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			result.Code = exitErr.ExitCode()
			return result, nil
		case runCtx.Err() == context.DeadlineExceeded:
			return result, apperr.Timeoutf("git %s timed out after %s", firstArg(args), r.timeout)
		default:
			return result, apperr.Vcsf("failed to run git: %v", err)
		}
	}
	return result, nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

var _ secondary.GitRunner = (*Runner)(nil)
