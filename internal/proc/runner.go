// Package proc runs whitelisted utilities with a pinned PATH, a bounded
// execution time and captured output. It is the only place in the broker
// that touches os/exec.
package proc

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/aicers/roxy/internal/metrics"
	"github.com/aicers/roxy/internal/resolver"
	"github.com/aicers/roxy/pkg/logger"
	"github.com/aicers/roxy/pkg/reconcile"
)

const DefaultTimeout = 30 * time.Second

type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner is the invocation surface handed to subsystems. Tests substitute
// a recording fake; production uses ExecRunner.
type Runner interface {
	Run(ctx context.Context, utility string, args ...string) (Output, error)
}

type ExecRunner struct {
	res     *resolver.Resolver
	timeout time.Duration
	logger  *slog.Logger
}

func NewRunner(res *resolver.Resolver, timeout time.Duration) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ExecRunner{
		res:     res,
		timeout: timeout,
		logger:  logger.Component(logger.Proc),
	}
}

// Run resolves utility through the fixed search path and executes it with
// args as a fixed argument vector. The subprocess environment contains
// only the pinned PATH. On timeout the subprocess is killed and the error
// kind is Timeout; on non-zero exit the kind is ExecutionFailed carrying
// the captured diagnostic output.
func (r *ExecRunner) Run(ctx context.Context, utility string, args ...string) (Output, error) {
	path, err := r.res.Resolve(utility)
	if err != nil {
		return Output{}, err
	}
	metrics.SubprocessTotal.WithLabelValues(utility).Inc()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = []string{"PATH=" + r.res.PathEnv()}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	out := Output{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}

	r.logger.Debug("Ran utility", "utility", utility, "args", strings.Join(args, " "),
		"exit", out.ExitCode, "elapsed", elapsed)

	if runErr == nil {
		return out, nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		return out, reconcile.WrapError(reconcile.KindTimeout, runErr,
			"%s timed out after %s", utility, r.timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return out, reconcile.NewError(reconcile.KindExecutionFailed,
			"%s exited %d: %s", utility, out.ExitCode, strings.TrimSpace(out.Stderr))
	}

	return out, reconcile.WrapError(reconcile.KindExecutionFailed, runErr, "%s failed to start", utility)
}
