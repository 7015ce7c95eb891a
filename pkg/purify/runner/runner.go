// Package runner executes external tools with bounded waits. Every stage
// that shells out to a decompiler, builder, or signer goes through Run,
// which captures output, enforces a timeout by killing the process group,
// and always produces a Result rather than an error. Launch failures
// (missing binary, permission denied) surface as a synthetic Result with
// exit code -1 and the error text in Stderr, so callers have one uniform
// failure surface.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/jamesainslie/purify/pkg/purify/logging"
)

// DefaultTimeout bounds invocations whose caller did not set one.
const DefaultTimeout = 5 * time.Minute

// ProbeTimeout bounds quick version and availability checks.
const ProbeTimeout = 30 * time.Second

// Command describes one external tool invocation.
type Command struct {
	// Argv is the command vector; Argv[0] is the binary.
	Argv []string

	// Dir is the working directory. Empty means inherit.
	Dir string

	// Timeout bounds the invocation. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Result is the outcome of one invocation. It is always populated;
// Run never returns an error.
type Result struct {
	// ExitCode is the process exit code, or -1 for launch failure and
	// for processes killed at the timeout boundary.
	ExitCode int

	// Stdout and Stderr hold the captured output streams. On launch
	// failure Stderr holds the launch error text.
	Stdout string
	Stderr string

	// TimedOut indicates the process was killed at the timeout boundary.
	// Timed-out invocations are treated like non-zero exits for control
	// flow but recorded distinctly for diagnostics.
	TimedOut bool

	// Duration is how long the invocation ran.
	Duration time.Duration
}

// Ok reports whether the process exited zero without timing out.
func (r Result) Ok() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Run executes cmd to completion or kills it at the timeout boundary.
// The process runs in its own group so that child processes (tool
// wrappers spawning a JVM, for example) die with it. Partially written
// output files from a killed process are the caller's responsibility.
func Run(ctx context.Context, cmd Command) Result {
	log := logging.Get("runner")

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	c := exec.CommandContext(runCtx, cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = cmd.Dir
	c.Env = os.Environ()
	setProcessGroup(c)
	c.Cancel = func() error {
		return killProcessGroup(c)
	}
	// Give the group a moment to exit after the kill before Wait
	// force-closes the pipes and drains what was already written.
	c.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	elapsed := time.Since(start)

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: elapsed,
	}

	switch {
	case err == nil:
		res.ExitCode = 0
	case runCtx.Err() != nil && ctx.Err() == nil:
		// Killed by our timeout, not by caller cancellation.
		res.ExitCode = -1
		res.TimedOut = true
		log.Warn("command timed out", "argv0", cmd.Argv[0], "timeout", timeout)
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			// Launch failure: binary missing, permission denied, bad dir.
			res.ExitCode = -1
			res.Stderr = err.Error()
		}
	}

	if res.ExitCode != 0 {
		log.Debug("command failed",
			"argv0", cmd.Argv[0], "exit", res.ExitCode,
			"timed_out", res.TimedOut, "elapsed", elapsed)
	} else {
		log.Debug("command succeeded", "argv0", cmd.Argv[0], "elapsed", elapsed)
	}

	return res
}

// LookPath reports whether the named binary can be launched, either as an
// absolute path on disk or via PATH resolution.
func LookPath(name string) bool {
	if _, err := os.Stat(name); err == nil {
		return true
	}
	_, err := exec.LookPath(name)
	return err == nil
}
