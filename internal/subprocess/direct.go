package subprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"hypcert/internal/logging"
)

// Config holds the runner defaults.
type Config struct {
	// DefaultTimeout applies to commands without their own timeout. Zero
	// leaves them bounded only by the caller's context.
	DefaultTimeout time.Duration `yaml:"default_timeout" json:"default_timeout"`

	// MaxOutputBytes caps each captured stream.
	MaxOutputBytes int64 `yaml:"max_output_bytes" json:"max_output_bytes"`

	// WaitDelay bounds how long pipes are drained after the process is
	// killed, in case a descendant that escaped the group keeps them open.
	WaitDelay time.Duration `yaml:"wait_delay" json:"wait_delay"`

	// AllowedEnvironment lists variables passed through from the parent.
	AllowedEnvironment []string `yaml:"allowed_environment" json:"allowed_environment"`
}

// DefaultConfig returns the defaults used by NewDirectRunner.
func DefaultConfig() Config {
	return Config{
		MaxOutputBytes: 4 * 1024 * 1024,
		WaitDelay:      2 * time.Second,
		AllowedEnvironment: []string{
			"PATH", "HOME", "USER", "TMPDIR", "LANG", "LC_ALL", "GAPROOT",
		},
	}
}

// DirectRunner executes commands on the host with os/exec.
type DirectRunner struct {
	config Config
}

// NewDirectRunner creates a runner with DefaultConfig.
func NewDirectRunner() *DirectRunner {
	return NewDirectRunnerWithConfig(DefaultConfig())
}

// NewDirectRunnerWithConfig creates a runner with custom defaults.
func NewDirectRunnerWithConfig(config Config) *DirectRunner {
	logging.ToolsDebug("Creating DirectRunner: timeout=%s, maxOutput=%d bytes, waitDelay=%s",
		config.DefaultTimeout, config.MaxOutputBytes, config.WaitDelay)
	return &DirectRunner{config: config}
}

// LookPath resolves a binary the way Run does.
func (r *DirectRunner) LookPath(binary string) (string, error) {
	if binary == "" {
		return "", fmt.Errorf("%w: empty binary name", ErrNotFound)
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotFound, binary, err)
	}
	return path, nil
}

// Run executes cmd and waits for the process group to finish.
func (r *DirectRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryTools, "subprocess "+cmd.Binary)
	defer timer.Stop()

	path, err := r.LookPath(cmd.Binary)
	if err != nil {
		logging.ToolsWarn("%v", err)
		return nil, err
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.config.DefaultTimeout
	}
	execCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	execCmd := exec.CommandContext(execCtx, path, cmd.Arguments...)
	execCmd.Dir = cmd.WorkingDirectory
	execCmd.Env = r.buildEnvironment(cmd.Environment)
	if cmd.Stdin != "" {
		execCmd.Stdin = strings.NewReader(cmd.Stdin)
	}

	maxOutput := r.config.MaxOutputBytes
	if cmd.MaxOutputBytes > 0 {
		maxOutput = cmd.MaxOutputBytes
	}
	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := &limitedWriter{w: &stdoutBuf, max: maxOutput}
	stderr := &limitedWriter{w: &stderrBuf, max: maxOutput}
	execCmd.Stdout = stdout
	execCmd.Stderr = stderr

	setupProcessGroup(execCmd)
	execCmd.Cancel = func() error { return killProcessGroup(execCmd) }
	execCmd.WaitDelay = r.config.WaitDelay

	logging.ToolsDebug("Executing: %s (dir=%s, timeout=%s)", cmd.CommandString(), cmd.WorkingDirectory, timeout)
	start := time.Now()
	err = execCmd.Run()

	result := &Result{
		ExitCode: -1,
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: time.Since(start),
	}
	if stdout.truncated || stderr.truncated {
		result.Truncated = true
		result.TruncatedBytes = stdout.discarded + stderr.discarded
		logging.ToolsWarn("Output of %s truncated: %d bytes discarded", cmd.Binary, result.TruncatedBytes)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case ctx.Err() != nil:
		result.Canceled = true
		logging.ToolsDebug("Command canceled: %s", cmd.Binary)
	case execCtx.Err() == context.DeadlineExceeded:
		result.TimedOut = true
		logging.ToolsWarn("Command killed (timeout): %s after %s", cmd.Binary, timeout)
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		if sig, ok := signalOf(exitErr.ProcessState); ok {
			result.Signaled = true
			result.Signal = sig
			logging.ToolsWarn("Command %s died from signal %s", cmd.Binary, sig)
		} else {
			logging.ToolsDebug("Command exited non-zero: %s -> %d", cmd.Binary, result.ExitCode)
		}
	case errors.Is(err, exec.ErrWaitDelay) && execCmd.ProcessState != nil:
		// The process exited but a descendant held the pipes open.
		result.ExitCode = execCmd.ProcessState.ExitCode()
		logging.ToolsWarn("Command %s left its output pipes open", cmd.Binary)
	default:
		logging.ToolsError("Command failed: %s - %v", cmd.Binary, err)
		return result, fmt.Errorf("%w: %s: %v", ErrStart, cmd.Binary, err)
	}

	logging.ToolsDebug("Command completed: %s -> exit=%d, duration=%s, stdout=%d bytes",
		cmd.Binary, result.ExitCode, result.Duration, len(result.Stdout))
	return result, nil
}

// buildEnvironment passes through the allowed variables, then cmdEnv. A nil
// allow list inherits the whole environment.
func (r *DirectRunner) buildEnvironment(cmdEnv []string) []string {
	if r.config.AllowedEnvironment == nil {
		return append(os.Environ(), cmdEnv...)
	}
	env := make([]string, 0, len(r.config.AllowedEnvironment)+len(cmdEnv))
	for _, key := range r.config.AllowedEnvironment {
		if val, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+val)
		}
	}
	return append(env, cmdEnv...)
}

// limitedWriter is an io.Writer that keeps at most max bytes and silently
// discards the rest.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.max <= 0 {
		written, err := lw.w.Write(p)
		lw.written += int64(written)
		return written, err
	}

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		// Report the full length so the copier does not fail with a short write.
		return n, err
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
