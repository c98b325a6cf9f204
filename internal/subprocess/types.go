// Package subprocess runs external programs with a bounded lifetime.
//
// Every child is started in its own process group. On timeout or
// cancellation the whole group is killed and pipe draining is bounded, so a
// tool that forks helpers cannot outlive the call that started it.
package subprocess

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the binary cannot be resolved.
	ErrNotFound = errors.New("executable not found")
	// ErrStart is returned when the process could not be started or waited on.
	ErrStart = errors.New("process failed to start")
)

// Runner executes commands. DirectRunner is the production implementation;
// tests substitute fakes.
type Runner interface {
	// Run executes cmd and waits for it. The error is non-nil only when the
	// process never ran (ErrNotFound, ErrStart); timeouts, cancellation and
	// non-zero exits are reported in the Result.
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// Command describes one process invocation.
type Command struct {
	// Binary is a path or a name looked up in PATH.
	Binary    string   `json:"binary"`
	Arguments []string `json:"arguments,omitempty"`

	// WorkingDirectory defaults to the current directory.
	WorkingDirectory string `json:"working_directory,omitempty"`

	// Environment entries (KEY=VALUE) are added after the allowed
	// variables of the runner's environment.
	Environment []string `json:"environment,omitempty"`

	Stdin string `json:"-"`

	// Timeout bounds the wall time. Zero uses the runner default.
	Timeout time.Duration `json:"timeout,omitempty"`

	// MaxOutputBytes caps each of stdout and stderr. Zero uses the runner
	// default.
	MaxOutputBytes int64 `json:"max_output_bytes,omitempty"`
}

// CommandString returns the command line for display.
func (c Command) CommandString() string {
	if len(c.Arguments) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Arguments, " ")
}

// Result is what a finished process left behind.
type Result struct {
	// ExitCode is -1 when the process did not exit normally.
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`

	// TimedOut is set when the command's own timeout killed it.
	TimedOut bool `json:"timed_out,omitempty"`
	// Canceled is set when the caller's context ended first.
	Canceled bool `json:"canceled,omitempty"`

	// Signaled is set when the process died from a signal it did not
	// receive from this runner.
	Signaled bool   `json:"signaled,omitempty"`
	Signal   string `json:"signal,omitempty"`

	Truncated      bool  `json:"truncated,omitempty"`
	TruncatedBytes int64 `json:"truncated_bytes,omitempty"`

	Duration time.Duration `json:"duration_ns"`
}

// Success reports a normal exit with status 0.
func (r *Result) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut && !r.Canceled && !r.Signaled
}

// Output returns stdout followed by stderr.
func (r *Result) Output() string {
	switch {
	case r.Stderr == "":
		return r.Stdout
	case r.Stdout == "":
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}
