// Package tools holds what the external tool adapters share: mapping a
// subprocess outcome onto the certify failure taxonomy.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hypcert/internal/certify"
	"hypcert/internal/subprocess"
)

// RunFailure classifies the outcome of runner.Run. It returns ctx.Err()
// when the caller gave up, a *certify.ToolFailure when the process did not
// run to completion on its own, and nil otherwise. A Canceled result while
// ctx is still live means a deadline owned by the adapter fired.
func RunFailure(ctx context.Context, tool string, res *subprocess.Result, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	switch {
	case errors.Is(err, subprocess.ErrNotFound):
		return certify.NewToolFailure(tool, certify.ToolNotFound, "", err)
	case err != nil:
		return certify.NewToolFailure(tool, certify.ToolCrashed, "could not start", err)
	case res.TimedOut || res.Canceled:
		return certify.NewToolFailure(tool, certify.ToolTimedOut,
			fmt.Sprintf("killed after %s", res.Duration.Round(time.Millisecond)), nil)
	case res.Signaled:
		return certify.NewToolFailure(tool, certify.ToolCrashed, "killed by signal "+res.Signal, nil)
	}
	return nil
}

// ExitFailure reports an unexpected exit status with the tail of stderr.
func ExitFailure(tool string, res *subprocess.Result) *certify.ToolFailure {
	detail := fmt.Sprintf("exit status %d", res.ExitCode)
	if tail := Tail(res.Stderr, 3); tail != "" {
		detail += ": " + tail
	}
	return certify.NewToolFailure(tool, certify.ToolCrashed, detail, nil)
}

// Tail returns the last n non-blank lines of s joined by " | ".
func Tail(s string, n int) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
