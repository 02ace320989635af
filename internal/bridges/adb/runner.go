package adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes one adb invocation and reports its outcome.
//
// The external tool's only contract is exit codes and loosely formatted
// text, so the runner reduces every invocation to that shape:
//
//   - output: trimmed stdout, falling back to trimmed stderr when
//     stdout is empty (adb writes errors to either, inconsistently)
//   - ok: true iff the process ran to completion with exit code 0
//   - err: non-nil only when the process could not run or was killed
//     by the timeout; a non-zero exit is an outcome, not an error
//
// The interface exists so adapter tests can script adb conversations
// without a binary or a TV on the bench.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, args ...string) (output string, ok bool, err error)
}

// execRunner runs the real adb binary through os/exec.
type execRunner struct {
	path string
}

var _ Runner = (*execRunner)(nil)

// Run invokes the adb binary with the given arguments, bounded by the
// timeout. The subprocess is killed when the deadline or the parent
// context expires.
func (r *execRunner) Run(ctx context.Context, timeout time.Duration, args ...string) (string, bool, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.path, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	output := strings.TrimSpace(stdout.String())
	if output == "" {
		output = strings.TrimSpace(stderr.String())
	}

	// A killed subprocess surfaces as a generic exit error; report the
	// deadline instead so callers see the real cause.
	if ctxErr := runCtx.Err(); ctxErr != nil {
		return output, false, fmt.Errorf("adb %s: %w", commandName(args), ctxErr)
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return output, false, nil
		}
		return output, false, fmt.Errorf("adb %s: %w", commandName(args), runErr)
	}

	return output, true, nil
}

// commandName names an invocation for error messages. The first
// argument is the subcommand except for -s targeted shells, where the
// interesting word sits after the serial.
func commandName(args []string) string {
	if len(args) == 0 {
		return "(no args)"
	}
	if args[0] == "-s" && len(args) > 2 {
		return args[2]
	}
	return args[0]
}
