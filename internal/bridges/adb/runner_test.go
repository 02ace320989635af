package adb

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"
)

// shPath finds a shell to stand in for the adb binary. The runner only
// cares about exit codes, output streams, and deadlines, all of which
// sh can produce on demand.
func shPath(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return path
}

func TestExecRunnerSuccess(t *testing.T) {
	runner := &execRunner{path: shPath(t)}

	output, ok, err := runner.Run(context.Background(), 5*time.Second,
		"-c", "echo connected to 10.0.0.2:5555")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !ok {
		t.Error("expected ok for zero exit")
	}
	if output != "connected to 10.0.0.2:5555" {
		t.Errorf("unexpected output %q", output)
	}
}

func TestExecRunnerStderrFallback(t *testing.T) {
	runner := &execRunner{path: shPath(t)}

	output, ok, err := runner.Run(context.Background(), 5*time.Second,
		"-c", "echo 'error: device offline' >&2; exit 1")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if ok {
		t.Error("expected not ok for non-zero exit")
	}
	if output != "error: device offline" {
		t.Errorf("expected stderr fallback, got %q", output)
	}
}

func TestExecRunnerStdoutWins(t *testing.T) {
	runner := &execRunner{path: shPath(t)}

	output, _, err := runner.Run(context.Background(), 5*time.Second,
		"-c", "echo out; echo err >&2")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if output != "out" {
		t.Errorf("expected stdout to win, got %q", output)
	}
}

func TestExecRunnerTimeout(t *testing.T) {
	runner := &execRunner{path: shPath(t)}

	start := time.Now()
	_, ok, err := runner.Run(context.Background(), 100*time.Millisecond, "-c", "sleep 5")
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
	if ok {
		t.Error("expected not ok on timeout")
	}
	if elapsed > 2*time.Second {
		t.Errorf("timeout did not kill the subprocess promptly (%s)", elapsed)
	}
}

func TestExecRunnerSpawnFailure(t *testing.T) {
	runner := &execRunner{path: "/nonexistent/adb"}

	_, ok, err := runner.Run(context.Background(), time.Second, "connect", "10.0.0.2:5555")
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if ok {
		t.Error("expected not ok for missing binary")
	}
}

func TestCommandName(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"plain subcommand", []string{"connect", "10.0.0.2:5555"}, "connect"},
		{"targeted shell", []string{"-s", "10.0.0.2:5555", "shell", "input keyevent 26"}, "shell"},
		{"bare -s", []string{"-s"}, "-s"},
		{"empty", nil, "(no args)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := commandName(tt.args); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
