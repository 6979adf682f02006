package p4

import (
	"context"
	"os/exec"
	"strings"
)

// Runner abstracts p4 command execution for testability.
type Runner interface {
	Run(ctx context.Context, stdin string, args ...string) (stdout, stderr string, err error)
}

// ExecRunner implements Runner using os/exec.
type ExecRunner struct {
	// Binary is the p4 executable. Defaults to "p4" on PATH.
	Binary string
	// Env is appended to the inherited environment (e.g. P4CHARSET=none).
	Env []string
}

// Run executes p4 with args, feeding stdin when non-empty.
func (r *ExecRunner) Run(ctx context.Context, stdin string, args ...string) (stdout, stderr string, err error) {
	bin := r.Binary
	if bin == "" {
		bin = "p4"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()
	return stdoutBuf.String(), stderrBuf.String(), err
}
