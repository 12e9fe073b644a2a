// Package cmdrun executes short-lived helper commands and captures their
// output. Every invocation reports its outcome through a Result rather than
// an error return: discovery probes, install scripts and kill commands are
// advisory, and callers decide what a failure means.
package cmdrun

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

// Result captures the outcome of a helper command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Err      error
}

// OK reports whether the command ran and exited with status zero.
func (r Result) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// FirstLine returns the first non-empty line of stdout, trimmed. Lookup
// commands such as "where" may print several matches.
func (r Result) FirstLine() string {
	for _, line := range strings.Split(string(r.Stdout), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// Combined returns stdout followed by stderr, trimmed.
func (r Result) Combined() string {
	var b strings.Builder
	b.Write(bytes.TrimSpace(r.Stdout))
	if stderr := bytes.TrimSpace(r.Stderr); len(stderr) > 0 {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.Write(stderr)
	}
	return b.String()
}

// Runner abstracts helper command execution so tests can stub the host.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) Result
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, name string, args ...string) Result

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) Result {
	return f(ctx, name, args...)
}

// ExecRunner executes commands on the local host with the inherited
// environment.
type ExecRunner struct{}

// Run implements Runner using os/exec.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res
	}

	res.Err = err
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res
	}

	res.ExitCode = -1
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		res.ExitCode = 127
	}
	return res
}
