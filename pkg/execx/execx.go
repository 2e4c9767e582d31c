package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Cmd describes one subprocess invocation.
type Cmd struct {
	Name string
	Args []string

	// Dir is the working directory; empty means inherit.
	Dir string

	// Env entries are appended to the current environment.
	Env []string

	// Timeout bounds the run; zero means no extra deadline beyond ctx.
	Timeout time.Duration
}

// Result captures a finished subprocess. A nonzero exit code is a Result,
// not an error: callers decide which exit codes matter.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// OK reports whether the command exited zero.
func (r Result) OK() bool {
	return r.ExitCode == 0
}

// Runner executes commands. The package default shells out; tests swap in
// fakes.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) (Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmd Cmd) (Result, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, cmd Cmd) (Result, error) {
	return f(ctx, cmd)
}

// Local is the Runner backed by os/exec.
var Local Runner = RunnerFunc(run)

func run(ctx context.Context, c Cmd) (Result, error) {
	if c.Name == "" {
		return Result{}, fmt.Errorf("empty command")
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The process ran and exited nonzero.
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("%s timed out: %w", c.Name, ctxErr)
		}
		return res, fmt.Errorf("failed to run %s: %w", c.Name, err)
	}
	return res, nil
}

// CommandLine renders the invocation for log output.
func (c Cmd) CommandLine() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}
