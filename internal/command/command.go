// Package command runs the external tools the pipeline depends on (rsync,
// gdal, zip) behind small interfaces so callers can be tested with fakes.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Spec describes one child process.
type Spec struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string // appended to the parent environment
	Stdin io.Reader
}

func (s Spec) String() string {
	return fmt.Sprintf("%s %v", s.Name, s.Args)
}

// Output is the captured result of a finished process.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// ExitError reports a process that ran but exited non-zero.
type ExitError struct {
	Spec     Spec
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %s", e.Spec.Name, e.ExitCode, e.Stderr)
}

// Runner runs a process to completion, capturing both streams.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Output, error)
}

// Process is a started child whose streams are consumed by the caller.
// Both streams must be drained before Wait is called.
type Process interface {
	Stdout() io.Reader
	Stderr() io.Reader
	Wait() error
}

// Starter launches a process and hands back its live streams.
type Starter interface {
	Start(ctx context.Context, spec Spec) (Process, error)
}

// Exec implements Runner and Starter with os/exec.
type Exec struct{}

// Run executes spec and waits for it. A non-zero exit is returned as *ExitError
// together with the captured output.
func (Exec) Run(ctx context.Context, spec Spec) (Output, error) {
	cmd := build(ctx, spec)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		return out, wrapExit(spec, err, stderr.String(), &out)
	}
	return out, nil
}

// Start launches spec with piped stdout and stderr.
func (Exec) Start(ctx context.Context, spec Spec) (Process, error) {
	cmd := build(ctx, spec)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Name, err)
	}
	return &process{cmd: cmd, spec: spec, stdout: stdout, stderr: stderr}, nil
}

type process struct {
	cmd    *exec.Cmd
	spec   Spec
	stdout io.Reader
	stderr io.Reader
}

func (p *process) Stdout() io.Reader { return p.stdout }
func (p *process) Stderr() io.Reader { return p.stderr }

func (p *process) Wait() error {
	if err := p.cmd.Wait(); err != nil {
		return wrapExit(p.spec, err, "", nil)
	}
	return nil
}

func build(ctx context.Context, spec Spec) *exec.Cmd {
	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdin = spec.Stdin
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	return cmd
}

func wrapExit(spec Spec, err error, stderr string, out *Output) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if out != nil {
			out.ExitCode = exitErr.ExitCode()
		}
		return &ExitError{Spec: spec, ExitCode: exitErr.ExitCode(), Stderr: stderr}
	}
	return fmt.Errorf("run %s: %w", spec.Name, err)
}
