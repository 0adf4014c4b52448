// Package runner is the only place rbuild starts operating system processes.
package runner

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
)

// WaitDelay is how long a timed out process gets between the interrupt and
// the kill.
const WaitDelay = 5 * time.Second

var ErrTimeout = errors.New("process timed out")

// Command is a process invocation kept as discrete tokens. Tokens are never
// joined into a single string before they reach os/exec.
type Command struct {
	Name string
	Args []string
	Dir  string
}

// String renders the command for logs, quoting tokens that need it
func (c Command) String() string {
	var sb strings.Builder
	sb.WriteString(quote(c.Name))
	for _, arg := range c.Args {
		sb.WriteByte(' ')
		sb.WriteString(quote(arg))
	}
	return sb.String()
}

func quote(s string) string {
	if s == "" {
		return `""`
	}
	if !strings.ContainsAny(s, " \t\"'\\$`") {
		return s
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`").Replace(s) + `"`
}

// Result is what a finished process left behind
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Output is stdout followed by stderr
func (r Result) Output() []byte {
	return append(bytes.Clone(r.Stdout), r.Stderr...)
}

type Runner interface {
	// Run blocks until the process exits. A non-zero exit code is reported in
	// the Result, not as an error; errors mean the process could not be run
	// to completion.
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Func adapts a function to the Runner interface
type Func func(ctx context.Context, cmd Command) (Result, error)

func (f Func) Run(ctx context.Context, cmd Command) (Result, error) {
	return f(ctx, cmd)
}

// Exec runs commands as OS processes
type Exec struct {
	// Timeout bounds a single process; zero means wait forever.
	Timeout time.Duration
	// Stream tees process output to Stdout/Stderr while capturing it.
	Stream bool
	Stdout io.Writer
	Stderr io.Writer
	// Env is appended to the current environment.
	Env []string
}

var _ Runner = (*Exec)(nil)

func (e *Exec) Run(ctx context.Context, c Command) (Result, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}
	cmd.WaitDelay = WaitDelay
	setGracefulShutdown(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if e.Stream {
		cmd.Stdout = io.MultiWriter(&stdout, orDefault(e.Stdout, os.Stdout))
		cmd.Stderr = io.MultiWriter(&stderr, orDefault(e.Stderr, os.Stderr))
	}

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.ExitCode = -1
		return res, fmt.Errorf("%s: %w after %s", c.Name, ErrTimeout, e.Timeout)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		return res, fmt.Errorf("run %s: %w", c.Name, err)
	}
	return res, nil
}

func orDefault(w io.Writer, def io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return def
}
