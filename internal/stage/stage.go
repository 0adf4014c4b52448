// Package stage turns task descriptors into compiler and scanner invocations
// and runs them.
package stage

import (
	"context"
	"errors"
	"fmt"

	"github.com/qobs-build/rbuild/internal/msg"
	"github.com/qobs-build/rbuild/internal/runner"
)

var (
	ErrNoSources    = errors.New("task has no sources")
	ErrNoEntryPoint = errors.New("metaprogram has no exported entry point")
)

// Error is a stage whose process exited with a non-zero code
type Error struct {
	Stage    string
	Task     string
	ExitCode int
	Output   []byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: exit code %d", e.Stage, e.Task, e.ExitCode)
}

// run executes one framed invocation. Any outcome other than exit code 0 is
// returned as an error.
func run(ctx context.Context, r runner.Runner, cmd runner.Command, label, stageName, taskName string, verbose bool) (runner.Result, error) {
	status := msg.Begin(label)
	if verbose {
		status.Break()
		msg.Verbose(true, "%s", cmd)
	}

	res, err := r.Run(ctx, cmd)
	// verbose runs stream tool output as it happens
	output := res.Output()
	if verbose {
		output = nil
	}
	if err != nil {
		status.Failed(output)
		return res, fmt.Errorf("%s %s: %w", stageName, taskName, err)
	}
	if res.ExitCode != 0 {
		status.Failed(output)
		return res, &Error{Stage: stageName, Task: taskName, ExitCode: res.ExitCode, Output: res.Output()}
	}

	status.Done()
	return res, nil
}

// prefixEach renders one token per value; nil and empty render nothing
func prefixEach(prefix string, values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, prefix+v)
	}
	return out
}
