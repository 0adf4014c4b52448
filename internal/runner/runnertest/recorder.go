// Package runnertest provides a recording Runner for tests.
package runnertest

import (
	"context"
	"sync"

	"github.com/qobs-build/rbuild/internal/runner"
)

// Recorder records every command it is asked to run and never starts a
// process. Call numbers are 1-based.
type Recorder struct {
	// FailOn makes the Nth call exit with FailCode (default 2). Zero never fails.
	FailOn   int
	FailCode int
	// OnRun runs for every successful call, e.g. to drop fake artifacts.
	OnRun func(cmd runner.Command) error

	mu       sync.Mutex
	commands []runner.Command
}

var _ runner.Runner = (*Recorder)(nil)

func (r *Recorder) Run(ctx context.Context, cmd runner.Command) (runner.Result, error) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	n := len(r.commands)
	r.mu.Unlock()

	if r.FailOn != 0 && n == r.FailOn {
		code := r.FailCode
		if code == 0 {
			code = 2
		}
		return runner.Result{ExitCode: code, Stderr: []byte("simulated failure\n")}, nil
	}
	if r.OnRun != nil {
		if err := r.OnRun(cmd); err != nil {
			return runner.Result{}, err
		}
	}
	return runner.Result{}, nil
}

// Commands returns a copy of every recorded command
func (r *Recorder) Commands() []runner.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]runner.Command(nil), r.commands...)
}

func (r *Recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.commands)
}
