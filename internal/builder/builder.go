package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/qobs-build/rbuild/internal/msg"
	"github.com/qobs-build/rbuild/internal/runner"
	"github.com/qobs-build/rbuild/internal/stage"
	"github.com/qobs-build/rbuild/internal/task"
)

// State is where a run currently is. Any state can fall into StateFailed.
type State int

const (
	StateInit State = iota
	StateDirectoriesReady
	StateMetaCompiled
	StateGenerated
	StateCompiled
	StateArtifactsCollected
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateDirectoriesReady:
		return "directories ready"
	case StateMetaCompiled:
		return "metaprogram compiled"
	case StateGenerated:
		return "generated"
	case StateCompiled:
		return "compiled"
	case StateArtifactsCollected:
		return "artifacts collected"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type StepKind int

const (
	StepCompileMetaprogram StepKind = iota
	StepReflect
	StepCompile
)

func (k StepKind) String() string {
	switch k {
	case StepCompileMetaprogram:
		return "compile metaprogram"
	case StepReflect:
		return "reflect"
	case StepCompile:
		return "compile"
	default:
		return fmt.Sprintf("StepKind(%d)", int(k))
	}
}

// Step is one external invocation of a run
type Step struct {
	Kind   StepKind
	Module string
	Task   *task.Task
	// Meta is the metaprogram a reflect step scans with.
	Meta *task.Task
}

// done is the state a successful step moves the run into
func (s Step) done() State {
	switch s.Kind {
	case StepCompileMetaprogram:
		return StateMetaCompiled
	case StepReflect:
		return StateGenerated
	default:
		return StateCompiled
	}
}

// PlannedStep is a step with the exact command it would run
type PlannedStep struct {
	Step
	Command runner.Command
}

type Builder struct {
	cfg       RunConfig
	manifest  *Manifest
	compiler  *stage.Compiler
	reflector *stage.Reflector
	state     State
}

func New(cfg RunConfig, manifest *Manifest, r runner.Runner) *Builder {
	return &Builder{
		cfg:      cfg,
		manifest: manifest,
		compiler: &stage.Compiler{
			Command:      cfg.Compiler,
			SwitchPrefix: cfg.SwitchPrefix,
			Mode:         cfg.Mode,
			ObjectDir:    cfg.Paths.Obj,
			OutputDir:    cfg.Paths.Temp,
			Dir:          cfg.Dir,
			Runner:       r,
			Verbose:      cfg.Verbose,
		},
		reflector: &stage.Reflector{
			ScanPath:   cfg.Scanner,
			IncludeDir: cfg.ReflectInc,
			BuildDir:   cfg.Paths.Temp,
			Dir:        cfg.Dir,
			Runner:     r,
			Verbose:    cfg.Verbose,
		},
		state: StateInit,
	}
}

// Options are the per-invocation settings that do not live in the manifest
type Options struct {
	Mode task.BuildMode
	// Manifest overrides <dir>/Build.toml. When empty and the project has no
	// Build.toml, DefaultManifest is used.
	Manifest string
	Timeout  time.Duration
	Verbose  bool
}

// NewBuilderInDirectory loads the manifest for the project in dir. A nil r
// runs real processes, each bounded by opts.Timeout; verbose builds stream
// their output.
func NewBuilderInDirectory(dir string, opts Options, r runner.Runner) (*Builder, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	version, err := DescribeVersion(dir)
	if err != nil {
		msg.Warn("could not describe version: %v", err)
	}

	m, err := loadManifest(dir, opts, NewConfigEnv(opts.Mode, version))
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.ExpandSources(dir); err != nil {
		return nil, err
	}

	cfg := NewRunConfig(dir, opts.Mode, version, m)
	cfg.Timeout = opts.Timeout
	cfg.Verbose = opts.Verbose
	if r == nil {
		r = &runner.Exec{
			Timeout: cfg.Timeout,
			Stream:  cfg.Verbose,
			Stdout:  msg.Output,
			Stderr:  msg.Output,
		}
	}
	return New(cfg, m, r), nil
}

func loadManifest(dir string, opts Options, env ConfigEnv) (*Manifest, error) {
	if opts.Manifest != "" {
		path := opts.Manifest
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		return ParseManifestFromFile(path, env)
	}

	path := filepath.Join(dir, ManifestFilename)
	if _, err := os.Stat(path); err == nil {
		return ParseManifestFromFile(path, env)
	}
	return ParseManifest(bytes.NewReader(DefaultManifest), env)
}

func (b *Builder) Config() RunConfig { return b.cfg }

func (b *Builder) State() State { return b.state }

func (b *Builder) transition(s State, module string) {
	b.state = s
	if module != "" {
		msg.Verbose(b.cfg.Verbose, "state: %s (%s)", s, module)
	} else {
		msg.Verbose(b.cfg.Verbose, "state: %s", s)
	}
}

func (b *Builder) fail(err error) error {
	b.state = StateFailed
	return err
}

// Steps is the fixed stage sequence of a run, in manifest order. A module
// with a metaprogram compiles it, reflects the target with it, then
// compiles the target.
func (b *Builder) Steps() []Step {
	var steps []Step
	for i := range b.manifest.Modules {
		mod := &b.manifest.Modules[i]
		if mod.Metaprogram != nil {
			steps = append(steps,
				Step{Kind: StepCompileMetaprogram, Module: mod.Name, Task: mod.Metaprogram},
				Step{Kind: StepReflect, Module: mod.Name, Task: &mod.Task, Meta: mod.Metaprogram},
			)
		}
		// deferred sources join the task only here, after the reflect step
		steps = append(steps, Step{Kind: StepCompile, Module: mod.Name, Task: &mod.Task})
	}
	return steps
}

func (b *Builder) invocation(s Step) (runner.Command, error) {
	if s.Kind == StepReflect {
		return b.reflector.Invocation(s.Task, s.Meta)
	}
	return b.compiler.Invocation(s.Task)
}

// Plan returns every step with its command without touching the filesystem
func (b *Builder) Plan() ([]PlannedStep, error) {
	steps := b.Steps()
	planned := make([]PlannedStep, 0, len(steps))
	for _, s := range steps {
		cmd, err := b.invocation(s)
		if err != nil {
			return nil, fmt.Errorf("module %s: %s: %w", s.Module, s.Kind, err)
		}
		planned = append(planned, PlannedStep{Step: s, Command: cmd})
	}
	return planned, nil
}

func (b *Builder) runStep(ctx context.Context, s Step) error {
	var err error
	switch s.Kind {
	case StepReflect:
		_, err = b.reflector.Reflect(ctx, s.Task, s.Meta)
	case StepCompileMetaprogram, StepCompile:
		_, err = b.compiler.Compile(ctx, s.Task)
	default:
		err = fmt.Errorf("unknown step kind %s", s.Kind)
	}
	return err
}

// Build runs the whole pipeline. The first failing step ends the run; the
// staging directory is left as it is and wiped by the next run.
func (b *Builder) Build(ctx context.Context) error {
	start := time.Now()
	b.transition(StateInit, "")

	version := b.cfg.Version
	if version == "" {
		version = "unknown"
	}
	msg.Info("building %s (%s, version: %s)", b.cfg.Product, b.cfg.Mode, version)

	if err := PrepareDirectories(b.cfg); err != nil {
		return b.fail(err)
	}
	b.transition(StateDirectoriesReady, "")

	modules := make([]string, 0, len(b.manifest.Modules))
	for _, mod := range b.manifest.Modules {
		modules = append(modules, mod.Name)
	}
	rec, err := writeRunRecord(b.cfg, modules, start)
	if err != nil {
		return b.fail(fmt.Errorf("write run record: %w", err))
	}
	msg.Verbose(b.cfg.Verbose, "run %s", rec.ID)

	for _, s := range b.Steps() {
		if err := ctx.Err(); err != nil {
			return b.fail(err)
		}
		if err := b.runStep(ctx, s); err != nil {
			return b.fail(fmt.Errorf("module %s: %w", s.Module, err))
		}
		b.transition(s.done(), s.Module)
	}

	written, err := CollectArtifacts(ctx, b.cfg, b.manifest.Artifacts)
	if err != nil {
		return b.fail(fmt.Errorf("collect artifacts: %w", err))
	}
	b.transition(StateArtifactsCollected, "")
	msg.Verbose(b.cfg.Verbose, "collected %d artifacts into %s", len(written), b.cfg.Paths.Output)

	b.transition(StateDone, "")
	msg.Info("build finished in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

// IsStageFailure reports whether err came from an external tool exiting non-zero
func IsStageFailure(err error) bool {
	var stageErr *stage.Error
	return errors.As(err, &stageErr)
}
