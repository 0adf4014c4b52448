package stage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/qobs-build/rbuild/internal/runner"
	"github.com/qobs-build/rbuild/internal/task"
)

// DefaultSwitchPrefix is the MSVC switch convention; clang-cl also takes "-"
const DefaultSwitchPrefix = "/"

var (
	generalSwitches = []string{"MP", "W3", "Gm-", "GR-", "fp:fast", "EHsc", "nologo", "diagnostics:classic", "WX"}
	debugSwitches   = []string{"Zi", "Od", "MTd"}
	releaseSwitches = []string{"O2", "GL", "MT", "Zi"}
	targetSwitches  = []string{"Zc:preprocessor", "arch:AVX"}
	linkSwitches    = []string{"INCREMENTAL:NO", "OPT:REF", "MACHINE:X64"}
)

// Compiler is the compile and link stage. One Compiler serves a whole run.
type Compiler struct {
	Command string
	// SwitchPrefix is put in front of every switch, never in front of paths.
	SwitchPrefix string
	Mode         task.BuildMode
	ObjectDir    string
	OutputDir    string
	// Dir is the working directory of the compiler process.
	Dir     string
	Runner  runner.Runner
	Verbose bool
}

func (c *Compiler) prefix() string {
	if c.SwitchPrefix == "" {
		return DefaultSwitchPrefix
	}
	return c.SwitchPrefix
}

func (c *Compiler) switches(names ...string) []string {
	return prefixEach(c.prefix(), names)
}

// optimizationSwitches maps the build mode; anything else is a configuration error
func (c *Compiler) optimizationSwitches() ([]string, error) {
	switch c.Mode {
	case task.Debug:
		return c.switches(debugSwitches...), nil
	case task.Release:
		return c.switches(releaseSwitches...), nil
	}
	return nil, fmt.Errorf("%w: %s", task.ErrInvalidBuildMode, c.Mode)
}

// Args assembles the compile tokens, the link separator and the link tokens
func (c *Compiler) Args(t *task.Task) ([]string, error) {
	sources := t.CompileSources()
	if len(sources) == 0 {
		return nil, fmt.Errorf("%s: %w", t.ResultName, ErrNoSources)
	}
	opt, err := c.optimizationSwitches()
	if err != nil {
		return nil, err
	}
	dialect, err := t.Language.Dialect()
	if err != nil {
		return nil, err
	}
	artifact, err := t.Artifact()
	if err != nil {
		return nil, err
	}

	p := c.prefix()
	var args []string
	args = append(args, c.switches(generalSwitches...)...)
	args = append(args, opt...)
	args = append(args, p+"std:"+dialect)
	args = append(args, c.switches(targetSwitches...)...)
	// a trailing separator makes /Fo name a directory
	args = append(args, p+"Fo"+c.ObjectDir+"/")
	args = append(args, prefixEach(p+"D", t.Defines)...)
	args = append(args, prefixEach(p+"I", t.IncludeDirs)...)
	args = append(args, sources...)

	args = append(args, p+"link")
	args = append(args, c.switches(linkSwitches...)...)
	args = append(args, t.Libs...)
	if t.Kind == task.DynamicLibrary {
		args = append(args, p+"DLL")
	}
	if t.ExportedSymbol != "" {
		args = append(args, p+"EXPORT:"+t.ExportedSymbol)
	}
	args = append(args, p+"OUT:"+filepath.Join(c.OutputDir, artifact))
	args = append(args, p+"PDB:"+filepath.Join(c.OutputDir, t.DebugSymbols()))
	return args, nil
}

func (c *Compiler) Invocation(t *task.Task) (runner.Command, error) {
	args, err := c.Args(t)
	if err != nil {
		return runner.Command{}, err
	}
	return runner.Command{Name: c.Command, Args: args, Dir: c.Dir}, nil
}

// Compile builds and links t. Any non-zero exit is returned as *Error.
func (c *Compiler) Compile(ctx context.Context, t *task.Task) (runner.Result, error) {
	cmd, err := c.Invocation(t)
	if err != nil {
		return runner.Result{}, err
	}
	label := fmt.Sprintf("Building %s %s", t.Kind, t.ResultName)
	return run(ctx, c.Runner, cmd, label, "compile", t.ResultName, c.Verbose)
}
