package stage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/qobs-build/rbuild/internal/runner"
	"github.com/qobs-build/rbuild/internal/task"
)

// MetaPassDefine is defined for every scan so headers can hide code the
// scanner cannot parse.
const MetaPassDefine = "META_PASS"

// Reflector runs the external scanner that emits generated code for a target
// into BuildDir, driven by a metaprogram DLL previously linked there.
type Reflector struct {
	ScanPath   string
	IncludeDir string
	BuildDir   string
	Dir        string
	Runner     runner.Runner
	Verbose    bool
}

// MetaprogramPath is where the compile stage left the metaprogram DLL
func (r *Reflector) MetaprogramPath(meta *task.Task) string {
	return filepath.Join(r.BuildDir, meta.ResultName+".dll")
}

func (r *Reflector) Args(target, meta *task.Task) ([]string, error) {
	if meta.ExportedSymbol == "" {
		return nil, fmt.Errorf("%s: %w", meta.ResultName, ErrNoEntryPoint)
	}
	lang, err := target.Language.ScanLanguage()
	if err != nil {
		return nil, err
	}
	dialect, err := target.Language.ScanDialect()
	if err != nil {
		return nil, err
	}

	args := []string{
		"-m", r.MetaprogramPath(meta),
		"-p", meta.ExportedSymbol,
		"-a",
		"-x", lang,
		"-D" + MetaPassDefine,
		"-std=" + dialect,
		"-I" + r.IncludeDir,
	}
	args = append(args, prefixEach("-I", target.IncludeDirs)...)
	args = append(args, prefixEach("-D", target.Defines)...)
	args = append(args, target.ScanSources()...)
	return args, nil
}

func (r *Reflector) Invocation(target, meta *task.Task) (runner.Command, error) {
	args, err := r.Args(target, meta)
	if err != nil {
		return runner.Command{}, err
	}
	return runner.Command{Name: r.ScanPath, Args: args, Dir: r.Dir}, nil
}

// Reflect scans target with meta. Whether the expected files were generated
// is not checked; a missing one fails the next compile.
func (r *Reflector) Reflect(ctx context.Context, target, meta *task.Task) (runner.Result, error) {
	cmd, err := r.Invocation(target, meta)
	if err != nil {
		return runner.Result{}, err
	}
	label := "Running Reflect on " + target.ResultName
	return run(ctx, r.Runner, cmd, label, "reflect", target.ResultName, r.Verbose)
}
