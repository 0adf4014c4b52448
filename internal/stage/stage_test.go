package stage

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/qobs-build/rbuild/internal/msg"
	"github.com/qobs-build/rbuild/internal/runner"
	"github.com/qobs-build/rbuild/internal/runner/runnertest"
	"github.com/qobs-build/rbuild/internal/task"
)

func quiet(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev, prevNoColor := msg.Output, color.NoColor
	msg.Output, color.NoColor = &buf, true
	t.Cleanup(func() { msg.Output, color.NoColor = prev, prevNoColor })
	return &buf
}

func newCompiler(mode task.BuildMode, r runner.Runner) *Compiler {
	return &Compiler{
		Command:   "cl",
		Mode:      mode,
		ObjectDir: "build/temp/obj",
		OutputDir: "build/temp",
		Runner:    r,
	}
}

func indexOf(t *testing.T, args []string, tok string) int {
	t.Helper()
	i := slices.Index(args, tok)
	require.NotEqual(t, -1, i, "token %q missing from %q", tok, args)
	return i
}

func TestCompileArgsDebugDLL(t *testing.T) {
	c := newCompiler(task.Debug, nil)
	tk := &task.Task{
		Language:   task.C,
		Kind:       task.DynamicLibrary,
		Sources:    []string{"src/widget.c"},
		ResultName: "Widget",
	}
	args, err := c.Args(tk)
	require.NoError(t, err)

	want := []string{
		"/MP", "/W3", "/Gm-", "/GR-", "/fp:fast", "/EHsc", "/nologo", "/diagnostics:classic", "/WX",
		"/Zi", "/Od", "/MTd",
		"/std:c17",
		"/Zc:preprocessor", "/arch:AVX",
		"/Fobuild/temp/obj/",
		"src/widget.c",
		"/link",
		"/INCREMENTAL:NO", "/OPT:REF", "/MACHINE:X64",
		"/DLL",
		"/OUT:" + filepath.Join("build/temp", "Widget.dll"),
		"/PDB:" + filepath.Join("build/temp", "Widget.pdb"),
	}
	require.Equal(t, want, args)
	require.NotContains(t, args, "/GL")
}

func TestCompileArgsReleaseExecutable(t *testing.T) {
	c := newCompiler(task.Release, nil)
	tk := &task.Task{
		Language:       task.Cpp,
		Kind:           task.Executable,
		Sources:        []string{"main.cpp"},
		Libs:           []string{"user32.lib", "lib/x64__SDL2.lib"},
		ResultName:     "Game",
		ExportedSymbol: "Entry",
	}
	args, err := c.Args(tk)
	require.NoError(t, err)

	require.Equal(t, []string{"/O2", "/GL", "/MT", "/Zi"}, args[9:13])
	require.Contains(t, args, "/std:c++20")
	require.NotContains(t, args, "/DLL")
	require.NotContains(t, args, "/Od")

	link := indexOf(t, args, "/link")
	require.Equal(t, []string{"user32.lib", "lib/x64__SDL2.lib"}, args[link+4:link+6])
	require.Equal(t, "/EXPORT:Entry", args[link+6])
	require.Equal(t, "/OUT:"+filepath.Join("build/temp", "Game.exe"), args[link+7])
}

func TestCompileArgsPreserveOrder(t *testing.T) {
	c := newCompiler(task.Debug, nil)
	tk := &task.Task{
		Sources:     []string{"z.c", "a.c", "m.c", "a.c"},
		IncludeDirs: []string{"inc/z", "inc/a"},
		Defines:     []string{"B=1", "A"},
		ResultName:  "Order",
	}
	args, err := c.Args(tk)
	require.NoError(t, err)

	require.Less(t, indexOf(t, args, "/Iinc/z"), indexOf(t, args, "/Iinc/a"))
	require.Less(t, indexOf(t, args, "/DB=1"), indexOf(t, args, "/DA"))
	// defines, then include dirs, then sources
	require.Less(t, indexOf(t, args, "/DA"), indexOf(t, args, "/Iinc/z"))

	first := indexOf(t, args, "z.c")
	require.Equal(t, []string{"z.c", "a.c", "m.c", "a.c"}, args[first:first+4])
}

func TestCompileArgsEmptyGroups(t *testing.T) {
	c := newCompiler(task.Debug, nil)
	tk := &task.Task{Sources: []string{"a.c"}, ResultName: "Bare"}
	args, err := c.Args(tk)
	require.NoError(t, err)
	for _, a := range args {
		require.NotEqual(t, "/D", a)
		require.NotEqual(t, "/I", a)
		require.NotEmpty(t, a)
	}
	link := indexOf(t, args, "/link")
	// nothing between the fixed link switches and /OUT for an exe without libs
	require.True(t, len(args[link+4]) > 5 && args[link+4][:5] == "/OUT:")
}

func TestCompileArgsDeferredSourcesLast(t *testing.T) {
	c := newCompiler(task.Debug, nil)
	tk := &task.Task{
		Sources:    []string{"entry.cpp"},
		Deferred:   []string{"platform.cpp"},
		ResultName: "Core",
	}
	args, err := c.Args(tk)
	require.NoError(t, err)
	require.Equal(t, indexOf(t, args, "entry.cpp")+1, indexOf(t, args, "platform.cpp"))
}

func TestCompileSwitchPrefix(t *testing.T) {
	c := newCompiler(task.Debug, nil)
	c.SwitchPrefix = "-"
	c.ObjectDir = "/abs/obj"
	tk := &task.Task{Sources: []string{"/abs/src/a.c"}, IncludeDirs: []string{"/abs/inc"}, ResultName: "X"}
	args, err := c.Args(tk)
	require.NoError(t, err)
	require.Equal(t, "-MP", args[0])
	require.Contains(t, args, "-link")
	require.Contains(t, args, "-Fo/abs/obj/")
	// paths keep their slashes
	require.Contains(t, args, "/abs/src/a.c")
	require.Contains(t, args, "-I/abs/inc")
}

func TestCompileNoSources(t *testing.T) {
	rec := &runnertest.Recorder{}
	c := newCompiler(task.Debug, rec)
	_, err := c.Compile(context.Background(), &task.Task{ResultName: "Empty"})
	require.ErrorIs(t, err, ErrNoSources)
	require.Zero(t, rec.Calls())
}

func TestCompileInvalidMode(t *testing.T) {
	c := newCompiler(task.BuildMode(42), nil)
	_, err := c.Args(&task.Task{Sources: []string{"a.c"}})
	require.ErrorIs(t, err, task.ErrInvalidBuildMode)
}

func TestCompileRunsOnce(t *testing.T) {
	out := quiet(t)
	rec := &runnertest.Recorder{}
	c := newCompiler(task.Debug, rec)
	c.Dir = "/project"
	_, err := c.Compile(context.Background(), &task.Task{Kind: task.DynamicLibrary, Sources: []string{"a.c"}, ResultName: "ImGui"})
	require.NoError(t, err)

	cmds := rec.Commands()
	require.Len(t, cmds, 1)
	require.Equal(t, "cl", cmds[0].Name)
	require.Equal(t, "/project", cmds[0].Dir)
	require.Contains(t, out.String(), "[Done...] Building DLL ImGui")
}

func TestCompileFailure(t *testing.T) {
	out := quiet(t)
	rec := &runnertest.Recorder{FailOn: 1, FailCode: 2}
	c := newCompiler(task.Debug, rec)
	_, err := c.Compile(context.Background(), &task.Task{Sources: []string{"a.c"}, ResultName: "Game"})

	var stageErr *Error
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, 2, stageErr.ExitCode)
	require.Equal(t, "compile", stageErr.Stage)
	require.Equal(t, "Game", stageErr.Task)
	require.Contains(t, out.String(), "[Failed!] Building Executable Game")
	require.Contains(t, out.String(), "    simulated failure")
}

func TestCompileFailureVerboseDoesNotRepeatOutput(t *testing.T) {
	out := quiet(t)
	rec := &runnertest.Recorder{FailOn: 1}
	c := newCompiler(task.Debug, rec)
	c.Verbose = true
	_, err := c.Compile(context.Background(), &task.Task{Sources: []string{"a.c"}, ResultName: "Game"})

	var stageErr *Error
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, "simulated failure\n", string(stageErr.Output))
	require.Contains(t, out.String(), "[Failed!] Building Executable Game")
	require.NotContains(t, out.String(), "simulated failure")
}

func TestCompileRunnerError(t *testing.T) {
	quiet(t)
	boom := errors.New("not found")
	r := runner.Func(func(ctx context.Context, cmd runner.Command) (runner.Result, error) {
		return runner.Result{ExitCode: -1}, boom
	})
	c := newCompiler(task.Debug, r)
	_, err := c.Compile(context.Background(), &task.Task{Sources: []string{"a.c"}, ResultName: "Game"})
	require.ErrorIs(t, err, boom)
}

func newReflector(r runner.Runner) *Reflector {
	return &Reflector{
		ScanPath:   "reflect/build/scan.exe",
		IncludeDir: "reflect/src/runtime/",
		BuildDir:   "build/temp",
		Runner:     r,
	}
}

func TestReflectArgs(t *testing.T) {
	target := &task.Task{
		Language:    task.C,
		Sources:     []string{"src/GameEntry.c"},
		Deferred:    []string{"src/never_scanned.c"},
		Defines:     []string{"PLATFORM_WINDOWS", "UNICODE"},
		IncludeDirs: []string{"ext/cimgui/", "ext/"},
		ResultName:  "Game",
	}
	meta := &task.Task{ResultName: "Metaprogram", ExportedSymbol: "Metaprogram"}

	args, err := newReflector(nil).Args(target, meta)
	require.NoError(t, err)
	want := []string{
		"-m", filepath.Join("build/temp", "Metaprogram.dll"),
		"-p", "Metaprogram",
		"-a",
		"-x", "c",
		"-DMETA_PASS",
		"-std=c11",
		"-Ireflect/src/runtime/",
		"-Iext/cimgui/", "-Iext/",
		"-DPLATFORM_WINDOWS", "-DUNICODE",
		"src/GameEntry.c",
	}
	require.Equal(t, want, args)
}

func TestReflectArgsCpp(t *testing.T) {
	target := &task.Task{Language: task.Cpp, Sources: []string{"a.cpp"}}
	meta := &task.Task{ResultName: "M", ExportedSymbol: "Metaprogram"}
	args, err := newReflector(nil).Args(target, meta)
	require.NoError(t, err)
	require.Contains(t, args, "c++")
	require.Contains(t, args, "-std=c++11")
}

func TestReflectNeedsEntryPoint(t *testing.T) {
	rec := &runnertest.Recorder{}
	_, err := newReflector(rec).Reflect(context.Background(), &task.Task{}, &task.Task{ResultName: "M"})
	require.ErrorIs(t, err, ErrNoEntryPoint)
	require.Zero(t, rec.Calls())
}

func TestReflectFailure(t *testing.T) {
	out := quiet(t)
	rec := &runnertest.Recorder{FailOn: 1}
	target := &task.Task{Sources: []string{"a.c"}, ResultName: "Game"}
	meta := &task.Task{ResultName: "M", ExportedSymbol: "Metaprogram"}
	_, err := newReflector(rec).Reflect(context.Background(), target, meta)

	var stageErr *Error
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, "reflect", stageErr.Stage)
	require.Contains(t, out.String(), "[Failed!] Running Reflect on Game")
	require.Equal(t, "reflect/build/scan.exe", rec.Commands()[0].Name)
}
