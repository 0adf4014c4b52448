package builder

import (
	"path/filepath"
	"time"

	"github.com/qobs-build/rbuild/internal/task"
)

// Paths are the directories of one run, relative to RunConfig.Dir unless absolute
type Paths struct {
	Root   string
	Temp   string
	Obj    string
	Output string
}

// RunConfig is built once before a run and never changes during it
type RunConfig struct {
	Dir          string
	Mode         task.BuildMode
	Product      string
	Version      string
	Paths        Paths
	Compiler     string
	SwitchPrefix string
	Scanner      string
	ReflectInc   string
	// Timeout bounds every external process; zero waits forever.
	Timeout time.Duration
	Verbose bool
}

// OutputDirName is <Product>_<Mode>, e.g. SummerGame_Debug
func OutputDirName(product string, mode task.BuildMode) string {
	return product + "_" + mode.String()
}

// NewRunConfig derives the run configuration from a parsed manifest
func NewRunConfig(dir string, mode task.BuildMode, version string, m *Manifest) RunConfig {
	paths := m.Paths
	if paths.Root == "" {
		paths.Root = defaultPaths.Root
	}
	if paths.Temp == "" {
		paths.Temp = filepath.Join(paths.Root, "temp")
	}
	if paths.Obj == "" {
		paths.Obj = filepath.Join(paths.Temp, "obj")
	}

	compiler := m.Toolchain.Compiler
	if compiler == "" {
		compiler = findCompiler()
	}

	return RunConfig{
		Dir:     dir,
		Mode:    mode,
		Product: m.Package.Name,
		Version: version,
		Paths: Paths{
			Root:   paths.Root,
			Temp:   paths.Temp,
			Obj:    paths.Obj,
			Output: filepath.Join(paths.Root, OutputDirName(m.Package.Name, mode)),
		},
		Compiler:     compiler,
		SwitchPrefix: m.Toolchain.SwitchPrefix,
		Scanner:      m.Reflect.Scanner,
		ReflectInc:   m.Reflect.Include,
	}
}

// resolve makes p absolute against the project directory
func (c RunConfig) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Dir, p)
}
