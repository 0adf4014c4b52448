// Package task describes a single compilation unit and the enums that select
// how it is compiled.
package task

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrInvalidBuildMode  = errors.New("invalid build mode")
	ErrInvalidLanguage   = errors.New("invalid language")
	ErrInvalidOutputKind = errors.New("invalid output kind")
)

type BuildMode int

const (
	Debug BuildMode = iota
	Release
)

func (m BuildMode) String() string {
	switch m {
	case Debug:
		return "Debug"
	case Release:
		return "Release"
	default:
		return fmt.Sprintf("BuildMode(%d)", int(m))
	}
}

// ParseBuildMode accepts "debug" or "release" in any case
func ParseBuildMode(s string) (BuildMode, error) {
	switch strings.ToLower(s) {
	case "debug":
		return Debug, nil
	case "release":
		return Release, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidBuildMode, s)
}

func (m *BuildMode) UnmarshalText(text []byte) error {
	v, err := ParseBuildMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

type Language int

const (
	C Language = iota
	Cpp
)

func (l Language) String() string {
	switch l {
	case C:
		return "C"
	case Cpp:
		return "C++"
	default:
		return fmt.Sprintf("Language(%d)", int(l))
	}
}

// Dialect is the value of the compiler's language standard switch
func (l Language) Dialect() (string, error) {
	switch l {
	case C:
		return "c17", nil
	case Cpp:
		return "c++20", nil
	}
	return "", fmt.Errorf("%w: %d", ErrInvalidLanguage, int(l))
}

// ScanDialect is the standard the reflect scanner parses sources with
func (l Language) ScanDialect() (string, error) {
	switch l {
	case C:
		return "c11", nil
	case Cpp:
		return "c++11", nil
	}
	return "", fmt.Errorf("%w: %d", ErrInvalidLanguage, int(l))
}

// ScanLanguage is the value of the scanner's -x switch
func (l Language) ScanLanguage() (string, error) {
	switch l {
	case C:
		return "c", nil
	case Cpp:
		return "c++", nil
	}
	return "", fmt.Errorf("%w: %d", ErrInvalidLanguage, int(l))
}

func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(s) {
	case "c":
		return C, nil
	case "c++", "cpp", "cxx":
		return Cpp, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidLanguage, s)
}

func (l *Language) UnmarshalText(text []byte) error {
	v, err := ParseLanguage(string(text))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

type OutputKind int

const (
	Executable OutputKind = iota
	DynamicLibrary
)

func (k OutputKind) String() string {
	switch k {
	case Executable:
		return "Executable"
	case DynamicLibrary:
		return "DLL"
	default:
		return fmt.Sprintf("OutputKind(%d)", int(k))
	}
}

// Extension returns the artifact extension without the leading dot
func (k OutputKind) Extension() (string, error) {
	switch k {
	case Executable:
		return "exe", nil
	case DynamicLibrary:
		return "dll", nil
	}
	return "", fmt.Errorf("%w: %d", ErrInvalidOutputKind, int(k))
}

func ParseOutputKind(s string) (OutputKind, error) {
	switch strings.ToLower(s) {
	case "exe", "executable":
		return Executable, nil
	case "dll", "dylib", "shared", "dynamic":
		return DynamicLibrary, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidOutputKind, s)
}

func (k *OutputKind) UnmarshalText(text []byte) error {
	v, err := ParseOutputKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Task is everything needed to compile and link one module. It performs no
// validation; the stage that consumes it reports what is missing.
type Task struct {
	Language    Language   `toml:"lang"`
	Kind        OutputKind `toml:"kind"`
	Sources     []string   `toml:"sources"`
	Defines     []string   `toml:"defines"`
	IncludeDirs []string   `toml:"include"`
	Libs        []string   `toml:"libs"`
	ResultName  string     `toml:"result"`

	// ExportedSymbol is forced into the export table of a DLL, for modules
	// that are loaded and called by name.
	ExportedSymbol string `toml:"export"`

	// Deferred sources are compiled with the task but never handed to the
	// reflect scanner.
	Deferred []string `toml:"deferred"`
}

// ScanSources are the sources the reflect scanner sees
func (t *Task) ScanSources() []string {
	return t.Sources
}

// CompileSources are the sources handed to the compiler: Sources, then Deferred
func (t *Task) CompileSources() []string {
	if len(t.Deferred) == 0 {
		return t.Sources
	}
	return slices.Concat(t.Sources, t.Deferred)
}

// DebugSymbols is the file name of the task's .pdb
func (t *Task) DebugSymbols() string {
	return t.ResultName + ".pdb"
}

// Artifact is the file name of the linked result
func (t *Task) Artifact() (string, error) {
	ext, err := t.Kind.Extension()
	if err != nil {
		return "", err
	}
	return t.ResultName + "." + ext, nil
}
