// rbuild init [name]
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/qobs-build/rbuild/internal/builder"
	"github.com/qobs-build/rbuild/internal/msg"
)

func writefile(content string, elem ...string) {
	path := filepath.Join(elem...)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err = os.WriteFile(path, []byte(content), 0o644); err != nil {
			msg.Fatal("create file %s: %v", path, err)
		}
		fmt.Printf("%s file: %s\n", color.HiGreenString("Created"), filepath.ToSlash(path))
	} else {
		msg.Warn("%s already exists, leaving it alone", filepath.ToSlash(path))
	}
}

func mkdir(elem ...string) {
	path := filepath.Join(elem...)
	if err := os.MkdirAll(path, 0o755); err != nil {
		msg.Fatal("mkdir %s: %v", path, err)
	}
}

func getProgramName() string {
	if len(os.Args) == 0 {
		return "rbuild"
	}
	basename := filepath.Base(os.Args[0])
	return strings.TrimSuffix(basename, filepath.Ext(basename))
}

func starterManifest(name string, reflected bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `[package]
name = "%s"

[reflect]
scanner = "reflect/build/scan.exe"
include = "reflect/src/runtime/"

[[module]]
result = "%s"
lang = "c"
kind = "exe"
sources = ["src/main.c"]
defines = ["VERSION=\"{{ version }}\""]

[module.'mode == "Release"']
defines = ["NDEBUG"]
`, name, name)

	if reflected {
		sb.WriteString(`
[module.metaprogram]
result = "Metaprogram"
lang = "c++"
kind = "dll"
export = "Metaprogram"
include = ["reflect/src"]
sources = ["src/metaprogram/Metaprogram.cpp"]
`)
	}

	fmt.Fprintf(&sb, `
[artifacts]
optional = ["%s.exe", "%s.pdb"]
`, name, name)
	return sb.String()
}

// initIn writes a starter project into an existing directory
func initIn(dir, name string, reflected, summer bool) {
	if summer {
		writefile(string(builder.DefaultManifest), dir, builder.ManifestFilename)
	} else {
		writefile(starterManifest(name, reflected), dir, builder.ManifestFilename)

		mkdir(dir, "src")
		writefile(`#include <stdio.h>

int main(void) {
    puts("Hello, World!");
    return 0;
}
`, dir, "src", "main.c")
	}

	writefile(`build/
vc140.pdb
`, dir, ".gitignore")

	programName := getProgramName()
	fmt.Printf("You can now do %s to build, or %s to see what would run.\n", color.HiCyanString(programName+" "+dir), color.HiCyanString(programName+" plan "+dir))
}

var (
	initReflected bool
	initSummer    bool
)

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Create a Build.toml in the current directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		initIn(".", args[0], initReflected, initSummer)
	},
}

var newCmd = &cobra.Command{
	Use:   "new [path]",
	Short: "Create a new project in a new directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mkdir(args[0])
		initIn(args[0], filepath.Base(args[0]), initReflected, initSummer)
	},
}

func init() {
	for _, c := range []*cobra.Command{initCmd, newCmd} {
		rootCmd.AddCommand(c)
		c.Flags().BoolVarP(&initReflected, "reflect", "r", false, "Add a metaprogram to the module")
		c.Flags().BoolVar(&initSummer, "summer", false, "Write the full SummerGame manifest instead")
	}
}
