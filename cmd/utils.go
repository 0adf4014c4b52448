package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qobs-build/rbuild/internal/task"
)

type modeChoice struct {
	mode task.BuildMode
	help string
}

// ModeValue is a pflag.Value holding a build mode
type ModeValue struct {
	mode    task.BuildMode
	choices []modeChoice
}

func NewModeValue(def task.BuildMode) ModeValue {
	return ModeValue{
		mode: def,
		choices: []modeChoice{
			{task.Debug, "Unoptimized build with debug runtime"},
			{task.Release, "Optimized build with link-time code generation"},
		},
	}
}

func (v *ModeValue) String() string       { return strings.ToLower(v.mode.String()) }
func (v *ModeValue) Type() string         { return "mode" }
func (v *ModeValue) Mode() task.BuildMode { return v.mode }
func (v *ModeValue) HelpString() string   { return "[" + strings.Join(v.names(), ", ") + "]" }

func (v *ModeValue) Set(s string) error {
	mode, err := task.ParseBuildMode(s)
	if err != nil {
		return fmt.Errorf("must be one of: %s", strings.Join(v.names(), ", "))
	}
	v.mode = mode
	return nil
}

func (v *ModeValue) names() []string {
	names := make([]string, 0, len(v.choices))
	for _, c := range v.choices {
		names = append(names, strings.ToLower(c.mode.String()))
	}
	return names
}

func (v *ModeValue) CompletionFunc() func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		items := make([]string, 0, len(v.choices))
		for _, c := range v.choices {
			items = append(items, fmt.Sprintf("%s\t%s", strings.ToLower(c.mode.String()), c.help))
		}
		return items, cobra.ShellCompDirectiveNoFileComp
	}
}
