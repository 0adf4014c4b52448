// rbuild plan [path]
package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/qobs-build/rbuild/internal/msg"
)

func doPlan(cmd *cobra.Command, args []string) {
	b := loadBuilder(args)
	plan, err := b.Plan()
	if err != nil {
		msg.Fatal("%v", err)
	}

	cfg := b.Config()
	fmt.Printf("%s %s (%s) in %s\n", color.HiGreenString("Plan for"), cfg.Product, cfg.Mode, cfg.Dir)
	for i, step := range plan {
		fmt.Printf("%2d. %s %s\n", i+1, color.HiCyanString(step.Module), step.Kind)
		fmt.Printf("    %s\n", step.Command)
	}
	fmt.Printf("Artifacts go to %s\n", color.HiCyanString(cfg.Paths.Output))
}

var planCmd = &cobra.Command{
	Use:   "plan [target path]",
	Short: "Print every command a build would run, without running it",
	Args:  cobra.MaximumNArgs(1),
	Run:   doPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
	addBuildFlags(planCmd)
}
