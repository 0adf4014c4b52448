// rbuild [path], rbuild build [path]
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/qobs-build/rbuild/internal/builder"
	"github.com/qobs-build/rbuild/internal/msg"
	"github.com/qobs-build/rbuild/internal/task"
)

var (
	flagManifest string
	flagTimeout  time.Duration
	flagVerbose  bool
	flagMode     = NewModeValue(task.Debug)
)

func targetDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

func loadBuilder(args []string) *builder.Builder {
	b, err := builder.NewBuilderInDirectory(targetDir(args), builder.Options{
		Mode:     flagMode.Mode(),
		Manifest: flagManifest,
		Timeout:  flagTimeout,
		Verbose:  flagVerbose,
	}, nil)
	if err != nil {
		msg.Fatal("%v", err)
	}
	return b
}

func doBuild(cmd *cobra.Command, args []string) {
	b := loadBuilder(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := b.Build(ctx); err != nil {
		stop()
		msg.Fatal("%s", failureMessage(err))
	}
}

// failureMessage tells a tool exiting non-zero apart from every other failure
func failureMessage(err error) string {
	if builder.IsStageFailure(err) {
		return fmt.Sprintf("build failed: %v", err)
	}
	return fmt.Sprintf("build aborted: %v", err)
}

var rootCmd = &cobra.Command{
	Use:   "rbuild [target path]",
	Short: "Staged native build with a reflection pass",
	Long: `Builds the modules declared in Build.toml in order. A module with a
metaprogram is compiled in three steps: the metaprogram DLL, the reflect
scanner run with it, then the module itself.`,
	Args: cobra.MaximumNArgs(1),
	Run:  doBuild,
}

var buildCmd = &cobra.Command{
	Use:   "build [target path]",
	Short: "Build the product",
	Long:  `Build the product. If no target path is given, uses "."`,
	Args:  cobra.MaximumNArgs(1),
	Run:   doBuild,
}

func init() {
	addBuildFlags(rootCmd)

	// rbuild build subcommand
	rootCmd.AddCommand(buildCmd)
	addBuildFlags(buildCmd)
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().VarP(&flagMode, "mode", "m", "Build mode, one of "+flagMode.HelpString())
	cmd.RegisterFlagCompletionFunc("mode", flagMode.CompletionFunc())
	cmd.Flags().StringVarP(&flagManifest, "manifest", "f", "", "Manifest to use instead of "+builder.ManifestFilename)
	cmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "Kill any compiler or scanner running longer than this (0 waits forever)")
	cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Print every command line")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
