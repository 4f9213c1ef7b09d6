// Package cli wires the benchrun command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/benchrun/benchrun/internal/cli/config"
	"github.com/benchrun/benchrun/internal/cli/flamegraph"
	"github.com/benchrun/benchrun/internal/cli/helpers"
	"github.com/benchrun/benchrun/internal/cli/run"
	"github.com/benchrun/benchrun/internal/cli/runs"
	"github.com/benchrun/benchrun/internal/cli/watch"
	"github.com/benchrun/benchrun/pkg/version"
)

// NewRootCmd builds the benchrun command tree.
func NewRootCmd() *cobra.Command {
	g := &helpers.GlobalFlags{}

	root := &cobra.Command{
		Use:   "benchrun",
		Short: "benchrun - phase-aware benchmark profiling",
		Long: `Run a benchmark workload and profile exactly its steady phase.

benchrun launches the workload, follows the phase log it writes, starts
system collectors and a sampling profiler when WARMUP completes and stops
them when STEADY completes. The profile is aggregated into a flame graph
table and everything lands in one JSON report.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	helpers.AddGlobalFlags(root, g)

	root.AddCommand(run.NewRunCmd(g))
	root.AddCommand(watch.NewWatchCmd(g))
	root.AddCommand(flamegraph.NewFlamegraphCmd())
	root.AddCommand(runs.NewRunsCmd(g))
	root.AddCommand(config.NewConfigCmd(g))
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("benchrun version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
