// Package flamegraph implements the benchrun flamegraph command, which
// aggregates a collapsed-stack file offline.
package flamegraph

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/benchrun/benchrun/internal/cli/helpers"
	"github.com/benchrun/benchrun/internal/flamegraph"
	"github.com/benchrun/benchrun/internal/safe"
)

// Output formats.
const (
	FormatNested = "nested"
	FormatFolded = "folded"
	FormatPprof  = "pprof"
	FormatTree   = "tree"
)

var formats = []string{FormatNested, FormatFolded, FormatPprof, FormatTree}

// NewFlamegraphCmd creates the 'flamegraph' command.
func NewFlamegraphCmd() *cobra.Command {
	var (
		format     string
		out        string
		minPercent float64
		maxDepth   int
		sampleType string
	)

	cmd := &cobra.Command{
		Use:   "flamegraph <collapsed-file>",
		Short: "Aggregate collapsed stacks into a flame graph table",
		Long: `Read collapsed stacks (one "frame;frame;frame count" per line) and
aggregate them into a weighted call tree.

Formats:
  nested  level,value,self,label rows in pre-order (default)
  folded  canonical collapsed stacks, merged and sorted
  pprof   gzipped pprof profile for 'go tool pprof'
  tree    indented call tree for the terminal

Use "-" to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, stats, err := readSamples(cmd, args[0])
			if err != nil {
				return err
			}
			if stats.Malformed > 0 {
				cmd.PrintErrf("Skipped %d malformed line(s)\n", stats.Malformed)
			}

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out) // #nosec G304 -- user-supplied output path
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				defer safe.Close(f, zerolog.Nop(), "failed to close output")
				w = f
			}

			return render(w, format, samples, renderOptions{
				minPercent: minPercent,
				maxDepth:   maxDepth,
				sampleType: sampleType,
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", FormatNested, "Output format (nested, folded, pprof, tree)")
	cmd.Flags().StringVar(&out, "out", "", "Write to a file instead of stdout")
	cmd.Flags().Float64Var(&minPercent, "min-percent", 0, "Tree format: hide frames below this share of total")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Tree format: maximum depth to print (0 = unlimited)")
	cmd.Flags().StringVar(&sampleType, "sample-type", "", "Pprof format: sample type name (default samples)")
	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return formats, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func readSamples(cmd *cobra.Command, path string) ([]flamegraph.StackSample, flamegraph.ParseStats, error) {
	if path == "-" {
		return flamegraph.ParseCollapsed(cmd.InOrStdin())
	}
	f, err := safe.Open(path)
	if err != nil {
		return nil, flamegraph.ParseStats{}, fmt.Errorf("failed to open collapsed stacks: %w", err)
	}
	defer safe.Close(f, zerolog.Nop(), "failed to close collapsed stacks")
	return flamegraph.ParseCollapsed(f)
}

type renderOptions struct {
	minPercent float64
	maxDepth   int
	sampleType string
}

func render(w io.Writer, format string, samples []flamegraph.StackSample, opts renderOptions) error {
	switch format {
	case FormatFolded:
		return flamegraph.WriteFolded(w, samples)
	case FormatNested:
		return flamegraph.WriteNestedSet(w, flamegraph.Serialize(flamegraph.BuildTree(samples)))
	case FormatTree:
		return helpers.RenderTree(w, flamegraph.Serialize(flamegraph.BuildTree(samples)), opts.minPercent, opts.maxDepth)
	case FormatPprof:
		po := flamegraph.DefaultProfileOptions()
		if opts.sampleType != "" {
			po.SampleType = opts.sampleType
		}
		return flamegraph.WriteProfile(w, flamegraph.BuildTree(samples), po)
	default:
		return fmt.Errorf("unsupported format %q (valid: %v)", format, formats)
	}
}
