// Package runs implements the benchrun runs command group, which queries
// the results store.
package runs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/benchrun/benchrun/internal/cli/helpers"
	"github.com/benchrun/benchrun/internal/constants"
	ierrors "github.com/benchrun/benchrun/internal/errors"
	"github.com/benchrun/benchrun/internal/store"
)

var tabularFormats = []helpers.OutputFormat{helpers.FormatTable, helpers.FormatJSON, helpers.FormatCSV}

type runRow struct {
	JobID          string    `header:"JOB" json:"job_id"`
	Timestamp      time.Time `header:"TIMESTAMP" json:"timestamp"`
	Status         string    `header:"STATUS" json:"status"`
	Hostname       string    `header:"HOST" json:"hostname"`
	ElapsedSeconds float64   `header:"ELAPSED(S)" json:"elapsed_seconds"`
	TotalSamples   int64     `header:"SAMPLES" json:"total_samples"`
	Operations     int       `header:"OPS" json:"operations"`
}

type hotPathRow struct {
	Label   string `header:"FRAME" json:"label"`
	Base    int64  `header:"BASE" json:"base"`
	Current int64  `header:"CURRENT" json:"current"`
	Delta   int64  `header:"DELTA" json:"delta"`
}

// NewRunsCmd creates the 'runs' command group.
func NewRunsCmd(g *helpers.GlobalFlags) *cobra.Command {
	var storePath string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Query stored benchmark runs",
		Long: `Query the DuckDB results store written by 'benchrun run --store'.

Examples:
  benchrun runs list --limit 5
  benchrun runs show bench-20250101-120000-a1b2c3
  benchrun runs flamegraph bench-20250101-120000-a1b2c3 --min-percent 1
  benchrun runs compare <base-job> <current-job>`,
	}
	cmd.PersistentFlags().StringVar(&storePath, "store-path", "", "Results store path (default from config)")

	open := func(cmd *cobra.Command) (*store.Store, func(), error) {
		cfg, err := helpers.LoadConfig(g)
		if err != nil {
			return nil, nil, err
		}
		if cmd.Flags().Changed("store-path") {
			cfg.Store.Path = storePath
		}
		logger := helpers.NewLogger(cfg)
		s, err := store.Open(cfg.Store.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { ierrors.DeferClose(logger, s, "failed to close results store") }, nil
	}

	cmd.AddCommand(newListCmd(open))
	cmd.AddCommand(newShowCmd(open))
	cmd.AddCommand(newFlamegraphCmd(open))
	cmd.AddCommand(newCompareCmd(open))
	return cmd
}

type opener func(cmd *cobra.Command) (*store.Store, func(), error)

func newListCmd(open opener) *cobra.Command {
	var (
		limit  int
		format string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, tabularFormats); err != nil {
				return err
			}
			s, closeFn, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			summaries, err := s.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(summaries) == 0 && format == string(helpers.FormatTable) {
				cmd.Println("No runs found.")
				return nil
			}
			rows := make([]runRow, 0, len(summaries))
			for _, r := range summaries {
				rows = append(rows, runRow(r))
			}
			f, err := helpers.NewFormatter(helpers.OutputFormat(format))
			if err != nil {
				return err
			}
			return f.Format(rows, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", constants.DefaultListLimit, "Maximum number of runs (0 = all)")
	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, tabularFormats)
	return cmd
}

func newShowCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Print the stored report of a run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			rep, err := s.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
}

func newFlamegraphCmd(open opener) *cobra.Command {
	var (
		minPercent float64
		maxDepth   int
	)
	cmd := &cobra.Command{
		Use:   "flamegraph <job-id>",
		Short: "Print the stored call tree of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := ensureRun(cmd.Context(), s, args[0]); err != nil {
				return err
			}
			rows, err := s.FlamegraphRows(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return helpers.RenderTree(cmd.OutOrStdout(), rows, minPercent, maxDepth)
		},
	}
	cmd.Flags().Float64Var(&minPercent, "min-percent", 0.5, "Hide frames below this share of total")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Maximum depth to print (0 = unlimited)")
	return cmd
}

func newCompareCmd(open opener) *cobra.Command {
	var (
		limit  int
		format string
	)
	cmd := &cobra.Command{
		Use:   "compare <base-job> <current-job>",
		Short: "Show frames whose self samples changed between two runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, tabularFormats); err != nil {
				return err
			}
			s, closeFn, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			for _, id := range args {
				if err := ensureRun(cmd.Context(), s, id); err != nil {
					return err
				}
			}
			paths, err := s.CompareSelf(cmd.Context(), args[0], args[1], limit)
			if err != nil {
				return err
			}
			if len(paths) == 0 && format == string(helpers.FormatTable) {
				cmd.Println("No differences.")
				return nil
			}
			rows := make([]hotPathRow, 0, len(paths))
			for _, p := range paths {
				rows = append(rows, hotPathRow{Label: p.Label, Base: p.Base, Current: p.Current, Delta: p.Current - p.Base})
			}
			f, err := helpers.NewFormatter(helpers.OutputFormat(format))
			if err != nil {
				return err
			}
			return f.Format(rows, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", constants.DefaultListLimit, "Maximum number of frames")
	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, tabularFormats)
	return cmd
}

func ensureRun(ctx context.Context, s *store.Store, jobID string) error {
	if _, err := s.GetRun(ctx, jobID); err != nil {
		return fmt.Errorf("%s: %w", jobID, err)
	}
	return nil
}
