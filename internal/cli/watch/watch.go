// Package watch implements the benchrun watch command, which follows a
// phase log the way a run does and reports phase transitions.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/benchrun/benchrun/internal/cli/helpers"
	"github.com/benchrun/benchrun/internal/phase"
	"github.com/benchrun/benchrun/internal/tail"
)

var supportedFormats = []helpers.OutputFormat{helpers.FormatTable, helpers.FormatJSON, helpers.FormatCSV}

type recordRow struct {
	Phase   string `header:"PHASE" json:"phase"`
	Status  string `header:"STATUS" json:"status"`
	Line    int    `header:"LINE" json:"line"`
	Message string `header:"MESSAGE" json:"message,omitempty"`
}

// NewWatchCmd creates the 'watch' command.
func NewWatchCmd(g *helpers.GlobalFlags) *cobra.Command {
	var (
		grammar string
		phases  []string
		timeout time.Duration
		wait    time.Duration
		format  string
	)

	cmd := &cobra.Command{
		Use:   "watch <phase-log>",
		Short: "Follow a phase log and report phase transitions",
		Long: `Follow a benchmark phase log from its first line, printing each phase as
it completes. The command waits for the file to appear, exits successfully
once every watched phase has completed and fails on an ERROR record.

Examples:
  benchrun watch results.csv
  benchrun watch --phases WARMUP --timeout 5m phases.jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, supportedFormats); err != nil {
				return err
			}
			cfg, err := helpers.LoadConfig(g)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("grammar") {
				cfg.Phases.Grammar = grammar
			}
			gr, err := cfg.Grammar()
			if err != nil {
				return err
			}
			logger := helpers.NewLogger(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			t, err := tail.Follow(ctx, tail.Config{Path: args[0], WaitTimeout: wait, Logger: logger})
			if err != nil {
				return err
			}
			defer func() {
				if err := t.Stop(); err != nil {
					logger.Debug().Err(err).Msg("Failed to stop tailer")
				}
			}()

			w, err := phase.NewWatcher(t, phases, phase.WithGrammar(gr), phase.WithLogger(logger))
			if err != nil {
				return err
			}
			w.Start(ctx)

			waitErr := waitAll(ctx, cmd, w, phases)
			if n := w.Skipped(); n > 0 {
				cmd.PrintErrf("Skipped %d unparseable line(s)\n", n)
			}
			if err := printRecords(cmd, w, helpers.OutputFormat(format)); err != nil {
				return err
			}
			if waitErr != nil {
				return waitErr
			}
			if rec, ok := w.ErrorRecord(); ok {
				return fmt.Errorf("phase %s reported an error: %s", rec.PhaseID, rec.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&grammar, "grammar", "", "Phase log grammar (auto, delimited, json)")
	cmd.Flags().StringSliceVar(&phases, "phases", []string{phase.Warmup, phase.Steady}, "Phases to wait for, in order")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up after this long (0 waits forever)")
	cmd.Flags().DurationVar(&wait, "wait", tail.DefaultWaitTimeout, "How long to wait for the file to appear")
	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, supportedFormats)

	return cmd
}

// waitAll waits for each phase in turn, printing completions as they land.
// It returns early once the error latch is set.
func waitAll(ctx context.Context, cmd *cobra.Command, w *phase.Watcher, phases []string) error {
	for _, id := range phases {
		if err := w.WaitFor(ctx, id); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("timed out waiting for phase %s", id)
			}
			return err
		}
		if w.Errored() {
			return nil
		}
		rec, _ := w.Record(id)
		cmd.PrintErrf("%s completed (line %d)\n", id, rec.LineNo)
	}
	return nil
}

func printRecords(cmd *cobra.Command, w *phase.Watcher, format helpers.OutputFormat) error {
	records := w.Records()
	rows := make([]recordRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, recordRow{
			Phase:   rec.PhaseID,
			Status:  string(rec.Status),
			Line:    rec.LineNo,
			Message: rec.Message,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Line < rows[j].Line })

	f, err := helpers.NewFormatter(format)
	if err != nil {
		return err
	}
	return f.Format(rows, cmd.OutOrStdout())
}
