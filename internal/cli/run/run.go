// Package run implements the benchrun run command.
package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/benchrun/benchrun/internal/artifact"
	"github.com/benchrun/benchrun/internal/cli/helpers"
	"github.com/benchrun/benchrun/internal/config"
	ierrors "github.com/benchrun/benchrun/internal/errors"
	"github.com/benchrun/benchrun/internal/report"
	"github.com/benchrun/benchrun/internal/runner"
	"github.com/benchrun/benchrun/internal/store"
)

type runFlags struct {
	grammar          string
	cpuCores         string
	outputFlag       string
	workDir          string
	reportPath       string
	collectors       []string
	warmupTimeout    time.Duration
	steadyTimeout    time.Duration
	profilerEvent    string
	profilerInterval time.Duration
	storeEnabled     bool
	artifactBackend  string
	tune             bool
}

// NewRunCmd creates the 'run' command.
func NewRunCmd(g *helpers.GlobalFlags) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run [flags] [-- command [args...]]",
		Short: "Run a benchmark and profile its steady phase",
		Long: `Launch a benchmark workload, wait for it to finish warming up, profile
its steady phase and write a JSON report.

The workload appends phase records to the file passed after its output
flag (also exported as $BENCHRUN_PHASE_LOG). Collectors start when WARMUP
completes and stop when STEADY completes.

Examples:
  benchrun run -- python3 bench.py --duration 60 --warmup 10
  benchrun run --cpu-cores 4-7 --collectors perf_stat,profiler -- ./bench
  benchrun run -c benchrun.yaml --store --artifacts s3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := helpers.LoadConfig(g)
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg, &f, args)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rep, err := execute(ctx, cfg, helpers.NewLogger(cfg))
			if rep != nil {
				printSummary(cmd, rep)
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.grammar, "grammar", "", "Phase log grammar (auto, delimited, json)")
	flags.StringVar(&f.cpuCores, "cpu-cores", "", "Pin the workload to these CPUs with taskset")
	flags.StringVar(&f.outputFlag, "output-flag", "", "Flag the workload takes for the phase log path")
	flags.StringVar(&f.workDir, "work-dir", "", "Directory for run outputs")
	flags.StringVar(&f.reportPath, "report", "", "Report file path (default <work-dir>/<job>/report.json)")
	flags.StringSliceVar(&f.collectors, "collectors", nil, "Collectors to run (mpstat, iostat, sar_network, perf_stat, profiler, system)")
	flags.DurationVar(&f.warmupTimeout, "warmup-timeout", 0, "Fail if WARMUP does not complete in time (0 waits forever)")
	flags.DurationVar(&f.steadyTimeout, "steady-timeout", 0, "Fail if STEADY does not complete in time (0 waits forever)")
	flags.StringVar(&f.profilerEvent, "profiler-event", "", "Profiler sampling event")
	flags.DurationVar(&f.profilerInterval, "profiler-interval", 0, "Profiler sampling interval")
	flags.BoolVar(&f.storeEnabled, "store", false, "Save the run to the results store")
	flags.StringVar(&f.artifactBackend, "artifacts", "", "Artifact upload backend (none, local, s3)")
	flags.BoolVar(&f.tune, "tune", false, "Disable turbo boost and the NMI watchdog and relax perf permissions during the run")

	return cmd
}

// applyFlags is the last config layer: only flags the user set override cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config, f *runFlags, args []string) {
	changed := cmd.Flags().Changed
	if len(args) > 0 {
		cfg.Workload.Command = args
	}
	if changed("grammar") {
		cfg.Phases.Grammar = f.grammar
	}
	if changed("cpu-cores") {
		cfg.Workload.CPUCores = f.cpuCores
	}
	if changed("output-flag") {
		cfg.Workload.OutputFlag = f.outputFlag
	}
	if changed("work-dir") {
		cfg.Output.WorkDir = f.workDir
	}
	if changed("report") {
		cfg.Output.ReportPath = f.reportPath
	}
	if changed("collectors") {
		cfg.Monitor.Collectors = f.collectors
	}
	if changed("warmup-timeout") {
		cfg.Phases.WarmupTimeout = f.warmupTimeout
	}
	if changed("steady-timeout") {
		cfg.Phases.SteadyTimeout = f.steadyTimeout
	}
	if changed("profiler-event") {
		cfg.Monitor.Profiler.Event = f.profilerEvent
	}
	if changed("profiler-interval") {
		cfg.Monitor.Profiler.Interval = f.profilerInterval
	}
	if changed("store") {
		cfg.Store.Enabled = f.storeEnabled
	}
	if changed("artifacts") {
		cfg.Artifacts.Backend = f.artifactBackend
	}
	if f.tune {
		cfg.Tuning = runner.TuningConfig{DisableTurbo: true, DisableNMIWatchdog: true, RelaxPerf: true}
	}
}

func execute(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*report.Report, error) {
	grammar, err := cfg.Grammar()
	if err != nil {
		return nil, err
	}

	rc := runner.Config{
		Command:         cfg.Workload.Command,
		OutputFlag:      cfg.Workload.OutputFlag,
		CPUCores:        cfg.Workload.CPUCores,
		Dir:             cfg.Workload.Dir,
		WorkDir:         cfg.Output.WorkDir,
		ReportPath:      cfg.Output.ReportPath,
		Grammar:         grammar,
		FileWaitTimeout: cfg.Phases.FileWaitTimeout,
		WarmupTimeout:   cfg.Phases.WarmupTimeout,
		SteadyTimeout:   cfg.Phases.SteadyTimeout,
		ExitTimeout:     cfg.Phases.ExitTimeout,
		StopTimeout:     cfg.Monitor.StopTimeout,
		Monitor:         cfg.MonitorOptions(),
		ArtifactPrefix:  cfg.Artifacts.Prefix,
		Logger:          logger,
	}

	if t := cfg.Tuning; t.DisableTurbo || t.DisableNMIWatchdog || t.RelaxPerf {
		rc.Tuner = runner.NewSysfsTuner(t, logger)
	}

	if cfg.Store.Enabled {
		s, err := store.Open(cfg.Store.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open results store: %w", err)
		}
		defer ierrors.DeferClose(logger, s, "failed to close results store")
		rc.Results = s
	}

	switch cfg.Artifacts.Backend {
	case config.BackendLocal:
		s, err := artifact.NewLocalStore(cfg.Artifacts.LocalDir)
		if err != nil {
			return nil, err
		}
		rc.Artifacts = s
	case config.BackendS3:
		s, err := artifact.NewS3Store(ctx, cfg.Artifacts.S3, logger)
		if err != nil {
			return nil, err
		}
		rc.Artifacts = s
	}

	r, err := runner.New(rc)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}

func printSummary(cmd *cobra.Command, rep *report.Report) {
	cmd.Printf("Job:     %s\n", rep.JobID)
	cmd.Printf("Status:  %s\n", rep.Status)
	if rep.Error != "" {
		cmd.Printf("Error:   %s\n", rep.Error)
	}
	cmd.Printf("Elapsed: %.2fs\n", rep.ElapsedSeconds)

	names := make([]string, 0, len(rep.Artifacts))
	for name := range rep.Artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		cmd.Println("Artifacts:")
	}
	for _, name := range names {
		cmd.Printf("  %-18s %s\n", name, rep.Artifacts[name])
	}
}
