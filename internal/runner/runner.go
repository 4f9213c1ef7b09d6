// Package runner executes one benchmark run end to end: it launches the
// workload, follows its phase log, brackets the steady phase with the
// monitoring collectors and assembles the run report.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/benchrun/benchrun/internal/artifact"
	"github.com/benchrun/benchrun/internal/flamegraph"
	"github.com/benchrun/benchrun/internal/logging"
	"github.com/benchrun/benchrun/internal/monitor"
	"github.com/benchrun/benchrun/internal/phase"
	"github.com/benchrun/benchrun/internal/report"
	"github.com/benchrun/benchrun/internal/tail"
)

// Defaults for Config.
const (
	DefaultOutputFlag  = "--output"
	DefaultExitTimeout = 10 * time.Second
	DefaultTermGrace   = 2 * time.Second

	// exitDrain is how long the watcher may lag behind a workload that
	// already exited before the phase is declared missing.
	exitDrain = 3 * time.Second
)

var (
	// ErrPhaseTimeout is returned when a phase does not complete in time.
	ErrPhaseTimeout = errors.New("timed out waiting for phase")
	// ErrWorkloadExited is returned when the workload exits before a
	// tracked phase completes.
	ErrWorkloadExited = errors.New("workload exited early")
)

// PhaseError is an ERROR record reported by the workload.
type PhaseError struct {
	Phase   string
	Message string
}

func (e *PhaseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("benchmark reported an error in phase %s", e.Phase)
	}
	return fmt.Sprintf("benchmark reported an error in phase %s: %s", e.Phase, e.Message)
}

// ResultStore persists finished reports.
type ResultStore interface {
	SaveRun(ctx context.Context, r *report.Report, rows []flamegraph.Row) error
}

// Config configures a Runner.
type Config struct {
	Command    []string
	OutputFlag string
	CPUCores   string
	Dir        string
	// WorkDir receives one subdirectory per run.
	WorkDir string
	// ReportPath is where the JSON report goes; empty means report.json in
	// the run directory.
	ReportPath string
	Grammar    phase.Grammar

	FileWaitTimeout time.Duration
	WarmupTimeout   time.Duration
	SteadyTimeout   time.Duration
	ExitTimeout     time.Duration
	StopTimeout     time.Duration

	Monitor monitor.Options
	// Factories replaces the collectors named in Monitor when set.
	Factories []monitor.Factory
	Prober    monitor.Prober

	Launcher       Launcher
	Tuner          Tuner
	Results        ResultStore
	Artifacts      artifact.Store
	ArtifactPrefix string

	Logger zerolog.Logger
	Now    func() time.Time
}

// Runner executes benchmark runs.
type Runner struct {
	cfg       Config
	factories []monitor.Factory
	logger    zerolog.Logger
}

// New validates cfg and fills in defaults.
func New(cfg Config) (*Runner, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("runner: workload command is required")
	}
	if cfg.WorkDir == "" {
		return nil, errors.New("runner: work directory is required")
	}
	if cfg.ExitTimeout <= 0 {
		cfg.ExitTimeout = DefaultExitTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Tuner == nil {
		cfg.Tuner = NopTuner{}
	}

	logger := logging.Component(cfg.Logger, "runner")
	if cfg.Launcher == nil {
		cfg.Launcher = ExecLauncher{Logger: logger}
	}

	factories := cfg.Factories
	if factories == nil {
		var err error
		if factories, err = monitor.Factories(cfg.Monitor); err != nil {
			return nil, fmt.Errorf("runner: %w", err)
		}
	}

	return &Runner{cfg: cfg, factories: factories, logger: logger}, nil
}

// run is the state of one Run call.
type run struct {
	cfg        *Config
	logger     zerolog.Logger
	rep        *report.Report
	dir        string
	logPath    string
	reportPath string

	proc    Process
	watcher *phase.Watcher
	coord   *monitor.Coordinator
	rows    []flamegraph.Row

	steadyStart time.Time
	steadyEnd   time.Time
}

// Run executes one benchmark. The returned report is non-nil whenever the
// run directory could be created; on failure it carries the error and has
// still been written to disk.
func (r *Runner) Run(ctx context.Context) (*report.Report, error) {
	now := r.cfg.Now()
	jobID := report.NewJobID(now)
	logger := r.logger.With().Str("job_id", jobID).Logger()

	dir := filepath.Join(r.cfg.WorkDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	rs := &run{
		cfg:     &r.cfg,
		logger:  logger,
		rep:     report.New(jobID, now),
		dir:     dir,
		logPath: filepath.Join(dir, phaseLogName(r.cfg.Grammar)),
	}
	rs.reportPath = r.cfg.ReportPath
	if rs.reportPath == "" {
		rs.reportPath = filepath.Join(dir, "report.json")
	}
	rs.rep.Config = r.runConfig()
	rs.rep.FailedCollectors = make(map[string]string)

	tuning, err := r.cfg.Tuner.Setup(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Variance control setup failed")
	}
	rs.rep.Tuning = tuning
	defer func() {
		if err := r.cfg.Tuner.Teardown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("Variance control teardown failed")
		}
	}()

	rs.rep.Environment = report.DetectEnvironment(ctx, logger)

	logger.Info().Str("dir", dir).Msg("Starting benchmark run")
	runErr := rs.execute(ctx, r.factories)
	if runErr == nil {
		rs.collect()
	} else {
		var perr *PhaseError
		if errors.As(runErr, &perr) {
			rs.rep.Fail(perr.Message)
		} else {
			rs.rep.Fail(runErr.Error())
		}
		logger.Error().Err(runErr).Msg("Benchmark run failed")
	}

	if err := rs.finish(context.WithoutCancel(ctx)); err != nil {
		if runErr == nil {
			return rs.rep, err
		}
		logger.Error().Err(err).Msg("Failed to save run results")
	}
	if runErr == nil {
		logger.Info().
			Str("report", rs.reportPath).
			Float64("elapsed_seconds", rs.rep.ElapsedSeconds).
			Msg("Benchmark run completed")
	}
	return rs.rep, runErr
}

func (r *Runner) runConfig() report.RunConfig {
	collectors := r.cfg.Monitor.Collectors
	if len(collectors) == 0 {
		collectors = monitor.DefaultCollectors
	}
	return report.RunConfig{
		Command:       r.cfg.Command,
		CPUCores:      r.cfg.CPUCores,
		Grammar:       r.cfg.Grammar.String(),
		WarmupTimeout: r.cfg.WarmupTimeout,
		SteadyTimeout: r.cfg.SteadyTimeout,
		Collectors:    collectors,
		ProfilerEvent: r.cfg.Monitor.Profiler.Event,
	}
}

func phaseLogName(g phase.Grammar) string {
	switch g {
	case phase.GrammarDelimited:
		return "phases.csv"
	case phase.GrammarJSON:
		return "phases.jsonl"
	default:
		return "phases.log"
	}
}

// execute drives the workload through both phases with the collectors
// attached in between.
func (rs *run) execute(ctx context.Context, factories []monitor.Factory) error {
	proc, err := rs.cfg.Launcher.Launch(ctx, LaunchSpec{
		Command:    rs.cfg.Command,
		LogPath:    rs.logPath,
		OutputFlag: rs.cfg.OutputFlag,
		CPUCores:   rs.cfg.CPUCores,
		Dir:        rs.cfg.Dir,
		OutputPath: filepath.Join(rs.dir, "workload.out"),
	})
	if err != nil {
		return err
	}
	rs.proc = proc
	defer func() {
		if err := proc.Terminate(DefaultTermGrace); err != nil {
			rs.logger.Warn().Err(err).Msg("Failed to terminate workload")
		}
	}()

	tailer, err := tail.Follow(ctx, tail.Config{
		Path:        rs.logPath,
		WaitTimeout: rs.cfg.FileWaitTimeout,
		Logger:      rs.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to follow phase log: %w", err)
	}
	defer func() {
		if err := tailer.Stop(); err != nil {
			rs.logger.Debug().Err(err).Msg("Tailer stop")
		}
	}()

	watcher, err := phase.NewWatcher(tailer, []string{phase.Warmup, phase.Steady},
		phase.WithGrammar(rs.cfg.Grammar),
		phase.WithLogger(rs.logger),
	)
	if err != nil {
		return err
	}
	rs.watcher = watcher
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	watcher.Start(watchCtx)

	rs.logger.Info().Msg("Waiting for WARMUP phase to complete")
	if err := rs.waitPhase(ctx, phase.Warmup, rs.cfg.WarmupTimeout); err != nil {
		return err
	}

	coord, err := monitor.New(monitor.Config{
		WorkDir:     rs.dir,
		StopTimeout: rs.cfg.StopTimeout,
		Factories:   factories,
		Prober:      rs.cfg.Prober,
		CheckPID:    true,
		Logger:      rs.logger,
	})
	if err != nil {
		return err
	}
	rs.coord = coord

	rs.logger.Info().Int("pid", proc.PID()).Msg("Starting monitoring for STEADY phase")
	if err := coord.Start(ctx, proc.PID()); err != nil {
		return fmt.Errorf("failed to start monitoring: %w", err)
	}
	rs.steadyStart = time.Now()
	defer func() {
		// Stop is idempotent; after a clean stop this repeats its result.
		if err := coord.Stop(context.WithoutCancel(ctx)); err != nil {
			rs.logger.Debug().Err(err).Msg("Monitoring stop")
		}
	}()

	rs.logger.Info().Msg("Waiting for STEADY phase to complete")
	steadyErr := rs.waitPhase(ctx, phase.Steady, rs.cfg.SteadyTimeout)
	rs.steadyEnd = time.Now()

	if err := coord.Stop(context.WithoutCancel(ctx)); err != nil {
		if errors.Is(err, monitor.ErrNotStarted) {
			return err
		}
		rs.logger.Warn().Err(err).Msg("Some collectors did not stop cleanly")
	}
	if steadyErr != nil {
		return steadyErr
	}

	rs.awaitExit()
	return nil
}

// waitPhase blocks until id completes, the error latch is set, the
// workload exits or the timeout passes.
func (rs *run) waitPhase(ctx context.Context, id string, timeout time.Duration) error {
	var (
		waitCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		waitCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- rs.watcher.WaitFor(waitCtx, id) }()

	var err error
	select {
	case err = <-result:
	case <-rs.proc.Done():
		// The last lines may still be in flight through the tailer.
		drain := time.NewTimer(exitDrain)
		defer drain.Stop()
		select {
		case err = <-result:
		case <-drain.C:
			return fmt.Errorf("%w before %s completed: %v", ErrWorkloadExited, id, rs.proc.Err())
		}
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w %s after %s", ErrPhaseTimeout, id, timeout)
		}
		return err
	}
	if rs.watcher.Errored() {
		errPhase := id
		if rec, ok := rs.watcher.ErrorRecord(); ok {
			errPhase = rec.PhaseID
		}
		return &PhaseError{Phase: errPhase, Message: rs.watcher.ErrorMessage()}
	}
	return nil
}

// awaitExit gives the workload time to write its remaining records.
func (rs *run) awaitExit() {
	timer := time.NewTimer(rs.cfg.ExitTimeout)
	defer timer.Stop()
	select {
	case <-rs.proc.Done():
		if err := rs.proc.Err(); err != nil {
			rs.logger.Warn().Err(err).Msg("Workload exited with an error")
		}
	case <-timer.C:
		rs.logger.Warn().Dur("timeout", rs.cfg.ExitTimeout).Msg("Workload still running after STEADY, terminating")
	}
}
