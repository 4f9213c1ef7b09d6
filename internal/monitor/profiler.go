package monitor

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// NameProfiler is the sampling profiler collector name.
const NameProfiler = "profiler"

// ProfilerConfig configures async-profiler.
type ProfilerConfig struct {
	// Command is the asprof launcher.
	Command string `yaml:"command" env:"BENCHRUN_PROFILER"`
	// Event is the sampled event, "cpu" by default.
	Event string `yaml:"event" env:"BENCHRUN_PROFILER_EVENT"`
	// Interval is the sampling interval.
	Interval time.Duration `yaml:"interval" env:"BENCHRUN_PROFILER_INTERVAL"`
	// CommandTimeout bounds each start/stop invocation.
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// DefaultProfilerConfig returns the defaults.
func DefaultProfilerConfig() ProfilerConfig {
	return ProfilerConfig{
		Command:        "asprof",
		Event:          "cpu",
		Interval:       10 * time.Millisecond,
		CommandTimeout: 30 * time.Second,
	}
}

// CollapsedFile is the profiler output name inside the work directory.
const CollapsedFile = "profile.collapsed"

// AsyncProfiler attaches async-profiler to the target. Start and Stop are
// separate asprof invocations that must agree on target and output
// options, so both are derived from outputArgs.
type AsyncProfiler struct {
	cfg    ProfilerConfig
	output string
	logger zerolog.Logger

	mu     sync.Mutex
	target *Target
}

// NewAsyncProfilerFactory returns a Factory for the profiler.
func NewAsyncProfilerFactory(cfg ProfilerConfig) Factory {
	def := DefaultProfilerConfig()
	if cfg.Command == "" {
		cfg.Command = def.Command
	}
	if cfg.Event == "" {
		cfg.Event = def.Event
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = def.CommandTimeout
	}
	return func(env Environment) Collector {
		return &AsyncProfiler{
			cfg:    cfg,
			output: filepath.Join(env.WorkDir, CollapsedFile),
			logger: env.Logger.With().Str("collector", NameProfiler).Logger(),
		}
	}
}

func (a *AsyncProfiler) Name() string { return NameProfiler }

func (a *AsyncProfiler) OutputPath() string { return a.output }

func (a *AsyncProfiler) AttachesTarget() bool { return true }

func (a *AsyncProfiler) outputArgs(t Target) []string {
	return []string{"-o", "collapsed", "-f", a.output, strconv.Itoa(t.PID)}
}

// StartArgs returns the asprof arguments used to begin sampling.
func (a *AsyncProfiler) StartArgs(t Target) []string {
	args := []string{"start", "-e", a.cfg.Event, "-i", formatInterval(a.cfg.Interval)}
	return append(args, a.outputArgs(t)...)
}

// StopArgs returns the asprof arguments used to stop and dump.
func (a *AsyncProfiler) StopArgs(t Target) []string {
	return append([]string{"stop"}, a.outputArgs(t)...)
}

func (a *AsyncProfiler) Start(ctx context.Context, target Target) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.target != nil {
		return fmt.Errorf("%s: already started", NameProfiler)
	}
	if err := a.run(ctx, a.StartArgs(target)); err != nil {
		return err
	}
	a.target = &target
	a.logger.Debug().Int("pid", target.PID).Str("output", a.output).Msg("Profiler attached")
	return nil
}

func (a *AsyncProfiler) Stop(ctx context.Context) error {
	a.mu.Lock()
	target := a.target
	a.target = nil
	a.mu.Unlock()
	if target == nil {
		return nil
	}
	return a.run(ctx, a.StopArgs(*target))
}

func (a *AsyncProfiler) run(ctx context.Context, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.CommandTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, a.cfg.Command, args...).CombinedOutput() // #nosec G204 -- configured launcher.
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", a.cfg.Command, args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// formatInterval renders d in the unit suffixes asprof accepts.
func formatInterval(d time.Duration) string {
	switch {
	case d%time.Millisecond == 0:
		return fmt.Sprintf("%dms", d/time.Millisecond)
	case d%time.Microsecond == 0:
		return fmt.Sprintf("%dus", d/time.Microsecond)
	default:
		return strconv.FormatInt(d.Nanoseconds(), 10)
	}
}
