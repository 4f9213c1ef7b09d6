// Package monitor brackets a benchmark's steady phase with profiling and
// system-monitoring collectors.
//
// A Coordinator owns every collector handle for one run. Start attaches
// the collectors to the benchmark process when warmup ends; Stop detaches
// them when the steady phase ends. Collectors fail independently: one that
// cannot start or stop is logged and recorded without affecting the rest.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/benchrun/benchrun/internal/logging"
)

var (
	// ErrInvalidState is returned for a transition the lifecycle forbids.
	ErrInvalidState = errors.New("invalid coordinator state")
	// ErrNotStarted is returned by Stop when Start never ran. Callers treat
	// it as fatal: collector handles were never established.
	ErrNotStarted = errors.New("monitoring was never started")
	// ErrInvalidTarget is returned for a non-positive pid and recorded for
	// target-bound collectors when the pid has vanished.
	ErrInvalidTarget = errors.New("invalid target process")
)

// Config configures a Coordinator.
type Config struct {
	WorkDir     string
	StopTimeout time.Duration
	Factories   []Factory
	// Prober runs once per Start. Nil means PerfProber.
	Prober Prober
	// CheckPID skips collectors that attach to the target when the target
	// is no longer running.
	CheckPID bool
	Logger   zerolog.Logger
}

// Coordinator runs the collector lifecycle. It is safe for concurrent use.
type Coordinator struct {
	cfg    Config
	logger zerolog.Logger

	mu         sync.Mutex
	state      State
	hardware   bool
	collectors []Collector
	failed     map[string]error
	stopDone   chan struct{}
	stopErr    error
}

// New creates a coordinator in the Idle state.
func New(cfg Config) (*Coordinator, error) {
	if cfg.WorkDir == "" {
		return nil, errors.New("monitor: work directory is required")
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("monitor: failed to create work directory: %w", err)
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	logger := logging.Component(cfg.Logger, "monitor")
	if cfg.Prober == nil {
		cfg.Prober = NewPerfProber(logger)
	}
	return &Coordinator{
		cfg:      cfg,
		logger:   logger,
		state:    StateIdle,
		failed:   make(map[string]error),
		stopDone: make(chan struct{}),
	}, nil
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start probes hardware counters once and starts every collector against
// pid. Collector failures are recorded, not returned. A target that has
// already exited fails only the collectors that attach to it.
func (c *Coordinator) Start(ctx context.Context, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("%w: pid %d", ErrInvalidTarget, pid)
	}

	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidState, state)
	}
	c.state = StateStarting
	c.mu.Unlock()

	hardware := c.cfg.Prober.HardwareCounters(ctx)
	env := Environment{
		WorkDir:          c.cfg.WorkDir,
		HardwareCounters: hardware,
		StopTimeout:      c.cfg.StopTimeout,
		Logger:           c.logger,
	}

	var (
		started []Collector
		failed  = make(map[string]error)
	)
	for _, factory := range c.cfg.Factories {
		col := factory(env)
		if col == nil {
			continue
		}
		if attachesTarget(col) && !c.targetAlive(ctx, pid) {
			err := fmt.Errorf("%w: pid %d is not running", ErrInvalidTarget, pid)
			c.logger.Warn().Err(err).Str("collector", col.Name()).Msg("Skipping collector")
			failed[col.Name()] = err
			continue
		}
		if err := col.Start(ctx, Target{PID: pid}); err != nil {
			c.logger.Error().Err(err).Str("collector", col.Name()).Msg("Failed to start collector")
			failed[col.Name()] = err
			continue
		}
		started = append(started, col)
	}

	c.mu.Lock()
	c.hardware = hardware
	c.collectors = started
	c.failed = failed
	c.state = StateRunning
	c.mu.Unlock()

	c.logger.Info().
		Int("pid", pid).
		Int("started", len(started)).
		Int("failed", len(failed)).
		Bool("hardware_counters", hardware).
		Msg("Monitoring started")
	return nil
}

// targetAlive reports whether pid still exists. Probe errors count as
// alive so the collector itself decides.
func (c *Coordinator) targetAlive(ctx context.Context, pid int) bool {
	if !c.cfg.CheckPID {
		return true
	}
	exists, err := process.PidExistsWithContext(ctx, int32(pid)) // #nosec G115
	if err != nil {
		c.logger.Debug().Err(err).Int("pid", pid).Msg("Failed to check target process")
		return true
	}
	return exists
}

// Stop stops every collector concurrently. Errors from individual
// collectors are combined; no collector is skipped because another failed.
// Stop after Stop returns the first call's result.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
		c.mu.Unlock()
		return ErrNotStarted
	case StateStarting:
		c.mu.Unlock()
		return fmt.Errorf("%w: stop while starting", ErrInvalidState)
	case StateStopping, StateStopped:
		done := c.stopDone
		c.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.stopErr
	}
	c.state = StateStopping
	collectors := c.collectors
	c.mu.Unlock()

	var (
		errMu sync.Mutex
		errs  error
		g     errgroup.Group
	)
	for _, col := range collectors {
		g.Go(func() error {
			if err := col.Stop(ctx); err != nil {
				c.logger.Warn().Err(err).Str("collector", col.Name()).Msg("Failed to stop collector")
				errMu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", col.Name(), err))
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	c.state = StateStopped
	c.stopErr = errs
	close(c.stopDone)
	c.mu.Unlock()

	c.logger.Info().Int("collectors", len(collectors)).Msg("Monitoring stopped")
	return errs
}

// Outputs maps each started collector's name to its output file.
func (c *Coordinator) Outputs() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.collectors))
	for _, col := range c.collectors {
		if p := col.OutputPath(); p != "" {
			out[col.Name()] = p
		}
	}
	return out
}

// Failed returns the collectors that could not start.
func (c *Coordinator) Failed() map[string]error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]error, len(c.failed))
	for k, v := range c.failed {
		out[k] = v
	}
	return out
}

// HardwareCountersAvailable reports the probe result from Start.
func (c *Coordinator) HardwareCountersAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hardware
}
