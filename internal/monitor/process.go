package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// DefaultStopTimeout bounds the wait between the stop signal and SIGKILL.
const DefaultStopTimeout = 5 * time.Second

// ProcessSpec describes a background monitoring tool.
type ProcessSpec struct {
	Name string
	// Argv builds the command line for the target.
	Argv func(Target) []string
	// Output is the file the tool's output is written to.
	Output string
	// Stderr sends the tool's stderr to Output instead of stdout.
	Stderr bool
	// StopSignal asks the tool to flush and exit.
	StopSignal syscall.Signal
	// Group runs the tool in its own process group and signals the group.
	Group bool
	// Attach marks a tool that follows the target pid, such as perf stat -p.
	Attach      bool
	StopTimeout time.Duration
}

// ProcessCollector runs a ProcessSpec as a child process.
type ProcessCollector struct {
	spec   ProcessSpec
	logger zerolog.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	file     *os.File
	waitDone chan struct{}
	waitErr  error
	stopped  bool
}

// NewProcessCollector creates a collector for spec.
func NewProcessCollector(spec ProcessSpec, logger zerolog.Logger) *ProcessCollector {
	if spec.StopTimeout <= 0 {
		spec.StopTimeout = DefaultStopTimeout
	}
	if spec.StopSignal == 0 {
		spec.StopSignal = syscall.SIGINT
	}
	return &ProcessCollector{
		spec:   spec,
		logger: logger.With().Str("collector", spec.Name).Logger(),
	}
}

func (p *ProcessCollector) Name() string { return p.spec.Name }

func (p *ProcessCollector) OutputPath() string { return p.spec.Output }

func (p *ProcessCollector) AttachesTarget() bool { return p.spec.Attach }

// Start launches the tool. The output file is closed again if the launch
// fails.
func (p *ProcessCollector) Start(_ context.Context, target Target) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return fmt.Errorf("%s: already started", p.spec.Name)
	}
	argv := p.spec.Argv(target)
	if len(argv) == 0 {
		return fmt.Errorf("%s: empty command line", p.spec.Name)
	}

	f, err := os.Create(p.spec.Output)
	if err != nil {
		return fmt.Errorf("%s: failed to create output: %w", p.spec.Name, err)
	}

	cmd := exec.Command(argv[0], argv[1:]...) // #nosec G204 -- fixed tool names, numeric arguments.
	if p.spec.Stderr {
		cmd.Stderr = f
	} else {
		cmd.Stdout = f
	}
	if p.spec.Group {
		setProcessGroup(cmd)
	}

	if err := cmd.Start(); err != nil {
		_ = f.Close()
		return fmt.Errorf("%s: failed to start %s: %w", p.spec.Name, argv[0], err)
	}

	p.cmd = cmd
	p.file = f
	p.waitDone = make(chan struct{})
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.waitDone)
	}()

	p.logger.Debug().Strs("argv", argv).Int("pid", cmd.Process.Pid).Msg("Collector started")
	return nil
}

// Stop sends StopSignal, waits up to StopTimeout, then kills. The output
// file is closed in every case.
func (p *ProcessCollector) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.cmd == nil || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	cmd, f, waitDone := p.cmd, p.file, p.waitDone
	p.mu.Unlock()

	defer func() {
		if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			p.logger.Warn().Err(err).Msg("Failed to close collector output")
		}
	}()

	var errs error
	if err := signalProcess(cmd, p.spec.StopSignal, p.spec.Group); err != nil {
		errs = fmt.Errorf("%s: stop signal: %w", p.spec.Name, err)
	}

	timer := time.NewTimer(p.spec.StopTimeout)
	defer timer.Stop()

	select {
	case <-waitDone:
		p.logger.Debug().Msg("Collector exited")
		return errs
	case <-timer.C:
		p.logger.Warn().Dur("timeout", p.spec.StopTimeout).Msg("Collector did not exit, killing")
	case <-ctx.Done():
		p.logger.Warn().Err(ctx.Err()).Msg("Stop cancelled, killing collector")
	}

	if err := signalProcess(cmd, syscall.SIGKILL, p.spec.Group); err != nil {
		return fmt.Errorf("%s: kill: %w", p.spec.Name, err)
	}
	<-waitDone
	return errs
}

// Exited reports whether the child has exited, and its wait error.
func (p *ProcessCollector) Exited() (bool, error) {
	p.mu.Lock()
	done := p.waitDone
	p.mu.Unlock()
	if done == nil {
		return false, nil
	}
	select {
	case <-done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return true, p.waitErr
	default:
		return false, nil
	}
}
