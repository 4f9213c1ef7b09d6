package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// EnvPhaseLog is set in the workload's environment to the phase log path.
const EnvPhaseLog = "BENCHRUN_PHASE_LOG"

// LaunchSpec describes how to start the workload.
type LaunchSpec struct {
	Command []string
	// LogPath is where the workload writes phase records.
	LogPath string
	// OutputFlag, when set, is appended to Command followed by LogPath.
	OutputFlag string
	// CPUCores pins the workload with taskset -c when set.
	CPUCores string
	Dir      string
	// OutputPath receives the workload's stdout and stderr.
	OutputPath string
}

// Argv returns the full command line for spec.
func (s LaunchSpec) Argv() []string {
	var argv []string
	if s.CPUCores != "" {
		argv = append(argv, "taskset", "-c", s.CPUCores)
	}
	argv = append(argv, s.Command...)
	if s.OutputFlag != "" {
		argv = append(argv, s.OutputFlag, s.LogPath)
	}
	return argv
}

// Process is a running workload.
type Process interface {
	PID() int
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Err returns the exit error after Done is closed.
	Err() error
	// Terminate sends SIGTERM, then kills after grace.
	Terminate(grace time.Duration) error
}

// Launcher starts workloads.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Process, error)
}

// ExecLauncher runs the workload as a child process.
type ExecLauncher struct {
	Logger zerolog.Logger
}

// Launch starts the command. The process is not tied to ctx; callers stop
// it with Terminate.
func (l ExecLauncher) Launch(_ context.Context, spec LaunchSpec) (Process, error) {
	if len(spec.Command) == 0 {
		return nil, errors.New("workload command is empty")
	}
	argv := spec.Argv()

	cmd := exec.Command(argv[0], argv[1:]...) // #nosec G204 -- the workload command is user configuration.
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), EnvPhaseLog+"="+spec.LogPath)

	var out *os.File
	if spec.OutputPath != "" {
		f, err := os.Create(spec.OutputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create workload output: %w", err)
		}
		out = f
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		if out != nil {
			_ = out.Close()
		}
		return nil, fmt.Errorf("failed to start workload %q: %w", argv[0], err)
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		if out != nil {
			if err := out.Close(); err != nil {
				l.Logger.Warn().Err(err).Msg("Failed to close workload output")
			}
		}
		close(p.done)
	}()

	l.Logger.Info().
		Int("pid", cmd.Process.Pid).
		Strs("argv", argv).
		Msg("Workload started")
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *execProcess) PID() int              { return p.cmd.Process.Pid }
func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Err() error {
	<-p.done
	return p.err
}

func (p *execProcess) Terminate(grace time.Duration) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return p.cmd.Process.Kill()
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
	}

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-p.done
	return nil
}
