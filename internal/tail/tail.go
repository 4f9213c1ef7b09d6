// Package tail follows a growing log file through a `tail` child process
// and delivers its lines on a channel.
//
// The file is read from byte offset zero, so lines written before the
// tailer attached are delivered too. Stop may be called at any time, from
// any goroutine, including while a line is being handed to a consumer that
// has stopped reading.
package tail

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/benchrun/benchrun/internal/logging"
	"github.com/benchrun/benchrun/internal/retry"
)

const (
	// DefaultWaitTimeout bounds how long Start waits for the file to appear.
	DefaultWaitTimeout = 60 * time.Second
	// DefaultPollInterval is the first backoff between existence checks.
	DefaultPollInterval = 50 * time.Millisecond
	// DefaultGracePeriod is how long Stop waits after SIGTERM before SIGKILL.
	DefaultGracePeriod = 2 * time.Second

	maxPollInterval = time.Second
	maxLineBytes    = 4 << 20
)

var (
	// ErrFileNotFound is returned when the file does not appear within WaitTimeout.
	ErrFileNotFound = errors.New("log file did not appear")
	// ErrStopped is returned by Start when Stop ran before the child launched.
	ErrStopped = errors.New("tail: stopped")
)

// Config configures a Tailer.
type Config struct {
	Path         string
	WaitTimeout  time.Duration
	PollInterval time.Duration
	GracePeriod  time.Duration
	// Command is the tail binary; "tail" from PATH when empty.
	Command string
	Logger  zerolog.Logger
}

func (c *Config) applyDefaults() {
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.Command == "" {
		c.Command = "tail"
	}
}

// Tailer follows one file. It implements phase.LineSource.
type Tailer struct {
	cfg    Config
	logger zerolog.Logger

	lines    chan string
	stopCh   chan struct{}
	waitDone chan struct{}

	mu      sync.Mutex
	cmd     *exec.Cmd
	pipe    *os.File
	started bool

	stopOnce sync.Once
	stopErr  error
}

// New creates a tailer. Nothing is started until Start.
func New(cfg Config) (*Tailer, error) {
	if cfg.Path == "" {
		return nil, errors.New("tail: path is required")
	}
	cfg.applyDefaults()
	return &Tailer{
		cfg:      cfg,
		logger:   logging.Component(cfg.Logger, "log_tailer").With().Str("path", cfg.Path).Logger(),
		lines:    make(chan string),
		stopCh:   make(chan struct{}),
		waitDone: make(chan struct{}),
	}, nil
}

// Follow creates and starts a tailer in one call.
func Follow(ctx context.Context, cfg Config) (*Tailer, error) {
	t, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := t.Start(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Start waits for the file to exist, then launches the child process and
// the reader goroutine. Cancelling ctx later stops the tailer.
func (t *Tailer) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return errors.New("tail: already started")
	}
	t.started = true
	t.mu.Unlock()

	select {
	case <-t.stopCh:
		close(t.lines)
		close(t.waitDone)
		return fmt.Errorf("%w before start", ErrStopped)
	default:
	}

	if err := t.waitForFile(ctx); err != nil {
		close(t.lines)
		close(t.waitDone)
		return err
	}

	r, w, err := os.Pipe()
	if err != nil {
		close(t.lines)
		close(t.waitDone)
		return fmt.Errorf("tail: failed to create pipe: %w", err)
	}

	cmd := exec.Command(t.cfg.Command, "-n", "+1", "-F", t.cfg.Path) // #nosec G204 -- path comes from configuration.
	cmd.Stdout = w
	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		close(t.lines)
		close(t.waitDone)
		return fmt.Errorf("tail: failed to start %s: %w", t.cfg.Command, err)
	}
	// The child holds its own copy of the write end; EOF on r means it exited.
	_ = w.Close()

	t.mu.Lock()
	t.cmd = cmd
	t.pipe = r
	t.mu.Unlock()

	t.logger.Debug().Int("pid", cmd.Process.Pid).Msg("Tail process started")

	go func() {
		err := cmd.Wait()
		t.logger.Debug().Err(err).Msg("Tail process exited")
		close(t.waitDone)
	}()
	go t.read(r)

	select {
	case <-t.stopCh:
		// Stop ran while we were waiting for the file and saw no child.
		_ = cmd.Process.Kill()
		return nil
	default:
	}
	go func() {
		select {
		case <-ctx.Done():
			_ = t.Stop()
		case <-t.stopCh:
		}
	}()
	return nil
}

// waitForFile polls until the file exists. Stop ends the wait.
func (t *Tailer) waitForFile(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-t.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	cfg := retry.Config{
		MaxRetries:     math.MaxInt32,
		InitialBackoff: t.cfg.PollInterval,
		MaxBackoff:     maxPollInterval,
		Deadline:       t.cfg.WaitTimeout,
	}
	err := retry.Do(ctx, cfg, func() error {
		_, err := os.Stat(t.cfg.Path)
		return err
	}, func(err error) bool {
		return errors.Is(err, os.ErrNotExist)
	})
	if err == nil {
		return nil
	}
	select {
	case <-t.stopCh:
		return fmt.Errorf("%w while waiting for %s", ErrStopped, t.cfg.Path)
	default:
	}
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s after %s", ErrFileNotFound, t.cfg.Path, t.cfg.WaitTimeout)
	}
	return fmt.Errorf("tail: waiting for %s: %w", t.cfg.Path, err)
}

// read scans the pipe until EOF. A send blocked on a slow consumer gives
// up as soon as Stop is called.
func (t *Tailer) read(r *os.File) {
	defer close(t.lines)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		select {
		case t.lines <- scanner.Text():
		case <-t.stopCh:
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		select {
		case <-t.stopCh:
		default:
			t.logger.Warn().Err(err).Msg("Reading tail output failed")
		}
	}
}

// Lines returns the line channel. It is closed when the child exits or the
// tailer is stopped.
func (t *Tailer) Lines() <-chan string {
	return t.lines
}

// Stop terminates the child: SIGTERM, then SIGKILL after GracePeriod. It is
// idempotent and safe to call before Start.
func (t *Tailer) Stop() error {
	t.stopOnce.Do(func() {
		close(t.stopCh)

		t.mu.Lock()
		cmd, pipe := t.cmd, t.pipe
		t.mu.Unlock()
		if cmd == nil || cmd.Process == nil {
			return
		}

		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			t.logger.Debug().Err(err).Msg("SIGTERM to tail process failed")
		}

		timer := time.NewTimer(t.cfg.GracePeriod)
		defer timer.Stop()
		select {
		case <-t.waitDone:
		case <-timer.C:
			t.logger.Warn().Dur("grace_period", t.cfg.GracePeriod).Msg("Tail process ignored SIGTERM, killing")
			if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				t.stopErr = fmt.Errorf("tail: failed to kill process: %w", err)
			}
			<-t.waitDone
		}

		if pipe != nil {
			_ = pipe.Close()
		}
	})
	return t.stopErr
}

// Wait blocks until the child process has exited.
func (t *Tailer) Wait() {
	<-t.waitDone
}
