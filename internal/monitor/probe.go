package monitor

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Prober reports whether hardware performance counters can be read.
type Prober interface {
	HardwareCounters(ctx context.Context) bool
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) bool

func (f ProberFunc) HardwareCounters(ctx context.Context) bool { return f(ctx) }

// PerfProber counts cycles over a short sleep. Virtual machines and
// containers report the event as "<not supported>" or "<not counted>".
type PerfProber struct {
	Command string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// NewPerfProber returns a prober using perf from PATH.
func NewPerfProber(logger zerolog.Logger) *PerfProber {
	return &PerfProber{Command: "perf", Timeout: 5 * time.Second, Logger: logger}
}

func (p *PerfProber) HardwareCounters(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, p.Command, "stat", "-e", "cycles", "--", "sleep", "0.1").CombinedOutput() // #nosec G204
	if err != nil {
		p.Logger.Warn().Err(err).Msg("Hardware counter probe failed")
		return false
	}
	available := CountersSupported(string(out))
	if available {
		p.Logger.Info().Msg("Hardware perf events available")
	} else {
		p.Logger.Info().Msg("Hardware perf events not available, using software events")
	}
	return available
}

// CountersSupported inspects perf stat output for the unsupported markers.
func CountersSupported(perfOutput string) bool {
	return !strings.Contains(perfOutput, "<not supported>") &&
		!strings.Contains(perfOutput, "<not counted>")
}
