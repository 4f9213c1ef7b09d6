package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Target identifies the process being profiled.
type Target struct {
	PID int
}

// Collector is one monitoring tool bracketed around the steady phase.
// Stop must be safe to call on a collector whose Start failed.
type Collector interface {
	Name() string
	Start(ctx context.Context, target Target) error
	Stop(ctx context.Context) error
	// OutputPath is the file the collector writes, or "" if none.
	OutputPath() string
}

// TargetBound is implemented by collectors that attach to the target
// process. They are skipped once the target has exited; host-wide
// collectors keep running.
type TargetBound interface {
	AttachesTarget() bool
}

func attachesTarget(c Collector) bool {
	tb, ok := c.(TargetBound)
	return ok && tb.AttachesTarget()
}

// Environment is what collector factories receive when the coordinator
// starts.
type Environment struct {
	WorkDir string
	// HardwareCounters is the result of the hardware-counter probe.
	HardwareCounters bool
	StopTimeout      time.Duration
	Logger           zerolog.Logger
}

// Factory builds a collector for one run. Returning nil skips it.
type Factory func(env Environment) Collector
