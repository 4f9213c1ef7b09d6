package monitor

import (
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Collector names; each writes <name>.log in the work directory.
const (
	NameMpstat     = "mpstat"
	NameIostat     = "iostat"
	NameSarNetwork = "sar_network"
	NamePerfStat   = "perf_stat"
)

// HardwareEvents are counted when the probe succeeds.
var HardwareEvents = []string{
	"cycles",
	"instructions",
	"cache-references",
	"cache-misses",
	"branches",
	"branch-misses",
	"context-switches",
	"cpu-migrations",
	"page-faults",
}

// SoftwareEvents are the reduced set used inside VMs and containers.
var SoftwareEvents = []string{
	"task-clock",
	"context-switches",
	"cpu-migrations",
	"page-faults",
}

// PerfEvents returns the perf event list for the probe result.
func PerfEvents(hardware bool) []string {
	if hardware {
		return HardwareEvents
	}
	return SoftwareEvents
}

func logPath(env Environment, name string) string {
	return filepath.Join(env.WorkDir, name+".log")
}

func sysstatTool(env Environment, name string, argv ...string) Collector {
	return NewProcessCollector(ProcessSpec{
		Name:        name,
		Argv:        func(Target) []string { return argv },
		Output:      logPath(env, name),
		StopSignal:  syscall.SIGTERM,
		Group:       true,
		StopTimeout: env.StopTimeout,
	}, env.Logger)
}

// NewMpstat samples per-CPU utilization every second.
func NewMpstat(env Environment) Collector {
	return sysstatTool(env, NameMpstat, "mpstat", "1")
}

// NewIostat samples extended device statistics every second.
func NewIostat(env Environment) Collector {
	return sysstatTool(env, NameIostat, "iostat", "-x", "1")
}

// NewSarNetwork samples per-interface network statistics every second.
func NewSarNetwork(env Environment) Collector {
	return sysstatTool(env, NameSarNetwork, "sar", "-n", "DEV", "1")
}

// NewPerfStat counts events on the target process. perf prints its summary
// to stderr on SIGINT.
func NewPerfStat(env Environment) Collector {
	events := strings.Join(PerfEvents(env.HardwareCounters), ",")
	return NewProcessCollector(ProcessSpec{
		Name: NamePerfStat,
		Argv: func(t Target) []string {
			return []string{"perf", "stat", "-e", events, "-p", strconv.Itoa(t.PID)}
		},
		Output:      logPath(env, NamePerfStat),
		Stderr:      true,
		Attach:      true,
		StopSignal:  syscall.SIGINT,
		StopTimeout: env.StopTimeout,
	}, env.Logger)
}
