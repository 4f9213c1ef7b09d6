package report

import (
	"context"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Environment describes the machine the run executed on.
type Environment struct {
	Hostname         string `json:"hostname"`
	OS               string `json:"os"`
	Platform         string `json:"platform,omitempty"`
	KernelVersion    string `json:"kernel_version,omitempty"`
	Virtualization   string `json:"virtualization,omitempty"`
	CPUModel         string `json:"cpu_model,omitempty"`
	CPUCount         int    `json:"cpu_count"`
	MemoryTotalBytes uint64 `json:"memory_total_bytes"`
	HardwareCounters bool   `json:"hardware_perf_available"`
}

// DetectEnvironment gathers host facts. Lookups that fail are left empty.
func DetectEnvironment(ctx context.Context, logger zerolog.Logger) Environment {
	env := Environment{
		OS:       runtime.GOOS,
		CPUCount: runtime.NumCPU(),
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		env.Hostname = info.Hostname
		env.Platform = info.Platform + " " + info.PlatformVersion
		env.KernelVersion = info.KernelVersion
		if info.VirtualizationRole == "guest" {
			env.Virtualization = info.VirtualizationSystem
		}
	} else {
		logger.Debug().Err(err).Msg("Failed to read host info")
	}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		env.CPUModel = infos[0].ModelName
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		env.MemoryTotalBytes = vm.Total
	}
	return env
}
