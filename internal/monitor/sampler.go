package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/benchrun/benchrun/internal/sysstat"
)

const (
	// NameSystem is the in-process sampler's collector name.
	NameSystem = "system"
	// SystemSamplesFile is the sampler output inside the work directory.
	SystemSamplesFile = "system.jsonl"
	// DefaultSampleInterval is the sampler period.
	DefaultSampleInterval = time.Second
)

// SystemSampler samples host and target-process metrics with gopsutil and
// appends one JSON object per sample.
type SystemSampler struct {
	interval time.Duration
	output   string
	logger   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	file   *os.File
}

// NewSystemSamplerFactory returns a Factory for the sampler.
func NewSystemSamplerFactory(interval time.Duration) Factory {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return func(env Environment) Collector {
		return &SystemSampler{
			interval: interval,
			output:   filepath.Join(env.WorkDir, SystemSamplesFile),
			logger:   env.Logger.With().Str("collector", NameSystem).Logger(),
		}
	}
}

func (s *SystemSampler) Name() string { return NameSystem }

func (s *SystemSampler) OutputPath() string { return s.output }

// Start opens the output and begins sampling. The sampling goroutine is
// detached from ctx; Stop ends it.
func (s *SystemSampler) Start(_ context.Context, target Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return fmt.Errorf("%s: already started", NameSystem)
	}

	f, err := os.Create(s.output)
	if err != nil {
		return fmt.Errorf("%s: failed to create output: %w", NameSystem, err)
	}

	var proc *process.Process
	if target.PID > 0 {
		proc, err = process.NewProcess(int32(target.PID)) // #nosec G115 -- pids fit in int32.
		if err != nil {
			s.logger.Warn().Err(err).Int("pid", target.PID).Msg("Target process not found, sampling host only")
			proc = nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.file = f
	go s.loop(ctx, f, proc)
	return nil
}

func (s *SystemSampler) loop(ctx context.Context, f *os.File, proc *process.Process) {
	defer close(s.done)

	enc := json.NewEncoder(f)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Prime cpu.Percent so the first reported value covers an interval.
	_, _ = cpu.PercentWithContext(ctx, 0, false)
	if proc != nil {
		_, _ = proc.PercentWithContext(ctx, 0)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample := s.collect(ctx, proc)
			if err := enc.Encode(sample); err != nil {
				s.logger.Error().Err(err).Msg("Failed to write system sample")
				return
			}
		}
	}
}

func (s *SystemSampler) collect(ctx context.Context, proc *process.Process) sysstat.SystemSample {
	sample := sysstat.SystemSample{Timestamp: time.Now().UTC()}

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		sample.CPUPercent = pct[0]
	} else if err != nil {
		s.logger.Debug().Err(err).Msg("Failed to read CPU percent")
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		sample.MemUsedBytes = vm.Used
		sample.MemUsedPercent = vm.UsedPercent
	}

	if counters, err := disk.IOCountersWithContext(ctx); err == nil {
		for _, c := range counters {
			sample.DiskReadBytes += c.ReadBytes
			sample.DiskWriteBytes += c.WriteBytes
		}
	}

	if counters, err := net.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		sample.NetRecvBytes = counters[0].BytesRecv
		sample.NetSentBytes = counters[0].BytesSent
	}

	if proc != nil {
		sample.Process = sampleProcess(ctx, proc)
	}
	return sample
}

func sampleProcess(ctx context.Context, proc *process.Process) *sysstat.ProcessSample {
	running, err := proc.IsRunningWithContext(ctx)
	if err != nil || !running {
		return nil
	}
	ps := &sysstat.ProcessSample{PID: proc.Pid}
	if pct, err := proc.PercentWithContext(ctx, 0); err == nil {
		ps.CPUPercent = pct
	}
	if mi, err := proc.MemoryInfoWithContext(ctx); err == nil {
		ps.RSSBytes = mi.RSS
	}
	if n, err := proc.NumThreadsWithContext(ctx); err == nil {
		ps.NumThreads = n
	}
	if cs, err := proc.NumCtxSwitchesWithContext(ctx); err == nil {
		ps.VoluntaryCtxSwitches = cs.Voluntary
		ps.InvoluntaryCtxSwitch = cs.Involuntary
	}
	return ps
}

// Stop ends sampling and closes the output.
func (s *SystemSampler) Stop(context.Context) error {
	s.mu.Lock()
	cancel, done, f := s.cancel, s.done, s.file
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	<-done
	if err := f.Close(); err != nil {
		return fmt.Errorf("%s: failed to close output: %w", NameSystem, err)
	}
	return nil
}
