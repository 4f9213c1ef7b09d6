package sysstat

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/benchrun/benchrun/internal/safe"
)

// SystemSample is one line of the in-process sampler's JSONL output.
// Byte counters are cumulative since boot.
type SystemSample struct {
	Timestamp      time.Time      `json:"ts"`
	CPUPercent     float64        `json:"cpu_percent"`
	MemUsedBytes   uint64         `json:"mem_used_bytes"`
	MemUsedPercent float64        `json:"mem_used_percent"`
	DiskReadBytes  uint64         `json:"disk_read_bytes"`
	DiskWriteBytes uint64         `json:"disk_write_bytes"`
	NetRecvBytes   uint64         `json:"net_recv_bytes"`
	NetSentBytes   uint64         `json:"net_sent_bytes"`
	Process        *ProcessSample `json:"process,omitempty"`
}

// ProcessSample describes the benchmark process at sample time.
type ProcessSample struct {
	PID                  int32   `json:"pid"`
	CPUPercent           float64 `json:"cpu_percent"`
	RSSBytes             uint64  `json:"rss_bytes"`
	NumThreads           int32   `json:"num_threads"`
	VoluntaryCtxSwitches int64   `json:"voluntary_ctx_switches"`
	InvoluntaryCtxSwitch int64   `json:"involuntary_ctx_switches"`
}

// SystemSummary aggregates the sampler output over the steady window.
type SystemSummary struct {
	Samples           int     `json:"samples"`
	CPUAvgPercent     float64 `json:"cpu_avg_percent"`
	CPUMaxPercent     float64 `json:"cpu_max_percent"`
	MemMaxUsedBytes   uint64  `json:"mem_max_used_bytes"`
	DiskReadBytes     uint64  `json:"disk_read_bytes"`
	DiskWriteBytes    uint64  `json:"disk_write_bytes"`
	NetRecvBytes      uint64  `json:"net_recv_bytes"`
	NetSentBytes      uint64  `json:"net_sent_bytes"`
	ProcessMaxRSS     uint64  `json:"process_max_rss_bytes"`
	ProcessAvgCPU     float64 `json:"process_avg_cpu_percent"`
	ProcessMaxThreads int32   `json:"process_max_threads"`
}

// ParseSystemSamples summarises a sampler JSONL file. Byte totals are the
// difference between the last and first sample.
func ParseSystemSamples(path string, logger zerolog.Logger) (SystemSummary, error) {
	var sum SystemSummary

	f, err := safe.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sum, nil
		}
		return sum, fmt.Errorf("failed to open system samples: %w", err)
	}
	defer safe.Close(f, logger, "failed to close system samples")

	var (
		first, last    *SystemSample
		cpuTotal       float64
		procCPUTotal   float64
		processSamples int
	)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var s SystemSample
		if err := json.Unmarshal(scanner.Bytes(), &s); err != nil {
			logger.Debug().Err(err).Msg("Skipping malformed system sample")
			continue
		}
		sum.Samples++
		cpuTotal += s.CPUPercent
		sum.CPUMaxPercent = max(sum.CPUMaxPercent, s.CPUPercent)
		sum.MemMaxUsedBytes = max(sum.MemMaxUsedBytes, s.MemUsedBytes)
		if p := s.Process; p != nil {
			processSamples++
			procCPUTotal += p.CPUPercent
			sum.ProcessMaxRSS = max(sum.ProcessMaxRSS, p.RSSBytes)
			sum.ProcessMaxThreads = max(sum.ProcessMaxThreads, p.NumThreads)
		}
		if first == nil {
			first = &s
		}
		last = &s
	}
	if err := scanner.Err(); err != nil {
		return sum, fmt.Errorf("failed to read system samples: %w", err)
	}

	if sum.Samples > 0 {
		sum.CPUAvgPercent = cpuTotal / float64(sum.Samples)
		sum.DiskReadBytes = delta(first.DiskReadBytes, last.DiskReadBytes)
		sum.DiskWriteBytes = delta(first.DiskWriteBytes, last.DiskWriteBytes)
		sum.NetRecvBytes = delta(first.NetRecvBytes, last.NetRecvBytes)
		sum.NetSentBytes = delta(first.NetSentBytes, last.NetSentBytes)
	}
	if processSamples > 0 {
		sum.ProcessAvgCPU = procCPUTotal / float64(processSamples)
	}
	return sum, nil
}

// delta guards against counter resets.
func delta(a, b uint64) uint64 {
	if b < a {
		return 0
	}
	return b - a
}
