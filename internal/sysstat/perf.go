package sysstat

import (
	"io"
	"regexp"
	"strconv"
	"strings"
)

// PerfStats holds perf stat counters. Hardware fields are nil when the
// counters were unavailable.
type PerfStats struct {
	CPUCycles       *int64   `json:"cpu_cycles"`
	Instructions    *int64   `json:"instructions"`
	IPC             *float64 `json:"ipc"`
	CacheReferences *int64   `json:"cache_references"`
	CacheMisses     *int64   `json:"cache_misses"`
	CacheMissRate   *float64 `json:"cache_miss_rate"`
	Branches        *int64   `json:"branches"`
	BranchMisses    *int64   `json:"branch_misses"`
	BranchMissRate  *float64 `json:"branch_miss_rate"`
	TaskClockMs     float64  `json:"task_clock_ms"`
	ContextSwitches int64    `json:"context_switches"`
	CPUMigrations   int64    `json:"cpu_migrations"`
	PageFaults      int64    `json:"page_faults"`
}

var (
	taskClockRe = regexp.MustCompile(`([\d,.]+)\s+msec\s+task-clock`)

	softwareCounters = map[string]*regexp.Regexp{
		"context-switches": regexp.MustCompile(`([\d,]+)\s+context-switches`),
		"cpu-migrations":   regexp.MustCompile(`([\d,]+)\s+cpu-migrations`),
		"page-faults":      regexp.MustCompile(`([\d,]+)\s+page-faults`),
	}

	hardwareCounters = map[string]*regexp.Regexp{
		"cycles":           regexp.MustCompile(`([\d,]+)\s+cycles`),
		"instructions":     regexp.MustCompile(`([\d,]+)\s+instructions`),
		"cache-references": regexp.MustCompile(`([\d,]+)\s+cache-references`),
		"cache-misses":     regexp.MustCompile(`([\d,]+)\s+cache-misses`),
		"branches":         regexp.MustCompile(`([\d,]+)\s+branches`),
		"branch-misses":    regexp.MustCompile(`([\d,]+)\s+branch-misses`),
	}
)

// ParsePerfStat summarises a perf stat log.
func ParsePerfStat(path string, hardware bool) (PerfStats, error) {
	var stats PerfStats
	err := withFile(path, func(r io.Reader) error {
		var err error
		stats, err = ReadPerfStat(r, hardware)
		return err
	})
	return stats, err
}

// ReadPerfStat parses perf stat's summary block.
func ReadPerfStat(r io.Reader, hardware bool) (PerfStats, error) {
	var stats PerfStats
	data, err := io.ReadAll(r)
	if err != nil {
		return stats, err
	}
	content := string(data)

	if m := taskClockRe.FindStringSubmatch(content); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
			stats.TaskClockMs = v
		}
	}
	for name, re := range softwareCounters {
		v := matchCount(re, content)
		if v == nil {
			continue
		}
		switch name {
		case "context-switches":
			stats.ContextSwitches = *v
		case "cpu-migrations":
			stats.CPUMigrations = *v
		case "page-faults":
			stats.PageFaults = *v
		}
	}

	if !hardware {
		return stats, nil
	}

	stats.CPUCycles = matchCount(hardwareCounters["cycles"], content)
	stats.Instructions = matchCount(hardwareCounters["instructions"], content)
	stats.CacheReferences = matchCount(hardwareCounters["cache-references"], content)
	stats.CacheMisses = matchCount(hardwareCounters["cache-misses"], content)
	stats.Branches = matchCount(hardwareCounters["branches"], content)
	stats.BranchMisses = matchCount(hardwareCounters["branch-misses"], content)

	if stats.CPUCycles != nil && stats.Instructions != nil && *stats.CPUCycles > 0 {
		stats.IPC = ptr(round2(float64(*stats.Instructions) / float64(*stats.CPUCycles)))
	}
	if stats.CacheReferences != nil && *stats.CacheReferences > 0 {
		stats.CacheMissRate = ptr(round2(100 * float64(deref(stats.CacheMisses)) / float64(*stats.CacheReferences)))
	}
	if stats.Branches != nil && *stats.Branches > 0 {
		stats.BranchMissRate = ptr(round2(100 * float64(deref(stats.BranchMisses)) / float64(*stats.Branches)))
	}
	return stats, nil
}

func matchCount(re *regexp.Regexp, content string) *int64 {
	m := re.FindStringSubmatch(content)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func ptr[T any](v T) *T { return &v }

func deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
