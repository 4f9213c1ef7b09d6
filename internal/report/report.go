// Package report defines the JSON run report and builds it from the phase
// log and collector summaries.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/benchrun/benchrun/internal/sysstat"
)

// Run status values.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Report is the result of one benchmark run.
type Report struct {
	JobID          string                `json:"job_id"`
	Timestamp      time.Time             `json:"timestamp"`
	Status         string                `json:"status"`
	Error          string                `json:"error,omitempty"`
	Environment    Environment           `json:"environment"`
	Config         RunConfig             `json:"benchmark_config"`
	ElapsedSeconds float64               `json:"elapsed_seconds"`
	Operations     map[string]Operation  `json:"operations"`
	Perf           PerfSection           `json:"perf"`
	CPU            sysstat.CPUStats      `json:"cpu"`
	IO             IOSection             `json:"io"`
	Host           sysstat.SystemSummary `json:"host"`
	Flamegraph     FlamegraphSummary     `json:"flamegraph"`
	Tuning         Tuning                `json:"variance_control"`
	// Artifacts maps artifact names to local paths or uploaded URLs.
	Artifacts        map[string]string `json:"artifacts,omitempty"`
	FailedCollectors map[string]string `json:"failed_collectors,omitempty"`
}

// RunConfig records how the workload was launched.
type RunConfig struct {
	Command       []string      `json:"command"`
	CPUCores      string        `json:"cpu_cores,omitempty"`
	Grammar       string        `json:"grammar"`
	WarmupTimeout time.Duration `json:"warmup_timeout_ns,omitempty"`
	SteadyTimeout time.Duration `json:"steady_timeout_ns,omitempty"`
	Collectors    []string      `json:"collectors"`
	ProfilerEvent string        `json:"profiler_event,omitempty"`
}

// Operation is the steady-phase result for one command.
type Operation struct {
	TotalRequests      int64             `json:"total_requests"`
	SuccessfulRequests int64             `json:"successful_requests"`
	FailedRequests     int64             `json:"failed_requests"`
	LatencyMinUs       int64             `json:"latency_min_us"`
	LatencyMaxUs       int64             `json:"latency_max_us"`
	Histogram          []HistogramBucket `json:"histogram_buckets"`
}

// HistogramBucket is one latency histogram bucket as the workload emits it.
type HistogramBucket map[string]json.Number

// PerfSection holds perf stat counters.
type PerfSection struct {
	HardwareCounters bool              `json:"hardware_counters"`
	Counters         sysstat.PerfStats `json:"counters"`
}

// IOSection groups disk and network summaries.
type IOSection struct {
	Disk    sysstat.DiskStats    `json:"disk"`
	Network sysstat.NetworkStats `json:"network"`
}

// FlamegraphSummary describes the aggregated profile.
type FlamegraphSummary struct {
	TotalSamples   int64  `json:"total_samples"`
	Nodes          int    `json:"nodes"`
	MalformedLines int    `json:"malformed_lines"`
	Skipped        bool   `json:"skipped"`
	SkipReason     string `json:"skip_reason,omitempty"`
}

// Tuning records which variance controls were in effect.
type Tuning struct {
	TurboBoostDisabled  bool `json:"turbo_boost_disabled"`
	NMIWatchdogDisabled bool `json:"nmi_watchdog_disabled"`
	PerfRelaxed         bool `json:"perf_permissions_relaxed"`
}

// New returns an empty report for jobID.
func New(jobID string, now time.Time) *Report {
	return &Report{
		JobID:      jobID,
		Timestamp:  now.UTC().Truncate(time.Second),
		Status:     StatusCompleted,
		Operations: make(map[string]Operation),
		Artifacts:  make(map[string]string),
	}
}

// Fail marks the report failed with msg.
func (r *Report) Fail(msg string) {
	r.Status = StatusFailed
	r.Error = msg
}

// WriteFile writes the report as indented JSON.
func (r *Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil { // #nosec G306 -- reports are shared artifacts.
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Unmarshal decodes a report.
func Unmarshal(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}
