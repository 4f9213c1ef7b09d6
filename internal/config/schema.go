// Package config loads benchrun configuration from defaults, a YAML file
// and environment variables, in that order of precedence.
package config

import (
	"time"

	"github.com/benchrun/benchrun/internal/artifact"
	"github.com/benchrun/benchrun/internal/logging"
	"github.com/benchrun/benchrun/internal/monitor"
	"github.com/benchrun/benchrun/internal/runner"
)

// Config is the complete benchrun configuration.
type Config struct {
	Workload  WorkloadConfig      `yaml:"workload"`
	Phases    PhasesConfig        `yaml:"phases"`
	Monitor   MonitorConfig       `yaml:"monitor"`
	Tuning    runner.TuningConfig `yaml:"tuning"`
	Output    OutputConfig        `yaml:"output"`
	Store     StoreConfig         `yaml:"store"`
	Artifacts ArtifactsConfig     `yaml:"artifacts"`
	Logging   logging.Config      `yaml:"logging"`
}

// WorkloadConfig describes the benchmark process.
type WorkloadConfig struct {
	// Command is the benchmark argv.
	Command []string `yaml:"command" env:"BENCHRUN_COMMAND"`
	// OutputFlag is appended with the phase log path; empty passes the
	// path only through the environment.
	OutputFlag string `yaml:"output_flag" env:"BENCHRUN_OUTPUT_FLAG"`
	// CPUCores is a taskset CPU list, e.g. "4-7".
	CPUCores string `yaml:"cpu_cores,omitempty" env:"BENCHRUN_CPU_CORES"`
	Dir      string `yaml:"dir,omitempty" env:"BENCHRUN_WORKLOAD_DIR"`
}

// PhasesConfig configures the phase log and its waits. Zero timeouts wait
// indefinitely.
type PhasesConfig struct {
	// Grammar is auto, delimited or json.
	Grammar         string        `yaml:"grammar" env:"BENCHRUN_GRAMMAR"`
	FileWaitTimeout time.Duration `yaml:"file_wait_timeout" env:"BENCHRUN_FILE_WAIT_TIMEOUT"`
	WarmupTimeout   time.Duration `yaml:"warmup_timeout,omitempty" env:"BENCHRUN_WARMUP_TIMEOUT"`
	SteadyTimeout   time.Duration `yaml:"steady_timeout,omitempty" env:"BENCHRUN_STEADY_TIMEOUT"`
	ExitTimeout     time.Duration `yaml:"exit_timeout" env:"BENCHRUN_EXIT_TIMEOUT"`
}

// MonitorConfig selects collectors.
type MonitorConfig struct {
	Collectors     []string               `yaml:"collectors" env:"BENCHRUN_COLLECTORS"`
	StopTimeout    time.Duration          `yaml:"stop_timeout" env:"BENCHRUN_STOP_TIMEOUT"`
	SampleInterval time.Duration          `yaml:"sample_interval" env:"BENCHRUN_SAMPLE_INTERVAL"`
	Profiler       monitor.ProfilerConfig `yaml:"profiler"`
}

// OutputConfig locates run outputs.
type OutputConfig struct {
	WorkDir string `yaml:"work_dir" env:"BENCHRUN_WORK_DIR"`
	// ReportPath overrides <work_dir>/<job id>/report.json.
	ReportPath string `yaml:"report,omitempty" env:"BENCHRUN_REPORT"`
}

// StoreConfig configures the DuckDB results store.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled" env:"BENCHRUN_STORE_ENABLED"`
	Path    string `yaml:"path" env:"BENCHRUN_STORE"`
}

// Artifact backends.
const (
	BackendNone  = "none"
	BackendLocal = "local"
	BackendS3    = "s3"
)

// ArtifactsConfig configures artifact upload.
type ArtifactsConfig struct {
	Backend  string            `yaml:"backend" env:"BENCHRUN_ARTIFACTS"`
	LocalDir string            `yaml:"local_dir,omitempty" env:"BENCHRUN_ARTIFACT_DIR"`
	Prefix   string            `yaml:"prefix,omitempty" env:"BENCHRUN_ARTIFACT_PREFIX"`
	S3       artifact.S3Config `yaml:"s3,omitempty"`
}
