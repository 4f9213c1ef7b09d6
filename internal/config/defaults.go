package config

import (
	"os"

	"github.com/benchrun/benchrun/internal/artifact"
	"github.com/benchrun/benchrun/internal/constants"
	"github.com/benchrun/benchrun/internal/logging"
	"github.com/benchrun/benchrun/internal/monitor"
	"github.com/benchrun/benchrun/internal/runner"
	"github.com/benchrun/benchrun/internal/tail"
)

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Workload: WorkloadConfig{
			OutputFlag: runner.DefaultOutputFlag,
		},
		Phases: PhasesConfig{
			Grammar:         "auto",
			FileWaitTimeout: tail.DefaultWaitTimeout,
			WarmupTimeout:   constants.DefaultWarmupTimeout,
			SteadyTimeout:   constants.DefaultSteadyTimeout,
			ExitTimeout:     runner.DefaultExitTimeout,
		},
		Monitor: MonitorConfig{
			Collectors:     append([]string(nil), monitor.DefaultCollectors...),
			StopTimeout:    monitor.DefaultStopTimeout,
			SampleInterval: monitor.DefaultSampleInterval,
			Profiler:       monitor.DefaultProfilerConfig(),
		},
		Output: OutputConfig{
			WorkDir: constants.DefaultWorkDir,
		},
		Store: StoreConfig{
			Path: constants.DefaultStorePath,
		},
		Artifacts: ArtifactsConfig{
			Backend:  BackendNone,
			LocalDir: constants.DefaultArtifactDir,
			Prefix:   "runs",
			S3: artifact.S3Config{
				MaxRetries: 3,
			},
		},
		Logging: logging.Config{
			Level:  "info",
			Pretty: true,
			Output: os.Stderr,
		},
	}
}
