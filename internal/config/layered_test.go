package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchrun/benchrun/internal/monitor"
	"github.com/benchrun/benchrun/internal/phase"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "benchrun.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := NewLoader().Load("")
	require.NoError(t, err)

	assert.Equal(t, "--output", cfg.Workload.OutputFlag)
	assert.Equal(t, "auto", cfg.Phases.Grammar)
	assert.Equal(t, 60*time.Second, cfg.Phases.FileWaitTimeout)
	assert.Equal(t, monitor.DefaultCollectors, cfg.Monitor.Collectors)
	assert.Equal(t, "asprof", cfg.Monitor.Profiler.Command)
	assert.Equal(t, BackendNone, cfg.Artifacts.Backend)
	assert.False(t, cfg.Store.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
workload:
  command: [python3, bench.py, --duration, "60"]
  cpu_cores: 4-7
phases:
  grammar: delimited
  warmup_timeout: 70s
monitor:
  collectors: [perf_stat, profiler]
  profiler:
    event: itimer
    interval: 5ms
artifacts:
  backend: s3
  s3:
    bucket: bench-artifacts
    endpoint: http://localhost:9000
    use_path_style: true
`)

	cfg, err := NewLoader().Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"python3", "bench.py", "--duration", "60"}, cfg.Workload.Command)
	assert.Equal(t, "4-7", cfg.Workload.CPUCores)
	assert.Equal(t, 70*time.Second, cfg.Phases.WarmupTimeout)
	assert.Equal(t, []string{"perf_stat", "profiler"}, cfg.Monitor.Collectors)
	assert.Equal(t, "itimer", cfg.Monitor.Profiler.Event)
	assert.Equal(t, 5*time.Millisecond, cfg.Monitor.Profiler.Interval)
	// Untouched profiler fields keep their defaults.
	assert.Equal(t, "asprof", cfg.Monitor.Profiler.Command)
	assert.Equal(t, "bench-artifacts", cfg.Artifacts.S3.Bucket)
	assert.True(t, cfg.Artifacts.S3.UsePathStyle)
	assert.Equal(t, "--output", cfg.Workload.OutputFlag)

	g, err := cfg.Grammar()
	require.NoError(t, err)
	assert.Equal(t, phase.GrammarDelimited, g)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
workload:
  command: [bench]
phases:
  grammar: json
`)
	t.Setenv("BENCHRUN_GRAMMAR", "delimited")
	t.Setenv("BENCHRUN_COLLECTORS", "mpstat, iostat")
	t.Setenv("BENCHRUN_STEADY_TIMEOUT", "2m")
	t.Setenv("BENCHRUN_S3_PATH_STYLE", "true")
	t.Setenv("BENCHRUN_PROFILER_INTERVAL", "1ms")

	cfg, err := NewLoader().Load(path)
	require.NoError(t, err)

	assert.Equal(t, "delimited", cfg.Phases.Grammar)
	assert.Equal(t, []string{"mpstat", "iostat"}, cfg.Monitor.Collectors)
	assert.Equal(t, 2*time.Minute, cfg.Phases.SteadyTimeout)
	assert.True(t, cfg.Artifacts.S3.UsePathStyle)
	assert.Equal(t, time.Millisecond, cfg.Monitor.Profiler.Interval)
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	_, err := NewLoader().Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, "workload:\n  comand: [bench]\n")
	_, err := NewLoader().Load(path)
	assert.ErrorContains(t, err, "comand")
}

func TestLoad_ImplicitFileInWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "benchrun.yaml"), []byte("workload:\n  command: [bench]\n"), 0o644))
	t.Chdir(dir)

	cfg, err := NewLoader().Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"bench"}, cfg.Workload.Command)
}

func TestLoad_DisabledLayers(t *testing.T) {
	t.Setenv("BENCHRUN_GRAMMAR", "json")

	l := NewLoader()
	l.DisableLayer(LayerDefaults)
	l.DisableLayer(LayerFile)
	l.DisableLayer(LayerEnv)
	cfg, err := l.Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Phases.Grammar)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Workload.Command = []string{"bench", "--fast"}

	data, err := Marshal(cfg)
	require.NoError(t, err)

	back := Default()
	require.NoError(t, decodeYAML(data, back))
	assert.Equal(t, cfg.Workload, back.Workload)
	assert.Equal(t, cfg.Monitor, back.Monitor)
}
