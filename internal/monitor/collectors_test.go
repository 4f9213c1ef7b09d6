package monitor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireBinary(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

func TestProcessCollector_StopsOnSignal(t *testing.T) {
	requireBinary(t, "sh")

	out := filepath.Join(t.TempDir(), "tool.log")
	p := NewProcessCollector(ProcessSpec{
		Name:        "tool",
		Argv:        func(Target) []string { return []string{"sh", "-c", "echo sampling; exec sleep 30"} },
		Output:      out,
		StopSignal:  syscall.SIGTERM,
		Group:       true,
		StopTimeout: 2 * time.Second,
	}, zerolog.Nop())

	require.NoError(t, p.Start(context.Background(), Target{PID: 1}))

	// Output must be flushed to the file before the group is signalled.
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(out)
		return err == nil && strings.Contains(string(data), "sampling")
	}, 5*time.Second, 10*time.Millisecond)

	start := time.Now()
	require.NoError(t, p.Stop(context.Background()))
	assert.Less(t, time.Since(start), 2*time.Second)

	exited, _ := p.Exited()
	assert.True(t, exited)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "sampling\n", string(data))

	// Idempotent.
	require.NoError(t, p.Stop(context.Background()))
}

func TestProcessCollector_KillsAfterTimeout(t *testing.T) {
	requireBinary(t, "sh")

	p := NewProcessCollector(ProcessSpec{
		Name:        "stubborn",
		Argv:        func(Target) []string { return []string{"sh", "-c", "trap '' INT TERM; sleep 30 & wait"} },
		Output:      filepath.Join(t.TempDir(), "stubborn.log"),
		StopSignal:  syscall.SIGINT,
		Group:       true,
		StopTimeout: 200 * time.Millisecond,
	}, zerolog.Nop())

	require.NoError(t, p.Start(context.Background(), Target{PID: 1}))
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	require.NoError(t, p.Stop(context.Background()))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, 3*time.Second)
}

func TestProcessCollector_StartFailure(t *testing.T) {
	p := NewProcessCollector(ProcessSpec{
		Name:   "missing",
		Argv:   func(Target) []string { return []string{"/nonexistent/benchrun-tool"} },
		Output: filepath.Join(t.TempDir(), "missing.log"),
	}, zerolog.Nop())

	require.Error(t, p.Start(context.Background(), Target{PID: 1}))
	// Stop after a failed start does nothing.
	require.NoError(t, p.Stop(context.Background()))
}

func TestPerfStatArgs(t *testing.T) {
	for _, hardware := range []bool{true, false} {
		env := Environment{WorkDir: t.TempDir(), HardwareCounters: hardware, Logger: zerolog.Nop()}
		p := NewPerfStat(env).(*ProcessCollector)
		argv := p.spec.Argv(Target{PID: 123})
		assert.Equal(t, []string{"perf", "stat", "-e", strings.Join(PerfEvents(hardware), ","), "-p", "123"}, argv)
		assert.True(t, p.spec.Stderr)
		assert.Equal(t, syscall.SIGINT, p.spec.StopSignal)
	}
	assert.Contains(t, PerfEvents(true), "cycles")
	assert.Equal(t, "task-clock,context-switches,cpu-migrations,page-faults", strings.Join(PerfEvents(false), ","))
}

func TestAsyncProfilerArgsPaired(t *testing.T) {
	factory := NewAsyncProfilerFactory(ProfilerConfig{Interval: 5 * time.Millisecond})
	env := Environment{WorkDir: "/work", Logger: zerolog.Nop()}
	a := factory(env).(*AsyncProfiler)

	target := Target{PID: 77}
	start := a.StartArgs(target)
	stop := a.StopArgs(target)

	assert.Equal(t, []string{"start", "-e", "cpu", "-i", "5ms", "-o", "collapsed", "-f", "/work/profile.collapsed", "77"}, start)
	assert.Equal(t, []string{"stop", "-o", "collapsed", "-f", "/work/profile.collapsed", "77"}, stop)
	assert.Equal(t, start[len(start)-5:], stop[1:])
}

func TestAsyncProfiler_StartFailureThenStop(t *testing.T) {
	factory := NewAsyncProfilerFactory(ProfilerConfig{Command: "/nonexistent/asprof"})
	a := factory(Environment{WorkDir: t.TempDir(), Logger: zerolog.Nop()})

	require.Error(t, a.Start(context.Background(), Target{PID: 1}))
	require.NoError(t, a.Stop(context.Background()))
}

func TestFormatInterval(t *testing.T) {
	assert.Equal(t, "10ms", formatInterval(10*time.Millisecond))
	assert.Equal(t, "250us", formatInterval(250*time.Microsecond))
	assert.Equal(t, "1500", formatInterval(1500*time.Nanosecond))
}

func TestCountersSupported(t *testing.T) {
	assert.True(t, CountersSupported("  1,234,567      cycles\n"))
	assert.False(t, CountersSupported("   <not supported>      cycles\n"))
	assert.False(t, CountersSupported("   <not counted>      cycles\n"))
}

func TestSystemSampler(t *testing.T) {
	dir := t.TempDir()
	s := NewSystemSamplerFactory(20 * time.Millisecond)(Environment{WorkDir: dir, Logger: zerolog.Nop()})

	require.NoError(t, s.Start(context.Background(), Target{PID: os.Getpid()}))
	time.Sleep(120 * time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	data, err := os.ReadFile(s.OutputPath())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.NotEmpty(t, lines)
	assert.Contains(t, lines[0], `"process":{"pid":`)
}
