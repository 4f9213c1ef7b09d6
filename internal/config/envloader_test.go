package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envInner struct {
	Rate float64 `env:"TEST_BENCH_RATE"`
}

type envSample struct {
	Name    string        `env:"TEST_BENCH_NAME"`
	Count   int           `env:"TEST_BENCH_COUNT"`
	Enabled bool          `env:"TEST_BENCH_ENABLED"`
	Wait    time.Duration `env:"TEST_BENCH_WAIT"`
	Items   []string      `env:"TEST_BENCH_ITEMS"`
	Inner   envInner
	Skipped string
	hidden  string `env:"TEST_BENCH_HIDDEN"`
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TEST_BENCH_NAME", "steady")
	t.Setenv("TEST_BENCH_COUNT", "42")
	t.Setenv("TEST_BENCH_ENABLED", "true")
	t.Setenv("TEST_BENCH_WAIT", "1m30s")
	t.Setenv("TEST_BENCH_ITEMS", "a, b,,c")
	t.Setenv("TEST_BENCH_RATE", "0.25")
	t.Setenv("TEST_BENCH_HIDDEN", "x")

	s := envSample{Skipped: "keep"}
	require.NoError(t, LoadFromEnv(&s))

	assert.Equal(t, "steady", s.Name)
	assert.Equal(t, 42, s.Count)
	assert.True(t, s.Enabled)
	assert.Equal(t, 90*time.Second, s.Wait)
	assert.Equal(t, []string{"a", "b", "c"}, s.Items)
	assert.Equal(t, 0.25, s.Inner.Rate)
	assert.Equal(t, "keep", s.Skipped)
	assert.Empty(t, s.hidden)
}

func TestLoadFromEnv_EmptyLeavesValue(t *testing.T) {
	t.Setenv("TEST_BENCH_NAME", "")
	s := envSample{Name: "default"}
	require.NoError(t, LoadFromEnv(&s))
	assert.Equal(t, "default", s.Name)
}

func TestLoadFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{name: "bad int", env: "TEST_BENCH_COUNT", val: "many"},
		{name: "bad bool", env: "TEST_BENCH_ENABLED", val: "perhaps"},
		{name: "bad duration", env: "TEST_BENCH_WAIT", val: "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.val)
			err := LoadFromEnv(&envSample{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.env)
		})
	}

	assert.Error(t, LoadFromEnv(envSample{}))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"python3", "bench.py", "--duration", "60"}, splitList("python3 bench.py  --duration 60"))
	assert.Equal(t, []string{"mpstat", "perf_stat"}, splitList("mpstat,perf_stat,"))
}
