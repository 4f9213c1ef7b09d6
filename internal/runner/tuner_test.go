package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchrun/benchrun/internal/sys/sysfs"
)

func seedKnob(t *testing.T, root, rel, value string) string {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(value+"\n"), 0o644))
	return p
}

func readKnob(t *testing.T, p string) string {
	t.Helper()
	v, err := sysfs.Knob{Path: p}.Read()
	require.NoError(t, err)
	return v
}

func TestSysfsTuner_AppliesAndRestores(t *testing.T) {
	root := t.TempDir()
	turbo := seedKnob(t, root, sysfs.IntelNoTurbo, "0")
	nmi := seedKnob(t, root, sysfs.NMIWatchdog, "1")
	paranoid := seedKnob(t, root, sysfs.PerfEventParanoid, "2")
	kptr := seedKnob(t, root, sysfs.KptrRestrict, "1")

	tuner := &SysfsTuner{
		Root:   root,
		Config: TuningConfig{DisableTurbo: true, DisableNMIWatchdog: true, RelaxPerf: true},
		Logger: zerolog.Nop(),
	}

	status, err := tuner.Setup(context.Background())
	require.NoError(t, err)
	assert.True(t, status.TurboBoostDisabled)
	assert.True(t, status.NMIWatchdogDisabled)
	assert.True(t, status.PerfRelaxed)

	assert.Equal(t, "1", readKnob(t, turbo))
	assert.Equal(t, "0", readKnob(t, nmi))
	assert.Equal(t, "-1", readKnob(t, paranoid))
	assert.Equal(t, "0", readKnob(t, kptr))

	require.NoError(t, tuner.Teardown(context.Background()))
	assert.Equal(t, "0", readKnob(t, turbo))
	assert.Equal(t, "1", readKnob(t, nmi))
	assert.Equal(t, "2", readKnob(t, paranoid))
	assert.Equal(t, "1", readKnob(t, kptr))

	require.NoError(t, tuner.Teardown(context.Background()))
}

func TestSysfsTuner_AMDBoost(t *testing.T) {
	root := t.TempDir()
	boost := seedKnob(t, root, sysfs.CPUFreqBoost, "1")

	tuner := &SysfsTuner{Root: root, Config: TuningConfig{DisableTurbo: true}, Logger: zerolog.Nop()}
	status, err := tuner.Setup(context.Background())
	require.NoError(t, err)
	assert.True(t, status.TurboBoostDisabled)
	assert.Equal(t, "0", readKnob(t, boost))

	require.NoError(t, tuner.Teardown(context.Background()))
	assert.Equal(t, "1", readKnob(t, boost))
}

func TestSysfsTuner_MissingKnobsSkipped(t *testing.T) {
	tuner := &SysfsTuner{
		Root:   t.TempDir(),
		Config: TuningConfig{DisableTurbo: true, DisableNMIWatchdog: true, RelaxPerf: true},
		Logger: zerolog.Nop(),
	}
	status, err := tuner.Setup(context.Background())
	require.NoError(t, err)
	assert.False(t, status.TurboBoostDisabled)
	assert.False(t, status.NMIWatchdogDisabled)
	assert.False(t, status.PerfRelaxed)
	assert.NoError(t, tuner.Teardown(context.Background()))
}

func TestNopTuner(t *testing.T) {
	status, err := NopTuner{}.Setup(context.Background())
	require.NoError(t, err)
	assert.Zero(t, status)
	assert.NoError(t, NopTuner{}.Teardown(context.Background()))
}
