package sysfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKnob(t *testing.T, root, rel, value string) Knob {
	t.Helper()
	k := NewKnob(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(k.Path), 0o755))
	require.NoError(t, os.WriteFile(k.Path, []byte(value+"\n"), 0o644))
	return k
}

func TestKnob_ReadWrite(t *testing.T) {
	root := t.TempDir()
	k := writeKnob(t, root, NMIWatchdog, "1")

	assert.True(t, k.Exists())
	v, err := k.Read()
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	require.NoError(t, k.Write("0"))
	v, err = k.Read()
	require.NoError(t, err)
	assert.Equal(t, "0", v)
}

func TestKnob_WriteDoesNotCreate(t *testing.T) {
	k := NewKnob(t.TempDir(), IntelNoTurbo)
	assert.False(t, k.Exists())
	assert.Error(t, k.Write("1"))
	assert.False(t, k.Exists())
}

func TestSetRestore(t *testing.T) {
	root := t.TempDir()
	k := writeKnob(t, root, CPUFreqBoost, "1")

	o, err := Set(k, "0")
	require.NoError(t, err)
	assert.Equal(t, "1", o.Original)

	v, _ := k.Read()
	assert.Equal(t, "0", v)

	require.NoError(t, o.Restore())
	v, _ = k.Read()
	assert.Equal(t, "1", v)

	var none *Override
	assert.NoError(t, none.Restore())
}

func TestSet_Missing(t *testing.T) {
	_, err := Set(NewKnob(t.TempDir(), PerfEventParanoid), "-1")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewKnob_DefaultRoot(t *testing.T) {
	assert.Equal(t, "/proc/sys/kernel/nmi_watchdog", NewKnob("", NMIWatchdog).Path)
}
