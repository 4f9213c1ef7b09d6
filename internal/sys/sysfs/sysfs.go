// Package sysfs reads and writes single-value kernel tunables under /sys
// and /proc/sys.
package sysfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Tunables used for run-to-run variance control. Paths are relative to the
// filesystem root.
const (
	IntelNoTurbo      = "sys/devices/system/cpu/intel_pstate/no_turbo"
	CPUFreqBoost      = "sys/devices/system/cpu/cpufreq/boost"
	NMIWatchdog       = "proc/sys/kernel/nmi_watchdog"
	PerfEventParanoid = "proc/sys/kernel/perf_event_paranoid"
	KptrRestrict      = "proc/sys/kernel/kptr_restrict"
)

// Knob is one tunable file.
type Knob struct {
	Path string
}

// NewKnob returns the knob rel under root. An empty root means "/".
func NewKnob(root, rel string) Knob {
	if root == "" {
		root = "/"
	}
	return Knob{Path: filepath.Join(root, rel)}
}

// Exists reports whether the knob is present on this kernel.
func (k Knob) Exists() bool {
	_, err := os.Stat(k.Path)
	return err == nil
}

// Read returns the knob's value without surrounding whitespace.
func (k Knob) Read() (string, error) {
	data, err := os.ReadFile(k.Path) // #nosec G304 -- fixed kernel paths.
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Write stores value. The knob must already exist.
func (k Knob) Write(value string) error {
	f, err := os.OpenFile(k.Path, os.O_WRONLY|os.O_TRUNC, 0) // #nosec G304 -- fixed kernel paths.
	if err != nil {
		return err
	}
	if _, err := f.WriteString(value); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Override is a knob value that can be put back.
type Override struct {
	Knob     Knob
	Original string
	Value    string
}

// Set writes value to k and remembers what was there before.
func Set(k Knob, value string) (*Override, error) {
	original, err := k.Read()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", k.Path, err)
	}
	if err := k.Write(value); err != nil {
		return nil, fmt.Errorf("write %s: %w", k.Path, err)
	}
	return &Override{Knob: k, Original: original, Value: value}, nil
}

// Restore writes the original value back.
func (o *Override) Restore() error {
	if o == nil {
		return nil
	}
	if err := o.Knob.Write(o.Original); err != nil {
		return fmt.Errorf("restore %s: %w", o.Knob.Path, err)
	}
	return nil
}

// IsPermission reports whether err came from insufficient privileges.
func IsPermission(err error) bool {
	return errors.Is(err, os.ErrPermission)
}
