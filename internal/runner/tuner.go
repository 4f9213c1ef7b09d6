package runner

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/benchrun/benchrun/internal/logging"
	"github.com/benchrun/benchrun/internal/privilege"
	"github.com/benchrun/benchrun/internal/report"
	"github.com/benchrun/benchrun/internal/sys/sysfs"
)

// Tuner reduces run-to-run variance for the duration of a run.
type Tuner interface {
	Setup(ctx context.Context) (report.Tuning, error)
	Teardown(ctx context.Context) error
}

// NopTuner changes nothing.
type NopTuner struct{}

func (NopTuner) Setup(context.Context) (report.Tuning, error) { return report.Tuning{}, nil }
func (NopTuner) Teardown(context.Context) error               { return nil }

// TuningConfig selects which controls SysfsTuner applies.
type TuningConfig struct {
	DisableTurbo       bool `yaml:"disable_turbo" env:"BENCHRUN_DISABLE_TURBO"`
	DisableNMIWatchdog bool `yaml:"disable_nmi_watchdog" env:"BENCHRUN_DISABLE_NMI_WATCHDOG"`
	RelaxPerf          bool `yaml:"relax_perf" env:"BENCHRUN_RELAX_PERF"`
}

// SysfsTuner writes kernel knobs directly and restores them on Teardown.
// Knobs that are missing or not writable are skipped with a warning.
type SysfsTuner struct {
	// Root prefixes every knob path; empty means "/".
	Root   string
	Config TuningConfig
	Logger zerolog.Logger

	overrides []*sysfs.Override
}

// NewSysfsTuner creates a tuner for the live system.
func NewSysfsTuner(cfg TuningConfig, logger zerolog.Logger) *SysfsTuner {
	return &SysfsTuner{
		Config: cfg,
		Logger: logging.Component(logger, "tuner"),
	}
}

// Setup applies the configured controls. It never fails the run.
func (t *SysfsTuner) Setup(context.Context) (report.Tuning, error) {
	var status report.Tuning
	if !privilege.IsRoot() {
		t.Logger.Warn().Msg("Not running as root, variance controls will likely be skipped")
	}

	if t.Config.DisableTurbo {
		// intel_pstate inverts the sense of the knob.
		switch intel, amd := t.knob(sysfs.IntelNoTurbo), t.knob(sysfs.CPUFreqBoost); {
		case intel.Exists():
			status.TurboBoostDisabled = t.apply(intel, "1", "Intel turbo boost disabled")
		case amd.Exists():
			status.TurboBoostDisabled = t.apply(amd, "0", "CPU boost disabled")
		default:
			t.Logger.Warn().Msg("No turbo boost control found")
		}
	}

	if t.Config.DisableNMIWatchdog {
		status.NMIWatchdogDisabled = t.apply(t.knob(sysfs.NMIWatchdog), "0", "NMI watchdog disabled")
	}

	if t.Config.RelaxPerf {
		paranoid := t.apply(t.knob(sysfs.PerfEventParanoid), "-1", "perf_event_paranoid relaxed")
		kptr := t.apply(t.knob(sysfs.KptrRestrict), "0", "kptr_restrict relaxed")
		status.PerfRelaxed = paranoid && kptr
	}

	return status, nil
}

func (t *SysfsTuner) knob(rel string) sysfs.Knob {
	return sysfs.NewKnob(t.Root, rel)
}

func (t *SysfsTuner) apply(k sysfs.Knob, value, msg string) bool {
	o, err := sysfs.Set(k, value)
	if err != nil {
		ev := t.Logger.Warn().Err(err).Str("path", k.Path)
		if sysfs.IsPermission(err) {
			ev = ev.Bool("permission_denied", true)
		}
		ev.Msg("Could not apply variance control")
		return false
	}
	t.overrides = append(t.overrides, o)
	t.Logger.Info().Str("path", k.Path).Str("was", o.Original).Msg(msg)
	return true
}

// Teardown restores knobs in reverse order.
func (t *SysfsTuner) Teardown(context.Context) error {
	var errs error
	for i := len(t.overrides) - 1; i >= 0; i-- {
		if err := t.overrides[i].Restore(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	t.overrides = nil
	if errs != nil {
		return fmt.Errorf("failed to restore variance controls: %w", errs)
	}
	return nil
}
