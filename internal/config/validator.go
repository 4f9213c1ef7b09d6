package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/benchrun/benchrun/internal/monitor"
	"github.com/benchrun/benchrun/internal/phase"
)

// ValidationError is one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MultiValidationError collects every invalid field.
type MultiValidationError struct {
	Errors []ValidationError
}

func (e *MultiValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no validation errors"
	case 1:
		return e.Errors[0].Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "validation failed with %d errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err.Error())
	}
	return b.String()
}

// Validate checks the configuration needed for a run.
func (c *Config) Validate() error {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if len(c.Workload.Command) == 0 {
		add("workload.command", "is required")
	}
	if _, err := phase.ParseGrammar(c.Phases.Grammar); err != nil {
		add("phases.grammar", "%v", err)
	}
	durations := []struct {
		field string
		value time.Duration
	}{
		{"phases.file_wait_timeout", c.Phases.FileWaitTimeout},
		{"phases.warmup_timeout", c.Phases.WarmupTimeout},
		{"phases.steady_timeout", c.Phases.SteadyTimeout},
		{"phases.exit_timeout", c.Phases.ExitTimeout},
		{"monitor.stop_timeout", c.Monitor.StopTimeout},
		{"monitor.sample_interval", c.Monitor.SampleInterval},
		{"monitor.profiler.interval", c.Monitor.Profiler.Interval},
	}
	for _, d := range durations {
		if d.value < 0 {
			add(d.field, "must not be negative")
		}
	}

	if _, err := monitor.Factories(c.MonitorOptions()); err != nil {
		add("monitor.collectors", "%v", err)
	}
	if c.Output.WorkDir == "" {
		add("output.work_dir", "is required")
	}
	if c.Store.Enabled && c.Store.Path == "" {
		add("store.path", "is required when the store is enabled")
	}

	switch c.Artifacts.Backend {
	case "", BackendNone:
	case BackendLocal:
		if c.Artifacts.LocalDir == "" {
			add("artifacts.local_dir", "is required for the local backend")
		}
	case BackendS3:
		if c.Artifacts.S3.Bucket == "" {
			add("artifacts.s3.bucket", "is required for the s3 backend")
		}
	default:
		add("artifacts.backend", "unknown backend %q (want none, local or s3)", c.Artifacts.Backend)
	}

	if len(errs) == 0 {
		return nil
	}
	return &MultiValidationError{Errors: errs}
}
