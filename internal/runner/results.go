package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"github.com/benchrun/benchrun/internal/artifact"
	ierrors "github.com/benchrun/benchrun/internal/errors"
	"github.com/benchrun/benchrun/internal/flamegraph"
	"github.com/benchrun/benchrun/internal/monitor"
	"github.com/benchrun/benchrun/internal/phase"
	"github.com/benchrun/benchrun/internal/privilege"
	"github.com/benchrun/benchrun/internal/report"
	"github.com/benchrun/benchrun/internal/safe"
	"github.com/benchrun/benchrun/internal/sysstat"
)

// Artifact file names inside the run directory.
const (
	FlamegraphCSV   = "flamegraph.csv"
	FlamegraphPprof = "flamegraph.pb.gz"
)

// collect fills the report from the phase log and collector outputs.
// Individual parse failures are logged; the report keeps zero values.
func (rs *run) collect() {
	rep := rs.rep
	outputs := rs.coord.Outputs()
	hardware := rs.coord.HardwareCountersAvailable()

	rep.Environment.HardwareCounters = hardware
	rep.Perf.HardwareCounters = hardware
	for name, err := range rs.coord.Failed() {
		rep.FailedCollectors[name] = err.Error()
	}

	if err := rs.collectOperations(); err != nil {
		rs.logger.Warn().Err(err).Msg("Failed to extract operation results")
	}

	var err error
	if p, ok := outputs[monitor.NamePerfStat]; ok {
		if rep.Perf.Counters, err = sysstat.ParsePerfStat(p, hardware); err != nil {
			rs.logger.Warn().Err(err).Msg("Failed to parse perf stat output")
		}
	}
	if p, ok := outputs[monitor.NameMpstat]; ok {
		if rep.CPU, err = sysstat.ParseMpstat(p); err != nil {
			rs.logger.Warn().Err(err).Msg("Failed to parse mpstat output")
		}
	}
	if p, ok := outputs[monitor.NameIostat]; ok {
		if rep.IO.Disk, err = sysstat.ParseIostat(p); err != nil {
			rs.logger.Warn().Err(err).Msg("Failed to parse iostat output")
		}
	}
	if p, ok := outputs[monitor.NameSarNetwork]; ok {
		if rep.IO.Network, err = sysstat.ParseSarNetwork(p); err != nil {
			rs.logger.Warn().Err(err).Msg("Failed to parse sar output")
		}
	}
	if p, ok := outputs[monitor.NameSystem]; ok {
		if rep.Host, err = sysstat.ParseSystemSamples(p, rs.logger); err != nil {
			rs.logger.Warn().Err(err).Msg("Failed to parse system samples")
		}
	}

	for name, p := range outputs {
		rep.Artifacts[name] = p
	}

	rs.aggregateProfile(outputs)
}

func (rs *run) collectOperations() error {
	f, err := safe.Open(rs.logPath)
	if err != nil {
		return err
	}
	defer safe.Close(f, rs.logger, "failed to close phase log")

	records, skipped, err := phase.ReadRecords(f, rs.cfg.Grammar)
	if err != nil {
		return err
	}
	if skipped > 0 {
		rs.logger.Debug().Int("skipped", skipped).Msg("Skipped unparseable phase log lines")
	}

	ops, elapsed, err := report.OperationsFromRecords(records, phase.Steady)
	if err != nil {
		return err
	}
	rs.rep.Operations = ops
	rs.rep.ElapsedSeconds = elapsed
	return nil
}

// aggregateProfile turns the profiler's collapsed stacks into the flame
// graph artifacts. An empty profile is not an error.
func (rs *run) aggregateProfile(outputs map[string]string) {
	fg := &rs.rep.Flamegraph

	path, ok := outputs[monitor.NameProfiler]
	if !ok {
		fg.Skipped = true
		fg.SkipReason = "profiler not running"
		return
	}

	tree, stats, err := flamegraph.LoadFile(path)
	fg.MalformedLines = stats.Malformed
	if err != nil {
		rs.logger.Warn().Err(err).Msg("Failed to read profiler output")
	}
	if tree.Empty() {
		rs.logger.Warn().Str("path", path).Msg("Profiler produced no samples, skipping flame graph")
		fg.Skipped = true
		fg.SkipReason = "no samples"
		return
	}

	rows := flamegraph.Serialize(tree)
	fg.TotalSamples = tree.Total()
	fg.Nodes = tree.Len()

	csvPath := filepath.Join(rs.dir, FlamegraphCSV)
	if err := writeFile(csvPath, rs, func(f *os.File) error {
		return flamegraph.WriteNestedSet(f, rows)
	}); err != nil {
		rs.logger.Error().Err(err).Msg("Failed to write flame graph table")
	} else {
		rs.rep.Artifacts["flamegraph_csv"] = csvPath
	}

	opts := flamegraph.DefaultProfileOptions()
	if ev := rs.cfg.Monitor.Profiler.Event; ev != "" {
		opts.SampleType = ev
	}
	if iv := rs.cfg.Monitor.Profiler.Interval; iv > 0 {
		opts.Period = iv.Nanoseconds()
	}
	opts.Duration = rs.steadyEnd.Sub(rs.steadyStart)

	pprofPath := filepath.Join(rs.dir, FlamegraphPprof)
	if err := writeFile(pprofPath, rs, func(f *os.File) error {
		return flamegraph.WriteProfile(f, tree, opts)
	}); err != nil {
		rs.logger.Error().Err(err).Msg("Failed to write pprof profile")
	} else {
		rs.rep.Artifacts["flamegraph_pprof"] = pprofPath
	}

	rs.rows = rows
	rs.logger.Info().
		Int64("samples", fg.TotalSamples).
		Int("nodes", fg.Nodes).
		Msg("Flame graph aggregated")
}

func writeFile(path string, rs *run, write func(*os.File) error) error {
	f, err := os.Create(path) // #nosec G304 -- inside the run directory.
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		ierrors.DeferClose(rs.logger, f, "failed to close "+filepath.Base(path))
		ierrors.DeferRemove(rs.logger, path)
		return err
	}
	return f.Close()
}

// finish writes the report, copies the phase log next to it, then persists
// and uploads. Every step is attempted.
func (rs *run) finish(ctx context.Context) error {
	var errs error

	if err := os.MkdirAll(filepath.Dir(rs.reportPath), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if _, err := os.Stat(rs.logPath); err == nil {
		rs.rep.Artifacts["phase_log"] = rs.logPath
		if filepath.Dir(rs.reportPath) != rs.dir {
			dst := strings.TrimSuffix(rs.reportPath, filepath.Ext(rs.reportPath)) + filepath.Ext(rs.logPath)
			if err := safe.CopyFile(rs.logPath, dst); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("failed to copy phase log: %w", err))
			} else {
				rs.rep.Artifacts["phase_log"] = dst
			}
		}
	}
	if p := filepath.Join(rs.dir, "workload.out"); fileExists(p) {
		rs.rep.Artifacts["workload_output"] = p
	}

	if err := rs.rep.WriteFile(rs.reportPath); err != nil {
		return multierr.Append(errs, err)
	}
	if err := privilege.FixFileOwnership(rs.reportPath, rs.dir); err != nil {
		rs.logger.Warn().Err(err).Msg("Failed to hand report back to invoking user")
	}

	if rs.cfg.Results != nil {
		if err := rs.cfg.Results.SaveRun(ctx, rs.rep, rs.rows); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to save run: %w", err))
		} else {
			rs.logger.Info().Msg("Run saved to results store")
		}
	}

	if rs.cfg.Artifacts != nil {
		if err := artifact.UploadAll(ctx, rs.cfg.Artifacts, rs.uploads()); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			rs.logger.Info().Msg("Artifacts uploaded")
		}
	}
	return errs
}

// uploads maps object keys to local files: the report plus every artifact.
func (rs *run) uploads() map[string]string {
	files := map[string]string{
		artifact.Key(rs.cfg.ArtifactPrefix, rs.rep.JobID, filepath.Base(rs.reportPath)): rs.reportPath,
	}
	for _, local := range rs.rep.Artifacts {
		files[artifact.Key(rs.cfg.ArtifactPrefix, rs.rep.JobID, filepath.Base(local))] = local
	}
	return files
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
