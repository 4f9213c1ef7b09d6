package testutil

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benchrun/benchrun/internal/flamegraph"
	"github.com/benchrun/benchrun/internal/report"
	"github.com/benchrun/benchrun/internal/store"
)

// NewTestStore opens a results store in the test's temp directory and
// returns it with its path. The store is closed when the test completes.
func NewTestStore(t *testing.T) (*store.Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "results.duckdb")
	s, err := store.Open(path, NewTestLogger(t))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("failed to close test store: %v", err)
		}
	})
	return s, path
}

// SaveTestRun stores a completed run whose flame graph is built from
// collapsed, one "frames count" per line.
func SaveTestRun(t *testing.T, s *store.Store, jobID string, ts time.Time, collapsed ...string) *report.Report {
	t.Helper()

	var samples []flamegraph.StackSample
	for _, line := range collapsed {
		parsed, _, err := flamegraph.ParseCollapsed(strings.NewReader(line + "\n"))
		if err != nil {
			t.Fatalf("failed to parse stack %q: %v", line, err)
		}
		samples = append(samples, parsed...)
	}
	tree := flamegraph.BuildTree(samples)
	rows := flamegraph.Serialize(tree)

	rep := report.New(jobID, ts)
	rep.Environment.Hostname = "bench-host"
	rep.ElapsedSeconds = 12.5
	rep.Flamegraph.TotalSamples = tree.Total()
	rep.Flamegraph.Nodes = tree.Len()
	rep.Operations["GET"] = report.Operation{TotalRequests: 100, SuccessfulRequests: 100}

	if err := s.SaveRun(NewTestContext(t), rep, rows); err != nil {
		t.Fatalf("failed to save run %s: %v", jobID, err)
	}
	return rep
}
