// Package store persists run reports and flame graph rows in DuckDB so runs
// can be listed and compared across jobs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	ierrors "github.com/benchrun/benchrun/internal/errors"
	"github.com/benchrun/benchrun/internal/flamegraph"
	"github.com/benchrun/benchrun/internal/logging"
	"github.com/benchrun/benchrun/internal/report"
)

// ErrRunNotFound is returned by GetRun for an unknown job id.
var ErrRunNotFound = errors.New("run not found")

// Store wraps a DuckDB database.
type Store struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// Open opens or creates the database at path. An empty path or ":memory:"
// opens an in-memory database.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	connStr := path
	if path != "" && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	} else {
		connStr = ""
	}

	db, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		path:   path,
		logger: logging.Component(logger, "results_store"),
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Debug().Str("path", path).Msg("Results store opened")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS benchmark_runs (
			job_id            TEXT NOT NULL,
			timestamp         TIMESTAMP NOT NULL,
			status            TEXT NOT NULL,
			error             TEXT,
			hostname          TEXT,
			elapsed_seconds   DOUBLE NOT NULL DEFAULT 0,
			hardware_counters BOOLEAN NOT NULL DEFAULT false,
			total_samples     BIGINT NOT NULL DEFAULT 0,
			report_json       TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS benchmark_operations (
			job_id              TEXT NOT NULL,
			command_name        TEXT NOT NULL,
			total_requests      BIGINT NOT NULL,
			successful_requests BIGINT NOT NULL,
			failed_requests     BIGINT NOT NULL,
			latency_min_us      BIGINT NOT NULL,
			latency_max_us      BIGINT NOT NULL
		);

		-- Nested-set rows; path_hash (xxh3 of the frame path, stored as a
		-- signed BIGINT) identifies a frame path across runs. Rows are
		-- replaced per job inside one transaction, so no key constraints.
		CREATE TABLE IF NOT EXISTS flamegraph_rows (
			job_id    TEXT    NOT NULL,
			row_index INTEGER NOT NULL,
			level     INTEGER NOT NULL,
			value     BIGINT  NOT NULL,
			self      BIGINT  NOT NULL,
			label     TEXT    NOT NULL,
			path_hash BIGINT  NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// PathHash hashes a frame path for cross-run comparison. The 64-bit hash
// is reinterpreted as int64 to fit a BIGINT column.
func PathHash(frames []string) int64 {
	return int64(xxh3.HashString(strings.Join(frames, flamegraph.FrameSeparator))) // #nosec G115 -- bit reinterpretation.
}

// SaveRun stores the report, its operations and the flame graph rows in
// one transaction, replacing any previous data for the job.
func (s *Store) SaveRun(ctx context.Context, r *report.Report, rows []flamegraph.Row) error {
	data, err := jsonMarshal(r)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer ierrors.DeferRollback(s.logger, tx)

	for _, table := range []string{"flamegraph_rows", "benchmark_operations", "benchmark_runs"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE job_id = ?", r.JobID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO benchmark_runs
			(job_id, timestamp, status, error, hostname, elapsed_seconds, hardware_counters, total_samples, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.JobID, r.Timestamp, r.Status, r.Error, r.Environment.Hostname, r.ElapsedSeconds,
		r.Perf.HardwareCounters, r.Flamegraph.TotalSamples, string(data))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for name, op := range r.Operations {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO benchmark_operations
				(job_id, command_name, total_requests, successful_requests, failed_requests, latency_min_us, latency_max_us)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.JobID, name, op.TotalRequests, op.SuccessfulRequests, op.FailedRequests, op.LatencyMinUs, op.LatencyMaxUs)
		if err != nil {
			return fmt.Errorf("failed to insert operation %s: %w", name, err)
		}
	}

	if len(rows) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO flamegraph_rows (job_id, row_index, level, value, self, label, path_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare flamegraph insert: %w", err)
		}
		defer ierrors.DeferClose(s.logger, stmt, "failed to close statement")

		for i, path := range flamegraph.Paths(rows) {
			row := rows[i]
			if _, err := stmt.ExecContext(ctx, r.JobID, i, row.Level, row.Value, row.Self, row.Label, PathHash(path)); err != nil {
				return fmt.Errorf("failed to insert flamegraph row %d: %w", i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	s.logger.Info().
		Str("job_id", r.JobID).
		Int("operations", len(r.Operations)).
		Int("flamegraph_rows", len(rows)).
		Msg("Run saved")
	return nil
}

// GetRun loads a stored report.
func (s *Store) GetRun(ctx context.Context, jobID string) (*report.Report, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT report_json FROM benchmark_runs WHERE job_id = ?", jobID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return report.Unmarshal([]byte(data))
}

// RunSummary is one row of ListRuns.
type RunSummary struct {
	JobID          string
	Timestamp      time.Time
	Status         string
	Hostname       string
	ElapsedSeconds float64
	TotalSamples   int64
	Operations     int
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `
		SELECT r.job_id, r.timestamp, r.status, COALESCE(r.hostname, ''), r.elapsed_seconds, r.total_samples,
		       (SELECT COUNT(*) FROM benchmark_operations o WHERE o.job_id = r.job_id)
		FROM benchmark_runs r
		ORDER BY r.timestamp DESC, r.job_id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		if err := rows.Scan(&rs.JobID, &rs.Timestamp, &rs.Status, &rs.Hostname, &rs.ElapsedSeconds, &rs.TotalSamples, &rs.Operations); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// FlamegraphRows loads the stored nested-set rows of a run in order.
func (s *Store) FlamegraphRows(ctx context.Context, jobID string) ([]flamegraph.Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT level, value, self, label FROM flamegraph_rows
		WHERE job_id = ? ORDER BY row_index`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query flamegraph rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []flamegraph.Row
	for rows.Next() {
		var r flamegraph.Row
		if err := rows.Scan(&r.Level, &r.Value, &r.Self, &r.Label); err != nil {
			return nil, fmt.Errorf("failed to scan flamegraph row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// HotPath is a frame path's self weight in two runs.
type HotPath struct {
	PathHash int64
	Label    string
	Base     int64
	Current  int64
}

// CompareSelf joins two runs' flame graph rows on path hash and returns
// paths whose self weight differs, largest absolute change first.
func (s *Store) CompareSelf(ctx context.Context, baseJob, currentJob string, limit int) ([]HotPath, error) {
	query := `
		SELECT COALESCE(c.path_hash, b.path_hash), COALESCE(c.label, b.label),
		       COALESCE(b.self, 0), COALESCE(c.self, 0)
		FROM (SELECT path_hash, label, self FROM flamegraph_rows WHERE job_id = ?) b
		FULL OUTER JOIN (SELECT path_hash, label, self FROM flamegraph_rows WHERE job_id = ?) c
			ON b.path_hash = c.path_hash
		WHERE COALESCE(b.self, 0) <> COALESCE(c.self, 0)
		ORDER BY ABS(COALESCE(c.self, 0) - COALESCE(b.self, 0)) DESC, 1
		LIMIT ?`
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, query, baseJob, currentJob, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to compare runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []HotPath
	for rows.Next() {
		var h HotPath
		if err := rows.Scan(&h.PathHash, &h.Label, &h.Base, &h.Current); err != nil {
			return nil, fmt.Errorf("failed to scan comparison: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
