package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrRunNotFound is returned by ReadRun for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded analysis run.
type Run struct {
	// Seq is assigned by the store on insert.
	Seq int64

	ID           string
	InputPath    string
	Format       string
	Normalized   bool
	TraceDigest  string
	ReportDigest string

	Events     int
	Violations int
	Cycles     int

	// Report is the canonical JSON report. ListRuns leaves it empty.
	Report []byte

	Findings []Finding
}

// Finding is a violation or deadlock cycle of a run, flattened for
// querying.
type Finding struct {
	Kind    string `json:"kind"`
	Seq     int64  `json:"seq"`
	Message string `json:"message"`
}

// WriteRun inserts a run and its findings in one transaction.
// Writing a run id that already exists is a no-op.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, input_path, format, normalized, trace_digest, report_digest,
		 event_count, violation_count, cycle_count, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.InputPath,
		run.Format,
		run.Normalized,
		run.TraceDigest,
		run.ReportDigest,
		run.Events,
		run.Violations,
		run.Cycles,
		string(run.Report),
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	if n == 0 {
		return nil
	}

	for i, f := range run.Findings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO findings (run_id, idx, kind, seq, message)
			VALUES (?, ?, ?, ?, ?)
		`, run.ID, i, f.Kind, f.Seq, f.Message)
		if err != nil {
			return fmt.Errorf("write finding %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

const runColumns = `seq, id, input_path, format, normalized, trace_digest, report_digest,
	event_count, violation_count, cycle_count`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var run Run
	err := row.Scan(
		&run.Seq,
		&run.ID,
		&run.InputPath,
		&run.Format,
		&run.Normalized,
		&run.TraceDigest,
		&run.ReportDigest,
		&run.Events,
		&run.Violations,
		&run.Cycles,
	)
	return run, err
}

// ListRuns returns the most recent runs, newest first. limit <= 0 means
// all runs. Reports and findings are not loaded.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return collectRuns(rows)
}

// RunsForTrace returns every run of the trace with the given digest,
// oldest first.
func (s *Store) RunsForTrace(ctx context.Context, traceDigest string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE trace_digest = ?
		ORDER BY seq ASC
	`, traceDigest)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return collectRuns(rows)
}

func collectRuns(rows *sql.Rows) ([]Run, error) {
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns the run with the given id, including its report and
// findings. Unknown ids fail with ErrRunNotFound.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`, report
		FROM runs
		WHERE id = ?
	`, id)

	var (
		run    Run
		report string
	)
	err := row.Scan(
		&run.Seq,
		&run.ID,
		&run.InputPath,
		&run.Format,
		&run.Normalized,
		&run.TraceDigest,
		&run.ReportDigest,
		&run.Events,
		&run.Violations,
		&run.Cycles,
		&report,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	run.Report = []byte(report)

	findings, err := s.readFindings(ctx, id)
	if err != nil {
		return Run{}, err
	}
	run.Findings = findings
	return run, nil
}

func (s *Store) readFindings(ctx context.Context, runID string) ([]Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, seq, message
		FROM findings
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()

	findings := []Finding{}
	for rows.Next() {
		var f Finding
		if err := rows.Scan(&f.Kind, &f.Seq, &f.Message); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate findings: %w", err)
	}
	return findings, nil
}

// CountFindings returns how many findings of the given kind were recorded
// across all runs.
func (s *Store) CountFindings(ctx context.Context, kind string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM findings WHERE kind = ?`, kind).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count findings: %w", err)
	}
	return n, nil
}
