package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.JobRunStore = (*JobRunRepo)(nil)

// JobRunRepo is the SQLite implementation of the JobRunStore port interface.
// Log entries reference their run with ON DELETE CASCADE.
type JobRunRepo struct {
	db *DB
}

// NewJobRunRepo creates a new JobRunRepo backed by the given DB.
func NewJobRunRepo(db *DB) *JobRunRepo {
	return &JobRunRepo{db: db}
}

// Start inserts a run with status running and returns its id.
func (r *JobRunRepo) Start(ctx context.Context, jobName string, startedAt time.Time) (int64, error) {
	const query = `INSERT INTO job_runs (job_name, started_at, status) VALUES (?, ?, ?)`

	result, err := r.db.Writer.ExecContext(ctx, query, jobName, formatTime(startedAt), string(model.JobStatusRunning))
	if err != nil {
		return 0, fmt.Errorf("start job run %s: %w", jobName, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("job run id for %s: %w", jobName, err)
	}

	return id, nil
}

// AppendLog persists a single log entry.
func (r *JobRunRepo) AppendLog(ctx context.Context, entry model.LogEntry) error {
	const query = `INSERT INTO job_logs (job_run_id, timestamp, level, message, duration_ms) VALUES (?, ?, ?, ?, ?)`

	var durationMs any
	if entry.Duration != nil {
		durationMs = entry.Duration.Milliseconds()
	}

	if _, err := r.db.Writer.ExecContext(ctx, query,
		entry.JobRunID, formatTime(entry.Timestamp), string(entry.Level), entry.Message, durationMs,
	); err != nil {
		return fmt.Errorf("append log to run %d: %w", entry.JobRunID, err)
	}

	return nil
}

// Finish records the terminal status, end time, duration and error of a run.
func (r *JobRunRepo) Finish(ctx context.Context, run model.JobRun) error {
	const query = `UPDATE job_runs SET ended_at = ?, status = ?, duration_ms = ?, error = ? WHERE id = ?`

	if _, err := r.db.Writer.ExecContext(ctx, query,
		nullableTime(run.EndedAt), string(run.Status), run.Duration.Milliseconds(), run.Error, run.ID,
	); err != nil {
		return fmt.Errorf("finish job run %d: %w", run.ID, err)
	}

	return nil
}

// Prune keeps the newest keep runs of jobName. Log entries of deleted runs are
// removed by the foreign key cascade.
func (r *JobRunRepo) Prune(ctx context.Context, jobName string, keep int) (int64, error) {
	const query = `
		DELETE FROM job_runs
		WHERE job_name = ?
		  AND id NOT IN (
			SELECT id FROM job_runs WHERE job_name = ? ORDER BY id DESC LIMIT ?
		  )
	`

	result, err := r.db.Writer.ExecContext(ctx, query, jobName, jobName, keep)
	if err != nil {
		return 0, fmt.Errorf("prune job runs %s: %w", jobName, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}

	return deleted, nil
}

// PruneLogsBefore deletes log entries with a timestamp before cutoff.
func (r *JobRunRepo) PruneLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Writer.ExecContext(ctx, `DELETE FROM job_logs WHERE timestamp < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune logs before %s: %w", formatTime(cutoff), err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}

	return deleted, nil
}

// ListRuns returns up to limit runs, newest first, with their logs in insertion order.
func (r *JobRunRepo) ListRuns(ctx context.Context, limit int) ([]model.JobRun, error) {
	const runsQuery = `
		SELECT id, job_name, started_at, ended_at, status, duration_ms, error
		FROM job_runs
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.db.Reader.QueryContext(ctx, runsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("list job runs: %w", err)
	}
	defer rows.Close()

	var runs []model.JobRun
	index := make(map[int64]int)
	for rows.Next() {
		run, err := scanJobRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job run: %w", err)
		}
		index[run.ID] = len(runs)
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job runs: %w", err)
	}

	if len(runs) == 0 {
		return runs, nil
	}

	const logsQuery = `
		SELECT id, job_run_id, timestamp, level, message, duration_ms
		FROM job_logs
		WHERE job_run_id IN (SELECT id FROM job_runs ORDER BY id DESC LIMIT ?)
		ORDER BY id
	`

	logRows, err := r.db.Reader.QueryContext(ctx, logsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("list job logs: %w", err)
	}
	defer logRows.Close()

	for logRows.Next() {
		entry, err := scanLogEntry(logRows)
		if err != nil {
			return nil, fmt.Errorf("scan job log: %w", err)
		}
		if i, ok := index[entry.JobRunID]; ok {
			runs[i].Logs = append(runs[i].Logs, *entry)
		}
	}

	if err := logRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job logs: %w", err)
	}

	return runs, nil
}

func scanJobRun(s scanner) (*model.JobRun, error) {
	var run model.JobRun
	var startedAt, status string
	var endedAt sql.NullString
	var durationMs sql.NullInt64

	if err := s.Scan(&run.ID, &run.JobName, &startedAt, &endedAt, &status, &durationMs, &run.Error); err != nil {
		return nil, err
	}

	var err error
	run.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}

	if endedAt.Valid {
		t, err := parseTime(endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse ended_at: %w", err)
		}
		run.EndedAt = &t
	}

	run.Status = model.JobStatus(status)
	if durationMs.Valid {
		run.Duration = time.Duration(durationMs.Int64) * time.Millisecond
	}

	return &run, nil
}

func scanLogEntry(s scanner) (*model.LogEntry, error) {
	var entry model.LogEntry
	var timestamp, level string
	var durationMs sql.NullInt64

	if err := s.Scan(&entry.ID, &entry.JobRunID, &timestamp, &level, &entry.Message, &durationMs); err != nil {
		return nil, err
	}

	var err error
	entry.Timestamp, err = parseTime(timestamp)
	if err != nil {
		return nil, fmt.Errorf("parse log timestamp: %w", err)
	}

	entry.Level = model.LogLevel(level)
	if durationMs.Valid {
		d := time.Duration(durationMs.Int64) * time.Millisecond
		entry.Duration = &d
	}

	return &entry, nil
}
