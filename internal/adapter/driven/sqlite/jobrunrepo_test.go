package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanocasa/casa/internal/domain/model"
)

func runJob(t *testing.T, repo *JobRunRepo, name string, startedAt time.Time, logs int) int64 {
	t.Helper()
	ctx := context.Background()

	id, err := repo.Start(ctx, name, startedAt)
	require.NoError(t, err)

	for range logs {
		require.NoError(t, repo.AppendLog(ctx, model.LogEntry{
			JobRunID:  id,
			Timestamp: startedAt,
			Level:     model.LogLevelLog,
			Message:   "working",
		}))
	}

	ended := startedAt.Add(time.Second)
	require.NoError(t, repo.Finish(ctx, model.JobRun{
		ID:       id,
		Status:   model.JobStatusSuccess,
		EndedAt:  &ended,
		Duration: time.Second,
	}))

	return id
}

func TestJobRunRepo_PruneKeepsNewestRuns(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRunRepo(db)
	ctx := context.Background()

	const keep = 4
	for i := range keep + 5 {
		runJob(t, repo, "repos", baseTime.Add(time.Duration(i)*time.Minute), 2)
	}
	runJob(t, repo, "spotlight", baseTime, 1)

	deleted, err := repo.Prune(ctx, "repos", keep)
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)

	var runs, orphans int
	require.NoError(t, db.Reader.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM job_runs WHERE job_name = 'repos'`).Scan(&runs))
	require.NoError(t, db.Reader.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM job_logs WHERE job_run_id NOT IN (SELECT id FROM job_runs)`).Scan(&orphans))

	assert.Equal(t, keep, runs)
	assert.Zero(t, orphans)
	assert.Equal(t, keep*2+1, countRows(t, db, "job_logs"))
	assert.Equal(t, keep+1, countRows(t, db, "job_runs"), "other job names are untouched")
}

func TestJobRunRepo_ListRunsNewestFirstWithLogs(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRunRepo(db)
	ctx := context.Background()

	first := runJob(t, repo, "repos", baseTime, 1)
	second := runJob(t, repo, "activity", baseTime.Add(time.Minute), 3)

	running, err := repo.Start(ctx, "spotlight", baseTime.Add(2*time.Minute))
	require.NoError(t, err)

	runs, err := repo.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	assert.Equal(t, running, runs[0].ID)
	assert.Equal(t, model.JobStatusRunning, runs[0].Status)
	assert.Nil(t, runs[0].EndedAt)
	assert.Empty(t, runs[0].Logs)

	assert.Equal(t, second, runs[1].ID)
	assert.Len(t, runs[1].Logs, 3)
	assert.Equal(t, model.JobStatusSuccess, runs[1].Status)
	assert.Equal(t, time.Second, runs[1].Duration)

	assert.Equal(t, first, runs[2].ID)
	assert.Len(t, runs[2].Logs, 1)
}

func TestJobRunRepo_AppendLogWithDuration(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRunRepo(db)
	ctx := context.Background()

	id, err := repo.Start(ctx, "repos", baseTime)
	require.NoError(t, err)

	d := 1500 * time.Millisecond
	require.NoError(t, repo.AppendLog(ctx, model.LogEntry{
		JobRunID:  id,
		Timestamp: baseTime,
		Level:     model.LogLevelTimeEnd,
		Message:   "Timer 'fetch' ended.",
		Duration:  &d,
	}))

	runs, err := repo.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Len(t, runs[0].Logs, 1)
	require.NotNil(t, runs[0].Logs[0].Duration)
	assert.Equal(t, d, *runs[0].Logs[0].Duration)
	assert.Equal(t, model.LogLevelTimeEnd, runs[0].Logs[0].Level)
}

func TestJobRunRepo_PruneLogsBefore(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRunRepo(db)
	ctx := context.Background()

	runJob(t, repo, "old", baseTime.Add(-48*time.Hour), 3)
	runJob(t, repo, "new", baseTime, 2)

	deleted, err := repo.PruneLogsBefore(ctx, baseTime.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	assert.Equal(t, 2, countRows(t, db, "job_logs"))
	assert.Equal(t, 2, countRows(t, db, "job_runs"), "runs are kept")
}
