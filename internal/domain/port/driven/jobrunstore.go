package driven

import (
	"context"
	"time"

	"github.com/nanocasa/casa/internal/domain/model"
)

// JobRunStore defines the driven port for job run records and their log entries.
type JobRunStore interface {
	// Start inserts a running job run and returns its id.
	Start(ctx context.Context, jobName string, startedAt time.Time) (int64, error)
	// AppendLog persists a log entry for an existing run.
	AppendLog(ctx context.Context, entry model.LogEntry) error
	// Finish records the terminal state of a run.
	Finish(ctx context.Context, run model.JobRun) error
	// Prune keeps the newest keep runs for jobName and deletes older ones along
	// with their log entries. It returns the number of deleted runs.
	Prune(ctx context.Context, jobName string, keep int) (int64, error)
	// PruneLogsBefore deletes log entries older than cutoff.
	PruneLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// ListRuns returns the newest runs first, each with its log entries nested.
	ListRuns(ctx context.Context, limit int) ([]model.JobRun, error)
}
