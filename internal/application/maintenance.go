package application

import (
	"context"
	"fmt"
	"time"

	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// Registered job names.
const (
	JobRepos       = "repos"
	JobActivity    = "activity"
	JobMilestones  = "milestones"
	JobNodeEvents  = "node_events"
	JobPublicNodes = "public_nodes"
	JobDevFund     = "dev_fund"
	JobSpotlight   = "spotlight"
	JobPruneLogs   = "prune_logs"
)

// LogPruner deletes job log entries by age.
type LogPruner struct {
	runs driven.JobRunStore
	now  func() time.Time
}

// NewLogPruner creates a LogPruner.
func NewLogPruner(runs driven.JobRunStore) *LogPruner {
	return &LogPruner{runs: runs, now: time.Now}
}

// Prune deletes log entries older than the start of the previous UTC day.
func (p *LogPruner) Prune(ctx context.Context, log *JobLogger) error {
	cutoff := previousDayStart(p.now())

	deleted, err := p.runs.PruneLogsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune job logs: %w", err)
	}

	log.Info("pruned job logs", "cutoff", cutoff.Format(time.DateOnly), "deleted", deleted)
	return nil
}

func previousDayStart(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d-1, 0, 0, 0, 0, time.UTC)
}
