package driven

import (
	"context"

	"github.com/nanocasa/casa/internal/domain/model"
)

// CommitStore defines the driven port for commit rows and repository activity counters.
type CommitStore interface {
	// ApplyActivity writes counters and commit rows for every entry in one transaction.
	// In incremental mode counters are added and commits appended, skipping SHAs
	// the repository already has; in full mode counters are replaced and each
	// repository's commits are replaced.
	ApplyActivity(ctx context.Context, mode model.ActivityMode, activity []model.RepoActivity) error
	// KnownSHAs returns the subset of shas already stored for the repository.
	KnownSHAs(ctx context.Context, fullName string, shas []string) (map[string]struct{}, error)
	// ListAll returns every stored commit.
	ListAll(ctx context.Context) ([]model.Commit, error)
	// ListLatestExcluding returns the newest commits of all repositories except excludeRepo.
	ListLatestExcluding(ctx context.Context, excludeRepo string, limit int) ([]model.Commit, error)
	// WeeklySeries returns commit counts grouped by year and week, oldest first.
	WeeklySeries(ctx context.Context) ([]model.WeeklyActivity, error)
}
