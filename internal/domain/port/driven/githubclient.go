package driven

import (
	"context"
	"errors"
	"time"

	"github.com/nanocasa/casa/internal/domain/model"
)

// Sentinel errors returned by GitHubClient implementations.
var (
	// ErrUpstreamNotFound indicates the repository is gone or empty upstream (404/409).
	ErrUpstreamNotFound = errors.New("not found upstream")

	// ErrRateLimited indicates the request was refused by a rate limit (403/429).
	ErrRateLimited = errors.New("rate limited upstream")
)

// GitHubClient defines the driven port for reading ecosystem data from GitHub.
// Implementations map upstream payloads to domain types and never return
// unchecked upstream shapes.
type GitHubClient interface {
	// SearchRepositories returns every repository matched by a search query.
	SearchRepositories(ctx context.Context, query string) ([]model.Repository, error)
	// GetRepository returns a single repository by full name.
	GetRepository(ctx context.Context, fullName string) (*model.Repository, error)
	// FetchCommits returns commits created after since. Commits may repeat
	// across pages; callers deduplicate by SHA.
	FetchCommits(ctx context.Context, fullName string, since time.Time) ([]model.Commit, error)
	// FetchPullRequests returns pull requests created at or after since,
	// newest first.
	FetchPullRequests(ctx context.Context, fullName string, since time.Time) ([]model.PullRequest, error)
	// FetchMilestones returns the open milestones of a repository.
	FetchMilestones(ctx context.Context, fullName string) ([]model.Milestone, error)
	// FetchEvents returns up to limit of the most recent activity feed items.
	FetchEvents(ctx context.Context, fullName string, limit int) ([]model.RawEvent, error)
}
