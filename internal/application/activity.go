package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// DefaultFetchConcurrency bounds per-repository fetches.
const DefaultFetchConcurrency = 5

// ActivityConfig configures the activity updater.
type ActivityConfig struct {
	Mode        model.ActivityMode
	Inception   time.Time
	Concurrency int
}

// ActivityService refreshes commit rows, repository activity counters and
// contributor aggregates.
type ActivityService struct {
	gh           driven.GitHubClient
	repos        driven.RepoStore
	commits      driven.CommitStore
	contributors driven.ContributorStore
	misc         driven.MiscStore
	cfg          ActivityConfig
	now          func() time.Time
}

// NewActivityService creates an ActivityService.
func NewActivityService(
	gh driven.GitHubClient,
	repos driven.RepoStore,
	commits driven.CommitStore,
	contributors driven.ContributorStore,
	misc driven.MiscStore,
	cfg ActivityConfig,
) *ActivityService {
	if cfg.Mode == "" {
		cfg.Mode = model.ActivityModeIncremental
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultFetchConcurrency
	}

	return &ActivityService{
		gh:           gh,
		repos:        repos,
		commits:      commits,
		contributors: contributors,
		misc:         misc,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Update fetches activity for every stored repository and applies it.
func (s *ActivityService) Update(ctx context.Context, log *JobLogger) error {
	now := s.now().UTC()

	since, err := s.since(ctx)
	if err != nil {
		return err
	}
	log.Info("activity update starting", "mode", string(s.cfg.Mode), "since", since.Format(time.RFC3339))

	repos, err := s.repos.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list repositories: %w", err)
	}

	log.StartTimer("fetch")
	activity := s.fetchAll(ctx, log, repos, since, now)
	log.StopTimer("fetch")

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.commits.ApplyActivity(ctx, s.cfg.Mode, activity); err != nil {
		return fmt.Errorf("apply activity: %w", err)
	}

	var observed []model.Commit
	for _, a := range activity {
		observed = append(observed, a.Commits...)
	}
	log.Info("activity applied", "repos", len(activity), "commits", len(observed))

	return s.updateContributors(ctx, log, observed, now)
}

// since returns the lower bound for fetched commits.
func (s *ActivityService) since(ctx context.Context) (time.Time, error) {
	if s.cfg.Mode == model.ActivityModeFull {
		return s.cfg.Inception, nil
	}

	raw, err := s.misc.Get(ctx, model.LastRunKey(JobActivity))
	if errors.Is(err, driven.ErrMiscKeyNotFound) {
		return s.cfg.Inception, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read last activity run: %w", err)
	}

	var last time.Time
	if err := json.Unmarshal([]byte(raw), &last); err != nil {
		return s.cfg.Inception, nil //nolint:nilerr // unreadable marker falls back to inception
	}
	return last, nil
}

func (s *ActivityService) fetchAll(
	ctx context.Context,
	log *JobLogger,
	repos []model.Repository,
	since, now time.Time,
) []model.RepoActivity {
	var (
		mu       sync.Mutex
		activity = make([]model.RepoActivity, 0, len(repos))
	)

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, repo := range repos {
		g.Go(func() error {
			a, err := s.fetchRepo(ctx, repo.FullName, since, now)
			if err != nil {
				logSkip(log, "activity fetch failed", repo.FullName, err)
				return nil
			}
			mu.Lock()
			activity = append(activity, a)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return activity
}

func (s *ActivityService) fetchRepo(ctx context.Context, fullName string, since, now time.Time) (model.RepoActivity, error) {
	commits, err := s.gh.FetchCommits(ctx, fullName, since)
	if err != nil {
		return model.RepoActivity{}, err
	}
	commits = DedupCommits(commits)

	// since is inclusive and the previous run may already have stored commits
	// pushed while it was in flight.
	if s.cfg.Mode == model.ActivityModeIncremental && len(commits) > 0 {
		if commits, err = s.dropKnown(ctx, fullName, commits); err != nil {
			return model.RepoActivity{}, err
		}
	}

	horizon := now.Add(-window30d)
	if since.After(horizon) {
		horizon = since
	}

	prs, err := s.gh.FetchPullRequests(ctx, fullName, horizon)
	if err != nil {
		return model.RepoActivity{}, err
	}

	commitDates := make([]time.Time, len(commits))
	for i, c := range commits {
		commitDates[i] = c.Date
	}
	prDates := make([]time.Time, len(prs))
	for i, pr := range prs {
		prDates[i] = pr.CreatedAt
	}

	return model.RepoActivity{
		FullName: fullName,
		Window:   ComputeWindow(now, commitDates, prDates),
		Commits:  commits,
	}, nil
}

// dropKnown removes commits whose SHA is already stored for the repository.
func (s *ActivityService) dropKnown(ctx context.Context, fullName string, commits []model.Commit) ([]model.Commit, error) {
	shas := make([]string, len(commits))
	for i, c := range commits {
		shas[i] = c.SHA
	}

	known, err := s.commits.KnownSHAs(ctx, fullName, shas)
	if err != nil {
		return nil, fmt.Errorf("look up stored commits for %s: %w", fullName, err)
	}

	return slices.DeleteFunc(commits, func(c model.Commit) bool {
		_, ok := known[c.SHA]
		return ok
	}), nil
}

func (s *ActivityService) updateContributors(ctx context.Context, log *JobLogger, observed []model.Commit, now time.Time) error {
	var contributors []model.Contributor

	if s.cfg.Mode == model.ActivityModeFull {
		all, err := s.commits.ListAll(ctx)
		if err != nil {
			return fmt.Errorf("list commits: %w", err)
		}
		contributors = AggregateContributors(all, now)
	} else {
		existing, err := s.contributors.ListAll(ctx)
		if err != nil {
			return fmt.Errorf("list contributors: %w", err)
		}
		contributors = MergeContributors(existing, observed, now)
	}

	if err := s.contributors.ReplaceAll(ctx, contributors); err != nil {
		return fmt.Errorf("replace contributors: %w", err)
	}

	log.Info("contributors updated", "count", len(contributors))
	return nil
}

// DedupCommits drops repeated SHAs, keeping the first occurrence, and commits
// without an author login.
func DedupCommits(commits []model.Commit) []model.Commit {
	seen := make(map[string]struct{}, len(commits))
	out := make([]model.Commit, 0, len(commits))
	for _, c := range commits {
		if c.Author == "" {
			continue
		}
		if _, dup := seen[c.SHA]; dup {
			continue
		}
		seen[c.SHA] = struct{}{}
		out = append(out, c)
	}
	return out
}
