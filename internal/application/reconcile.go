package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// ErrEmptyDiscovery is returned when discovery found nothing while the store
// still holds repositories. Applying such a pass would delete every row.
// A partially failed discovery is not an error: its inserts and updates are
// applied and its deletes are deferred to a complete pass.
var ErrEmptyDiscovery = errors.New("discovery returned no repositories")

// pinnedConcurrency bounds concurrent pinned repository lookups.
const pinnedConcurrency = 4

// RepoSources lists where repositories are discovered.
type RepoSources struct {
	Queries []string
	Pinned  []string
	Ignored []string
}

// ReconcileService keeps the stored repository set in line with discovery.
type ReconcileService struct {
	gh      driven.GitHubClient
	repos   driven.RepoStore
	sources RepoSources
}

// NewReconcileService creates a ReconcileService.
func NewReconcileService(gh driven.GitHubClient, repos driven.RepoStore, sources RepoSources) *ReconcileService {
	return &ReconcileService{gh: gh, repos: repos, sources: sources}
}

// Run performs one reconciliation pass and returns the applied diff.
func (s *ReconcileService) Run(ctx context.Context, log *JobLogger) (model.RepositoryDiff, error) {
	log.StartTimer("discover")
	batches, complete := s.discover(ctx, log)
	log.StopTimer("discover")

	if err := ctx.Err(); err != nil {
		return model.RepositoryDiff{}, err
	}

	discovered := MergeDiscovered(batches, s.sources.Ignored)

	stored, err := s.repos.ListAll(ctx)
	if err != nil {
		return model.RepositoryDiff{}, fmt.Errorf("list stored repositories: %w", err)
	}

	if len(discovered) == 0 && len(stored) > 0 {
		return model.RepositoryDiff{}, fmt.Errorf("%w: refusing to delete %d stored repositories", ErrEmptyDiscovery, len(stored))
	}

	diff := DiffRepositories(stored, discovered)
	if !complete && len(diff.Deletes) > 0 {
		log.Warn("discovery incomplete, deferring deletes", "deferred", len(diff.Deletes))
		diff.Deletes = nil
	}
	log.Info("reconciled repositories",
		"discovered", len(discovered),
		"inserts", len(diff.Inserts),
		"updates", len(diff.Updates),
		"deletes", len(diff.Deletes),
	)

	if diff.IsEmpty() {
		return diff, nil
	}

	if err := s.repos.ApplyDiff(ctx, diff); err != nil {
		return model.RepositoryDiff{}, fmt.Errorf("apply repository diff: %w", err)
	}

	return diff, nil
}

// discover returns one batch per search query followed by the pinned batch.
// Failed sources are logged and contribute nothing. complete is false when a
// source failed for a reason other than the pinned repository being gone.
func (s *ReconcileService) discover(ctx context.Context, log *JobLogger) (batches [][]model.Repository, complete bool) {
	batches = make([][]model.Repository, 0, len(s.sources.Queries)+1)
	var failed atomic.Bool

	for _, query := range s.sources.Queries {
		found, err := s.gh.SearchRepositories(ctx, query)
		if err != nil {
			log.Error("search query failed", "query", query, "error", err)
			failed.Store(true)
			continue
		}
		log.Info("search query complete", "query", query, "count", len(found))
		batches = append(batches, found)
	}

	pinned := make([]*model.Repository, len(s.sources.Pinned))

	var g errgroup.Group
	g.SetLimit(pinnedConcurrency)
	for i, name := range s.sources.Pinned {
		g.Go(func() error {
			repo, err := s.gh.GetRepository(ctx, name)
			if err != nil {
				logSkip(log, "pinned repository lookup failed", name, err)
				if !errors.Is(err, driven.ErrUpstreamNotFound) {
					failed.Store(true)
				}
				return nil
			}
			pinned[i] = repo
			return nil
		})
	}
	_ = g.Wait()

	batch := make([]model.Repository, 0, len(pinned))
	for _, repo := range pinned {
		if repo != nil {
			batch = append(batch, *repo)
		}
	}

	return append(batches, batch), !failed.Load()
}

// MergeDiscovered flattens batches in order, keeps the first occurrence of
// every full name and drops ignored names. Comparisons are case-insensitive.
func MergeDiscovered(batches [][]model.Repository, ignored []string) []model.Repository {
	skip := make(map[string]struct{}, len(ignored))
	for _, name := range ignored {
		skip[strings.ToLower(name)] = struct{}{}
	}

	seen := make(map[string]struct{})
	var out []model.Repository
	for _, batch := range batches {
		for _, repo := range batch {
			key := repo.Key()
			if _, ok := skip[key]; ok {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, repo)
		}
	}

	return out
}

// DiffRepositories compares the stored snapshot with the discovered set.
// Inserts carry zero counters. Updates are emitted only when a display field
// changed and keep the stored full name and counters.
func DiffRepositories(stored, discovered []model.Repository) model.RepositoryDiff {
	byKey := make(map[string]model.Repository, len(stored))
	for _, repo := range stored {
		byKey[repo.Key()] = repo
	}

	var diff model.RepositoryDiff
	observed := make(map[string]struct{}, len(discovered))

	for _, repo := range discovered {
		key := repo.Key()
		observed[key] = struct{}{}

		current, ok := byKey[key]
		if !ok {
			insert := repo
			insert.PRs7d, insert.PRs30d, insert.Commits7d, insert.Commits30d = 0, 0, 0, 0
			diff.Inserts = append(diff.Inserts, insert)
			continue
		}

		if current.SameDisplay(repo) {
			continue
		}

		update := current
		update.Name = repo.Name
		update.Stars = repo.Stars
		update.Description = repo.Description
		update.AvatarURL = repo.AvatarURL
		diff.Updates = append(diff.Updates, update)
	}

	for _, repo := range stored {
		if _, ok := observed[repo.Key()]; !ok {
			diff.Deletes = append(diff.Deletes, repo.FullName)
		}
	}

	return diff
}

// logSkip logs a per-unit upstream failure at the level its class deserves.
func logSkip(log *JobLogger, msg, unit string, err error) {
	switch {
	case errors.Is(err, driven.ErrUpstreamNotFound):
		log.Warn(msg, "repo", unit, "reason", "not found", "error", err)
	case errors.Is(err, driven.ErrRateLimited):
		log.Warn(msg, "repo", unit, "reason", "rate limited", "error", err)
	default:
		log.Error(msg, "repo", unit, "error", err)
	}
}
