package application

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/nanocasa/casa/internal/domain/model"
)

// DefaultPopularRepoRank is the number of top-starred repositories, flagship
// excluded, that count as popular.
const DefaultPopularRepoRank = 15

// AggregateContributors groups commits by author login. Commits without a
// login are ignored. The result is ranked with RankContributors.
func AggregateContributors(commits []model.Commit, now time.Time) []model.Contributor {
	return MergeContributors(nil, commits, now)
}

// MergeContributors adds commits to existing aggregates. For commit sets
// disjoint from the ones that produced existing, and the same now, the result
// equals AggregateContributors over the union.
func MergeContributors(existing []model.Contributor, commits []model.Commit, now time.Time) []model.Contributor {
	type acc struct {
		c     model.Contributor
		repos map[string]struct{}
	}

	byLogin := make(map[string]*acc, len(existing))
	order := make([]string, 0, len(existing))

	for _, c := range existing {
		a := &acc{c: c, repos: make(map[string]struct{}, len(c.Repos))}
		for _, r := range c.Repos {
			a.repos[r] = struct{}{}
		}
		a.c.Repos = nil
		byLogin[c.Login] = a
		order = append(order, c.Login)
	}

	for _, commit := range commits {
		if commit.Author == "" {
			continue
		}

		a, ok := byLogin[commit.Author]
		if !ok {
			a = &acc{c: model.Contributor{Login: commit.Author}, repos: make(map[string]struct{})}
			byLogin[commit.Author] = a
			order = append(order, commit.Author)
		}

		a.c.Contributions++
		if inLast30d(now, commit.Date) {
			a.c.Last30d++
		}
		if a.c.AvatarURL == "" {
			a.c.AvatarURL = commit.AvatarURL
		}
		a.repos[commit.RepoFullName] = struct{}{}
	}

	out := make([]model.Contributor, 0, len(order))
	for _, login := range order {
		a := byLogin[login]
		repos := make([]string, 0, len(a.repos))
		for r := range a.repos {
			repos = append(repos, r)
		}
		slices.Sort(repos)
		a.c.Repos = repos
		out = append(out, a.c)
	}

	RankContributors(out)
	return out
}

// RankContributors sorts in place by contributions desc, distinct repository
// count desc, then login asc.
func RankContributors(contributors []model.Contributor) {
	slices.SortStableFunc(contributors, func(a, b model.Contributor) int {
		return cmp.Or(
			cmp.Compare(b.Contributions, a.Contributions),
			cmp.Compare(len(b.Repos), len(a.Repos)),
			cmp.Compare(a.Login, b.Login),
		)
	})
}

// ApplyContributorFlags sets HasPopularRepo and IsCore from the current star
// ranking. The flagship repository is excluded from the popularity ranking.
func ApplyContributorFlags(contributors []model.Contributor, repos []model.Repository, flagship string, popularRank int) {
	flagshipKey := strings.ToLower(flagship)

	ranked := make([]model.Repository, 0, len(repos))
	for _, r := range repos {
		if r.Key() != flagshipKey {
			ranked = append(ranked, r)
		}
	}
	slices.SortStableFunc(ranked, func(a, b model.Repository) int {
		return cmp.Compare(b.Stars, a.Stars)
	})

	popular := make(map[string]struct{}, popularRank)
	for i, r := range ranked {
		if i >= popularRank {
			break
		}
		popular[r.Key()] = struct{}{}
	}

	for i := range contributors {
		c := &contributors[i]
		c.HasPopularRepo = false
		c.IsCore = false
		for _, repo := range c.Repos {
			key := strings.ToLower(repo)
			if _, ok := popular[key]; ok {
				c.HasPopularRepo = true
			}
			if key == flagshipKey {
				c.IsCore = true
			}
		}
	}
}
