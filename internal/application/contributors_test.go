package application_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanocasa/casa/internal/application"
	"github.com/nanocasa/casa/internal/domain/model"
)

var contribNow = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func commit(sha, repoName, author string, daysAgo int) model.Commit {
	return model.Commit{
		SHA:          sha,
		RepoFullName: repoName,
		Author:       author,
		Date:         contribNow.AddDate(0, 0, -daysAgo),
		AvatarURL:    "https://avatars.example.com/" + author,
	}
}

func TestAggregateContributors(t *testing.T) {
	commits := []model.Commit{
		commit("a1", "nano/node", "alice", 1),
		commit("a2", "nano/wallet", "alice", 45),
		commit("b1", "nano/node", "bob", 2),
		commit("b2", "nano/node", "bob", 3),
		commit("c1", "nano/wallet", "carol", 5),
		commit("c2", "nano/explorer", "carol", 50),
		commit("x1", "nano/node", "", 1),
	}

	got := application.AggregateContributors(commits, contribNow)

	require.Len(t, got, 3)
	assert.Equal(t, "alice", got[0].Login, "ties broken by distinct repo count then login")
	assert.Equal(t, 2, got[0].Contributions)
	assert.Equal(t, 1, got[0].Last30d)
	assert.Equal(t, []string{"nano/node", "nano/wallet"}, got[0].Repos)

	assert.Equal(t, "carol", got[1].Login)
	assert.Equal(t, "bob", got[2].Login)
	assert.Equal(t, []string{"nano/node"}, got[2].Repos)
	assert.Equal(t, "https://avatars.example.com/bob", got[2].AvatarURL)
}

func TestMergeContributors_EquivalentToFullAggregate(t *testing.T) {
	first := []model.Commit{
		commit("a1", "nano/node", "alice", 1),
		commit("b1", "nano/wallet", "bob", 40),
	}
	second := []model.Commit{
		commit("a2", "nano/explorer", "alice", 2),
		commit("c1", "nano/node", "carol", 3),
		commit("b2", "nano/wallet", "bob", 4),
	}

	merged := application.MergeContributors(application.AggregateContributors(first, contribNow), second, contribNow)
	full := application.AggregateContributors(append(append([]model.Commit{}, first...), second...), contribNow)

	assert.Equal(t, full, merged)
}

func TestApplyContributorFlags(t *testing.T) {
	repos := []model.Repository{
		newRepo("nanocurrency/nano-node", 5000),
		newRepo("nano/wallet", 300),
		newRepo("nano/explorer", 200),
		newRepo("nano/tiny", 1),
	}
	contributors := []model.Contributor{
		{Login: "core", Repos: []string{"nanocurrency/nano-node"}},
		{Login: "popular", Repos: []string{"Nano/Explorer"}},
		{Login: "small", Repos: []string{"nano/tiny"}},
	}

	application.ApplyContributorFlags(contributors, repos, "nanocurrency/nano-node", 2)

	assert.True(t, contributors[0].IsCore)
	assert.False(t, contributors[0].HasPopularRepo, "flagship is excluded from the ranking")
	assert.True(t, contributors[1].HasPopularRepo)
	assert.False(t, contributors[1].IsCore)
	assert.False(t, contributors[2].HasPopularRepo)
}
