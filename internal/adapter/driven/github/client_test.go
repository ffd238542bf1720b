package github_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ghAdapter "github.com/nanocasa/casa/internal/adapter/driven/github"
	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler) *ghAdapter.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := ghAdapter.NewClientWithHTTPClient(server.Client(), server.URL+"/")
	require.NoError(t, err)

	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

// repoJSON is a helper struct for building GitHub API repository responses.
type repoJSON struct {
	FullName    string    `json:"full_name"`
	Name        string    `json:"name"`
	CreatedAt   string    `json:"created_at"`
	Stars       int       `json:"stargazers_count"`
	Description string    `json:"description"`
	Owner       ownerJSON `json:"owner"`
}

type ownerJSON struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

type commitJSON struct {
	SHA    string       `json:"sha"`
	Author *ownerJSON   `json:"author"`
	Commit commitDetail `json:"commit"`
}

type commitDetail struct {
	Message string `json:"message"`
	Author  struct {
		Date string `json:"date"`
	} `json:"author"`
}

type pullJSON struct {
	Number    int       `json:"number"`
	User      ownerJSON `json:"user"`
	CreatedAt string    `json:"created_at"`
}

func pageOf(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page == 0 {
		return 1
	}
	return page
}

func makeRepos(n, offset int) []repoJSON {
	repos := make([]repoJSON, 0, n)
	for i := range n {
		name := fmt.Sprintf("repo-%03d", offset+i)
		repos = append(repos, repoJSON{
			FullName:  "nano/" + name,
			Name:      name,
			CreatedAt: "2020-01-01T00:00:00Z",
			Stars:     offset + i,
			Owner:     ownerJSON{Login: "nano", AvatarURL: "https://avatars.example.com/nano"},
		})
	}
	return repos
}

func TestSearchRepositories_FollowsPagesUntilShortPage(t *testing.T) {
	var requests atomic.Int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/search/repositories", r.URL.Path)
		assert.Equal(t, "nano in:name", r.URL.Query().Get("q"))
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))

		items := makeRepos(100, 0)
		if pageOf(r) == 2 {
			items = makeRepos(3, 100)
		}
		writeJSON(t, w, map[string]any{"total_count": 103, "items": items})
	})

	client := newTestClient(t, handler)
	repos, err := client.SearchRepositories(context.Background(), "nano in:name")

	require.NoError(t, err)
	assert.Len(t, repos, 103)
	assert.Equal(t, int32(2), requests.Load())

	assert.Equal(t, "nano/repo-000", repos[0].FullName)
	assert.Equal(t, "repo-000", repos[0].Name)
	assert.Equal(t, "https://avatars.example.com/nano", repos[0].AvatarURL)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), repos[0].CreatedAt)
	assert.Equal(t, 102, repos[102].Stars)
}

func TestSearchRepositories_StopsAtResultCap(t *testing.T) {
	var requests atomic.Int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		writeJSON(t, w, map[string]any{"total_count": 5000, "items": makeRepos(100, pageOf(r)*100)})
	})

	client := newTestClient(t, handler)
	repos, err := client.SearchRepositories(context.Background(), "nano")

	require.NoError(t, err)
	assert.Len(t, repos, 1000)
	assert.Equal(t, int32(10), requests.Load())
}

func TestSearchRepositories_DropsMalformedItems(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		items := makeRepos(2, 0)
		items[1].CreatedAt = ""
		writeJSON(t, w, map[string]any{"total_count": 2, "items": items})
	})

	client := newTestClient(t, handler)
	repos, err := client.SearchRepositories(context.Background(), "nano")

	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "nano/repo-000", repos[0].FullName)
}

func TestGetRepository(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/nano/wallet", r.URL.Path)
		writeJSON(t, w, repoJSON{
			FullName:    "nano/wallet",
			Name:        "wallet",
			CreatedAt:   "2021-05-01T10:00:00Z",
			Stars:       42,
			Description: "A wallet",
			Owner:       ownerJSON{Login: "nano", AvatarURL: "https://avatars.example.com/nano"},
		})
	})

	client := newTestClient(t, handler)
	repo, err := client.GetRepository(context.Background(), "nano/wallet")

	require.NoError(t, err)
	require.NotNil(t, repo)
	assert.Equal(t, "nano/wallet", repo.FullName)
	assert.Equal(t, 42, repo.Stars)
	assert.Equal(t, "A wallet", repo.Description)
}

func TestGetRepository_InvalidName(t *testing.T) {
	client := newTestClient(t, http.NotFoundHandler())

	_, err := client.GetRepository(context.Background(), "no-slash")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid repo name")
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "not found", status: http.StatusNotFound, want: driven.ErrUpstreamNotFound},
		{name: "empty repository", status: http.StatusConflict, want: driven.ErrUpstreamNotFound},
		{name: "forbidden", status: http.StatusForbidden, want: driven.ErrRateLimited},
		{name: "too many requests", status: http.StatusTooManyRequests, want: driven.ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			})

			client := newTestClient(t, handler)
			_, err := client.FetchCommits(context.Background(), "nano/wallet", time.Time{})

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestErrorClassification_ServerErrorIsNotSentinel(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	client := newTestClient(t, handler)
	_, err := client.GetRepository(context.Background(), "nano/wallet")

	require.Error(t, err)
	assert.False(t, errors.Is(err, driven.ErrUpstreamNotFound))
	assert.False(t, errors.Is(err, driven.ErrRateLimited))
}

func TestFetchCommits_Mapping(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/nano/wallet/commits", r.URL.Path)
		assert.Equal(t, "2026-03-01T00:00:00Z", r.URL.Query().Get("since"))

		linked := commitJSON{SHA: "abc", Author: &ownerJSON{Login: "alice", AvatarURL: "https://avatars.example.com/alice"}}
		linked.Commit.Message = "fix: wallet sync"
		linked.Commit.Author.Date = "2026-03-05T08:00:00Z"

		unlinked := commitJSON{SHA: "def"}
		unlinked.Commit.Author.Date = "2026-03-06T08:00:00Z"

		writeJSON(t, w, []commitJSON{linked, unlinked})
	})

	client := newTestClient(t, handler)
	commits, err := client.FetchCommits(context.Background(), "nano/wallet", since)

	require.NoError(t, err)
	require.Len(t, commits, 2)

	assert.Equal(t, model.Commit{
		SHA:          "abc",
		RepoFullName: "nano/wallet",
		Author:       "alice",
		Date:         time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC),
		Message:      "fix: wallet sync",
		AvatarURL:    "https://avatars.example.com/alice",
	}, commits[0])
	assert.Empty(t, commits[1].Author, "commits without a linked account have no login")
}

func TestFetchPullRequests_StopsAtHorizon(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	since := base.Add(-49 * time.Hour)
	var requests atomic.Int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "all", r.URL.Query().Get("state"))
		assert.Equal(t, "created", r.URL.Query().Get("sort"))
		assert.Equal(t, "desc", r.URL.Query().Get("direction"))

		// One full page, newest first, one PR per hour.
		prs := make([]pullJSON, 0, 100)
		for i := range 100 {
			prs = append(prs, pullJSON{
				Number:    1000 - i,
				User:      ownerJSON{Login: "alice"},
				CreatedAt: base.Add(-time.Duration(i) * time.Hour).Format(time.RFC3339),
			})
		}
		writeJSON(t, w, prs)
	})

	client := newTestClient(t, handler)
	prs, err := client.FetchPullRequests(context.Background(), "nano/wallet", since)

	require.NoError(t, err)
	assert.Len(t, prs, 50)
	assert.Equal(t, int32(1), requests.Load(), "no page after the horizon is requested")
	assert.Equal(t, 1000, prs[0].Number)
	assert.Equal(t, "alice", prs[0].Author)
	assert.Equal(t, "nano/wallet", prs[0].RepoFullName)
}

func TestFetchMilestones(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/nanocurrency/nano-node/milestones", r.URL.Path)
		assert.Equal(t, "open", r.URL.Query().Get("state"))
		writeJSON(t, w, []map[string]any{{
			"number":        7,
			"title":         "V28.0",
			"open_issues":   3,
			"closed_issues": 12,
			"html_url":      "https://github.com/nanocurrency/nano-node/milestone/7",
			"created_at":    "2026-01-01T00:00:00Z",
		}})
	})

	client := newTestClient(t, handler)
	milestones, err := client.FetchMilestones(context.Background(), "nanocurrency/nano-node")

	require.NoError(t, err)
	require.Len(t, milestones, 1)
	assert.Equal(t, model.Milestone{
		Number:       7,
		Title:        "V28.0",
		OpenIssues:   3,
		ClosedIssues: 12,
		URL:          "https://github.com/nanocurrency/nano-node/milestone/7",
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}, milestones[0])
}

func TestFetchEvents_KeepsRawPayload(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/nanocurrency/nano-node/events", r.URL.Path)
		assert.Equal(t, "70", r.URL.Query().Get("per_page"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{
			"type": "ReleaseEvent",
			"actor": {"login": "alice", "avatar_url": "https://avatars.example.com/alice"},
			"created_at": "2026-03-01T12:00:00Z",
			"payload": {"release": {"tag_name": "V28.0"}}
		}]`))
	})

	client := newTestClient(t, handler)
	events, err := client.FetchEvents(context.Background(), "nanocurrency/nano-node", 70)

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventRelease, events[0].Type)
	assert.Equal(t, "alice", events[0].Actor)
	assert.Equal(t, "https://avatars.example.com/alice", events[0].AvatarURL)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), events[0].CreatedAt)
	assert.JSONEq(t, `{"release": {"tag_name": "V28.0"}}`, string(events[0].Payload))
}
