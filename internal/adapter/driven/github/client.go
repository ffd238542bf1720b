// Package github implements the GitHubClient port using the go-github library.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

const (
	perPage = 100

	// The search API serves at most 1000 results per query.
	maxSearchPages = 10
)

// Compile-time interface satisfaction check.
var _ driven.GitHubClient = (*Client)(nil)

// Client implements the driven.GitHubClient port using the go-github library.
type Client struct {
	gh *gh.Client
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
//
// An empty token yields an unauthenticated client with the public rate limit.
func NewClient(token string, timeout time.Duration) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	rateLimitClient.Timeout = timeout

	client := gh.NewClient(rateLimitClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	return &Client{gh: client}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client}, nil
}

// SearchRepositories returns every repository matched by query, in the order
// GitHub ranks them.
func (c *Client) SearchRepositories(ctx context.Context, query string) ([]model.Repository, error) {
	fetch := func(ctx context.Context, page int) ([]*gh.Repository, error) {
		if page > maxSearchPages {
			return nil, nil
		}

		opts := &gh.SearchOptions{ListOptions: gh.ListOptions{Page: page, PerPage: perPage}}
		result, resp, err := c.gh.Search.Repositories(ctx, query, opts)
		if err != nil {
			return nil, classifyError(resp, err, fmt.Sprintf("searching %q (page %d)", query, page))
		}

		logRateLimit(resp, "search/repositories", page, len(result.Repositories))
		return result.Repositories, nil
	}

	repos := []model.Repository{}
	for batch, err := range paginate(ctx, perPage, fetch) {
		if err != nil {
			return nil, err
		}
		for _, r := range batch {
			if repo, ok := mapRepository(r); ok {
				repos = append(repos, repo)
			}
		}
	}

	return repos, nil
}

// GetRepository returns a single repository by full name.
func (c *Client) GetRepository(ctx context.Context, fullName string) (*model.Repository, error) {
	owner, name, err := splitRepo(fullName)
	if err != nil {
		return nil, err
	}

	r, resp, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, classifyError(resp, err, "fetching repository "+fullName)
	}

	logRateLimit(resp, fullName, 0, 1)

	repo, ok := mapRepository(r)
	if !ok {
		return nil, fmt.Errorf("repository %s: missing full name or creation date", fullName)
	}

	return &repo, nil
}

// FetchCommits retrieves commits authored after since, following pagination
// until a short page.
func (c *Client) FetchCommits(ctx context.Context, fullName string, since time.Time) ([]model.Commit, error) {
	owner, name, err := splitRepo(fullName)
	if err != nil {
		return nil, err
	}

	fetch := func(ctx context.Context, page int) ([]*gh.RepositoryCommit, error) {
		opts := &gh.CommitsListOptions{
			Since:       since,
			ListOptions: gh.ListOptions{Page: page, PerPage: perPage},
		}
		commits, resp, err := c.gh.Repositories.ListCommits(ctx, owner, name, opts)
		if err != nil {
			return nil, classifyError(resp, err, fmt.Sprintf("listing commits for %s (page %d)", fullName, page))
		}

		logRateLimit(resp, fullName+"/commits", page, len(commits))
		return commits, nil
	}

	commits := []model.Commit{}
	for batch, err := range paginate(ctx, perPage, fetch) {
		if err != nil {
			return nil, err
		}
		for _, rc := range batch {
			commits = append(commits, mapCommit(rc, fullName))
		}
	}

	return commits, nil
}

// FetchPullRequests retrieves pull requests created at or after since. Pages
// are requested newest first and pagination stops at the first older PR.
func (c *Client) FetchPullRequests(ctx context.Context, fullName string, since time.Time) ([]model.PullRequest, error) {
	owner, name, err := splitRepo(fullName)
	if err != nil {
		return nil, err
	}

	fetch := func(ctx context.Context, page int) ([]*gh.PullRequest, error) {
		opts := &gh.PullRequestListOptions{
			State:       "all",
			Sort:        "created",
			Direction:   "desc",
			ListOptions: gh.ListOptions{Page: page, PerPage: perPage},
		}
		prs, resp, err := c.gh.PullRequests.List(ctx, owner, name, opts)
		if err != nil {
			return nil, classifyError(resp, err, fmt.Sprintf("listing pull requests for %s (page %d)", fullName, page))
		}

		logRateLimit(resp, fullName+"/pulls", page, len(prs))
		return prs, nil
	}

	prs := []model.PullRequest{}
	for batch, err := range paginate(ctx, perPage, fetch) {
		if err != nil {
			return nil, err
		}
		for _, pr := range batch {
			mapped := mapPullRequest(pr, fullName)
			if mapped.CreatedAt.Before(since) {
				return prs, nil
			}
			prs = append(prs, mapped)
		}
	}

	return prs, nil
}

// FetchMilestones retrieves the open milestones of a repository.
func (c *Client) FetchMilestones(ctx context.Context, fullName string) ([]model.Milestone, error) {
	owner, name, err := splitRepo(fullName)
	if err != nil {
		return nil, err
	}

	fetch := func(ctx context.Context, page int) ([]*gh.Milestone, error) {
		opts := &gh.MilestoneListOptions{
			State:       "open",
			ListOptions: gh.ListOptions{Page: page, PerPage: perPage},
		}
		milestones, resp, err := c.gh.Issues.ListMilestones(ctx, owner, name, opts)
		if err != nil {
			return nil, classifyError(resp, err, fmt.Sprintf("listing milestones for %s (page %d)", fullName, page))
		}

		logRateLimit(resp, fullName+"/milestones", page, len(milestones))
		return milestones, nil
	}

	milestones := []model.Milestone{}
	for batch, err := range paginate(ctx, perPage, fetch) {
		if err != nil {
			return nil, err
		}
		for _, m := range batch {
			milestones = append(milestones, model.Milestone{
				Number:       m.GetNumber(),
				Title:        m.GetTitle(),
				OpenIssues:   m.GetOpenIssues(),
				ClosedIssues: m.GetClosedIssues(),
				URL:          m.GetHTMLURL(),
				CreatedAt:    m.GetCreatedAt().Time,
			})
		}
	}

	return milestones, nil
}

// FetchEvents returns up to limit of the repository's most recent events.
// Only the first page is requested.
func (c *Client) FetchEvents(ctx context.Context, fullName string, limit int) ([]model.RawEvent, error) {
	owner, name, err := splitRepo(fullName)
	if err != nil {
		return nil, err
	}

	events, resp, err := c.gh.Activity.ListRepositoryEvents(ctx, owner, name, &gh.ListOptions{PerPage: limit})
	if err != nil {
		return nil, classifyError(resp, err, "listing events for "+fullName)
	}

	logRateLimit(resp, fullName+"/events", 1, len(events))

	raw := make([]model.RawEvent, 0, len(events))
	for _, e := range events {
		raw = append(raw, mapEvent(e))
	}

	return raw, nil
}

// mapRepository converts a go-github Repository to a domain Repository.
// Records without a full name or creation date are rejected.
func mapRepository(r *gh.Repository) (model.Repository, bool) {
	if r.GetFullName() == "" || r.GetCreatedAt().IsZero() {
		return model.Repository{}, false
	}

	return model.Repository{
		FullName:    r.GetFullName(),
		Name:        r.GetName(),
		CreatedAt:   r.GetCreatedAt().UTC(),
		Stars:       r.GetStargazersCount(),
		Description: r.GetDescription(),
		AvatarURL:   r.GetOwner().GetAvatarURL(),
	}, true
}

// mapCommit converts a go-github RepositoryCommit to a domain Commit. The
// author login is empty when the commit email is not linked to an account.
func mapCommit(rc *gh.RepositoryCommit, repoFullName string) model.Commit {
	return model.Commit{
		SHA:          rc.GetSHA(),
		RepoFullName: repoFullName,
		Author:       rc.GetAuthor().GetLogin(),
		Date:         rc.GetCommit().GetAuthor().GetDate().UTC(),
		Message:      rc.GetCommit().GetMessage(),
		AvatarURL:    rc.GetAuthor().GetAvatarURL(),
	}
}

// mapPullRequest converts a go-github PullRequest to a domain model PullRequest.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapPullRequest(pr *gh.PullRequest, repoFullName string) model.PullRequest {
	return model.PullRequest{
		Number:       pr.GetNumber(),
		RepoFullName: repoFullName,
		Author:       pr.GetUser().GetLogin(),
		CreatedAt:    pr.GetCreatedAt().UTC(),
	}
}

// mapEvent converts a go-github Event to the RawEvent boundary struct. The
// payload is kept undecoded.
func mapEvent(e *gh.Event) model.RawEvent {
	var payload json.RawMessage
	if e.RawPayload != nil {
		payload = *e.RawPayload
	}

	return model.RawEvent{
		Type:      e.GetType(),
		Actor:     e.GetActor().GetLogin(),
		AvatarURL: e.GetActor().GetAvatarURL(),
		CreatedAt: e.GetCreatedAt().UTC(),
		Payload:   payload,
	}
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
