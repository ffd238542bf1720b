package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nanocasa/casa/internal/application"
	"github.com/nanocasa/casa/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// formatTime renders t as RFC3339 in UTC, or "" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// RepositoryResponse is the JSON representation of a repository.
type RepositoryResponse struct {
	FullName    string `json:"full_name"`
	Name        string `json:"name"`
	CreatedAt   string `json:"created_at"`
	Stars       int    `json:"stargazers_count"`
	PRs7d       int    `json:"prs_7d"`
	PRs30d      int    `json:"prs_30d"`
	Commits7d   int    `json:"commits_7d"`
	Commits30d  int    `json:"commits_30d"`
	Description string `json:"description"`
	AvatarURL   string `json:"avatar_url"`
}

// ProfileResponse is the JSON representation of a contributor profile.
type ProfileResponse struct {
	Login           string `json:"login"`
	Bio             string `json:"bio"`
	TwitterUsername string `json:"twitter_username"`
	Website         string `json:"website"`
	NanoAddress     string `json:"nano_address"`
	GHSponsors      bool   `json:"gh_sponsors"`
	PatreonURL      string `json:"patreon_url"`
	GoalTitle       string `json:"goal_title"`
	GoalAmount      int    `json:"goal_amount"`
	GoalNanoAddress string `json:"goal_nano_address"`
	GoalWebsite     string `json:"goal_website"`
	GoalDescription string `json:"goal_description"`
	UpdatedAt       string `json:"updated_at"`
}

// ContributorResponse is the JSON representation of a contributor.
type ContributorResponse struct {
	Login          string           `json:"login"`
	AvatarURL      string           `json:"avatar_url"`
	Contributions  int              `json:"contributions"`
	Last30d        int              `json:"last_month"`
	Repos          []string         `json:"repos"`
	HasPopularRepo bool             `json:"has_popular_repo"`
	IsCore         bool             `json:"is_core"`
	Profile        *ProfileResponse `json:"profile,omitempty"`
}

// CommitResponse is the JSON representation of a commit.
type CommitResponse struct {
	SHA          string `json:"sha"`
	RepoFullName string `json:"repo_full_name"`
	Author       string `json:"author"`
	Date         string `json:"date"`
	Message      string `json:"message"`
	AvatarURL    string `json:"avatar_url"`
}

// WeeklyActivityResponse is one point of the commit activity series.
type WeeklyActivityResponse struct {
	Year  int `json:"year"`
	Week  int `json:"week"`
	Count int `json:"count"`
}

// MilestoneResponse is the JSON representation of a milestone.
type MilestoneResponse struct {
	Number       int    `json:"number"`
	Title        string `json:"title"`
	OpenIssues   int    `json:"open_issues"`
	ClosedIssues int    `json:"closed_issues"`
	URL          string `json:"url"`
	CreatedAt    string `json:"created_at"`
}

// PublicNodeResponse is the JSON representation of a node probe result.
type PublicNodeResponse struct {
	Endpoint     string  `json:"endpoint"`
	Website      string  `json:"website"`
	Websocket    string  `json:"websocket"`
	Deprecated   bool    `json:"deprecated"`
	Up           bool    `json:"up"`
	ResponseTime int64   `json:"response_time_ms"`
	Version      string  `json:"version"`
	Error        *string `json:"error"`
	CheckedAt    string  `json:"checked_at"`
}

// NodeEventResponse is the JSON representation of a feed event.
type NodeEventResponse struct {
	Type      string                `json:"type"`
	Author    string                `json:"author"`
	AvatarURL string                `json:"avatar_url"`
	CreatedAt string                `json:"created_at"`
	Data      model.EventDescriptor `json:"data"`
}

// LogEntryResponse is the JSON representation of a job log line.
type LogEntryResponse struct {
	Timestamp  string `json:"timestamp"`
	Level      string `json:"level"`
	Message    string `json:"message"`
	DurationMS *int64 `json:"duration_ms,omitempty"`
}

// JobRunResponse is the JSON representation of a job run with its logs.
type JobRunResponse struct {
	ID         int64              `json:"id"`
	JobName    string             `json:"job_name"`
	StartedAt  string             `json:"started_at"`
	EndedAt    string             `json:"ended_at,omitempty"`
	Status     string             `json:"status"`
	DurationMS int64              `json:"duration_ms"`
	Error      string             `json:"error,omitempty"`
	Logs       []LogEntryResponse `json:"logs"`
}

// SnapshotResponse is the aggregate dataset document.
type SnapshotResponse struct {
	Repos        []RepositoryResponse       `json:"repos"`
	Commits      []WeeklyActivityResponse   `json:"commits"`
	Contributors []ContributorResponse      `json:"contributors"`
	Milestones   []MilestoneResponse        `json:"milestones"`
	Events       []CommitResponse           `json:"events"`
	NodeEvents   []NodeEventResponse        `json:"nodeEvents"`
	Misc         map[string]json.RawMessage `json:"misc"`
	PublicNodes  []PublicNodeResponse       `json:"publicNodes"`
}

// JobTriggerResponse reports the outcome of a manual job run.
type JobTriggerResponse struct {
	Job    string `json:"job"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResponse is the JSON body of the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// ProfileUpdateRequest is the JSON body of a profile update. Absent or null
// fields are left unchanged.
type ProfileUpdateRequest struct {
	Bio             *string `json:"bio"`
	TwitterUsername *string `json:"twitter_username"`
	Website         *string `json:"website"`
	NanoAddress     *string `json:"nano_address"`
	GHSponsors      *bool   `json:"gh_sponsors"`
	PatreonURL      *string `json:"patreon_url"`
	GoalTitle       *string `json:"goal_title"`
	GoalAmount      *int    `json:"goal_amount"`
	GoalNanoAddress *string `json:"goal_nano_address"`
	GoalWebsite     *string `json:"goal_website"`
	GoalDescription *string `json:"goal_description"`
}

func (req ProfileUpdateRequest) toModel() model.ProfileUpdate {
	return model.ProfileUpdate{
		Bio:             req.Bio,
		TwitterUsername: req.TwitterUsername,
		Website:         req.Website,
		NanoAddress:     req.NanoAddress,
		GHSponsors:      req.GHSponsors,
		PatreonURL:      req.PatreonURL,
		GoalTitle:       req.GoalTitle,
		GoalAmount:      req.GoalAmount,
		GoalNanoAddress: req.GoalNanoAddress,
		GoalWebsite:     req.GoalWebsite,
		GoalDescription: req.GoalDescription,
	}
}

func toRepositoryResponse(r model.Repository) RepositoryResponse {
	return RepositoryResponse{
		FullName:    r.FullName,
		Name:        r.Name,
		CreatedAt:   formatTime(r.CreatedAt),
		Stars:       r.Stars,
		PRs7d:       r.PRs7d,
		PRs30d:      r.PRs30d,
		Commits7d:   r.Commits7d,
		Commits30d:  r.Commits30d,
		Description: r.Description,
		AvatarURL:   r.AvatarURL,
	}
}

func toProfileResponse(p model.Profile) ProfileResponse {
	return ProfileResponse{
		Login:           p.Login,
		Bio:             p.Bio,
		TwitterUsername: p.TwitterUsername,
		Website:         p.Website,
		NanoAddress:     p.NanoAddress,
		GHSponsors:      p.GHSponsors,
		PatreonURL:      p.PatreonURL,
		GoalTitle:       p.GoalTitle,
		GoalAmount:      p.GoalAmount,
		GoalNanoAddress: p.GoalNanoAddress,
		GoalWebsite:     p.GoalWebsite,
		GoalDescription: p.GoalDescription,
		UpdatedAt:       formatTime(p.UpdatedAt),
	}
}

func toContributorResponse(c model.Contributor) ContributorResponse {
	resp := ContributorResponse{
		Login:          c.Login,
		AvatarURL:      c.AvatarURL,
		Contributions:  c.Contributions,
		Last30d:        c.Last30d,
		Repos:          c.Repos,
		HasPopularRepo: c.HasPopularRepo,
		IsCore:         c.IsCore,
	}
	if resp.Repos == nil {
		resp.Repos = []string{}
	}
	if c.Profile != nil {
		p := toProfileResponse(*c.Profile)
		resp.Profile = &p
	}
	return resp
}

func toCommitResponse(c model.Commit) CommitResponse {
	return CommitResponse{
		SHA:          c.SHA,
		RepoFullName: c.RepoFullName,
		Author:       c.Author,
		Date:         formatTime(c.Date),
		Message:      c.Message,
		AvatarURL:    c.AvatarURL,
	}
}

func toMilestoneResponse(m model.Milestone) MilestoneResponse {
	return MilestoneResponse{
		Number:       m.Number,
		Title:        m.Title,
		OpenIssues:   m.OpenIssues,
		ClosedIssues: m.ClosedIssues,
		URL:          m.URL,
		CreatedAt:    formatTime(m.CreatedAt),
	}
}

func toPublicNodeResponse(n model.PublicNode) PublicNodeResponse {
	return PublicNodeResponse{
		Endpoint:     n.Endpoint,
		Website:      n.Website,
		Websocket:    n.Websocket,
		Deprecated:   n.Deprecated,
		Up:           n.Up,
		ResponseTime: n.ResponseTime.Milliseconds(),
		Version:      n.Version,
		Error:        n.Error,
		CheckedAt:    formatTime(n.CheckedAt),
	}
}

func toNodeEventResponse(e model.NodeEvent) NodeEventResponse {
	return NodeEventResponse{
		Type:      e.Type,
		Author:    e.Author,
		AvatarURL: e.AvatarURL,
		CreatedAt: formatTime(e.CreatedAt),
		Data:      e.Descriptor,
	}
}

func toJobRunResponse(run model.JobRun) JobRunResponse {
	resp := JobRunResponse{
		ID:         run.ID,
		JobName:    run.JobName,
		StartedAt:  formatTime(run.StartedAt),
		Status:     string(run.Status),
		DurationMS: run.Duration.Milliseconds(),
		Error:      run.Error,
		Logs:       make([]LogEntryResponse, 0, len(run.Logs)),
	}
	if run.EndedAt != nil {
		resp.EndedAt = formatTime(*run.EndedAt)
	}
	for _, e := range run.Logs {
		entry := LogEntryResponse{
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
			Level:     string(e.Level),
			Message:   e.Message,
		}
		if e.Duration != nil {
			ms := e.Duration.Milliseconds()
			entry.DurationMS = &ms
		}
		resp.Logs = append(resp.Logs, entry)
	}
	return resp
}

// mapSlice converts every element of in with fn. The result is never nil so
// empty collections encode as [].
func mapSlice[T, R any](in []T, fn func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}

func toSnapshotResponse(s application.Snapshot) SnapshotResponse {
	misc := make(map[string]json.RawMessage, len(s.Misc))
	for k, v := range s.Misc {
		if json.Valid([]byte(v)) {
			misc[k] = json.RawMessage(v)
		}
	}

	return SnapshotResponse{
		Repos:        mapSlice(s.Repositories, toRepositoryResponse),
		Commits:      mapSlice(s.CommitActivity, toWeeklyActivityResponse),
		Contributors: mapSlice(s.Contributors, toContributorResponse),
		Milestones:   mapSlice(s.Milestones, toMilestoneResponse),
		Events:       mapSlice(s.LatestCommits, toCommitResponse),
		NodeEvents:   mapSlice(s.NodeEvents, toNodeEventResponse),
		Misc:         misc,
		PublicNodes:  mapSlice(s.PublicNodes, toPublicNodeResponse),
	}
}

func toWeeklyActivityResponse(w model.WeeklyActivity) WeeklyActivityResponse {
	return WeeklyActivityResponse{Year: w.Year, Week: w.Week, Count: w.Count}
}
