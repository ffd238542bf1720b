package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// eventFeedSize is the number of feed items requested per refresh.
const eventFeedSize = 70

var allowedEventTypes = map[string]struct{}{
	model.EventCommitComment:            {},
	model.EventIssueComment:             {},
	model.EventIssues:                   {},
	model.EventPullRequest:              {},
	model.EventPullRequestReview:        {},
	model.EventPullRequestReviewComment: {},
	model.EventPush:                     {},
	model.EventRelease:                  {},
}

// IsAllowedEventType reports whether events of type t are kept.
func IsAllowedEventType(t string) bool {
	_, ok := allowedEventTypes[t]
	return ok
}

// Payload shapes. Only the fields read by NormalizeEvent are declared.
type (
	commentPayload struct {
		CommitID string `json:"commit_id"`
		Body     string `json:"body"`
		HTMLURL  string `json:"html_url"`
	}

	issuePayload struct {
		Number  int    `json:"number"`
		Title   string `json:"title"`
		HTMLURL string `json:"html_url"`
	}

	pullRequestPayload struct {
		Number  int    `json:"number"`
		Title   string `json:"title"`
		Body    string `json:"body"`
		HTMLURL string `json:"html_url"`
	}

	reviewPayload struct {
		State   string `json:"state"`
		Body    string `json:"body"`
		HTMLURL string `json:"html_url"`
	}

	pushCommit struct {
		Message string `json:"message"`
		URL     string `json:"url"`
	}

	releasePayload struct {
		TagName string `json:"tag_name"`
		Name    string `json:"name"`
		Body    string `json:"body"`
		HTMLURL string `json:"html_url"`
	}

	eventPayload struct {
		Action      string             `json:"action"`
		Ref         string             `json:"ref"`
		Comment     commentPayload     `json:"comment"`
		Issue       issuePayload       `json:"issue"`
		PullRequest pullRequestPayload `json:"pull_request"`
		Review      reviewPayload      `json:"review"`
		Commits     []pushCommit       `json:"commits"`
		Release     releasePayload     `json:"release"`
	}
)

// NormalizeEvent maps a raw feed item to an EventDescriptor. Unknown types
// and undecodable payloads give an empty descriptor.
func NormalizeEvent(e model.RawEvent) model.EventDescriptor {
	if !IsAllowedEventType(e.Type) {
		return model.EventDescriptor{}
	}

	var p eventPayload
	if len(e.Payload) == 0 || json.Unmarshal(e.Payload, &p) != nil {
		return model.EventDescriptor{}
	}

	switch e.Type {
	case model.EventCommitComment:
		return model.EventDescriptor{
			Action:   "commented commit",
			Ref:      p.Comment.CommitID,
			Body:     p.Comment.Body,
			EventURL: p.Comment.HTMLURL,
		}
	case model.EventIssueComment:
		return model.EventDescriptor{
			Action:   "commented issue",
			Ref:      itoaNonZero(p.Issue.Number),
			Title:    p.Issue.Title,
			Body:     p.Comment.Body,
			EventURL: p.Comment.HTMLURL,
		}
	case model.EventIssues:
		return model.EventDescriptor{
			Action:   p.Action + " issue",
			Ref:      itoaNonZero(p.Issue.Number),
			Title:    p.Issue.Title,
			EventURL: p.Issue.HTMLURL,
		}
	case model.EventPullRequest:
		return model.EventDescriptor{
			Action:   strings.ReplaceAll(p.Action, "_", " ") + " pr",
			Ref:      itoaNonZero(p.PullRequest.Number),
			Title:    p.PullRequest.Title,
			Body:     p.PullRequest.Body,
			EventURL: p.PullRequest.HTMLURL,
		}
	case model.EventPullRequestReview:
		return model.EventDescriptor{
			Action:   strings.ReplaceAll(p.Review.State, "_", " ") + " pr",
			Ref:      itoaNonZero(p.PullRequest.Number),
			Title:    "#" + strconv.Itoa(p.PullRequest.Number),
			Body:     p.Review.Body,
			EventURL: p.Review.HTMLURL,
		}
	case model.EventPullRequestReviewComment:
		return model.EventDescriptor{
			Action:   "commented pr review",
			Ref:      itoaNonZero(p.PullRequest.Number),
			Title:    p.PullRequest.Title,
			Body:     p.Comment.Body,
			EventURL: p.Comment.HTMLURL,
		}
	case model.EventPush:
		return normalizePush(p)
	case model.EventRelease:
		return model.EventDescriptor{
			Action:   "published release",
			Ref:      p.Release.TagName,
			Title:    p.Release.Name,
			Body:     p.Release.Body,
			EventURL: p.Release.HTMLURL,
		}
	}

	return model.EventDescriptor{}
}

func normalizePush(p eventPayload) model.EventDescriptor {
	n := len(p.Commits)
	noun := "commit"
	if n > 1 {
		noun = "commits"
	}

	branch := p.Ref
	if i := strings.LastIndex(branch, "/"); i >= 0 {
		branch = branch[i+1:]
	}

	d := model.EventDescriptor{
		Action: fmt.Sprintf("pushed %d %s to %s", n, noun, branch),
	}
	if n > 0 {
		d.Title = p.Commits[0].Message
		d.EventURL = commitHTMLURL(p.Commits[0].URL)
	}
	return d
}

// commitHTMLURL rewrites an API commit URL into its web form.
func commitHTMLURL(apiURL string) string {
	u := strings.Replace(apiURL, "api.", "", 1)
	return strings.Replace(u, "/repos", "", 1)
}

func itoaNonZero(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// EventService refreshes the flagship activity feed.
type EventService struct {
	gh       driven.GitHubClient
	events   driven.NodeEventStore
	flagship string
}

// NewEventService creates an EventService.
func NewEventService(gh driven.GitHubClient, events driven.NodeEventStore, flagship string) *EventService {
	return &EventService{gh: gh, events: events, flagship: flagship}
}

// Refresh fetches recent events, normalizes the allowed ones and replaces the
// stored set.
func (s *EventService) Refresh(ctx context.Context, log *JobLogger) error {
	raw, err := s.gh.FetchEvents(ctx, s.flagship, eventFeedSize)
	if err != nil {
		return fmt.Errorf("fetch events for %s: %w", s.flagship, err)
	}

	events := make([]model.NodeEvent, 0, len(raw))
	for _, e := range raw {
		if !IsAllowedEventType(e.Type) {
			continue
		}
		events = append(events, model.NodeEvent{
			Type:       e.Type,
			Author:     e.Actor,
			AvatarURL:  e.AvatarURL,
			CreatedAt:  e.CreatedAt,
			Descriptor: NormalizeEvent(e),
		})
	}

	if err := s.events.Replace(ctx, events); err != nil {
		return fmt.Errorf("replace node events: %w", err)
	}

	log.Info("node events refreshed", "fetched", len(raw), "stored", len(events))
	return nil
}
