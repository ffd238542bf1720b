package model

import (
	"encoding/json"
	"time"
)

// Activity feed event types that casa understands.
const (
	EventCommitComment            = "CommitCommentEvent"
	EventIssueComment             = "IssueCommentEvent"
	EventIssues                   = "IssuesEvent"
	EventPullRequest              = "PullRequestEvent"
	EventPullRequestReview        = "PullRequestReviewEvent"
	EventPullRequestReviewComment = "PullRequestReviewCommentEvent"
	EventPush                     = "PushEvent"
	EventRelease                  = "ReleaseEvent"
)

// RawEvent is an activity feed item as received from upstream. Payload stays
// raw until normalization decodes the fields required for its Type.
type RawEvent struct {
	Type      string
	Actor     string
	AvatarURL string
	CreatedAt time.Time
	Payload   json.RawMessage
}

// EventDescriptor is the uniform shape every event type is mapped to.
type EventDescriptor struct {
	Action   string `json:"action,omitempty"`
	Ref      string `json:"ref,omitempty"`
	Title    string `json:"title,omitempty"`
	Body     string `json:"body,omitempty"`
	EventURL string `json:"event_url,omitempty"`
}

// IsEmpty reports whether no field of the descriptor was set.
func (d EventDescriptor) IsEmpty() bool {
	return d == EventDescriptor{}
}

// NodeEvent is a normalized event persisted for display.
type NodeEvent struct {
	Type       string
	Author     string
	AvatarURL  string
	CreatedAt  time.Time
	Descriptor EventDescriptor
}
