package model

import "time"

// PullRequest is the minimal pull request shape needed for activity windows.
// Pull requests are counted, never persisted.
type PullRequest struct {
	Number       int
	RepoFullName string
	Author       string
	CreatedAt    time.Time
}
