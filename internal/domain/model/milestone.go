package model

import "time"

// Milestone is an open, version-tagged milestone on the flagship repository.
type Milestone struct {
	Number       int
	Title        string
	OpenIssues   int
	ClosedIssues int
	URL          string
	CreatedAt    time.Time
}
