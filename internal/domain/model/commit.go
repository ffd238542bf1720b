package model

import "time"

// Commit is a normalized commit row. SHA is used for in-batch deduplication
// only and is not unique in storage.
type Commit struct {
	SHA          string
	RepoFullName string
	Author       string
	Date         time.Time
	Message      string
	AvatarURL    string
}

// ActivityWindow holds rolling 7-day and 30-day counts for one repository.
type ActivityWindow struct {
	PRs7d      int
	PRs30d     int
	Commits7d  int
	Commits30d int
}

// Add returns the element-wise sum of w and delta.
func (w ActivityWindow) Add(delta ActivityWindow) ActivityWindow {
	return ActivityWindow{
		PRs7d:      w.PRs7d + delta.PRs7d,
		PRs30d:     w.PRs30d + delta.PRs30d,
		Commits7d:  w.Commits7d + delta.Commits7d,
		Commits30d: w.Commits30d + delta.Commits30d,
	}
}

// RepoActivity is the result of one activity fetch for a single repository.
type RepoActivity struct {
	FullName string
	Window   ActivityWindow
	Commits  []Commit
}

// WeeklyActivity is one point of the commit activity series.
type WeeklyActivity struct {
	Year  int
	Week  int
	Count int
}
