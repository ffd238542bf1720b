package model

import (
	"strings"
	"time"
)

// Repository represents an ecosystem repository tracked by casa.
// FullName (owner/repo) is the only stable key; upstream numeric IDs are not kept.
type Repository struct {
	FullName    string
	Name        string
	CreatedAt   time.Time
	Stars       int
	PRs7d       int
	PRs30d      int
	Commits7d   int
	Commits30d  int
	Description string
	AvatarURL   string
}

// Key returns the case-folded full name used for identity comparisons.
func (r Repository) Key() string {
	return strings.ToLower(r.FullName)
}

// SameDisplay reports whether the mutable display fields of r and other are equal.
// Activity counters are not display fields.
func (r Repository) SameDisplay(other Repository) bool {
	return r.Name == other.Name &&
		r.Stars == other.Stars &&
		r.Description == other.Description &&
		r.AvatarURL == other.AvatarURL
}

// Window returns the repository's current activity counters.
func (r Repository) Window() ActivityWindow {
	return ActivityWindow{
		PRs7d:      r.PRs7d,
		PRs30d:     r.PRs30d,
		Commits7d:  r.Commits7d,
		Commits30d: r.Commits30d,
	}
}

// RepositoryDiff is the set of mutations produced by one reconciliation pass.
type RepositoryDiff struct {
	Inserts []Repository
	Updates []Repository
	Deletes []string
}

// IsEmpty reports whether applying the diff would change nothing.
func (d RepositoryDiff) IsEmpty() bool {
	return len(d.Inserts) == 0 && len(d.Updates) == 0 && len(d.Deletes) == 0
}
