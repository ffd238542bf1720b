package application

import (
	"time"

	"github.com/nanocasa/casa/internal/domain/model"
)

const (
	window7d  = 7 * 24 * time.Hour
	window30d = 30 * 24 * time.Hour
)

// ComputeWindow counts commits and pull requests inside the rolling 7-day and
// 30-day windows ending at now. Both boundaries are inclusive: a date exactly
// 7 days before now is inside the 7-day window.
func ComputeWindow(now time.Time, commitDates, prDates []time.Time) model.ActivityWindow {
	cutoff7d := now.Add(-window7d)
	cutoff30d := now.Add(-window30d)

	var w model.ActivityWindow
	for _, d := range commitDates {
		if !d.Before(cutoff30d) {
			w.Commits30d++
		}
		if !d.Before(cutoff7d) {
			w.Commits7d++
		}
	}
	for _, d := range prDates {
		if !d.Before(cutoff30d) {
			w.PRs30d++
		}
		if !d.Before(cutoff7d) {
			w.PRs7d++
		}
	}

	return w
}

// inLast30d reports whether t falls inside the inclusive 30-day window.
func inLast30d(now, t time.Time) bool {
	return !t.Before(now.Add(-window30d))
}
