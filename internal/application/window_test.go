package application_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nanocasa/casa/internal/application"
	"github.com/nanocasa/casa/internal/domain/model"
)

func TestComputeWindow_Boundaries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	tests := []struct {
		name string
		date time.Time
		want model.ActivityWindow
	}{
		{"now", now, model.ActivityWindow{Commits7d: 1, Commits30d: 1, PRs7d: 1, PRs30d: 1}},
		{"exactly 7 days", now.Add(-7 * day), model.ActivityWindow{Commits7d: 1, Commits30d: 1, PRs7d: 1, PRs30d: 1}},
		{"7 days and 1 second", now.Add(-7*day - time.Second), model.ActivityWindow{Commits30d: 1, PRs30d: 1}},
		{"exactly 30 days", now.Add(-30 * day), model.ActivityWindow{Commits30d: 1, PRs30d: 1}},
		{"30 days and 1 second", now.Add(-30*day - time.Second), model.ActivityWindow{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := application.ComputeWindow(now, []time.Time{tt.date}, []time.Time{tt.date})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeWindow_Counts(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	commits := []time.Time{now.AddDate(0, 0, -1), now.AddDate(0, 0, -10), now.AddDate(0, 0, -40)}
	prs := []time.Time{now.AddDate(0, 0, -2), now.AddDate(0, 0, -3)}

	got := application.ComputeWindow(now, commits, prs)

	assert.Equal(t, model.ActivityWindow{Commits7d: 1, Commits30d: 2, PRs7d: 2, PRs30d: 2}, got)
}
