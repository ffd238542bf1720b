package application

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// MilestoneService refreshes the flagship's release milestones.
type MilestoneService struct {
	gh       driven.GitHubClient
	store    driven.MilestoneStore
	flagship string
}

// NewMilestoneService creates a MilestoneService.
func NewMilestoneService(gh driven.GitHubClient, store driven.MilestoneStore, flagship string) *MilestoneService {
	return &MilestoneService{gh: gh, store: store, flagship: flagship}
}

// Refresh replaces stored milestones with the flagship's open version milestones.
func (s *MilestoneService) Refresh(ctx context.Context, log *JobLogger) error {
	all, err := s.gh.FetchMilestones(ctx, s.flagship)
	if err != nil {
		return fmt.Errorf("fetch milestones for %s: %w", s.flagship, err)
	}

	kept := VersionMilestones(all)
	if err := s.store.Replace(ctx, kept); err != nil {
		return fmt.Errorf("replace milestones: %w", err)
	}

	log.Info("milestones refreshed", "fetched", len(all), "stored", len(kept))
	return nil
}

// VersionMilestones keeps milestones titled like a version ("V28.0") and
// sorts them by title descending, ignoring case.
func VersionMilestones(milestones []model.Milestone) []model.Milestone {
	out := make([]model.Milestone, 0, len(milestones))
	for _, m := range milestones {
		if strings.HasPrefix(strings.ToLower(m.Title), "v") {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b model.Milestone) int {
		return cmp.Compare(strings.ToLower(b.Title), strings.ToLower(a.Title))
	})
	return out
}
