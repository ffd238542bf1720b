package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// ErrInvalidInput indicates a caller-supplied value was rejected.
var ErrInvalidInput = errors.New("invalid input")

// Latest commit and job run limits.
const (
	DefaultLatestCommits = 50
	MaxLatestCommits     = 500
	DefaultJobRunLimit   = 100
)

// DatasetStores groups the stores read by DatasetService.
type DatasetStores struct {
	Repos        driven.RepoStore
	Commits      driven.CommitStore
	Contributors driven.ContributorStore
	Profiles     driven.ProfileStore
	Milestones   driven.MilestoneStore
	PublicNodes  driven.PublicNodeStore
	NodeEvents   driven.NodeEventStore
	Misc         driven.MiscStore
	JobRuns      driven.JobRunStore
}

// DatasetService answers read queries over the materialized dataset and
// accepts the few user-owned writes.
type DatasetService struct {
	stores      DatasetStores
	flagship    string
	popularRank int
	now         func() time.Time
}

// NewDatasetService creates a DatasetService.
func NewDatasetService(stores DatasetStores, flagship string, popularRank int) *DatasetService {
	if popularRank <= 0 {
		popularRank = DefaultPopularRepoRank
	}
	return &DatasetService{
		stores:      stores,
		flagship:    flagship,
		popularRank: popularRank,
		now:         time.Now,
	}
}

// Repositories returns every repository, oldest first.
func (s *DatasetService) Repositories(ctx context.Context) ([]model.Repository, error) {
	return s.stores.Repos.ListAll(ctx)
}

// Contributors returns ranked contributors with derived flags and profiles.
// Profile bios are rendered to sanitized HTML.
func (s *DatasetService) Contributors(ctx context.Context) ([]model.Contributor, error) {
	contributors, err := s.stores.Contributors.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	repos, err := s.stores.Repos.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	profiles, err := s.stores.Profiles.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	byLogin := make(map[string]model.Profile, len(profiles))
	for _, p := range profiles {
		byLogin[p.Login] = p
	}

	RankContributors(contributors)
	ApplyContributorFlags(contributors, repos, s.flagship, s.popularRank)

	for i := range contributors {
		p, ok := byLogin[contributors[i].Login]
		if !ok {
			continue
		}
		p.Bio = RenderMarkdown(p.Bio)
		contributors[i].Profile = &p
	}

	return contributors, nil
}

// CommitActivity returns weekly commit counts, oldest first.
func (s *DatasetService) CommitActivity(ctx context.Context) ([]model.WeeklyActivity, error) {
	return s.stores.Commits.WeeklySeries(ctx)
}

// LatestCommits returns the newest commits outside the flagship repository.
// limit is clamped to [1, MaxLatestCommits]; zero selects the default.
func (s *DatasetService) LatestCommits(ctx context.Context, limit int) ([]model.Commit, error) {
	switch {
	case limit <= 0:
		limit = DefaultLatestCommits
	case limit > MaxLatestCommits:
		limit = MaxLatestCommits
	}
	return s.stores.Commits.ListLatestExcluding(ctx, s.flagship, limit)
}

// Milestones returns the stored milestones.
func (s *DatasetService) Milestones(ctx context.Context) ([]model.Milestone, error) {
	return s.stores.Milestones.ListAll(ctx)
}

// PublicNodes returns the latest probe results.
func (s *DatasetService) PublicNodes(ctx context.Context) ([]model.PublicNode, error) {
	return s.stores.PublicNodes.ListAll(ctx)
}

// NodeEvents returns the stored feed with bodies rendered to sanitized HTML.
func (s *DatasetService) NodeEvents(ctx context.Context) ([]model.NodeEvent, error) {
	events, err := s.stores.NodeEvents.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].Descriptor.Body = RenderMarkdown(events[i].Descriptor.Body)
	}
	return events, nil
}

// Misc returns the JSON document stored under key.
func (s *DatasetService) Misc(ctx context.Context, key string) (string, error) {
	return s.stores.Misc.Get(ctx, key)
}

// SetMisc stores value under key. value must be a JSON document.
func (s *DatasetService) SetMisc(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty misc key", ErrInvalidInput)
	}
	if !json.Valid([]byte(value)) {
		return fmt.Errorf("%w: misc value for %s is not valid JSON", ErrInvalidInput, key)
	}
	return s.stores.Misc.Set(ctx, key, value)
}

// UpdateProfile applies a normalized partial update to the profile of login,
// creating it if missing.
func (s *DatasetService) UpdateProfile(ctx context.Context, login string, update model.ProfileUpdate) (model.Profile, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return model.Profile{}, fmt.Errorf("%w: empty login", ErrInvalidInput)
	}
	if update.GoalAmount != nil && *update.GoalAmount < 0 {
		return model.Profile{}, fmt.Errorf("%w: negative goal amount", ErrInvalidInput)
	}

	current, err := s.stores.Profiles.Get(ctx, login)
	if err != nil {
		return model.Profile{}, fmt.Errorf("load profile %s: %w", login, err)
	}

	profile := model.Profile{Login: login}
	if current != nil {
		profile = *current
	}

	profile = NormalizeProfileUpdate(update).Apply(profile)
	profile.UpdatedAt = s.now().UTC()

	if err := s.stores.Profiles.Save(ctx, profile); err != nil {
		return model.Profile{}, fmt.Errorf("save profile %s: %w", login, err)
	}

	return profile, nil
}

// NormalizeProfileUpdate trims every string, strips a leading "@" from handles
// and addresses and strips the scheme from website fields.
func NormalizeProfileUpdate(u model.ProfileUpdate) model.ProfileUpdate {
	trim := func(p *string, fn func(string) string) *string {
		if p == nil {
			return nil
		}
		v := strings.TrimSpace(*p)
		if fn != nil {
			v = fn(v)
		}
		return &v
	}
	stripAt := func(v string) string { return strings.TrimPrefix(v, "@") }
	stripScheme := func(v string) string {
		lower := strings.ToLower(v)
		for _, scheme := range []string{"https://", "http://"} {
			if strings.HasPrefix(lower, scheme) {
				return v[len(scheme):]
			}
		}
		return v
	}

	return model.ProfileUpdate{
		Bio:             trim(u.Bio, nil),
		TwitterUsername: trim(u.TwitterUsername, stripAt),
		Website:         trim(u.Website, stripScheme),
		NanoAddress:     trim(u.NanoAddress, stripAt),
		GHSponsors:      u.GHSponsors,
		PatreonURL:      trim(u.PatreonURL, nil),
		GoalTitle:       trim(u.GoalTitle, nil),
		GoalAmount:      u.GoalAmount,
		GoalNanoAddress: trim(u.GoalNanoAddress, stripAt),
		GoalWebsite:     trim(u.GoalWebsite, stripScheme),
		GoalDescription: trim(u.GoalDescription, nil),
	}
}

// JobRuns returns the newest runs first with their logs nested.
func (s *DatasetService) JobRuns(ctx context.Context, limit int) ([]model.JobRun, error) {
	if limit <= 0 {
		limit = DefaultJobRunLimit
	}
	return s.stores.JobRuns.ListRuns(ctx, limit)
}

// Snapshot is the whole read model in one document.
type Snapshot struct {
	Repositories   []model.Repository
	CommitActivity []model.WeeklyActivity
	Contributors   []model.Contributor
	Milestones     []model.Milestone
	LatestCommits  []model.Commit
	NodeEvents     []model.NodeEvent
	Misc           map[string]string
	PublicNodes    []model.PublicNode
}

// Snapshot assembles every read query into one Snapshot.
func (s *DatasetService) Snapshot(ctx context.Context) (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)

	if snap.Repositories, err = s.Repositories(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("repositories: %w", err)
	}
	if snap.CommitActivity, err = s.CommitActivity(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("commit activity: %w", err)
	}
	if snap.Contributors, err = s.Contributors(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("contributors: %w", err)
	}
	if snap.Milestones, err = s.Milestones(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("milestones: %w", err)
	}
	if snap.LatestCommits, err = s.LatestCommits(ctx, DefaultLatestCommits); err != nil {
		return Snapshot{}, fmt.Errorf("latest commits: %w", err)
	}
	if snap.NodeEvents, err = s.NodeEvents(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("node events: %w", err)
	}
	if snap.Misc, err = s.stores.Misc.ListAll(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("misc: %w", err)
	}
	if snap.PublicNodes, err = s.PublicNodes(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("public nodes: %w", err)
	}

	return snap, nil
}
