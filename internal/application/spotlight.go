package application

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// Spotlight filter defaults.
const (
	DefaultSpotlightSkipTop  = 15
	DefaultSpotlightMaxStars = 500
)

// SelectWeighted picks one item with probability proportional to its weight.
// Negative and NaN weights count as zero. If every weight is zero the pick is
// uniform. It returns false for empty input.
func SelectWeighted[T any](items []T, weight func(T) float64, rng *rand.Rand) (T, bool) {
	var zero T
	if len(items) == 0 {
		return zero, false
	}

	weights := make([]float64, len(items))
	total := 0.0
	for i, item := range items {
		w := weight(item)
		if math.IsNaN(w) || w < 0 {
			w = 0
		}
		weights[i] = w
		total += w
	}

	if total == 0 || math.IsInf(total, 0) {
		return items[rng.IntN(len(items))], true
	}

	u := rng.Float64() * total
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if cumulative > u {
			return items[i], true
		}
	}

	return items[len(items)-1], true
}

// SpotlightWeight favors recently active repositories and gives small ones a
// boost. repoCount is the size of the candidate set.
func SpotlightWeight(repo model.Repository, repoCount int) float64 {
	if repoCount <= 0 {
		repoCount = 1
	}
	activity := float64(repo.Commits30d+repo.PRs30d) / float64(repoCount)
	return activity + 1/float64(repo.Stars+1)
}

// SpotlightConfig holds the candidate filters.
type SpotlightConfig struct {
	SkipTop  int
	MaxStars int
}

// SpotlightService picks the featured repository.
type SpotlightService struct {
	repos driven.RepoStore
	misc  driven.MiscStore
	cfg   SpotlightConfig
	rng   *rand.Rand
}

// NewSpotlightService creates a SpotlightService. A nil rng uses a randomly
// seeded source.
func NewSpotlightService(repos driven.RepoStore, misc driven.MiscStore, cfg SpotlightConfig, rng *rand.Rand) *SpotlightService {
	if cfg.SkipTop < 0 {
		cfg.SkipTop = DefaultSpotlightSkipTop
	}
	if cfg.MaxStars <= 0 {
		cfg.MaxStars = DefaultSpotlightMaxStars
	}
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &SpotlightService{repos: repos, misc: misc, cfg: cfg, rng: rng}
}

// Update selects a repository and stores it under the spotlight misc key.
// No candidate leaves the stored value untouched.
func (s *SpotlightService) Update(ctx context.Context, log *JobLogger) error {
	repos, err := s.repos.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list repositories: %w", err)
	}

	candidates := SpotlightCandidates(repos, s.cfg)
	picked, ok := SelectWeighted(candidates, func(r model.Repository) float64 {
		return SpotlightWeight(r, len(candidates))
	}, s.rng)
	if !ok {
		log.Warn("no spotlight candidates", "repos", len(repos))
		return nil
	}

	payload, err := json.Marshal(newSpotlightDoc(picked))
	if err != nil {
		return fmt.Errorf("encode spotlight: %w", err)
	}

	if err := s.misc.Set(ctx, model.MiscKeySpotlight, string(payload)); err != nil {
		return fmt.Errorf("store spotlight: %w", err)
	}

	log.Info("spotlight selected", "repo", picked.FullName, "candidates", len(candidates))
	return nil
}

// SpotlightCandidates drops the SkipTop most-starred repositories and keeps
// those with a description and fewer than MaxStars stars.
func SpotlightCandidates(repos []model.Repository, cfg SpotlightConfig) []model.Repository {
	ranked := slices.Clone(repos)
	slices.SortStableFunc(ranked, func(a, b model.Repository) int {
		return cmp.Compare(b.Stars, a.Stars)
	})
	if cfg.SkipTop >= len(ranked) {
		return nil
	}
	ranked = ranked[cfg.SkipTop:]

	out := make([]model.Repository, 0, len(ranked))
	for _, r := range ranked {
		if r.Description == "" || r.Stars >= cfg.MaxStars {
			continue
		}
		out = append(out, r)
	}
	return out
}

// spotlightDoc is the JSON shape stored under the spotlight key.
type spotlightDoc struct {
	FullName    string    `json:"full_name"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Stars       int       `json:"stargazers_count"`
	AvatarURL   string    `json:"avatar_url"`
	CreatedAt   time.Time `json:"created_at"`
	PRs30d      int       `json:"prs_30d"`
	Commits30d  int       `json:"commits_30d"`
}

func newSpotlightDoc(r model.Repository) spotlightDoc {
	return spotlightDoc{
		FullName:    r.FullName,
		Name:        r.Name,
		Description: r.Description,
		Stars:       r.Stars,
		AvatarURL:   r.AvatarURL,
		CreatedAt:   r.CreatedAt,
		PRs30d:      r.PRs30d,
		Commits30d:  r.Commits30d,
	}
}
