package application_test

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/nanocasa/casa/internal/application"
	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockGitHubClient struct {
	search     func(ctx context.Context, query string) ([]model.Repository, error)
	get        func(ctx context.Context, fullName string) (*model.Repository, error)
	commits    func(ctx context.Context, fullName string, since time.Time) ([]model.Commit, error)
	prs        func(ctx context.Context, fullName string, since time.Time) ([]model.PullRequest, error)
	milestones func(ctx context.Context, fullName string) ([]model.Milestone, error)
	events     func(ctx context.Context, fullName string, limit int) ([]model.RawEvent, error)
}

func (m *mockGitHubClient) SearchRepositories(ctx context.Context, query string) ([]model.Repository, error) {
	if m.search == nil {
		return nil, nil
	}
	return m.search(ctx, query)
}

func (m *mockGitHubClient) GetRepository(ctx context.Context, fullName string) (*model.Repository, error) {
	if m.get == nil {
		return nil, driven.ErrUpstreamNotFound
	}
	return m.get(ctx, fullName)
}

func (m *mockGitHubClient) FetchCommits(ctx context.Context, fullName string, since time.Time) ([]model.Commit, error) {
	if m.commits == nil {
		return nil, nil
	}
	return m.commits(ctx, fullName, since)
}

func (m *mockGitHubClient) FetchPullRequests(ctx context.Context, fullName string, since time.Time) ([]model.PullRequest, error) {
	if m.prs == nil {
		return nil, nil
	}
	return m.prs(ctx, fullName, since)
}

func (m *mockGitHubClient) FetchMilestones(ctx context.Context, fullName string) ([]model.Milestone, error) {
	return m.milestones(ctx, fullName)
}

func (m *mockGitHubClient) FetchEvents(ctx context.Context, fullName string, limit int) ([]model.RawEvent, error) {
	return m.events(ctx, fullName, limit)
}

type mockRepoStore struct {
	repos    []model.Repository
	diffs    []model.RepositoryDiff
	applyErr error
}

func (m *mockRepoStore) ListAll(_ context.Context) ([]model.Repository, error) {
	return slices.Clone(m.repos), nil
}

func (m *mockRepoStore) ApplyDiff(_ context.Context, diff model.RepositoryDiff) error {
	if m.applyErr != nil {
		return m.applyErr
	}
	m.diffs = append(m.diffs, diff)

	deleted := make(map[string]bool, len(diff.Deletes))
	for _, name := range diff.Deletes {
		deleted[name] = true
	}
	updated := make(map[string]model.Repository, len(diff.Updates))
	for _, r := range diff.Updates {
		updated[r.FullName] = r
	}

	kept := m.repos[:0]
	for _, r := range m.repos {
		if deleted[r.FullName] {
			continue
		}
		if u, ok := updated[r.FullName]; ok {
			r = u
		}
		kept = append(kept, r)
	}
	m.repos = append(kept, diff.Inserts...)
	return nil
}

type applyCall struct {
	mode     model.ActivityMode
	activity []model.RepoActivity
}

type mockCommitStore struct {
	mu       sync.Mutex
	calls    []applyCall
	commits  []model.Commit
	applyErr error
	latest   func(excludeRepo string, limit int) []model.Commit
	weekly   []model.WeeklyActivity
}

func (m *mockCommitStore) ApplyActivity(_ context.Context, mode model.ActivityMode, activity []model.RepoActivity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.applyErr != nil {
		return m.applyErr
	}
	m.calls = append(m.calls, applyCall{mode: mode, activity: activity})

	for _, a := range activity {
		if mode == model.ActivityModeFull {
			m.commits = slices.DeleteFunc(m.commits, func(c model.Commit) bool {
				return c.RepoFullName == a.FullName
			})
		}
		for _, c := range a.Commits {
			c.RepoFullName = a.FullName
			m.commits = append(m.commits, c)
		}
	}
	return nil
}

func (m *mockCommitStore) KnownSHAs(_ context.Context, fullName string, shas []string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	known := make(map[string]struct{})
	for _, c := range m.commits {
		if c.RepoFullName == fullName && slices.Contains(shas, c.SHA) {
			known[c.SHA] = struct{}{}
		}
	}
	return known, nil
}

func (m *mockCommitStore) ListAll(_ context.Context) ([]model.Commit, error) {
	return slices.Clone(m.commits), nil
}

func (m *mockCommitStore) ListLatestExcluding(_ context.Context, excludeRepo string, limit int) ([]model.Commit, error) {
	if m.latest == nil {
		return nil, nil
	}
	return m.latest(excludeRepo, limit), nil
}

func (m *mockCommitStore) WeeklySeries(_ context.Context) ([]model.WeeklyActivity, error) {
	return m.weekly, nil
}

type mockContributorStore struct {
	contributors []model.Contributor
	replaced     int
}

func (m *mockContributorStore) ReplaceAll(_ context.Context, contributors []model.Contributor) error {
	m.replaced++
	m.contributors = slices.Clone(contributors)
	return nil
}

func (m *mockContributorStore) ListAll(_ context.Context) ([]model.Contributor, error) {
	return slices.Clone(m.contributors), nil
}

type mockMiscStore struct {
	mu      sync.Mutex
	values  map[string]string
	setErr  error
	failKey string
}

func newMockMiscStore() *mockMiscStore {
	return &mockMiscStore{values: make(map[string]string)}
}

func (m *mockMiscStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	if !ok {
		return "", driven.ErrMiscKeyNotFound
	}
	return v, nil
}

func (m *mockMiscStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

// SetMany fails without writing anything when any key equals failKey.
func (m *mockMiscStore) SetMany(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.setErr != nil {
		return m.setErr
	}
	if _, ok := values[m.failKey]; ok && m.failKey != "" {
		return errors.New("write " + m.failKey + " failed")
	}
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func (m *mockMiscStore) ListAll(_ context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

type mockProfileStore struct {
	profiles map[string]model.Profile
}

func newMockProfileStore() *mockProfileStore {
	return &mockProfileStore{profiles: make(map[string]model.Profile)}
}

func (m *mockProfileStore) Get(_ context.Context, login string) (*model.Profile, error) {
	p, ok := m.profiles[login]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *mockProfileStore) Save(_ context.Context, p model.Profile) error {
	m.profiles[p.Login] = p
	return nil
}

func (m *mockProfileStore) ListAll(_ context.Context) ([]model.Profile, error) {
	out := make([]model.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	return out, nil
}

// replaceStore is a generic full-replace store.
type replaceStore[T any] struct {
	items    []T
	replaced int
}

func (m *replaceStore[T]) Replace(_ context.Context, items []T) error {
	m.replaced++
	m.items = slices.Clone(items)
	return nil
}

func (m *replaceStore[T]) ListAll(_ context.Context) ([]T, error) {
	return slices.Clone(m.items), nil
}

type mockJobRunStore struct {
	mu        sync.Mutex
	nextID    int64
	runs      map[int64]model.JobRun
	logs      []model.LogEntry
	startErr  error
	appendErr error
	pruneErr  error
	logCutoff time.Time
}

func newMockJobRunStore() *mockJobRunStore {
	return &mockJobRunStore{runs: make(map[int64]model.JobRun)}
}

func (m *mockJobRunStore) Start(_ context.Context, jobName string, startedAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return 0, m.startErr
	}
	m.nextID++
	m.runs[m.nextID] = model.JobRun{ID: m.nextID, JobName: jobName, StartedAt: startedAt, Status: model.JobStatusRunning}
	return m.nextID, nil
}

func (m *mockJobRunStore) AppendLog(_ context.Context, entry model.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.appendErr != nil {
		return m.appendErr
	}
	m.logs = append(m.logs, entry)
	return nil
}

func (m *mockJobRunStore) Finish(_ context.Context, run model.JobRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[run.ID] = run
	return nil
}

func (m *mockJobRunStore) Prune(_ context.Context, jobName string, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pruneErr != nil {
		return 0, m.pruneErr
	}

	var ids []int64
	for id, run := range m.runs {
		if run.JobName == jobName {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if len(ids) <= keep {
		return 0, nil
	}

	doomed := ids[:len(ids)-keep]
	for _, id := range doomed {
		delete(m.runs, id)
	}
	m.logs = slices.DeleteFunc(m.logs, func(e model.LogEntry) bool {
		return slices.Contains(doomed, e.JobRunID)
	})
	return int64(len(doomed)), nil
}

func (m *mockJobRunStore) PruneLogsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logCutoff = cutoff
	before := len(m.logs)
	m.logs = slices.DeleteFunc(m.logs, func(e model.LogEntry) bool {
		return e.Timestamp.Before(cutoff)
	})
	return int64(before - len(m.logs)), nil
}

func (m *mockJobRunStore) ListRuns(_ context.Context, limit int) ([]model.JobRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var runs []model.JobRun
	for _, run := range m.runs {
		runs = append(runs, run)
	}
	slices.SortFunc(runs, func(a, b model.JobRun) int { return int(b.ID - a.ID) })
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (m *mockJobRunStore) logsFor(runID int64) []model.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.LogEntry
	for _, e := range m.logs {
		if e.JobRunID == runID {
			out = append(out, e)
		}
	}
	return out
}

// --- Helpers ---

func discardLogger() *application.JobLogger {
	return application.NewJobLogger(slog.New(slog.DiscardHandler))
}

func newRepo(fullName string, stars int) model.Repository {
	return model.Repository{FullName: fullName, Name: fullName, Stars: stars}
}
