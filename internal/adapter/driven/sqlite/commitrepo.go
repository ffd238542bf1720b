package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CommitStore = (*CommitRepo)(nil)

// CommitRepo is the SQLite implementation of the CommitStore port interface.
// It also owns the activity counters on the repositories table, since both are
// written by the same activity pass.
type CommitRepo struct {
	db *DB
}

// NewCommitRepo creates a new CommitRepo backed by the given DB.
func NewCommitRepo(db *DB) *CommitRepo {
	return &CommitRepo{db: db}
}

const commitColumns = `sha, repo_full_name, author, date, message, avatar_url`

// ApplyActivity writes the counters and commit rows of one activity pass in a
// single transaction. Counters of repositories that are no longer stored are
// silently skipped by the UPDATE.
func (r *CommitRepo) ApplyActivity(ctx context.Context, mode model.ActivityMode, activity []model.RepoActivity) error {
	if len(activity) == 0 {
		return nil
	}

	counterQuery := `
		UPDATE repositories
		SET prs_7d = prs_7d + ?, prs_30d = prs_30d + ?, commits_7d = commits_7d + ?, commits_30d = commits_30d + ?
		WHERE full_name = ?
	`
	if mode == model.ActivityModeFull {
		counterQuery = `
			UPDATE repositories
			SET prs_7d = ?, prs_30d = ?, commits_7d = ?, commits_30d = ?
			WHERE full_name = ?
		`
	}

	insert := `INSERT INTO commits (` + commitColumns + `) VALUES `
	if mode != model.ActivityModeFull {
		insert = `INSERT OR IGNORE INTO commits (` + commitColumns + `) VALUES `
	}

	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		var rows [][]any

		for _, a := range activity {
			if _, err := tx.ExecContext(ctx, counterQuery,
				a.Window.PRs7d, a.Window.PRs30d, a.Window.Commits7d, a.Window.Commits30d, a.FullName,
			); err != nil {
				return fmt.Errorf("update counters for %s: %w", a.FullName, err)
			}

			if mode == model.ActivityModeFull {
				if _, err := tx.ExecContext(ctx, `DELETE FROM commits WHERE repo_full_name = ?`, a.FullName); err != nil {
					return fmt.Errorf("replace commits for %s: %w", a.FullName, err)
				}
			}

			for _, c := range a.Commits {
				rows = append(rows, []any{c.SHA, a.FullName, c.Author, formatTime(c.Date), c.Message, c.AvatarURL})
			}
		}

		if len(rows) == 0 {
			return nil
		}

		if err := insertRows(ctx, tx, insert, rows); err != nil {
			return fmt.Errorf("insert commits: %w", err)
		}

		return nil
	})
}

// KnownSHAs returns the subset of shas already stored for fullName.
func (r *CommitRepo) KnownSHAs(ctx context.Context, fullName string, shas []string) (map[string]struct{}, error) {
	known := make(map[string]struct{})

	for chunk := range slices.Chunk(shas, insertChunkSize) {
		args := make([]any, 0, len(chunk)+1)
		args = append(args, fullName)
		for _, sha := range chunk {
			args = append(args, sha)
		}

		query := `SELECT sha FROM commits WHERE repo_full_name = ? AND sha IN (` +
			strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ") + `)`

		rows, err := r.db.Reader.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query known commits for %s: %w", fullName, err)
		}
		for rows.Next() {
			var sha string
			if err := rows.Scan(&sha); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan known commit: %w", err)
			}
			known[sha] = struct{}{}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate known commits: %w", err)
		}
	}

	return known, nil
}

// ListAll returns every stored commit, oldest first.
func (r *CommitRepo) ListAll(ctx context.Context) ([]model.Commit, error) {
	query := `SELECT ` + commitColumns + ` FROM commits ORDER BY date, id`
	return r.queryCommits(ctx, query)
}

// ListLatestExcluding returns up to limit of the newest commits outside excludeRepo.
func (r *CommitRepo) ListLatestExcluding(ctx context.Context, excludeRepo string, limit int) ([]model.Commit, error) {
	query := `SELECT ` + commitColumns + ` FROM commits WHERE repo_full_name <> ? ORDER BY date DESC, id DESC LIMIT ?`
	return r.queryCommits(ctx, query, excludeRepo, limit)
}

// WeeklySeries returns commit counts grouped by year and week of year
// (weeks starting on Monday), oldest first.
func (r *CommitRepo) WeeklySeries(ctx context.Context) ([]model.WeeklyActivity, error) {
	const query = `
		SELECT CAST(strftime('%Y', date) AS INTEGER) AS year,
		       CAST(strftime('%W', date) AS INTEGER) AS week,
		       COUNT(*)
		FROM commits
		GROUP BY year, week
		ORDER BY year, week
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query weekly series: %w", err)
	}
	defer rows.Close()

	var series []model.WeeklyActivity
	for rows.Next() {
		var point model.WeeklyActivity
		if err := rows.Scan(&point.Year, &point.Week, &point.Count); err != nil {
			return nil, fmt.Errorf("scan weekly series: %w", err)
		}
		series = append(series, point)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate weekly series: %w", err)
	}

	return series, nil
}

func (r *CommitRepo) queryCommits(ctx context.Context, query string, args ...any) ([]model.Commit, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query commits: %w", err)
	}
	defer rows.Close()

	var commits []model.Commit
	for rows.Next() {
		var c model.Commit
		var date string
		if err := rows.Scan(&c.SHA, &c.RepoFullName, &c.Author, &date, &c.Message, &c.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		c.Date, err = parseTime(date)
		if err != nil {
			return nil, fmt.Errorf("parse commit date: %w", err)
		}
		commits = append(commits, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commits: %w", err)
	}

	return commits, nil
}
