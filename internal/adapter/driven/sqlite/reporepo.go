package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RepoStore = (*RepoRepo)(nil)

// RepoRepo is the SQLite implementation of the RepoStore port interface.
type RepoRepo struct {
	db *DB
}

// NewRepoRepo creates a new RepoRepo backed by the given DB.
func NewRepoRepo(db *DB) *RepoRepo {
	return &RepoRepo{db: db}
}

const repoColumns = `full_name, name, created_at, stars, prs_7d, prs_30d, commits_7d, commits_30d, description, avatar_url`

// ListAll returns all repositories ordered by creation time, oldest first.
func (r *RepoRepo) ListAll(ctx context.Context) ([]model.Repository, error) {
	query := `SELECT ` + repoColumns + ` FROM repositories ORDER BY created_at, full_name`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, *repo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}

	return repos, nil
}

// ApplyDiff applies one reconciliation pass atomically. Deleted repositories
// take their commit rows with them; inserted repositories start with zero counters.
func (r *RepoRepo) ApplyDiff(ctx context.Context, diff model.RepositoryDiff) error {
	if diff.IsEmpty() {
		return nil
	}

	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		for _, fullName := range diff.Deletes {
			if _, err := tx.ExecContext(ctx, `DELETE FROM commits WHERE repo_full_name = ?`, fullName); err != nil {
				return fmt.Errorf("delete commits for %s: %w", fullName, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM repositories WHERE full_name = ?`, fullName); err != nil {
				return fmt.Errorf("delete repository %s: %w", fullName, err)
			}
		}

		const updateQuery = `
			UPDATE repositories
			SET name = ?, stars = ?, description = ?, avatar_url = ?
			WHERE full_name = ?
		`
		for _, repo := range diff.Updates {
			if _, err := tx.ExecContext(ctx, updateQuery,
				repo.Name, repo.Stars, repo.Description, repo.AvatarURL, repo.FullName,
			); err != nil {
				return fmt.Errorf("update repository %s: %w", repo.FullName, err)
			}
		}

		if len(diff.Inserts) == 0 {
			return nil
		}

		rows := make([][]any, 0, len(diff.Inserts))
		for _, repo := range diff.Inserts {
			rows = append(rows, []any{
				repo.FullName, repo.Name, formatTime(repo.CreatedAt), repo.Stars,
				0, 0, 0, 0,
				repo.Description, repo.AvatarURL,
			})
		}

		if err := insertRows(ctx, tx, `INSERT INTO repositories (`+repoColumns+`) VALUES `, rows); err != nil {
			return fmt.Errorf("insert repositories: %w", err)
		}

		return nil
	})
}

func scanRepository(s scanner) (*model.Repository, error) {
	var repo model.Repository
	var createdAt string

	err := s.Scan(
		&repo.FullName, &repo.Name, &createdAt, &repo.Stars,
		&repo.PRs7d, &repo.PRs30d, &repo.Commits7d, &repo.Commits30d,
		&repo.Description, &repo.AvatarURL,
	)
	if err != nil {
		return nil, err
	}

	repo.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &repo, nil
}
