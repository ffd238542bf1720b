package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ContributorStore = (*ContributorRepo)(nil)

// ContributorRepo is the SQLite implementation of the ContributorStore port interface.
type ContributorRepo struct {
	db *DB
}

// NewContributorRepo creates a new ContributorRepo backed by the given DB.
func NewContributorRepo(db *DB) *ContributorRepo {
	return &ContributorRepo{db: db}
}

// ReplaceAll atomically replaces every stored aggregate. Repos are serialized
// as a JSON array in the TEXT column.
func (r *ContributorRepo) ReplaceAll(ctx context.Context, contributors []model.Contributor) error {
	rows := make([][]any, 0, len(contributors))
	for _, c := range contributors {
		repos := c.Repos
		if repos == nil {
			repos = []string{}
		}
		reposJSON, err := json.Marshal(repos)
		if err != nil {
			return fmt.Errorf("marshal repos for %s: %w", c.Login, err)
		}
		rows = append(rows, []any{c.Login, c.AvatarURL, c.Contributions, c.Last30d, string(reposJSON)})
	}

	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM contributors`); err != nil {
			return fmt.Errorf("delete contributors: %w", err)
		}

		if len(rows) == 0 {
			return nil
		}

		const prefix = `INSERT INTO contributors (login, avatar_url, contributions, last_30d, repos) VALUES `
		if err := insertRows(ctx, tx, prefix, rows); err != nil {
			return fmt.Errorf("insert contributors: %w", err)
		}

		return nil
	})
}

// ListAll returns all aggregates ordered by contributions descending.
func (r *ContributorRepo) ListAll(ctx context.Context) ([]model.Contributor, error) {
	const query = `
		SELECT login, avatar_url, contributions, last_30d, repos
		FROM contributors
		ORDER BY contributions DESC, login
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list contributors: %w", err)
	}
	defer rows.Close()

	var contributors []model.Contributor
	for rows.Next() {
		var c model.Contributor
		var reposJSON string
		if err := rows.Scan(&c.Login, &c.AvatarURL, &c.Contributions, &c.Last30d, &reposJSON); err != nil {
			return nil, fmt.Errorf("scan contributor: %w", err)
		}
		if err := json.Unmarshal([]byte(reposJSON), &c.Repos); err != nil {
			return nil, fmt.Errorf("unmarshal repos for %s: %w", c.Login, err)
		}
		contributors = append(contributors, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contributors: %w", err)
	}

	return contributors, nil
}
