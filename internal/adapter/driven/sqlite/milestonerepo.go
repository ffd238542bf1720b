package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.MilestoneStore = (*MilestoneRepo)(nil)

// MilestoneRepo is the SQLite implementation of the MilestoneStore port interface.
type MilestoneRepo struct {
	db *DB
}

// NewMilestoneRepo creates a new MilestoneRepo backed by the given DB.
func NewMilestoneRepo(db *DB) *MilestoneRepo {
	return &MilestoneRepo{db: db}
}

// Replace atomically replaces all milestones. It deletes existing rows and
// inserts the provided milestones in a single transaction.
func (r *MilestoneRepo) Replace(ctx context.Context, milestones []model.Milestone) error {
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM milestones`); err != nil {
			return fmt.Errorf("delete milestones: %w", err)
		}

		if len(milestones) == 0 {
			return nil
		}

		rows := make([][]any, 0, len(milestones))
		for _, m := range milestones {
			rows = append(rows, []any{m.Number, m.Title, m.OpenIssues, m.ClosedIssues, m.URL, formatTime(m.CreatedAt)})
		}

		const prefix = `INSERT INTO milestones (number, title, open_issues, closed_issues, url, created_at) VALUES `
		if err := insertRows(ctx, tx, prefix, rows); err != nil {
			return fmt.Errorf("insert milestones: %w", err)
		}

		return nil
	})
}

// ListAll returns all milestones ordered by title descending, so the newest
// version comes first.
func (r *MilestoneRepo) ListAll(ctx context.Context) ([]model.Milestone, error) {
	const query = `
		SELECT number, title, open_issues, closed_issues, url, created_at
		FROM milestones
		ORDER BY title DESC
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer rows.Close()

	var milestones []model.Milestone
	for rows.Next() {
		var m model.Milestone
		var createdAt string
		if err := rows.Scan(&m.Number, &m.Title, &m.OpenIssues, &m.ClosedIssues, &m.URL, &createdAt); err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		m.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse milestone created_at: %w", err)
		}
		milestones = append(milestones, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate milestones: %w", err)
	}

	return milestones, nil
}
