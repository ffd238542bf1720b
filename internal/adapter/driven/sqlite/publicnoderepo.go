package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PublicNodeStore = (*PublicNodeRepo)(nil)

// PublicNodeRepo is the SQLite implementation of the PublicNodeStore port interface.
type PublicNodeRepo struct {
	db *DB
}

// NewPublicNodeRepo creates a new PublicNodeRepo backed by the given DB.
func NewPublicNodeRepo(db *DB) *PublicNodeRepo {
	return &PublicNodeRepo{db: db}
}

// Replace atomically replaces all node statuses. Input order is preserved.
func (r *PublicNodeRepo) Replace(ctx context.Context, nodes []model.PublicNode) error {
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM public_nodes`); err != nil {
			return fmt.Errorf("delete public nodes: %w", err)
		}

		if len(nodes) == 0 {
			return nil
		}

		rows := make([][]any, 0, len(nodes))
		for i, n := range nodes {
			var nodeErr any
			if n.Error != nil {
				nodeErr = *n.Error
			}
			rows = append(rows, []any{
				i, n.Endpoint, n.Website, n.Websocket, boolToInt(n.Deprecated), boolToInt(n.Up),
				n.ResponseTime.Milliseconds(), n.Version, nodeErr, formatTime(n.CheckedAt),
			})
		}

		const prefix = `
			INSERT INTO public_nodes (position, endpoint, website, websocket, deprecated, up, resp_time, version, error, checked_at)
			VALUES `
		if err := insertRows(ctx, tx, prefix, rows); err != nil {
			return fmt.Errorf("insert public nodes: %w", err)
		}

		return nil
	})
}

// ListAll returns all node statuses in configuration order.
func (r *PublicNodeRepo) ListAll(ctx context.Context) ([]model.PublicNode, error) {
	const query = `
		SELECT endpoint, website, websocket, deprecated, up, resp_time, version, error, checked_at
		FROM public_nodes
		ORDER BY position
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list public nodes: %w", err)
	}
	defer rows.Close()

	var nodes []model.PublicNode
	for rows.Next() {
		var n model.PublicNode
		var deprecated, up int
		var respMs int64
		var nodeErr sql.NullString
		var checkedAt string

		if err := rows.Scan(&n.Endpoint, &n.Website, &n.Websocket, &deprecated, &up, &respMs, &n.Version, &nodeErr, &checkedAt); err != nil {
			return nil, fmt.Errorf("scan public node: %w", err)
		}

		n.Deprecated = deprecated == 1
		n.Up = up == 1
		n.ResponseTime = time.Duration(respMs) * time.Millisecond
		if nodeErr.Valid {
			msg := nodeErr.String
			n.Error = &msg
		}
		n.CheckedAt, err = parseTime(checkedAt)
		if err != nil {
			return nil, fmt.Errorf("parse checked_at: %w", err)
		}

		nodes = append(nodes, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate public nodes: %w", err)
	}

	return nodes, nil
}
