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
var _ driven.NodeEventStore = (*NodeEventRepo)(nil)

// NodeEventRepo is the SQLite implementation of the NodeEventStore port interface.
// Descriptors are stored as JSON documents.
type NodeEventRepo struct {
	db *DB
}

// NewNodeEventRepo creates a new NodeEventRepo backed by the given DB.
func NewNodeEventRepo(db *DB) *NodeEventRepo {
	return &NodeEventRepo{db: db}
}

// Replace atomically replaces all stored events.
func (r *NodeEventRepo) Replace(ctx context.Context, events []model.NodeEvent) error {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		descriptor, err := json.Marshal(e.Descriptor)
		if err != nil {
			return fmt.Errorf("marshal %s descriptor: %w", e.Type, err)
		}
		rows = append(rows, []any{e.Type, e.Author, e.AvatarURL, string(descriptor), formatTime(e.CreatedAt)})
	}

	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM node_events`); err != nil {
			return fmt.Errorf("delete node events: %w", err)
		}

		if len(rows) == 0 {
			return nil
		}

		const prefix = `INSERT INTO node_events (type, author, avatar_url, event, created_at) VALUES `
		if err := insertRows(ctx, tx, prefix, rows); err != nil {
			return fmt.Errorf("insert node events: %w", err)
		}

		return nil
	})
}

// ListAll returns all events, newest first.
func (r *NodeEventRepo) ListAll(ctx context.Context) ([]model.NodeEvent, error) {
	const query = `
		SELECT type, author, avatar_url, event, created_at
		FROM node_events
		ORDER BY created_at DESC, id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list node events: %w", err)
	}
	defer rows.Close()

	var events []model.NodeEvent
	for rows.Next() {
		var e model.NodeEvent
		var descriptor, createdAt string
		if err := rows.Scan(&e.Type, &e.Author, &e.AvatarURL, &descriptor, &createdAt); err != nil {
			return nil, fmt.Errorf("scan node event: %w", err)
		}
		if err := json.Unmarshal([]byte(descriptor), &e.Descriptor); err != nil {
			return nil, fmt.Errorf("unmarshal %s descriptor: %w", e.Type, err)
		}
		e.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse node event created_at: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate node events: %w", err)
	}

	return events, nil
}
