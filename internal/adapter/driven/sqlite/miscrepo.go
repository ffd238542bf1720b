package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.MiscStore = (*MiscRepo)(nil)

// MiscRepo is the SQLite implementation of the MiscStore port interface.
type MiscRepo struct {
	db *DB
}

// NewMiscRepo creates a new MiscRepo backed by the given DB.
func NewMiscRepo(db *DB) *MiscRepo {
	return &MiscRepo{db: db}
}

// Get returns the value stored under key, or driven.ErrMiscKeyNotFound.
func (r *MiscRepo) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.Reader.QueryRowContext(ctx, `SELECT value FROM misc WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("get misc %s: %w", key, driven.ErrMiscKeyNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get misc %s: %w", key, err)
	}

	return value, nil
}

// Set inserts or replaces the value stored under key.
func (r *MiscRepo) Set(ctx context.Context, key, value string) error {
	const query = `INSERT OR REPLACE INTO misc (key, value) VALUES (?, ?)`

	if _, err := r.db.Writer.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("set misc %s: %w", key, err)
	}

	return nil
}

// SetMany writes all values in one transaction.
func (r *MiscRepo) SetMany(ctx context.Context, values map[string]string) error {
	const query = `INSERT OR REPLACE INTO misc (key, value) VALUES (?, ?)`

	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		for key, value := range values {
			if _, err := tx.ExecContext(ctx, query, key, value); err != nil {
				return fmt.Errorf("set misc %s: %w", key, err)
			}
		}
		return nil
	})
}

// ListAll returns every stored key and value.
func (r *MiscRepo) ListAll(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.Reader.QueryContext(ctx, `SELECT key, value FROM misc`)
	if err != nil {
		return nil, fmt.Errorf("list misc: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan misc row: %w", err)
		}
		values[key] = value
	}

	return values, rows.Err()
}
