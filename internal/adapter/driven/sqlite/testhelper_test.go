package sqlite

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nanocasa/casa/internal/domain/model"
)

// setupTestDB opens a migrated in-memory database shared by its writer and
// reader pools. The name is derived from t.Name() so tests stay isolated.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// WAL does not apply to in-memory databases.
	dsn := buildDSN(url.PathEscape(t.Name()), "mode=memory", "cache=shared")

	db, err := open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = RunMigrations(db.Writer)
	require.NoError(t, err)

	return db
}

// seedRepos inserts repositories through a reconciliation diff.
func seedRepos(t *testing.T, db *DB, repos ...model.Repository) {
	t.Helper()

	err := NewRepoRepo(db).ApplyDiff(context.Background(), model.RepositoryDiff{Inserts: repos})
	require.NoError(t, err)
}

// countRows returns the number of rows in table.
func countRows(t *testing.T, db *DB, table string) int {
	t.Helper()

	var n int
	err := db.Reader.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n)
	require.NoError(t, err)
	return n
}

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
