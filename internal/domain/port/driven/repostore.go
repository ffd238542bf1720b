package driven

import (
	"context"

	"github.com/nanocasa/casa/internal/domain/model"
)

// RepoStore defines the driven port for repository persistence.
type RepoStore interface {
	// ListAll returns all repositories ordered by creation time, oldest first.
	ListAll(ctx context.Context) ([]model.Repository, error)
	// ApplyDiff applies inserts, display updates and deletes in one transaction.
	// Deletes cascade to the repository's commits. Inserted counters are zero.
	ApplyDiff(ctx context.Context, diff model.RepositoryDiff) error
}
