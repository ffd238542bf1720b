package driven

import (
	"context"

	"github.com/nanocasa/casa/internal/domain/model"
)

// ContributorStore defines the driven port for contributor aggregates.
// Uses full replacement: the aggregate set is always written as a whole.
type ContributorStore interface {
	ReplaceAll(ctx context.Context, contributors []model.Contributor) error
	ListAll(ctx context.Context) ([]model.Contributor, error)
}
