package driven

import (
	"context"

	"github.com/nanocasa/casa/internal/domain/model"
)

// ProfileStore defines the driven port for user-owned contributor profiles.
type ProfileStore interface {
	// Get returns the profile for login, or nil, nil if none exists.
	Get(ctx context.Context, login string) (*model.Profile, error)
	// Save inserts or replaces the profile for p.Login.
	Save(ctx context.Context, p model.Profile) error
	ListAll(ctx context.Context) ([]model.Profile, error)
}
