package driven

import (
	"context"
	"errors"
)

// ErrMiscKeyNotFound indicates no value is stored under the requested key.
var ErrMiscKeyNotFound = errors.New("misc key not found")

// MiscStore defines the driven port for ad-hoc scalar state. Values are JSON documents.
type MiscStore interface {
	// Get returns the stored value or ErrMiscKeyNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set inserts or replaces the value stored under key.
	Set(ctx context.Context, key, value string) error
	// SetMany stores every key and value atomically: either all are written or none.
	SetMany(ctx context.Context, values map[string]string) error
	// ListAll returns every stored key and value.
	ListAll(ctx context.Context) (map[string]string, error)
}
