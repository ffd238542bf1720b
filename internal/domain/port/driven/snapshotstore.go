package driven

import (
	"context"

	"github.com/nanocasa/casa/internal/domain/model"
)

// MilestoneStore defines the driven port for milestone snapshots.
// Replace drops every stored milestone and inserts the given set atomically.
type MilestoneStore interface {
	Replace(ctx context.Context, milestones []model.Milestone) error
	ListAll(ctx context.Context) ([]model.Milestone, error)
}

// PublicNodeStore defines the driven port for public node probe results.
// Replace drops every stored status and inserts the given set atomically.
type PublicNodeStore interface {
	Replace(ctx context.Context, nodes []model.PublicNode) error
	ListAll(ctx context.Context) ([]model.PublicNode, error)
}

// NodeEventStore defines the driven port for normalized activity feed events.
// Replace drops every stored event and inserts the given set atomically.
type NodeEventStore interface {
	Replace(ctx context.Context, events []model.NodeEvent) error
	ListAll(ctx context.Context) ([]model.NodeEvent, error)
}
