package application

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// DefaultProbeConcurrency bounds concurrent node probes.
const DefaultProbeConcurrency = 8

// NodeHealthService probes the configured public nodes.
type NodeHealthService struct {
	prober      driven.NodeProber
	store       driven.PublicNodeStore
	nodes       []model.NodeEndpoint
	concurrency int
}

// NewNodeHealthService creates a NodeHealthService for nodes.
func NewNodeHealthService(prober driven.NodeProber, store driven.PublicNodeStore, nodes []model.NodeEndpoint, concurrency int) *NodeHealthService {
	if concurrency <= 0 {
		concurrency = DefaultProbeConcurrency
	}
	return &NodeHealthService{prober: prober, store: store, nodes: nodes, concurrency: concurrency}
}

// Check probes every node and replaces the stored statuses. Results keep the
// configured order.
func (s *NodeHealthService) Check(ctx context.Context, log *JobLogger) error {
	results := ProbeAll(ctx, s.prober, s.nodes, s.concurrency)

	up := 0
	for _, r := range results {
		if r.Up {
			up++
			continue
		}
		errMsg := ""
		if r.Error != nil {
			errMsg = *r.Error
		}
		log.Warn("public node down", "endpoint", r.Endpoint, "error", errMsg)
	}

	if err := s.store.Replace(ctx, results); err != nil {
		return fmt.Errorf("replace public nodes: %w", err)
	}

	log.Info("public nodes checked", "total", len(results), "up", up)
	return nil
}

// ProbeAll probes nodes with at most limit in flight. A slow node never
// delays or cancels the others beyond its own probe timeout.
func ProbeAll(ctx context.Context, prober driven.NodeProber, nodes []model.NodeEndpoint, limit int) []model.PublicNode {
	results := make([]model.PublicNode, len(nodes))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, node := range nodes {
		g.Go(func() error {
			results[i] = prober.Probe(ctx, node)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
