package application_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanocasa/casa/internal/adapter/driven/nodeprobe"
	"github.com/nanocasa/casa/internal/application"
	"github.com/nanocasa/casa/internal/domain/model"
)

func TestNodeHealthService_HangingNodeDoesNotBlockHealthyOne(t *testing.T) {
	hanging := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(hanging.Close)

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"node_vendor":"Nano V28.0"}`))
	}))
	t.Cleanup(healthy.Close)

	const timeout = 200 * time.Millisecond
	prober := nodeprobe.NewProber(timeout)
	store := &replaceStore[model.PublicNode]{}
	nodes := []model.NodeEndpoint{
		{Endpoint: hanging.URL},
		{Endpoint: healthy.URL},
	}

	svc := application.NewNodeHealthService(prober, store, nodes, 2)

	start := time.Now()
	require.NoError(t, svc.Check(context.Background(), discardLogger()))
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 3*timeout, "probes run concurrently")

	require.Len(t, store.items, 2)
	assert.Equal(t, hanging.URL, store.items[0].Endpoint, "configured order is kept")
	assert.False(t, store.items[0].Up)
	require.NotNil(t, store.items[0].Error)
	assert.Equal(t, "Timeout", *store.items[0].Error)

	assert.Equal(t, healthy.URL, store.items[1].Endpoint)
	assert.True(t, store.items[1].Up)
	assert.Equal(t, "Nano V28.0", store.items[1].Version)
}

type stubProber struct{}

func (stubProber) Probe(_ context.Context, node model.NodeEndpoint) model.PublicNode {
	return model.PublicNode{Endpoint: node.Endpoint, Up: true}
}

func TestProbeAll_PreservesOrder(t *testing.T) {
	var nodes []model.NodeEndpoint
	for _, e := range []string{"e", "d", "c", "b", "a"} {
		nodes = append(nodes, model.NodeEndpoint{Endpoint: e})
	}

	got := application.ProbeAll(context.Background(), stubProber{}, nodes, 2)

	require.Len(t, got, 5)
	for i, n := range nodes {
		assert.Equal(t, n.Endpoint, got[i].Endpoint)
	}
}
