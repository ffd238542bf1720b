// Package nodeprobe implements the NodeProber port by calling the version
// action of a public node RPC endpoint.
package nodeprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

const (
	errTimeout    = "Timeout"
	errNoResponse = "No response"

	// unknownVersion is reported when a node answers without a vendor string.
	unknownVersion = "?"

	maxResponseBytes = 1 << 20
)

// Compile-time interface satisfaction check.
var _ driven.NodeProber = (*Prober)(nil)

var versionRequest = []byte(`{"action":"version"}`)

// Prober probes one endpoint per call. Every call has its own deadline, so
// a slow endpoint never eats into the budget of another.
type Prober struct {
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time
}

// NewProber creates a Prober with the given per-call timeout.
func NewProber(timeout time.Duration) *Prober {
	return NewProberWithHTTPClient(&http.Client{}, timeout)
}

// NewProberWithHTTPClient creates a Prober with a custom http.Client.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewProberWithHTTPClient(httpClient *http.Client, timeout time.Duration) *Prober {
	return &Prober{
		httpClient: httpClient,
		timeout:    timeout,
		now:        time.Now,
	}
}

// versionResponse is the boundary struct of a version RPC response.
type versionResponse struct {
	NodeVendor string `json:"node_vendor"`
	Error      string `json:"error"`
}

// Probe classifies the liveness of node. It never returns an error: failures
// are carried in the result.
func (p *Prober) Probe(ctx context.Context, node model.NodeEndpoint) model.PublicNode {
	result := model.PublicNode{
		Endpoint:   node.Endpoint,
		Website:    node.Website,
		Websocket:  node.Websocket,
		Deprecated: node.Deprecated,
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := p.now()
	result.CheckedAt = start.UTC()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, node.Endpoint, bytes.NewReader(versionRequest))
	if err != nil {
		result.ResponseTime = p.now().Sub(start)
		return failed(result, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		result.ResponseTime = p.now().Sub(start)
		if isTimeout(err) {
			return failed(result, errTimeout)
		}
		return failed(result, errNoResponse)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	result.ResponseTime = p.now().Sub(start)
	if readErr != nil && isTimeout(readErr) {
		return failed(result, errTimeout)
	}

	var body versionResponse
	_ = json.Unmarshal(raw, &body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if body.NodeVendor == "" {
			result.Version = unknownVersion
			return result
		}
		result.Up = true
		result.Version = body.NodeVendor
		return result
	}

	msg := fmt.Sprintf("Status %d", resp.StatusCode)
	if body.Error != "" {
		msg += ": " + body.Error
	}
	result = failed(result, msg)
	// The service answered, so anything below 500 counts as reachable.
	result.Up = resp.StatusCode < http.StatusInternalServerError

	return result
}

func failed(result model.PublicNode, msg string) model.PublicNode {
	result.Up = false
	result.Error = &msg
	return result
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
