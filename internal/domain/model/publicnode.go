package model

import "time"

// NodeEndpoint is a statically configured public node to probe.
type NodeEndpoint struct {
	Endpoint   string
	Website    string
	Websocket  string
	Deprecated bool
}

// PublicNode is the result of the most recent probe of one NodeEndpoint.
// Error is nil when the node answered successfully.
type PublicNode struct {
	Endpoint     string
	Website      string
	Websocket    string
	Deprecated   bool
	Up           bool
	ResponseTime time.Duration
	Version      string
	Error        *string
	CheckedAt    time.Time
}
