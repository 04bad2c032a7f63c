// Package nodeapi is the typed facade over a node's HTTP surface. It
// collapses every probe failure to a sentinel value — callers interpret
// absence as evidence, never as an exception, matching the teacher's
// LitecoinHealthChecker pattern of returning zero-value diagnostics rather
// than propagating RPC errors.
package nodeapi

import (
	"context"
	"fmt"

	"github.com/clustersentinel/clustersentinel/internal/node"
	"github.com/clustersentinel/clustersentinel/internal/probe"
)

// Client wraps a probe.Prober with the three endpoints the detectors need.
type Client struct {
	Prober probe.Prober
}

// New returns a Client backed by prober.
func New(prober probe.Prober) *Client {
	return &Client{Prober: prober}
}

type clusterInfoEntry struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	IP         string `json:"ip"`
	PublicPort int    `json:"publicPort"`
	P2PPort    int    `json:"p2pPort"`
}

type nodeInfoBody struct {
	State               string `json:"state"`
	ID                  string `json:"id"`
	Host                string `json:"host"`
	PublicPort          int    `json:"publicPort"`
	P2PPort             int    `json:"p2pPort"`
	SnapshotOrdinal     *int64 `json:"snapshotOrdinal"`
	LastSnapshotOrdinal *int64 `json:"lastSnapshotOrdinal"`
}

type checkpointBody struct {
	Ordinal int64 `json:"ordinal"`
}

// GetCluster decodes GET /cluster/info. Returns an empty slice on any
// probe.Error — the caller (Fork Detector) treats this as an error view.
func (c *Client) GetCluster(ctx context.Context, host string, port int) []node.ClusterPeer {
	url := fmt.Sprintf("http://%s:%d/cluster/info", host, port)
	var body []clusterInfoEntry
	if err := c.Prober.Probe(ctx, url, probe.DefaultTimeout, &body); err != nil {
		return []node.ClusterPeer{}
	}

	peers := make([]node.ClusterPeer, 0, len(body))
	for _, e := range body {
		peers = append(peers, node.ClusterPeer{
			ID:         e.ID,
			State:      e.State,
			Host:       e.IP,
			PublicPort: e.PublicPort,
			P2PPort:    e.P2PPort,
		})
	}
	return peers
}

// GetOrdinal returns the progress ordinal for (host, layer). For L0m it
// decodes GET /data-application/v1/checkpoint; for every other layer it
// decodes GET /node/info and reads snapshotOrdinal, falling back to
// lastSnapshotOrdinal, falling back to 0. Returns -1 on any probe failure.
func (c *Client) GetOrdinal(ctx context.Context, host string, port int, layer node.Layer) int64 {
	if layer == node.L0m {
		url := fmt.Sprintf("http://%s:%d/data-application/v1/checkpoint", host, port)
		var body checkpointBody
		if err := c.Prober.Probe(ctx, url, probe.DefaultTimeout, &body); err != nil {
			return -1
		}
		return body.Ordinal
	}

	url := fmt.Sprintf("http://%s:%d/node/info", host, port)
	var body nodeInfoBody
	if err := c.Prober.Probe(ctx, url, probe.DefaultTimeout, &body); err != nil {
		return -1
	}
	if body.SnapshotOrdinal != nil {
		return *body.SnapshotOrdinal
	}
	if body.LastSnapshotOrdinal != nil {
		return *body.LastSnapshotOrdinal
	}
	return 0
}

// GetNodeInfo decodes GET /node/info. Returns nil on any probe failure.
func (c *Client) GetNodeInfo(ctx context.Context, host string, port int) *node.NodeInfo {
	url := fmt.Sprintf("http://%s:%d/node/info", host, port)
	var body nodeInfoBody
	if err := c.Prober.Probe(ctx, url, probe.DefaultTimeout, &body); err != nil {
		return nil
	}
	return &node.NodeInfo{
		State:               body.State,
		ID:                  body.ID,
		Host:                body.Host,
		PublicPort:          body.PublicPort,
		P2PPort:             body.P2PPort,
		SnapshotOrdinal:     body.SnapshotOrdinal,
		LastSnapshotOrdinal: body.LastSnapshotOrdinal,
	}
}
