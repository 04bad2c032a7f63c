// Package hypergraph implements the optional external-hypergraph
// disconnection check (spec §6.5). It is detection-only: its HealthEvent
// always carries suggestedAction = None and the Monitor Loop never routes
// it to the orchestrator.
//
// Open question (spec §9): the heuristic "disconnected iff local L0g
// cluster size ≤ local node count" is weak for clusters with more than
// three local nodes — a larger local cluster can still be a genuine
// majority partition rather than a hypergraph disconnect. It is kept as-is
// per spec instruction, not replaced with a stronger rule.
package hypergraph

import (
	"context"
	"time"

	"github.com/clustersentinel/clustersentinel/internal/node"
)

// ClusterSizeSource reports the local L0g cluster's observed peer count.
type ClusterSizeSource interface {
	L0gClusterSize(ctx context.Context) int
}

// Config is the optional configuration block from spec §6.5.
type Config struct {
	Enabled                 bool
	L0Urls                  []string
	CheckIntervalMultiplier int
}

// Detector polls for hypergraph disconnection on its own interval,
// (CheckIntervalMultiplier × healthCheckIntervalSeconds), separate from the
// Condition Engine's tick.
type Detector struct {
	Config      Config
	ClusterSize ClusterSizeSource
	LocalNodes  int
}

// Detect returns a HYPERGRAPH_HEALTH event when the heuristic fires, or nil
// otherwise. It never returns an actionable event.
func (d *Detector) Detect(ctx context.Context, now time.Time) *node.HealthEvent {
	if !d.Config.Enabled || d.ClusterSize == nil {
		return nil
	}
	size := d.ClusterSize.L0gClusterSize(ctx)
	if size > d.LocalNodes {
		return nil
	}
	return &node.HealthEvent{
		Condition:       node.HypergraphHealth,
		Layer:           node.L0g,
		Description:     "local L0g cluster view suggests disconnection from the external hypergraph",
		Timestamp:       now,
		SuggestedAction: node.ScopeNone,
	}
}
