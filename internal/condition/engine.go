// Package condition implements the per-tick Condition Engine: it runs the
// fork, stall, and unhealthy-node detectors in strict priority order and
// stops at the first one that reports something actionable, per the
// teacher's evaluateRecovery ordered-trigger-check shape.
package condition

import (
	"context"
	"time"

	"github.com/clustersentinel/clustersentinel/internal/fork"
	"github.com/clustersentinel/clustersentinel/internal/node"
	"github.com/clustersentinel/clustersentinel/internal/stall"
	"github.com/clustersentinel/clustersentinel/internal/unhealthy"
)

// ClusterSource collects a ClusterSnapshot for one layer, fanning out to all
// configured nodes.
type ClusterSource interface {
	Snapshot(ctx context.Context, layer node.Layer) node.ClusterSnapshot
}

// OrdinalSource fetches a node's ordinal for a layer, -1 on failure.
type OrdinalSource interface {
	Ordinal(ctx context.Context, nodeID string, layer node.Layer) int64
}

// NodeInfoSource fetches /node/info observations across all (node, layer)
// pairs for the unhealthy-node detector.
type NodeInfoSource interface {
	Observations(ctx context.Context) []unhealthy.Observation
}

// Engine wires the three detectors together with the shared Tracker state
// the Monitor Loop owns.
type Engine struct {
	Clusters  ClusterSource
	Ordinals  OrdinalSource
	NodeInfos NodeInfoSource
	Tracker   *stall.Tracker
	Nodes     []string

	SnapshotStallThreshold time.Duration
	Now                    func() time.Time

	lastMajority  []string
	lastCanonical node.OrdinalSnapshot
	lastFound     bool
}

// MajorityNodes returns the majority partition recorded by the most recent
// Tick, or nil if that tick was not a fork event.
func (e *Engine) MajorityNodes() []string {
	return e.lastMajority
}

// LastCanonical returns the canonical L0m ordinal observed by the most
// recent Tick (spec §4.4 step 1) and whether any node answered at all. Its
// Timestamp is the instant the synthetic cluster key last advanced, not the
// instant of the tick. A
// caller can persist this into an external SnapshotSource so a restarted
// process warm-starts the stall clock instead of treating the first
// observation as an instant reset.
func (e *Engine) LastCanonical() (node.OrdinalSnapshot, bool) {
	return e.lastCanonical, e.lastFound
}

// SeedSynthetic pre-loads the synthetic cluster-wide stall key from a
// previously persisted OrdinalSnapshot, so the stall clock survives a
// process restart instead of resetting to "just observed."
func (e *Engine) SeedSynthetic(snap node.OrdinalSnapshot) {
	e.Tracker.UpdateSynthetic(snap.Layer, snap.Ordinal, snap.Timestamp)
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Tick runs fork detection, then the stall test, then the unhealthy-node
// test, returning the first emitted HealthEvent. A nil result means the
// cluster is healthy this tick. After a fork-triggered event, MajorityNodes
// reports the layer's majority partition for the orchestrator's
// IndividualNode seed selection; it is nil for every other condition.
func (e *Engine) Tick(ctx context.Context) *node.HealthEvent {
	now := e.now()
	e.lastMajority = nil

	for _, layer := range node.ForkCheckOrder {
		res := fork.Detect(e.Clusters.Snapshot(ctx, layer), now)
		if res.Event != nil {
			e.lastMajority = res.MajorityNodes
			return res.Event
		}
	}

	if ev := e.checkStall(ctx, now); ev != nil {
		return ev
	}

	if e.NodeInfos != nil {
		obs := e.NodeInfos.Observations(ctx)
		if ev := unhealthy.Detect(obs, now); ev != nil {
			return ev
		}
	}

	return nil
}

// checkStall implements spec §4.4's detection flow: first non-negative
// ordinal across nodes in order feeds the synthetic cluster key.
func (e *Engine) checkStall(ctx context.Context, now time.Time) *node.HealthEvent {
	var canonical int64 = -1
	found := false
	for _, n := range e.Nodes {
		ord := e.Ordinals.Ordinal(ctx, n, node.L0m)
		if ord >= 0 {
			canonical = ord
			found = true
			break
		}
	}
	e.lastFound = found
	if !found {
		return nil
	}
	e.Tracker.UpdateSynthetic(node.L0m, canonical, now)
	secs := e.Tracker.StaleSecsSynthetic(node.L0m, now)

	changedAt := now
	if secs != nil {
		changedAt = now.Add(-time.Duration(*secs * float64(time.Second)))
	}
	e.lastCanonical = node.OrdinalSnapshot{Layer: node.L0m, Ordinal: canonical, Timestamp: changedAt}

	threshold := e.SnapshotStallThreshold
	if threshold <= 0 {
		threshold = 4 * time.Minute
	}
	if secs == nil || *secs < threshold.Seconds() {
		return nil
	}

	return &node.HealthEvent{
		Condition:       node.SnapshotStall,
		Layer:           node.L0m,
		AffectedLayers:  []node.Layer{node.L0m, node.L1c, node.L1d},
		NodeIDs:         append([]string{}, e.Nodes...),
		Description:     "cluster-wide snapshot ordinal has not advanced past the configured threshold",
		Timestamp:       now,
		SuggestedAction: node.ScopeFullMetagraph,
	}
}
