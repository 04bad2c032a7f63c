// Package stall implements the ordinal-progress state machine: per-(node,
// layer) tracking plus the synthetic cluster-wide key used for the
// metagraph-wide stall condition.
//
// Open question (spec): Tracker.Update's first-observation semantics are
// ambiguous in the source this was distilled from — it returns "advanced"
// both on first observation and on strict increase, leaving open whether a
// never-before-seen key should count as a stall signal. This package treats
// first observation as *not stalled*: a key with no prior baseline has
// nothing to compare against, so staleSecs starts counting from the
// observation instant rather than from some assumed past. Document this
// choice rather than relying on its absence of error.
package stall

import (
	"time"

	"github.com/clustersentinel/clustersentinel/internal/node"
)

// ClusterKey is the synthetic tracker key used for the cluster-wide L0m
// liveness signal (spec §4.4): "any node saw progress ⇒ healthy".
const ClusterKey = "⟂cluster"

type key struct {
	node  string
	layer node.Layer
}

type entry struct {
	lastOrdinal   int64
	lastChangedAt time.Time
}

// Tracker is the mutable state machine owned exclusively by the Monitor
// Loop; it is never shared across ticks or goroutines.
type Tracker struct {
	state map[key]entry
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{state: map[key]entry{}}
}

// Update applies a single OrdinalSnapshot. It returns true ("advanced") on
// first observation of the key or when the ordinal strictly increased;
// otherwise it leaves state unchanged and returns false.
func (t *Tracker) Update(snap node.OrdinalSnapshot) bool {
	return t.update(snap.Node, snap.Layer, snap.Ordinal, snap.Timestamp)
}

// UpdateSynthetic feeds a single cluster-wide ordinal observation under the
// synthetic key, per spec §4.4 step 2.
func (t *Tracker) UpdateSynthetic(layer node.Layer, ordinal int64, now time.Time) bool {
	return t.update(ClusterKey, layer, ordinal, now)
}

func (t *Tracker) update(nodeID string, layer node.Layer, ordinal int64, now time.Time) bool {
	k := key{node: nodeID, layer: layer}
	e, seen := t.state[k]
	if !seen || ordinal > e.lastOrdinal {
		t.state[k] = entry{lastOrdinal: ordinal, lastChangedAt: now}
		return true
	}
	return false
}

// StaleSecs returns how long (node, layer) has gone without an ordinal
// advance, or nil if that key has never been observed.
func (t *Tracker) StaleSecs(nodeID string, layer node.Layer, now time.Time) *float64 {
	return t.staleSecs(nodeID, layer, now)
}

// StaleSecsSynthetic is StaleSecs for the synthetic cluster-wide key.
func (t *Tracker) StaleSecsSynthetic(layer node.Layer, now time.Time) *float64 {
	return t.staleSecs(ClusterKey, layer, now)
}

func (t *Tracker) staleSecs(nodeID string, layer node.Layer, now time.Time) *float64 {
	e, seen := t.state[key{node: nodeID, layer: layer}]
	if !seen {
		return nil
	}
	secs := now.Sub(e.lastChangedAt).Seconds()
	return &secs
}

// ClusterStalled reports whether every tracked node is stalled on layer,
// per spec §4.4: "every node with a recorded observation AND at least one
// node is tracked". Nodes never observed on this layer do not count against
// the result, but if none have ever been observed, the layer is not
// considered cluster-stalled.
func (t *Tracker) ClusterStalled(nodes []string, layer node.Layer, thresholdSecs float64, now time.Time) bool {
	tracked := 0
	for _, n := range nodes {
		secs := t.staleSecs(n, layer, now)
		if secs == nil {
			continue
		}
		tracked++
		if *secs < thresholdSecs {
			return false
		}
	}
	return tracked > 0
}
