// Package unhealthy implements the per-node reachability detector (spec
// §4.5): a node/layer is unhealthy when its probe is unreachable or it
// reports a state outside the ready set.
package unhealthy

import (
	"fmt"
	"time"

	"github.com/clustersentinel/clustersentinel/internal/node"
)

// ReadyStates are the node states that do not count as unhealthy.
var ReadyStates = map[string]bool{
	"Ready":     true,
	"Observing": true,
}

// Observation is one (node, layer)'s fetched /node/info result, or nil if
// the probe failed.
type Observation struct {
	NodeID string
	Layer  node.Layer
	Info   *node.NodeInfo
}

// Detect classifies observations and, if any failed, returns a
// NODE_UNREACHABLE event scoped per spec §4.5.
func Detect(observations []Observation, now time.Time) *node.HealthEvent {
	var failing []string
	failingSet := map[string]bool{}
	layerFailures := map[node.Layer]int{}

	for _, o := range observations {
		bad := o.Info == nil || !ReadyStates[o.Info.State]
		if bad {
			layerFailures[o.Layer]++
			key := fmt.Sprintf("%s/%s", o.NodeID, o.Layer)
			if !failingSet[key] {
				failingSet[key] = true
				failing = append(failing, o.NodeID)
			}
		}
	}

	if len(failing) == 0 {
		return nil
	}

	total := len(observations)
	scope := node.ScopeIndividualNode
	majorityDownLayers := 0
	worstLayer := node.Layer("")
	worstCount := 0
	for layer, count := range layerFailures {
		if count > worstCount {
			worstCount = count
			worstLayer = layer
		}
		nodesOnLayer := 0
		for _, o := range observations {
			if o.Layer == layer {
				nodesOnLayer++
			}
		}
		if nodesOnLayer > 0 && count*2 >= nodesOnLayer {
			majorityDownLayers++
		}
	}

	switch {
	case majorityDownLayers >= 2:
		scope = node.ScopeFullMetagraph
	case total > 0 && len(failingSet)*2 >= total:
		scope = node.ScopeFullLayer
	}

	desc := fmt.Sprintf("%d (node, layer) pair(s) unreachable or not ready", len(failingSet))
	layer := worstLayer
	if scope == node.ScopeIndividualNode {
		layer = observations[0].Layer
	}

	return &node.HealthEvent{
		Condition:       node.NodeUnreachable,
		Layer:           layer,
		NodeIDs:         failing,
		Description:     desc,
		Timestamp:       now,
		SuggestedAction: scope,
	}
}
