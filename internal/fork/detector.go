// Package fork reduces a per-layer ClusterSnapshot to a majority/minority/
// unreachable classification and decides the restart scope a fork warrants.
package fork

import (
	"fmt"
	"sort"
	"time"

	"github.com/clustersentinel/clustersentinel/internal/node"
)

const (
	errorKeyPrefix = "⟂ERROR:"
	emptyKey       = "⟂EMPTY"
)

// canonicalKey computes the fork-detection grouping key for a single view.
// Error views form their own singleton group; empty healthy views collapse
// to one shared group.
func canonicalKey(v node.NodeClusterView) string {
	if v.IsError() {
		return errorKeyPrefix + v.Node
	}
	if len(v.Peers) == 0 {
		return emptyKey
	}
	ids := make([]string, 0, len(v.Peers))
	for _, p := range v.Peers {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	return fmt.Sprintf("%v", ids)
}

// Result is the outcome of one Detect call.
type Result struct {
	ForkDetected  bool
	MajorityNodes []string
	MinorityNodes []string
	Unreachable   []string
	Event         *node.HealthEvent
}

// Detect reduces snap to a majority/minority/unreachable partition and
// returns the HealthEvent (if any) it implies. A non-nil Event is either
// FORK_DETECTED or NODE_UNREACHABLE (when there is no healthy view at all,
// i.e. every view on the layer is an error view); a nil Event means the layer is
// healthy with respect to forks.
func Detect(snap node.ClusterSnapshot, now time.Time) Result {
	groups := map[string][]string{}
	var unreachable []string

	for _, v := range snap.Views {
		key := canonicalKey(v)
		if v.IsError() {
			unreachable = append(unreachable, v.Node)
			continue
		}
		groups[key] = append(groups[key], v.Node)
	}

	if len(groups) == 0 {
		if len(unreachable) == 0 {
			return Result{}
		}
		sort.Strings(unreachable)
		return Result{
			Unreachable: unreachable,
			Event: &node.HealthEvent{
				Condition:       node.NodeUnreachable,
				Layer:           snap.Layer,
				NodeIDs:         unreachable,
				Description:     fmt.Sprintf("all nodes unreachable on layer %s", snap.Layer),
				Timestamp:       now,
				SuggestedAction: node.ScopeFullLayer,
			},
		}
	}

	var keys []string
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	majorityKey := keys[0]
	for _, k := range keys[1:] {
		if len(groups[k]) > len(groups[majorityKey]) {
			majorityKey = k
		}
	}

	majority := append([]string{}, groups[majorityKey]...)
	sort.Strings(majority)

	var minority []string
	for _, k := range keys {
		if k == majorityKey {
			continue
		}
		minority = append(minority, groups[k]...)
	}
	sort.Strings(minority)

	if len(minority) == 0 {
		return Result{MajorityNodes: majority, Unreachable: unreachable}
	}

	scope := node.ScopeIndividualNode
	if len(minority) >= len(majority) {
		scope = node.ScopeFullLayer
	}

	return Result{
		ForkDetected:  true,
		MajorityNodes: majority,
		MinorityNodes: minority,
		Unreachable:   unreachable,
		Event: &node.HealthEvent{
			Condition:       node.ForkDetected,
			Layer:           snap.Layer,
			NodeIDs:         minority,
			Description:     fmt.Sprintf("fork detected on layer %s: %d minority node(s) vs %d majority", snap.Layer, len(minority), len(majority)),
			Timestamp:       now,
			SuggestedAction: scope,
		},
	}
}

// DetectFirst runs Detect over snapshots in node.ForkCheckOrder and returns
// the first layer with an emitted event, per the spec's "first forked layer
// wins" priority rule.
func DetectFirst(snapshots map[node.Layer]node.ClusterSnapshot, now time.Time) (node.Layer, Result, bool) {
	for _, layer := range node.ForkCheckOrder {
		snap, ok := snapshots[layer]
		if !ok {
			continue
		}
		res := Detect(snap, now)
		if res.Event != nil {
			return layer, res, true
		}
	}
	return "", Result{}, false
}
