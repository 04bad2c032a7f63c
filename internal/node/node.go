// Package node holds the cluster's static data model: nodes, layers, port
// sets, and the per-tick views the detectors consume.
package node

import "time"

// Layer identifies one of the four logical processes a Node runs.
type Layer string

const (
	L0g Layer = "L0g"
	L0m Layer = "L0m"
	L1c Layer = "L1c"
	L1d Layer = "L1d"
)

// StartupOrder is the fixed partial order used during a FullMetagraph
// restart. Stop order is the reverse of this slice.
var StartupOrder = []Layer{L0m, L0g, L1c, L1d}

// ForkCheckOrder is the order layers are probed for forks each tick. The
// first forked layer wins and halts further probing for the tick.
var ForkCheckOrder = []Layer{L0m, L1c, L1d}

// PortSet is the triple of ports a layer exposes on a host.
type PortSet struct {
	Public int
	P2P    int
	CLI    int
}

// Node is a cluster member, immutable for the process lifetime.
type Node struct {
	ID     string
	Host   string
	Layers map[Layer]PortSet
}

// ClusterPeer is one entry in a node's view of its layer's peer set. Only ID
// and State participate in fork-detection equality.
type ClusterPeer struct {
	ID         string
	State      string
	Host       string
	PublicPort int
	P2PPort    int
}

// NodeClusterView is one node's answer to "who are my peers" for one layer
// at one tick. An error view has empty Peers and a non-empty Error.
type NodeClusterView struct {
	Node     string
	Layer    Layer
	Peers    []ClusterPeer
	PolledAt time.Time
	Error    string
}

// IsError reports whether this view represents a failed probe.
func (v NodeClusterView) IsError() bool {
	return v.Error != ""
}

// ClusterSnapshot is the set of views collected for one layer in one tick.
type ClusterSnapshot struct {
	Layer     Layer
	Timestamp time.Time
	Views     []NodeClusterView
}

// OrdinalSnapshot is one node's reported ordinal for one layer at one tick.
type OrdinalSnapshot struct {
	Node      string
	Layer     Layer
	Ordinal   int64
	Timestamp time.Time
}

// NodeInfo is the decoded shape of GET /node/info.
type NodeInfo struct {
	State               string
	ID                  string
	Host                string
	PublicPort          int
	P2PPort             int
	SnapshotOrdinal     *int64
	LastSnapshotOrdinal *int64
}

// Condition is the closed enumeration of HealthEvent kinds.
type Condition string

const (
	Healthy          Condition = "HEALTHY"
	ForkDetected     Condition = "FORK_DETECTED"
	SnapshotStall    Condition = "SNAPSHOT_STALL"
	NodeUnreachable  Condition = "NODE_UNREACHABLE"
	HypergraphHealth Condition = "HYPERGRAPH_HEALTH"
)

// RestartScope is the breadth of a restart procedure.
type RestartScope string

const (
	ScopeNone           RestartScope = "None"
	ScopeIndividualNode RestartScope = "IndividualNode"
	ScopeFullLayer      RestartScope = "FullLayer"
	ScopeFullMetagraph  RestartScope = "FullMetagraph"
)

// HealthEvent is the single actionable (or non-actionable) output of the
// Condition Engine for one tick.
type HealthEvent struct {
	Condition       Condition
	Layer           Layer
	AffectedLayers  []Layer
	NodeIDs         []string
	Description     string
	Timestamp       time.Time
	SuggestedAction RestartScope
}

// RestartOutcome is the terminal state of a restart procedure.
type RestartOutcome string

const (
	OutcomeSuccess RestartOutcome = "success"
	OutcomeFailed  RestartOutcome = "failed"
	OutcomeSkipped RestartOutcome = "skipped"
)

// RestartRecord is one entry in the orchestrator's ring buffer, used for
// cooldown and rate-limit gating.
type RestartRecord struct {
	ID         string
	Scope      RestartScope
	Layer      Layer
	NodeIDs    []string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    RestartOutcome
	Reason     string
}
