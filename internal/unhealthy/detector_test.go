package unhealthy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clustersentinel/clustersentinel/internal/node"
)

func ready() *node.NodeInfo { return &node.NodeInfo{State: "Ready"} }

func TestDetect_AllHealthy_NoEvent(t *testing.T) {
	obs := []Observation{
		{NodeID: "n1", Layer: node.L0g, Info: ready()},
		{NodeID: "n2", Layer: node.L0g, Info: ready()},
	}
	assert.Nil(t, Detect(obs, time.Now()))
}

func TestDetect_MinorityDown_IndividualNode(t *testing.T) {
	obs := []Observation{
		{NodeID: "n1", Layer: node.L0g, Info: ready()},
		{NodeID: "n2", Layer: node.L0g, Info: ready()},
		{NodeID: "n3", Layer: node.L0g, Info: nil},
	}
	ev := Detect(obs, time.Now())
	assert.NotNil(t, ev)
	assert.Equal(t, node.ScopeIndividualNode, ev.SuggestedAction)
	assert.Equal(t, []string{"n3"}, ev.NodeIDs)
}

func TestDetect_MajorityDown_FullLayer(t *testing.T) {
	obs := []Observation{
		{NodeID: "n1", Layer: node.L0g, Info: nil},
		{NodeID: "n2", Layer: node.L0g, Info: nil},
		{NodeID: "n3", Layer: node.L0g, Info: ready()},
	}
	ev := Detect(obs, time.Now())
	assert.NotNil(t, ev)
	assert.Equal(t, node.ScopeFullLayer, ev.SuggestedAction)
}

func TestDetect_UnexpectedState_CountsAsUnhealthy(t *testing.T) {
	obs := []Observation{
		{NodeID: "n1", Layer: node.L0g, Info: &node.NodeInfo{State: "ReadyToJoin"}},
		{NodeID: "n2", Layer: node.L0g, Info: ready()},
	}
	ev := Detect(obs, time.Now())
	assert.NotNil(t, ev)
	assert.Equal(t, []string{"n1"}, ev.NodeIDs)
}

func TestDetect_TwoLayersMajorityDown_FullMetagraph(t *testing.T) {
	obs := []Observation{
		{NodeID: "n1", Layer: node.L0g, Info: nil},
		{NodeID: "n2", Layer: node.L0g, Info: nil},
		{NodeID: "n1", Layer: node.L0m, Info: nil},
		{NodeID: "n2", Layer: node.L0m, Info: nil},
	}
	ev := Detect(obs, time.Now())
	assert.NotNil(t, ev)
	assert.Equal(t, node.ScopeFullMetagraph, ev.SuggestedAction)
}
