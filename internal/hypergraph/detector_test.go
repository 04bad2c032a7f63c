package hypergraph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clustersentinel/clustersentinel/internal/node"
)

type fixedSize int

func (f fixedSize) L0gClusterSize(ctx context.Context) int { return int(f) }

func TestDetect_Disabled_NoEvent(t *testing.T) {
	d := &Detector{Config: Config{Enabled: false}, ClusterSize: fixedSize(1), LocalNodes: 3}
	assert.Nil(t, d.Detect(context.Background(), time.Now()))
}

func TestDetect_SmallClusterSuggestsDisconnect(t *testing.T) {
	d := &Detector{Config: Config{Enabled: true}, ClusterSize: fixedSize(2), LocalNodes: 3}
	ev := d.Detect(context.Background(), time.Now())
	require.NotNil(t, ev)
	assert.Equal(t, node.HypergraphHealth, ev.Condition)
	assert.Equal(t, node.ScopeNone, ev.SuggestedAction)
}

func TestDetect_LargeClusterSuggestsHealthy(t *testing.T) {
	d := &Detector{Config: Config{Enabled: true}, ClusterSize: fixedSize(10), LocalNodes: 3}
	assert.Nil(t, d.Detect(context.Background(), time.Now()))
}
