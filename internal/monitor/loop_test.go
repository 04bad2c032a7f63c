package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clustersentinel/clustersentinel/internal/command"
	"github.com/clustersentinel/clustersentinel/internal/condition"
	"github.com/clustersentinel/clustersentinel/internal/node"
	"github.com/clustersentinel/clustersentinel/internal/orchestrator"
	"github.com/clustersentinel/clustersentinel/internal/stall"
)

type fakeClusters struct {
	byLayer map[node.Layer]node.ClusterSnapshot
}

func (f *fakeClusters) Snapshot(ctx context.Context, layer node.Layer) node.ClusterSnapshot {
	return f.byLayer[layer]
}

type fakeOrdinals struct{ values map[string]int64 }

func (f *fakeOrdinals) Ordinal(ctx context.Context, nodeID string, layer node.Layer) int64 {
	if v, ok := f.values[nodeID]; ok {
		return v
	}
	return -1
}

func healthyCluster(ids ...string) node.ClusterSnapshot {
	var views []node.NodeClusterView
	for _, id := range ids {
		v := node.NodeClusterView{Node: id, Layer: node.L0m}
		for _, peer := range ids {
			v.Peers = append(v.Peers, node.ClusterPeer{ID: peer, State: "Ready"})
		}
		views = append(views, v)
	}
	return node.ClusterSnapshot{Layer: node.L0m, Views: views}
}

func forkedSnapshot() node.ClusterSnapshot {
	return node.ClusterSnapshot{Layer: node.L0m, Views: []node.NodeClusterView{
		{Node: "n1", Peers: []node.ClusterPeer{{ID: "p1"}, {ID: "p2"}}},
		{Node: "n2", Peers: []node.ClusterPeer{{ID: "p1"}, {ID: "p2"}}},
		{Node: "n3", Peers: []node.ClusterPeer{{ID: "p3"}}},
	}}
}

func newEngine(snapshots map[node.Layer]node.ClusterSnapshot, ordinals map[string]int64, nodes []string, now time.Time) *condition.Engine {
	return &condition.Engine{
		Clusters: &fakeClusters{byLayer: snapshots},
		Ordinals: &fakeOrdinals{values: ordinals},
		Tracker:  stall.New(),
		Nodes:    nodes,
		Now:      func() time.Time { return now },
	}
}

func TestLoop_OneShot_HealthyClusterNoRestart(t *testing.T) {
	now := time.Now()
	engine := newEngine(map[node.Layer]node.ClusterSnapshot{
		node.L0m: healthyCluster("n1", "n2", "n3"),
		node.L1c: healthyCluster("n1", "n2", "n3"),
		node.L1d: healthyCluster("n1", "n2", "n3"),
	}, map[string]int64{"n1": 100}, []string{"n1", "n2", "n3"}, now)

	exec := &command.LogExecutor{}
	orch := orchestrator.New(orchestrator.Config{
		RestartCooldown:    10 * time.Minute,
		MaxRestartsPerHour: 6,
		Nodes:              []node.Node{{ID: "n1", Host: "h1"}, {ID: "n2", Host: "h2"}, {ID: "n3", Host: "h3"}},
	}, exec, nil, func() time.Time { return now }).WithSleep(func(time.Duration) {})

	notifier := &fakeNotifier{}
	l := &Loop{Engine: engine, Orchestrator: orch, Notifier: notifier, Now: func() time.Time { return now }}
	l.Run(context.Background(), false)

	assert.Empty(t, notifier.events())
	assert.Empty(t, exec.Calls)
}

func TestLoop_OneShot_ForkTriggersRestart(t *testing.T) {
	now := time.Now()
	engine := newEngine(map[node.Layer]node.ClusterSnapshot{
		node.L0m: forkedSnapshot(),
	}, map[string]int64{"n1": 100}, []string{"n1", "n2", "n3"}, now)

	exec := &command.LogExecutor{}
	orch := orchestrator.New(orchestrator.Config{
		RestartCooldown:    10 * time.Minute,
		MaxRestartsPerHour: 6,
		Nodes:              []node.Node{{ID: "n1", Host: "h1"}, {ID: "n2", Host: "h2"}, {ID: "n3", Host: "h3"}},
	}, exec, nil, func() time.Time { return now }).WithSleep(func(time.Duration) {})

	notifier := &fakeNotifier{}
	l := &Loop{Engine: engine, Orchestrator: orch, Notifier: notifier, Now: func() time.Time { return now }}
	l.Run(context.Background(), false)

	require.Len(t, notifier.events(), 1)
	assert.Equal(t, node.ForkDetected, notifier.events()[0].Condition)
	assert.NotEmpty(t, exec.Calls)
}

func TestLoop_CooldownSuppressesSecondRestart(t *testing.T) {
	now := time.Now()
	engine := newEngine(map[node.Layer]node.ClusterSnapshot{
		node.L0m: forkedSnapshot(),
	}, map[string]int64{"n1": 100}, []string{"n1", "n2", "n3"}, now)

	exec := &command.LogExecutor{}
	orch := orchestrator.New(orchestrator.Config{
		RestartCooldown:    10 * time.Minute,
		MaxRestartsPerHour: 6,
		Nodes:              []node.Node{{ID: "n1", Host: "h1"}, {ID: "n2", Host: "h2"}, {ID: "n3", Host: "h3"}},
	}, exec, nil, func() time.Time { return now }).WithSleep(func(time.Duration) {})

	notifier := &fakeNotifier{}
	l := &Loop{Engine: engine, Orchestrator: orch, Notifier: notifier, Now: func() time.Time { return now }}
	l.Run(context.Background(), false)
	firstCallCount := len(exec.Calls)
	require.NotZero(t, firstCallCount)

	l.Run(context.Background(), false)
	assert.Equal(t, firstCallCount, len(exec.Calls), "second restart within cooldown must not invoke the command port again")
}

type fakeSnapshotSource struct {
	stored map[string]node.OrdinalSnapshot
}

func (f *fakeSnapshotSource) Get(ctx context.Context, nodeID string, layer node.Layer) (node.OrdinalSnapshot, bool, error) {
	snap, ok := f.stored[nodeID+"/"+string(layer)]
	return snap, ok, nil
}

func (f *fakeSnapshotSource) Set(ctx context.Context, snap node.OrdinalSnapshot) error {
	if f.stored == nil {
		f.stored = map[string]node.OrdinalSnapshot{}
	}
	f.stored[snap.Node+"/"+string(snap.Layer)] = snap
	return nil
}

func TestLoop_PersistsCanonicalOrdinalToSnapshotSource(t *testing.T) {
	now := time.Now()
	engine := newEngine(map[node.Layer]node.ClusterSnapshot{
		node.L0m: healthyCluster("n1", "n2"),
		node.L1c: healthyCluster("n1", "n2"),
		node.L1d: healthyCluster("n1", "n2"),
	}, map[string]int64{"n1": 42}, []string{"n1", "n2"}, now)

	src := &fakeSnapshotSource{}
	l := &Loop{Engine: engine, Snapshots: src, Now: func() time.Time { return now }}
	l.Run(context.Background(), false)

	snap, found, err := src.Get(context.Background(), stall.ClusterKey, node.L0m)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(42), snap.Ordinal)
}

func TestLoop_SeedAt_WarmStartsStallClock(t *testing.T) {
	now := time.Now()
	engine := newEngine(map[node.Layer]node.ClusterSnapshot{
		node.L0m: healthyCluster("n1"),
	}, map[string]int64{"n1": 7}, []string{"n1"}, now)

	staleSince := now.Add(-5 * time.Minute)
	src := &fakeSnapshotSource{stored: map[string]node.OrdinalSnapshot{
		stall.ClusterKey + "/" + string(node.L0m): {Node: stall.ClusterKey, Layer: node.L0m, Ordinal: 7, Timestamp: staleSince},
	}}

	l := &Loop{Engine: engine, Snapshots: src, Now: func() time.Time { return now }}
	l.SeedAt(context.Background())
	l.Run(context.Background(), false)

	secs := engine.Tracker.StaleSecsSynthetic(node.L0m, now)
	require.NotNil(t, secs)
	assert.InDelta(t, (5 * time.Minute).Seconds(), *secs, 1)
}

func TestLoop_Daemon_StartAndStop(t *testing.T) {
	now := time.Now()
	engine := newEngine(map[node.Layer]node.ClusterSnapshot{
		node.L0m: healthyCluster("n1", "n2", "n3"),
		node.L1c: healthyCluster("n1", "n2", "n3"),
		node.L1d: healthyCluster("n1", "n2", "n3"),
	}, map[string]int64{"n1": 100}, []string{"n1", "n2", "n3"}, now)

	l := &Loop{Engine: engine, Interval: 10 * time.Millisecond, Now: func() time.Time { return now }}
	l.Run(context.Background(), true)
	time.Sleep(35 * time.Millisecond)
	l.Stop()

	assert.GreaterOrEqual(t, l.ticks, 2)
}

func TestLoop_StatsTracksTicksAndEvents(t *testing.T) {
	now := time.Now()
	engine := newEngine(map[node.Layer]node.ClusterSnapshot{
		node.L0m: forkedSnapshot(),
	}, map[string]int64{"n1": 100}, []string{"n1", "n2", "n3"}, now)

	exec := &command.LogExecutor{}
	orch := orchestrator.New(orchestrator.Config{
		RestartCooldown:    10 * time.Minute,
		MaxRestartsPerHour: 6,
		Nodes:              []node.Node{{ID: "n1", Host: "h1"}, {ID: "n2", Host: "h2"}, {ID: "n3", Host: "h3"}},
	}, exec, nil, func() time.Time { return now }).WithSleep(func(time.Duration) {})

	l := &Loop{Engine: engine, Orchestrator: orch, Notifier: &fakeNotifier{}, Now: func() time.Time { return now }}
	l.Run(context.Background(), false)

	stats := l.Stats()
	assert.Equal(t, 1, stats.Ticks)
	assert.Equal(t, int64(1), stats.EventsByCond[node.ForkDetected])
	assert.Equal(t, 3, stats.NodesMonitored)
	assert.NotZero(t, stats.RestartsByOut)
}

type fakeNotifier struct {
	evs []node.HealthEvent
}

func (f *fakeNotifier) Notify(ctx context.Context, event node.HealthEvent) error {
	f.evs = append(f.evs, event)
	return nil
}

func (f *fakeNotifier) events() []node.HealthEvent {
	return f.evs
}
