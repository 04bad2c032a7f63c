package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clustersentinel/clustersentinel/internal/command"
	"github.com/clustersentinel/clustersentinel/internal/node"
)

func noSleep(time.Duration) {}

func threeNodes() []node.Node {
	return []node.Node{
		{ID: "node1", Host: "10.0.0.1"},
		{ID: "node2", Host: "10.0.0.2"},
		{ID: "node3", Host: "10.0.0.3"},
	}
}

func TestExecute_IndividualNode(t *testing.T) {
	exec := &command.LogExecutor{}
	o := New(Config{RestartCooldown: time.Minute, MaxRestartsPerHour: 10, Nodes: threeNodes()}, exec, nil, nil).WithSleep(noSleep)

	ev := node.HealthEvent{SuggestedAction: node.ScopeIndividualNode, Layer: node.L0m, NodeIDs: []string{"node3"}}
	out := o.Execute(context.Background(), ev, []string{"node1", "node2"})
	require.Equal(t, Restarted, out.Result)
	require.Len(t, exec.Calls, 2)
	assert.Equal(t, "stop", exec.Calls[0].Op)
	assert.Equal(t, "startAndJoin", exec.Calls[1].Op)
	assert.Equal(t, "10.0.0.1", exec.Calls[1].SeedHost)
}

func TestExecute_IndividualNode_NoSeedDowngradesToFullLayer(t *testing.T) {
	exec := &command.LogExecutor{}
	o := New(Config{RestartCooldown: time.Minute, MaxRestartsPerHour: 10, Nodes: threeNodes()}, exec, nil, nil).WithSleep(noSleep)

	ev := node.HealthEvent{SuggestedAction: node.ScopeIndividualNode, Layer: node.L0m, NodeIDs: []string{"node1"}}
	out := o.Execute(context.Background(), ev, []string{"node1"})
	require.Equal(t, Restarted, out.Result)
	var ops []string
	for _, c := range exec.Calls {
		ops = append(ops, c.Op)
	}
	assert.Contains(t, ops, "startGenesis")
}

func TestExecute_FullLayer_StopsAllThenGenesisThenJoins(t *testing.T) {
	exec := &command.LogExecutor{}
	o := New(Config{RestartCooldown: time.Minute, MaxRestartsPerHour: 10, Nodes: threeNodes()}, exec, nil, nil).WithSleep(noSleep)

	ev := node.HealthEvent{SuggestedAction: node.ScopeFullLayer, Layer: node.L0m, NodeIDs: []string{"node1", "node2", "node3"}}
	out := o.Execute(context.Background(), ev, nil)
	require.Equal(t, Restarted, out.Result)

	var stops, genesis, joins int
	for _, c := range exec.Calls {
		switch c.Op {
		case "stop":
			stops++
		case "startGenesis":
			genesis++
			assert.Equal(t, "10.0.0.1", c.Host)
		case "startAndJoin":
			joins++
		}
	}
	assert.Equal(t, 3, stops)
	assert.Equal(t, 1, genesis)
	assert.Equal(t, 2, joins)
}

func TestExecute_FullMetagraph_RunsLayersInOrder(t *testing.T) {
	exec := &command.LogExecutor{}
	o := New(Config{RestartCooldown: time.Minute, MaxRestartsPerHour: 10, Nodes: threeNodes()}, exec, nil, nil).WithSleep(noSleep)

	ev := node.HealthEvent{SuggestedAction: node.ScopeFullMetagraph}
	out := o.Execute(context.Background(), ev, nil)
	require.Equal(t, Restarted, out.Result)

	var genesisLayers []node.Layer
	for _, c := range exec.Calls {
		if c.Op == "startGenesis" {
			genesisLayers = append(genesisLayers, c.Layer)
		}
	}
	assert.Equal(t, []node.Layer{node.L0m, node.L0g, node.L1c, node.L1d}, genesisLayers)
}

func TestExecute_CooldownSkipsSecondCall(t *testing.T) {
	exec := &command.LogExecutor{}
	t0 := time.Now()
	clock := t0
	o := New(Config{RestartCooldown: 10 * time.Minute, MaxRestartsPerHour: 10, Nodes: threeNodes()}, exec, nil, func() time.Time { return clock }).WithSleep(noSleep)

	ev := node.HealthEvent{SuggestedAction: node.ScopeFullMetagraph}
	first := o.Execute(context.Background(), ev, nil)
	require.Equal(t, Restarted, first.Result)

	clock = t0.Add(2 * time.Minute)
	callsBefore := len(exec.Calls)
	second := o.Execute(context.Background(), ev, nil)
	assert.Equal(t, Skipped, second.Result)
	assert.Equal(t, SkipCooldown, second.Reason)
	assert.Equal(t, callsBefore, len(exec.Calls))
}

func TestExecute_RateLimit_ScenarioF(t *testing.T) {
	exec := &command.LogExecutor{}
	t0 := time.Now()
	clock := t0
	o := New(Config{RestartCooldown: 0, MaxRestartsPerHour: 2, Nodes: threeNodes()}, exec, nil, func() time.Time { return clock }).WithSleep(noSleep)

	ev := node.HealthEvent{SuggestedAction: node.ScopeFullMetagraph}
	first := o.Execute(context.Background(), ev, nil)
	require.Equal(t, Restarted, first.Result)

	clock = t0.Add(20 * time.Minute)
	second := o.Execute(context.Background(), ev, nil)
	require.Equal(t, Restarted, second.Result)

	clock = t0.Add(40 * time.Minute)
	third := o.Execute(context.Background(), ev, nil)
	assert.Equal(t, Skipped, third.Result)
	assert.Equal(t, SkipRateLimit, third.Reason)
}

func TestExecute_FailureAbortsProcedureAndAppliesCooldown(t *testing.T) {
	exec := &command.LogExecutor{SimulateError: true}
	o := New(Config{RestartCooldown: time.Minute, MaxRestartsPerHour: 10, Nodes: threeNodes()}, exec, nil, nil).WithSleep(noSleep)

	ev := node.HealthEvent{SuggestedAction: node.ScopeFullLayer, Layer: node.L0m}
	out := o.Execute(context.Background(), ev, nil)
	require.Equal(t, Failed, out.Result)
	assert.Equal(t, node.OutcomeFailed, out.Record.Outcome)

	second := o.Execute(context.Background(), ev, nil)
	assert.Equal(t, Skipped, second.Result)
	assert.Equal(t, SkipCooldown, second.Reason)
}
