// Poller fans out probes across all configured nodes with bounded
// parallelism, grounded on the teacher's shares.BatchProcessor worker-pool
// shape (fixed worker count, buffered job channel, sync.WaitGroup join) —
// adapted here from a steady-state ingest queue to a bounded per-tick
// fan-out/fan-in.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/clustersentinel/clustersentinel/internal/node"
	"github.com/clustersentinel/clustersentinel/internal/nodeapi"
	"github.com/clustersentinel/clustersentinel/internal/unhealthy"
)

const maxWorkers = 16

func workerCount(jobs int) int {
	if jobs < 1 {
		return 1
	}
	if jobs > maxWorkers {
		return maxWorkers
	}
	return jobs
}

// runPool executes fn(i) for i in [0, n) across workerCount(n) goroutines
// and waits for all of them to finish.
func runPool(n int, fn func(i int)) {
	if n == 0 {
		return
	}
	jobs := make(chan int, n)
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	workers := workerCount(n)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}
	wg.Wait()
}

// Poller implements condition.ClusterSource, condition.OrdinalSource, and
// condition.NodeInfoSource against a fixed node list via a nodeapi.Client.
type Poller struct {
	Client *nodeapi.Client
	Nodes  []node.Node
}

// Snapshot fans out GetCluster across every node for layer, sized to
// min(16, |nodes|).
func (p *Poller) Snapshot(ctx context.Context, layer node.Layer) node.ClusterSnapshot {
	views := make([]node.NodeClusterView, len(p.Nodes))
	runPool(len(p.Nodes), func(i int) {
		n := p.Nodes[i]
		ports := n.Layers[layer]
		peers := p.Client.GetCluster(ctx, n.Host, ports.Public)
		v := node.NodeClusterView{Node: n.ID, Layer: layer, PolledAt: time.Now(), Peers: peers}
		if len(peers) == 0 {
			v.Error = "unreachable or empty cluster view"
		}
		views[i] = v
	})
	return node.ClusterSnapshot{Layer: layer, Timestamp: time.Now(), Views: views}
}

// Ordinal fetches a single node's ordinal for layer.
func (p *Poller) Ordinal(ctx context.Context, nodeID string, layer node.Layer) int64 {
	for _, n := range p.Nodes {
		if n.ID != nodeID {
			continue
		}
		ports := n.Layers[layer]
		return p.Client.GetOrdinal(ctx, n.Host, ports.Public, layer)
	}
	return -1
}

// Observations fans out GetNodeInfo across every (node, layer) pair, sized
// to min(16, |nodes|×|layers|).
func (p *Poller) Observations(ctx context.Context) []unhealthy.Observation {
	layers := node.StartupOrder
	total := len(p.Nodes) * len(layers)
	out := make([]unhealthy.Observation, total)
	runPool(total, func(i int) {
		n := p.Nodes[i/len(layers)]
		layer := layers[i%len(layers)]
		ports := n.Layers[layer]
		info := p.Client.GetNodeInfo(ctx, n.Host, ports.Public)
		out[i] = unhealthy.Observation{NodeID: n.ID, Layer: layer, Info: info}
	})
	return out
}
