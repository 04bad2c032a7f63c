package hypergraph

import (
	"context"

	"github.com/clustersentinel/clustersentinel/internal/probe"
)

type clusterInfoEntry struct {
	ID string `json:"id"`
}

// URLClusterSize satisfies ClusterSizeSource by probing the configured
// external hypergraph L0 URLs directly — unlike the internal Node API
// client these are full base URLs, not (host, port) cluster members, since
// the hypergraph is operated outside this cluster.
type URLClusterSize struct {
	Prober probe.Prober
	URLs   []string
}

// L0gClusterSize returns the peer count reported by the first URL that
// answers; 0 if every URL is unreachable, which reads as "disconnected" to
// Detector.
func (s *URLClusterSize) L0gClusterSize(ctx context.Context) int {
	for _, base := range s.URLs {
		var body []clusterInfoEntry
		if err := s.Prober.Probe(ctx, base+"/cluster/info", probe.DefaultHypergraphTimeout, &body); err == nil {
			return len(body)
		}
	}
	return 0
}
