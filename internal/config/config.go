package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/clustersentinel/clustersentinel/internal/node"
)

// HypergraphConfig is the optional external-hypergraph block from spec §6.5.
type HypergraphConfig struct {
	Enabled                 bool
	L0Urls                  []string
	CheckIntervalMultiplier int
}

// Config assembles every environment-recognized option from spec §6.5 into
// one struct, loaded once at startup, matching the teacher's cmd/api
// loadConfig() pattern.
type Config struct {
	Nodes []node.Node

	SnapshotStallMinutes       int
	HealthCheckIntervalSeconds int
	RestartCooldownMinutes     int
	MaxRestartsPerHour         int

	SSHKeyPath string
	SSHUser    string
	SSHPort    int
	DryRun     bool

	NotifyWebhookURL string
	MetricsAddr      string
	RedisAddr        string

	Hypergraph HypergraphConfig
}

// SnapshotStallThreshold returns SnapshotStallMinutes as a time.Duration.
func (c Config) SnapshotStallThreshold() time.Duration {
	return time.Duration(c.SnapshotStallMinutes) * time.Minute
}

// HealthCheckInterval returns HealthCheckIntervalSeconds as a time.Duration.
func (c Config) HealthCheckInterval() time.Duration {
	return time.Duration(c.HealthCheckIntervalSeconds) * time.Second
}

// RestartCooldown returns RestartCooldownMinutes as a time.Duration.
func (c Config) RestartCooldown() time.Duration {
	return time.Duration(c.RestartCooldownMinutes) * time.Minute
}

// layerPorts is the set of env-var prefixes used to load per-layer port
// triples. One port triple is shared by every configured node, matching how
// clustered deployments of this shape are usually containerized.
var layerPorts = []struct {
	layer  node.Layer
	prefix string
}{
	{node.L0g, "L0G"},
	{node.L0m, "L0M"},
	{node.L1c, "L1C"},
	{node.L1d, "L1D"},
}

// Load assembles a Config from the environment. NODES must be a
// comma-separated list of "id@host" pairs; order defines cluster iteration
// order (the restart genesis node is the lowest ID, not the first listed
// node). MustGetEnv panics (caught by the
// caller as a fatal startup error, spec §7 taxonomy item 4) when NODES is
// unset.
func Load() Config {
	nodeList := parseNodes(MustGetEnv("NODES"))

	ports := map[node.Layer]node.PortSet{}
	for _, lp := range layerPorts {
		ports[lp.layer] = node.PortSet{
			Public: GetEnvInt(lp.prefix+"_PUBLIC_PORT", defaultPort(lp.layer, "public")),
			P2P:    GetEnvInt(lp.prefix+"_P2P_PORT", defaultPort(lp.layer, "p2p")),
			CLI:    GetEnvInt(lp.prefix+"_CLI_PORT", defaultPort(lp.layer, "cli")),
		}
	}
	for i := range nodeList {
		nodeList[i].Layers = ports
	}

	return Config{
		Nodes: nodeList,

		SnapshotStallMinutes:       GetEnvInt("SNAPSHOT_STALL_MINUTES", 4),
		HealthCheckIntervalSeconds: GetEnvInt("HEALTH_CHECK_INTERVAL_SECONDS", 60),
		RestartCooldownMinutes:     GetEnvInt("RESTART_COOLDOWN_MINUTES", 10),
		MaxRestartsPerHour:         GetEnvInt("MAX_RESTARTS_PER_HOUR", 6),

		SSHKeyPath: GetEnv("SSH_KEY_PATH", ""),
		SSHUser:    GetEnv("SSH_USER", "sentinel"),
		SSHPort:    GetEnvInt("SSH_PORT", 22),
		DryRun:     GetEnvBool("DRY_RUN", false),

		NotifyWebhookURL: GetEnv("NOTIFY_WEBHOOK_URL", ""),
		MetricsAddr:      GetEnv("METRICS_ADDR", ":9464"),
		RedisAddr:        GetEnv("REDIS_ADDR", ""),

		Hypergraph: HypergraphConfig{
			Enabled:                 GetEnvBool("HYPERGRAPH_ENABLED", false),
			L0Urls:                  GetEnvSlice("HYPERGRAPH_L0_URLS", nil),
			CheckIntervalMultiplier: GetEnvInt("HYPERGRAPH_CHECK_INTERVAL_MULTIPLIER", 5),
		},
	}
}

// defaultPort gives each layer/kind a distinct, memorable default so a
// freshly configured cluster works without specifying every port.
func defaultPort(layer node.Layer, kind string) int {
	base := map[node.Layer]int{
		node.L0g: 9000,
		node.L0m: 9100,
		node.L1c: 9200,
		node.L1d: 9300,
	}[layer]
	switch kind {
	case "p2p":
		return base + 1
	case "cli":
		return base + 2
	default:
		return base
	}
}

func parseNodes(raw string) []node.Node {
	var out []node.Node
	for _, pair := range splitTopLevel(raw) {
		idHost := strings.SplitN(pair, "@", 2)
		if len(idHost) != 2 {
			continue
		}
		out = append(out, node.Node{ID: strings.TrimSpace(idHost[0]), Host: strings.TrimSpace(idHost[1])})
	}
	return out
}

func splitTopLevel(raw string) []string {
	var parts []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// ParsePort is a small helper kept separate from GetEnvInt for callers
// converting a bare port string (not an env var) to an int. It trims
// whitespace but does not split a "host:port" string.
func ParsePort(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
