// Command monitor runs the cluster health monitor and restart controller.
// It wires config.Load() through the node API client, detectors, restart
// orchestrator, notifier, snapshot source, and metrics registry into a
// monitor.Loop, then runs it in daemon or one-shot mode per spec §6.4.
//
// Cobra wiring grounded on the teacher's cmd/root.go (rootCmd, init() flag
// registration, Execute()).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clustersentinel/clustersentinel/internal/command"
	"github.com/clustersentinel/clustersentinel/internal/condition"
	"github.com/clustersentinel/clustersentinel/internal/config"
	"github.com/clustersentinel/clustersentinel/internal/hypergraph"
	"github.com/clustersentinel/clustersentinel/internal/metrics"
	"github.com/clustersentinel/clustersentinel/internal/monitor"
	"github.com/clustersentinel/clustersentinel/internal/nodeapi"
	"github.com/clustersentinel/clustersentinel/internal/notify"
	"github.com/clustersentinel/clustersentinel/internal/orchestrator"
	"github.com/clustersentinel/clustersentinel/internal/probe"
	"github.com/clustersentinel/clustersentinel/internal/snapshot"
	"github.com/clustersentinel/clustersentinel/internal/stall"
)

var (
	daemonMode bool
	onceMode   bool
)

var rootCmd = &cobra.Command{
	Use:   "clustersentinel",
	Short: "Health monitor and automated recovery controller for a node cluster",
	Long:  "Polls each node's view of its peers and snapshot ordinals, classifies anomalies, and drives a remote restart sequence to recover the cluster.",
	RunE:  run,
}

func init() {
	rootCmd.Flags().BoolVar(&daemonMode, "daemon", false, "run continuously on the configured interval")
	rootCmd.Flags().BoolVar(&onceMode, "once", false, "run a single health check and exit (default)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := log.New(os.Stderr, "[clustersentinel] ", log.LstdFlags)

	if daemonMode && onceMode {
		fmt.Fprintln(os.Stderr, "--daemon and --once are mutually exclusive")
		os.Exit(1)
	}
	daemon := daemonMode

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal startup error: %v\n", err)
		os.Exit(1)
	}

	prober := probe.New()
	client := nodeapi.New(prober)
	poller := &monitor.Poller{Client: client, Nodes: cfg.Nodes}

	tracker := stall.New()
	nodeIDs := make([]string, len(cfg.Nodes))
	for i, n := range cfg.Nodes {
		nodeIDs[i] = n.ID
	}

	engine := &condition.Engine{
		Clusters:               poller,
		Ordinals:               poller,
		NodeInfos:              poller,
		Tracker:                tracker,
		Nodes:                  nodeIDs,
		SnapshotStallThreshold: cfg.SnapshotStallThreshold(),
	}

	executor, err := buildExecutor(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal startup error: %v\n", err)
		os.Exit(1)
	}

	orch := orchestrator.New(orchestrator.Config{
		RestartCooldown:    cfg.RestartCooldown(),
		MaxRestartsPerHour: cfg.MaxRestartsPerHour,
		Nodes:              cfg.Nodes,
	}, executor, logger, time.Now)

	notifier := buildNotifier(cfg, logger)
	reg := metrics.New()

	var hgDetector *hypergraph.Detector
	if cfg.Hypergraph.Enabled {
		hgDetector = &hypergraph.Detector{
			Config: hypergraph.Config{
				Enabled:                 cfg.Hypergraph.Enabled,
				L0Urls:                  cfg.Hypergraph.L0Urls,
				CheckIntervalMultiplier: cfg.Hypergraph.CheckIntervalMultiplier,
			},
			ClusterSize: &hypergraph.URLClusterSize{Prober: prober, URLs: cfg.Hypergraph.L0Urls},
			LocalNodes:  len(cfg.Nodes),
		}
	}

	snapSource := buildSnapshotSource(cfg)
	defer closeSnapshotSource(snapSource)

	loop := &monitor.Loop{
		Engine:                engine,
		Orchestrator:          orch,
		Notifier:              notifier,
		Metrics:               reg,
		Hypergraph:            hgDetector,
		Snapshots:             snapSource,
		Interval:              cfg.HealthCheckInterval(),
		HypergraphEveryNTicks: cfg.Hypergraph.CheckIntervalMultiplier,
		Logger:                logger,
	}

	go serveMetrics(cfg.MetricsAddr, reg, loop, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop.SeedAt(ctx)
	loop.Run(ctx, daemon)
	if !daemon {
		return nil
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Printf("shutdown signal received, draining in-flight work")
	cancel()
	loop.Stop()
	return nil
}

func loadConfig() (cfg config.Config, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	cfg = config.Load()
	if len(cfg.Nodes) == 0 {
		return cfg, fmt.Errorf("NODES must list at least one node")
	}
	return cfg, nil
}

func buildExecutor(cfg config.Config, logger *log.Logger) (command.Executor, error) {
	if cfg.DryRun {
		return &command.DryRunExecutor{Logger: logger}, nil
	}
	if cfg.SSHKeyPath == "" {
		return nil, fmt.Errorf("SSH_KEY_PATH is required unless DRY_RUN is set")
	}
	keyBytes, err := os.ReadFile(cfg.SSHKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading SSH key: %w", err)
	}
	return command.NewSSHExecutor(command.Credentials{
		PrivateKeyPath: cfg.SSHKeyPath,
		Username:       cfg.SSHUser,
		ConnectTimeout: 10 * time.Second,
	}, cfg.SSHPort, keyBytes)
}

func buildNotifier(cfg config.Config, logger *log.Logger) notify.Notifier {
	if cfg.NotifyWebhookURL == "" {
		return &notify.LogNotifier{Logger: logger}
	}
	return notify.NewWebhookNotifier(cfg.NotifyWebhookURL)
}

func buildSnapshotSource(cfg config.Config) snapshot.Source {
	if cfg.RedisAddr == "" {
		return snapshot.NoopSource{}
	}
	return snapshot.NewRedisSource(snapshot.RedisConfig{Addr: cfg.RedisAddr})
}

func closeSnapshotSource(s snapshot.Source) {
	if rs, ok := s.(*snapshot.RedisSource); ok {
		_ = rs.Close()
	}
}

// serveMetrics exposes /metrics (Prometheus) and /stats (a plain JSON
// MonitorStats snapshot for operators without a Prometheus scraper),
// grounded on the teacher's PrometheusExporter.Start mux with /metrics and
// /health side by side.
func serveMetrics(addr string, reg *metrics.Registry, loop *monitor.Loop, logger *log.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(loop.Stats()); err != nil {
			logger.Printf("encoding /stats response: %v", err)
		}
	})
	logger.Printf("serving metrics on %s/metrics, stats on %s/stats", addr, addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Printf("metrics server stopped: %v", err)
	}
}
