// Package monitor wires the detectors, orchestrator, and notifier into the
// ticking Monitor Loop (spec §4.8). Loop's Run/Stop/loop shape is
// grounded almost structurally unchanged on the teacher's
// health.HealthMonitor.Start/Stop/monitorLoop — this is the one component
// where the teacher's control-flow transfers directly; only the per-tick
// body (Tick, handleEvent) is new.
package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/clustersentinel/clustersentinel/internal/condition"
	"github.com/clustersentinel/clustersentinel/internal/hypergraph"
	"github.com/clustersentinel/clustersentinel/internal/metrics"
	"github.com/clustersentinel/clustersentinel/internal/node"
	"github.com/clustersentinel/clustersentinel/internal/notify"
	"github.com/clustersentinel/clustersentinel/internal/orchestrator"
	"github.com/clustersentinel/clustersentinel/internal/snapshot"
	"github.com/clustersentinel/clustersentinel/internal/stall"
)

// Loop is the Monitor Loop: ticks on interval, routes the Condition
// Engine's output to the Restart Orchestrator and the notifier, and
// performs graceful shutdown.
type Loop struct {
	Engine       *condition.Engine
	Orchestrator *orchestrator.Orchestrator
	Notifier     notify.Notifier
	Metrics      *metrics.Registry
	Hypergraph   *hypergraph.Detector
	// Snapshots is the external, unmanaged cache the canonical L0m ordinal
	// is mirrored into after every tick, so a restarted process can warm-
	// start the stall clock via Engine.SeedSynthetic instead of treating
	// the first post-restart observation as an instant reset. Optional;
	// nil and snapshot.NoopSource both behave as "no cache."
	Snapshots snapshot.Source

	// Interval is the inter-tick delay in daemon mode.
	Interval time.Duration
	// HypergraphEveryNTicks runs the hypergraph check once every N ticks,
	// per spec §6.5's checkIntervalMultiplier — it polls on its own,
	// coarser cadence, separate from the Condition Engine.
	HypergraphEveryNTicks int

	Logger *log.Logger
	Now    func() time.Time

	mu            sync.Mutex
	running       bool
	stopCh        chan struct{}
	wg            sync.WaitGroup
	startedAt     time.Time
	ticks         int
	eventCounts   map[node.Condition]int64
	restartCounts map[node.RestartOutcome]int64
}

// MonitorStats is a point-in-time snapshot of the loop's running totals,
// grounded on the teacher's health.MonitorStats / HealthMonitor.GetStats.
type MonitorStats struct {
	StartedAt      time.Time
	Ticks          int
	EventsByCond   map[node.Condition]int64
	RestartsByOut  map[node.RestartOutcome]int64
	NodesMonitored int
	CheckInterval  time.Duration
}

// Stats returns a copy of the loop's running totals.
func (l *Loop) Stats() MonitorStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := make(map[node.Condition]int64, len(l.eventCounts))
	for k, v := range l.eventCounts {
		events[k] = v
	}
	restarts := make(map[node.RestartOutcome]int64, len(l.restartCounts))
	for k, v := range l.restartCounts {
		restarts[k] = v
	}

	nodes := 0
	if l.Engine != nil {
		nodes = len(l.Engine.Nodes)
	}

	return MonitorStats{
		StartedAt:      l.startedAt,
		Ticks:          l.ticks,
		EventsByCond:   events,
		RestartsByOut:  restarts,
		NodesMonitored: nodes,
		CheckInterval:  l.Interval,
	}
}

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Loop) logf(format string, args ...interface{}) {
	if l.Logger != nil {
		l.Logger.Printf(format, args...)
	}
}

// Run starts the loop. In one-shot mode it runs a single tick, waits for
// any fire-and-forget notifications it spawned, and returns. In daemon mode
// it spawns the ticking goroutine and returns immediately; call Stop to
// shut it down.
func (l *Loop) Run(ctx context.Context, daemon bool) {
	l.mu.Lock()
	l.running = true
	l.stopCh = make(chan struct{})
	l.startedAt = l.now()
	l.mu.Unlock()

	l.logf("[monitor] starting, daemon=%v interval=%v", daemon, l.Interval)

	if !daemon {
		l.Tick(ctx)
		l.wg.Wait()
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
		return
	}

	l.wg.Add(1)
	go l.loop(ctx)
}

// loop is the daemon-mode ticking goroutine.
func (l *Loop) loop(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	l.Tick(ctx)
	for {
		select {
		case <-l.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Stop signals the ticking goroutine to exit, waits for the current tick or
// restart procedure (and any notifications it spawned) to finish, and
// returns. It does not cancel in-flight probes itself; those stop only when
// the caller cancels the ctx passed to Run.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopCh)
	l.mu.Unlock()

	l.wg.Wait()
	l.logf("[monitor] stopped gracefully")
}

// Tick runs one Condition Engine pass and routes its result to the notifier
// and orchestrator. A programmer bug surfacing as a panic here is caught
// and logged rather than crashing the process, per spec §7 taxonomy item 5.
func (l *Loop) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.logf("[monitor] recovered from panic during tick: %v", r)
		}
	}()

	start := l.now()
	l.mu.Lock()
	l.ticks++
	tickNum := l.ticks
	l.mu.Unlock()

	if l.Metrics != nil {
		l.Metrics.Ticks.Inc()
	}

	if event := l.Engine.Tick(ctx); event != nil {
		l.handleEvent(ctx, *event)
	}
	l.persistCanonical(ctx)

	l.maybeCheckHypergraph(ctx, tickNum)

	if l.Metrics != nil {
		l.Metrics.TickDuration.Observe(l.now().Sub(start).Seconds())
	}
}

// handleEvent forwards event to the notifier (fire-and-forget) and, when
// actionable, to the orchestrator. If the orchestrator skips (cooldown or
// rate limit), detection resumes with the next condition on the next tick —
// this tick does not retry, per spec §4.6.
func (l *Loop) handleEvent(ctx context.Context, event node.HealthEvent) {
	if l.Metrics != nil {
		l.Metrics.RecordEvent(event)
	}
	l.mu.Lock()
	if l.eventCounts == nil {
		l.eventCounts = map[node.Condition]int64{}
	}
	l.eventCounts[event.Condition]++
	l.mu.Unlock()

	l.notifyAsync(ctx, event)

	if event.SuggestedAction == node.ScopeNone || l.Orchestrator == nil {
		return
	}

	if l.Metrics != nil {
		l.Metrics.OrchestratorUp.Set(1)
	}
	outcome := l.Orchestrator.Execute(ctx, event, l.Engine.MajorityNodes())
	if outcome.Record.Outcome != "" {
		if l.Metrics != nil {
			l.Metrics.OrchestratorUp.Set(0)
			l.Metrics.RecordRestart(outcome.Record.Outcome)
		}
		l.mu.Lock()
		if l.restartCounts == nil {
			l.restartCounts = map[node.RestartOutcome]int64{}
		}
		l.restartCounts[outcome.Record.Outcome]++
		l.mu.Unlock()
	} else if l.Metrics != nil {
		l.Metrics.OrchestratorUp.Set(0)
	}

	switch outcome.Result {
	case orchestrator.Failed:
		l.logf("[monitor] restart procedure failed: %v", outcome.Err)
	case orchestrator.Skipped:
		// Skipped actions are logged but not re-notified, to avoid alarm
		// fatigue (spec §7).
		l.logf("[monitor] restart skipped: %s", outcome.Reason)
	}
}

// persistCanonical mirrors the tick's canonical L0m ordinal into the
// external SnapshotSource, if one is configured, so a future restart can
// warm-start its stall clock via SeedAt.
func (l *Loop) persistCanonical(ctx context.Context) {
	if l.Snapshots == nil {
		return
	}
	snap, found := l.Engine.LastCanonical()
	if !found {
		return
	}
	snap.Node = stall.ClusterKey
	if err := l.Snapshots.Set(ctx, snap); err != nil {
		l.logf("[monitor] snapshot source persist failed: %v", err)
	}
}

// SeedAt loads the canonical L0m ordinal from the configured SnapshotSource,
// if any, and pre-loads the Engine's stall tracker with it. Call before Run
// so a freshly started process doesn't treat a pre-existing stall as a
// fresh, non-stalled observation.
func (l *Loop) SeedAt(ctx context.Context) {
	if l.Snapshots == nil {
		return
	}
	snap, found, err := l.Snapshots.Get(ctx, stall.ClusterKey, node.L0m)
	if err != nil || !found {
		return
	}
	l.Engine.SeedSynthetic(snap)
}

func (l *Loop) notifyAsync(ctx context.Context, event node.HealthEvent) {
	if l.Notifier == nil {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.Notifier.Notify(ctx, event); err != nil {
			l.logf("[monitor] notify failed: %v", err)
		}
	}()
}

// maybeCheckHypergraph runs the hypergraph detector on its own coarser
// cadence. Its event, if any, is detection-only and never reaches the
// orchestrator.
func (l *Loop) maybeCheckHypergraph(ctx context.Context, tickNum int) {
	if l.Hypergraph == nil || !l.Hypergraph.Config.Enabled {
		return
	}
	every := l.HypergraphEveryNTicks
	if every <= 0 {
		every = 1
	}
	if tickNum%every != 0 {
		return
	}
	if ev := l.Hypergraph.Detect(ctx, l.now()); ev != nil {
		if l.Metrics != nil {
			l.Metrics.RecordEvent(*ev)
		}
		l.notifyAsync(ctx, *ev)
	}
}
