// Package orchestrator implements the Restart Orchestrator (spec §4.7):
// cooldown and rate-limit gating plus the IndividualNode/FullLayer/
// FullMetagraph recovery procedures. Grounded directly on the teacher's
// recovery.DefaultRecoveryOrchestrator (canRestart hourly-window gate,
// rebuildServiceOrder priority sort). Steps are not retried: the first
// failing step ends the procedure.
//
// Open question (spec §9c): the genesis-election rule is not stated in the
// distilled source. This orchestrator elects the node with the lowest ID
// (string order), whatever its position in the configured list, and the
// remaining nodes join in ascending ID order — stable across ticks, which
// is all the spec requires.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clustersentinel/clustersentinel/internal/command"
	"github.com/clustersentinel/clustersentinel/internal/node"
)

// SkipReason enumerates why execute returned Skipped.
type SkipReason string

const (
	SkipCooldown  SkipReason = "cooldown"
	SkipRateLimit SkipReason = "rate-limit"
)

// Outcome is the result of Execute.
type Outcome struct {
	Result RestartResult
	Reason SkipReason
	Err    error
	Record node.RestartRecord
}

// RestartResult is the coarse classification of an Outcome.
type RestartResult string

const (
	Restarted RestartResult = "Restarted"
	Skipped   RestartResult = "Skipped"
	Failed    RestartResult = "Failed"
)

// Config holds the orchestrator's gating parameters and cluster topology,
// sourced from spec §6.5.
type Config struct {
	RestartCooldown    time.Duration
	MaxRestartsPerHour int
	Nodes              []node.Node // configured order; genesis is the lowest ID, not the first entry
}

// Orchestrator owns the restart history ring buffer. It does not itself
// serialize concurrent Execute calls; at most one restart of any scope runs
// at a time (spec invariant 5) because the Monitor Loop calls Execute
// serially.
type Orchestrator struct {
	cfg      Config
	executor command.Executor
	logger   *log.Logger
	now      func() time.Time
	sleep    func(time.Duration)

	mu      sync.Mutex
	history []node.RestartRecord
}

// New builds an Orchestrator. now defaults to time.Now if nil.
func New(cfg Config, executor command.Executor, logger *log.Logger, now func() time.Time) *Orchestrator {
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{cfg: cfg, executor: executor, logger: logger, now: now, sleep: time.Sleep}
}

// WithSleep overrides the between-step delay function, for tests that need
// the restart procedures' wait times to run instantly.
func (o *Orchestrator) WithSleep(sleep func(time.Duration)) *Orchestrator {
	o.sleep = sleep
	return o
}

func (o *Orchestrator) logf(format string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Printf(format, args...)
	}
}

// History returns a copy of the restart record ring buffer.
func (o *Orchestrator) History() []node.RestartRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]node.RestartRecord, len(o.history))
	copy(out, o.history)
	return out
}

// Execute dispatches event to the appropriate restart procedure, after
// checking cooldown and rate limit. Only one Execute call runs at a time —
// the Monitor Loop is responsible for never calling this concurrently with
// itself.
func (o *Orchestrator) Execute(ctx context.Context, event node.HealthEvent, majorityNodes []string) Outcome {
	o.mu.Lock()
	if reason, skip := o.gated(); skip {
		o.mu.Unlock()
		o.logf("[orchestrator] skipping restart: %s", reason)
		return Outcome{Result: Skipped, Reason: reason}
	}
	o.mu.Unlock()

	record := node.RestartRecord{
		ID:        uuid.NewString(),
		Scope:     event.SuggestedAction,
		Layer:     event.Layer,
		NodeIDs:   event.NodeIDs,
		StartedAt: o.now(),
	}

	var err error
	switch event.SuggestedAction {
	case node.ScopeIndividualNode:
		err = o.individualNode(ctx, event, majorityNodes)
	case node.ScopeFullLayer:
		err = o.fullLayer(ctx, event.Layer)
	case node.ScopeFullMetagraph:
		err = o.fullMetagraph(ctx)
	default:
		record.FinishedAt = o.now()
		record.Outcome = node.OutcomeSkipped
		o.appendRecord(record)
		return Outcome{Result: Skipped, Reason: "no-actionable-scope", Record: record}
	}

	record.FinishedAt = o.now()
	if err != nil {
		record.Outcome = node.OutcomeFailed
		record.Reason = err.Error()
		o.appendRecord(record)
		o.logf("[orchestrator] restart failed: %v", err)
		return Outcome{Result: Failed, Err: err, Record: record}
	}

	record.Outcome = node.OutcomeSuccess
	o.appendRecord(record)
	return Outcome{Result: Restarted, Record: record}
}

// gated must be called with mu held.
func (o *Orchestrator) gated() (SkipReason, bool) {
	now := o.now()

	if len(o.history) > 0 {
		last := o.history[len(o.history)-1]
		if now.Sub(last.FinishedAt) < o.cfg.RestartCooldown {
			return SkipCooldown, true
		}
	}

	count := 0
	cutoff := now.Add(-time.Hour)
	for _, r := range o.history {
		if r.StartedAt.After(cutoff) {
			count++
		}
	}
	if o.cfg.MaxRestartsPerHour > 0 && count >= o.cfg.MaxRestartsPerHour {
		return SkipRateLimit, true
	}

	return "", false
}

func (o *Orchestrator) appendRecord(r node.RestartRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = append(o.history, r)
	cutoff := o.now().Add(-time.Hour)
	kept := o.history[:0]
	for _, rec := range o.history {
		if rec.StartedAt.After(cutoff) {
			kept = append(kept, rec)
		}
	}
	o.history = kept
}

func (o *Orchestrator) hostFor(nodeID string) string {
	for _, n := range o.cfg.Nodes {
		if n.ID == nodeID {
			return n.Host
		}
	}
	return ""
}

func (o *Orchestrator) genesis() node.Node {
	ordered := append([]node.Node{}, o.cfg.Nodes...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	return ordered[0]
}

// individualNode implements spec §4.7's IndividualNode procedure.
func (o *Orchestrator) individualNode(ctx context.Context, event node.HealthEvent, majorityNodes []string) error {
	for _, target := range event.NodeIDs {
		var seed string
		for _, m := range majorityNodes {
			if m != target {
				seed = m
				break
			}
		}
		if seed == "" {
			return o.fullLayer(ctx, event.Layer)
		}

		targetHost := o.hostFor(target)
		seedHost := o.hostFor(seed)
		if err := o.executor.Stop(targetHost, event.Layer); err != nil {
			return fmt.Errorf("orchestrator: stop %s: %w", target, err)
		}
		o.sleep(5 * time.Second)
		if err := o.executor.StartAndJoin(targetHost, event.Layer, seedHost); err != nil {
			return fmt.Errorf("orchestrator: startAndJoin %s: %w", target, err)
		}
		o.sleep(15 * time.Second)
	}
	return nil
}

// fullLayer implements spec §4.7's FullLayer procedure.
func (o *Orchestrator) fullLayer(ctx context.Context, layer node.Layer) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(o.cfg.Nodes))
	for _, n := range o.cfg.Nodes {
		wg.Add(1)
		go func(n node.Node) {
			defer wg.Done()
			if err := o.executor.Stop(n.Host, layer); err != nil {
				errCh <- fmt.Errorf("orchestrator: stop %s: %w", n.ID, err)
			}
		}(n)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	o.sleep(5 * time.Second)

	genesis := o.genesis()
	if err := o.executor.StartGenesis(genesis.Host, layer); err != nil {
		return fmt.Errorf("orchestrator: startGenesis %s: %w", genesis.ID, err)
	}
	o.sleep(30 * time.Second)

	ordered := append([]node.Node{}, o.cfg.Nodes...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	for _, n := range ordered {
		if n.ID == genesis.ID {
			continue
		}
		if err := o.executor.StartAndJoin(n.Host, layer, genesis.Host); err != nil {
			return fmt.Errorf("orchestrator: startAndJoin %s: %w", n.ID, err)
		}
		o.sleep(10 * time.Second)
	}
	return nil
}

// fullMetagraph implements spec §4.7's FullMetagraph procedure.
func (o *Orchestrator) fullMetagraph(ctx context.Context) error {
	stopOrder := []node.Layer{node.L1d, node.L1c, node.L0g, node.L0m}
	for _, layer := range stopOrder {
		var wg sync.WaitGroup
		errCh := make(chan error, len(o.cfg.Nodes))
		for _, n := range o.cfg.Nodes {
			wg.Add(1)
			go func(n node.Node, layer node.Layer) {
				defer wg.Done()
				if err := o.executor.Stop(n.Host, layer); err != nil {
					errCh <- fmt.Errorf("orchestrator: stop %s/%s: %w", n.ID, layer, err)
				}
			}(n, layer)
		}
		wg.Wait()
		close(errCh)
		for err := range errCh {
			if err != nil {
				return err
			}
		}
		o.sleep(3 * time.Second)
	}

	for _, layer := range node.StartupOrder {
		if err := o.fullLayerNoStop(ctx, layer); err != nil {
			return err
		}
		o.sleep(20 * time.Second)
	}
	return nil
}

// fullLayerNoStop runs FullLayer's start steps (2-4) only, used within
// FullMetagraph where stopping already happened per-layer up front.
func (o *Orchestrator) fullLayerNoStop(ctx context.Context, layer node.Layer) error {
	genesis := o.genesis()
	if err := o.executor.StartGenesis(genesis.Host, layer); err != nil {
		return fmt.Errorf("orchestrator: startGenesis %s: %w", genesis.ID, err)
	}
	o.sleep(30 * time.Second)

	ordered := append([]node.Node{}, o.cfg.Nodes...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	for _, n := range ordered {
		if n.ID == genesis.ID {
			continue
		}
		if err := o.executor.StartAndJoin(n.Host, layer, genesis.Host); err != nil {
			return fmt.Errorf("orchestrator: startAndJoin %s: %w", n.ID, err)
		}
		o.sleep(10 * time.Second)
	}
	return nil
}
