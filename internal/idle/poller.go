// Package idle decides whether the merge service has finished reacting to
// the changes a test submitted.
//
// The service is observed through per-node branch snapshots that are fetched
// independently and may each be stale. A single Check compares those
// snapshots with the newest submitted change of each node's stream (the
// watermark) and reports idle only when every unblocked node and edge has
// caught up. Wait repeats Check with backoff until it succeeds or the budget
// runs out.
package idle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/mergewatch/internal/branchstate"
	"github.com/steveyegge/mergewatch/internal/logging"
	"github.com/steveyegge/mergewatch/internal/scenario"
)

// StateSource returns the current snapshot of one node.
type StateSource interface {
	BranchState(ctx context.Context, bot, node string) (*branchstate.BranchState, error)
}

// WatermarkSource returns the newest submitted change of a node's stream.
type WatermarkSource interface {
	LatestChange(ctx context.Context) (int, error)
}

// Poller checks one bot's graph for convergence.
type Poller struct {
	Source StateSource
	Bot    string
	Graph  scenario.Graph
	// Watermarks is keyed by upper-cased node name. Nodes without an entry
	// are not compared against a watermark unless SelfWatermark is set.
	Watermarks map[string]WatermarkSource
	// SelfWatermark makes a node without a Watermarks entry use its own
	// last processed change as the watermark for its outgoing edges.
	SelfWatermark bool

	Logger *slog.Logger
}

func (p *Poller) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.Logger
}

// Check runs one poll iteration. It returns (false, nil) when the service is
// still busy, and an error only for failures that retrying cannot fix. When
// dump is set every reason for not being idle is logged at verbose level.
func (p *Poller) Check(ctx context.Context, dump bool) (bool, error) {
	watermarks, err := p.fetchWatermarks(ctx)
	if err != nil {
		return false, err
	}

	states, errs := p.fetchStates(ctx)
	if len(errs) > 0 {
		if errors.Is(errs[0], branchstate.ErrNoEdges) {
			p.logger().Warn(errs[0].Error())
			return false, nil
		}
		return false, fmt.Errorf("branch state errors:\n%w", errors.Join(errs...))
	}

	if p.SelfWatermark {
		for node, bs := range states {
			if _, ok := watermarks[node]; !ok {
				watermarks[node] = bs.LastCL()
			}
		}
	}

	idle := true
	notIdle := func(msg string, args ...any) bool {
		idle = false
		if dump {
			p.logger().Log(ctx, logging.LevelVerbose, fmt.Sprintf(msg, args...))
		}
		return dump
	}

	unblocked := make(map[string]*branchstate.BranchState, len(states))
	for _, node := range p.Graph.Nodes {
		bs := states[node]
		if bs.IsBlocked() {
			continue
		}
		unblocked[node] = bs

		if status := bs.StatusMessage(); status != "" {
			if !notIdle("%s status: %s (active: %t)", node, status, bs.IsActive()) {
				return false, nil
			}
			continue
		}
		if queue := bs.Queue(); len(queue) > 0 {
			if !notIdle("%s not idle: queue %s", node, formatQueue(queue)) {
				return false, nil
			}
			continue
		}
		if wm, ok := watermarks[node]; ok && bs.LastCL() < wm {
			if !notIdle("not idle: %s last CL %d < %d", node, bs.LastCL(), wm) {
				return false, nil
			}
		}
	}

	for _, e := range p.Graph.Edges {
		bs, ok := unblocked[e.Source]
		if !ok {
			continue
		}
		edge, err := bs.Edge(e.Target)
		if err != nil {
			return false, err
		}
		if edge.IsBlocked() {
			continue
		}
		wm, ok := watermarks[e.Source]
		if !ok || edge.LastCL() >= wm || edge.Gated() {
			continue
		}
		msg := fmt.Sprintf("not idle: %s last CL %d < %d", e, edge.LastCL(), wm)
		if gate, ok := edge.LastGoodCL(); ok {
			msg += fmt.Sprintf(" (gate: %d)", gate)
		}
		if !notIdle("%s", msg) {
			return false, nil
		}
	}

	return idle, nil
}

func (p *Poller) fetchWatermarks(ctx context.Context) (map[string]int, error) {
	var mu sync.Mutex
	out := make(map[string]int, len(p.Watermarks))
	g, gctx := errgroup.WithContext(ctx)
	for node, src := range p.Watermarks {
		g.Go(func() error {
			cl, err := src.LatestChange(gctx)
			if err != nil {
				return fmt.Errorf("latest change for %s: %w", node, err)
			}
			mu.Lock()
			out[node] = cl
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// fetchStates queries every node. Failures are returned in graph order so the
// first one is deterministic.
func (p *Poller) fetchStates(ctx context.Context) (map[string]*branchstate.BranchState, []error) {
	states := make([]*branchstate.BranchState, len(p.Graph.Nodes))
	failures := make([]error, len(p.Graph.Nodes))
	var g errgroup.Group
	for i, node := range p.Graph.Nodes {
		g.Go(func() error {
			states[i], failures[i] = p.Source.BranchState(ctx, p.Bot, node)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]*branchstate.BranchState, len(states))
	var errs []error
	for i, node := range p.Graph.Nodes {
		if failures[i] != nil {
			errs = append(errs, failures[i])
			continue
		}
		out[node] = states[i]
	}
	return out, errs
}

func formatQueue(queue []branchstate.QueueItem) string {
	parts := make([]string, len(queue))
	for i, q := range queue {
		parts[i] = q.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
