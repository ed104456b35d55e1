// Executor - dependency-driven scheduling over a validated Graph.
//
// Information Hiding:
// - Readiness tracking (pending dependency counts) hidden
// - Blocked-by-upstream propagation hidden
// - Per-kind node evaluation hidden behind runNode

package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/richinex/parallax/orchestration"
)

// Result is a node's terminal outcome. Exactly one of Value and Err is
// meaningful; Err carries the blocked-by-upstream marker for nodes
// downstream of a failure.
type Result struct {
	Value string
	Err   string
}

// Failed reports whether the node ended in error.
func (r Result) Failed() bool {
	return r.Err != ""
}

// BlockedPrefix marks results of nodes that never ran because an
// upstream node failed.
const BlockedPrefix = "blocked by upstream failure"

// Blocked reports whether the node was skipped due to an upstream failure.
func (r Result) Blocked() bool {
	return strings.HasPrefix(r.Err, BlockedPrefix)
}

// UnknownProviderError reports a provider_call node referencing a
// provider the executor has no adapter for. Fatal to the execution.
type UnknownProviderError struct {
	NodeID   string
	Provider string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("node %q references unknown provider %q", e.NodeID, e.Provider)
}

// Executor runs graphs against a fixed set of provider adapters, routing
// provider_call nodes through the orchestrator's gated single-provider
// path. Safe for concurrent use; per-execution state lives on the stack.
type Executor struct {
	orch          *orchestration.Orchestrator
	providers     map[string]orchestration.ProviderSpec
	maxConcurrent int
	logger        *slog.Logger
}

// NewExecutor creates an executor. maxConcurrent bounds simultaneously
// running nodes; values below one fall back to the default.
func NewExecutor(orch *orchestration.Orchestrator, providers map[string]orchestration.ProviderSpec, maxConcurrent int) *Executor {
	if maxConcurrent <= 0 {
		maxConcurrent = orchestration.DefaultConfig().MaxConcurrent
	}
	return &Executor{
		orch:          orch,
		providers:     providers,
		maxConcurrent: maxConcurrent,
		logger:        slog.New(slog.DiscardHandler),
	}
}

// WithLogger attaches a structured logger for per-node diagnostics.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	if logger != nil {
		e.logger = logger
	}
	return e
}

type completion struct {
	id     string
	result Result
}

// Execute runs the graph to completion and returns one terminal result
// per node id - the mapping is always complete for a valid graph.
//
// A node becomes eligible the instant all its predecessors are terminal;
// it does not wait for siblings. Nodes downstream of a failure resolve
// to a blocked error without running. Runtime inputs override the
// configured values of input nodes, keyed by node id.
//
// If ctx is canceled mid-flight the execution is voided: Execute returns
// the context error and no mapping.
func (e *Executor) Execute(ctx context.Context, g *Graph, inputs map[string]string) (map[string]Result, error) {
	if err := e.checkProviders(g); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := len(g.order)
	results := make(map[string]Result, total)
	pendingDeps := make(map[string]int, total)
	var ready []string
	for _, id := range g.order {
		pendingDeps[id] = len(g.predecessors[id])
		if pendingDeps[id] == 0 {
			ready = append(ready, id)
		}
	}

	// Buffered so late goroutines never block after a cancellation return.
	done := make(chan completion, total)
	sem := make(chan struct{}, e.maxConcurrent)
	inFlight := 0

	finish := func(id string, res Result) {
		results[id] = res
		for _, succ := range g.successors[id] {
			pendingDeps[succ]--
			if pendingDeps[succ] == 0 {
				ready = append(ready, succ)
			}
		}
	}

	for len(results) < total {
		for len(ready) > 0 {
			id := ready[0]
			ready = ready[1:]

			if failed := e.failedPredecessor(g, id, results); failed != "" {
				e.logger.Debug("node blocked by upstream failure", "node", id, "failed_upstream", failed)
				finish(id, Result{Err: fmt.Sprintf("%s: node %q failed", BlockedPrefix, failed)})
				continue
			}

			// Predecessor values are snapshotted here, while all of them
			// are terminal, so node goroutines never touch shared maps.
			node := g.nodes[id]
			upstream := e.concatPredecessors(g, id, results)
			inFlight++
			go func(node Node, upstream string) {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					done <- completion{id: node.ID, result: Result{Err: ctx.Err().Error()}}
					return
				}
				done <- completion{id: node.ID, result: e.runNode(ctx, g, node, upstream, inputs)}
			}(node, upstream)
		}

		if inFlight == 0 {
			// Acyclic validation guarantees progress; nothing left to wait on.
			break
		}

		select {
		case c := <-done:
			inFlight--
			finish(c.id, c.result)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// checkProviders verifies every provider_call node resolves to a known
// adapter before any node runs.
func (e *Executor) checkProviders(g *Graph) error {
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Type != NodeProviderCall {
			continue
		}
		if _, ok := e.providers[n.Config.Provider]; !ok {
			return &UnknownProviderError{NodeID: id, Provider: n.Config.Provider}
		}
	}
	return nil
}

// failedPredecessor returns the id of the first failed predecessor in
// edge insertion order, or "" if all succeeded.
func (e *Executor) failedPredecessor(g *Graph, id string, results map[string]Result) string {
	for _, pred := range g.predecessors[id] {
		if results[pred].Failed() {
			return pred
		}
	}
	return ""
}

// concatPredecessors joins predecessor values in edge insertion order.
func (e *Executor) concatPredecessors(g *Graph, id string, results map[string]Result) string {
	preds := g.predecessors[id]
	if len(preds) == 1 {
		return results[preds[0]].Value
	}
	var sb strings.Builder
	for _, pred := range preds {
		sb.WriteString(results[pred].Value)
	}
	return sb.String()
}

// runNode evaluates one node whose predecessors all succeeded.
func (e *Executor) runNode(ctx context.Context, g *Graph, node Node, upstream string, inputs map[string]string) Result {
	switch node.Type {
	case NodeInput:
		if v, ok := inputs[node.ID]; ok {
			return Result{Value: v}
		}
		return Result{Value: node.Config.Value}

	case NodeTransform:
		out, err := g.transforms[node.ID](upstream)
		if err != nil {
			return Result{Err: fmt.Sprintf("transform failed: %v", err)}
		}
		return Result{Value: out}

	case NodeProviderCall:
		spec := e.providers[node.Config.Provider]
		if node.Config.InputLimit > 0 {
			spec.InputLimit = node.Config.InputLimit
		}
		res := e.orch.CallProvider(ctx, upstream, spec)
		if !res.Succeeded() {
			return Result{Err: res.Error}
		}
		return Result{Value: res.Response}

	case NodeOutput:
		// Pass-through collector; single predecessor enforced at build.
		return Result{Value: upstream}

	default:
		// Unreachable: construction rejects unknown kinds.
		return Result{Err: fmt.Sprintf("unknown node type %d", node.Type)}
	}
}
