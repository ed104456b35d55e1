// Package workflow executes directed acyclic graphs of typed nodes:
// literal inputs, pure transforms, resilient provider calls, and named
// output collectors.
//
// Information Hiding:
// - Adjacency, in-degree bookkeeping, and topological validation hidden
//   behind NewGraph
// - Node kind dispatch resolved at construction, not execution
package workflow

import (
	"fmt"
	"sort"
)

// NodeType is the closed set of node kinds. Unknown kinds are rejected
// when a graph is built, never at execution time.
type NodeType int

const (
	NodeInput NodeType = iota
	NodeTransform
	NodeProviderCall
	NodeOutput
)

// String returns the wire name of the node type.
func (t NodeType) String() string {
	switch t {
	case NodeInput:
		return "input"
	case NodeTransform:
		return "transform"
	case NodeProviderCall:
		return "provider_call"
	case NodeOutput:
		return "output"
	default:
		return "unknown"
	}
}

// ParseNodeType converts a wire name to a NodeType.
func ParseNodeType(s string) (NodeType, error) {
	switch s {
	case "input":
		return NodeInput, nil
	case "transform":
		return NodeTransform, nil
	case "provider_call":
		return NodeProviderCall, nil
	case "output":
		return NodeOutput, nil
	default:
		return 0, fmt.Errorf("unknown node type: %q (supported: input, transform, provider_call, output)", s)
	}
}

// NodeConfig carries the per-kind parameters of a node. Only the fields
// relevant to the node's type are read.
type NodeConfig struct {
	// Value is the literal resolved by an input node. Runtime inputs
	// override it.
	Value string `yaml:"value,omitempty"`

	// Transform names a catalog function for transform nodes.
	Transform string `yaml:"transform,omitempty"`

	// Provider identifies the provider for provider_call nodes.
	Provider string `yaml:"provider,omitempty"`

	// InputLimit bounds provider_call prompt length in code points
	// before chunking. Zero means no limit.
	InputLimit int `yaml:"input_limit,omitempty"`
}

// Node is one computation step in a graph.
type Node struct {
	ID     string     `yaml:"id"`
	Type   NodeType   `yaml:"-"`
	Config NodeConfig `yaml:"config,omitempty"`
}

// Edge is a data dependency: To may not execute until From has a
// terminal result.
type Edge struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// CycleError reports that the graph has no full topological order.
type CycleError struct {
	// Nodes lists the ids trapped in cycles, sorted.
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("graph contains a cycle involving nodes %v", e.Nodes)
}

// UnknownNodeError reports an edge referencing a node id that does not
// exist in the graph.
type UnknownNodeError struct {
	Edge    Edge
	Missing string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("edge %s -> %s references unknown node %q", e.Edge.From, e.Edge.To, e.Missing)
}

// InvalidNodeError reports a node whose definition cannot be executed:
// duplicate id, missing per-kind config, or wrong in-degree for its kind.
type InvalidNodeError struct {
	NodeID string
	Reason string
}

func (e *InvalidNodeError) Error() string {
	return fmt.Sprintf("invalid node %q: %s", e.NodeID, e.Reason)
}

// Graph is a validated DAG ready for execution. Construction performs
// all structural checks; a built Graph never fails structurally.
// Immutable after NewGraph; safe for concurrent Execute calls.
type Graph struct {
	nodes map[string]Node
	order []string // insertion order, for deterministic iteration

	// predecessors per node, in edge insertion order. Transform and
	// provider_call nodes concatenate upstream values in this order.
	predecessors map[string][]string
	successors   map[string][]string
	transforms   map[string]TransformFunc
}

// NewGraph validates nodes and edges and resolves transform handlers.
// It fails with UnknownNodeError for dangling edge references,
// CycleError when no full topological order exists, and
// InvalidNodeError for per-node structural problems.
func NewGraph(nodes []Node, edges []Edge) (*Graph, error) {
	g := &Graph{
		nodes:        make(map[string]Node, len(nodes)),
		order:        make([]string, 0, len(nodes)),
		predecessors: make(map[string][]string, len(nodes)),
		successors:   make(map[string][]string, len(nodes)),
		transforms:   make(map[string]TransformFunc, len(nodes)),
	}

	for _, n := range nodes {
		if n.ID == "" {
			return nil, &InvalidNodeError{NodeID: n.ID, Reason: "id must not be empty"}
		}
		if _, exists := g.nodes[n.ID]; exists {
			return nil, &InvalidNodeError{NodeID: n.ID, Reason: "duplicate id"}
		}
		g.nodes[n.ID] = n
		g.order = append(g.order, n.ID)
	}

	for _, e := range edges {
		if _, ok := g.nodes[e.From]; !ok {
			return nil, &UnknownNodeError{Edge: e, Missing: e.From}
		}
		if _, ok := g.nodes[e.To]; !ok {
			return nil, &UnknownNodeError{Edge: e, Missing: e.To}
		}
		g.predecessors[e.To] = append(g.predecessors[e.To], e.From)
		g.successors[e.From] = append(g.successors[e.From], e.To)
	}

	if err := g.validateNodes(); err != nil {
		return nil, err
	}
	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// validateNodes checks per-kind structure and resolves transform
// handlers so unknown names fail here, not mid-execution.
func (g *Graph) validateNodes() error {
	for _, id := range g.order {
		n := g.nodes[id]
		switch n.Type {
		case NodeInput:
			if len(g.predecessors[id]) != 0 {
				return &InvalidNodeError{NodeID: id, Reason: "input nodes take no incoming edges"}
			}
		case NodeTransform:
			fn, err := LookupTransform(n.Config.Transform)
			if err != nil {
				return &InvalidNodeError{NodeID: id, Reason: err.Error()}
			}
			g.transforms[id] = fn
		case NodeProviderCall:
			if n.Config.Provider == "" {
				return &InvalidNodeError{NodeID: id, Reason: "provider_call nodes require a provider"}
			}
		case NodeOutput:
			if len(g.predecessors[id]) != 1 {
				return &InvalidNodeError{
					NodeID: id,
					Reason: fmt.Sprintf("output nodes require exactly one predecessor, got %d", len(g.predecessors[id])),
				}
			}
		default:
			return &InvalidNodeError{NodeID: id, Reason: fmt.Sprintf("unknown node type %d", n.Type)}
		}
	}
	return nil
}

// validateAcyclic runs Kahn's algorithm; any node left with unresolved
// in-degree is part of a cycle.
func (g *Graph) validateAcyclic() error {
	inDegree := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		inDegree[id] = len(g.predecessors[id])
	}

	queue := make([]string, 0, len(g.nodes))
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, succ := range g.successors[id] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	if visited == len(g.nodes) {
		return nil
	}

	var trapped []string
	for id, deg := range inDegree {
		if deg > 0 {
			trapped = append(trapped, id)
		}
	}
	sort.Strings(trapped)
	return &CycleError{Nodes: trapped}
}

// NodeIDs returns every node id in insertion order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, len(g.order))
	copy(ids, g.order)
	return ids
}
