package workflow

import (
	"fmt"
)

// Graph is a fixed directed graph of named nodes with deterministic edges.
// Exactly one edge leaves every node; a node advancing past the last edge
// reaches the NodeEnd terminal marker. Any node may declare itself an
// interrupt node; this system instantiates exactly one pipeline with one
// interrupt point, but the executor does not assume that.
type Graph struct {
	name  string
	nodes map[string]Node
	next  map[string]string
	entry string
}

// Name returns the graph's display name.
func (g *Graph) Name() string { return g.name }

// Entry returns the node execution starts from.
func (g *Graph) Entry() string { return g.entry }

// Node looks up a node by name.
func (g *Graph) Node(name string) (Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Next returns the successor of the given node. The terminal marker NodeEnd
// is a valid successor and has no node behind it.
func (g *Graph) Next(name string) (string, bool) {
	to, ok := g.next[name]
	return to, ok
}

// GraphBuilder assembles a Graph; errors accumulate and surface at Build.
type GraphBuilder struct {
	graph *Graph
	errs  []error
}

// NewGraphBuilder creates a builder for a named graph.
func NewGraphBuilder(name string) *GraphBuilder {
	return &GraphBuilder{
		graph: &Graph{
			name:  name,
			nodes: make(map[string]Node),
			next:  make(map[string]string),
		},
	}
}

// AddNode registers a node under its own name.
func (b *GraphBuilder) AddNode(node Node) *GraphBuilder {
	name := node.Name()
	if name == "" || name == NodeEnd {
		b.errs = append(b.errs, fmt.Errorf("invalid node name %q", name))
		return b
	}
	if _, dup := b.graph.nodes[name]; dup {
		b.errs = append(b.errs, fmt.Errorf("duplicate node %q", name))
		return b
	}
	b.graph.nodes[name] = node
	return b
}

// AddEdge wires from -> to. Each node has exactly one outgoing edge; "to"
// may be NodeEnd.
func (b *GraphBuilder) AddEdge(from, to string) *GraphBuilder {
	if _, dup := b.graph.next[from]; dup {
		b.errs = append(b.errs, fmt.Errorf("node %q already has an outgoing edge", from))
		return b
	}
	b.graph.next[from] = to
	return b
}

// SetEntry marks the node execution starts from.
func (b *GraphBuilder) SetEntry(name string) *GraphBuilder {
	b.graph.entry = name
	return b
}

// Build validates the graph and returns it.
func (b *GraphBuilder) Build() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("graph construction failed: %w", b.errs[0])
	}
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("graph validation failed: %w", err)
	}
	return b.graph, nil
}

func (b *GraphBuilder) validate() error {
	g := b.graph
	if len(g.nodes) == 0 {
		return fmt.Errorf("graph has no nodes")
	}
	if g.entry == "" {
		return fmt.Errorf("entry node not set")
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return fmt.Errorf("entry node does not exist: %s", g.entry)
	}

	// Every edge must leave a known node and arrive at a known node or the
	// terminal marker.
	for from, to := range g.next {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("edge references non-existent source node: %s", from)
		}
		if to != NodeEnd {
			if _, ok := g.nodes[to]; !ok {
				return fmt.Errorf("edge references non-existent target node: %s", to)
			}
		}
	}

	// Walk from entry: every node needs a path to the terminal marker, and
	// the walk must not revisit a node (the edges are deterministic, so a
	// revisit is a cycle).
	seen := make(map[string]bool, len(g.nodes))
	cur := g.entry
	for cur != NodeEnd {
		if seen[cur] {
			return fmt.Errorf("cycle detected at node %s", cur)
		}
		seen[cur] = true
		to, ok := g.next[cur]
		if !ok {
			return fmt.Errorf("node %s has no outgoing edge", cur)
		}
		cur = to
	}
	for name := range g.nodes {
		if !seen[name] {
			return fmt.Errorf("node %s is not reachable from entry", name)
		}
	}
	return nil
}

// NewReviewPipeline builds the fixed retrieve -> review -> generate graph
// this system ships: retrieval fans the question out to the retriever,
// review interrupts for a human decision, generate produces the answer.
func NewReviewPipeline(retriever Retriever, generator Generator) (*Graph, error) {
	return NewGraphBuilder("review-pipeline").
		AddNode(NewRetrieveNode(retriever)).
		AddNode(NewReviewNode()).
		AddNode(NewGenerateNode(generator)).
		AddEdge(NodeRetrieve, NodeReview).
		AddEdge(NodeReview, NodeGenerate).
		AddEdge(NodeGenerate, NodeEnd).
		SetEntry(NodeRetrieve).
		Build()
}
