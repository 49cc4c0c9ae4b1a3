package dag

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrInvalidNodeID is returned by [DAG.AddNode] for an empty ID.
	ErrInvalidNodeID = errors.New("node ID must not be empty")

	// ErrDuplicateNodeID is returned by [DAG.AddNode] when the ID is taken.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownNode is returned by [DAG.AddEdge] when an endpoint is missing.
	ErrUnknownNode = errors.New("unknown node")

	// ErrStageOrder is returned by [DAG.Validate] when an edge does not lead
	// from one stage to the next.
	ErrStageOrder = errors.New("edges must lead to the next stage")

	// ErrCycle is returned by [DAG.Order] when the graph has a cycle.
	ErrCycle = errors.New("graph contains a cycle")
)

// Metadata stores arbitrary key-value pairs attached to nodes or the graph.
type Metadata map[string]any

// Node is a task assigned to a stage (0 = first).
type Node struct {
	ID    string
	Stage int
	Meta  Metadata // never nil once added
}

// Edge says that To depends on From.
type Edge struct {
	From string
	To   string
}

// DAG is a dependency graph whose nodes are grouped into stages.
// Use New to create one.
type DAG struct {
	meta   Metadata
	nodes  map[string]*Node
	order  []*Node // insertion order
	edges  []Edge
	out    map[string][]string
	in     map[string][]string
	stages map[int][]*Node
}

// New creates an empty graph with optional graph-level metadata.
func New(meta Metadata) *DAG {
	if meta == nil {
		meta = Metadata{}
	}
	return &DAG{
		meta:   meta,
		nodes:  make(map[string]*Node),
		out:    make(map[string][]string),
		in:     make(map[string][]string),
		stages: make(map[int][]*Node),
	}
}

// Meta returns the graph-level metadata.
func (d *DAG) Meta() Metadata { return d.meta }

// AddNode adds n to its stage.
func (d *DAG) AddNode(n Node) error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if _, ok := d.nodes[n.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNodeID, n.ID)
	}
	if n.Meta == nil {
		n.Meta = Metadata{}
	}
	p := &n
	d.nodes[n.ID] = p
	d.order = append(d.order, p)
	d.stages[n.Stage] = append(d.stages[n.Stage], p)
	return nil
}

// AddEdge records that e.To depends on e.From. Stage order is checked by
// Validate, not here.
func (d *DAG) AddEdge(e Edge) error {
	for _, id := range []string{e.From, e.To} {
		if _, ok := d.nodes[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNode, id)
		}
	}
	d.edges = append(d.edges, e)
	d.out[e.From] = append(d.out[e.From], e.To)
	d.in[e.To] = append(d.in[e.To], e.From)
	return nil
}

// Node returns the node with the given ID.
func (d *DAG) Node(id string) (*Node, bool) {
	n, ok := d.nodes[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (d *DAG) Nodes() []*Node { return slices.Clone(d.order) }

// Edges returns all edges in insertion order.
func (d *DAG) Edges() []Edge { return slices.Clone(d.edges) }

func (d *DAG) NodeCount() int { return len(d.nodes) }
func (d *DAG) EdgeCount() int { return len(d.edges) }

// Children returns the IDs of the nodes depending on id. Do not modify.
func (d *DAG) Children(id string) []string { return d.out[id] }

// Parents returns the IDs of the nodes id depends on. Do not modify.
func (d *DAG) Parents(id string) []string { return d.in[id] }

// Stage returns the nodes of one stage in insertion order.
func (d *DAG) Stage(s int) []*Node { return d.stages[s] }

// Stages returns the stage numbers in ascending order.
func (d *DAG) Stages() []int {
	out := make([]int, 0, len(d.stages))
	for s := range d.stages {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Roots returns the nodes without dependencies, in insertion order.
func (d *DAG) Roots() []*Node {
	return d.filter(func(n *Node) bool { return len(d.in[n.ID]) == 0 })
}

// Leaves returns the nodes nothing depends on, in insertion order.
func (d *DAG) Leaves() []*Node {
	return d.filter(func(n *Node) bool { return len(d.out[n.ID]) == 0 })
}

func (d *DAG) filter(keep func(*Node) bool) []*Node {
	var out []*Node
	for _, n := range d.order {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

// Validate checks that every edge leads from a stage to the next one and
// that the graph is acyclic.
func (d *DAG) Validate() error {
	for _, e := range d.edges {
		if d.nodes[e.To].Stage != d.nodes[e.From].Stage+1 {
			return fmt.Errorf("%w: %s -> %s", ErrStageOrder, e.From, e.To)
		}
	}
	_, err := d.Order()
	return err
}

// Order returns the nodes in dependency order (Kahn's algorithm). Among
// nodes that are ready at the same time, insertion order wins, so the result
// is deterministic.
func (d *DAG) Order() ([]*Node, error) {
	pending := make(map[string]int, len(d.nodes))
	for _, e := range d.edges {
		pending[e.To]++
	}
	pos := make(map[string]int, len(d.order))
	for i, n := range d.order {
		pos[n.ID] = i
	}

	var ready []*Node
	for _, n := range d.order {
		if pending[n.ID] == 0 {
			ready = append(ready, n)
		}
	}
	out := make([]*Node, 0, len(d.order))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		out = append(out, n)
		for _, c := range d.out[n.ID] {
			if pending[c]--; pending[c] == 0 {
				ready = append(ready, d.nodes[c])
			}
		}
		slices.SortStableFunc(ready, func(a, b *Node) int { return pos[a.ID] - pos[b.ID] })
	}
	if len(out) != len(d.order) {
		return nil, ErrCycle
	}
	return out, nil
}

// IDs extracts the node IDs.
func IDs(nodes []*Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
