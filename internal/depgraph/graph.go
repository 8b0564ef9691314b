// Package depgraph builds dependency graphs over a trace.
//
// Two graph shapes share one representation:
//
//   - EventGraph has one node per event, with program-order edges between
//     consecutive events of a thread and release→acquire edges between a
//     release and the next acquire of the same lock.
//   - LockOrderGraph has one node per acquired lock, with an edge A→B when
//     some thread acquired B while holding A. Each edge keeps every witness.
//
// Storage is arena style: nodes and edges live in flat slices addressed by
// integer ids, edges are sorted by (source, target, kind) and each node's
// outgoing edges are a contiguous range. Event nodes refer to trace
// positions; events are never copied into the graph.
package depgraph

import (
	"fmt"

	"github.com/roach88/tracelint/internal/trace"
)

// Mode selects which graph Build produces.
type Mode uint8

const (
	EventGraph Mode = iota
	LockOrderGraph
)

func (m Mode) String() string {
	switch m {
	case EventGraph:
		return "event"
	case LockOrderGraph:
		return "lock_order"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// NodeID addresses a node in its graph. In an EventGraph it equals the
// event's trace position; in a LockOrderGraph node ids follow ascending
// lock id.
type NodeID int

// EdgeKind labels an edge.
type EdgeKind uint8

const (
	EdgeProgramOrder EdgeKind = iota
	EdgeReleaseAcquire
	EdgeLockOrder
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeProgramOrder:
		return "program_order"
	case EdgeReleaseAcquire:
		return "release_acquire"
	case EdgeLockOrder:
		return "lock_order"
	default:
		return fmt.Sprintf("EdgeKind(%d)", uint8(k))
	}
}

// Node is either an event reference or a lock.
type Node struct {
	// Event is the trace position for EventGraph nodes, -1 otherwise.
	Event int

	// Resource is the lock for LockOrderGraph nodes.
	Resource trace.ResourceID
}

// Witness is one observation of a lock-order edge A→B: Thread acquired
// A at HeldSeq and then B at Seq without releasing A in between.
type Witness struct {
	Thread  trace.ThreadID
	HeldSeq int64
	Seq     int64

	// Guards is the sorted set of locks Thread held when it acquired B,
	// A included. Witnesses recorded by the same acquire share the slice.
	Guards []trace.ResourceID
}

func (w Witness) String() string {
	return fmt.Sprintf("T%d #%d..#%d", w.Thread, w.HeldSeq, w.Seq)
}

// Edge is a directed edge. Witnesses is set for lock-order edges only.
type Edge struct {
	From      NodeID
	To        NodeID
	Kind      EdgeKind
	Witnesses []Witness
}

// Graph is a read-only dependency graph. Slices returned by its methods
// are views into the graph's storage and must not be modified.
type Graph struct {
	mode  Mode
	tr    *trace.Trace
	nodes []Node
	edges []Edge

	// offsets[n]..offsets[n+1] is the range of n's outgoing edges.
	offsets []int

	byResource map[trace.ResourceID]NodeID
}

func (g *Graph) Mode() Mode {
	return g.mode
}

// Trace returns the trace the graph was built from.
func (g *Graph) Trace() *trace.Trace {
	return g.tr
}

func (g *Graph) NumNodes() int {
	return len(g.nodes)
}

func (g *Graph) NumEdges() int {
	return len(g.edges)
}

func (g *Graph) Node(n NodeID) Node {
	return g.nodes[n]
}

// Edges returns all edges ordered by (source, target, kind).
func (g *Graph) Edges() []Edge {
	return g.edges
}

// Out returns n's outgoing edges ordered by (target, kind).
func (g *Graph) Out(n NodeID) []Edge {
	return g.edges[g.offsets[n]:g.offsets[n+1]]
}

// NodeOf returns the node of lock r in a LockOrderGraph.
func (g *Graph) NodeOf(r trace.ResourceID) (NodeID, bool) {
	n, ok := g.byResource[r]
	return n, ok
}

// Edge returns the edge from a to b of the given kind.
func (g *Graph) Edge(a, b NodeID, kind EdgeKind) (Edge, bool) {
	for _, e := range g.Out(a) {
		if e.To == b && e.Kind == kind {
			return e, true
		}
	}
	return Edge{}, false
}

// Label describes a node: "L3" for a lock, "T1 acq(L3)" for an event.
func (g *Graph) Label(n NodeID) string {
	node := g.nodes[n]
	if node.Event < 0 {
		return fmt.Sprintf("L%d", node.Resource)
	}
	e := g.tr.At(node.Event)
	if e.Operand.Space == trace.SpaceNone {
		return fmt.Sprintf("T%d %s", e.Thread, e.Kind)
	}
	return fmt.Sprintf("T%d %s(%s)", e.Thread, e.Kind, e.Operand)
}
