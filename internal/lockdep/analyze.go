// Package lockdep detects lock-order inversions in a lock-order graph.
//
// A cycle in the lock-order graph means the observed threads acquired the
// same locks in conflicting orders; under an adversarial schedule they
// could block each other. The analysis is necessary, not sufficient: an
// empty result means no inversion was observed in this trace, not that the
// program is deadlock free.
package lockdep

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tracelint/internal/depgraph"
	"github.com/roach88/tracelint/internal/trace"
)

// DefaultFeasibilityBudget bounds the witness search per cycle when
// Options.FeasibilityBudget is zero.
const DefaultFeasibilityBudget = 10000

// Options tunes Analyze.
type Options struct {
	// FeasibilityBudget is the maximum number of witness choices tried
	// while classifying one cycle. Zero means DefaultFeasibilityBudget.
	FeasibilityBudget int
}

func (o Options) budget() int {
	if o.FeasibilityBudget <= 0 {
		return DefaultFeasibilityBudget
	}
	return o.FeasibilityBudget
}

// DeadlockCycle is one lock-order cycle.
type DeadlockCycle struct {
	// Resources lists the distinct locks of the cycle in traversal order.
	// Edges[i] leads from Resources[i] to Resources[(i+1) % len].
	Resources []trace.ResourceID
	Edges     []depgraph.Edge

	// Threads is the sorted set of threads witnessing any edge.
	Threads []trace.ThreadID

	// Feasible is false when no combination of witnesses could run
	// concurrently: every choice reuses a thread or shares a guard lock.
	// Such cycles are likely false positives but are still reported.
	Feasible bool

	Message string
}

// Path returns the closed cycle, first lock repeated at the end:
// [L1, L2, L1].
func (c DeadlockCycle) Path() []trace.ResourceID {
	if len(c.Resources) == 0 {
		return nil
	}
	return append(slices.Clone(c.Resources), c.Resources[0])
}

// String formats the closed path, e.g. "L1 → L2 → L1".
func (c DeadlockCycle) String() string {
	path := c.Path()
	parts := make([]string, len(path))
	for i, r := range path {
		parts[i] = fmt.Sprintf("L%d", r)
	}
	return strings.Join(parts, " → ")
}

// Analyze reports the cycles of a LockOrderGraph.
//
// The algorithm is a depth-first search with three visit states
// (unvisited, on stack, done). Every edge to an on-stack node closes a
// cycle, reconstructed by unwinding the active stack from the edge's
// target. Roots and outgoing edges are visited in ascending lock id, so
// the result is identical across runs on the same trace.
//
// The search reports one cycle per back edge; it does not enumerate every
// elementary cycle of the graph. An acyclic graph yields an empty result.
func Analyze(g *depgraph.Graph, opts Options) []DeadlockCycle {
	if g.Mode() != depgraph.LockOrderGraph {
		panic(fmt.Sprintf("lockdep: analyze needs a lock-order graph, got %v", g.Mode()))
	}

	var cycles []DeadlockCycle
	for _, raw := range findCycles(g) {
		cycles = append(cycles, newCycle(g, raw, opts.budget()))
	}
	return cycles
}

const (
	unvisited = iota
	onStack
	done
)

// frame is one entry of the explicit DFS stack. next is the position of
// the next outgoing edge to explore; via is the edge that entered node.
type frame struct {
	node depgraph.NodeID
	next int
	via  depgraph.Edge
}

// findCycles returns the edge lists of every back-edge cycle.
func findCycles(g *depgraph.Graph) [][]depgraph.Edge {
	state := make([]uint8, g.NumNodes())
	depth := make([]int, g.NumNodes())

	var (
		cycles [][]depgraph.Edge
		stack  []frame
	)

	for root := 0; root < g.NumNodes(); root++ {
		if state[root] != unvisited {
			continue
		}
		state[root] = onStack
		depth[root] = 0
		stack = append(stack[:0], frame{node: depgraph.NodeID(root)})

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			out := g.Out(top.node)
			if top.next == len(out) {
				state[top.node] = done
				stack = stack[:len(stack)-1]
				continue
			}

			e := out[top.next]
			top.next++

			switch state[e.To] {
			case unvisited:
				state[e.To] = onStack
				depth[e.To] = len(stack)
				stack = append(stack, frame{node: e.To, via: e})
			case onStack:
				var edges []depgraph.Edge
				for _, f := range stack[depth[e.To]+1:] {
					edges = append(edges, f.via)
				}
				cycles = append(cycles, append(edges, e))
			}
		}
	}
	return cycles
}

func newCycle(g *depgraph.Graph, edges []depgraph.Edge, budget int) DeadlockCycle {
	c := DeadlockCycle{Edges: edges}

	seen := make(map[trace.ThreadID]bool)
	for _, e := range edges {
		c.Resources = append(c.Resources, g.Node(e.From).Resource)
		for _, w := range e.Witnesses {
			if !seen[w.Thread] {
				seen[w.Thread] = true
				c.Threads = append(c.Threads, w.Thread)
			}
		}
	}
	slices.Sort(c.Threads)

	c.Feasible = feasible(edges, budget)
	if c.Feasible {
		c.Message = fmt.Sprintf("Potential deadlock: lock-order cycle %s", c)
	} else {
		c.Message = fmt.Sprintf("Lock-order cycle %s cannot interleave (same thread or common guard lock); likely a false positive", c)
	}
	return c
}
