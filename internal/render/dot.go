// Package render serializes dependency graphs as GraphViz DOT.
package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/tracelint/internal/depgraph"
	"github.com/roach88/tracelint/internal/lockdep"
)

// MaxWitnessLabels caps the witnesses listed on a lock-order edge label.
const MaxWitnessLabels = 3

// Options tunes WriteDOT.
type Options struct {
	// Cycles are drawn in red on a lock-order graph.
	Cycles []lockdep.DeadlockCycle
}

// WriteDOT writes g as a DOT digraph. Output is deterministic: nodes in
// id order, edges in (source, target, kind) order.
//
// Event nodes are named e<seq> and labelled "T<t> <op>(<operand>)";
// release→acquire edges are dashed. Lock nodes are named L<id> and edges
// carry their witnesses.
func WriteDOT(w io.Writer, g *depgraph.Graph, opts Options) error {
	bw := bufio.NewWriter(w)

	switch g.Mode() {
	case depgraph.EventGraph:
		writeEventGraph(bw, g)
	case depgraph.LockOrderGraph:
		writeLockOrderGraph(bw, g, opts)
	default:
		return fmt.Errorf("render: unsupported graph mode %v", g.Mode())
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write dot: %w", err)
	}
	return nil
}

func writeEventGraph(w *bufio.Writer, g *depgraph.Graph) {
	tr := g.Trace()
	name := func(n depgraph.NodeID) string {
		return fmt.Sprintf("e%d", tr.At(g.Node(n).Event).Seq)
	}

	fmt.Fprintln(w, "digraph events {")
	fmt.Fprintln(w, "  node [shape=box];")
	for n := 0; n < g.NumNodes(); n++ {
		id := depgraph.NodeID(n)
		fmt.Fprintf(w, "  %s [label=%q];\n", name(id), g.Label(id))
	}
	for _, e := range g.Edges() {
		switch e.Kind {
		case depgraph.EdgeReleaseAcquire:
			fmt.Fprintf(w, "  %s -> %s [style=dashed];\n", name(e.From), name(e.To))
		default:
			fmt.Fprintf(w, "  %s -> %s;\n", name(e.From), name(e.To))
		}
	}
	fmt.Fprintln(w, "}")
}

func writeLockOrderGraph(w *bufio.Writer, g *depgraph.Graph, opts Options) {
	inCycle := make(map[[2]depgraph.NodeID]bool)
	for _, c := range opts.Cycles {
		for _, e := range c.Edges {
			inCycle[[2]depgraph.NodeID{e.From, e.To}] = true
		}
	}

	fmt.Fprintln(w, "digraph lock_order {")
	fmt.Fprintln(w, "  node [shape=ellipse];")
	for n := 0; n < g.NumNodes(); n++ {
		fmt.Fprintf(w, "  %s;\n", g.Label(depgraph.NodeID(n)))
	}
	for _, e := range g.Edges() {
		attrs := fmt.Sprintf("label=%q", witnessLabel(e.Witnesses))
		if inCycle[[2]depgraph.NodeID{e.From, e.To}] {
			attrs += ", color=red"
		}
		fmt.Fprintf(w, "  %s -> %s [%s];\n", g.Label(e.From), g.Label(e.To), attrs)
	}
	fmt.Fprintln(w, "}")
}

func witnessLabel(ws []depgraph.Witness) string {
	n := min(len(ws), MaxWitnessLabels)
	parts := make([]string, 0, n+1)
	for _, w := range ws[:n] {
		parts = append(parts, w.String())
	}
	if extra := len(ws) - n; extra > 0 {
		parts = append(parts, fmt.Sprintf("+%d more", extra))
	}
	return strings.Join(parts, "\n")
}
