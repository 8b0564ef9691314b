package depgraph

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/tracelint/internal/trace"
)

// Build constructs the graph of the given mode in a single pass over tr.
// The trace is only read.
func Build(tr *trace.Trace, mode Mode) *Graph {
	switch mode {
	case EventGraph:
		return buildEventGraph(tr)
	case LockOrderGraph:
		return buildLockOrderGraph(tr)
	default:
		panic(fmt.Sprintf("depgraph: unknown mode %v", mode))
	}
}

func buildEventGraph(tr *trace.Trace) *Graph {
	g := &Graph{
		mode:  EventGraph,
		tr:    tr,
		nodes: make([]Node, tr.Len()),
	}
	for i := range g.nodes {
		g.nodes[i] = Node{Event: i}
	}

	for _, th := range tr.Threads() {
		idx := tr.ThreadEvents(th)
		for k := 1; k < len(idx); k++ {
			g.edges = append(g.edges, Edge{From: NodeID(idx[k-1]), To: NodeID(idx[k]), Kind: EdgeProgramOrder})
		}
	}

	// Every release since the previous acquire of a lock happens before
	// the next acquire of that lock.
	var pending []int
	for _, r := range tr.Resources() {
		pending = pending[:0]
		for _, i := range tr.ResourceEvents(r) {
			switch tr.At(i).Kind {
			case trace.KindRelease:
				pending = append(pending, i)
			case trace.KindAcquire:
				for _, rel := range pending {
					g.edges = append(g.edges, Edge{From: NodeID(rel), To: NodeID(i), Kind: EdgeReleaseAcquire})
				}
				pending = pending[:0]
			}
		}
	}

	g.index()
	return g
}

// heldLock is one entry of a thread's held set. count tracks nested
// acquires of a lock the thread already holds.
type heldLock struct {
	res   trace.ResourceID
	seq   int64
	count int
}

type edgeKey struct {
	from, to trace.ResourceID
}

func buildLockOrderGraph(tr *trace.Trace) *Graph {
	held := make(map[trace.ThreadID][]heldLock)
	acquired := make(map[trace.ResourceID]bool)
	witnesses := make(map[edgeKey][]Witness)

	for i := 0; i < tr.Len(); i++ {
		e := tr.At(i)
		r, ok := e.Resource()
		if !ok {
			continue
		}
		hs := held[e.Thread]

		switch e.Kind {
		case trace.KindAcquire:
			acquired[r] = true
			if k := findHeld(hs, r); k >= 0 {
				hs[k].count++
				continue
			}
			if len(hs) > 0 {
				guards := make([]trace.ResourceID, 0, len(hs))
				for _, h := range hs {
					guards = append(guards, h.res)
				}
				slices.Sort(guards)
				for _, h := range hs {
					key := edgeKey{from: h.res, to: r}
					witnesses[key] = append(witnesses[key], Witness{
						Thread:  e.Thread,
						HeldSeq: h.seq,
						Seq:     e.Seq,
						Guards:  guards,
					})
				}
			}
			held[e.Thread] = append(hs, heldLock{res: r, seq: e.Seq, count: 1})

		case trace.KindRelease:
			// Releases of locks the thread does not hold are the checker's
			// concern; here they change nothing.
			k := findHeld(hs, r)
			if k < 0 {
				continue
			}
			hs[k].count--
			if hs[k].count == 0 {
				held[e.Thread] = slices.Delete(hs, k, k+1)
			}
		}
	}

	g := &Graph{
		mode:       LockOrderGraph,
		tr:         tr,
		byResource: make(map[trace.ResourceID]NodeID, len(acquired)),
	}
	for _, r := range tr.Resources() {
		if !acquired[r] {
			continue
		}
		g.byResource[r] = NodeID(len(g.nodes))
		g.nodes = append(g.nodes, Node{Event: -1, Resource: r})
	}

	g.edges = make([]Edge, 0, len(witnesses))
	for key, ws := range witnesses {
		g.edges = append(g.edges, Edge{
			From:      g.byResource[key.from],
			To:        g.byResource[key.to],
			Kind:      EdgeLockOrder,
			Witnesses: ws,
		})
	}

	g.index()
	return g
}

func findHeld(hs []heldLock, r trace.ResourceID) int {
	for k, h := range hs {
		if h.res == r {
			return k
		}
	}
	return -1
}

// index sorts the edges and computes per-node offsets.
func (g *Graph) index() {
	slices.SortFunc(g.edges, func(a, b Edge) int {
		if c := cmp.Compare(a.From, b.From); c != 0 {
			return c
		}
		if c := cmp.Compare(a.To, b.To); c != 0 {
			return c
		}
		return cmp.Compare(a.Kind, b.Kind)
	})

	g.offsets = make([]int, len(g.nodes)+1)
	for _, e := range g.edges {
		g.offsets[e.From+1]++
	}
	for n := 1; n < len(g.offsets); n++ {
		g.offsets[n] += g.offsets[n-1]
	}
}
