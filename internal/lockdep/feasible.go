package lockdep

import (
	"github.com/roach88/tracelint/internal/depgraph"
	"github.com/roach88/tracelint/internal/trace"
)

// feasible reports whether one witness per edge can be chosen so that the
// chosen witnesses run on pairwise-distinct threads and hold pairwise
// disjoint guard sets. A cycle whose edges were all observed on a single
// thread, or whose threads all held a common gate lock, could never
// deadlock.
//
// The backtracking search gives up after budget witness choices and then
// answers true: an undecided cycle is reported as a real one.
func feasible(edges []depgraph.Edge, budget int) bool {
	s := &witnessSearch{
		edges:   edges,
		budget:  budget,
		threads: make(map[trace.ThreadID]bool, len(edges)),
		guards:  make(map[trace.ResourceID]bool),
	}
	return s.choose(0)
}

type witnessSearch struct {
	edges   []depgraph.Edge
	budget  int
	steps   int
	threads map[trace.ThreadID]bool
	guards  map[trace.ResourceID]bool
}

func (s *witnessSearch) choose(i int) bool {
	if i == len(s.edges) {
		return true
	}
	for _, w := range s.edges[i].Witnesses {
		s.steps++
		if s.steps > s.budget {
			return true
		}
		if s.threads[w.Thread] || s.overlaps(w.Guards) {
			continue
		}

		s.threads[w.Thread] = true
		for _, r := range w.Guards {
			s.guards[r] = true
		}
		if s.choose(i + 1) {
			return true
		}
		delete(s.threads, w.Thread)
		for _, r := range w.Guards {
			delete(s.guards, r)
		}
	}
	return false
}

func (s *witnessSearch) overlaps(guards []trace.ResourceID) bool {
	for _, r := range guards {
		if s.guards[r] {
			return true
		}
	}
	return false
}
