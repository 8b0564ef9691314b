// Package normalize rewrites decoded events into canonical form.
//
// Normalization standardizes representation only: it never adds, drops or
// pairs up synchronization events. A thread that ends while holding a lock
// still holds it after normalization, and the checker reports it.
package normalize

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/tracelint/internal/trace"
)

// Mapping records how source identifiers were renamed. Each slice is
// indexed by canonical id and holds the source id it replaced.
type Mapping struct {
	Threads []trace.ThreadID
	Locks   []int64
	Memory  []int64

	// Reordered is true when the input was not already in sequence order.
	Reordered bool
}

// CanonicalLock returns the canonical id of source lock src. It reports
// false for a lock the trace never mentions.
func (m Mapping) CanonicalLock(src int64) (int64, bool) {
	i := slices.Index(m.Locks, src)
	if i < 0 {
		return 0, false
	}
	return int64(i), true
}

// Normalize canonicalizes events. See NormalizeWithMapping.
func Normalize(events []trace.Event) *trace.Trace {
	tr, _ := NormalizeWithMapping(events)
	return tr
}

// NormalizeWithMapping canonicalizes events and reports the renaming.
//
// Steps, in order:
//  1. Stable sort by source sequence number (skipped when already
//     non-decreasing); events with equal sequence keep their input order.
//  2. Renumber sequences densely from 1.
//  3. Remap thread, lock and memory identifiers to dense ids starting at
//     0, assigned in order of first appearance. Fork/join targets share the
//     thread namespace with executing threads.
//
// Normalize is total and idempotent: normalizing a normalized trace
// returns an identical trace.
func NormalizeWithMapping(events []trace.Event) (*trace.Trace, Mapping) {
	out := slices.Clone(events)

	var m Mapping
	bySeq := func(a, b trace.Event) int { return cmp.Compare(a.Seq, b.Seq) }
	if !slices.IsSortedFunc(out, bySeq) {
		slices.SortStableFunc(out, bySeq)
		m.Reordered = true
	}

	threads := newRenamer[trace.ThreadID]()
	locks := newRenamer[int64]()
	memory := newRenamer[int64]()

	for i := range out {
		e := &out[i]
		e.Seq = int64(i + 1)
		e.Thread = threads.rename(e.Thread)
		switch e.Operand.Space {
		case trace.SpaceThread:
			e.Operand.ID = int64(threads.rename(trace.ThreadID(e.Operand.ID)))
		case trace.SpaceLock:
			e.Operand.ID = locks.rename(e.Operand.ID)
		case trace.SpaceMemory:
			e.Operand.ID = memory.rename(e.Operand.ID)
		}
	}

	m.Threads = threads.order
	m.Locks = locks.order
	m.Memory = memory.order

	tr, err := trace.New(out)
	if err != nil {
		// Sequences were just renumbered 1..n.
		panic(fmt.Sprintf("normalize: renumbered trace rejected: %v", err))
	}
	return tr, m
}

type renamer[T ~int64] struct {
	ids   map[T]T
	order []T
}

func newRenamer[T ~int64]() *renamer[T] {
	return &renamer[T]{ids: make(map[T]T)}
}

func (r *renamer[T]) rename(id T) T {
	if c, ok := r.ids[id]; ok {
		return c
	}
	c := T(len(r.order))
	r.ids[id] = c
	r.order = append(r.order, id)
	return c
}
