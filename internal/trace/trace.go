package trace

import (
	"slices"
)

// Trace is an immutable, sequence-ordered list of events with derived
// per-thread and per-resource indices.
//
// The indices hold positions into the event list, never copies of events.
// Slices returned by ThreadEvents and ResourceEvents are shared views and
// must not be modified by callers.
type Trace struct {
	events     []Event
	byThread   map[ThreadID][]int
	byResource map[ResourceID][]int
	threads    []ThreadID
	resources  []ResourceID
}

// New builds a Trace from events in input order.
//
// The events must carry unique, strictly increasing sequence numbers;
// otherwise New fails with a *MalformedTraceError and no Trace is built.
// The input slice is copied.
func New(events []Event) (*Trace, error) {
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1].Seq, events[i].Seq
		switch {
		case cur == prev:
			return nil, &MalformedTraceError{Index: i, Seq: cur, PrevSeq: prev, Reason: ReasonDuplicate}
		case cur < prev:
			return nil, &MalformedTraceError{Index: i, Seq: cur, PrevSeq: prev, Reason: ReasonDecreasing}
		}
	}
	return build(slices.Clone(events)), nil
}

// build indexes events that are already known to satisfy the sequence
// invariant. It takes ownership of the slice.
func build(events []Event) *Trace {
	t := &Trace{
		events:     events,
		byThread:   make(map[ThreadID][]int),
		byResource: make(map[ResourceID][]int),
	}

	for i, e := range events {
		if _, ok := t.byThread[e.Thread]; !ok {
			t.threads = append(t.threads, e.Thread)
		}
		t.byThread[e.Thread] = append(t.byThread[e.Thread], i)

		if r, ok := e.Resource(); ok {
			if _, seen := t.byResource[r]; !seen {
				t.resources = append(t.resources, r)
			}
			t.byResource[r] = append(t.byResource[r], i)
		}
	}

	slices.Sort(t.threads)
	slices.Sort(t.resources)
	return t
}

// Len returns the number of events.
func (t *Trace) Len() int {
	return len(t.events)
}

// At returns the event at position i.
func (t *Trace) At(i int) Event {
	return t.events[i]
}

// Events returns a copy of the event list in sequence order.
func (t *Trace) Events() []Event {
	return slices.Clone(t.events)
}

// Threads returns the thread ids that executed at least one event, ascending.
func (t *Trace) Threads() []ThreadID {
	return slices.Clone(t.threads)
}

// Resources returns the lock ids touched by lock operations, ascending.
func (t *Trace) Resources() []ResourceID {
	return slices.Clone(t.resources)
}

// ThreadEvents returns the positions of thread th's events in sequence order.
func (t *Trace) ThreadEvents(th ThreadID) []int {
	return t.byThread[th]
}

// ResourceEvents returns the positions of the lock operations on r in
// sequence order.
func (t *Trace) ResourceEvents(r ResourceID) []int {
	return t.byResource[r]
}
