package testutil

import (
	"testing"

	"github.com/roach88/tracelint/internal/trace"
)

// TraceBuilder assembles events for tests. Each helper stamps the event
// with the next value of the builder's clock, so traces read like the
// scenarios they encode:
//
//	tr := testutil.NewTraceBuilder().
//		Acq(1, 1).
//		Acq(2, 1).
//		MustBuild(t)
type TraceBuilder struct {
	clock  *DeterministicClock
	events []trace.Event
}

// NewTraceBuilder returns an empty builder whose first event gets seq 1.
func NewTraceBuilder() *TraceBuilder {
	return &TraceBuilder{clock: NewDeterministicClock()}
}

// Clock exposes the builder's clock, for tests that need explicit or
// out-of-order sequence numbers.
func (b *TraceBuilder) Clock() *DeterministicClock {
	return b.clock
}

// Add appends an event with the given kind and operand id. The operand
// namespace is derived from the kind.
func (b *TraceBuilder) Add(thread int64, kind trace.Kind, operand int64) *TraceBuilder {
	seq := b.clock.Next()
	b.events = append(b.events, trace.Event{
		Seq:     seq,
		Thread:  trace.ThreadID(thread),
		Kind:    kind,
		Operand: trace.Operand{Space: trace.SpaceOf(kind), ID: operand},
		Loc:     seq,
	})
	return b
}

func (b *TraceBuilder) Acq(thread, lock int64) *TraceBuilder {
	return b.Add(thread, trace.KindAcquire, lock)
}

func (b *TraceBuilder) Rel(thread, lock int64) *TraceBuilder {
	return b.Add(thread, trace.KindRelease, lock)
}

func (b *TraceBuilder) Read(thread, mem int64) *TraceBuilder {
	return b.Add(thread, trace.KindRead, mem)
}

func (b *TraceBuilder) Write(thread, mem int64) *TraceBuilder {
	return b.Add(thread, trace.KindWrite, mem)
}

func (b *TraceBuilder) Fork(thread, child int64) *TraceBuilder {
	return b.Add(thread, trace.KindFork, child)
}

func (b *TraceBuilder) Join(thread, child int64) *TraceBuilder {
	return b.Add(thread, trace.KindJoin, child)
}

// Events returns the raw events without validating them.
func (b *TraceBuilder) Events() []trace.Event {
	out := make([]trace.Event, len(b.events))
	copy(out, b.events)
	return out
}

// MustBuild builds the trace and fails the test if the events violate
// the sequence invariant.
func (b *TraceBuilder) MustBuild(t testing.TB) *trace.Trace {
	t.Helper()
	tr, err := trace.New(b.events)
	if err != nil {
		t.Fatalf("build trace: %v", err)
	}
	return tr
}
