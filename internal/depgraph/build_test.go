package depgraph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracelint/internal/depgraph"
	"github.com/roach88/tracelint/internal/testutil"
	"github.com/roach88/tracelint/internal/trace"
)

type edgeSummary struct {
	From, To depgraph.NodeID
	Kind     depgraph.EdgeKind
}

func summarize(g *depgraph.Graph) []edgeSummary {
	out := make([]edgeSummary, 0, g.NumEdges())
	for _, e := range g.Edges() {
		out = append(out, edgeSummary{From: e.From, To: e.To, Kind: e.Kind})
	}
	return out
}

func TestBuild_SingleCriticalSection(t *testing.T) {
	tr := testutil.NewTraceBuilder().
		Acq(1, 1).
		Rel(1, 1).
		MustBuild(t)

	events := depgraph.Build(tr, depgraph.EventGraph)
	assert.Equal(t, 2, events.NumNodes())
	assert.Equal(t, []edgeSummary{{From: 0, To: 1, Kind: depgraph.EdgeProgramOrder}}, summarize(events))

	locks := depgraph.Build(tr, depgraph.LockOrderGraph)
	assert.Equal(t, 1, locks.NumNodes())
	assert.Zero(t, locks.NumEdges())
}

func TestBuild_EventGraphReleaseAcquire(t *testing.T) {
	tr := testutil.NewTraceBuilder().
		Acq(1, 1).   // 0
		Rel(1, 1).   // 1
		Write(2, 3). // 2
		Acq(2, 1).   // 3
		Rel(2, 1).   // 4
		Acq(1, 1).   // 5
		MustBuild(t)

	g := depgraph.Build(tr, depgraph.EventGraph)
	assert.Equal(t, []edgeSummary{
		{From: 0, To: 1, Kind: depgraph.EdgeProgramOrder},
		{From: 1, To: 3, Kind: depgraph.EdgeReleaseAcquire},
		{From: 1, To: 5, Kind: depgraph.EdgeProgramOrder},
		{From: 2, To: 3, Kind: depgraph.EdgeProgramOrder},
		{From: 3, To: 4, Kind: depgraph.EdgeProgramOrder},
		{From: 4, To: 5, Kind: depgraph.EdgeReleaseAcquire},
	}, summarize(g))

	out := g.Out(1)
	require.Len(t, out, 2)
	assert.Equal(t, depgraph.NodeID(3), out[0].To)
	assert.Equal(t, depgraph.NodeID(5), out[1].To)
	assert.Empty(t, g.Out(5))

	assert.Equal(t, "T1 acq(L1)", g.Label(0))
	assert.Equal(t, "T2 w(V3)", g.Label(2))
	assert.Equal(t, 3, g.Node(3).Event)
	assert.Same(t, tr, g.Trace())
}

func TestBuild_EventGraphSkipsAcquireAfterAcquire(t *testing.T) {
	// The second acquire of L1 is not preceded by a release since the
	// first one, so it gets no release→acquire edge.
	tr := testutil.NewTraceBuilder().
		Rel(1, 1).
		Acq(2, 1).
		Acq(3, 1).
		MustBuild(t)

	g := depgraph.Build(tr, depgraph.EventGraph)
	assert.Equal(t, []edgeSummary{
		{From: 0, To: 1, Kind: depgraph.EdgeReleaseAcquire},
	}, summarize(g))
}

func TestBuild_LockOrderInversion(t *testing.T) {
	tr := testutil.NewTraceBuilder().
		Acq(1, 1).
		Acq(1, 2).
		Acq(2, 2).
		Acq(2, 1).
		MustBuild(t)

	g := depgraph.Build(tr, depgraph.LockOrderGraph)
	require.Equal(t, 2, g.NumNodes())

	l1, ok := g.NodeOf(1)
	require.True(t, ok)
	l2, ok := g.NodeOf(2)
	require.True(t, ok)
	assert.Equal(t, "L1", g.Label(l1))

	forward, ok := g.Edge(l1, l2, depgraph.EdgeLockOrder)
	require.True(t, ok)
	assert.Equal(t, []depgraph.Witness{
		{Thread: 1, HeldSeq: 1, Seq: 2, Guards: []trace.ResourceID{1}},
	}, forward.Witnesses)

	backward, ok := g.Edge(l2, l1, depgraph.EdgeLockOrder)
	require.True(t, ok)
	assert.Equal(t, []depgraph.Witness{
		{Thread: 2, HeldSeq: 3, Seq: 4, Guards: []trace.ResourceID{2}},
	}, backward.Witnesses)
	assert.Equal(t, "T2 #3..#4", backward.Witnesses[0].String())
}

func TestBuild_LockOrderWitnessesAreDeduplicatedByEdge(t *testing.T) {
	tr := testutil.NewTraceBuilder().
		Acq(1, 5).
		Acq(1, 6).
		Rel(1, 6).
		Rel(1, 5).
		Acq(2, 5).
		Acq(2, 6).
		MustBuild(t)

	g := depgraph.Build(tr, depgraph.LockOrderGraph)
	require.Equal(t, 1, g.NumEdges())

	e := g.Edges()[0]
	require.Len(t, e.Witnesses, 2)
	assert.Equal(t, trace.ThreadID(1), e.Witnesses[0].Thread)
	assert.Equal(t, trace.ThreadID(2), e.Witnesses[1].Thread)
	assert.Equal(t, int64(5), e.Witnesses[1].HeldSeq)
}

func TestBuild_LockOrderGuardsAndNesting(t *testing.T) {
	tr := testutil.NewTraceBuilder().
		Acq(1, 9). // gate
		Acq(1, 1).
		Acq(1, 1). // nested, adds nothing
		Acq(1, 2).
		Rel(1, 1).
		Rel(1, 1).
		Acq(1, 3).
		MustBuild(t)

	g := depgraph.Build(tr, depgraph.LockOrderGraph)

	var pairs [][2]trace.ResourceID
	for _, e := range g.Edges() {
		assert.NotEqual(t, e.From, e.To, "no self edges")
		pairs = append(pairs, [2]trace.ResourceID{g.Node(e.From).Resource, g.Node(e.To).Resource})
	}
	assert.Equal(t, [][2]trace.ResourceID{
		{1, 2},
		{2, 3},
		{9, 1},
		{9, 2},
		{9, 3},
	}, pairs)

	n9, _ := g.NodeOf(9)
	n3, _ := g.NodeOf(3)
	e, ok := g.Edge(n9, n3, depgraph.EdgeLockOrder)
	require.True(t, ok)
	assert.Equal(t, []trace.ResourceID{2, 9}, e.Witnesses[0].Guards)
}

func TestBuild_LockOrderNodesAreAcquiredLocks(t *testing.T) {
	tr := testutil.NewTraceBuilder().
		Rel(1, 7).
		Add(1, trace.KindRequest, 8).
		Acq(1, 4).
		MustBuild(t)

	g := depgraph.Build(tr, depgraph.LockOrderGraph)
	require.Equal(t, 1, g.NumNodes())
	assert.Equal(t, trace.ResourceID(4), g.Node(0).Resource)
	_, ok := g.NodeOf(7)
	assert.False(t, ok)
}

func TestBuild_Deterministic(t *testing.T) {
	b := testutil.NewTraceBuilder()
	for i := int64(0); i < 6; i++ {
		b.Acq(i%3, i).Acq(i%3, (i+1)%6).Rel(i%3, (i+1)%6).Rel(i%3, i)
	}
	tr := b.MustBuild(t)

	first := depgraph.Build(tr, depgraph.LockOrderGraph)
	for i := 0; i < 5; i++ {
		again := depgraph.Build(tr, depgraph.LockOrderGraph)
		assert.Equal(t, first.Edges(), again.Edges())
	}
}

func TestBuild_LockOrderIgnoresNonLockOperands(t *testing.T) {
	tr, err := trace.New([]trace.Event{
		{Seq: 1, Thread: 1, Kind: trace.KindAcquire, Operand: trace.Operand{Space: trace.SpaceMemory, ID: 0}},
		{Seq: 2, Thread: 1, Kind: trace.KindAcquire, Operand: trace.Operand{Space: trace.SpaceLock, ID: 1}},
	})
	require.NoError(t, err)

	g := depgraph.Build(tr, depgraph.LockOrderGraph)
	assert.Equal(t, 1, g.NumNodes())
	assert.Zero(t, g.NumEdges())
	_, ok := g.NodeOf(0)
	assert.False(t, ok)
}
