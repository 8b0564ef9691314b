package analysis

import (
	"fmt"
	"io"
	"strings"

	"github.com/roach88/tracelint/internal/canon"
	"github.com/roach88/tracelint/internal/depgraph"
	"github.com/roach88/tracelint/internal/lockdep"
	"github.com/roach88/tracelint/internal/trace"
	"github.com/roach88/tracelint/internal/wellformed"
)

// Report collects the outputs of one run. Graph fields are nil when the
// corresponding analysis was not requested.
type Report struct {
	Trace   *trace.Trace
	Options Options

	Violations []wellformed.Violation
	EventGraph *depgraph.Graph
	LockGraph  *depgraph.Graph
	Cycles     []lockdep.DeadlockCycle
}

// HasFindings reports whether any violation or cycle was found.
func (r *Report) HasFindings() bool {
	return len(r.Violations) > 0 || len(r.Cycles) > 0
}

// FeasibleCycles counts cycles not classified as false positives.
func (r *Report) FeasibleCycles() int {
	n := 0
	for _, c := range r.Cycles {
		if c.Feasible {
			n++
		}
	}
	return n
}

// Canonical returns the report as a canonical-JSON-ready value. It is the
// single serialized form of a report: JSON output, stored history and
// report digests all derive from it.
func (r *Report) Canonical() map[string]any {
	violations := make([]any, len(r.Violations))
	for i, v := range r.Violations {
		violations[i] = canonicalViolation(v)
	}

	out := map[string]any{
		"normalized": r.Options.Normalize,
		"trace": map[string]any{
			"events":  r.Trace.Len(),
			"threads": len(r.Trace.Threads()),
			"locks":   len(r.Trace.Resources()),
		},
		"violations": violations,
		"summary": map[string]any{
			"violations":      len(r.Violations),
			"cycles":          len(r.Cycles),
			"feasible_cycles": r.FeasibleCycles(),
		},
	}

	if r.EventGraph != nil {
		out["event_graph"] = map[string]any{
			"nodes": r.EventGraph.NumNodes(),
			"edges": r.EventGraph.NumEdges(),
		}
	}

	if r.LockGraph != nil {
		out["lock_order"] = canonicalLockGraph(r.LockGraph)

		cycles := make([]any, len(r.Cycles))
		for i, c := range r.Cycles {
			cycles[i] = map[string]any{
				"path":     c.Path(),
				"threads":  c.Threads,
				"feasible": c.Feasible,
				"message":  c.Message,
			}
		}
		out["cycles"] = cycles
	}

	return out
}

func canonicalViolation(v wellformed.Violation) map[string]any {
	m := map[string]any{
		"kind":    string(v.Kind),
		"seqs":    v.Seqs,
		"thread":  v.Thread,
		"operand": v.Operand.String(),
		"message": v.Message,
	}
	if v.Reason != "" {
		m["reason"] = string(v.Reason)
	}
	if hasOwner(v) {
		m["owner"] = v.Owner
	}
	return m
}

func hasOwner(v wellformed.Violation) bool {
	switch v.Kind {
	case wellformed.KindMutualExclusion, wellformed.KindReentrancy, wellformed.KindDanglingAcquire:
		return true
	case wellformed.KindUnmatchedRelease:
		return v.Reason == wellformed.ReasonNotOwner
	default:
		return false
	}
}

func canonicalLockGraph(g *depgraph.Graph) map[string]any {
	locks := make([]any, g.NumNodes())
	for n := range locks {
		locks[n] = g.Node(depgraph.NodeID(n)).Resource
	}

	edges := make([]any, 0, g.NumEdges())
	for _, e := range g.Edges() {
		ws := make([]any, len(e.Witnesses))
		for i, w := range e.Witnesses {
			ws[i] = map[string]any{
				"thread":   w.Thread,
				"held_seq": w.HeldSeq,
				"seq":      w.Seq,
			}
		}
		edges = append(edges, map[string]any{
			"from":      g.Node(e.From).Resource,
			"to":        g.Node(e.To).Resource,
			"witnesses": ws,
		})
	}

	return map[string]any{"locks": locks, "edges": edges}
}

// CanonicalJSON serializes Canonical.
func (r *Report) CanonicalJSON() ([]byte, error) {
	return canon.Marshal(r.Canonical())
}

// Digest identifies the report's content.
func (r *Report) Digest() (string, error) {
	return canon.Digest(canon.DomainReport, r.Canonical())
}

// TraceDigest identifies a trace by its events.
func TraceDigest(tr *trace.Trace) (string, error) {
	events := make([]any, tr.Len())
	for i := range events {
		e := tr.At(i)
		events[i] = []any{e.Seq, int64(e.Thread), e.Kind.String(), e.Operand.String(), e.Loc, e.Payload}
	}
	return canon.Digest(canon.DomainTrace, events)
}

// WriteText prints a human-readable summary of the findings.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "trace: %d events, %d threads, %d locks\n",
		r.Trace.Len(), len(r.Trace.Threads()), len(r.Trace.Resources()))

	if len(r.Violations) == 0 {
		b.WriteString("well-formed: no violations\n")
	} else {
		fmt.Fprintf(&b, "violations: %d\n", len(r.Violations))
		for _, v := range r.Violations {
			kind := string(v.Kind)
			if v.Reason != "" {
				kind += "/" + string(v.Reason)
			}
			fmt.Fprintf(&b, "  #%d %s: %s\n", v.Seq(), kind, v.Message)
		}
	}

	if r.EventGraph != nil {
		fmt.Fprintf(&b, "event graph: %d nodes, %d edges\n", r.EventGraph.NumNodes(), r.EventGraph.NumEdges())
	}

	if r.LockGraph != nil {
		if len(r.Cycles) == 0 {
			b.WriteString("lock dependencies: no lock-order violation found\n")
		} else {
			fmt.Fprintf(&b, "lock dependencies: %d cycles (%d feasible)\n", len(r.Cycles), r.FeasibleCycles())
			for _, c := range r.Cycles {
				fmt.Fprintf(&b, "  %s\n", c.Message)
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
