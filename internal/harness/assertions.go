package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tracelint/internal/analysis"
	"github.com/roach88/tracelint/internal/depgraph"
	"github.com/roach88/tracelint/internal/lockdep"
	"github.com/roach88/tracelint/internal/trace"
	"github.com/roach88/tracelint/internal/wellformed"
)

// AssertionError is returned when an assertion fails.
// It includes the report's findings to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Findings []string // Every finding of the run, in report order
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Findings) > 0 {
		fmt.Fprintf(&buf, "\nFindings:\n")
		for i, f := range e.Findings {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, f)
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. An empty result means all assertions held.
func EvaluateAssertions(r *analysis.Report, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(r, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(r *analysis.Report, a Assertion) error {
	switch a.Type {
	case AssertViolationCount:
		return assertViolationCount(r, a)
	case AssertViolation:
		return assertViolation(r, a)
	case AssertCycleCount:
		return assertCycleCount(r, a)
	case AssertCycle:
		return assertCycle(r, a)
	case AssertLockEdge:
		return assertLockEdge(r, a)
	case AssertEventGraph:
		return assertEventGraph(r, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func findings(r *analysis.Report) []string {
	out := make([]string, 0, len(r.Violations)+len(r.Cycles))
	for _, v := range r.Violations {
		out = append(out, fmt.Sprintf("#%d %s: %s", v.Seq(), v.Kind, v.Message))
	}
	for _, c := range r.Cycles {
		out = append(out, c.Message)
	}
	return out
}

func violationMatches(v wellformed.Violation, a Assertion) bool {
	if a.Kind != "" && string(v.Kind) != a.Kind {
		return false
	}
	if a.Reason != "" && string(v.Reason) != a.Reason {
		return false
	}
	if a.Seq != 0 && v.Seq() != a.Seq {
		return false
	}
	return a.Contains == "" || strings.Contains(v.Message, a.Contains)
}

// assertViolationCount checks the number of violations, optionally of one kind.
func assertViolationCount(r *analysis.Report, a Assertion) error {
	count := 0
	for _, v := range r.Violations {
		if a.Kind == "" || string(v.Kind) == a.Kind {
			count++
		}
	}

	if count != a.Count {
		what := "violations"
		if a.Kind != "" {
			what = a.Kind + " violations"
		}
		return &AssertionError{
			Type:     AssertViolationCount,
			Expected: fmt.Sprintf("%d %s", a.Count, what),
			Actual:   fmt.Sprintf("%d %s", count, what),
			Findings: findings(r),
		}
	}
	return nil
}

// assertViolation checks that some violation matches every given field.
func assertViolation(r *analysis.Report, a Assertion) error {
	for _, v := range r.Violations {
		if violationMatches(v, a) {
			return nil
		}
	}

	desc := a.Kind
	if a.Reason != "" {
		desc += "/" + a.Reason
	}
	if a.Seq != 0 {
		desc += fmt.Sprintf(" at #%d", a.Seq)
	}
	if a.Contains != "" {
		desc += fmt.Sprintf(" containing %q", a.Contains)
	}
	return &AssertionError{
		Type:     AssertViolation,
		Expected: desc,
		Actual:   "no matching violation",
		Findings: findings(r),
	}
}

func assertCycleCount(r *analysis.Report, a Assertion) error {
	if err := requireLockGraph(r, AssertCycleCount); err != nil {
		return err
	}
	if len(r.Cycles) != a.Count {
		return &AssertionError{
			Type:     AssertCycleCount,
			Expected: fmt.Sprintf("%d cycles", a.Count),
			Actual:   fmt.Sprintf("%d cycles", len(r.Cycles)),
			Findings: findings(r),
		}
	}
	return nil
}

// assertCycle checks for a cycle with the given closed path. The path
// must match exactly, starting lock included.
func assertCycle(r *analysis.Report, a Assertion) error {
	if err := requireLockGraph(r, AssertCycle); err != nil {
		return err
	}

	want := make([]trace.ResourceID, len(a.Path))
	for i, id := range a.Path {
		want[i] = trace.ResourceID(id)
	}

	idx := slices.IndexFunc(r.Cycles, func(c lockdep.DeadlockCycle) bool {
		return slices.Equal(c.Path(), want)
	})
	if idx < 0 {
		return &AssertionError{
			Type:     AssertCycle,
			Expected: fmt.Sprintf("cycle %s", formatPath(want)),
			Actual:   "not found",
			Findings: findings(r),
		}
	}

	if a.Feasible != nil && r.Cycles[idx].Feasible != *a.Feasible {
		return &AssertionError{
			Type:     AssertCycle,
			Expected: fmt.Sprintf("cycle %s feasible=%t", formatPath(want), *a.Feasible),
			Actual:   fmt.Sprintf("feasible=%t", r.Cycles[idx].Feasible),
			Findings: findings(r),
		}
	}
	return nil
}

func assertLockEdge(r *analysis.Report, a Assertion) error {
	if err := requireLockGraph(r, AssertLockEdge); err != nil {
		return err
	}

	g := r.LockGraph
	from, okFrom := g.NodeOf(trace.ResourceID(*a.From))
	to, okTo := g.NodeOf(trace.ResourceID(*a.To))
	if okFrom && okTo {
		if _, ok := g.Edge(from, to, depgraph.EdgeLockOrder); ok {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertLockEdge,
		Expected: fmt.Sprintf("edge L%d -> L%d", *a.From, *a.To),
		Actual:   fmt.Sprintf("not in lock-order graph (%d edges)", g.NumEdges()),
	}
}

func assertEventGraph(r *analysis.Report, a Assertion) error {
	g := r.EventGraph
	if g == nil {
		return &AssertionError{
			Type:     AssertEventGraph,
			Expected: "an event graph",
			Actual:   "graph analysis not enabled",
		}
	}

	if (a.Nodes != nil && g.NumNodes() != *a.Nodes) || (a.Edges != nil && g.NumEdges() != *a.Edges) {
		return &AssertionError{
			Type:     AssertEventGraph,
			Expected: fmt.Sprintf("nodes=%s edges=%s", optInt(a.Nodes), optInt(a.Edges)),
			Actual:   fmt.Sprintf("nodes=%d edges=%d", g.NumNodes(), g.NumEdges()),
		}
	}
	return nil
}

func requireLockGraph(r *analysis.Report, typ string) error {
	if r.LockGraph != nil {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Expected: "a lock-order graph",
		Actual:   "lock dependency analysis not enabled",
	}
}

func formatPath(path []trace.ResourceID) string {
	return lockdep.DeadlockCycle{Resources: path[:len(path)-1]}.String()
}

func optInt(p *int) string {
	if p == nil {
		return "any"
	}
	return fmt.Sprint(*p)
}
