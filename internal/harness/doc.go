// Package harness runs trace scenarios as executable tests of the
// analyses.
//
// A scenario names a trace, the analyses to run on it and the findings
// the run must produce. The harness decodes the trace, runs the analysis
// pipeline exactly as the CLI does and evaluates each assertion against
// the resulting report.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: lock_inversion
//	description: "Two threads take L1 and L2 in opposite orders"
//	options:
//	  graph: true
//	  lock_dependencies: true
//	trace: |
//	  T1|acq(L1)|1
//	  T1|acq(L2)|2
//	  T2|acq(L2)|3
//	  T2|acq(L1)|4
//	assertions:
//	  - type: lock_edge
//	    from: 1
//	    to: 2
//	  - type: cycle
//	    path: [1, 2, 1]
//
// The trace is either inline STD text (trace) or a file in any supported
// encoding (trace_file), resolved relative to the scenario. A scenario
// that sets expect_error passes only when preparing the trace fails with
// that class of error ("format" or "malformed").
//
// # Assertion Types
//
//   - violation_count: exactly count violations, optionally of one kind
//   - violation: a violation of kind (and reason) exists, optionally at
//     seq and with contains in its message
//   - cycle_count: exactly count deadlock cycles
//   - cycle: a cycle with the given closed path, optionally with the
//     given feasibility
//   - lock_edge: the lock-order graph has an edge from -> to
//   - event_graph: the event graph has the given node and edge counts
//
// # Golden Files
//
// RunWithGolden compares a scenario's canonical report against
// testdata/golden/{name}.golden. To regenerate:
//
//	go test ./internal/harness -update
package harness
