package store

import (
	"path/filepath"
	"testing"
)

// createTestStore opens a store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun returns a run with every required field set.
func createTestRun(id, traceDigest string) Run {
	return Run{
		ID:           id,
		InputPath:    "traces/" + id + ".std",
		Format:       "std",
		TraceDigest:  traceDigest,
		ReportDigest: "report-" + id,
		Events:       4,
		Violations:   1,
		Cycles:       1,
		Report:       []byte(`{"run":"` + id + `"}`),
		Findings: []Finding{
			{Kind: "mutual_exclusion", Seq: 2, Message: "thread T2 tried to acquire lock L1"},
			{Kind: "deadlock_cycle", Seq: 4, Message: "L1 → L2 → L1"},
		},
	}
}
