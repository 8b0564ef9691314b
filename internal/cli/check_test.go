package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracelint/internal/analysis"
	"github.com/roach88/tracelint/internal/store"
	"github.com/roach88/tracelint/internal/testutil"
)

const (
	balancedSTD = "T1|acq(L1)|1\nT1|rel(L1)|2\n"

	inversionSTD = "T1|acq(L1)|1\nT1|acq(L2)|2\nT2|acq(L2)|3\nT2|acq(L1)|4\n"

	nestedSTD = "T1|acq(L1)|1\nT1|acq(L1)|2\nT1|rel(L1)|3\nT1|rel(L1)|4\n"

	unsortedYAML = `events:
  - {seq: 20, thread: T7, op: rel, operand: L5}
  - {seq: 10, thread: T7, op: acq, operand: L5}
`
)

func TestCheck_CleanTrace(t *testing.T) {
	path := tempFile(t, "clean.std", balancedSTD)

	out, err := executeCommand(t, "check", "-i", path)
	require.NoError(t, err)
	assert.Contains(t, out, "trace: 2 events, 1 threads, 1 locks")
	assert.Contains(t, out, "well-formed: no violations")
	assert.NotContains(t, out, "wrote")
}

func TestCheck_InversionWritesGraphs(t *testing.T) {
	path := tempFile(t, "inv.std", inversionSTD)
	outDir := filepath.Join(t.TempDir(), "graphs")

	out, err := executeCommand(t, "check", "-i", path, "-g", "-l", "--output-dir", outDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "4 violation(s), 1 lock-order cycle(s) found")

	assert.Contains(t, out, "violations: 4")
	assert.Contains(t, out, "lock dependencies: 1 cycles (1 feasible)")
	assert.Contains(t, out, "Potential deadlock: lock-order cycle L1 → L2 → L1")
	assert.Contains(t, out, "wrote "+filepath.Join(outDir, EventGraphFile))

	lockDOT, err := os.ReadFile(filepath.Join(outDir, LockOrderFile))
	require.NoError(t, err)
	assert.Contains(t, string(lockDOT), "digraph lock_order {")
	assert.Contains(t, string(lockDOT), "L1 -> L2")
	assert.Contains(t, string(lockDOT), "L2 -> L1")

	eventDOT, err := os.ReadFile(filepath.Join(outDir, EventGraphFile))
	require.NoError(t, err)
	assert.Contains(t, string(eventDOT), "digraph events {")
}

func TestCheck_JSON(t *testing.T) {
	path := tempFile(t, "inv.std", inversionSTD)

	out, err := executeCommand(t, "check", "-i", path, "-l", "--format", "json", "--output-dir", t.TempDir())
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Input  string         `json:"input"`
			Format string         `json:"format"`
			Files  []string       `json:"files"`
			Report map[string]any `json:"report"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	assert.Equal(t, "findings", resp.Status)
	assert.Equal(t, path, resp.Data.Input)
	assert.Equal(t, "std", resp.Data.Format)
	assert.Len(t, resp.Data.Files, 1)
	assert.Equal(t, map[string]any{
		"violations":      float64(4),
		"cycles":          float64(1),
		"feasible_cycles": float64(1),
	}, resp.Data.Report["summary"])
}

func TestCheck_MalformedNeedsNormalize(t *testing.T) {
	path := tempFile(t, "unsorted.yaml", unsortedYAML)

	out, err := executeCommand(t, "check", "-i", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E011]")

	out, err = executeCommand(t, "check", "-i", path, "--normalize")
	require.NoError(t, err)
	assert.Contains(t, out, "well-formed: no violations")
}

func TestCheck_FormatError(t *testing.T) {
	path := tempFile(t, "bad.std", "T1|acq(L1)|1\nT1|acq(L1\n")

	out, err := executeCommand(t, "check", "-i", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E010]")
}

func TestCheck_MissingInput(t *testing.T) {
	out, err := executeCommand(t, "check", "-i", filepath.Join(t.TempDir(), "absent.std"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}

func TestCheck_ConfigFile(t *testing.T) {
	trace := tempFile(t, "nested.std", nestedSTD)
	cfgPath := tempFile(t, "tracelint.cue", `
analysis: lock_dependencies: true
reentrant: locks: [1]
output_dir: "`+filepath.Join(t.TempDir(), "from-config")+`"
`)

	out, err := executeCommand(t, "check", "-i", trace, "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "well-formed: no violations")
	assert.Contains(t, out, "lock dependencies: no lock-order violation found")
	assert.Contains(t, out, filepath.Join("from-config", LockOrderFile))

	// Flags set on the command line win over the file.
	out, err = executeCommand(t, "check", "-i", trace, "--config", cfgPath, "--reentrant", "2", "-l=false")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "violations: 2")
	assert.Contains(t, out, "reentrancy")
	assert.NotContains(t, out, "lock dependencies")
}

func TestCheck_ReentrantFlags(t *testing.T) {
	trace := tempFile(t, "nested.std", nestedSTD)

	_, err := executeCommand(t, "check", "-i", trace)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = executeCommand(t, "check", "-i", trace, "--reentrant-all")
	assert.NoError(t, err)

	_, err = executeCommand(t, "check", "-i", trace, "--reentrant", "1")
	assert.NoError(t, err)
}

func TestCheck_InvalidConfig(t *testing.T) {
	trace := tempFile(t, "clean.std", balancedSTD)
	cfgPath := tempFile(t, "bad.cue", "feasibility_budget: 0\n")

	out, err := executeCommand(t, "check", "-i", trace, "--config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E012]")
}

func TestCheck_NegativeFeasibilityBudget(t *testing.T) {
	trace := tempFile(t, "clean.std", balancedSTD)

	out, err := executeCommand(t, "check", "-i", trace, "--feasibility-budget", "-1")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "feasibility-budget: must not be negative")
}

func TestRecordRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	in, err := analysis.Load(tempFile(t, "inv.std", inversionSTD), false)
	require.NoError(t, err)
	report, err := analysis.Run(context.Background(), in.Trace, analysis.Options{LockDependencies: true})
	require.NoError(t, err)
	reportJSON, err := report.CanonicalJSON()
	require.NoError(t, err)

	opts := &CheckOptions{
		RootOptions:    &RootOptions{Format: "text"},
		Database:       dbPath,
		RunIDGenerator: testutil.NewFixedRunIDGenerator("check"),
	}
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	id, err := recordRun(cmd, opts, in, report, reportJSON)
	require.NoError(t, err)
	assert.Equal(t, "check-1", id)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	run, err := st.ReadRun(context.Background(), "check-1")
	require.NoError(t, err)
	assert.Equal(t, 4, run.Violations)
	assert.Equal(t, 1, run.Cycles)
	assert.Equal(t, string(reportJSON), string(run.Report))

	wantDigest, err := analysis.TraceDigest(in.Trace)
	require.NoError(t, err)
	assert.Equal(t, wantDigest, run.TraceDigest)

	require.Len(t, run.Findings, 5)
	assert.Equal(t, store.Finding{
		Kind:    FindingDeadlockCycle,
		Seq:     2,
		Message: "Potential deadlock: lock-order cycle L1 → L2 → L1",
	}, run.Findings[4])
}

func TestFindings(t *testing.T) {
	tr := testutil.NewTraceBuilder().Acq(1, 1).Acq(2, 1).MustBuild(t)
	report, err := analysis.Run(context.Background(), tr, analysis.Options{})
	require.NoError(t, err)

	assert.Equal(t, []store.Finding{
		{Kind: "mutual_exclusion", Seq: 2, Message: "thread T2 tried to acquire lock L1 which is held by thread T1 (acquired at #1)"},
		{Kind: "dangling_acquire", Seq: 1, Message: "thread T1 still holds lock L1 (acquired at #1) at the end of the trace"},
	}, Findings(report))
}

func TestCheck_NormalizedReentrantLocks(t *testing.T) {
	path := tempFile(t, "sparse.std", "T5|acq(L9)|1\nT5|acq(L9)|2\nT5|rel(L9)|3\nT5|rel(L9)|4\n")

	// --reentrant names the source lock, not its renumbered id.
	out, err := executeCommand(t, "check", "-i", path, "-n", "--reentrant", "9")
	require.NoError(t, err)
	assert.Contains(t, out, "well-formed: no violations")

	_, err = executeCommand(t, "check", "-i", path, "-n", "--reentrant", "0")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestCheck_NormalizedReportsIDMapping(t *testing.T) {
	path := tempFile(t, "sparse.std", "T5|acq(L9)|1\nT6|acq(L0)|2\nT6|rel(L0)|3\n")

	out, err := executeCommand(t, "check", "-i", path, "-n")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "thread T0 still holds lock L0")
	assert.Contains(t, out, "normalized ids (canonical=source):")
	assert.Contains(t, out, "  threads: T0=T5 T1=T6\n")
	assert.Contains(t, out, "  locks: L0=L9 L1=L0\n")
	assert.NotContains(t, out, "memory:")

	out, _ = executeCommand(t, "check", "-i", path, "-n", "--format", "json")
	var resp struct {
		Data CheckResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Data.Mapping)
	assert.Equal(t, []int64{5, 6}, resp.Data.Mapping.Threads)
	assert.Equal(t, []int64{9, 0}, resp.Data.Mapping.Locks)

	// Without normalization the source ids are reported as they are.
	out, _ = executeCommand(t, "check", "-i", path)
	assert.NotContains(t, out, "normalized ids")
	assert.Contains(t, out, "thread T5 still holds lock L9")
}
