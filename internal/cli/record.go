package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/tracelint/internal/analysis"
	"github.com/roach88/tracelint/internal/store"
)

// FindingDeadlockCycle is the stored finding kind of a lock-order cycle.
// Violations are stored under their own kind names.
const FindingDeadlockCycle = "deadlock_cycle"

// recordRun stores the run in the history database and returns its id.
func recordRun(cmd *cobra.Command, opts *CheckOptions, in *analysis.Input, report *analysis.Report, reportJSON []byte) (string, error) {
	ctx := commandContext(cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	traceDigest, err := analysis.TraceDigest(in.Trace)
	if err != nil {
		return "", fmt.Errorf("trace digest: %w", err)
	}
	reportDigest, err := report.Digest()
	if err != nil {
		return "", fmt.Errorf("report digest: %w", err)
	}

	gen := opts.RunIDGenerator
	if gen == nil {
		gen = store.UUIDv7Generator{}
	}

	run := store.Run{
		ID:           gen.Generate(),
		InputPath:    in.Path,
		Format:       string(in.Format),
		Normalized:   report.Options.Normalize,
		TraceDigest:  traceDigest,
		ReportDigest: reportDigest,
		Events:       in.Trace.Len(),
		Violations:   len(report.Violations),
		Cycles:       len(report.Cycles),
		Report:       reportJSON,
		Findings:     Findings(report),
	}
	if err := st.WriteRun(ctx, run); err != nil {
		return "", err
	}

	slog.Info("run recorded", "db", opts.Database, "run_id", run.ID, "findings", len(run.Findings))
	return run.ID, nil
}

// Findings flattens a report's violations and cycles for storage. A
// cycle is located at the first event witnessing its first edge.
func Findings(report *analysis.Report) []store.Finding {
	out := make([]store.Finding, 0, len(report.Violations)+len(report.Cycles))
	for _, v := range report.Violations {
		out = append(out, store.Finding{Kind: string(v.Kind), Seq: v.Seq(), Message: v.Message})
	}
	for _, c := range report.Cycles {
		var seq int64
		if len(c.Edges) > 0 && len(c.Edges[0].Witnesses) > 0 {
			seq = c.Edges[0].Witnesses[0].Seq
		}
		out = append(out, store.Finding{Kind: FindingDeadlockCycle, Seq: seq, Message: c.Message})
	}
	return out
}
