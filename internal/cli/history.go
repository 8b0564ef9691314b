package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/tracelint/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database    string
	Limit       int
	TraceDigest string
}

// RunSummary is one row of the history listing.
type RunSummary struct {
	Seq          int64  `json:"seq"`
	ID           string `json:"id"`
	Input        string `json:"input"`
	Format       string `json:"format"`
	Normalized   bool   `json:"normalized"`
	TraceDigest  string `json:"trace_digest"`
	ReportDigest string `json:"report_digest"`
	Events       int    `json:"events"`
	Violations   int    `json:"violations"`
	Cycles       int    `json:"cycles"`
}

func summarize(r store.Run) RunSummary {
	return RunSummary{
		Seq:          r.Seq,
		ID:           r.ID,
		Input:        r.InputPath,
		Format:       r.Format,
		Normalized:   r.Normalized,
		TraceDigest:  r.TraceDigest,
		ReportDigest: r.ReportDigest,
		Events:       r.Events,
		Violations:   r.Violations,
		Cycles:       r.Cycles,
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List runs recorded by check --db, newest first.

With --trace, only runs of the trace with that digest are listed, oldest
first, so reports of the same input can be compared over time.

Examples:
  tracelint history --db runs.db
  tracelint history --db runs.db --limit 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list (0 = all)")
	cmd.Flags().StringVar(&opts.TraceDigest, "trace", "", "only runs of the trace with this digest")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail("failed to open database", err)
	}
	defer st.Close()

	var runs []store.Run
	if opts.TraceDigest != "" {
		runs, err = st.RunsForTrace(ctx, opts.TraceDigest)
	} else {
		runs, err = st.ListRuns(ctx, opts.Limit)
	}
	if err != nil {
		return formatter.Fail("failed to list runs", err)
	}

	summaries := make([]RunSummary, len(runs))
	for i, r := range runs {
		summaries[i] = summarize(r)
	}

	if opts.Format == "json" {
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: summaries})
	}

	if len(summaries) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tRUN\tINPUT\tEVENTS\tVIOLATIONS\tCYCLES")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\n", s.Seq, s.ID, s.Input, s.Events, s.Violations, s.Cycles)
	}
	return tw.Flush()
}
