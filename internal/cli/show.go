package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tracelint/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database string
}

// ShowResult is a stored run with its report.
type ShowResult struct {
	RunSummary
	Findings []store.Finding `json:"findings"`
	Report   json.RawMessage `json:"report"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a recorded run",
		Long: `Print a run recorded by check --db: its metadata, its findings and,
with --format json, the stored canonical report.

Example:
  tracelint show --db runs.db 01920c7e-8d1a-7c3e-9b52-4f0a1d2e3c4b`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runShow(opts *ShowOptions, runID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail("failed to open database", err)
	}
	defer st.Close()

	run, err := st.ReadRun(ctx, runID)
	if err != nil {
		return formatter.Fail("failed to read run", err)
	}

	if opts.Format == "json" {
		return json.NewEncoder(formatter.Writer).Encode(CLIResponse{
			Status: "ok",
			Data: ShowResult{
				RunSummary: summarize(run),
				Findings:   run.Findings,
				Report:     run.Report,
			},
			RunID: run.ID,
		})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Run:     %s (#%d)\n", run.ID, run.Seq)
	fmt.Fprintf(w, "Input:   %s (%s", run.InputPath, run.Format)
	if run.Normalized {
		fmt.Fprint(w, ", normalized")
	}
	fmt.Fprintln(w, ")")
	fmt.Fprintf(w, "Trace:   %s\n", run.TraceDigest)
	fmt.Fprintf(w, "Report:  %s\n", run.ReportDigest)
	fmt.Fprintf(w, "Events:  %d\n", run.Events)
	fmt.Fprintln(w)

	if len(run.Findings) == 0 {
		fmt.Fprintln(w, "No findings.")
		return nil
	}
	fmt.Fprintf(w, "Findings (%d violations, %d cycles):\n", run.Violations, run.Cycles)
	for _, f := range run.Findings {
		fmt.Fprintf(w, "  #%d %s: %s\n", f.Seq, f.Kind, f.Message)
	}
	return nil
}
