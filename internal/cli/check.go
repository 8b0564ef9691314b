package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tracelint/internal/analysis"
	"github.com/roach88/tracelint/internal/config"
	"github.com/roach88/tracelint/internal/depgraph"
	"github.com/roach88/tracelint/internal/normalize"
	"github.com/roach88/tracelint/internal/render"
	"github.com/roach88/tracelint/internal/store"
	"github.com/roach88/tracelint/internal/trace"
)

// Output file names written by check.
const (
	EventGraphFile = "event_graph.dot"
	LockOrderFile  = "lock_order.dot"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Input      string
	ConfigFile string
	Database   string

	// Flag values. They override the config file only when set on the
	// command line.
	Normalize         bool
	Graph             bool
	LockDependencies  bool
	OutputDir         string
	Reentrant         []int64
	ReentrantAll      bool
	UnwrittenReads    bool
	FeasibilityBudget int

	// RunIDGenerator allows overriding run ids (for testing).
	// If nil, defaults to store.UUIDv7Generator.
	RunIDGenerator store.RunIDGenerator
}

// CheckResult is the JSON payload of a check run.
type CheckResult struct {
	Input  string          `json:"input"`
	Format string          `json:"format"`
	Files  []string        `json:"files,omitempty"`
	Report json.RawMessage `json:"report"`

	// Mapping is set when the trace was normalized.
	Mapping *IDMapping `json:"mapping,omitempty"`
}

// IDMapping lists, per namespace and indexed by canonical id, the source
// id each canonical id replaced.
type IDMapping struct {
	Threads []int64 `json:"threads"`
	Locks   []int64 `json:"locks"`
	Memory  []int64 `json:"memory"`
}

func newIDMapping(m *normalize.Mapping) *IDMapping {
	if m == nil {
		return nil
	}
	out := &IDMapping{
		Threads: make([]int64, len(m.Threads)),
		Locks:   m.Locks,
		Memory:  m.Memory,
	}
	for i, th := range m.Threads {
		out.Threads[i] = int64(th)
	}
	return out
}

// writeIDMapping prints one line per non-empty namespace, e.g.
// "locks: L0=L9 L1=L0".
func writeIDMapping(w io.Writer, m *IDMapping) {
	line := func(name string, space trace.Space, ids []int64) {
		if len(ids) == 0 {
			return
		}
		prefix := space.Prefix()
		parts := make([]string, len(ids))
		for i, src := range ids {
			parts[i] = fmt.Sprintf("%s%d=%s%d", prefix, i, prefix, src)
		}
		fmt.Fprintf(w, "  %s: %s\n", name, strings.Join(parts, " "))
	}
	fmt.Fprintln(w, "normalized ids (canonical=source):")
	line("threads", trace.SpaceThread, m.Threads)
	line("locks", trace.SpaceLock, m.Locks)
	line("memory", trace.SpaceMemory, m.Memory)
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Analyze a trace",
		Long: `Analyze a concurrency trace.

The well-formedness check always runs. --graph also builds the event
dependency graph and --lock-dependencies searches the lock-order graph
for cycles; both write DOT files to the output directory.

Exit status is 0 when nothing was found, 1 when violations or cycles
were found and 2 when the trace or configuration could not be used.

Examples:
  tracelint check -i trace.std
  tracelint check -i trace.data -n -g -l --output-dir out
  tracelint check -i trace.yaml --config tracelint.cue --db runs.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "trace file to analyze (required)")
	_ = cmd.MarkFlagRequired("input")
	cmd.Flags().BoolVarP(&opts.Normalize, "normalize", "n", false, "normalize the trace before analysis")
	cmd.Flags().BoolVarP(&opts.Graph, "graph", "g", false, "build and render the event dependency graph")
	cmd.Flags().BoolVarP(&opts.LockDependencies, "lock-dependencies", "l", false, "analyze lock dependencies for deadlock cycles")
	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "CUE configuration file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database")
	cmd.Flags().StringVar(&opts.OutputDir, "output-dir", config.DefaultOutputDir, "directory for graph files")
	cmd.Flags().Int64SliceVar(&opts.Reentrant, "reentrant", nil, "ids of reentrant locks")
	cmd.Flags().BoolVar(&opts.ReentrantAll, "reentrant-all", false, "treat every lock as reentrant")
	cmd.Flags().BoolVar(&opts.UnwrittenReads, "unwritten-reads", false, "report reads of never-written memory")
	cmd.Flags().IntVar(&opts.FeasibilityBudget, "feasibility-budget", 0, "search steps per cycle feasibility check (0 = default)")

	return cmd
}

func runCheck(opts *CheckOptions, cmd *cobra.Command) error {
	configureLogging(opts.Verbose, cmd.ErrOrStderr())
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	cfg, err := resolveConfig(opts, cmd)
	if err != nil {
		return formatter.Fail("invalid configuration", err)
	}
	runOpts := analysis.OptionsFromConfig(cfg)

	in, err := analysis.Load(opts.Input, cfg.Normalize)
	if err != nil {
		if trace.IsMalformed(err) {
			formatter.VerboseLog("hint: re-run with --normalize to reorder the trace")
		}
		return formatter.Fail("cannot analyze trace", err)
	}

	runOpts = runOpts.ForMapping(in.Mapping)

	report, err := analysis.Run(ctx, in.Trace, runOpts)
	if err != nil {
		return formatter.Fail("analysis interrupted", err)
	}

	files, err := writeGraphs(report, cfg.OutputDir)
	if err != nil {
		return formatter.Fail("cannot write graph files", err)
	}

	reportJSON, err := report.CanonicalJSON()
	if err != nil {
		return formatter.Fail("cannot serialize report", err)
	}

	var runID string
	if opts.Database != "" {
		runID, err = recordRun(cmd, opts, in, report, reportJSON)
		if err != nil {
			return formatter.Fail("cannot record run", err)
		}
	}

	if err := outputCheck(formatter, in, report, reportJSON, files, runID); err != nil {
		return err
	}

	if report.HasFindings() {
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d violation(s), %d lock-order cycle(s) found", len(report.Violations), len(report.Cycles)))
	}
	return nil
}

// resolveConfig layers the config file (if any) under explicitly set flags.
func resolveConfig(opts *CheckOptions, cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigFile != "" {
		var err error
		cfg, err = config.Load(opts.ConfigFile)
		if err != nil {
			return config.Config{}, err
		}
		slog.Debug("config loaded", "path", opts.ConfigFile)
	}

	flags := cmd.Flags()
	if flags.Changed("normalize") {
		cfg.Normalize = opts.Normalize
	}
	if flags.Changed("graph") {
		cfg.Graph = opts.Graph
	}
	if flags.Changed("lock-dependencies") {
		cfg.LockDependencies = opts.LockDependencies
	}
	if flags.Changed("output-dir") || cfg.OutputDir == "" {
		cfg.OutputDir = opts.OutputDir
	}
	if flags.Changed("reentrant") {
		cfg.ReentrantLocks = opts.Reentrant
	}
	if flags.Changed("reentrant-all") {
		cfg.ReentrantAll = opts.ReentrantAll
	}
	if flags.Changed("unwritten-reads") {
		cfg.UnwrittenReads = opts.UnwrittenReads
	}
	if flags.Changed("feasibility-budget") {
		if opts.FeasibilityBudget < 0 {
			return config.Config{}, &config.ConfigError{Field: "feasibility-budget", Message: "must not be negative"}
		}
		cfg.FeasibilityBudget = opts.FeasibilityBudget
	}
	for _, id := range cfg.ReentrantLocks {
		if id < 0 {
			return config.Config{}, &config.ConfigError{Field: "reentrant", Message: fmt.Sprintf("lock id %d is negative", id)}
		}
	}
	return cfg, nil
}

// writeGraphs renders every graph the report holds into dir and returns
// the written paths.
func writeGraphs(report *analysis.Report, dir string) ([]string, error) {
	type output struct {
		name  string
		graph *depgraph.Graph
		opts  render.Options
	}
	var outputs []output
	if report.EventGraph != nil {
		outputs = append(outputs, output{EventGraphFile, report.EventGraph, render.Options{}})
	}
	if report.LockGraph != nil {
		outputs = append(outputs, output{LockOrderFile, report.LockGraph, render.Options{Cycles: report.Cycles}})
	}
	if len(outputs) == 0 {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	files := make([]string, 0, len(outputs))
	for _, o := range outputs {
		path := filepath.Join(dir, o.name)
		if err := writeDOTFile(path, o.graph, o.opts); err != nil {
			return nil, err
		}
		slog.Info("graph written", "path", path, "nodes", o.graph.NumNodes(), "edges", o.graph.NumEdges())
		files = append(files, path)
	}
	return files, nil
}

func writeDOTFile(path string, g *depgraph.Graph, opts render.Options) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := render.WriteDOT(w, g, opts); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func outputCheck(formatter *OutputFormatter, in *analysis.Input, report *analysis.Report, reportJSON []byte, files []string, runID string) error {
	if formatter.Format == "json" {
		status := "ok"
		if report.HasFindings() {
			status = "findings"
		}
		return json.NewEncoder(formatter.Writer).Encode(CLIResponse{
			Status: status,
			Data: CheckResult{
				Input:   in.Path,
				Format:  string(in.Format),
				Files:   files,
				Report:  reportJSON,
				Mapping: newIDMapping(in.Mapping),
			},
			RunID: runID,
		})
	}

	if err := report.WriteText(formatter.Writer); err != nil {
		return err
	}
	if m := newIDMapping(in.Mapping); m != nil {
		writeIDMapping(formatter.Writer, m)
	}
	for _, f := range files {
		fmt.Fprintf(formatter.Writer, "wrote %s\n", f)
	}
	if runID != "" {
		fmt.Fprintf(formatter.Writer, "run %s recorded\n", runID)
	}
	return nil
}
