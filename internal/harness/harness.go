package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/tracelint/internal/analysis"
	"github.com/roach88/tracelint/internal/codec"
	"github.com/roach88/tracelint/internal/normalize"
	"github.com/roach88/tracelint/internal/trace"
)

// Harness is the scenario execution engine.
type Harness struct {
	logger *slog.Logger
}

// New creates a harness that logs to logger. A nil logger discards.
func New(logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Harness{logger: logger}
}

// Run executes a scenario with a discarding logger.
func Run(scenario *Scenario) (*Result, error) {
	return New(nil).Run(context.Background(), scenario)
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Decode the trace (inline STD or trace_file)
// 2. Prepare it, normalizing when the scenario asks to
// 3. Run the selected analyses
// 4. Evaluate assertions against the report
//
// An error is returned only when the scenario cannot be executed; failed
// assertions and unexpected rejections are reported in the Result.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	result := NewResult()
	opts := analysis.OptionsFromConfig(scenario.Options.Config())

	tr, mapping, err := loadTrace(scenario, opts.Normalize)
	if scenario.ExpectError != "" {
		result.Err = err
		if got := errorClass(err); got != scenario.ExpectError {
			result.AddError(fmt.Sprintf("expected %s error, got %s", scenario.ExpectError, describeError(err)))
		}
		h.logger.Info("scenario evaluated", "scenario", scenario.Name, "pass", result.Pass)
		return result, nil
	}
	if err != nil {
		result.AddError(fmt.Sprintf("trace rejected: %v", err))
		return result, nil
	}

	report, err := analysis.Run(ctx, tr, opts.ForMapping(mapping))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	result.Report = report

	for _, msg := range EvaluateAssertions(report, scenario.Assertions) {
		result.AddError(msg)
	}

	h.logger.Info("scenario evaluated",
		"scenario", scenario.Name,
		"violations", len(report.Violations),
		"cycles", len(report.Cycles),
		"pass", result.Pass,
	)
	return result, nil
}

func loadTrace(s *Scenario, normalized bool) (*trace.Trace, *normalize.Mapping, error) {
	var (
		events []trace.Event
		err    error
	)
	if s.TraceFile != "" {
		events, _, err = codec.ReadFile(s.TraceFile)
	} else {
		events, err = codec.DecodeSTD(strings.NewReader(s.Trace))
	}
	if err != nil {
		return nil, nil, err
	}
	return analysis.Prepare(events, normalized)
}

func errorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case codec.IsFormatError(err):
		return ExpectFormatError
	case trace.IsMalformed(err):
		return ExpectMalformedError
	default:
		return "other"
	}
}

func describeError(err error) string {
	if err == nil {
		return "no error"
	}
	return fmt.Sprintf("%s error (%v)", errorClass(err), err)
}
