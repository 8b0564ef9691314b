package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tracelint/internal/config"
	"github.com/roach88/tracelint/internal/wellformed"
)

// Scenario defines one trace analysis test.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Options selects the analyses to run.
	Options ScenarioOptions `yaml:"options,omitempty"`

	// Trace is an inline trace in STD text form.
	Trace string `yaml:"trace,omitempty"`

	// TraceFile is a trace file path, relative to the scenario file.
	TraceFile string `yaml:"trace_file,omitempty"`

	// ExpectError is "format" or "malformed" when the trace must be
	// rejected before analysis.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the report.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ScenarioOptions mirrors the analysis switches of the config file.
type ScenarioOptions struct {
	Normalize         bool    `yaml:"normalize,omitempty"`
	Graph             bool    `yaml:"graph,omitempty"`
	LockDependencies  bool    `yaml:"lock_dependencies,omitempty"`
	ReentrantAll      bool    `yaml:"reentrant_all,omitempty"`
	Reentrant         []int64 `yaml:"reentrant,omitempty"`
	UnwrittenReads    bool    `yaml:"unwritten_reads,omitempty"`
	FeasibilityBudget int     `yaml:"feasibility_budget,omitempty"`
}

// Config resolves the options on top of the default configuration.
func (o ScenarioOptions) Config() config.Config {
	cfg := config.Default()
	cfg.Normalize = o.Normalize
	cfg.Graph = o.Graph
	cfg.LockDependencies = o.LockDependencies
	cfg.ReentrantAll = o.ReentrantAll
	cfg.ReentrantLocks = o.Reentrant
	cfg.UnwrittenReads = o.UnwrittenReads
	if o.FeasibilityBudget > 0 {
		cfg.FeasibilityBudget = o.FeasibilityBudget
	}
	return cfg
}

// Assertion validates one aspect of a report.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Kind and Reason select violations (violation, violation_count).
	Kind   string `yaml:"kind,omitempty"`
	Reason string `yaml:"reason,omitempty"`

	// Seq is the offending event of a violation; zero matches any.
	Seq int64 `yaml:"seq,omitempty"`

	// Contains is a substring of the finding's message.
	Contains string `yaml:"contains,omitempty"`

	// Count is the expected number of findings (violation_count, cycle_count).
	Count int `yaml:"count,omitempty"`

	// Path is a closed cycle path (cycle).
	Path []int64 `yaml:"path,omitempty"`

	// Feasible, when set, is the expected cycle classification.
	Feasible *bool `yaml:"feasible,omitempty"`

	// From and To name a lock-order edge (lock_edge).
	From *int64 `yaml:"from,omitempty"`
	To   *int64 `yaml:"to,omitempty"`

	// Nodes and Edges size the event graph (event_graph).
	Nodes *int `yaml:"nodes,omitempty"`
	Edges *int `yaml:"edges,omitempty"`
}

// Assertion type constants.
const (
	AssertViolationCount = "violation_count"
	AssertViolation      = "violation"
	AssertCycleCount     = "cycle_count"
	AssertCycle          = "cycle"
	AssertLockEdge       = "lock_edge"
	AssertEventGraph     = "event_graph"
)

// Expected error classes.
const (
	ExpectFormatError    = "format"
	ExpectMalformedError = "malformed"
)

// LoadScenario reads and parses a scenario YAML file. A relative
// trace_file is resolved against the scenario's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving trace_file relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.TraceFile != "" && !filepath.IsAbs(scenario.TraceFile) && basePath != "" {
		scenario.TraceFile = filepath.Join(basePath, scenario.TraceFile)
	}

	if scenario.TraceFile != "" {
		if _, err := os.Stat(scenario.TraceFile); os.IsNotExist(err) {
			return nil, &TraceNotFoundError{Scenario: scenario.Name, Path: scenario.TraceFile}
		}
	}

	return scenario, nil
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadSuite loads every *.yaml scenario in dir, ordered by file name.
// Scenario names must be unique within a suite.
func LoadSuite(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	names := make(map[string]string)
	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		if prev, ok := names[s.Name]; ok {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", filepath.Base(p), s.Name, prev)
		}
		names[s.Name] = filepath.Base(p)
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// TraceNotFoundError is returned when a scenario's trace_file doesn't exist.
type TraceNotFoundError struct {
	Scenario string
	Path     string
}

// Error implements the error interface.
func (e *TraceNotFoundError) Error() string {
	return fmt.Sprintf("scenario %q references trace file %q which does not exist", e.Scenario, e.Path)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Trace == "" && s.TraceFile == "":
		return fmt.Errorf("one of trace or trace_file is required")
	case s.Trace != "" && s.TraceFile != "":
		return fmt.Errorf("trace and trace_file are mutually exclusive")
	}

	switch s.ExpectError {
	case "":
		if len(s.Assertions) == 0 {
			return fmt.Errorf("assertions list is required and must be non-empty")
		}
	case ExpectFormatError, ExpectMalformedError:
		if len(s.Assertions) > 0 {
			return fmt.Errorf("assertions cannot be combined with expect_error")
		}
	default:
		return fmt.Errorf("unknown expect_error %q", s.ExpectError)
	}

	for _, id := range s.Options.Reentrant {
		if id < 0 {
			return fmt.Errorf("options.reentrant: lock id %d is negative", id)
		}
	}
	if s.Options.FeasibilityBudget < 0 {
		return fmt.Errorf("options.feasibility_budget must be positive")
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	if a.Kind != "" && !slices.Contains(wellformed.Kinds, wellformed.Kind(a.Kind)) {
		return fmt.Errorf("assertions[%d]: unknown violation kind %q", index, a.Kind)
	}

	switch a.Type {
	case AssertViolationCount, AssertCycleCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertViolation:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for violation", index)
		}
	case AssertCycle:
		if len(a.Path) < 2 || a.Path[0] != a.Path[len(a.Path)-1] {
			return fmt.Errorf("assertions[%d]: path must be closed (first lock repeated last) for cycle", index)
		}
	case AssertLockEdge:
		if a.From == nil || a.To == nil {
			return fmt.Errorf("assertions[%d]: from and to are required for lock_edge", index)
		}
	case AssertEventGraph:
		if a.Nodes == nil && a.Edges == nil {
			return fmt.Errorf("assertions[%d]: nodes or edges is required for event_graph", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
