// Package config loads tracelint configuration files.
//
// Files are CUE (plain JSON is valid CUE too) and are validated against
// the embedded #Config schema before any field is read. Unknown fields,
// type mismatches and out-of-range values are rejected with the position
// of the offending value.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaCUE []byte

// DefaultOutputDir is where rendered graphs go unless configured.
const DefaultOutputDir = "output"

// Config is the resolved configuration. The zero value is valid apart
// from OutputDir; use Default.
type Config struct {
	Normalize        bool
	Graph            bool
	LockDependencies bool

	ReentrantAll   bool
	ReentrantLocks []int64

	UnwrittenReads bool

	OutputDir string

	// FeasibilityBudget of zero means the analyzer default.
	FeasibilityBudget int
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{OutputDir: DefaultOutputDir}
}

// ConfigError reports an invalid configuration file.
type ConfigError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ConfigError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Load reads and validates the configuration file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse validates data against the schema and returns the configuration
// it describes, starting from Default. filename is used in positions.
func Parse(filename string, data []byte) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	file := ctx.CompileBytes(data, cue.Filename(filename))
	if err := file.Err(); err != nil {
		return Config{}, formatCUEError("syntax", err)
	}

	v := def.Unify(file)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, formatCUEError("schema", err)
	}

	cfg := Default()
	fields := []struct {
		path string
		dst  *bool
	}{
		{"analysis.normalize", &cfg.Normalize},
		{"analysis.graph", &cfg.Graph},
		{"analysis.lock_dependencies", &cfg.LockDependencies},
		{"reentrant.all", &cfg.ReentrantAll},
		{"checks.unwritten_reads", &cfg.UnwrittenReads},
	}
	for _, f := range fields {
		if err := lookupBool(v, f.path, f.dst); err != nil {
			return Config{}, err
		}
	}

	if val := v.LookupPath(cue.ParsePath("output_dir")); val.Exists() {
		s, err := val.String()
		if err != nil {
			return Config{}, valueError("output_dir", val, err)
		}
		cfg.OutputDir = s
	}

	if val := v.LookupPath(cue.ParsePath("feasibility_budget")); val.Exists() {
		n, err := val.Int64()
		if err != nil {
			return Config{}, valueError("feasibility_budget", val, err)
		}
		cfg.FeasibilityBudget = int(n)
	}

	if val := v.LookupPath(cue.ParsePath("reentrant.locks")); val.Exists() {
		iter, err := val.List()
		if err != nil {
			return Config{}, valueError("reentrant.locks", val, err)
		}
		for iter.Next() {
			n, err := iter.Value().Int64()
			if err != nil {
				return Config{}, valueError("reentrant.locks", iter.Value(), err)
			}
			cfg.ReentrantLocks = append(cfg.ReentrantLocks, n)
		}
	}

	return cfg, nil
}

func lookupBool(v cue.Value, path string, dst *bool) error {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return nil
	}
	b, err := val.Bool()
	if err != nil {
		return valueError(path, val, err)
	}
	*dst = b
	return nil
}

func valueError(field string, val cue.Value, err error) *ConfigError {
	return &ConfigError{Field: field, Message: err.Error(), Pos: val.Pos()}
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(field string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ConfigError{Field: field, Message: err.Error()}
	}

	first := errs[0]
	ce := &ConfigError{Field: field, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
