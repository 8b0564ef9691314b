package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Full(t *testing.T) {
	cfg, err := Parse("tracelint.cue", []byte(`
analysis: {
	normalize:         true
	lock_dependencies: true
}
reentrant: locks: [3, 7]
checks: unwritten_reads: true
output_dir:         "graphs"
feasibility_budget: 50
`))
	require.NoError(t, err)

	assert.Equal(t, Config{
		Normalize:         true,
		LockDependencies:  true,
		ReentrantLocks:    []int64{3, 7},
		UnwrittenReads:    true,
		OutputDir:         "graphs",
		FeasibilityBudget: 50,
	}, cfg)
}

func TestParse_EmptyFileYieldsDefaults(t *testing.T) {
	cfg, err := Parse("empty.cue", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "output", cfg.OutputDir)
}

func TestParse_AcceptsJSON(t *testing.T) {
	cfg, err := Parse("tracelint.json", []byte(`{"reentrant": {"all": true}, "analysis": {"graph": true}}`))
	require.NoError(t, err)
	assert.True(t, cfg.ReentrantAll)
	assert.True(t, cfg.Graph)
	assert.False(t, cfg.Normalize)
}

func TestParse_RejectsInvalidFiles(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{"syntax error", "analysis: {", "syntax"},
		{"unknown field", "bogus: true", "schema"},
		{"wrong type", `analysis: graph: "yes"`, "schema"},
		{"budget out of range", "feasibility_budget: 0", "schema"},
		{"negative lock", "reentrant: locks: [-1]", "schema"},
		{"empty output dir", `output_dir: ""`, "schema"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.cue", []byte(tt.input))
			require.Error(t, err)
			require.True(t, IsConfigError(err), "got %T: %v", err, err)

			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
			assert.NotEmpty(t, ce.Message)
		})
	}
}

func TestParse_SyntaxErrorHasPosition(t *testing.T) {
	_, err := Parse("bad.cue", []byte("analysis: {\n  graph: true\n"))
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	require.True(t, ce.Pos.IsValid())
	assert.Equal(t, "bad.cue", ce.Pos.Filename())
	assert.Contains(t, ce.Error(), "bad.cue:")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tracelint.cue")
	require.NoError(t, os.WriteFile(path, []byte("analysis: normalize: true\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Normalize)

	_, err = Load(filepath.Join(dir, "missing.cue"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, IsConfigError(err))
}

func TestConfigError_Format(t *testing.T) {
	err := &ConfigError{Field: "schema", Message: "field not allowed"}
	assert.Equal(t, "schema: field not allowed", err.Error())
}
