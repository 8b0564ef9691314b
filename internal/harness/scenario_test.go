package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenario_Valid(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: inversion
description: "opposite lock orders"
options:
  lock_dependencies: true
  reentrant: [2]
trace: |
  T1|acq(L1)|1
assertions:
  - type: cycle
    path: [1, 2, 1]
    feasible: false
`))
	require.NoError(t, err)

	assert.Equal(t, "inversion", s.Name)
	assert.True(t, s.Options.LockDependencies)
	require.Len(t, s.Assertions, 1)
	assert.Equal(t, []int64{1, 2, 1}, s.Assertions[0].Path)
	require.NotNil(t, s.Assertions[0].Feasible)
	assert.False(t, *s.Assertions[0].Feasible)

	cfg := s.Options.Config()
	assert.True(t, cfg.LockDependencies)
	assert.Equal(t, []int64{2}, cfg.ReentrantLocks)
	assert.Equal(t, 10000, cfg.FeasibilityBudget)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown field",
			doc:  "name: a\ndescription: b\ntrace: x\nassertion: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			doc:  "description: b\ntrace: x\nassertions: [{type: cycle_count}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			doc:  "name: a\ntrace: x\nassertions: [{type: cycle_count}]\n",
			want: "description is required",
		},
		{
			name: "no trace",
			doc:  "name: a\ndescription: b\nassertions: [{type: cycle_count}]\n",
			want: "one of trace or trace_file is required",
		},
		{
			name: "both traces",
			doc:  "name: a\ndescription: b\ntrace: x\ntrace_file: y\nassertions: [{type: cycle_count}]\n",
			want: "mutually exclusive",
		},
		{
			name: "no assertions",
			doc:  "name: a\ndescription: b\ntrace: x\n",
			want: "assertions list is required",
		},
		{
			name: "assertions with expect_error",
			doc:  "name: a\ndescription: b\ntrace: x\nexpect_error: format\nassertions: [{type: cycle_count}]\n",
			want: "cannot be combined",
		},
		{
			name: "unknown expect_error",
			doc:  "name: a\ndescription: b\ntrace: x\nexpect_error: panic\n",
			want: `unknown expect_error "panic"`,
		},
		{
			name: "unknown assertion type",
			doc:  "name: a\ndescription: b\ntrace: x\nassertions: [{type: deadlock}]\n",
			want: `unknown assertion type "deadlock"`,
		},
		{
			name: "unknown kind",
			doc:  "name: a\ndescription: b\ntrace: x\nassertions: [{type: violation, kind: data_race}]\n",
			want: `unknown violation kind "data_race"`,
		},
		{
			name: "violation without kind",
			doc:  "name: a\ndescription: b\ntrace: x\nassertions: [{type: violation}]\n",
			want: "kind is required",
		},
		{
			name: "open cycle path",
			doc:  "name: a\ndescription: b\ntrace: x\nassertions: [{type: cycle, path: [1, 2]}]\n",
			want: "path must be closed",
		},
		{
			name: "lock_edge without to",
			doc:  "name: a\ndescription: b\ntrace: x\nassertions: [{type: lock_edge, from: 1}]\n",
			want: "from and to are required",
		},
		{
			name: "empty event_graph",
			doc:  "name: a\ndescription: b\ntrace: x\nassertions: [{type: event_graph}]\n",
			want: "nodes or edges is required",
		},
		{
			name: "negative reentrant lock",
			doc:  "name: a\ndescription: b\ntrace: x\noptions: {reentrant: [-1]}\nassertions: [{type: cycle_count}]\n",
			want: "lock id -1 is negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_ResolvesTraceFile(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "09_normalized_file.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "traces", "unsorted.yaml"), s.TraceFile)
}

func TestLoadScenario_MissingTraceFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: lost\ndescription: d\ntrace_file: nope.std\nassertions: [{type: cycle_count}]\n"), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)

	var notFound *TraceNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "lost", notFound.Scenario)
	assert.Equal(t, filepath.Join(dir, "nope.std"), notFound.Path)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadSuite_DuplicateNames(t *testing.T) {
	dir := t.TempDir()
	doc := []byte("name: same\ndescription: d\ntrace: x\nassertions: [{type: cycle_count}]\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), doc, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), doc, 0o644))

	_, err := LoadSuite(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `scenario name "same" already used by a.yaml`)
}
