package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracelint/internal/codec"
)

func TestNormalize_Stdout(t *testing.T) {
	path := tempFile(t, "unsorted.yaml", unsortedYAML)

	out, err := executeCommand(t, "normalize", "-i", path)
	require.NoError(t, err)
	assert.Equal(t, "T0|acq(L0)|0\nT0|rel(L0)|0\n", out)
}

func TestNormalize_OutputFile(t *testing.T) {
	path := tempFile(t, "unsorted.yaml", unsortedYAML)
	outPath := filepath.Join(t.TempDir(), "trace.std")

	out, err := executeCommand(t, "normalize", "-i", path, "-o", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "normalized 2 events (1 threads, 1 locks) to "+outPath)
	assert.Contains(t, out, "events were re-sorted")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "T0|acq(L0)|0\nT0|rel(L0)|0\n", string(data))
}

func TestNormalize_RapidBinRoundTrip(t *testing.T) {
	path := tempFile(t, "inv.std", inversionSTD)
	outPath := filepath.Join(t.TempDir(), "trace.data")

	_, err := executeCommand(t, "normalize", "-i", path, "-o", outPath, "--encoding", "rapidbin")
	require.NoError(t, err)

	events, format, err := codec.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, codec.FormatRapidBin, format)
	require.Len(t, events, 4)
	assert.EqualValues(t, 0, events[0].Thread)
	assert.EqualValues(t, 1, events[2].Thread)
}

func TestNormalize_JSON(t *testing.T) {
	path := tempFile(t, "unsorted.yaml", unsortedYAML)
	outPath := filepath.Join(t.TempDir(), "trace.std")

	out, err := executeCommand(t, "normalize", "-i", path, "-o", outPath, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string          `json:"status"`
		Data   NormalizeResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, NormalizeResult{
		Input:     path,
		Output:    outPath,
		Encoding:  "std",
		Events:    2,
		Reordered: true,
		Threads:   []int64{7},
		Locks:     []int64{5},
		Memory:    nil,
	}, resp.Data)
}

func TestNormalize_YAMLEncodingRejected(t *testing.T) {
	path := tempFile(t, "t.std", balancedSTD)

	_, err := executeCommand(t, "normalize", "-i", path, "--encoding", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "yaml output is not supported")
}

func TestNormalize_UnknownEncoding(t *testing.T) {
	path := tempFile(t, "t.std", balancedSTD)

	_, err := executeCommand(t, "normalize", "-i", path, "--encoding", "xml")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
