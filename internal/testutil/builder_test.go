package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracelint/internal/trace"
)

func TestTraceBuilder_StampsSequentialEvents(t *testing.T) {
	tr := NewTraceBuilder().
		Acq(1, 7).
		Write(1, 3).
		Rel(1, 7).
		MustBuild(t)

	require.Equal(t, 3, tr.Len())
	assert.Equal(t, int64(1), tr.At(0).Seq)
	assert.Equal(t, trace.Operand{Space: trace.SpaceLock, ID: 7}, tr.At(0).Operand)
	assert.Equal(t, trace.Operand{Space: trace.SpaceMemory, ID: 3}, tr.At(1).Operand)
	assert.Equal(t, trace.KindRelease, tr.At(2).Kind)
}

func TestTraceBuilder_ClockAllowsOutOfOrderEvents(t *testing.T) {
	b := NewTraceBuilder().Acq(1, 1)
	b.Clock().Set(0)
	b.Rel(1, 1)

	events := b.Events()
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, int64(1), events[1].Seq)

	_, err := trace.New(events)
	assert.True(t, trace.IsMalformed(err))
}
