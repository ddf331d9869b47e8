package g3pw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanRunsMergesContiguousOffsets(t *testing.T) {
	runs := planRuns([]uint16{0x0001, 0x0000})

	require.Len(t, runs, 1)
	assert.Equal(t, uint16(0x0000), runs[0].start)
	assert.Equal(t, 2, runs[0].count)
}

func TestPlanRunsSpansInteriorGaps(t *testing.T) {
	// 0000 and 0007 are 7 apart: one read of 8 sweeping the gap.
	runs := planRuns([]uint16{0x0000, 0x0007})

	require.Len(t, runs, 1)
	assert.Equal(t, readRun{start: 0x0000, count: 8}, runs[0])
}

func TestPlanRunsNeverMergesBeyondBatchWindow(t *testing.T) {
	// 0000 and 0008 are 8 apart, past the look-ahead window.
	runs := planRuns([]uint16{0x0000, 0x0008})

	require.Len(t, runs, 2)
	assert.Equal(t, readRun{start: 0x0000, count: 1}, runs[0])
	assert.Equal(t, readRun{start: 0x0008, count: 1}, runs[1])
}

func TestPlanRunsDeduplicatesAndSorts(t *testing.T) {
	runs := planRuns([]uint16{0x0014, 0x0000, 0x0000, 0x0001, 0x0015})

	require.Len(t, runs, 2)
	assert.Equal(t, readRun{start: 0x0000, count: 2}, runs[0])
	assert.Equal(t, readRun{start: 0x0014, count: 2}, runs[1])
}

func TestPlanRunsEmpty(t *testing.T) {
	assert.Nil(t, planRuns(nil))
}
