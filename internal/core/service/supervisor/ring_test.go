package supervisor

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab/controller/internal/core/domain"
)

func TestLogRing_AppendReturnsFalseOnConsecutiveDuplicate(t *testing.T) {
	r := &logRing{}

	ok := r.append(&domain.LogEntry{Message: "driver initializing"})
	require.True(t, ok)

	ok = r.append(&domain.LogEntry{Message: "driver initializing"})
	assert.False(t, ok)
	assert.Len(t, r.snapshot(), 1)
}

func TestLogRing_AppendAllowsDuplicateAfterDifferentLine(t *testing.T) {
	r := &logRing{}

	require.True(t, r.append(&domain.LogEntry{Message: "a"}))
	require.True(t, r.append(&domain.LogEntry{Message: "b"}))
	ok := r.append(&domain.LogEntry{Message: "a"})

	assert.True(t, ok)
	assert.Len(t, r.snapshot(), 3)
}

func TestLogRing_EvictsOldestBeyondCap(t *testing.T) {
	r := &logRing{}

	for i := 0; i < maxRingEntries+10; i++ {
		r.append(&domain.LogEntry{Message: fmt.Sprintf("line-%d", i)})
	}

	snap := r.snapshot()
	require.Len(t, snap, maxRingEntries)
	assert.Equal(t, "line-10", snap[0].Message)
	assert.Equal(t, fmt.Sprintf("line-%d", maxRingEntries+9), snap[len(snap)-1].Message)
}

func TestLogRing_Clear(t *testing.T) {
	r := &logRing{}
	r.append(&domain.LogEntry{Message: "a"})

	r.clear()

	assert.Empty(t, r.snapshot())
}

func TestLogRing_SnapshotIsACopy(t *testing.T) {
	r := &logRing{}
	r.append(&domain.LogEntry{Message: "a"})

	snap := r.snapshot()
	snap[0].Message = "mutated"

	assert.Equal(t, "a", r.snapshot()[0].Message)
}
