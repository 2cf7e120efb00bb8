package swmr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_ReclaimQueue_Release_Skips_Entirely_When_CurrentTick_Not_Past_MaxLag(t *testing.T) {
	t.Parallel()

	q := newReclaimQueue()
	q.Defer(0, 4096, 1)

	var freed []uint64
	n := q.Release(3, 3, func(offset uint64, length uint32) { freed = append(freed, offset) })

	require.Zero(t, n)
	require.Empty(t, freed)
	require.Equal(t, 1, q.Len())
}

func Test_ReclaimQueue_Release_Releases_Records_Aged_Past_MaxLag(t *testing.T) {
	t.Parallel()

	q := newReclaimQueue()
	q.Defer(100, 4096, 2) // due once currentTick > 2+3=5

	var freed []uint64
	n := q.Release(6, 3, func(offset uint64, length uint32) { freed = append(freed, offset) })

	require.Equal(t, 1, n)
	require.Equal(t, []uint64{100}, freed)
	require.Zero(t, q.Len())
}

func Test_ReclaimQueue_Release_Stops_At_First_NotYetDue_Record(t *testing.T) {
	t.Parallel()

	q := newReclaimQueue()
	q.Defer(100, 4096, 2) // due at currentTick > 5
	q.Defer(200, 4096, 5) // due at currentTick > 8

	var freed []uint64
	n := q.Release(7, 3, func(offset uint64, length uint32) { freed = append(freed, offset) })

	require.Equal(t, 1, n)
	require.Equal(t, []uint64{100}, freed)
	require.Equal(t, 1, q.Len())
}

func Test_ReclaimQueue_Snapshot_Returns_TailFirst_Copy(t *testing.T) {
	t.Parallel()

	q := newReclaimQueue()
	q.Defer(1, 1, 1)
	q.Defer(2, 2, 2)

	snap := q.Snapshot()
	require.Len(t, snap, 2)
	require.EqualValues(t, 1, snap[0].Offset)
	require.EqualValues(t, 2, snap[1].Offset)

	snap[0].Offset = 999
	require.EqualValues(t, 1, q.Snapshot()[0].Offset)
}
