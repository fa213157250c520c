package ring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeltaRingEnqueueDequeueFIFO(t *testing.T) {
	r := NewDeltaRing(4)
	require.NoError(t, r.Enqueue(0, 1, 2, 3, 100))
	require.NoError(t, r.Enqueue(0, 4, 5, 6, 101))

	slot, ok := r.Dequeue(0)
	require.True(t, ok)
	require.Equal(t, DeltaSlot{S: 1, P: 2, O: 3, CycleID: 100, Flags: FlagAdmitted}, slot)

	slot, ok = r.Dequeue(0)
	require.True(t, ok)
	require.Equal(t, uint64(4), slot.S)
}

func TestDeltaRingDequeueEmptyReturnsFalse(t *testing.T) {
	r := NewDeltaRing(4)
	_, ok := r.Dequeue(0)
	require.False(t, ok)
}

func TestDeltaRingTicksAreIndependent(t *testing.T) {
	r := NewDeltaRing(4)
	require.NoError(t, r.Enqueue(0, 1, 1, 1, 1))
	require.Equal(t, uint64(1), r.Len(0))
	require.Equal(t, uint64(0), r.Len(1))
}

func TestDeltaRingEnqueueFullReturnsErrFull(t *testing.T) {
	r := NewDeltaRing(2)
	require.NoError(t, r.Enqueue(0, 1, 1, 1, 1))
	require.NoError(t, r.Enqueue(0, 1, 1, 1, 1))
	require.ErrorIs(t, r.Enqueue(0, 1, 1, 1, 1), ErrFull)
}

func TestDeltaRingTickIndexWrapsModuloTickBudget(t *testing.T) {
	r := NewDeltaRing(4)
	require.NoError(t, r.Enqueue(8, 9, 9, 9, 9)) // tick 8 aliases tick 0
	require.Equal(t, uint64(1), r.Len(0))
}

func TestDeltaRingParkPendingDrainsAndFlagsParked(t *testing.T) {
	r := NewDeltaRing(4)
	require.NoError(t, r.Enqueue(0, 1, 2, 3, 1))
	require.NoError(t, r.Enqueue(0, 4, 5, 6, 2))

	parked := r.ParkPending(0)
	require.Len(t, parked, 2)
	for _, slot := range parked {
		require.NotZero(t, slot.Flags&FlagParked)
	}
	require.Equal(t, uint64(0), r.Len(0))
}

func TestDeltaRingCapacityReportsConfiguredSize(t *testing.T) {
	r := NewDeltaRing(16)
	require.Equal(t, uint64(16), r.Capacity())
}

func TestDeltaRingEnqueueClassedCarriesRuntimeClassFlag(t *testing.T) {
	r := NewDeltaRing(4)
	require.NoError(t, r.EnqueueClassed(0, 1, 2, 3, 100, FlagClassW1))

	slot, ok := r.Dequeue(0)
	require.True(t, ok)
	require.Equal(t, FlagAdmitted|FlagClassW1, slot.Flags)
}
