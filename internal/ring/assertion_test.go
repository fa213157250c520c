package ring

import (
	"testing"

	"github.com/eightbeat/reconciler/internal/receipt"
	"github.com/stretchr/testify/require"
)

func TestAssertionRingEnqueueDequeueFIFO(t *testing.T) {
	r := NewAssertionRing(4)
	rcpt := receipt.Receipt{CycleID: 1, AHash: 0xABCD}
	require.NoError(t, r.Enqueue(0, AssertionSlot{S: 1, P: 2, O: 3, CycleID: 1, Receipt: rcpt}))

	slot, ok := r.Dequeue(0)
	require.True(t, ok)
	require.Equal(t, rcpt, slot.Receipt)
}

func TestAssertionRingDrainEpochCollectsAllTicks(t *testing.T) {
	r := NewAssertionRing(4)
	for tick := uint8(0); tick < 8; tick++ {
		require.NoError(t, r.Enqueue(tick, AssertionSlot{CycleID: uint64(tick)}))
	}

	drained := r.DrainEpoch()
	require.Len(t, drained, 8)

	for tick := uint8(0); tick < 8; tick++ {
		require.Equal(t, uint64(0), r.Len(tick))
	}
}

func TestAssertionRingDrainEpochEmptyYieldsNoSlots(t *testing.T) {
	r := NewAssertionRing(4)
	require.Empty(t, r.DrainEpoch())
}

func TestAssertionRingEnqueueFullReturnsErrFull(t *testing.T) {
	r := NewAssertionRing(1)
	require.NoError(t, r.Enqueue(0, AssertionSlot{}))
	require.ErrorIs(t, r.Enqueue(0, AssertionSlot{}), ErrFull)
}
