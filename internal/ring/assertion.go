package ring

import (
	"sync/atomic"

	"github.com/eightbeat/reconciler/internal/beat"
	"github.com/eightbeat/reconciler/internal/receipt"
)

// AssertionSlot is one emitted assertion plus the receipt of the kernel
// invocation that produced it (spec.md §3 "Assertion Ring Slot"). A slot
// with S==P==O==0 and no assertion payload still carries a valid Receipt —
// Empty and guard-failed runs still produce exactly one receipt each to
// preserve 100% receipt coverage (spec.md §4.5).
type AssertionSlot struct {
	S, P, O uint64
	CycleID uint64
	Receipt receipt.Receipt
}

// assertionSubRing mirrors deltaSubRing's SoA layout, with an added inline
// receipt column (spec.md §4.2: "assertion ring additionally carries an
// inline receipt column").
type assertionSubRing struct {
	mask uint64

	s, p, o, cycle []uint64
	receipts       []receipt.Receipt

	head atomic.Uint64
	_    cacheLinePad
	tail atomic.Uint64
	_    cacheLinePad
}

func newAssertionSubRing(capacity uint64) *assertionSubRing {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be a power of two")
	}
	return &assertionSubRing{
		mask:     capacity - 1,
		s:        make([]uint64, capacity),
		p:        make([]uint64, capacity),
		o:        make([]uint64, capacity),
		cycle:    make([]uint64, capacity),
		receipts: make([]receipt.Receipt, capacity),
	}
}

func (r *assertionSubRing) capacity() uint64 { return r.mask + 1 }

func (r *assertionSubRing) len() uint64 {
	return r.tail.Load() - r.head.Load()
}

func (r *assertionSubRing) enqueue(slot AssertionSlot) error {
	head := r.head.Load()
	tail := r.tail.Load()
	if tail-head >= r.capacity() {
		return ErrFull
	}
	idx := tail & r.mask
	r.s[idx] = slot.S
	r.p[idx] = slot.P
	r.o[idx] = slot.O
	r.cycle[idx] = slot.CycleID
	r.receipts[idx] = slot.Receipt
	r.tail.Store(tail + 1)
	return nil
}

func (r *assertionSubRing) dequeue() (AssertionSlot, bool) {
	for {
		head := r.head.Load()
		tail := r.tail.Load()
		if head >= tail {
			return AssertionSlot{}, false
		}
		if r.head.CompareAndSwap(head, head+1) {
			idx := head & r.mask
			return AssertionSlot{
				S:       r.s[idx],
				P:       r.p[idx],
				O:       r.o[idx],
				CycleID: r.cycle[idx],
				Receipt: r.receipts[idx],
			}, true
		}
	}
}

func (r *assertionSubRing) drainAll() []AssertionSlot {
	var out []AssertionSlot
	for {
		slot, ok := r.dequeue()
		if !ok {
			break
		}
		out = append(out, slot)
	}
	return out
}

// AssertionRing is the A-ring: assertions plus receipts, partitioned into
// beat.TickBudget per-tick sub-rings so insertion order within a tick
// matches Δ-ring dequeue order for that tick (spec.md §8 "Order").
type AssertionRing struct {
	ticks [beat.TickBudget]*assertionSubRing
}

// NewAssertionRing allocates an A-ring whose every per-tick sub-ring has
// the given power-of-two capacity.
func NewAssertionRing(capacityPerTick uint64) *AssertionRing {
	r := &AssertionRing{}
	for i := range r.ticks {
		r.ticks[i] = newAssertionSubRing(capacityPerTick)
	}
	return r
}

// Enqueue appends slot to tick's sub-ring.
func (r *AssertionRing) Enqueue(tick uint8, slot AssertionSlot) error {
	return r.ticks[tick&(beat.TickBudget-1)].enqueue(slot)
}

// Dequeue returns the oldest undrained slot for tick.
func (r *AssertionRing) Dequeue(tick uint8) (AssertionSlot, bool) {
	return r.ticks[tick&(beat.TickBudget-1)].dequeue()
}

// Len reports the number of undrained slots currently queued for tick.
func (r *AssertionRing) Len(tick uint8) uint64 {
	return r.ticks[tick&(beat.TickBudget-1)].len()
}

// DrainEpoch drains every outstanding slot across all eight per-tick
// sub-rings. Called from the pulse-boundary commit pass. Each slot is
// claimed through the same CAS on the sub-ring's read cursor that Dequeue
// uses, so the scan takes no lock; it returns whatever is queued at the
// time of the call, in tick order (spec.md §4.7).
func (r *AssertionRing) DrainEpoch() []AssertionSlot {
	var all []AssertionSlot
	for _, sr := range r.ticks {
		all = append(all, sr.drainAll()...)
	}
	return all
}
