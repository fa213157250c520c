// Package ring implements the lock-free, structure-of-arrays Δ-ring and
// A-ring described in spec.md §4.2: single-producer-multi-consumer queues
// partitioned per tick, with atomic head/tail cursors separated by 64-byte
// padding. The SoA payload columns are plain Go slices; their start
// addresses are not aligned to 64 bytes.
//
// The atomic cursor and padding idiom is grounded on the cache-line-padded
// generic ring in momentics/hioload-ws's internal/concurrency package and
// on the power-of-two index masking used by the LMAX-style disruptor ring
// in rishavpaul's order-matching-engine.
package ring

import (
	"errors"
	"sync/atomic"

	"github.com/eightbeat/reconciler/internal/beat"
)

// ErrFull is returned by Enqueue when the addressed tick's sub-ring has no
// free slots. Admission treats this as backpressure (spec.md §7).
var ErrFull = errors.New("ring: tick sub-ring is full")

// Flags is the small bit-set carried alongside a Δ-ring slot.
type Flags uint8

const (
	FlagAdmitted Flags = 1 << iota
	FlagParked
	FlagCommitted
	// FlagClassW1 and FlagClassC1 record the runtime class a slot was
	// admitted under, so a fiber draining the slot later can report parks
	// against the right admission-gate window (spec.md §4.8). Neither bit
	// set means the slot was admitted as R1.
	FlagClassW1
	FlagClassC1
)

// cacheLinePad separates hot atomic cursors to avoid false sharing,
// mirroring the `_ [64]byte` padding fields of the grounding examples.
type cacheLinePad [64]byte

// deltaSubRing is one tick's slice of the Δ-ring: four parallel arrays
// (S, P, O, cycle) of identical length plus a flags column, all indexed by
// the same masked position — the SoA layout spec.md §3/§4.2 requires.
type deltaSubRing struct {
	mask uint64

	s, p, o, cycle []uint64
	flags          []atomic.Uint32

	head atomic.Uint64
	_    cacheLinePad
	tail atomic.Uint64
	_    cacheLinePad
}

func newDeltaSubRing(capacity uint64) *deltaSubRing {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be a power of two")
	}
	return &deltaSubRing{
		mask:  capacity - 1,
		s:     make([]uint64, capacity),
		p:     make([]uint64, capacity),
		o:     make([]uint64, capacity),
		cycle: make([]uint64, capacity),
		flags: make([]atomic.Uint32, capacity),
	}
}

func (r *deltaSubRing) capacity() uint64 { return r.mask + 1 }

func (r *deltaSubRing) len() uint64 {
	tail := r.tail.Load()
	head := r.head.Load()
	return tail - head
}

func (r *deltaSubRing) enqueue(s, p, o, cycleID uint64, extra Flags) error {
	head := r.head.Load()
	tail := r.tail.Load()
	if tail-head >= r.capacity() {
		return ErrFull
	}
	idx := tail & r.mask
	r.s[idx] = s
	r.p[idx] = p
	r.o[idx] = o
	r.cycle[idx] = cycleID
	r.flags[idx].Store(uint32(FlagAdmitted | extra))
	r.tail.Store(tail + 1) // release store: publishes the slot to readers
	return nil
}

// dequeue claims the oldest undrained slot via CAS on the head cursor, so
// multiple fiber readers pinned to the same sub-ring never double-claim a
// slot (spec.md §4.2: "multiple readers are tolerated by CAS on the read
// index").
func (r *deltaSubRing) dequeue() (DeltaSlot, bool) {
	for {
		head := r.head.Load()
		tail := r.tail.Load()
		if head >= tail {
			return DeltaSlot{}, false
		}
		if r.head.CompareAndSwap(head, head+1) {
			idx := head & r.mask
			slot := DeltaSlot{
				S:       r.s[idx],
				P:       r.p[idx],
				O:       r.o[idx],
				CycleID: r.cycle[idx],
				Flags:   Flags(r.flags[idx].Load()),
			}
			return slot, true
		}
	}
}

// parkPending marks every slot between head and tail as PARKED and returns
// them, advancing head past all of them so the Δ-ring sub-ring is empty
// afterward.
func (r *deltaSubRing) parkPending() []DeltaSlot {
	var parked []DeltaSlot
	for {
		slot, ok := r.dequeue()
		if !ok {
			break
		}
		slot.Flags |= FlagParked
		parked = append(parked, slot)
	}
	return parked
}

// DeltaSlot is one observed triple pinned to a cycle, as drained from the
// Δ-ring (spec.md §3 "Delta Ring Slot").
type DeltaSlot struct {
	S, P, O uint64
	CycleID uint64
	Flags   Flags
}

// DeltaRing is the single-producer-multi-consumer Δ-ring, partitioned into
// beat.TickBudget per-tick sub-rings.
type DeltaRing struct {
	ticks [beat.TickBudget]*deltaSubRing
}

// NewDeltaRing allocates a Δ-ring whose every per-tick sub-ring has the
// given power-of-two capacity.
func NewDeltaRing(capacityPerTick uint64) *DeltaRing {
	r := &DeltaRing{}
	for i := range r.ticks {
		r.ticks[i] = newDeltaSubRing(capacityPerTick)
	}
	return r
}

// Enqueue stores (s, p, o, cycleID) into the sub-ring for tick. It is the
// single producer per tick: admission is the only caller.
func (r *DeltaRing) Enqueue(tick uint8, s, p, o, cycleID uint64) error {
	return r.ticks[tick&(beat.TickBudget-1)].enqueue(s, p, o, cycleID, 0)
}

// EnqueueClassed is Enqueue plus a runtime-class flag, so the slot
// remembers which admission-gate window it belongs to when it is later
// drained and its fiber outcome is reported back to admission.
func (r *DeltaRing) EnqueueClassed(tick uint8, s, p, o, cycleID uint64, class Flags) error {
	return r.ticks[tick&(beat.TickBudget-1)].enqueue(s, p, o, cycleID, class)
}

// Dequeue returns the oldest undrained slot for tick, or ok=false if empty.
func (r *DeltaRing) Dequeue(tick uint8) (DeltaSlot, bool) {
	return r.ticks[tick&(beat.TickBudget-1)].dequeue()
}

// ParkPending drains and PARKs every outstanding slot of tick, handing
// them to the caller for forwarding to the W1 drain.
func (r *DeltaRing) ParkPending(tick uint8) []DeltaSlot {
	return r.ticks[tick&(beat.TickBudget-1)].parkPending()
}

// Len reports the number of undrained slots currently queued for tick.
func (r *DeltaRing) Len(tick uint8) uint64 {
	return r.ticks[tick&(beat.TickBudget-1)].len()
}

// Capacity reports the fixed per-tick sub-ring capacity.
func (r *DeltaRing) Capacity() uint64 {
	return r.ticks[0].capacity()
}
