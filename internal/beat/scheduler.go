// Package beat implements the 8-beat scheduling epoch: a monotonically
// advancing cycle counter whose low three bits identify the current tick,
// with tick 0 marking the pulse that closes one epoch and opens the next.
package beat

import "sync/atomic"

// TickBudget is the Chatman Constant: the fixed tick width of one 8-beat
// epoch. Not runtime-configurable (spec.md §6).
const TickBudget = 8

// Scheduler hands out a total order of (cycle, tick, pulse) triples from a
// single atomic counter. The zero value is ready to use, starting at cycle 0.
type Scheduler struct {
	cycle atomic.Uint64
}

// New returns a Scheduler with its counter at zero.
func New() *Scheduler {
	return &Scheduler{}
}

// Advance atomically claims the next cycle and derives its tick and pulse
// state. Tick and pulse are branchless: tick is the low three bits of the
// cycle, pulse holds exactly when tick is zero.
func (s *Scheduler) Advance() (cycle uint64, tick uint8, pulse bool) {
	cycle = s.cycle.Add(1) - 1
	tick = uint8(cycle & (TickBudget - 1))
	pulse = tick == 0
	return
}

// Observe returns the current (cycle, tick, pulse) without advancing.
// Used by admission to stamp incoming work with the tick it will be
// dequeued under.
func (s *Scheduler) Observe() (cycle uint64, tick uint8, pulse bool) {
	cycle = s.cycle.Load()
	tick = uint8(cycle & (TickBudget - 1))
	pulse = tick == 0
	return
}

// EpochID pairs a cycle with a generation so that implementations needing
// an audit horizon longer than the modular uint64 cycle can encode
// (epoch_generation, cycle) pairs, per spec.md §4.1's wrap-around note.
type EpochID struct {
	Generation uint64
	Cycle      uint64
}

// Epoch derives the (generation, cycle) pair for a given raw cycle value,
// with one generation per 2^64 cycles — i.e. generation is always zero on
// any plausible clock rate, but the field exists so audit records remain
// well-formed if a counter ever wraps.
func Epoch(cycle uint64, wraps uint64) EpochID {
	return EpochID{Generation: wraps, Cycle: cycle}
}
