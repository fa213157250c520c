// Package fiber implements the per-shard cooperative execution unit
// (spec.md §4.5): within a single tick, it pins one SoA run, invokes the
// hook-bound kernel, constructs a receipt, and enqueues the outputs.
//
// The sequential-checks-short-circuit-to-a-verdict shape is grounded on
// the teacher's internal/escrow/tri_factor_gate.go and
// internal/arbitrator/speculative_executor.go, which pin one unit of
// speculative work per call the same way.
package fiber

import (
	"errors"
	"time"

	"github.com/eightbeat/reconciler/internal/hook"
	"github.com/eightbeat/reconciler/internal/kernel"
	"github.com/eightbeat/reconciler/internal/receipt"
	"github.com/eightbeat/reconciler/internal/ring"
)

// ErrGuard is returned when the hook's guard rejects a triple in the run.
var ErrGuard = errors.New("fiber: guard rejected run")

// ErrBudget is returned when a kernel invocation measured more than
// beat.TickBudget ticks of actual work.
var ErrBudget = errors.New("fiber: actual ticks exceeded budget")

// ErrEmpty is the soft, non-fatal signal for a zero-length run.
var ErrEmpty = errors.New("fiber: empty run")

// TickBudget mirrors beat.TickBudget without importing the beat package,
// since the fiber only needs the numeric bound, not scheduling behavior.
const TickBudget = 8

// Clock samples a monotonically increasing counter used to measure
// actual_ticks. The default implementation uses wall-clock nanoseconds;
// an implementation with access to a hardware cycle counter may supply a
// tighter Clock.
type Clock interface {
	Now() int64
}

// WallClock is the default Clock, grounded in time.Now().UnixNano().
type WallClock struct{}

// Now returns the current time in nanoseconds.
func (WallClock) Now() int64 { return time.Now().UnixNano() }

// Executor pins one run per Execute call and drives it through guard
// validation, kernel dispatch, and receipt construction.
type Executor struct {
	ShardID      uint32
	Clock        Clock
	NanosPerTick int64
	HashAlgo     receipt.HashAlgorithm
	Assertions   *ring.AssertionRing
}

// New builds an Executor for one shard. nanosPerTick stands in for the
// spec's platform "cycles_per_tick" constant (spec.md §6), scaling wall
// time into tick units.
func New(shardID uint32, assertions *ring.AssertionRing, nanosPerTick int64, hashAlgo receipt.HashAlgorithm) *Executor {
	if nanosPerTick <= 0 {
		nanosPerTick = 1
	}
	return &Executor{
		ShardID:      shardID,
		Clock:        WallClock{},
		NanosPerTick: nanosPerTick,
		HashAlgo:     hashAlgo,
		Assertions:   assertions,
	}
}

// Execute runs one pinned run through the hook's guard and kernel, enqueues
// the resulting assertions and a single receipt onto the A-ring under the
// run's cycle_id and tick, and returns that receipt. A non-nil error is
// one of ErrGuard, ErrBudget, or ErrEmpty; in every case a receipt is
// still constructed and enqueued, preserving 100% receipt coverage
// (spec.md §4.5, §8).
func (e *Executor) Execute(tick uint8, cycleID uint64, h *hook.Entry, run *kernel.Run, params kernel.Params) (receipt.Receipt, error) {
	if run.Length > kernel.MaxRunLen {
		panic("fiber: run length exceeds Chatman Constant; admission must reject this before it reaches Execute")
	}

	if guardErr := e.checkGuard(h, run); guardErr != nil {
		rcpt := e.buildReceipt(cycleID, h, receipt.ClassR1, 1, 0, 0, 0)
		rcpt.Flags |= receipt.FlagParked
		e.enqueue(tick, cycleID, nil, rcpt)
		return rcpt, guardErr
	}

	c0 := e.Clock.Now()
	result := kernel.Dispatch(h.KernelKind, run, params)
	c1 := e.Clock.Now()

	actualTicks := e.scaleTicks(c1 - c0)
	lanesUsed := result.LanesUsed()
	aHash := e.provenanceHash(result, run)

	runtimeClass := receipt.ClassR1
	if !h.KernelKind.R1Eligible() {
		runtimeClass = receipt.ClassW1
	}

	rcpt := e.buildReceipt(cycleID, h, runtimeClass, actualTicks, actualTicks, lanesUsed, aHash)

	var assertions []kernel.Assertion
	if result.Kind == kernel.KindConstruct8 {
		assertions = result.Assertions
	}

	if actualTicks > TickBudget {
		rcpt.Flags |= receipt.FlagParked
		rcpt.RuntimeClass = receipt.ClassW1
		e.enqueue(tick, cycleID, assertions, rcpt)
		return rcpt, ErrBudget
	}

	e.enqueue(tick, cycleID, assertions, rcpt)

	if run.Length == 0 {
		return rcpt, ErrEmpty
	}
	return rcpt, nil
}

func (e *Executor) checkGuard(h *hook.Entry, run *kernel.Run) error {
	guard := h.Guard
	if guard == nil {
		return nil
	}
	for i := 0; i < run.Length; i++ {
		if !guard(run.S[i], run.P[i], run.O[i]) {
			return ErrGuard
		}
	}
	return nil
}

func (e *Executor) scaleTicks(deltaNanos int64) uint32 {
	if deltaNanos < 0 {
		deltaNanos = 0
	}
	ticks := deltaNanos / e.NanosPerTick
	if ticks < 1 {
		ticks = 1
	}
	return uint32(ticks)
}

func (e *Executor) provenanceHash(result kernel.Result, run *kernel.Run) uint64 {
	switch result.Kind {
	case kernel.KindAskSP, kernel.KindAskSPO, kernel.KindUniqueSP, kernel.KindValidateDatatype:
		var v uint64
		if result.Bool {
			v = 1
		}
		return receipt.Hash(e.HashAlgo, receipt.EncodeLanes([]uint64{v}))
	case kernel.KindCountSpGe:
		return receipt.Hash(e.HashAlgo, receipt.EncodeLanes([]uint64{uint64(result.Count)}))
	case kernel.KindCompareOEq:
		return receipt.Hash(e.HashAlgo, receipt.EncodeLanes([]uint64{uint64(result.Mask)}))
	case kernel.KindConstruct8:
		lanes := make([]uint64, 0, 3*len(result.Assertions))
		for _, a := range result.Assertions {
			lanes = append(lanes, a.S, a.P, a.O)
		}
		return receipt.Hash(e.HashAlgo, receipt.EncodeLanes(lanes))
	default:
		return 0
	}
}

func (e *Executor) buildReceipt(cycleID uint64, h *hook.Entry, class receipt.RuntimeClass, estimated, actual, lanes uint32, aHash uint64) receipt.Receipt {
	var hookID uint32
	if h != nil {
		hookID = uint32(h.HookID)
	}
	return receipt.Receipt{
		CycleID:        cycleID,
		ShardID:        e.ShardID,
		HookID:         hookID,
		EstimatedTicks: estimated,
		ActualTicks:    actual,
		LanesUsed:      lanes,
		RuntimeClass:   class,
		AHash:          aHash,
		SpanID:         spanID(cycleID, e.ShardID, hookID),
	}
}

// spanID derives a stable per-invocation correlation value from the
// triple that uniquely identifies a kernel invocation: cycle, shard, and
// hook. It is intentionally non-cryptographic — only the Merkle root
// anchors security guarantees (spec.md §9).
func spanID(cycleID uint64, shardID, hookID uint32) uint64 {
	return receipt.Hash(receipt.HashFNV1a64, receipt.EncodeLanes([]uint64{cycleID, uint64(shardID), uint64(hookID)}))
}

func (e *Executor) enqueue(tick uint8, cycleID uint64, assertions []kernel.Assertion, rcpt receipt.Receipt) {
	if e.Assertions == nil {
		return
	}
	if len(assertions) == 0 {
		_ = e.Assertions.Enqueue(tick, ring.AssertionSlot{CycleID: cycleID, Receipt: rcpt})
		return
	}
	for i, a := range assertions {
		slot := ring.AssertionSlot{S: a.S, P: a.P, O: a.O, CycleID: cycleID}
		if i == 0 {
			slot.Receipt = rcpt
		}
		_ = e.Assertions.Enqueue(tick, slot)
	}
}
