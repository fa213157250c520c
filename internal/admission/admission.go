// Package admission implements the runtime-class admission gate: R1/W1/C1
// classification, the rolling park-rate gate, and C1 escalation
// (spec.md §4.8). The rolling-window-with-generation-rollover shape is
// grounded on the teacher's internal/circuitbreaker/breaker.go
// CircuitBreaker, whose Counts/generation/expiry machinery is repurposed
// here from request failure ratios to per-cycle park ratios.
//
// Two distinct mechanisms live in Gate, and they must not be conflated:
// a single GLOBAL rolling window tracks the R1 park rate and rejects new
// R1 admissions outright once it crosses ParkRateCeiling, while a
// PER-PREDICATE rolling window tracks each predicate's W1 park rate and
// permanently escalates that one predicate to C1 once it breaches
// C1ParkRateThreshold for C1EscalationThreshold consecutive cycles. A
// predicate that has escalated is never admitted as R1 or W1 again.
package admission

import (
	"errors"
	"log"
	"sync"

	"github.com/eightbeat/reconciler/internal/receipt"
)

// ErrFull is returned when the gate has no remaining admission capacity
// for the current cycle.
var ErrFull = errors.New("admission: runtime class at capacity for this cycle")

// ErrRejectedByPolicy is returned when a new R1 admission is attempted
// while the global R1 park-rate ceiling gate is tripped.
var ErrRejectedByPolicy = errors.New("admission: rejected by park-rate policy")

// ErrRunTooLong is returned by Classify when admitting this triple would
// push its run past the eight-lane Chatman Constant bound, before any
// other admission criterion is even considered.
var ErrRunTooLong = errors.New("admission: run would exceed the eight-lane bound")

// maxRunLength mirrors kernel.MaxRunLen without importing the kernel
// package, the same way fiber.TickBudget mirrors beat.TickBudget: this
// package only needs the numeric bound, not the kernel machinery.
const maxRunLength = 8

// initialTickEstimate seeds a predicate's moving tick-cost estimator
// before any fiber invocation has been observed for it, so an unseen
// predicate starts out eligible for R1 rather than presumed expensive.
const initialTickEstimate = 8

// estimatorDecay is the exponential-moving-average weight given to a
// freshly observed actual_ticks value when folding it into a predicate's
// running tick-cost estimate.
const estimatorDecay = 0.25

// Config holds the admission gate's tunables (spec.md §4.8, §6).
type Config struct {
	// ParkRateCeiling is the global rolling R1 park rate above which new
	// R1 admissions are rejected with ErrRejectedByPolicy.
	ParkRateCeiling float64
	// WindowSize is the number of most-recent cycles folded into both
	// the global R1 window and every per-predicate W1 window.
	WindowSize int
	// C1ParkRateThreshold is the per-predicate W1 park rate that counts
	// as a breach cycle toward C1 escalation.
	C1ParkRateThreshold float64
	// C1EscalationThreshold is the number of consecutive breach cycles a
	// predicate's W1 park rate must sustain before that predicate
	// escalates permanently to C1.
	C1EscalationThreshold int
	// CapacityPerCycle caps total admissions (any class) accepted within
	// a single cycle; zero means unbounded.
	CapacityPerCycle uint32
}

// DefaultConfig mirrors spec.md §4.8's defaults: a 20% global R1
// park-rate ceiling, and per-predicate W1 escalation to C1 after three
// consecutive cycles above a 5% park rate.
func DefaultConfig() Config {
	return Config{
		ParkRateCeiling:       0.20,
		WindowSize:            8,
		C1ParkRateThreshold:   0.05,
		C1EscalationThreshold: 3,
	}
}

// cycleCounts is one rolling-window slot: how many admissions were
// attempted and how many of those parked, during one cycle.
type cycleCounts struct {
	admitted uint32
	parked   uint32
}

// predicateState is the per-predicate bookkeeping the global R1 ceiling
// doesn't need: the W1 park-rate window feeding C1 escalation, and the
// moving tick-cost estimate feeding admission criterion (c).
type predicateState struct {
	w1Window          []cycleCounts
	w1Next            int
	w1Filled          int
	w1ConsecutiveBreach int
	escalated         bool
	tickEstimate      float64
}

// Gate classifies admissions into R1/W1/C1, enforces the global R1
// park-rate ceiling, and tracks per-predicate C1 escalation.
type Gate struct {
	cfg   Config
	async AsyncExecutor

	mu                     sync.Mutex
	r1Window               []cycleCounts
	r1Next                 int
	r1Filled               int
	r1Rejecting            bool
	totalAdmittedThisCycle uint32
	predicates             map[uint64]*predicateState
}

// New builds a Gate with the default LoggingAsyncExecutor. A zero-value
// Config is replaced with DefaultConfig.
func New(cfg Config) *Gate {
	return NewWithExecutor(cfg, LoggingAsyncExecutor{})
}

// NewWithExecutor builds a Gate whose C1 escalations are handed to async
// rather than logged directly — production wiring for a real cold-path
// worker, tests for asserting escalation fired without a log dependency.
func NewWithExecutor(cfg Config, async AsyncExecutor) *Gate {
	if cfg.WindowSize <= 0 {
		cfg = DefaultConfig()
	}
	if async == nil {
		async = LoggingAsyncExecutor{}
	}
	return &Gate{
		cfg:        cfg,
		async:      async,
		r1Window:   make([]cycleCounts, cfg.WindowSize),
		predicates: make(map[uint64]*predicateState),
	}
}

func (g *Gate) predicateLocked(predicate uint64) *predicateState {
	ps, ok := g.predicates[predicate]
	if !ok {
		ps = &predicateState{
			w1Window:     make([]cycleCounts, g.cfg.WindowSize),
			tickEstimate: initialTickEstimate,
		}
		g.predicates[predicate] = ps
	}
	return ps
}

// Classify assigns a runtime class to one admission attempt, applying the
// admission rule's criteria (spec.md §4.8) in order:
//
//	(a) a run that would exceed the eight-lane bound is rejected outright
//	(escalation) a predicate already escalated to C1 is always C1
//	(b) a kernel ineligible for R1 (Construct8) is always W1
//	(c) a predicate whose moving tick-cost estimate exceeds the Chatman
//	    Constant is W1
//	(d) a triple without the L1-residency hint is W1
//
// Anything surviving all four is R1.
func (g *Gate) Classify(predicate uint64, proposedRunLength int, kernelR1Eligible, l1ResidencyHint bool) (receipt.RuntimeClass, error) {
	if proposedRunLength > maxRunLength {
		return 0, ErrRunTooLong
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if ps, ok := g.predicates[predicate]; ok && ps.escalated {
		return receipt.ClassC1, nil
	}
	if !kernelR1Eligible {
		return receipt.ClassW1, nil
	}
	if g.predicateLocked(predicate).tickEstimate > maxRunLength {
		return receipt.ClassW1, nil
	}
	if !l1ResidencyHint {
		return receipt.ClassW1, nil
	}
	return receipt.ClassR1, nil
}

// Admit records one admission attempt for predicate's class in the
// current cycle's window slot. A new R1 admission is rejected with
// ErrRejectedByPolicy while the global park-rate ceiling is tripped; a
// predicate already escalated to C1 has no window bookkeeping (C1 work
// bypasses park-rate gating entirely — it already failed it).
func (g *Gate) Admit(predicate uint64, class receipt.RuntimeClass) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if class == receipt.ClassR1 && g.r1Rejecting {
		return ErrRejectedByPolicy
	}
	if g.cfg.CapacityPerCycle > 0 && g.totalAdmittedThisCycle >= g.cfg.CapacityPerCycle {
		return ErrFull
	}
	g.totalAdmittedThisCycle++

	switch class {
	case receipt.ClassR1:
		g.r1Window[g.r1Next].admitted++
	case receipt.ClassW1:
		ps := g.predicateLocked(predicate)
		ps.w1Window[ps.w1Next].admitted++
	}
	return nil
}

// RecordPark marks the current cycle's admission as parked: an R1 park
// feeds the global ceiling window, a W1 park feeds predicate's own
// window. C1 has no window and is ignored.
func (g *Gate) RecordPark(predicate uint64, class receipt.RuntimeClass) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch class {
	case receipt.ClassR1:
		g.r1Window[g.r1Next].parked++
	case receipt.ClassW1:
		ps := g.predicateLocked(predicate)
		ps.w1Window[ps.w1Next].parked++
	}
}

// UpdateEstimate folds one fiber invocation's actual_ticks into
// predicate's moving tick-cost estimate (admission criterion (c)).
func (g *Gate) UpdateEstimate(predicate uint64, actualTicks uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ps := g.predicateLocked(predicate)
	ps.tickEstimate += estimatorDecay * (float64(actualTicks) - ps.tickEstimate)
}

// EstimatedTicks returns predicate's current moving tick-cost estimate,
// or initialTickEstimate if nothing has been observed for it yet.
func (g *Gate) EstimatedTicks(predicate uint64) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ps, ok := g.predicates[predicate]; ok {
		return ps.tickEstimate
	}
	return initialTickEstimate
}

// Advance closes out the current cycle's rolling-window slots. It
// recomputes the global R1 park rate (and whether new R1 admissions
// should now be rejected), then walks every tracked predicate's W1
// window to recompute its park rate, advance its consecutive-breach
// count, and escalate it to C1 — emitting an async-finalize task — the
// moment it crosses C1EscalationThreshold. Mirrors
// CircuitBreaker.toNewGeneration's clear-and-reuse shape rather than an
// unbounded ring of historical cycles.
func (g *Gate) Advance() (r1ParkRate float64, r1Rejecting bool, newlyEscalated []uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.r1Filled < len(g.r1Window) {
		g.r1Filled++
	}
	r1ParkRate = rollingParkRate(g.r1Window, g.r1Filled)
	g.r1Rejecting = r1ParkRate > g.cfg.ParkRateCeiling
	g.r1Next = (g.r1Next + 1) % len(g.r1Window)
	g.r1Window[g.r1Next] = cycleCounts{}

	for predicate, ps := range g.predicates {
		if ps.w1Filled < len(ps.w1Window) {
			ps.w1Filled++
		}
		rate := rollingParkRate(ps.w1Window, ps.w1Filled)
		if rate > g.cfg.C1ParkRateThreshold {
			ps.w1ConsecutiveBreach++
		} else {
			ps.w1ConsecutiveBreach = 0
		}
		if !ps.escalated && ps.w1ConsecutiveBreach >= g.cfg.C1EscalationThreshold {
			ps.escalated = true
			newlyEscalated = append(newlyEscalated, predicate)
			if err := g.async.EscalateToCold(predicate); err != nil {
				log.Printf("admission: async finalize for predicate %d failed: %v", predicate, err)
			}
		}
		ps.w1Next = (ps.w1Next + 1) % len(ps.w1Window)
		ps.w1Window[ps.w1Next] = cycleCounts{}
	}

	g.totalAdmittedThisCycle = 0
	return r1ParkRate, g.r1Rejecting, newlyEscalated
}

func rollingParkRate(window []cycleCounts, filled int) float64 {
	var admitted, parked uint32
	for i := 0; i < filled; i++ {
		admitted += window[i].admitted
		parked += window[i].parked
	}
	if admitted == 0 {
		return 0
	}
	return float64(parked) / float64(admitted)
}

// R1Rejecting reports whether the gate is currently rejecting new R1
// admissions under the global park-rate ceiling.
func (g *Gate) R1Rejecting() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.r1Rejecting
}

// PredicateEscalated reports whether predicate has permanently escalated
// to C1. There is no de-escalation path (spec.md §9 leaves this open;
// see DESIGN.md).
func (g *Gate) PredicateEscalated(predicate uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	ps, ok := g.predicates[predicate]
	return ok && ps.escalated
}

// MeanW1ParkRate returns the mean, over every predicate the gate has
// tracked, of that predicate's current rolling W1 park rate — the SLO
// monitor's W1 park-rate gauge has no single global window the way R1
// does, since W1 parking is tracked per predicate.
func (g *Gate) MeanW1ParkRate() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.predicates) == 0 {
		return 0
	}
	var sum float64
	for _, ps := range g.predicates {
		sum += rollingParkRate(ps.w1Window, ps.w1Filled)
	}
	return sum / float64(len(g.predicates))
}

// EscalationRate reports the fraction of predicates the gate has ever
// seen that are currently escalated to C1, for the SLO monitor's
// c1_escalation_rate gauge.
func (g *Gate) EscalationRate() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.predicates) == 0 {
		return 0
	}
	var escalated int
	for _, ps := range g.predicates {
		if ps.escalated {
			escalated++
		}
	}
	return float64(escalated) / float64(len(g.predicates))
}
