// Package engine wires every other package into one runnable reconciler
// instance. Construction order — scheduler, rings, hooks, and the SLO
// monitor first, then the fiber executors, reconciler, admission gate,
// and ledger sealer that reference them — follows the teacher's
// cmd/server/main.go: build the pieces with no dependencies first, then
// assemble the pieces that hold references to them, with nothing
// circular (spec.md §9).
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/eightbeat/reconciler/internal/admission"
	"github.com/eightbeat/reconciler/internal/beat"
	"github.com/eightbeat/reconciler/internal/config"
	"github.com/eightbeat/reconciler/internal/fiber"
	"github.com/eightbeat/reconciler/internal/hook"
	"github.com/eightbeat/reconciler/internal/kernel"
	"github.com/eightbeat/reconciler/internal/ledger"
	"github.com/eightbeat/reconciler/internal/pulse"
	"github.com/eightbeat/reconciler/internal/receipt"
	"github.com/eightbeat/reconciler/internal/reconcile"
	"github.com/eightbeat/reconciler/internal/ring"
	"github.com/eightbeat/reconciler/internal/slo"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrNoHook is returned by Admit when predicate has no registered hook.
var ErrNoHook = errors.New("engine: predicate has no registered hook")

// Engine is one fully-wired reconciliation pipeline: the rings, one
// fiber/reconciler pair per shard, the admission gate, the hook registry,
// the SLO monitor, and the epoch sealer that drains them at every pulse.
type Engine struct {
	Scheduler  *beat.Scheduler
	Deltas     *ring.DeltaRing
	Assertions *ring.AssertionRing
	Hooks      *hook.Registry
	Monitor    *slo.Monitor
	Admission  *admission.Gate
	Async      admission.AsyncExecutor
	Sealer     *ledger.Sealer
	Lockchain  ledger.Adapter
	Pulses     *pulse.Bus

	nanosPerTick float64

	reconcilers []*reconcile.Reconciler

	pendingMu  sync.Mutex
	pendingLen [beat.TickBudget]map[uint64]int
}

// New builds an Engine from cfg. Lockchain adapter selection ("postgres",
// "grpc", "none") happens here because it is the only component whose
// construction can fail against live infrastructure; every in-process
// component below it always succeeds.
func New(cfg *config.Config) (*Engine, error) {
	hashAlgo := receipt.ParseHashAlgorithm(cfg.Hash.ProvenanceAlgorithm)
	merkleAlgo := ledger.ParseAlgorithm(cfg.Hash.MerkleAlgorithm)

	async := admission.LoggingAsyncExecutor{}

	e := &Engine{
		Scheduler:  beat.New(),
		Deltas:     ring.NewDeltaRing(cfg.Ring.CapacityPerTick),
		Assertions: ring.NewAssertionRing(cfg.Ring.CapacityPerTick),
		Hooks:      hook.New(),
		Monitor:    slo.New(prometheus.DefaultRegisterer),
		Async:      async,
		Admission: admission.NewWithExecutor(admission.Config{
			ParkRateCeiling:       cfg.Admission.ParkRateCeiling,
			WindowSize:            cfg.Admission.WindowSize,
			C1ParkRateThreshold:   cfg.Admission.C1ParkRateThreshold,
			C1EscalationThreshold: cfg.Admission.C1EscalationThreshold,
			CapacityPerCycle:      cfg.Admission.CapacityPerCycle,
		}, async),
		Sealer:       ledger.NewSealer(merkleAlgo, beat.TickBudget),
		Pulses:       pulse.NewBus(),
		nanosPerTick: float64(cfg.Ring.CyclesPerTick),
	}
	for i := range e.pendingLen {
		e.pendingLen[i] = make(map[uint64]int)
	}

	e.reconcilers = make([]*reconcile.Reconciler, cfg.Ring.ShardCount)
	for shard := uint32(0); shard < cfg.Ring.ShardCount; shard++ {
		exec := fiber.New(shard, e.Assertions, cfg.Ring.CyclesPerTick, hashAlgo)
		e.reconcilers[shard] = reconcile.New(exec, hashAlgo)
	}

	adapter, err := buildLockchainAdapter(cfg)
	if err != nil {
		return nil, err
	}
	e.Lockchain = adapter

	return e, nil
}

func buildLockchainAdapter(cfg *config.Config) (ledger.Adapter, error) {
	switch cfg.Lockchain.Adapter {
	case "postgres":
		pg, err := ledger.NewPostgresAdapter(cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("engine: build postgres lockchain adapter: %w", err)
		}
		return &ledger.LoggingAdapter{Inner: pg}, nil
	case "grpc":
		return nil, fmt.Errorf("engine: grpc lockchain adapter requires a dialed client; construct ledger.NewGRPCAdapter directly and assign Engine.Lockchain")
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("engine: unknown lockchain adapter %q", cfg.Lockchain.Adapter)
	}
}

// Reconciler returns the fiber/reconciler pair bound to shard.
func (e *Engine) Reconciler(shard uint32) *reconcile.Reconciler {
	return e.reconcilers[shard%uint32(len(e.reconcilers))]
}

// Admit is the reconciler's admission entrypoint (spec.md §6:
// "admit(triple, predicate) -> Ok(cycle_id) | Err(Full|RejectedByPolicy)").
// l1ResidencyHint is the opaque bool the warm-path predictor collaborator
// supplies for admission criterion (d) (spec.md §4.8); Admit treats it as
// an input it never inspects further, exactly as spec.md requires.
//
// The triple is classified, then either handed to the cold path
// immediately (C1: a predicate already escalated never touches the
// Δ-ring) or stamped with its class and enqueued for this tick's fiber
// dispatch (R1/W1). Either way exactly one receipt results, preserving
// the 100% receipt coverage invariant.
func (e *Engine) Admit(s, p, o, predicate uint64, l1ResidencyHint bool) (cycleID uint64, err error) {
	h, ok := e.Hooks.Lookup(predicate)
	if !ok {
		return 0, ErrNoHook
	}

	cycleID, tick, _ := e.Scheduler.Observe()

	e.pendingMu.Lock()
	proposedLen := e.pendingLen[tick][predicate] + 1
	e.pendingMu.Unlock()

	class, err := e.Admission.Classify(predicate, proposedLen, h.KernelKind.R1Eligible(), l1ResidencyHint)
	if err != nil {
		return 0, err
	}

	if err := e.Admission.Admit(predicate, class); err != nil {
		e.Monitor.RecordAdmission(class, "rejected")
		return 0, err
	}

	if class == receipt.ClassC1 {
		e.finalizeC1(tick, cycleID, h, predicate, s, p, o)
		e.Monitor.RecordAdmission(class, "async")
		return cycleID, nil
	}

	if err := e.Deltas.EnqueueClassed(tick, s, p, o, cycleID, classFlags(class)); err != nil {
		return 0, fmt.Errorf("engine: delta ring: %w", err)
	}

	e.pendingMu.Lock()
	e.pendingLen[tick][predicate]++
	e.pendingMu.Unlock()

	e.Monitor.RecordAdmission(class, "admitted")
	return cycleID, nil
}

// finalizeC1 hands one C1-classified triple to the async executor and
// enqueues a placeholder receipt in the triple's place — C1 work never
// reaches the fiber, so this is the only receipt it ever produces.
func (e *Engine) finalizeC1(tick uint8, cycleID uint64, h *hook.Entry, predicate, s, p, o uint64) {
	if err := e.Async.Finalize(predicate, s, p, o); err != nil {
		log.Printf("engine: async finalize for predicate %d: %v", predicate, err)
	}
	placeholder := receipt.Receipt{
		CycleID:      cycleID,
		HookID:       uint32(h.HookID),
		RuntimeClass: receipt.ClassC1,
		Flags:        receipt.FlagParked,
	}
	if err := e.Assertions.Enqueue(tick, ring.AssertionSlot{CycleID: cycleID, Receipt: placeholder}); err != nil {
		log.Printf("engine: enqueue C1 placeholder receipt for predicate %d: %v", predicate, err)
	}
}

// Advance steps the scheduler by one tick. It drains this tick's Δ-ring
// into per-predicate runs and dispatches them through the reconciler
// (spec.md §2's admission → Δ-ring → fiber → reconciler → A-ring path),
// rolls the admission gate's rolling windows and republishes its rates to
// the SLO monitor, and — on a pulse tick — drains the A-ring's closed
// epoch, seals it, optionally persists it via the configured lockchain
// adapter, and fans the result out to pulse subscribers. A continuity gap
// does not stall the tick: the gapped commitment is not handed to the
// lockchain adapter, the published pulse event is marked Suspect, and the
// pipeline proceeds to the next cycle either way (spec.md §4.7, §4.10).
// The epoch is always sealed with suspect=false: a provenance violation
// seen by recordOutcome is logged and counted, but it does not mark the
// commitment or the pulse event Suspect.
func (e *Engine) Advance(ctx context.Context) (cycle uint64, tick uint8, pulseFired bool, err error) {
	cycle, tick, pulseFired = e.Scheduler.Advance()

	e.dispatchTick(tick, cycle)
	e.advanceAdmission()

	if !pulseFired {
		return cycle, tick, false, nil
	}

	epochStart := cycle - (beat.TickBudget - 1)
	slots := e.Assertions.DrainEpoch()
	commitment, sealErr := e.Sealer.Seal(epochStart, slots, false)

	gapped := sealErr != nil
	if !gapped && e.Lockchain != nil {
		if commitErr := e.Lockchain.Commit(ctx, commitment); commitErr != nil {
			err = fmt.Errorf("engine: lockchain commit: %w", commitErr)
		}
	}

	e.Pulses.Publish(pulse.Event{
		CycleID:       epochStart,
		MerkleRoot:    commitment.Root,
		ReceiptsCount: commitment.ReceiptsCount,
		Suspect:       commitment.Suspect || gapped,
	})

	return cycle, tick, true, err
}

// dispatchTick drains every outstanding Δ-ring slot for tick, batches
// slots sharing a predicate into runs of at most kernel.MaxRunLen, and
// reconciles each run through the shard bound to that predicate.
func (e *Engine) dispatchTick(tick uint8, cycle uint64) {
	type batch struct {
		hook  *hook.Entry
		run   *kernel.Run
		class receipt.RuntimeClass
	}
	batches := make(map[uint64]*batch)

	for {
		slot, ok := e.Deltas.Dequeue(tick)
		if !ok {
			break
		}
		h, found := e.Hooks.Lookup(slot.P)
		if !found {
			// Admitted under a hook that was since unregistered; nothing
			// can reconcile it.
			continue
		}

		b, exists := batches[slot.P]
		if !exists {
			b = &batch{hook: h, run: &kernel.Run{}, class: classFromFlags(slot.Flags)}
			batches[slot.P] = b
		}
		if b.run.Length < kernel.MaxRunLen {
			i := b.run.Length
			b.run.S[i], b.run.P[i], b.run.O[i] = slot.S, slot.P, slot.O
			b.run.Length++
		}
	}

	e.pendingMu.Lock()
	e.pendingLen[tick] = make(map[uint64]int)
	e.pendingMu.Unlock()

	for predicate, b := range batches {
		params := b.hook.Params
		params.P = predicate

		outcome, execErr := e.Reconciler(uint32(predicate)).Reconcile(tick, cycle, b.hook, b.run, params)
		e.recordOutcome(predicate, b.class, outcome, execErr)
	}
}

// recordOutcome folds one reconciled run's result back into the admission
// gate's per-predicate tick-cost estimator and park bookkeeping, and into
// the SLO monitor's per-class streaming summaries.
func (e *Engine) recordOutcome(predicate uint64, class receipt.RuntimeClass, outcome reconcile.Outcome, execErr error) {
	rcpt := outcome.Receipt

	switch {
	case errors.Is(execErr, fiber.ErrGuard), errors.Is(execErr, fiber.ErrBudget):
		e.Admission.RecordPark(predicate, class)
		e.Monitor.RecordAdmission(class, "parked")
	case errors.Is(execErr, reconcile.ErrProvenanceViolation):
		log.Printf("engine: provenance violation for predicate %d hook %d", predicate, rcpt.HookID)
		e.Monitor.RecordAdmission(class, "rejected")
	case execErr != nil && !errors.Is(execErr, fiber.ErrEmpty):
		log.Printf("engine: reconcile error for predicate %d: %v", predicate, execErr)
	}

	if rcpt.ActualTicks > 0 {
		latencySeconds := float64(rcpt.ActualTicks) * e.nanosPerTick / 1e9
		e.Monitor.ObserveTick(rcpt.RuntimeClass, rcpt.ActualTicks, latencySeconds)
		e.Admission.UpdateEstimate(predicate, rcpt.ActualTicks)
	}
}

// advanceAdmission rolls the admission gate's rolling windows, republishes
// its park and escalation rates to the SLO monitor, and emits a
// placeholder receipt for every predicate that escalated to C1 this
// cycle — the escalation event itself is receipted once, independent of
// whichever individual admission triggered it.
func (e *Engine) advanceAdmission() {
	r1ParkRate, _, newlyEscalated := e.Admission.Advance()
	e.Monitor.SetParkRate(receipt.ClassR1, r1ParkRate)
	e.Monitor.SetParkRate(receipt.ClassW1, e.Admission.MeanW1ParkRate())
	e.Monitor.SetEscalationRate(e.Admission.EscalationRate())

	if len(newlyEscalated) == 0 {
		return
	}
	cycle, tick, _ := e.Scheduler.Observe()
	for _, predicate := range newlyEscalated {
		var hookID uint32
		if h, ok := e.Hooks.Lookup(predicate); ok {
			hookID = uint32(h.HookID)
		}
		placeholder := receipt.Receipt{
			CycleID:      cycle,
			HookID:       hookID,
			RuntimeClass: receipt.ClassC1,
			Flags:        receipt.FlagParked,
		}
		if err := e.Assertions.Enqueue(tick, ring.AssertionSlot{CycleID: cycle, Receipt: placeholder}); err != nil {
			log.Printf("engine: enqueue escalation placeholder receipt for predicate %d: %v", predicate, err)
		}
	}
}

func classFromFlags(f ring.Flags) receipt.RuntimeClass {
	switch {
	case f&ring.FlagClassC1 != 0:
		return receipt.ClassC1
	case f&ring.FlagClassW1 != 0:
		return receipt.ClassW1
	default:
		return receipt.ClassR1
	}
}

func classFlags(c receipt.RuntimeClass) ring.Flags {
	switch c {
	case receipt.ClassW1:
		return ring.FlagClassW1
	case receipt.ClassC1:
		return ring.FlagClassC1
	default:
		return 0
	}
}
