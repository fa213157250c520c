// Package reconcile implements μ, the reconciliation function, and its
// provenance verification: A = μ(O) with hash(A) = hash(μ(O)) (spec.md
// §4.6). The verdict-assembly shape — run independent checks, compare
// results, surface a typed failure — is grounded on the teacher's
// internal/escrow/gate.go ProcessSignal, which assembles a release
// decision from independently-arriving signals the same way this
// reconciler assembles a verified result from independently-computed
// hashes.
package reconcile

import (
	"errors"

	"github.com/eightbeat/reconciler/internal/fiber"
	"github.com/eightbeat/reconciler/internal/hook"
	"github.com/eightbeat/reconciler/internal/kernel"
	"github.com/eightbeat/reconciler/internal/receipt"
)

// ErrProvenanceViolation is fatal to a single reconciliation attempt: the
// hash the fiber executor reported over its emitted assertions diverged
// from the hash an independently-computed projection of the same delta
// produces (spec.md §4.6, §7).
var ErrProvenanceViolation = errors.New("reconcile: provenance hash mismatch")

// Executor is the fiber-side collaborator Reconcile drives: pin a run,
// dispatch its bound kernel, enqueue the resulting receipt and
// assertions, and report the receipt back. Declared as an interface
// (rather than depending on *fiber.Executor directly) so the provenance
// cross-check below compares against a genuinely independent
// implementation in tests — including a deliberately corrupted one —
// without reaching into fiber's internals.
type Executor interface {
	Execute(tick uint8, cycleID uint64, h *hook.Entry, run *kernel.Run, params kernel.Params) (receipt.Receipt, error)
}

// Reconciler orchestrates guard validation (delegated to the Executor),
// kernel dispatch, receipt construction, and provenance-hash
// verification.
type Reconciler struct {
	Exec     Executor
	HashAlgo receipt.HashAlgorithm
}

// New builds a Reconciler around an already-constructed Executor.
func New(exec Executor, hashAlgo receipt.HashAlgorithm) *Reconciler {
	return &Reconciler{Exec: exec, HashAlgo: hashAlgo}
}

// Outcome is the result of one Reconcile call.
type Outcome struct {
	Assertions []kernel.Assertion
	Receipt    receipt.Receipt
}

// Reconcile executes the hook's guard and kernel via the Executor, then
// independently recomputes μ's projection of the same run via muProject
// — a separately-written implementation of the same six kernel semantics
// that never calls kernel.Dispatch or any kernel-package helper — and
// verifies that its hash matches the receipt's a_hash. Guard and Budget
// outcomes from the Executor are passed through unchanged (they are not
// provenance failures); a hash mismatch on an otherwise-successful
// execution is reported as ErrProvenanceViolation, fatal to this
// reconciliation attempt regardless of the underlying kernel outcome.
func (r *Reconciler) Reconcile(tick uint8, cycleID uint64, h *hook.Entry, run *kernel.Run, params kernel.Params) (Outcome, error) {
	rcpt, execErr := r.Exec.Execute(tick, cycleID, h, run, params)

	if execErr != nil && !errors.Is(execErr, fiber.ErrEmpty) {
		// Guard/Budget: the executor already preserved receipt coverage.
		return Outcome{Receipt: rcpt}, execErr
	}

	muResult := muProject(h.KernelKind, run, params)
	muHash := muHash(r.HashAlgo, muResult)

	if muHash != rcpt.AHash {
		return Outcome{Receipt: rcpt}, ErrProvenanceViolation
	}

	var assertions []kernel.Assertion
	if muResult.Kind == kernel.KindConstruct8 {
		assertions = muResult.Assertions
	}

	return Outcome{Assertions: assertions, Receipt: rcpt}, execErr
}

// ReconcileIdempotent re-reconciles the same (hook, run, params) pair and
// asserts μ∘μ = μ: the second application must produce the same
// assertions and the same a_hash as the first (spec.md §4.6, §8). It is a
// test-only entry point; production callers never need to reconcile twice.
func (r *Reconciler) ReconcileIdempotent(tick uint8, cycleID uint64, h *hook.Entry, run *kernel.Run, params kernel.Params) (first, second Outcome, identical bool, err error) {
	first, err = r.Reconcile(tick, cycleID, h, run, params)
	if err != nil && !errors.Is(err, fiber.ErrEmpty) {
		return first, Outcome{}, false, err
	}
	second, err = r.Reconcile(tick, cycleID, h, run, params)
	if err != nil && !errors.Is(err, fiber.ErrEmpty) {
		return first, second, false, err
	}
	identical = first.Receipt.AHash == second.Receipt.AHash && assertionsEqual(first.Assertions, second.Assertions)
	return first, second, identical, nil
}

func assertionsEqual(a, b []kernel.Assertion) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// muProject independently reimplements each kernel's semantics directly
// against run's SoA columns, bounded by run.Length rather than the
// branchless tail-mask trick the kernel package uses. It deliberately
// does not call kernel.Dispatch, kernel.AskSP, or any other kernel
// package helper: the provenance check below is only meaningful as a
// cross-check between two independently-written implementations of μ,
// not the same function compared against itself (spec.md §4.6's N-version
// consistency requirement).
func muProject(kind kernel.Kind, run *kernel.Run, params kernel.Params) kernel.Result {
	switch kind {
	case kernel.KindAskSP:
		for i := 0; i < run.Length; i++ {
			if run.S[i] == params.S && run.P[i] == params.P {
				return kernel.Result{Kind: kind, Bool: true}
			}
		}
		return kernel.Result{Kind: kind}

	case kernel.KindAskSPO:
		for i := 0; i < run.Length; i++ {
			if run.S[i] == params.S && run.P[i] == params.P && run.O[i] == params.O {
				return kernel.Result{Kind: kind, Bool: true}
			}
		}
		return kernel.Result{Kind: kind}

	case kernel.KindCountSpGe:
		var count uint32
		for i := 0; i < run.Length; i++ {
			if run.S[i] == params.S && run.P[i] == params.P && run.O[i] >= params.Threshold {
				count++
			}
		}
		return kernel.Result{Kind: kind, Count: count}

	case kernel.KindValidateDatatype:
		ok := true
		for i := 0; i < run.Length; i++ {
			if run.S[i] != params.S || run.P[i] != params.P {
				continue
			}
			if run.Datatype[i] == 0 || run.Datatype[i] != params.Datatype {
				ok = false
			}
		}
		return kernel.Result{Kind: kind, Bool: ok}

	case kernel.KindUniqueSP:
		seen := make(map[[2]uint64]struct{}, run.Length)
		unique := true
		for i := 0; i < run.Length; i++ {
			key := [2]uint64{run.S[i], run.P[i]}
			if _, dup := seen[key]; dup {
				unique = false
			}
			seen[key] = struct{}{}
		}
		return kernel.Result{Kind: kind, Bool: unique}

	case kernel.KindCompareOEq:
		var mask uint8
		for i := 0; i < run.Length; i++ {
			if run.S[i] == params.S && run.P[i] == params.P && run.O[i] == params.O {
				mask |= 1 << uint(i)
			}
		}
		return kernel.Result{Kind: kind, Mask: mask}

	case kernel.KindConstruct8:
		if params.Template == nil {
			return kernel.Result{Kind: kind}
		}
		var assertions []kernel.Assertion
		for i := 0; i < run.Length; i++ {
			if a, ok := params.Template(run.S[i], run.P[i], run.O[i]); ok {
				assertions = append(assertions, a)
			}
		}
		return kernel.Result{Kind: kind, Assertions: assertions}

	default:
		return kernel.Result{Kind: kind}
	}
}

// muHash serializes a kernel Result the same way fiber.Executor's
// provenanceHash does, over the same hash algorithm, so a correct
// implementation on both sides always agrees; the two functions are
// independent only in how they arrive at the Result, not in how a Result
// is turned into a hash — the wire contract requires identical framing
// on both sides.
func muHash(algo receipt.HashAlgorithm, result kernel.Result) uint64 {
	switch result.Kind {
	case kernel.KindAskSP, kernel.KindAskSPO, kernel.KindUniqueSP, kernel.KindValidateDatatype:
		var v uint64
		if result.Bool {
			v = 1
		}
		return receipt.Hash(algo, receipt.EncodeLanes([]uint64{v}))
	case kernel.KindCountSpGe:
		return receipt.Hash(algo, receipt.EncodeLanes([]uint64{uint64(result.Count)}))
	case kernel.KindCompareOEq:
		return receipt.Hash(algo, receipt.EncodeLanes([]uint64{uint64(result.Mask)}))
	case kernel.KindConstruct8:
		lanes := make([]uint64, 0, 3*len(result.Assertions))
		for _, a := range result.Assertions {
			lanes = append(lanes, a.S, a.P, a.O)
		}
		return receipt.Hash(algo, receipt.EncodeLanes(lanes))
	default:
		return 0
	}
}
