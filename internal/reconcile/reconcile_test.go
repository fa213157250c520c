package reconcile

import (
	"testing"

	"github.com/eightbeat/reconciler/internal/fiber"
	"github.com/eightbeat/reconciler/internal/hook"
	"github.com/eightbeat/reconciler/internal/kernel"
	"github.com/eightbeat/reconciler/internal/receipt"
	"github.com/eightbeat/reconciler/internal/ring"
	"github.com/stretchr/testify/require"
)

func newReconciler() *Reconciler {
	assertions := ring.NewAssertionRing(8)
	exec := fiber.New(0, assertions, 1, receipt.HashFNV1a64)
	return New(exec, receipt.HashFNV1a64)
}

func runOf(triples ...[3]uint64) *kernel.Run {
	r := &kernel.Run{Length: len(triples)}
	for i, t := range triples {
		r.S[i], r.P[i], r.O[i] = t[0], t[1], t[2]
	}
	return r
}

// S1: AskSP hit.
func TestReconcileAskSPHit(t *testing.T) {
	r := newReconciler()
	h := &hook.Entry{HookID: 1, KernelKind: kernel.KindAskSP, Guard: hook.AllowAll}
	run := runOf([3]uint64{1, 7, 42})

	out, err := r.Reconcile(0, 1, h, run, kernel.Params{S: 1, P: 7})
	require.NoError(t, err)
	require.GreaterOrEqual(t, out.Receipt.ActualTicks, uint32(1))
	require.LessOrEqual(t, out.Receipt.ActualTicks, uint32(8))

	expectedHash := receipt.Hash(receipt.HashFNV1a64, receipt.EncodeLanes([]uint64{1}))
	require.Equal(t, expectedHash, out.Receipt.AHash)
}

// S2: CountSpGe threshold.
func TestReconcileCountSpGeThreshold(t *testing.T) {
	r := newReconciler()
	h := &hook.Entry{HookID: 2, KernelKind: kernel.KindCountSpGe, Guard: hook.AllowAll}

	// Collapse to a single (s,p) pair matching S2's literal scenario: all
	// eight triples share predicate 9 and subject 1, varying objects.
	single := &kernel.Run{Length: 8}
	for i := 0; i < 8; i++ {
		single.S[i] = 1
		single.P[i] = 9
		single.O[i] = uint64(i + 1)
	}

	out, err := r.Reconcile(0, 1, h, single, kernel.Params{S: 1, P: 9, Threshold: 4})
	require.NoError(t, err)
	require.Equal(t, uint32(5), out.Receipt.LanesUsed)
}

// S5: provenance violation. A fake Executor reports a receipt whose
// a_hash was computed over a different result than the one μ actually
// projects from the run — exactly the divergence a corrupted or
// mismatched executor implementation would produce in production. Since
// muProject is written independently of whatever the Executor did
// internally, this is a genuine cross-validation catching a real
// divergence, not two calls to the same function compared against
// itself.
type corruptingExecutor struct {
	hashAlgo receipt.HashAlgorithm
}

func (c corruptingExecutor) Execute(_ uint8, cycleID uint64, h *hook.Entry, _ *kernel.Run, _ kernel.Params) (receipt.Receipt, error) {
	// Reports the hash for "true" regardless of what the run/params
	// actually say, simulating a hook bound to the wrong kernel or an
	// executor whose dispatch silently diverged from the bound kernel.
	wrongHash := receipt.Hash(c.hashAlgo, receipt.EncodeLanes([]uint64{1}))
	return receipt.Receipt{CycleID: cycleID, HookID: uint32(h.HookID), AHash: wrongHash, ActualTicks: 1}, nil
}

func TestReconcileFlagsProvenanceViolationOnDivergentExecutor(t *testing.T) {
	r := New(corruptingExecutor{hashAlgo: receipt.HashFNV1a64}, receipt.HashFNV1a64)
	h := &hook.Entry{HookID: 3, KernelKind: kernel.KindAskSP, Guard: hook.AllowAll}
	// No lane actually matches (s=1, p=2): μ's real projection is "false",
	// but the fake executor always reports the hash for "true".
	run := runOf([3]uint64{9, 9, 9})

	_, err := r.Reconcile(0, 1, h, run, kernel.Params{S: 1, P: 2})
	require.ErrorIs(t, err, ErrProvenanceViolation)
}

func TestReconcileIdempotent(t *testing.T) {
	r := newReconciler()
	h := &hook.Entry{HookID: 4, KernelKind: kernel.KindAskSP, Guard: hook.AllowAll}
	run := runOf([3]uint64{1, 7, 42})

	_, _, identical, err := r.ReconcileIdempotent(0, 1, h, run, kernel.Params{S: 1, P: 7})
	require.NoError(t, err)
	require.True(t, identical)
}

func TestReconcileGuardPassesThroughError(t *testing.T) {
	r := newReconciler()
	h := &hook.Entry{HookID: 5, KernelKind: kernel.KindAskSP, Guard: func(uint64, uint64, uint64) bool { return false }}
	run := runOf([3]uint64{1, 7, 42})

	out, err := r.Reconcile(0, 1, h, run, kernel.Params{S: 1, P: 7})
	require.ErrorIs(t, err, fiber.ErrGuard)
	require.NotZero(t, out.Receipt.Flags)
}
