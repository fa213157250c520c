package fiber

import (
	"testing"

	"github.com/eightbeat/reconciler/internal/hook"
	"github.com/eightbeat/reconciler/internal/kernel"
	"github.com/eightbeat/reconciler/internal/receipt"
	"github.com/eightbeat/reconciler/internal/ring"
	"github.com/stretchr/testify/require"
)

func runOf(triples ...[3]uint64) *kernel.Run {
	r := &kernel.Run{Length: len(triples)}
	for i, t := range triples {
		r.S[i], r.P[i], r.O[i] = t[0], t[1], t[2]
	}
	return r
}

// slowClock lets tests force a measured over-budget execution deterministically.
type slowClock struct{ calls int }

func (c *slowClock) Now() int64 {
	c.calls++
	if c.calls%2 == 1 {
		return 0
	}
	return 12 // 12 "ticks" worth of nanos at NanosPerTick=1
}

func TestExecuteAskSPHit(t *testing.T) {
	assertions := ring.NewAssertionRing(8)
	exec := New(0, assertions, 1, receipt.HashFNV1a64)

	h := &hook.Entry{HookID: 1, KernelKind: kernel.KindAskSP, Guard: hook.AllowAll}
	run := runOf([3]uint64{1, 7, 42})

	rcpt, err := exec.Execute(0, 1, h, run, kernel.Params{S: 1, P: 7})
	require.NoError(t, err)
	require.GreaterOrEqual(t, rcpt.ActualTicks, uint32(1))
	require.LessOrEqual(t, rcpt.ActualTicks, uint32(8))

	slot, ok := assertions.Dequeue(0)
	require.True(t, ok)
	require.Equal(t, rcpt.AHash, slot.Receipt.AHash)
}

func TestExecuteGuardRejectsAndStillEmitsReceipt(t *testing.T) {
	assertions := ring.NewAssertionRing(8)
	exec := New(0, assertions, 1, receipt.HashFNV1a64)

	h := &hook.Entry{HookID: 2, KernelKind: kernel.KindAskSP, Guard: func(s, p, o uint64) bool { return false }}
	run := runOf([3]uint64{1, 7, 42})

	_, err := exec.Execute(0, 1, h, run, kernel.Params{S: 1, P: 7})
	require.ErrorIs(t, err, ErrGuard)

	_, ok := assertions.Dequeue(0)
	require.True(t, ok, "guard failures still preserve receipt coverage")
}

func TestExecuteBudgetViolationParks(t *testing.T) {
	assertions := ring.NewAssertionRing(8)
	exec := New(0, assertions, 1, receipt.HashFNV1a64)
	exec.Clock = &slowClock{}

	h := &hook.Entry{HookID: 3, KernelKind: kernel.KindAskSP, Guard: hook.AllowAll}
	run := runOf([3]uint64{1, 7, 42})

	rcpt, err := exec.Execute(0, 1, h, run, kernel.Params{S: 1, P: 7})
	require.ErrorIs(t, err, ErrBudget)
	require.Equal(t, receipt.ClassW1, rcpt.RuntimeClass)
	require.NotZero(t, rcpt.Flags&receipt.FlagParked)
}

func TestExecuteEmptyRunIsSoft(t *testing.T) {
	assertions := ring.NewAssertionRing(8)
	exec := New(0, assertions, 1, receipt.HashFNV1a64)

	h := &hook.Entry{HookID: 4, KernelKind: kernel.KindAskSP, Guard: hook.AllowAll}
	run := &kernel.Run{}

	rcpt, err := exec.Execute(0, 1, h, run, kernel.Params{S: 1, P: 7})
	require.ErrorIs(t, err, ErrEmpty)
	require.GreaterOrEqual(t, rcpt.ActualTicks, uint32(1))
}

func TestExecuteConstruct8RoutesW1(t *testing.T) {
	assertions := ring.NewAssertionRing(8)
	exec := New(0, assertions, 1, receipt.HashFNV1a64)

	tmpl := func(s, p, o uint64) (kernel.Assertion, bool) {
		return kernel.Assertion{S: s, P: p, O: o + 1}, true
	}
	h := &hook.Entry{HookID: 5, KernelKind: kernel.KindConstruct8, Guard: hook.AllowAll}
	run := runOf([3]uint64{1, 2, 3})

	rcpt, err := exec.Execute(0, 1, h, run, kernel.Params{Template: tmpl})
	require.NoError(t, err)
	require.Equal(t, receipt.ClassW1, rcpt.RuntimeClass)
}
