package engine

import (
	"context"
	"testing"

	"github.com/eightbeat/reconciler/internal/beat"
	"github.com/eightbeat/reconciler/internal/config"
	"github.com/eightbeat/reconciler/internal/hook"
	"github.com/eightbeat/reconciler/internal/kernel"
	"github.com/eightbeat/reconciler/internal/receipt"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg, _ := config.Load("")
	cfg.Ring.ShardCount = 2
	return cfg
}

func TestNewWiresAllShards(t *testing.T) {
	eng, err := New(testConfig())
	require.NoError(t, err)
	require.Len(t, eng.reconcilers, 2)
	require.NotNil(t, eng.Reconciler(0))
	require.NotNil(t, eng.Reconciler(1))
	require.Nil(t, eng.Lockchain)
}

func TestAdvanceFiresPulseEveryEighthTick(t *testing.T) {
	eng, err := New(testConfig())
	require.NoError(t, err)
	sub := eng.Pulses.Subscribe()
	defer eng.Pulses.Unsubscribe(sub)

	var pulses int
	for i := 0; i < int(beat.TickBudget)*3; i++ {
		_, _, fired, err := eng.Advance(context.Background())
		require.NoError(t, err)
		if fired {
			pulses++
			select {
			case ev := <-sub:
				require.False(t, ev.Suspect)
			default:
				t.Fatal("pulse fired but no event delivered to subscriber")
			}
		}
	}
	require.Equal(t, 3, pulses)
}

func TestReconcileThroughEngineShard(t *testing.T) {
	eng, err := New(testConfig())
	require.NoError(t, err)

	h := &hook.Entry{
		HookID:     1,
		Predicate:  42,
		KernelKind: kernel.KindAskSP,
		Guard:      hook.AllowAll,
		Invariants: []string{"I-TEST"},
	}

	run := &kernel.Run{Length: 1}
	run.S[0], run.P[0] = 7, 42

	outcome, err := eng.Reconciler(0).Reconcile(0, 1, h, run, kernel.Params{S: 7, P: 42})
	require.NoError(t, err)
	require.True(t, outcome.Receipt.AHash != 0)
}

// TestAdmitDrivesFullPipeline exercises the real admission -> Δ-ring ->
// fiber -> reconciler -> A-ring path end to end: Admit enqueues, the next
// Advance call drains and reconciles it, and the resulting receipt lands
// in the sealed epoch's commitment.
func TestAdmitDrivesFullPipeline(t *testing.T) {
	eng, err := New(testConfig())
	require.NoError(t, err)

	_, err = eng.Hooks.Register(42, kernel.KindAskSP, hook.AllowAll, []string{"I-TEST"}, 0)
	require.NoError(t, err)

	sub := eng.Pulses.Subscribe()
	defer eng.Pulses.Unsubscribe(sub)

	cycleID, err := eng.Admit(7, 42, 99, 42, true)
	require.NoError(t, err)
	require.Equal(t, uint64(0), cycleID)

	for i := 0; i < int(beat.TickBudget); i++ {
		_, _, _, err := eng.Advance(context.Background())
		require.NoError(t, err)
	}

	select {
	case ev := <-sub:
		require.Equal(t, uint32(1), ev.ReceiptsCount)
	default:
		t.Fatal("no pulse event delivered for the sealed epoch")
	}
}

// TestAdmitUnregisteredPredicateErrors confirms Admit enforces the hook
// registry precondition (spec.md §6: admit requires a bound predicate).
func TestAdmitUnregisteredPredicateErrors(t *testing.T) {
	eng, err := New(testConfig())
	require.NoError(t, err)

	_, err = eng.Admit(1, 2, 3, 2, true)
	require.ErrorIs(t, err, ErrNoHook)
}

// TestAdmitIneligibleKernelClassifiesW1AndStillDispatches proves a
// Construct8-bound predicate (never R1-eligible) is admitted as W1 and
// still reaches the fiber through the real dispatch path, rather than
// being silently dropped.
func TestAdmitIneligibleKernelClassifiesW1AndStillDispatches(t *testing.T) {
	eng, err := New(testConfig())
	require.NoError(t, err)

	hookID, err := eng.Hooks.Register(9, kernel.KindConstruct8, hook.AllowAll, nil, 0)
	require.NoError(t, err)
	require.NoError(t, eng.Hooks.SetParams(hookID, kernel.Params{
		Template: func(s, p, o uint64) (kernel.Assertion, bool) {
			return kernel.Assertion{S: s, P: p, O: o}, true
		},
	}))

	cycleID, err := eng.Admit(1, 9, 2, 9, true)
	require.NoError(t, err)
	require.Equal(t, uint64(0), cycleID)
	require.Equal(t, uint64(1), eng.Monitor.SnapshotFor(receipt.ClassW1).Admitted)

	for i := 0; i < int(beat.TickBudget); i++ {
		_, _, _, err := eng.Advance(context.Background())
		require.NoError(t, err)
	}
	require.NotZero(t, eng.Monitor.SnapshotFor(receipt.ClassW1).MaxTicksSeen)
}

// TestAdmitWithoutL1ResidencyHintClassifiesW1 exercises admission
// criterion (d) through the real Admit entrypoint.
func TestAdmitWithoutL1ResidencyHintClassifiesW1(t *testing.T) {
	eng, err := New(testConfig())
	require.NoError(t, err)

	_, err = eng.Hooks.Register(5, kernel.KindAskSP, hook.AllowAll, nil, 0)
	require.NoError(t, err)

	cycleID, err := eng.Admit(1, 5, 2, 5, false)
	require.NoError(t, err)
	require.Equal(t, uint64(0), cycleID)
	require.Equal(t, uint64(1), eng.Monitor.SnapshotFor(receipt.ClassW1).Admitted)
}

// TestClassFlagsRoundTrip locks in the R1/W1/C1 <-> ring.Flags mapping
// Admit and dispatchTick rely on to carry a slot's admitted class across
// the Δ-ring.
func TestClassFlagsRoundTrip(t *testing.T) {
	for _, class := range []receipt.RuntimeClass{receipt.ClassR1, receipt.ClassW1, receipt.ClassC1} {
		require.Equal(t, class, classFromFlags(classFlags(class)))
	}
}
