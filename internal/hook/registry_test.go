package hook

import (
	"testing"

	"github.com/eightbeat/reconciler/internal/kernel"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	id, err := r.Register(11, kernel.KindAskSPO, nil, nil, 0)
	require.NoError(t, err)
	require.NotZero(t, id)

	entry, ok := r.Lookup(11)
	require.True(t, ok)
	require.Equal(t, kernel.KindAskSPO, entry.KernelKind)
}

func TestDuplicateRegistrationFails(t *testing.T) {
	r := New()
	_, err := r.Register(11, kernel.KindAskSPO, nil, nil, 0)
	require.NoError(t, err)

	_, err = r.Register(11, kernel.KindAskSPO, nil, nil, 0)
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestFreezeRejectsFurtherRegistration(t *testing.T) {
	r := New()
	_, _ = r.Register(1, kernel.KindAskSP, nil, nil, 0)
	r.Freeze()
	require.True(t, r.Frozen())

	_, err := r.Register(2, kernel.KindAskSP, nil, nil, 0)
	require.ErrorIs(t, err, ErrFrozen)

	entry, ok := r.Lookup(1)
	require.True(t, ok)
	require.Equal(t, uint64(1), entry.Predicate)
}

func TestLookupUnknownPredicate(t *testing.T) {
	r := New()
	_, ok := r.Lookup(999)
	require.False(t, ok)
	require.False(t, r.Validate(999, 1, 2, 3))
}

func TestGuardValidation(t *testing.T) {
	r := New()
	guard := func(s, p, o uint64) bool { return s != 0 }
	_, _ = r.Register(5, kernel.KindAskSP, guard, nil, 0)

	require.True(t, r.Validate(5, 1, 5, 0))
	require.False(t, r.Validate(5, 0, 5, 0))
}

func TestSetParamsBindsStaticKernelArguments(t *testing.T) {
	r := New()
	id, _ := r.Register(6, kernel.KindCountSpGe, nil, nil, 0)

	require.NoError(t, r.SetParams(id, kernel.Params{S: 1, P: 6, Threshold: 4}))

	entry, ok := r.LookupByID(id)
	require.True(t, ok)
	require.Equal(t, uint64(4), entry.Params.Threshold)
}

func TestSetParamsUnknownHookIDErrors(t *testing.T) {
	r := New()
	require.ErrorIs(t, r.SetParams(999, kernel.Params{}), ErrNotFound)
}

func TestSetParamsAfterFreezeErrors(t *testing.T) {
	r := New()
	id, _ := r.Register(7, kernel.KindAskSP, nil, nil, 0)
	r.Freeze()

	require.ErrorIs(t, r.SetParams(id, kernel.Params{}), ErrFrozen)
}
