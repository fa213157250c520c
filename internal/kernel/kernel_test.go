package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func runOf(triples ...[3]uint64) *Run {
	r := &Run{Length: len(triples)}
	for i, t := range triples {
		r.S[i], r.P[i], r.O[i] = t[0], t[1], t[2]
	}
	return r
}

func TestAskSPHit(t *testing.T) {
	run := runOf([3]uint64{1, 7, 42})
	require.True(t, AskSP(run, 1, 7))
	require.False(t, AskSP(run, 1, 8))
}

func TestAskSPEmptyRun(t *testing.T) {
	run := &Run{}
	require.False(t, AskSP(run, 1, 7))
}

func TestCountSpGeThreshold(t *testing.T) {
	// Single (s,p) pair: CountSpGe counts the matching lanes with o >= threshold.
	run := runOf(
		[3]uint64{1, 9, 1}, [3]uint64{1, 9, 2}, [3]uint64{1, 9, 3}, [3]uint64{1, 9, 4},
		[3]uint64{1, 9, 5}, [3]uint64{1, 9, 6}, [3]uint64{1, 9, 7}, [3]uint64{1, 9, 8},
	)
	require.Equal(t, uint32(5), CountSpGe(run, 1, 9, 4))
	require.Equal(t, uint32(0), CountSpGe(run, 2, 9, 4))
}

func TestValidateDatatypeVacuousOnEmpty(t *testing.T) {
	run := &Run{}
	require.True(t, ValidateDatatype(run, 1, 2, 3))
}

func TestValidateDatatypeUnknownTagFails(t *testing.T) {
	run := runOf([3]uint64{1, 2, 3})
	run.Datatype[0] = 0 // unknown
	require.False(t, ValidateDatatype(run, 1, 2, 5))
}

func TestUniqueSPDetectsDuplicate(t *testing.T) {
	run := runOf([3]uint64{1, 2, 3}, [3]uint64{1, 2, 99})
	require.False(t, UniqueSP(run))
}

func TestUniqueSPVacuousOnEmpty(t *testing.T) {
	require.True(t, UniqueSP(&Run{}))
}

func TestCompareOEqMask(t *testing.T) {
	run := runOf([3]uint64{1, 2, 5}, [3]uint64{1, 2, 9}, [3]uint64{1, 2, 5})
	mask := CompareOEq(run, 1, 2, 5)
	require.Equal(t, uint8(0b101), mask)
}

func TestConstruct8EmitsPerLane(t *testing.T) {
	run := runOf([3]uint64{1, 2, 3}, [3]uint64{4, 5, 6})
	tmpl := func(s, p, o uint64) (Assertion, bool) {
		return Assertion{S: s, P: p, O: o + 1}, true
	}
	out := Construct8(run, tmpl)
	require.Len(t, out, 2)
	require.Equal(t, uint64(4), out[0].O)
}

func TestDispatchTableCovers(t *testing.T) {
	run := runOf([3]uint64{1, 7, 42})
	res := Dispatch(KindAskSP, run, Params{S: 1, P: 7})
	require.True(t, res.Bool)
	require.Equal(t, uint32(1), res.LanesUsed())
}

func TestConstruct8IsNotR1Eligible(t *testing.T) {
	require.False(t, KindConstruct8.R1Eligible())
	require.True(t, KindAskSP.R1Eligible())
}
