// Package kernel implements the branchless operation library that the
// spec calls the Kernel Library (spec.md §4.4): six R1-eligible kernels
// over an 8-wide SoA run, plus the W1-only Construct8 emitter.
//
// Go has no portable SIMD intrinsic package and no repo in the reference
// corpus reaches for a third-party SIMD/assembly kernel library, so each
// kernel here is written as a fixed-length sequence of scalar comparisons
// and mask operations over Run's 8-element arrays — the idiomatic way to
// express "branchless over 8 lanes" without cgo. See DESIGN.md.
package kernel

// MaxRunLen is the Chatman Constant's companion bound: the maximum number
// of triples a single R1 run may hold.
const MaxRunLen = 8

// Kind identifies which of the six R1 kernels (plus Construct8) a hook is
// bound to. It is a closed variant, dispatched through a static table
// (spec.md §9): no open polymorphism.
type Kind uint8

const (
	KindAskSP Kind = iota
	KindAskSPO
	KindCountSpGe
	KindValidateDatatype
	KindUniqueSP
	KindCompareOEq
	KindConstruct8
	numKinds
)

func (k Kind) String() string {
	switch k {
	case KindAskSP:
		return "AskSP"
	case KindAskSPO:
		return "AskSPO"
	case KindCountSpGe:
		return "CountSpGe"
	case KindValidateDatatype:
		return "ValidateDatatype"
	case KindUniqueSP:
		return "UniqueSP"
	case KindCompareOEq:
		return "CompareOEq"
	case KindConstruct8:
		return "Construct8"
	default:
		return "Unknown"
	}
}

// R1Eligible reports whether k may run on the hot path. Construct8 is
// declared W1-ineligible-for-R1 unconditionally by policy (spec.md §4.4,
// §9 "Open questions").
func (k Kind) R1Eligible() bool {
	return k != KindConstruct8 && k < numKinds
}

// Run is a pinned SoA window of at most MaxRunLen triples sharing one
// predicate (spec.md §3 "SoA Run"). The arrays are over-allocated to
// MaxRunLen regardless of Length so that a fixed-length scan never reads
// past the backing array, and so vectorized loads — were this compiled to
// use real SIMD lanes — would never read past allocated memory (spec.md §9
// "SoA padding").
type Run struct {
	S, P, O [MaxRunLen]uint64
	// Datatype holds a per-lane datatype tag, consulted only by
	// ValidateDatatype via an auxiliary pointer per spec.md §4.4.
	Datatype [MaxRunLen]uint32
	Length   int
}

// tailMask returns a boolean mask, one entry per lane, true for lanes
// within [0, length). Indexed by length rather than branching per lane,
// per spec.md §4.4 ("lookup, not branch").
var tailMasks = [MaxRunLen + 1][MaxRunLen]bool{
	{false, false, false, false, false, false, false, false},
	{true, false, false, false, false, false, false, false},
	{true, true, false, false, false, false, false, false},
	{true, true, true, false, false, false, false, false},
	{true, true, true, true, false, false, false, false},
	{true, true, true, true, true, false, false, false},
	{true, true, true, true, true, true, false, false},
	{true, true, true, true, true, true, true, false},
	{true, true, true, true, true, true, true, true},
}

func tailMask(length int) [MaxRunLen]bool {
	return tailMasks[length]
}

// AskSP reports whether (s, p) appears in run within its valid lanes.
func AskSP(run *Run, s, p uint64) bool {
	mask := tailMask(run.Length)
	var found bool
	for i := 0; i < MaxRunLen; i++ {
		hit := mask[i] && run.S[i] == s && run.P[i] == p
		found = found || hit
	}
	return found
}

// AskSPO reports whether (s, p, o) appears in run.
func AskSPO(run *Run, s, p, o uint64) bool {
	mask := tailMask(run.Length)
	var found bool
	for i := 0; i < MaxRunLen; i++ {
		hit := mask[i] && run.S[i] == s && run.P[i] == p && run.O[i] == o
		found = found || hit
	}
	return found
}

// CountSpGe counts lanes matching (s, p) whose object is >= threshold.
func CountSpGe(run *Run, s, p, threshold uint64) uint32 {
	mask := tailMask(run.Length)
	var count uint32
	for i := 0; i < MaxRunLen; i++ {
		hit := mask[i] && run.S[i] == s && run.P[i] == p && run.O[i] >= threshold
		if hit {
			count++
		}
	}
	return count
}

// ValidateDatatype reports whether every valid lane matching (s, p) carries
// the expected datatype tag. Vacuously true over an empty run or a run
// with no (s, p) match, per spec.md §4.4. An unknown tag (not present in
// run.Datatype, i.e. zero) fails the affected lane.
func ValidateDatatype(run *Run, s, p uint64, dtype uint32) bool {
	mask := tailMask(run.Length)
	ok := true
	for i := 0; i < MaxRunLen; i++ {
		matches := mask[i] && run.S[i] == s && run.P[i] == p
		laneOK := !matches || (run.Datatype[i] != 0 && run.Datatype[i] == dtype)
		ok = ok && laneOK
	}
	return ok
}

// UniqueSP reports whether no two valid lanes share the same (s, p) pair.
// Vacuously true over an empty run.
func UniqueSP(run *Run) bool {
	mask := tailMask(run.Length)
	unique := true
	for i := 0; i < MaxRunLen; i++ {
		for j := 0; j < MaxRunLen; j++ {
			dup := i != j && mask[i] && mask[j] && run.S[i] == run.S[j] && run.P[i] == run.P[j]
			unique = unique && !dup
		}
	}
	return unique
}

// CompareOEq returns an 8-bit mask with bit i set when lane i matches
// (s, p) and its object equals oRef. A zero mask over an empty run.
func CompareOEq(run *Run, s, p, oRef uint64) uint8 {
	mask := tailMask(run.Length)
	var out uint8
	for i := 0; i < MaxRunLen; i++ {
		hit := mask[i] && run.S[i] == s && run.P[i] == p && run.O[i] == oRef
		if hit {
			out |= 1 << uint(i)
		}
	}
	return out
}
