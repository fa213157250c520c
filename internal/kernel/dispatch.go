package kernel

// Params carries the scalar arguments a kernel invocation needs beyond the
// pinned Run, as bound by the hook that selected it. Only the fields the
// selected Kind consumes are meaningful; the rest are ignored.
type Params struct {
	S, P, O     uint64
	Threshold   uint64
	Datatype    uint32
	Template    Template
}

// Result is the closed-variant output of a single kernel invocation: at
// most one of the typed fields is meaningful, selected by Kind.
type Result struct {
	Kind        Kind
	Bool        bool
	Count       uint32
	Mask        uint8
	Assertions  []Assertion
}

// dispatchFn is the shape every entry in the dispatch table shares.
type dispatchFn func(run *Run, p Params) Result

// table is the jump-free dispatch table indexed by Kind, resolved once at
// process start (spec.md §4.4 "a jump-free table indexed by kernel_kind").
var table = [numKinds]dispatchFn{
	KindAskSP: func(run *Run, p Params) Result {
		return Result{Kind: KindAskSP, Bool: AskSP(run, p.S, p.P)}
	},
	KindAskSPO: func(run *Run, p Params) Result {
		return Result{Kind: KindAskSPO, Bool: AskSPO(run, p.S, p.P, p.O)}
	},
	KindCountSpGe: func(run *Run, p Params) Result {
		return Result{Kind: KindCountSpGe, Count: CountSpGe(run, p.S, p.P, p.Threshold)}
	},
	KindValidateDatatype: func(run *Run, p Params) Result {
		return Result{Kind: KindValidateDatatype, Bool: ValidateDatatype(run, p.S, p.P, p.Datatype)}
	},
	KindUniqueSP: func(run *Run, p Params) Result {
		return Result{Kind: KindUniqueSP, Bool: UniqueSP(run)}
	},
	KindCompareOEq: func(run *Run, p Params) Result {
		return Result{Kind: KindCompareOEq, Mask: CompareOEq(run, p.S, p.P, p.O)}
	},
	KindConstruct8: func(run *Run, p Params) Result {
		return Result{Kind: KindConstruct8, Assertions: Construct8(run, p.Template)}
	},
}

// Dispatch invokes the kernel bound to kind over run with params, via a
// single indexed load into the static table (spec.md §4.4, §9).
func Dispatch(kind Kind, run *Run, params Params) Result {
	if kind >= numKinds {
		return Result{Kind: kind}
	}
	return table[kind](run, params)
}

// LanesUsed derives the receipt's lanes_used field from a kernel Result:
// popcount of the output mask, or the declared fanout for non-mask
// kernels (spec.md §4.5).
func (r Result) LanesUsed() uint32 {
	switch r.Kind {
	case KindCompareOEq:
		return uint32(popcount8(r.Mask))
	case KindCountSpGe:
		return r.Count
	case KindConstruct8:
		return uint32(len(r.Assertions))
	default:
		if r.Bool {
			return 1
		}
		return 0
	}
}

func popcount8(b uint8) int {
	n := 0
	for b != 0 {
		n += int(b & 1)
		b >>= 1
	}
	return n
}
