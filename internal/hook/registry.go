// Package hook implements the predicate-keyed Hook Registry (spec.md
// §4.3): a cold-build, hot-read table mapping predicate to kernel binding,
// guarded by an explicit Open→Frozen state transition the way
// internal/circuitbreaker models CLOSED/OPEN/HALF_OPEN in the teacher
// backend, and guarded by a plain mutex-protected map pre-freeze the way
// the teacher's escrow gate guards its holding map.
package hook

import (
	"errors"
	"sync"

	"github.com/eightbeat/reconciler/internal/kernel"
)

// ErrDuplicate is returned by Register when predicate already has a hook.
var ErrDuplicate = errors.New("hook: predicate already registered")

// ErrFrozen is returned by Register once the registry has transitioned to
// Frozen; registration is only legal in Open (spec.md §4.3).
var ErrFrozen = errors.New("hook: registry is frozen")

// ErrNotFound is returned by SetParams when hookID has no registered
// entry.
var ErrNotFound = errors.New("hook: no hook registered with that id")

// Guard is a pure u64³ → bool validation function with no allocation and
// no captured mutable state (spec.md §4.4, §9).
type Guard func(s, p, o uint64) bool

// AllowAll is the trivial guard that admits every triple.
func AllowAll(uint64, uint64, uint64) bool { return true }

// Entry is one registered (predicate, kernel, guard) binding (spec.md §3
// "Hook Entry").
type Entry struct {
	HookID           uint64
	Predicate        uint64
	KernelKind       kernel.Kind
	Guard            Guard
	Invariants       []string
	CompileTimestamp int64
	// Params carries the static scalar arguments the bound kernel needs
	// beyond the (s, p, o) of an admitted triple — a CountSpGe threshold,
	// a ValidateDatatype tag, a Construct8 template. Bound via SetParams;
	// the zero value is valid for kernels that only consume (s, p, o).
	Params kernel.Params
}

// state is the registry's Open/Frozen state.
type state uint8

const (
	stateOpen state = iota
	stateFrozen
)

// Registry is the predicate → hook entry table. The zero value is not
// usable; construct with New.
type Registry struct {
	mu       sync.RWMutex
	st       state
	byPred   map[uint64]*Entry
	byID     map[uint64]*Entry
	nextID   uint64
}

// New returns an empty, Open registry.
func New() *Registry {
	return &Registry{
		byPred: make(map[uint64]*Entry),
		byID:   make(map[uint64]*Entry),
		nextID: 1, // hook_id 0 is reserved for "no hook" (spec.md §3)
	}
}

// Register binds predicate to a kernel kind and guard. Legal only while
// the registry is Open; fails with ErrDuplicate if predicate already has a
// hook, or ErrFrozen once Freeze has been called.
func (r *Registry) Register(predicate uint64, kind kernel.Kind, guard Guard, invariants []string, compileTimestamp int64) (uint64, error) {
	if guard == nil {
		guard = AllowAll
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.st == stateFrozen {
		return 0, ErrFrozen
	}
	if _, exists := r.byPred[predicate]; exists {
		return 0, ErrDuplicate
	}

	id := r.nextID
	r.nextID++
	entry := &Entry{
		HookID:           id,
		Predicate:        predicate,
		KernelKind:       kind,
		Guard:            guard,
		Invariants:       invariants,
		CompileTimestamp: compileTimestamp,
	}
	r.byPred[predicate] = entry
	r.byID[id] = entry
	return id, nil
}

// SetParams binds the static kernel arguments hookID's kernel needs
// beyond what a single admitted triple supplies. Legal only while the
// registry is Open, the same as Register.
func (r *Registry) SetParams(hookID uint64, params kernel.Params) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.st == stateFrozen {
		return ErrFrozen
	}
	e, ok := r.byID[hookID]
	if !ok {
		return ErrNotFound
	}
	e.Params = params
	return nil
}

// Freeze closes registration. After Freeze, Lookup's O(1) time bound is
// guaranteed (spec.md §4.3: "only Frozen guarantees its time bound" — the
// map itself is already O(1) amortized, Freeze documents the contract
// boundary rather than rebuilding storage).
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st = stateFrozen
}

// Frozen reports whether the registry has been frozen.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.st == stateFrozen
}

// Lookup returns the hook entry bound to predicate, if any. Legal in
// either state; never fails (spec.md §4.3).
func (r *Registry) Lookup(predicate uint64) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byPred[predicate]
	return e, ok
}

// LookupByID returns the hook entry with the given hook_id, if any.
func (r *Registry) LookupByID(hookID uint64) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[hookID]
	return e, ok
}

// Validate invokes predicate's guard against (s, p, o). Returns false if
// predicate has no registered hook.
func (r *Registry) Validate(predicate uint64, s, p, o uint64) bool {
	e, ok := r.Lookup(predicate)
	if !ok {
		return false
	}
	return e.Guard(s, p, o)
}

// Snapshot returns every registered entry, for the Inspection API's
// snapshot_hooks() (spec.md §6).
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.byPred))
	for _, e := range r.byPred {
		out = append(out, *e)
	}
	return out
}
