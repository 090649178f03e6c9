// Package wire implements the generic object-graph encoder and decoder
// the capsule engine plugs its strategies into.
//
// The backend walks value graphs depth-first with an identity memo, so
// shared structure and cycles survive a round trip. Plain data (nil,
// booleans, numbers, strings, bytes, arrays, dicts, instances) is the
// backend's own business; everything else is delegated to a reducer: the
// override hook first, then a per-kind strategy table. Reducers describe
// reconstruction as (constructor, args) or (constructor, args, state,
// restore), the sole protocol boundary between the two processes.
package wire

import (
	"fmt"

	"github.com/chazu/capsule/runtime"
)

// ---------------------------------------------------------------------------
// Reduce descriptors
// ---------------------------------------------------------------------------

// Reduce describes how to rebuild one object in the destination process:
// call the named constructor with Args, then, if SetState is set, apply
// State through the named restore procedure. The constructed object is
// memoized before State is decoded, which is what makes self-referential
// state resolvable.
type Reduce struct {
	Ctor     string
	Args     []runtime.Value
	State    runtime.Value // nil when the object carries no state
	SetState string        // restore procedure name; empty when no state
}

// ReducerFunc produces a reduce descriptor for one value.
type ReducerFunc func(v runtime.Value) (*Reduce, error)

// CtorFunc rebuilds an object from decoded constructor arguments.
type CtorFunc func(args []runtime.Value) (runtime.Value, error)

// SetStateFunc applies decoded state to a constructed object.
type SetStateFunc func(obj, state runtime.Value) error

// ReducerOverride is consulted for every outgoing object before the
// per-kind strategy table. Returning handled=false declines the object,
// leaving it to the table and, for plain data, the backend's built-in
// walk.
type ReducerOverride interface {
	ReduceOverride(v runtime.Value) (r *Reduce, handled bool, err error)
}

// ---------------------------------------------------------------------------
// Registry: strategies, constructors, restore procedures
// ---------------------------------------------------------------------------

// Registry holds the per-kind strategy table and the constructor/restore
// registries decoding resolves names against. Registries are explicit
// objects so isolated engine instances stay independent; they are
// populated at engine construction and read-only afterwards.
type Registry struct {
	reducers  map[runtime.Kind]ReducerFunc
	ctors     map[string]CtorFunc
	setstates map[string]SetStateFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		reducers:  make(map[runtime.Kind]ReducerFunc),
		ctors:     make(map[string]CtorFunc),
		setstates: make(map[string]SetStateFunc),
	}
}

// RegisterReducer installs the strategy for one value kind.
func (reg *Registry) RegisterReducer(k runtime.Kind, fn ReducerFunc) {
	reg.reducers[k] = fn
}

// RegisterCtor installs a named constructor.
func (reg *Registry) RegisterCtor(name string, fn CtorFunc) {
	reg.ctors[name] = fn
}

// RegisterSetState installs a named restore procedure.
func (reg *Registry) RegisterSetState(name string, fn SetStateFunc) {
	reg.setstates[name] = fn
}

// Reducer returns the strategy for a kind, or nil.
func (reg *Registry) Reducer(k runtime.Kind) ReducerFunc {
	return reg.reducers[k]
}

func (reg *Registry) ctor(name string) (CtorFunc, error) {
	fn, ok := reg.ctors[name]
	if !ok {
		return nil, fmt.Errorf("wire: %w: unknown constructor %q", ErrCorrupt, name)
	}
	return fn, nil
}

func (reg *Registry) setstate(name string) (SetStateFunc, error) {
	fn, ok := reg.setstates[name]
	if !ok {
		return nil, fmt.Errorf("wire: %w: unknown restore procedure %q", ErrCorrupt, name)
	}
	return fn, nil
}
