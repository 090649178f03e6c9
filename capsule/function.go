package capsule

import (
	"fmt"

	"github.com/chazu/capsule/runtime"
	"github.com/chazu/capsule/wire"
)

// ---------------------------------------------------------------------------
// Function state capsule
// ---------------------------------------------------------------------------

// functionReduce captures a function by value: the compiled unit and the
// session-shared base namespace go in the constructor arguments, and the
// state carries only what the extractor proves the body needs: the
// filtered globals subset, the ordered closure cells, the attribute
// dict, and the submodules the body uses through attribute access.
func (s *session) functionReduce(fn *runtime.Function) (*wire.Reduce, error) {
	if fn.Coroutine {
		return nil, fmt.Errorf("capsule: %w: coroutine function %s", ErrRefused, fn.FullName())
	}
	e := s.eng

	subset := runtime.NewDict()
	for _, name := range e.extractor.Extract(fn.Code) {
		if v, ok := fn.Globals.Get(name); ok {
			subset.Set(name, v)
		}
	}

	cells := &runtime.Array{Items: make([]runtime.Value, len(fn.Cells))}
	for i, cell := range fn.Cells {
		cells.Items[i] = cell
	}

	submods := &runtime.Array{}
	for _, name := range e.extractor.ImportedSubmodules(fn.Code) {
		if m := e.rt.Module(name); m != nil {
			submods.Items = append(submods.Items, m)
		}
	}

	state := runtime.NewDict()
	state.Set("name", runtime.StringValue(fn.Name))
	state.Set("module", runtime.StringValue(fn.Module))
	state.Set("qualname", runtime.StringValue(fn.Qualname))
	state.Set("globals", subset)
	state.Set("cells", cells)
	state.Set("attrs", fn.Attrs)
	state.Set("submodules", submods)

	return &wire.Reduce{
		Ctor:     ctorFunction,
		Args:     []runtime.Value{fn.Code, s.baseGlobals(fn.Globals)},
		State:    state,
		SetState: setFunction,
	}, nil
}

// baseGlobals returns the session's stand-in for one source namespace.
// Every function captured from the same namespace names the same
// stand-in in its constructor arguments, so the backend's memo makes the
// reconstructed functions share one globals dict.
func (s *session) baseGlobals(src *runtime.Dict) *runtime.Dict {
	if base, ok := s.globalsRef[src]; ok {
		return base
	}
	base := runtime.NewDict()
	s.globalsRef[src] = base
	return base
}

// makeFunctionShell is the function constructor: an empty shell over the
// carried unit and shared base namespace, correct arity and cell count,
// nothing else. The backend memoizes the shell before the state is
// decoded, which is what lets a closure reference itself.
func (e *Engine) makeFunctionShell(args []runtime.Value) (runtime.Value, error) {
	if err := argCount("function", args, 2); err != nil {
		return nil, err
	}
	unit, ok := args[0].(*runtime.CodeUnit)
	if !ok {
		return nil, fmt.Errorf("capsule: %w: function arg 0 is %s, want code unit", ErrCorrupt, args[0].Kind())
	}
	base, ok := args[1].(*runtime.Dict)
	if !ok {
		return nil, fmt.Errorf("capsule: %w: function arg 1 is %s, want dict", ErrCorrupt, args[1].Kind())
	}
	return runtime.NewFunction(unit.Name, unit, base), nil
}

// fillFunction applies captured state to a shell. Identity fields are
// plain assignments; globals and cells go through SetContext because the
// namespace is shared and must be repopulated, not rebound.
func (e *Engine) fillFunction(obj, state runtime.Value) error {
	fn, ok := obj.(*runtime.Function)
	if !ok {
		return fmt.Errorf("capsule: %w: function state applied to %s", ErrCorrupt, obj.Kind())
	}
	st, ok := state.(*runtime.Dict)
	if !ok {
		return fmt.Errorf("capsule: %w: function state is %s, want dict", ErrCorrupt, state.Kind())
	}

	fn.Name = stateString(st, "name", fn.Name)
	fn.Module = stateString(st, "module", fn.Module)
	fn.Qualname = stateString(st, "qualname", fn.Qualname)

	if attrs, ok := st.Get("attrs"); ok {
		if d, ok := attrs.(*runtime.Dict); ok {
			fn.Attrs.Update(d)
		}
	}

	var subset *runtime.Dict
	if g, ok := st.Get("globals"); ok {
		subset, ok = g.(*runtime.Dict)
		if !ok {
			return fmt.Errorf("capsule: %w: globals of %s is %s, want dict", ErrCorrupt, fn.FullName(), g.Kind())
		}
	}

	cells := make([]*runtime.Cell, 0, len(fn.Cells))
	if cv, ok := st.Get("cells"); ok {
		arr, ok := cv.(*runtime.Array)
		if !ok {
			return fmt.Errorf("capsule: %w: cells of %s is %s, want array", ErrCorrupt, fn.FullName(), cv.Kind())
		}
		for i, item := range arr.Items {
			cell, ok := item.(*runtime.Cell)
			if !ok {
				return fmt.Errorf("capsule: %w: cell %d of %s is %s", ErrCorrupt, i, fn.FullName(), item.Kind())
			}
			cells = append(cells, cell)
		}
	}

	// Decoding "submodules" is the useful part: the modules are already
	// materialized in this runtime by the time we get here.

	if err := fn.SetContext(subset, cells); err != nil {
		return fmt.Errorf("capsule: restore %s: %w", fn.FullName(), err)
	}
	return nil
}

func stateString(st *runtime.Dict, key, fallback string) string {
	if v, ok := st.Get(key); ok {
		if s, ok := v.(runtime.StringValue); ok {
			return string(s)
		}
	}
	return fallback
}
