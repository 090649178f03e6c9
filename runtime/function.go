package runtime

import "fmt"

// ---------------------------------------------------------------------------
// Function: compiled function with execution context
// ---------------------------------------------------------------------------

// Function is a callable backed by a compiled code unit plus the execution
// context the unit needs: the globals namespace it resolves names in, the
// closure cells it captured, and a free-form attribute dict. The globals
// dict is shared by identity with the defining module, so module-level
// rebinding is observed by every function of that module.
type Function struct {
	Name     string
	Module   string // defining module name
	Qualname string // qualified name within the module

	Code    *CodeUnit
	Globals *Dict   // shared namespace; never nil for interpreted functions
	Cells   []*Cell // captured cells, ordered to match Code.CellVars
	Attrs   *Dict   // instance attributes

	// Coroutine marks functions compiled under the cooperative-concurrency
	// flag. Running coroutine state cannot be captured; serialization
	// refuses them outright.
	Coroutine bool
}

// NewFunction creates a function over the given unit and globals.
// Cells are allocated empty to match the unit's captured-variable count.
func NewFunction(name string, code *CodeUnit, globals *Dict) *Function {
	cells := make([]*Cell, len(code.CellVars))
	for i := range cells {
		cells[i] = NewEmptyCell()
	}
	return &Function{
		Name:     name,
		Qualname: name,
		Module:   code.Module,
		Code:     code,
		Globals:  globals,
		Cells:    cells,
		Attrs:    NewDict(),
	}
}

// NewShellFunction creates an empty function shell for the given unit:
// correct arity and cell count, fresh empty globals, no attributes. The
// shell is what two-phase reconstruction registers before its execution
// context is applied.
func NewShellFunction(code *CodeUnit) *Function {
	return NewFunction(code.Name, code, NewDict())
}

// Kind implements Value.
func (*Function) Kind() Kind { return KindFunction }

// FullName returns module.qualname.
func (f *Function) FullName() string {
	if f.Module == "" {
		return f.Qualname
	}
	return f.Module + "." + f.Qualname
}

// String implements the Stringer interface.
func (f *Function) String() string { return f.FullName() }

// Arity returns the number of declared arguments.
func (f *Function) Arity() int { return f.Code.Arity }

// SetContext applies a captured execution context in place. Globals and
// cells are not ordinary fields at the language level: the globals dict
// is repopulated rather than rebound, so anything already sharing
// f.Globals keeps sharing it, and names restored for one sharer are not
// discarded by the next.
func (f *Function) SetContext(globals *Dict, cells []*Cell) error {
	if len(cells) != len(f.Cells) {
		return fmt.Errorf("runtime: %s expects %d cells, got %d", f.FullName(), len(f.Cells), len(cells))
	}
	if globals != nil {
		f.Globals.Update(globals)
	}
	copy(f.Cells, cells)
	return nil
}

// ---------------------------------------------------------------------------
// NativeFunction: opaque host-implemented callable
// ---------------------------------------------------------------------------

// NativeFn is the host signature of a native function.
type NativeFn func(rt *Runtime, args []Value) (Value, error)

// NativeFunction is a callable implemented in the host, not by bytecode.
// It has no closures or globals to capture; across processes it is
// identified solely by its registry name.
type NativeFunction struct {
	Name string
	Fn   NativeFn
}

// Kind implements Value.
func (*NativeFunction) Kind() Kind { return KindNativeFunction }

// String implements the Stringer interface.
func (nf *NativeFunction) String() string { return "native " + nf.Name }
