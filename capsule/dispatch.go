package capsule

import (
	"fmt"

	"github.com/chazu/capsule/runtime"
	"github.com/chazu/capsule/wire"
)

// Constructor and restore-procedure names on the wire. Stable between
// processes of the same build; nothing here is an archival format.
const (
	ctorLookup     = "capsule.lookup"
	ctorModule     = "capsule.module"
	ctorClassShell = "capsule.classShell"
	ctorFunction   = "capsule.function"
	ctorNative     = "capsule.native"
	ctorCell       = "capsule.cell"
	ctorEmptyCell  = "capsule.emptyCell"
	ctorCode       = "capsule.code"
	ctorMember     = "capsule.member"
	ctorBind       = "capsule.bind"
	ctorReadStream = "capsule.readStream"
	ctorWeakSet    = "capsule.weakSet"
	ctorLogger     = "capsule.logger"
	ctorDictView   = "capsule.dictView"

	setClass    = "capsule.fillClass"
	setFunction = "capsule.fillFunction"
	setModule   = "capsule.fillModule"
	setCell     = "capsule.fillCell"
	setWeakSet  = "capsule.fillWeakSet"
)

// registerStrategies wires the fixed catalog of runtime-internal types
// into the backend registry: the per-kind reducers consulted when the
// override hook declines, plus every constructor and restore procedure
// the decoder resolves against.
func (e *Engine) registerStrategies() {
	reg := e.registry

	reg.RegisterReducer(runtime.KindCell, cellReduce)
	reg.RegisterReducer(runtime.KindCodeUnit, codeReduce)
	reg.RegisterReducer(runtime.KindModule, e.moduleReduce)
	reg.RegisterReducer(runtime.KindBoundMethod, boundMethodReduce)
	reg.RegisterReducer(runtime.KindStream, streamReduce)
	reg.RegisterReducer(runtime.KindWeakSet, weakSetReduce)
	reg.RegisterReducer(runtime.KindLogger, loggerReduce)
	reg.RegisterReducer(runtime.KindDictView, dictViewReduce)
	reg.RegisterReducer(runtime.KindNativeFunction, nativeReduce)
	reg.RegisterReducer(runtime.KindEnumMember, memberReduce)

	reg.RegisterCtor(ctorLookup, e.lookupByReference)
	reg.RegisterCtor(ctorModule, e.importModule)
	reg.RegisterCtor(ctorClassShell, e.makeClassShell)
	reg.RegisterCtor(ctorFunction, e.makeFunctionShell)
	reg.RegisterCtor(ctorNative, e.lookupNative)
	reg.RegisterCtor(ctorCell, makeCell)
	reg.RegisterCtor(ctorEmptyCell, makeEmptyCell)
	reg.RegisterCtor(ctorCode, makeCodeUnit)
	reg.RegisterCtor(ctorMember, lookupMember)
	reg.RegisterCtor(ctorBind, bindMethod)
	reg.RegisterCtor(ctorReadStream, makeReadStream)
	reg.RegisterCtor(ctorWeakSet, makeWeakSet)
	reg.RegisterCtor(ctorLogger, e.lookupLogger)
	reg.RegisterCtor(ctorDictView, makeDictView)

	reg.RegisterSetState(setClass, e.fillClass)
	reg.RegisterSetState(setFunction, e.fillFunction)
	reg.RegisterSetState(setModule, fillModule)
	reg.RegisterSetState(setCell, fillCell)
	reg.RegisterSetState(setWeakSet, fillWeakSet)
}

// ---------------------------------------------------------------------------
// Closure cells
// ---------------------------------------------------------------------------

// Cells carry their contents as state, never as constructor arguments:
// the empty shell must be memoized first so a cell whose value reaches
// back to a closure holding the cell still resolves. An empty cell is a
// distinct constructor, not a sentinel value inside a filled one.
func cellReduce(v runtime.Value) (*wire.Reduce, error) {
	c := v.(*runtime.Cell)
	if contents, ok := c.Get(); ok {
		return &wire.Reduce{Ctor: ctorCell, State: contents, SetState: setCell}, nil
	}
	return &wire.Reduce{Ctor: ctorEmptyCell}, nil
}

func makeCell(args []runtime.Value) (runtime.Value, error) {
	if err := argCount("cell", args, 0); err != nil {
		return nil, err
	}
	return runtime.NewEmptyCell(), nil
}

func makeEmptyCell(args []runtime.Value) (runtime.Value, error) {
	if err := argCount("empty cell", args, 0); err != nil {
		return nil, err
	}
	return runtime.NewEmptyCell(), nil
}

func fillCell(obj, state runtime.Value) error {
	c, ok := obj.(*runtime.Cell)
	if !ok {
		return fmt.Errorf("capsule: %w: cell contents applied to %s", ErrCorrupt, obj.Kind())
	}
	c.Set(state)
	return nil
}

// ---------------------------------------------------------------------------
// Compiled code units
// ---------------------------------------------------------------------------

// Code units are immutable and cycle-free, so everything goes in the
// constructor arguments.
func codeReduce(v runtime.Value) (*wire.Reduce, error) {
	u := v.(*runtime.CodeUnit)

	cellVars := &runtime.Array{Items: make([]runtime.Value, len(u.CellVars))}
	for i, name := range u.CellVars {
		cellVars.Items[i] = runtime.StringValue(name)
	}
	names := &runtime.Array{Items: make([]runtime.Value, len(u.Names))}
	for i, name := range u.Names {
		names.Items[i] = runtime.StringValue(name)
	}
	literals := &runtime.Array{Items: make([]runtime.Value, len(u.Literals))}
	copy(literals.Items, u.Literals)
	units := &runtime.Array{Items: make([]runtime.Value, len(u.Units))}
	for i, nested := range u.Units {
		units.Items[i] = nested
	}

	return &wire.Reduce{
		Ctor: ctorCode,
		Args: []runtime.Value{
			runtime.StringValue(u.Name),
			runtime.StringValue(u.Module),
			runtime.IntValue(u.FirstLine),
			runtime.IntValue(u.Arity),
			runtime.IntValue(u.NumLocals),
			cellVars,
			names,
			literals,
			runtime.BytesValue(u.Code),
			units,
		},
	}, nil
}

func makeCodeUnit(args []runtime.Value) (runtime.Value, error) {
	if err := argCount("code unit", args, 10); err != nil {
		return nil, err
	}
	name, err := argString("code unit", args, 0)
	if err != nil {
		return nil, err
	}
	module, err := argString("code unit", args, 1)
	if err != nil {
		return nil, err
	}
	firstLine, err := argInt("code unit", args, 2)
	if err != nil {
		return nil, err
	}
	arity, err := argInt("code unit", args, 3)
	if err != nil {
		return nil, err
	}
	numLocals, err := argInt("code unit", args, 4)
	if err != nil {
		return nil, err
	}
	cellVars, err := argStrings("code unit", args, 5)
	if err != nil {
		return nil, err
	}
	names, err := argStrings("code unit", args, 6)
	if err != nil {
		return nil, err
	}
	literalArr, err := argArray("code unit", args, 7)
	if err != nil {
		return nil, err
	}
	code, ok := args[8].(runtime.BytesValue)
	if !ok {
		return nil, fmt.Errorf("capsule: %w: code unit arg 8 is %s, want bytes", ErrCorrupt, args[8].Kind())
	}
	unitArr, err := argArray("code unit", args, 9)
	if err != nil {
		return nil, err
	}

	u := &runtime.CodeUnit{
		Name:      name,
		Module:    module,
		FirstLine: int(firstLine),
		Arity:     int(arity),
		NumLocals: int(numLocals),
		CellVars:  cellVars,
		Names:     names,
		Literals:  append([]runtime.Value(nil), literalArr.Items...),
		Code:      append([]byte(nil), code...),
	}
	for _, item := range unitArr.Items {
		nested, ok := item.(*runtime.CodeUnit)
		if !ok {
			return nil, fmt.Errorf("capsule: %w: nested unit of %s is %s", ErrCorrupt, name, item.Kind())
		}
		u.Units = append(u.Units, nested)
	}
	return u, nil
}

// ---------------------------------------------------------------------------
// Modules
// ---------------------------------------------------------------------------

// moduleReduce sends stable modules as an import request and everything
// else (the entry context, ad hoc modules, by-value registrations) as a
// shell plus bindings.
func (e *Engine) moduleReduce(v runtime.Value) (*wire.Reduce, error) {
	m := v.(*runtime.Module)
	if d := e.resolver.DecideModule(m); d.ByRef {
		return &wire.Reduce{
			Ctor: ctorModule,
			Args: []runtime.Value{runtime.StringValue(m.Name)},
		}, nil
	}
	return &wire.Reduce{
		Ctor:     ctorModule,
		Args:     []runtime.Value{runtime.StringValue(m.Name), runtime.StringValue(m.Path)},
		State:    m.Bindings,
		SetState: setModule,
	}, nil
}

// importModule resolves one or two arguments: a bare name must already
// be loaded in the destination runtime; a name plus path materializes a
// shell, reusing the loaded module of that name when present.
func (e *Engine) importModule(args []runtime.Value) (runtime.Value, error) {
	if len(args) != 1 && len(args) != 2 {
		return nil, fmt.Errorf("capsule: %w: module takes 1 or 2 args, got %d", ErrCorrupt, len(args))
	}
	name, err := argString("module", args, 0)
	if err != nil {
		return nil, err
	}
	if len(args) == 1 {
		m := e.rt.Module(name)
		if m == nil {
			return nil, fmt.Errorf("capsule: %w: module %s is not loaded here", ErrCorrupt, name)
		}
		return m, nil
	}
	path, err := argString("module", args, 1)
	if err != nil {
		return nil, err
	}
	if m := e.rt.Module(name); m != nil {
		return m, nil
	}
	m := runtime.NewModule(name, path)
	e.rt.RegisterModule(m)
	return m, nil
}

func fillModule(obj, state runtime.Value) error {
	m, ok := obj.(*runtime.Module)
	if !ok {
		return fmt.Errorf("capsule: %w: module bindings applied to %s", ErrCorrupt, obj.Kind())
	}
	bindings, ok := state.(*runtime.Dict)
	if !ok {
		return fmt.Errorf("capsule: %w: bindings of %s is %s, want dict", ErrCorrupt, m.Name, state.Kind())
	}
	m.Bindings.Update(bindings)
	return nil
}

// ---------------------------------------------------------------------------
// Bound methods
// ---------------------------------------------------------------------------

// Bound methods travel as "attribute lookup on the instance". The method
// body is never duplicated: it rides with the receiver's class.
func boundMethodReduce(v runtime.Value) (*wire.Reduce, error) {
	bm := v.(*runtime.BoundMethod)
	return &wire.Reduce{
		Ctor: ctorBind,
		Args: []runtime.Value{bm.Recv, runtime.StringValue(bm.Name)},
	}, nil
}

func bindMethod(args []runtime.Value) (runtime.Value, error) {
	if err := argCount("bound method", args, 2); err != nil {
		return nil, err
	}
	name, err := argString("bound method", args, 1)
	if err != nil {
		return nil, err
	}
	recv, ok := args[0].(*runtime.Object)
	if !ok {
		return nil, fmt.Errorf("capsule: %w: bound method receiver is %s", ErrCorrupt, args[0].Kind())
	}
	bm := recv.Bind(name)
	if bm == nil {
		return nil, fmt.Errorf("capsule: %w: %s has no method %s", ErrCorrupt, recv.Class.FullName(), name)
	}
	return bm, nil
}

// ---------------------------------------------------------------------------
// Streams
// ---------------------------------------------------------------------------

// Read-mode streams are captured by their remaining content. Write-mode
// streams are refused outright: buffered output has no sensible
// cross-process meaning.
func streamReduce(v runtime.Value) (*wire.Reduce, error) {
	s := v.(*runtime.Stream)
	if s.Mode == runtime.StreamWrite {
		return nil, fmt.Errorf("capsule: %w: write-mode stream", ErrRefused)
	}
	return &wire.Reduce{
		Ctor: ctorReadStream,
		Args: []runtime.Value{runtime.StringValue(s.Remaining())},
	}, nil
}

func makeReadStream(args []runtime.Value) (runtime.Value, error) {
	if err := argCount("stream", args, 1); err != nil {
		return nil, err
	}
	content, err := argString("stream", args, 0)
	if err != nil {
		return nil, err
	}
	return runtime.NewReadStream(content), nil
}

// ---------------------------------------------------------------------------
// Weak containers
// ---------------------------------------------------------------------------

func weakSetReduce(v runtime.Value) (*wire.Reduce, error) {
	ws := v.(*runtime.WeakSet)
	alive := ws.Alive()
	members := &runtime.Array{Items: make([]runtime.Value, len(alive))}
	for i, o := range alive {
		members.Items[i] = o
	}
	return &wire.Reduce{Ctor: ctorWeakSet, State: members, SetState: setWeakSet}, nil
}

func makeWeakSet(args []runtime.Value) (runtime.Value, error) {
	if err := argCount("weak set", args, 0); err != nil {
		return nil, err
	}
	return runtime.NewWeakSet(), nil
}

func fillWeakSet(obj, state runtime.Value) error {
	ws, ok := obj.(*runtime.WeakSet)
	if !ok {
		return fmt.Errorf("capsule: %w: weak set members applied to %s", ErrCorrupt, obj.Kind())
	}
	members, ok := state.(*runtime.Array)
	if !ok {
		return fmt.Errorf("capsule: %w: weak set members is %s, want array", ErrCorrupt, state.Kind())
	}
	for _, item := range members.Items {
		o, ok := item.(*runtime.Object)
		if !ok {
			return fmt.Errorf("capsule: %w: weak set member is %s", ErrCorrupt, item.Kind())
		}
		ws.Add(o)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Logging singletons
// ---------------------------------------------------------------------------

// Loggers are per-runtime singletons and travel as name plus level; the
// destination's singleton of that name is the reconstruction.
func loggerReduce(v runtime.Value) (*wire.Reduce, error) {
	lg := v.(*runtime.Logger)
	return &wire.Reduce{
		Ctor: ctorLogger,
		Args: []runtime.Value{runtime.StringValue(lg.Name), runtime.IntValue(int64(lg.Level))},
	}, nil
}

func (e *Engine) lookupLogger(args []runtime.Value) (runtime.Value, error) {
	if err := argCount("logger", args, 2); err != nil {
		return nil, err
	}
	name, err := argString("logger", args, 0)
	if err != nil {
		return nil, err
	}
	level, err := argInt("logger", args, 1)
	if err != nil {
		return nil, err
	}
	lg := e.rt.Logger(name)
	lg.Level = int(level)
	return lg, nil
}

// ---------------------------------------------------------------------------
// Mapping views
// ---------------------------------------------------------------------------

func dictViewReduce(v runtime.Value) (*wire.Reduce, error) {
	dv := v.(*runtime.DictView)
	return &wire.Reduce{
		Ctor: ctorDictView,
		Args: []runtime.Value{runtime.IntValue(int64(dv.View)), dv.Src},
	}, nil
}

func makeDictView(args []runtime.Value) (runtime.Value, error) {
	if err := argCount("dict view", args, 2); err != nil {
		return nil, err
	}
	view, err := argInt("dict view", args, 0)
	if err != nil {
		return nil, err
	}
	src, ok := args[1].(*runtime.Dict)
	if !ok {
		return nil, fmt.Errorf("capsule: %w: dict view source is %s", ErrCorrupt, args[1].Kind())
	}
	return &runtime.DictView{View: runtime.ViewKind(view), Src: src}, nil
}

// ---------------------------------------------------------------------------
// Native functions and enum members
// ---------------------------------------------------------------------------

// Native functions take the narrow path: identifying name only, no
// closures, no globals.
func nativeReduce(v runtime.Value) (*wire.Reduce, error) {
	nf := v.(*runtime.NativeFunction)
	return &wire.Reduce{
		Ctor: ctorNative,
		Args: []runtime.Value{runtime.StringValue(nf.Name)},
	}, nil
}

func (e *Engine) lookupNative(args []runtime.Value) (runtime.Value, error) {
	if err := argCount("native function", args, 1); err != nil {
		return nil, err
	}
	name, err := argString("native function", args, 0)
	if err != nil {
		return nil, err
	}
	nf := e.rt.Native(name)
	if nf == nil {
		return nil, fmt.Errorf("capsule: %w: no native function %s in this runtime", ErrCorrupt, name)
	}
	return nf, nil
}

// Enum members travel as a lookup on their owning enum. The owner rides
// through the normal class path, so a dynamic enum's members dedup with
// their class.
func memberReduce(v runtime.Value) (*wire.Reduce, error) {
	m := v.(*runtime.EnumMember)
	return &wire.Reduce{
		Ctor: ctorMember,
		Args: []runtime.Value{m.Owner, runtime.StringValue(m.Name)},
	}, nil
}

func lookupMember(args []runtime.Value) (runtime.Value, error) {
	if err := argCount("enum member", args, 2); err != nil {
		return nil, err
	}
	owner, ok := args[0].(*runtime.Class)
	if !ok {
		return nil, fmt.Errorf("capsule: %w: enum member owner is %s", ErrCorrupt, args[0].Kind())
	}
	name, err := argString("enum member", args, 1)
	if err != nil {
		return nil, err
	}
	m := owner.Member(name)
	if m == nil {
		return nil, fmt.Errorf("capsule: %w: %s has no member %s", ErrCorrupt, owner.FullName(), name)
	}
	return m, nil
}
