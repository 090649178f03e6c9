package runtime

// ---------------------------------------------------------------------------
// CodeUnit: compiled code with literals, name table, and nested units
// ---------------------------------------------------------------------------

// CodeUnit is a compiled executable unit: the bytecode of a function or
// method body plus everything the interpreter needs to run it. Units are
// immutable once compiled; analysis results keyed by unit identity may be
// cached indefinitely.
type CodeUnit struct {
	// Identity
	Name      string // unit name (for diagnostics)
	Module    string // defining module name
	FirstLine int    // 1-based source line of the definition

	// Signature
	Arity     int      // number of arguments
	NumLocals int      // total locals (arguments + temporaries)
	CellVars  []string // names of captured variables, in cell order

	// Compiled code
	Names    []string // name table: globals and attribute names referenced
	Literals []Value  // constant pool
	Code     []byte   // bytecode instructions

	// Nested compiled sub-units held as constants (closures defined in
	// this unit's body)
	Units []*CodeUnit
}

// Kind implements Value.
func (*CodeUnit) Kind() Kind { return KindCodeUnit }

// NewCodeUnit creates an empty code unit with the given name and arity.
func NewCodeUnit(name string, arity int) *CodeUnit {
	return &CodeUnit{
		Name:      name,
		Arity:     arity,
		NumLocals: arity,
	}
}

// NameAt returns the name-table entry at idx.
// Panics if idx is out of range.
func (u *CodeUnit) NameAt(idx int) string {
	if idx < 0 || idx >= len(u.Names) {
		panic("CodeUnit.NameAt: index out of range")
	}
	return u.Names[idx]
}

// LiteralAt returns the literal at idx.
// Panics if idx is out of range.
func (u *CodeUnit) LiteralAt(idx int) Value {
	if idx < 0 || idx >= len(u.Literals) {
		panic("CodeUnit.LiteralAt: index out of range")
	}
	return u.Literals[idx]
}

// UnitAt returns the nested unit at idx.
// Panics if idx is out of range.
func (u *CodeUnit) UnitAt(idx int) *CodeUnit {
	if idx < 0 || idx >= len(u.Units) {
		panic("CodeUnit.UnitAt: index out of range")
	}
	return u.Units[idx]
}

// Disassemble returns a disassembly of the unit's bytecode.
func (u *CodeUnit) Disassemble() string {
	return Disassemble(u.Code)
}

// String returns the unit's diagnostic name.
func (u *CodeUnit) String() string {
	if u.Module == "" {
		return u.Name
	}
	return u.Module + "." + u.Name
}

// ---------------------------------------------------------------------------
// UnitBuilder: helper for constructing code units
// ---------------------------------------------------------------------------

// UnitBuilder helps construct CodeUnit instances.
type UnitBuilder struct {
	unit *CodeUnit
	code *CodeBuilder
}

// NewUnitBuilder creates a new unit builder.
func NewUnitBuilder(name string, arity int) *UnitBuilder {
	return &UnitBuilder{
		unit: NewCodeUnit(name, arity),
		code: NewCodeBuilder(),
	}
}

// SetModule sets the defining module name.
func (b *UnitBuilder) SetModule(module string) *UnitBuilder {
	b.unit.Module = module
	return b
}

// SetCellVars declares the captured-variable names, in cell order.
func (b *UnitBuilder) SetCellVars(names ...string) *UnitBuilder {
	b.unit.CellVars = names
	return b
}

// AddLocal increases the local count by 1 and returns the new slot index.
func (b *UnitBuilder) AddLocal() int {
	idx := b.unit.NumLocals
	b.unit.NumLocals++
	return idx
}

// AddLiteral adds a literal and returns its index.
func (b *UnitBuilder) AddLiteral(v Value) int {
	idx := len(b.unit.Literals)
	b.unit.Literals = append(b.unit.Literals, v)
	return idx
}

// AddName interns a name in the unit's name table and returns its index.
// Existing names are reused.
func (b *UnitBuilder) AddName(name string) int {
	for i, n := range b.unit.Names {
		if n == name {
			return i
		}
	}
	idx := len(b.unit.Names)
	b.unit.Names = append(b.unit.Names, name)
	return idx
}

// AddUnit adds a nested unit and returns its index.
func (b *UnitBuilder) AddUnit(u *CodeUnit) int {
	idx := len(b.unit.Units)
	b.unit.Units = append(b.unit.Units, u)
	return idx
}

// Code returns the bytecode builder for direct emission.
func (b *UnitBuilder) Code() *CodeBuilder { return b.code }

// LoadGlobal emits LOAD_GLOBAL for name, interning it.
func (b *UnitBuilder) LoadGlobal(name string) {
	b.code.EmitUint16(OpLoadGlobal, uint16(b.AddName(name)))
}

// StoreGlobal emits STORE_GLOBAL for name, interning it.
func (b *UnitBuilder) StoreGlobal(name string) {
	b.code.EmitUint16(OpStoreGlobal, uint16(b.AddName(name)))
}

// Build finalizes and returns the compiled unit.
func (b *UnitBuilder) Build() *CodeUnit {
	b.unit.Code = b.code.Bytes()
	return b.unit
}
