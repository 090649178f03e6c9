package runtime

// ---------------------------------------------------------------------------
// Value: the runtime's universal value representation
// ---------------------------------------------------------------------------

// Kind discriminates the concrete type behind a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindArray
	KindDict
	KindCell
	KindObject
	KindClass
	KindEnumMember
	KindFunction
	KindNativeFunction
	KindBoundMethod
	KindCodeUnit
	KindModule
	KindStream
	KindWeakSet
	KindLogger
	KindDictView
)

var kindNames = map[Kind]string{
	KindNil:            "nil",
	KindBool:           "boolean",
	KindInt:            "integer",
	KindFloat:          "float",
	KindString:         "string",
	KindBytes:          "bytes",
	KindArray:          "array",
	KindDict:           "dict",
	KindCell:           "cell",
	KindObject:         "object",
	KindClass:          "class",
	KindEnumMember:     "enum member",
	KindFunction:       "function",
	KindNativeFunction: "native function",
	KindBoundMethod:    "bound method",
	KindCodeUnit:       "code unit",
	KindModule:         "module",
	KindStream:         "stream",
	KindWeakSet:        "weak set",
	KindLogger:         "logger",
	KindDictView:       "dict view",
}

// String implements the Stringer interface.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Value is implemented by every runtime value.
type Value interface {
	Kind() Kind
}

// ---------------------------------------------------------------------------
// Immediate values
// ---------------------------------------------------------------------------

// NilValue is the single nil value.
type NilValue struct{}

// Nil is the runtime's nil.
var Nil = NilValue{}

// Kind implements Value.
func (NilValue) Kind() Kind { return KindNil }

// BoolValue is a boolean value.
type BoolValue bool

// True and False are the two boolean values.
const (
	True  BoolValue = true
	False BoolValue = false
)

// Kind implements Value.
func (BoolValue) Kind() Kind { return KindBool }

// IntValue is a 64-bit signed integer value.
type IntValue int64

// Kind implements Value.
func (IntValue) Kind() Kind { return KindInt }

// FloatValue is a 64-bit float value.
type FloatValue float64

// Kind implements Value.
func (FloatValue) Kind() Kind { return KindFloat }

// StringValue is an immutable string value.
type StringValue string

// Kind implements Value.
func (StringValue) Kind() Kind { return KindString }

// BytesValue is a byte-string value.
type BytesValue []byte

// Kind implements Value.
func (BytesValue) Kind() Kind { return KindBytes }

// IsTruthy returns true if v is considered truthy in conditionals.
// Only nil and false are falsy.
func IsTruthy(v Value) bool {
	switch t := v.(type) {
	case NilValue:
		return false
	case BoolValue:
		return bool(t)
	default:
		return true
	}
}

// ---------------------------------------------------------------------------
// Array: mutable ordered sequence
// ---------------------------------------------------------------------------

// Array is a mutable ordered sequence of values.
type Array struct {
	Items []Value
}

// NewArray creates an array from the given items.
func NewArray(items ...Value) *Array {
	return &Array{Items: items}
}

// Kind implements Value.
func (*Array) Kind() Kind { return KindArray }

// Len returns the number of items.
func (a *Array) Len() int { return len(a.Items) }

// ---------------------------------------------------------------------------
// Cell: shared mutable box for one captured variable
// ---------------------------------------------------------------------------

// Cell is a heap-allocated mutable container for a single value, shared by
// every function that closes over the captured variable. A cell starts
// empty; reading an empty cell is an error at the language level, so the
// empty state must survive serialization distinctly from "contains nil".
type Cell struct {
	value  Value
	filled bool
}

// NewCell creates a filled cell containing v.
func NewCell(v Value) *Cell {
	return &Cell{value: v, filled: true}
}

// NewEmptyCell creates a cell with no contents.
func NewEmptyCell() *Cell {
	return &Cell{}
}

// Kind implements Value.
func (*Cell) Kind() Kind { return KindCell }

// Get returns the cell contents and whether the cell is filled.
func (c *Cell) Get() (Value, bool) {
	if !c.filled {
		return Nil, false
	}
	return c.value, true
}

// Set stores v in the cell, filling it if it was empty.
func (c *Cell) Set(v Value) {
	c.value = v
	c.filled = true
}

// Clear empties the cell.
func (c *Cell) Clear() {
	c.value = nil
	c.filled = false
}

// IsFilled returns true if the cell holds a value.
func (c *Cell) IsFilled() bool { return c.filled }
