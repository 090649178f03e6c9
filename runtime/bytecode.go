package runtime

import (
	"encoding/binary"
	"fmt"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack operations
const (
	OpNop Opcode = 0x00 // no operation
	OpPop Opcode = 0x01 // discard top of stack
	OpDup Opcode = 0x02 // duplicate top of stack
)

// Push constants
const (
	OpPushNil     Opcode = 0x10 // push nil
	OpPushTrue    Opcode = 0x11 // push true
	OpPushFalse   Opcode = 0x12 // push false
	OpPushLiteral Opcode = 0x13 // push literal from literal frame (16-bit index)
)

// Variable operations. Global accesses name the target through the unit's
// name table (16-bit index); the binding-set extractor depends on exactly
// these three opcodes carrying name-table operands.
const (
	OpLoadLocal    Opcode = 0x20 // push local/argument (8-bit index)
	OpStoreLocal   Opcode = 0x21 // store into local (8-bit index)
	OpLoadCell     Opcode = 0x22 // push contents of captured cell (8-bit index)
	OpStoreCell    Opcode = 0x23 // store into captured cell (8-bit index)
	OpLoadGlobal   Opcode = 0x24 // push global (16-bit name index)
	OpStoreGlobal  Opcode = 0x25 // store into global (16-bit name index)
	OpDeleteGlobal Opcode = 0x26 // delete global binding (16-bit name index)
	OpLoadAttr     Opcode = 0x27 // pop receiver, push attribute (16-bit name index)
	OpStoreAttr    Opcode = 0x28 // pop value, receiver; store attribute (16-bit name index)
)

// Arithmetic (pop two, push one)
const (
	OpAdd Opcode = 0x30 // +
	OpSub Opcode = 0x31 // -
	OpMul Opcode = 0x32 // *
	OpLT  Opcode = 0x33 // <
	OpEQ  Opcode = 0x34 // =
)

// Control flow
const (
	OpJump      Opcode = 0x40 // unconditional jump (16-bit signed offset)
	OpJumpFalse Opcode = 0x41 // pop, jump if falsy (16-bit signed offset)
)

// Calls and construction
const (
	OpCall        Opcode = 0x50 // call callee with args (8-bit argc)
	OpCallMethod  Opcode = 0x51 // call named method on receiver (16-bit name index, 8-bit argc)
	OpNew         Opcode = 0x52 // pop class, push fresh instance
	OpMakeClosure Opcode = 0x53 // create closure (16-bit nested unit index, 8-bit cell count)
	OpPushNewCell Opcode = 0x54 // push a fresh empty cell
	OpCellSet     Opcode = 0x55 // pop value, cell; fill the cell
	OpCellGet     Opcode = 0x56 // pop cell, push its contents
)

// Returns
const (
	OpReturn    Opcode = 0x60 // return top of stack
	OpReturnNil Opcode = 0x61 // return nil
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop: {"NOP", 0},
	OpPop: {"POP", 0},
	OpDup: {"DUP", 0},

	OpPushNil:     {"PUSH_NIL", 0},
	OpPushTrue:    {"PUSH_TRUE", 0},
	OpPushFalse:   {"PUSH_FALSE", 0},
	OpPushLiteral: {"PUSH_LITERAL", 2},

	OpLoadLocal:    {"LOAD_LOCAL", 1},
	OpStoreLocal:   {"STORE_LOCAL", 1},
	OpLoadCell:     {"LOAD_CELL", 1},
	OpStoreCell:    {"STORE_CELL", 1},
	OpLoadGlobal:   {"LOAD_GLOBAL", 2},
	OpStoreGlobal:  {"STORE_GLOBAL", 2},
	OpDeleteGlobal: {"DELETE_GLOBAL", 2},
	OpLoadAttr:     {"LOAD_ATTR", 2},
	OpStoreAttr:    {"STORE_ATTR", 2},

	OpAdd: {"ADD", 0},
	OpSub: {"SUB", 0},
	OpMul: {"MUL", 0},
	OpLT:  {"LT", 0},
	OpEQ:  {"EQ", 0},

	OpJump:      {"JUMP", 2},
	OpJumpFalse: {"JUMP_FALSE", 2},

	OpCall:        {"CALL", 1},
	OpCallMethod:  {"CALL_METHOD", 3},
	OpNew:         {"NEW", 0},
	OpMakeClosure: {"MAKE_CLOSURE", 3},
	OpPushNewCell: {"PUSH_NEW_CELL", 0},
	OpCellSet:     {"CELL_SET", 0},
	OpCellGet:     {"CELL_GET", 0},

	OpReturn:    {"RETURN", 0},
	OpReturnNil: {"RETURN_NIL", 0},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string { return op.Info().Name }

// OperandBytes returns the number of operand bytes for an opcode.
func (op Opcode) OperandBytes() int { return op.Info().OperandBytes }

// String implements the Stringer interface.
func (op Opcode) String() string { return op.Name() }

// ---------------------------------------------------------------------------
// CodeBuilder: helper for constructing bytecode
// ---------------------------------------------------------------------------

// CodeBuilder helps construct bytecode sequences.
type CodeBuilder struct {
	bytes []byte
}

// NewCodeBuilder creates a new bytecode builder.
func NewCodeBuilder() *CodeBuilder {
	return &CodeBuilder{bytes: make([]byte, 0, 64)}
}

// Bytes returns the constructed bytecode.
func (b *CodeBuilder) Bytes() []byte { return b.bytes }

// Len returns the current length.
func (b *CodeBuilder) Len() int { return len(b.bytes) }

// Emit appends an opcode with no operands.
func (b *CodeBuilder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitByte appends an opcode with a single byte operand.
func (b *CodeBuilder) EmitByte(op Opcode, operand byte) {
	b.bytes = append(b.bytes, byte(op), operand)
}

// EmitUint16 appends an opcode with a 16-bit operand (little-endian).
func (b *CodeBuilder) EmitUint16(op Opcode, operand uint16) {
	b.bytes = append(b.bytes, byte(op), byte(operand), byte(operand>>8))
}

// EmitInt16 appends an opcode with a signed 16-bit operand.
func (b *CodeBuilder) EmitInt16(op Opcode, operand int16) {
	b.EmitUint16(op, uint16(operand))
}

// EmitCallMethod appends a CALL_METHOD instruction.
func (b *CodeBuilder) EmitCallMethod(nameIndex uint16, argc uint8) {
	b.bytes = append(b.bytes, byte(OpCallMethod), byte(nameIndex), byte(nameIndex>>8), argc)
}

// EmitMakeClosure appends a MAKE_CLOSURE instruction.
func (b *CodeBuilder) EmitMakeClosure(unitIndex uint16, nCells uint8) {
	b.bytes = append(b.bytes, byte(OpMakeClosure), byte(unitIndex), byte(unitIndex>>8), nCells)
}

// ---------------------------------------------------------------------------
// CodeReader: instruction stream iteration
// ---------------------------------------------------------------------------

// CodeReader reads bytecode for interpretation or analysis.
type CodeReader struct {
	bytes []byte
	pos   int
}

// NewCodeReader creates a reader for bytecode.
func NewCodeReader(bc []byte) *CodeReader {
	return &CodeReader{bytes: bc}
}

// Position returns the current read position.
func (r *CodeReader) Position() int { return r.pos }

// HasMore returns true if there are more bytes to read.
func (r *CodeReader) HasMore() bool { return r.pos < len(r.bytes) }

// ReadOpcode reads and returns the next opcode.
func (r *CodeReader) ReadOpcode() Opcode {
	if r.pos >= len(r.bytes) {
		panic("bytecode underflow")
	}
	op := Opcode(r.bytes[r.pos])
	r.pos++
	return op
}

// ReadByte reads a single byte operand.
func (r *CodeReader) ReadByte() byte {
	if r.pos >= len(r.bytes) {
		panic("bytecode underflow")
	}
	b := r.bytes[r.pos]
	r.pos++
	return b
}

// ReadUint16 reads a 16-bit operand (little-endian).
func (r *CodeReader) ReadUint16() uint16 {
	if r.pos+2 > len(r.bytes) {
		panic("bytecode underflow")
	}
	v := binary.LittleEndian.Uint16(r.bytes[r.pos:])
	r.pos += 2
	return v
}

// ReadInt16 reads a signed 16-bit operand (little-endian).
func (r *CodeReader) ReadInt16() int16 { return int16(r.ReadUint16()) }

// Skip advances the position by n bytes.
func (r *CodeReader) Skip(n int) { r.pos += n }

// Seek sets the read position.
func (r *CodeReader) Seek(pos int) { r.pos = pos }

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction disassembles a single instruction at the reader's
// position, advancing the reader.
func DisassembleInstruction(r *CodeReader) string {
	pos := r.Position()
	op := r.ReadOpcode()
	info := op.Info()

	switch info.OperandBytes {
	case 0:
		return fmt.Sprintf("%04d  %s", pos, info.Name)
	case 1:
		v := r.ReadByte()
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, v)
	case 2:
		v := r.ReadUint16()
		if op == OpJump || op == OpJumpFalse {
			offset := int16(v)
			return fmt.Sprintf("%04d  %s %d (-> %04d)", pos, info.Name, offset, r.Position()+int(offset))
		}
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, v)
	case 3:
		a := r.ReadUint16()
		b := r.ReadByte()
		return fmt.Sprintf("%04d  %s %d %d", pos, info.Name, a, b)
	default:
		r.Skip(info.OperandBytes)
		return fmt.Sprintf("%04d  %s", pos, info.Name)
	}
}

// Disassemble returns a full disassembly of bytecode.
func Disassemble(bc []byte) string {
	r := NewCodeReader(bc)
	var result string
	for r.HasMore() {
		if result != "" {
			result += "\n"
		}
		result += DisassembleInstruction(r)
	}
	return result
}
