package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/capsule/runtime"
)

// ---------------------------------------------------------------------------
// Document framing
// ---------------------------------------------------------------------------

const (
	documentMagic   = "CAPS"
	documentVersion = 1
)

// Node kinds on the wire. Object references between nodes are node ids,
// so shared structure is shared by construction.
const (
	nodeNil byte = iota
	nodeBool
	nodeInt
	nodeFloat
	nodeString
	nodeBytes
	nodeArray
	nodeDict
	nodeObject
	nodeReduce
)

type node struct {
	Kind     byte     `cbor:"k"`
	Bool     bool     `cbor:"b,omitempty"`
	Int      int64    `cbor:"i,omitempty"`
	Float    float64  `cbor:"f,omitempty"`
	Str      string   `cbor:"s,omitempty"`
	Bytes    []byte   `cbor:"y,omitempty"`
	Kids     []uint32 `cbor:"c,omitempty"`
	Keys     []string `cbor:"n,omitempty"`
	Ctor     string   `cbor:"r,omitempty"`
	SetState string   `cbor:"p,omitempty"`
	HasState bool     `cbor:"h,omitempty"`
	State    uint32   `cbor:"z,omitempty"`
}

type document struct {
	Magic   string `cbor:"m"`
	Version int    `cbor:"v"`
	Nodes   []node `cbor:"nodes"`
	Root    uint32 `cbor:"root"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: cbor encoder options: %v", err))
	}
}

// ---------------------------------------------------------------------------
// Encoder
// ---------------------------------------------------------------------------

// Encoder flattens a value graph into a node table. One encoder is one
// serialization session: its identity memo spans everything encoded
// through it, so two Encode calls on the same encoder share structure in
// the resulting document.
type Encoder struct {
	reg  *Registry
	hook ReducerOverride // may be nil
	list []node
	memo map[runtime.Value]uint32
}

// NewEncoder creates an encoder over the given registry. hook, when
// non-nil, is consulted before the registry's strategy table.
func NewEncoder(reg *Registry, hook ReducerOverride) *Encoder {
	return &Encoder{
		reg:  reg,
		hook: hook,
		memo: make(map[runtime.Value]uint32),
	}
}

// Marshal finishes the session: it frames the node table as a CBOR
// document with the given root id.
func (e *Encoder) Marshal(root uint32) ([]byte, error) {
	doc := document{
		Magic:   documentMagic,
		Version: documentVersion,
		Nodes:   e.list,
		Root:    root,
	}
	data, err := encMode.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("wire: encode document: %w", err)
	}
	return data, nil
}

func (e *Encoder) emit(n node) uint32 {
	e.list = append(e.list, n)
	return uint32(len(e.list) - 1)
}

// reserve appends a placeholder node and memoizes the value under its
// id before any children are walked. Cycles back into the value then
// resolve to the reserved id instead of recursing.
func (e *Encoder) reserve(v runtime.Value) uint32 {
	id := e.emit(node{})
	e.memo[v] = id
	return id
}

// Encode walks one value and returns its node id.
func (e *Encoder) Encode(v runtime.Value) (uint32, error) {
	if v == nil {
		return e.emit(node{Kind: nodeNil}), nil
	}
	switch x := v.(type) {
	case runtime.NilValue:
		return e.emit(node{Kind: nodeNil}), nil
	case runtime.BoolValue:
		return e.emit(node{Kind: nodeBool, Bool: bool(x)}), nil
	case runtime.IntValue:
		return e.emit(node{Kind: nodeInt, Int: int64(x)}), nil
	case runtime.FloatValue:
		return e.emit(node{Kind: nodeFloat, Float: float64(x)}), nil
	case runtime.StringValue:
		return e.emit(node{Kind: nodeString, Str: string(x)}), nil
	case runtime.BytesValue:
		return e.emit(node{Kind: nodeBytes, Bytes: []byte(x)}), nil
	}

	if id, ok := e.memo[v]; ok {
		return id, nil
	}

	switch x := v.(type) {
	case *runtime.Array:
		return e.encodeArray(x)
	case *runtime.Dict:
		return e.encodeDict(x)
	case *runtime.Object:
		return e.encodeObject(x)
	}
	return e.encodeReduced(v)
}

func (e *Encoder) encodeArray(a *runtime.Array) (uint32, error) {
	id := e.reserve(a)
	kids := make([]uint32, len(a.Items))
	for i, item := range a.Items {
		kid, err := e.Encode(item)
		if err != nil {
			return 0, err
		}
		kids[i] = kid
	}
	e.list[id] = node{Kind: nodeArray, Kids: kids}
	return id, nil
}

func (e *Encoder) encodeDict(d *runtime.Dict) (uint32, error) {
	id := e.reserve(d)
	keys := d.Keys()
	kids := make([]uint32, len(keys))
	for i, key := range keys {
		item, _ := d.Get(key)
		kid, err := e.Encode(item)
		if err != nil {
			return 0, err
		}
		kids[i] = kid
	}
	e.list[id] = node{Kind: nodeDict, Keys: keys, Kids: kids}
	return id, nil
}

// encodeObject writes an instance as its class reference followed by the
// slot values in layout order.
func (e *Encoder) encodeObject(o *runtime.Object) (uint32, error) {
	id := e.reserve(o)
	cls, err := e.Encode(o.Class)
	if err != nil {
		return 0, err
	}
	kids := make([]uint32, 0, len(o.Slots)+1)
	kids = append(kids, cls)
	for _, slot := range o.Slots {
		kid, err := e.Encode(slot)
		if err != nil {
			return 0, err
		}
		kids = append(kids, kid)
	}
	e.list[id] = node{Kind: nodeObject, Kids: kids}
	return id, nil
}

// encodeReduced handles everything the backend has no built-in layout
// for: the override hook first, then the per-kind strategy table.
func (e *Encoder) encodeReduced(v runtime.Value) (uint32, error) {
	var (
		r   *Reduce
		err error
	)
	if e.hook != nil {
		var handled bool
		r, handled, err = e.hook.ReduceOverride(v)
		if err != nil {
			return 0, err
		}
		if !handled {
			r = nil
		}
	}
	if r == nil {
		fn := e.reg.Reducer(v.Kind())
		if fn == nil {
			return 0, &UnsupportedError{Value: v}
		}
		r, err = fn(v)
		if err != nil {
			return 0, err
		}
	}

	// The reduce node is memoized before args and state are walked.
	// State may point back at the object; args may not, and the decoder
	// rejects that shape.
	id := e.reserve(v)
	kids := make([]uint32, len(r.Args))
	for i, arg := range r.Args {
		kid, err := e.Encode(arg)
		if err != nil {
			return 0, err
		}
		kids[i] = kid
	}
	n := node{Kind: nodeReduce, Ctor: r.Ctor, Kids: kids, SetState: r.SetState}
	if r.SetState != "" {
		state, err := e.Encode(r.State)
		if err != nil {
			return 0, err
		}
		n.HasState = true
		n.State = state
	}
	e.list[id] = n
	return id, nil
}

// Dump encodes a single value as a complete document.
func Dump(reg *Registry, hook ReducerOverride, v runtime.Value) ([]byte, error) {
	enc := NewEncoder(reg, hook)
	root, err := enc.Encode(v)
	if err != nil {
		return nil, err
	}
	return enc.Marshal(root)
}
