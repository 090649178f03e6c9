package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/capsule/runtime"
)

// Decoder rebuilds a value graph from a document's node table. Container
// shells and constructed objects are memoized before their contents are
// decoded, so cycles through state resolve to the object under
// construction. A cycle that threads through constructor arguments has
// no such shell to resolve to and is rejected as corrupt.
type Decoder struct {
	reg      *Registry
	nodes    []node
	root     uint32
	built    []runtime.Value
	done     []bool
	building []bool
}

// NewDecoder parses a document and prepares its node table. The graph is
// materialized lazily by Root.
func NewDecoder(reg *Registry, data []byte) (*Decoder, error) {
	var doc document
	if err := cbor.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("wire: %w: %v", ErrCorrupt, err)
	}
	if doc.Magic != documentMagic {
		return nil, fmt.Errorf("wire: %w: bad magic %q", ErrCorrupt, doc.Magic)
	}
	if doc.Version != documentVersion {
		return nil, fmt.Errorf("wire: %w: unsupported version %d", ErrCorrupt, doc.Version)
	}
	if int(doc.Root) >= len(doc.Nodes) {
		return nil, fmt.Errorf("wire: %w: root %d out of range", ErrCorrupt, doc.Root)
	}
	d := &Decoder{
		reg:      reg,
		nodes:    doc.Nodes,
		built:    make([]runtime.Value, len(doc.Nodes)),
		done:     make([]bool, len(doc.Nodes)),
		building: make([]bool, len(doc.Nodes)),
	}
	d.root = doc.Root
	return d, nil
}

// Root materializes the document's root value.
func (d *Decoder) Root() (runtime.Value, error) {
	return d.build(d.root)
}

func (d *Decoder) build(id uint32) (runtime.Value, error) {
	if int(id) >= len(d.nodes) {
		return nil, fmt.Errorf("wire: %w: node %d out of range", ErrCorrupt, id)
	}
	if d.done[id] {
		return d.built[id], nil
	}
	if d.building[id] {
		return nil, fmt.Errorf("wire: %w: cycle through constructor arguments at node %d", ErrCorrupt, id)
	}

	n := d.nodes[id]
	switch n.Kind {
	case nodeNil:
		return d.finish(id, runtime.Nil), nil
	case nodeBool:
		if n.Bool {
			return d.finish(id, runtime.True), nil
		}
		return d.finish(id, runtime.False), nil
	case nodeInt:
		return d.finish(id, runtime.IntValue(n.Int)), nil
	case nodeFloat:
		return d.finish(id, runtime.FloatValue(n.Float)), nil
	case nodeString:
		return d.finish(id, runtime.StringValue(n.Str)), nil
	case nodeBytes:
		return d.finish(id, runtime.BytesValue(n.Bytes)), nil
	case nodeArray:
		return d.buildArray(id, n)
	case nodeDict:
		return d.buildDict(id, n)
	case nodeObject:
		return d.buildObject(id, n)
	case nodeReduce:
		return d.buildReduce(id, n)
	}
	return nil, fmt.Errorf("wire: %w: unknown node kind %d", ErrCorrupt, n.Kind)
}

func (d *Decoder) finish(id uint32, v runtime.Value) runtime.Value {
	d.built[id] = v
	d.done[id] = true
	d.building[id] = false
	return v
}

func (d *Decoder) buildArray(id uint32, n node) (runtime.Value, error) {
	a := &runtime.Array{Items: make([]runtime.Value, len(n.Kids))}
	d.finish(id, a)
	for i, kid := range n.Kids {
		item, err := d.build(kid)
		if err != nil {
			return nil, err
		}
		a.Items[i] = item
	}
	return a, nil
}

func (d *Decoder) buildDict(id uint32, n node) (runtime.Value, error) {
	if len(n.Keys) != len(n.Kids) {
		return nil, fmt.Errorf("wire: %w: dict node %d has %d keys and %d values", ErrCorrupt, id, len(n.Keys), len(n.Kids))
	}
	dict := runtime.NewDict()
	d.finish(id, dict)
	for i, kid := range n.Kids {
		item, err := d.build(kid)
		if err != nil {
			return nil, err
		}
		dict.Set(n.Keys[i], item)
	}
	return dict, nil
}

// buildObject creates the slot shell first and attaches the class once
// it is decoded, so cycles through either class or slots resolve.
func (d *Decoder) buildObject(id uint32, n node) (runtime.Value, error) {
	if len(n.Kids) == 0 {
		return nil, fmt.Errorf("wire: %w: object node %d has no class", ErrCorrupt, id)
	}
	o := &runtime.Object{Slots: make([]runtime.Value, len(n.Kids)-1)}
	d.finish(id, o)
	cv, err := d.build(n.Kids[0])
	if err != nil {
		return nil, err
	}
	cls, ok := cv.(*runtime.Class)
	if !ok {
		return nil, fmt.Errorf("wire: %w: object node %d class is %s", ErrCorrupt, id, cv.Kind())
	}
	o.Class = cls
	for i, kid := range n.Kids[1:] {
		slot, err := d.build(kid)
		if err != nil {
			return nil, err
		}
		o.Slots[i] = slot
	}
	return o, nil
}

func (d *Decoder) buildReduce(id uint32, n node) (runtime.Value, error) {
	d.building[id] = true
	ctor, err := d.reg.ctor(n.Ctor)
	if err != nil {
		return nil, err
	}
	args := make([]runtime.Value, len(n.Kids))
	for i, kid := range n.Kids {
		arg, err := d.build(kid)
		if err != nil {
			return nil, err
		}
		args[i] = arg
	}
	obj, err := ctor(args)
	if err != nil {
		return nil, fmt.Errorf("wire: constructor %s: %w", n.Ctor, err)
	}
	// Memoize before state so self-referential state finds the object.
	d.finish(id, obj)
	if n.HasState {
		restore, err := d.reg.setstate(n.SetState)
		if err != nil {
			return nil, err
		}
		state, err := d.build(n.State)
		if err != nil {
			return nil, err
		}
		if err := restore(obj, state); err != nil {
			return nil, fmt.Errorf("wire: restore %s: %w", n.SetState, err)
		}
	}
	return obj, nil
}

// Load decodes a complete document into its root value.
func Load(reg *Registry, data []byte) (runtime.Value, error) {
	dec, err := NewDecoder(reg, data)
	if err != nil {
		return nil, err
	}
	return dec.Root()
}
