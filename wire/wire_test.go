package wire

import (
	"errors"
	"testing"

	"github.com/chazu/capsule/runtime"
)

func roundTrip(t *testing.T, reg *Registry, v runtime.Value) runtime.Value {
	t.Helper()
	data, err := Dump(reg, nil, v)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	out, err := Load(reg, data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return out
}

func TestWire_Primitives(t *testing.T) {
	reg := NewRegistry()
	cases := []runtime.Value{
		runtime.Nil,
		runtime.True,
		runtime.False,
		runtime.IntValue(-42),
		runtime.FloatValue(2.5),
		runtime.StringValue("hello"),
	}
	for _, v := range cases {
		if got := roundTrip(t, reg, v); got != v {
			t.Errorf("round trip of %v: got %v", v, got)
		}
	}

	got := roundTrip(t, reg, runtime.BytesValue([]byte{1, 2, 3}))
	b, ok := got.(runtime.BytesValue)
	if !ok || len(b) != 3 || b[0] != 1 || b[2] != 3 {
		t.Errorf("bytes round trip: got %v", got)
	}
}

func TestWire_NestedContainers(t *testing.T) {
	reg := NewRegistry()
	d := runtime.NewDict()
	d.Set("n", runtime.IntValue(1))
	d.Set("inner", runtime.NewArray(runtime.StringValue("x"), runtime.Nil))

	got := roundTrip(t, reg, d).(*runtime.Dict)
	if got.Len() != 2 {
		t.Fatalf("dict len: got %d", got.Len())
	}
	keys := got.Keys()
	if keys[0] != "n" || keys[1] != "inner" {
		t.Errorf("dict order lost: %v", keys)
	}
	inner, _ := got.Get("inner")
	arr := inner.(*runtime.Array)
	if arr.Len() != 2 || arr.Items[0] != runtime.Value(runtime.StringValue("x")) {
		t.Errorf("inner array: got %v", arr.Items)
	}
}

func TestWire_SharedStructure(t *testing.T) {
	reg := NewRegistry()
	shared := runtime.NewArray(runtime.IntValue(1))
	outer := runtime.NewArray(shared, shared)

	got := roundTrip(t, reg, outer).(*runtime.Array)
	a := got.Items[0].(*runtime.Array)
	b := got.Items[1].(*runtime.Array)
	if a != b {
		t.Error("shared array decoded as two objects")
	}
	a.Items[0] = runtime.IntValue(2)
	if b.Items[0] != runtime.Value(runtime.IntValue(2)) {
		t.Error("mutation through one alias not visible via the other")
	}
}

func TestWire_Cycle(t *testing.T) {
	reg := NewRegistry()
	arr := &runtime.Array{}
	arr.Items = append(arr.Items, arr)

	got := roundTrip(t, reg, arr).(*runtime.Array)
	if got.Items[0] != runtime.Value(got) {
		t.Error("self-referential array did not close its cycle")
	}
}

func TestWire_UnsupportedNamesObject(t *testing.T) {
	reg := NewRegistry()
	_, err := Dump(reg, nil, runtime.NewWeakSet())
	var unsup *UnsupportedError
	if !errors.As(err, &unsup) {
		t.Fatalf("Dump: got %v, want UnsupportedError", err)
	}
}

func TestWire_CorruptDocument(t *testing.T) {
	reg := NewRegistry()
	if _, err := Load(reg, []byte("not a capsule")); !errors.Is(err, ErrCorrupt) {
		t.Errorf("garbage input: got %v, want ErrCorrupt", err)
	}
}

func TestWire_UnknownConstructor(t *testing.T) {
	enc := NewRegistry()
	enc.RegisterReducer(runtime.KindWeakSet, func(v runtime.Value) (*Reduce, error) {
		return &Reduce{Ctor: "test.unregistered"}, nil
	})
	data, err := Dump(enc, nil, runtime.NewWeakSet())
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}

	dec := NewRegistry()
	if _, err := Load(dec, data); !errors.Is(err, ErrCorrupt) {
		t.Errorf("unknown constructor: got %v, want ErrCorrupt", err)
	}
}

// TestWire_StateMemoization exercises the decode-order contract: the
// constructed object is registered before its state is built, so state
// reaching back to the object resolves.
func TestWire_StateMemoization(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterReducer(runtime.KindCell, func(v runtime.Value) (*Reduce, error) {
		c := v.(*runtime.Cell)
		contents, _ := c.Get()
		return &Reduce{Ctor: "test.cell", State: contents, SetState: "test.fill"}, nil
	})
	reg.RegisterCtor("test.cell", func(args []runtime.Value) (runtime.Value, error) {
		return runtime.NewEmptyCell(), nil
	})
	reg.RegisterSetState("test.fill", func(obj, state runtime.Value) error {
		obj.(*runtime.Cell).Set(state)
		return nil
	})

	c := runtime.NewEmptyCell()
	c.Set(c) // cell holding itself

	got := roundTrip(t, reg, c).(*runtime.Cell)
	inner, ok := got.Get()
	if !ok || inner != runtime.Value(got) {
		t.Error("self-referential state did not resolve to the object under construction")
	}
}

func TestWire_SessionSpansEncodes(t *testing.T) {
	reg := NewRegistry()
	shared := runtime.NewArray(runtime.IntValue(9))

	enc := NewEncoder(reg, nil)
	id1, err := enc.Encode(shared)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	id2, err := enc.Encode(shared)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if id1 != id2 {
		t.Errorf("same object in one session got two nodes: %d and %d", id1, id2)
	}
}
