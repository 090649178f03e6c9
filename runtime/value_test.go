package runtime

import "testing"

func TestCell_EmptyVersusFilled(t *testing.T) {
	empty := NewEmptyCell()
	if empty.IsFilled() {
		t.Error("fresh cell should be empty")
	}
	if _, ok := empty.Get(); ok {
		t.Error("Get on empty cell should report not filled")
	}

	// A cell holding nil is filled; emptiness is not a value.
	holding := NewCell(Nil)
	if !holding.IsFilled() {
		t.Error("cell holding nil should be filled")
	}
	v, ok := holding.Get()
	if !ok || v != Value(Nil) {
		t.Errorf("Get: got %v/%v, want nil/true", v, ok)
	}

	holding.Clear()
	if holding.IsFilled() {
		t.Error("Clear should empty the cell")
	}
}

func TestCell_SharedMutation(t *testing.T) {
	c := NewCell(IntValue(1))
	alias := c
	alias.Set(IntValue(2))
	v, _ := c.Get()
	if v != Value(IntValue(2)) {
		t.Errorf("mutation through alias not visible: got %v", v)
	}
}

func TestDict_InsertionOrder(t *testing.T) {
	d := NewDict()
	d.Set("a", IntValue(1))
	d.Set("b", IntValue(2))
	d.Set("c", IntValue(3))
	d.Delete("b")
	d.Set("b", IntValue(4))

	keys := d.Keys()
	want := []string{"a", "c", "b"}
	if len(keys) != len(want) {
		t.Fatalf("Keys: got %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Keys[%d]: got %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestDict_UpdatePreservesIdentity(t *testing.T) {
	dst := NewDict()
	dst.Set("x", IntValue(1))
	src := NewDict()
	src.Set("x", IntValue(9))
	src.Set("y", IntValue(2))

	dst.Update(src)
	if v, _ := dst.Get("x"); v != Value(IntValue(9)) {
		t.Errorf("Update should overwrite: got %v", v)
	}
	if dst.Len() != 2 {
		t.Errorf("Len: got %d, want 2", dst.Len())
	}
}

func TestDictView_Materialize(t *testing.T) {
	d := NewDict()
	d.Set("one", IntValue(1))
	d.Set("two", IntValue(2))

	keys := (&DictView{View: ViewKeys, Src: d}).Materialize()
	if keys.Len() != 2 || keys.Items[0] != Value(StringValue("one")) {
		t.Errorf("keys view: got %v", keys.Items)
	}

	items := (&DictView{View: ViewItems, Src: d}).Materialize()
	pair, ok := items.Items[1].(*Array)
	if !ok || pair.Items[0] != Value(StringValue("two")) || pair.Items[1] != Value(IntValue(2)) {
		t.Errorf("items view: got %v", items.Items)
	}
}

func TestStream_ReadRemaining(t *testing.T) {
	s := NewReadStream("abcdef")
	buf := make([]byte, 3)
	if n, err := s.Read(buf); n != 3 || err != nil {
		t.Fatalf("Read: got %d/%v", n, err)
	}
	if rem := s.Remaining(); rem != "def" {
		t.Errorf("Remaining: got %q, want %q", rem, "def")
	}
	// Remaining must not consume.
	if rem := s.Remaining(); rem != "def" {
		t.Errorf("second Remaining: got %q, want %q", rem, "def")
	}
}

func TestWeakSet_AliveKeepsReferencedMembers(t *testing.T) {
	ws := NewWeakSet()
	cls := NewClass("T", "main", nil)
	a := cls.NewInstance()
	b := cls.NewInstance()
	ws.Add(a)
	ws.Add(b)
	ws.Add(a)

	alive := ws.Alive()
	if len(alive) != 2 {
		t.Errorf("Alive: got %d members, want 2", len(alive))
	}
}
