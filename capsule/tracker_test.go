package capsule

import (
	"errors"
	"testing"

	"github.com/chazu/capsule/runtime"
)

func TestTracker_StableID(t *testing.T) {
	tr := NewTracker()
	cls := runtime.NewClass("C", "main", nil)

	id := tr.Track(cls)
	if id == "" {
		t.Fatal("Track returned an empty id")
	}
	if again := tr.Track(cls); again != id {
		t.Errorf("Track not stable: %s then %s", id, again)
	}
	if tr.Lookup(id) != cls {
		t.Error("Lookup did not return the tracked class")
	}
}

func TestTracker_DistinctClassesDistinctIDs(t *testing.T) {
	tr := NewTracker()
	a := tr.Track(runtime.NewClass("A", "main", nil))
	b := tr.Track(runtime.NewClass("B", "main", nil))
	if a == b {
		t.Error("two classes share one tracking id")
	}
}

func TestTracker_Adopt(t *testing.T) {
	tr := NewTracker()
	cls := runtime.NewClass("C", "main", nil)

	tr.Adopt(cls, "carried-id")
	if tr.Lookup("carried-id") != cls {
		t.Error("adopted id does not resolve to the class")
	}
	if tr.Track(cls) != "carried-id" {
		t.Error("Track after Adopt minted a new id")
	}
}

func TestTracker_UnknownID(t *testing.T) {
	tr := NewTracker()
	if tr.Lookup("nope") != nil {
		t.Error("unknown id resolved to a class")
	}
}

func TestSkeleton_BeginDedups(t *testing.T) {
	sk := NewSkeleton(NewTracker())
	shape := ClassShape{Name: "C", Module: "main", Qualname: "C", TrackingID: "id-1"}

	first, err := sk.Begin(shape)
	if err != nil {
		t.Fatal(err)
	}
	second, err := sk.Begin(shape)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("same tracking id produced two shells")
	}
}

func TestSkeleton_BeginShapeMismatch(t *testing.T) {
	sk := NewSkeleton(NewTracker())
	if _, err := sk.Begin(ClassShape{Name: "C", Module: "main", Qualname: "C", TrackingID: "id-1"}); err != nil {
		t.Fatal(err)
	}
	_, err := sk.Begin(ClassShape{Name: "D", Module: "main", Qualname: "D", TrackingID: "id-1"})
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("mismatched shape under one id: got %v, want ErrCorrupt", err)
	}
}

func TestSkeleton_CommitOncePerClass(t *testing.T) {
	sk := NewSkeleton(NewTracker())
	cls, err := sk.Begin(ClassShape{Name: "C", Module: "main", Qualname: "C", TrackingID: "id-1"})
	if err != nil {
		t.Fatal(err)
	}

	attrs := runtime.NewDict()
	attrs.Set("version", runtime.IntValue(1))
	if err := sk.Commit(cls, ClassBody{Fields: []string{"x"}, Attrs: attrs}); err != nil {
		t.Fatal(err)
	}

	// A later stream carrying a different body for the same class must
	// not rewrite what this process already has.
	stale := runtime.NewDict()
	stale.Set("version", runtime.IntValue(2))
	if err := sk.Commit(cls, ClassBody{Fields: []string{"x", "y"}, Attrs: stale}); err != nil {
		t.Fatal(err)
	}
	if len(cls.Fields) != 1 {
		t.Errorf("second commit rewrote fields: %v", cls.Fields)
	}
	if v, _ := cls.Attrs.Get("version"); v != runtime.Value(runtime.IntValue(1)) {
		t.Errorf("second commit rewrote attrs: %v", v)
	}
}

func TestSkeleton_MarkFilledProtectsLocalClass(t *testing.T) {
	sk := NewSkeleton(NewTracker())
	cls := runtime.NewClass("C", "main", nil)
	cls.Fields = []string{"x"}
	sk.MarkFilled(cls)

	if err := sk.Commit(cls, ClassBody{Fields: []string{"a", "b"}}); err != nil {
		t.Fatal(err)
	}
	if len(cls.Fields) != 1 || cls.Fields[0] != "x" {
		t.Errorf("commit touched a locally defined class: %v", cls.Fields)
	}
}

func TestSkeleton_CommitEnumMembers(t *testing.T) {
	sk := NewSkeleton(NewTracker())
	cls, err := sk.Begin(ClassShape{Name: "Color", Module: "main", Qualname: "Color", Kind: runtime.ClassEnum, TrackingID: "id-e"})
	if err != nil {
		t.Fatal(err)
	}

	members := runtime.NewArray(
		runtime.NewArray(runtime.StringValue("RED"), runtime.IntValue(1)),
		runtime.NewArray(runtime.StringValue("BLUE"), runtime.IntValue(2)),
	)
	if err := sk.Commit(cls, ClassBody{Members: members}); err != nil {
		t.Fatal(err)
	}
	if len(cls.Members) != 2 || cls.Member("BLUE").Value != runtime.Value(runtime.IntValue(2)) {
		t.Errorf("enum members: %v", cls.Members)
	}
}

func TestSkeleton_MembersOnPlainClass(t *testing.T) {
	sk := NewSkeleton(NewTracker())
	cls, err := sk.Begin(ClassShape{Name: "C", Module: "main", Qualname: "C", TrackingID: "id-p"})
	if err != nil {
		t.Fatal(err)
	}
	members := runtime.NewArray(runtime.NewArray(runtime.StringValue("X"), runtime.IntValue(1)))
	if err := sk.Commit(cls, ClassBody{Members: members}); !errors.Is(err, ErrCorrupt) {
		t.Errorf("members on a plain class: got %v, want ErrCorrupt", err)
	}
}
