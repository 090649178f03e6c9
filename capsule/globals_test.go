package capsule

import (
	"reflect"
	"testing"

	"github.com/chazu/capsule/runtime"
)

func TestExtractor_GlobalAccessOpcodes(t *testing.T) {
	b := runtime.NewUnitBuilder("f", 0)
	b.LoadGlobal("alpha")
	b.StoreGlobal("beta")
	idx := b.AddName("gamma")
	b.Code().EmitUint16(runtime.OpDeleteGlobal, uint16(idx))
	b.Code().Emit(runtime.OpReturnNil)

	ex := NewExtractor(runtime.NewRuntime())
	got := ex.Extract(b.Build())
	want := []string{"alpha", "beta", "gamma"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract: got %v, want %v", got, want)
	}
}

func TestExtractor_SkipsNonGlobalOperands(t *testing.T) {
	// A name used only for attribute access must not count as a global.
	b := runtime.NewUnitBuilder("f", 0)
	b.LoadGlobal("obj")
	attr := b.AddName("field")
	b.Code().EmitUint16(runtime.OpLoadAttr, uint16(attr))
	b.Code().Emit(runtime.OpReturn)

	ex := NewExtractor(runtime.NewRuntime())
	got := ex.Extract(b.Build())
	if !reflect.DeepEqual(got, []string{"obj"}) {
		t.Errorf("Extract: got %v, want [obj]", got)
	}
}

func TestExtractor_RecursesNestedUnits(t *testing.T) {
	inner := runtime.NewUnitBuilder("inner", 0)
	inner.LoadGlobal("deep")
	inner.Code().Emit(runtime.OpReturn)

	litUnit := runtime.NewUnitBuilder("lit", 0)
	litUnit.LoadGlobal("literal")
	litUnit.Code().Emit(runtime.OpReturn)

	outer := runtime.NewUnitBuilder("outer", 0)
	outer.LoadGlobal("shallow")
	outer.AddUnit(inner.Build())
	outer.AddLiteral(litUnit.Build())
	outer.Code().Emit(runtime.OpReturnNil)

	ex := NewExtractor(runtime.NewRuntime())
	got := ex.Extract(outer.Build())
	want := []string{"deep", "literal", "shallow"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract: got %v, want %v", got, want)
	}
}

func TestExtractor_MemoizesPerUnit(t *testing.T) {
	b := runtime.NewUnitBuilder("f", 0)
	b.LoadGlobal("x")
	b.Code().Emit(runtime.OpReturn)
	unit := b.Build()

	ex := NewExtractor(runtime.NewRuntime())
	first := ex.Extract(unit)
	second := ex.Extract(unit)
	if len(first) != 1 || &first[0] != &second[0] {
		t.Error("repeat extraction did not reuse the memoized slice")
	}
}

func TestExtractor_ImportedSubmodules(t *testing.T) {
	rt := runtime.NewRuntime()

	pkg := runtime.NewModule("pkg", "/lib/pkg.cap")
	sub := runtime.NewModule("pkg.sub", "/lib/pkg/sub.cap")
	pkg.Bindings.Set("sub", sub)
	rt.RegisterModule(pkg)
	rt.RegisterModule(sub)

	// An unrelated dotted module whose root is not in the global set.
	other := runtime.NewModule("misc.util", "/lib/misc/util.cap")
	rt.RegisterModule(other)

	b := runtime.NewUnitBuilder("f", 0)
	b.LoadGlobal("pkg")
	b.Code().Emit(runtime.OpReturn)

	ex := NewExtractor(rt)
	got := ex.ImportedSubmodules(b.Build())
	if !reflect.DeepEqual(got, []string{"pkg.sub"}) {
		t.Errorf("ImportedSubmodules: got %v, want [pkg.sub]", got)
	}
}

func TestExtractor_SubmoduleRequiresReachability(t *testing.T) {
	// pkg.sub is registered but pkg does not expose it as an attribute,
	// so traversal cannot reach it and it must not be reported.
	rt := runtime.NewRuntime()
	rt.RegisterModule(runtime.NewModule("pkg", "/lib/pkg.cap"))
	rt.RegisterModule(runtime.NewModule("pkg.sub", "/lib/pkg/sub.cap"))

	b := runtime.NewUnitBuilder("f", 0)
	b.LoadGlobal("pkg")
	b.Code().Emit(runtime.OpReturn)

	ex := NewExtractor(rt)
	if got := ex.ImportedSubmodules(b.Build()); len(got) != 0 {
		t.Errorf("ImportedSubmodules: got %v, want none", got)
	}
}
