package types_test

import (
	"testing"

	"layoutcore/internal/types"
)

func TestInternerDedupesStructuralTypes(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()

	p1 := in.Intern(types.MakePointer(b.Int32, true))
	p2 := in.Intern(types.MakePointer(b.Int32, true))
	if p1 != p2 {
		t.Fatalf("expected identical pointer ids, got %d and %d", p1, p2)
	}
	if in.Intern(types.MakePointer(b.Int32, false)) == p1 {
		t.Fatal("expected *const and *mut to differ")
	}

	t1 := in.RegisterTuple([]types.TypeID{b.Int8, b.Float64})
	t2 := in.RegisterTuple([]types.TypeID{b.Int8, b.Float64})
	if t1 != t2 {
		t.Fatalf("expected tuple reuse, got %d and %d", t1, t2)
	}
	if in.RegisterTuple(nil) != b.Unit {
		t.Fatal("expected empty tuple to be unit")
	}
}

func TestInternerStructsAreNominal(t *testing.T) {
	in := types.NewInterner()
	a := in.RegisterStruct("A")
	bID := in.RegisterStruct("A")
	if a == bID {
		t.Fatal("expected two struct registrations to yield distinct types")
	}
}

func TestNeedsSubstAndSubst(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	t0 := in.RegisterTypeParam("T", 0)

	wrapper := in.RegisterStruct("Wrapper")
	in.SetStructFields(wrapper, []types.StructField{
		{Name: "value", Type: t0},
		{Name: "tag", Type: b.Uint8},
	})

	if !in.NeedsSubst(wrapper) {
		t.Fatal("expected generic template to need substitution")
	}
	ptr := in.Intern(types.MakePointer(wrapper, false))
	if !in.NeedsSubst(ptr) {
		t.Fatal("expected pointer to generic template to need substitution")
	}

	concrete := in.Subst(wrapper, []types.TypeID{b.Float32})
	if in.NeedsSubst(concrete) {
		t.Fatalf("expected %s to be concrete", types.Label(in, concrete))
	}
	fields := in.StructFields(concrete)
	if len(fields) != 2 || fields[0].Type != b.Float32 {
		t.Fatalf("expected first field f32, got %+v", fields)
	}
	if again := in.Subst(wrapper, []types.TypeID{b.Float32}); again != concrete {
		t.Fatalf("expected cached instantiation, got %d and %d", again, concrete)
	}
	if got := types.Label(in, concrete); got != "Wrapper<f32>" {
		t.Fatalf("expected label Wrapper<f32>, got %q", got)
	}
}

func TestEraseRegions(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()

	withRegion := in.Intern(types.MakeReference(b.Int32, false, 3))
	erased := in.Intern(types.MakeReference(b.Int32, false, types.RegionErased))
	if !in.HasRegions(withRegion) {
		t.Fatal("expected region to be detected")
	}
	if got := in.EraseRegions(withRegion); got != erased {
		t.Fatalf("expected %s, got %s", types.Label(in, erased), types.Label(in, got))
	}

	tup := in.RegisterTuple([]types.TypeID{withRegion, b.Bool})
	want := in.RegisterTuple([]types.TypeID{erased, b.Bool})
	if got := in.EraseRegions(tup); got != want {
		t.Fatalf("expected erased tuple %d, got %d", want, got)
	}
	if in.EraseRegions(b.Int64) != b.Int64 {
		t.Fatal("expected region-free type to be returned unchanged")
	}
}

func TestExistentialInterning(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	iface := in.RegisterInterface(types.InterfaceInfo{
		Name:    "Sink",
		Params:  1,
		Methods: []types.InterfaceMethod{{Name: "put"}},
	})
	e1 := in.InternExistential(types.ExistentialRef{Interface: iface, Args: []types.TypeID{b.Int32}})
	e2 := in.InternExistential(types.ExistentialRef{Interface: iface, Args: []types.TypeID{b.Int32}})
	if e1 != e2 {
		t.Fatalf("expected identical existential ids, got %d and %d", e1, e2)
	}
	if got := types.ExistentialLabel(in, e1); got != "Sink<i32>" {
		t.Fatalf("expected Sink<i32>, got %q", got)
	}

	t0 := in.RegisterTypeParam("T", 0)
	generic := in.InternExistential(types.ExistentialRef{Interface: iface, Args: []types.TypeID{t0}})
	if !in.ExistentialNeedsSubst(generic) {
		t.Fatal("expected generic existential to need substitution")
	}
	if in.InternExistential(types.ExistentialRef{}) != types.NoExistential {
		t.Fatal("expected empty existential to map to NoExistential")
	}
}

func TestImplLookup(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	iface := in.RegisterInterface(types.InterfaceInfo{
		Name:    "Shape",
		Methods: []types.InterfaceMethod{{Name: "area"}, {Name: "name"}},
	})
	circle := in.RegisterStruct("Circle")
	area := in.RegisterFnDef(types.FnDef{Name: "Circle::area", Result: b.Float64})
	if !in.RegisterImpl(circle, iface, nil, map[string]types.FnID{"area": area}) {
		t.Fatal("expected impl registration to succeed")
	}
	impl, ok := in.ImplFor(circle, iface, nil)
	if !ok {
		t.Fatal("expected impl to be found")
	}
	if len(impl.Methods) != 2 || impl.Methods[0] != area || impl.Methods[1] != types.NoFnID {
		t.Fatalf("expected [area, none], got %v", impl.Methods)
	}
}

func TestImplAndDropLookupIgnoreRegions(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	refA := in.Intern(types.MakeReference(b.Int32, false, 3))
	refB := in.Intern(types.MakeReference(b.Int32, false, 9))
	sink := in.RegisterInterface(types.InterfaceInfo{Name: "Sink", Params: 1, Methods: []types.InterfaceMethod{{Name: "put"}}})
	put := in.RegisterFnDef(types.FnDef{Name: "ref::put", Result: b.Unit})
	if !in.RegisterImpl(refA, sink, []types.TypeID{refA}, map[string]types.FnID{"put": put}) {
		t.Fatal("expected impl registration to succeed")
	}
	impl, ok := in.ImplFor(refB, sink, []types.TypeID{refB})
	if !ok {
		t.Fatal("expected impl declared on &'3 i32 to match &'9 i32")
	}
	erased := in.EraseRegions(refA)
	if impl.Self != erased || len(impl.Args) != 1 || impl.Args[0] != erased {
		t.Fatalf("expected erased self and args, got %d %v", impl.Self, impl.Args)
	}

	drop := in.RegisterFnDef(types.FnDef{Name: "ref::drop"})
	in.RegisterDrop(refA, drop)
	if fn, ok := in.DropFn(refB); !ok || fn != drop {
		t.Fatalf("expected ref::drop for &'9 i32, got %d (found=%v)", fn, ok)
	}
}
