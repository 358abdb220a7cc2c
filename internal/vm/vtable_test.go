package vm_test

import (
	"errors"
	"strings"
	"testing"

	"layoutcore/internal/layout"
	"layoutcore/internal/trace"
	"layoutcore/internal/types"
	"layoutcore/internal/vm"
)

type shapeFixture struct {
	in        *types.Interner
	circle    types.TypeID
	shape     types.ExistentialID
	area      types.FnID
	describe  types.FnID
	dropFn    types.FnID
	methodLen int
}

// newShapeFixture declares
//
//	struct Circle { r: f64, tag: u32 }
//	interface Shape { area; describe (default); perimeter; visit<V> (generic) }
//	impl Shape for Circle { area }
func newShapeFixture(t *testing.T) *shapeFixture {
	t.Helper()
	in := types.NewInterner()
	b := in.Builtins()
	t0 := in.RegisterTypeParam("Self", 0)

	circle := in.RegisterStruct("Circle")
	in.SetStructFields(circle, []types.StructField{
		{Name: "r", Type: b.Float64},
		{Name: "tag", Type: b.Uint32},
	})
	circlePtr := in.Intern(types.MakePointer(circle, false))
	selfPtr := in.Intern(types.MakePointer(t0, false))

	area := in.RegisterFnDef(types.FnDef{Name: "Circle::area", Params: []types.TypeID{circlePtr}, Result: b.Float64})
	describe := in.RegisterFnDef(types.FnDef{Name: "Shape::describe", Generics: 1, Params: []types.TypeID{selfPtr}, Result: b.Unit})
	dropFn := in.RegisterFnDef(types.FnDef{Name: "Circle::drop", Params: []types.TypeID{in.Intern(types.MakePointer(circle, true))}})

	iface := in.RegisterInterface(types.InterfaceInfo{
		Name: "Shape",
		Methods: []types.InterfaceMethod{
			{Name: "area"},
			{Name: "describe", Default: describe},
			{Name: "perimeter"},
			{Name: "visit", Generic: true},
		},
	})
	if !in.RegisterImpl(circle, iface, nil, map[string]types.FnID{"area": area}) {
		t.Fatal("expected impl registration to succeed")
	}
	in.RegisterDrop(circle, dropFn)

	return &shapeFixture{
		in:        in,
		circle:    circle,
		shape:     in.InternExistential(types.ExistentialRef{Interface: iface}),
		area:      area,
		describe:  describe,
		dropFn:    dropFn,
		methodLen: 4,
	}
}

func ptrScalar(cx *vm.EvalContext, p vm.Pointer) vm.Scalar {
	return vm.ScalarFromPtr(p, int(cx.Memory.PtrSize()))
}

func TestGetVtableIsCachedPerPair(t *testing.T) {
	f := newShapeFixture(t)
	cx := vm.NewEvalContext(layout.X86_64LinuxGNU(), f.in)

	first, err := cx.GetVtable(f.circle, f.shape)
	if err != nil {
		t.Fatalf("GetVtable failed: %v", err)
	}
	allocs := cx.Memory.AllocCount()
	second, err := cx.GetVtable(f.circle, f.shape)
	if err != nil {
		t.Fatalf("GetVtable failed: %v", err)
	}
	if first != second {
		t.Fatalf("expected the cached table %s, got %s", first, second)
	}
	if cx.Memory.AllocCount() != allocs {
		t.Fatalf("expected no new allocations on a cache hit, got %d -> %d", allocs, cx.Memory.AllocCount())
	}

	plain, err := cx.GetVtable(f.circle, types.NoExistential)
	if err != nil {
		t.Fatalf("GetVtable without interface failed: %v", err)
	}
	if plain == first {
		t.Fatal("expected a distinct table for a different interface")
	}
	if cx.VtableCount() != 2 {
		t.Fatalf("expected 2 cached tables, got %d", cx.VtableCount())
	}
	a, _ := cx.Memory.Allocation(plain.Alloc)
	if a.Size != 3*cx.Memory.PtrSize() {
		t.Fatalf("expected a header-only table of %d bytes, got %d", 3*cx.Memory.PtrSize(), a.Size)
	}
}

func TestGetVtableErasesRegions(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	withRegion := in.Intern(types.MakeReference(b.Int32, false, 7))
	erased := in.Intern(types.MakeReference(b.Int32, false, types.RegionErased))
	cx := vm.NewEvalContext(layout.X86_64LinuxGNU(), in)

	p1, err := cx.GetVtable(withRegion, types.NoExistential)
	if err != nil {
		t.Fatalf("GetVtable failed: %v", err)
	}
	p2, err := cx.GetVtable(erased, types.NoExistential)
	if err != nil {
		t.Fatalf("GetVtable failed: %v", err)
	}
	if p1 != p2 {
		t.Fatalf("expected region-erased inputs to share a table, got %s and %s", p1, p2)
	}
}

func TestGetVtableFindsImplsOnRegionTypes(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	refA := in.Intern(types.MakeReference(b.Int32, false, 3))
	refB := in.Intern(types.MakeReference(b.Int32, false, 5))

	show := in.RegisterInterface(types.InterfaceInfo{Name: "Show", Methods: []types.InterfaceMethod{{Name: "show"}}})
	showFn := in.RegisterFnDef(types.FnDef{Name: "ref::show", Params: []types.TypeID{in.Intern(types.MakePointer(refA, false))}, Result: b.Unit})
	if !in.RegisterImpl(refA, show, nil, map[string]types.FnID{"show": showFn}) {
		t.Fatal("expected impl registration to succeed")
	}

	sink := in.RegisterInterface(types.InterfaceInfo{Name: "Sink", Params: 1, Methods: []types.InterfaceMethod{{Name: "put"}}})
	put := in.RegisterFnDef(types.FnDef{Name: "i64::put", Params: []types.TypeID{in.Intern(types.MakePointer(b.Int64, false)), refA}, Result: b.Unit})
	if !in.RegisterImpl(b.Int64, sink, []types.TypeID{refA}, map[string]types.FnID{"put": put}) {
		t.Fatal("expected impl registration to succeed")
	}

	dropFn := in.RegisterFnDef(types.FnDef{Name: "ref::drop", Params: []types.TypeID{in.Intern(types.MakePointer(refA, true))}})
	in.RegisterDrop(refA, dropFn)

	cx := vm.NewEvalContext(layout.X86_64LinuxGNU(), in)
	ptrSize := cx.Memory.PtrSize()
	firstSlot := func(vt vm.Pointer) vm.FnVal {
		t.Helper()
		v, err := cx.Memory.ReadPtrSized(vt.Add(3 * ptrSize))
		if err != nil {
			t.Fatalf("reading slot 0: %v", err)
		}
		if v.Undef {
			t.Fatal("expected slot 0 to hold the impl method, got undef")
		}
		fn, err := cx.Memory.GetFn(v.Scalar)
		if err != nil {
			t.Fatalf("slot 0 is not a function: %v", err)
		}
		return fn
	}

	// The lookup uses a different region than the impl declaration.
	vt, err := cx.GetVtable(refB, in.InternExistential(types.ExistentialRef{Interface: show}))
	if err != nil {
		t.Fatalf("GetVtable failed: %v", err)
	}
	if fn := firstSlot(vt); fn.Instance.Fn != showFn {
		t.Fatalf("expected ref::show in slot 0, got %s", fn.Instance.Label(in))
	}
	drop, _, err := cx.ReadDropTypeFromVtable(ptrScalar(cx, vt))
	if err != nil {
		t.Fatalf("ReadDropTypeFromVtable failed: %v", err)
	}
	if drop.Fn != dropFn {
		t.Fatalf("expected the destructor declared on &'3 i32, got %s", drop.Label(in))
	}

	vt, err = cx.GetVtable(b.Int64, in.InternExistential(types.ExistentialRef{Interface: sink, Args: []types.TypeID{refB}}))
	if err != nil {
		t.Fatalf("GetVtable failed: %v", err)
	}
	if fn := firstSlot(vt); fn.Instance.Fn != put {
		t.Fatalf("expected i64::put in slot 0, got %s", fn.Instance.Label(in))
	}
}

func TestGetVtableHeaderMatchesLayout(t *testing.T) {
	targets := []layout.Target{layout.X86_64LinuxGNU(), layout.ARMv7HF()}
	for _, target := range targets {
		t.Run(target.Triple, func(t *testing.T) {
			f := newShapeFixture(t)
			cx := vm.NewEvalContext(target, f.in)
			vt, err := cx.GetVtable(f.circle, f.shape)
			if err != nil {
				t.Fatalf("GetVtable failed: %v", err)
			}
			l, err := cx.Layout.LayoutOf(f.circle)
			if err != nil {
				t.Fatalf("LayoutOf failed: %v", err)
			}
			size, align, err := cx.ReadSizeAndAlignFromVtable(ptrScalar(cx, vt))
			if err != nil {
				t.Fatalf("ReadSizeAndAlignFromVtable failed: %v", err)
			}
			if size != uint64(l.Size) || align != uint64(l.Align) {
				t.Fatalf("expected size %d align %d, got %d/%d", l.Size, l.Align, size, align)
			}
			a, _ := cx.Memory.Allocation(vt.Alloc)
			want := cx.Memory.PtrSize() * uint64(3+f.methodLen)
			if a.Size != want || a.Kind != vm.MemoryKindVtable || a.Mutable {
				t.Fatalf("expected immutable %d-byte vtable allocation, got %d bytes kind %s mutable=%v", want, a.Size, a.Kind, a.Mutable)
			}
		})
	}
}

func TestReadDropTypeRoundTrip(t *testing.T) {
	f := newShapeFixture(t)
	cx := vm.NewEvalContext(layout.X86_64LinuxGNU(), f.in)
	vt, err := cx.GetVtable(f.circle, f.shape)
	if err != nil {
		t.Fatalf("GetVtable failed: %v", err)
	}
	instance, ty, err := cx.ReadDropTypeFromVtable(ptrScalar(cx, vt))
	if err != nil {
		t.Fatalf("ReadDropTypeFromVtable failed: %v", err)
	}
	if ty != f.circle {
		t.Fatalf("expected Circle, got %s", types.Label(f.in, ty))
	}
	if instance.Kind != vm.InstanceDropGlue || instance.Fn != f.dropFn {
		t.Fatalf("expected drop glue calling Circle::drop, got %s", instance.Label(f.in))
	}

	// Types without a destructor still get glue.
	b := f.in.Builtins()
	vt2, err := cx.GetVtable(b.Int64, types.NoExistential)
	if err != nil {
		t.Fatalf("GetVtable failed: %v", err)
	}
	_, ty, err = cx.ReadDropTypeFromVtable(ptrScalar(cx, vt2))
	if err != nil {
		t.Fatalf("ReadDropTypeFromVtable failed: %v", err)
	}
	if ty != b.Int64 {
		t.Fatalf("expected i64, got %s", types.Label(f.in, ty))
	}
}

func TestMethodSlots(t *testing.T) {
	f := newShapeFixture(t)
	cx := vm.NewEvalContext(layout.X86_64LinuxGNU(), f.in)
	vt, err := cx.GetVtable(f.circle, f.shape)
	if err != nil {
		t.Fatalf("GetVtable failed: %v", err)
	}
	ptrSize := cx.Memory.PtrSize()
	slot := func(i int) vm.ScalarMaybeUndef {
		t.Helper()
		v, err := cx.Memory.ReadPtrSized(vt.Add(ptrSize * uint64(3+i)))
		if err != nil {
			t.Fatalf("reading slot %d: %v", i, err)
		}
		return v
	}

	area, err := cx.Memory.GetFn(slot(0).Scalar)
	if err != nil {
		t.Fatalf("slot 0 is not a function: %v", err)
	}
	if area.Instance.Kind != vm.InstanceItem || area.Instance.Fn != f.area {
		t.Fatalf("expected Circle::area, got %s", area.Instance.Label(f.in))
	}

	describe, err := cx.Memory.GetFn(slot(1).Scalar)
	if err != nil {
		t.Fatalf("slot 1 is not a function: %v", err)
	}
	if describe.Instance.Kind != vm.InstanceVtableShim || describe.Instance.Fn != f.describe {
		t.Fatalf("expected a shim for Shape::describe, got %s", describe.Instance.Label(f.in))
	}
	if len(describe.Instance.Substs) != 1 || describe.Instance.Substs[0] != f.circle {
		t.Fatalf("expected the shim to be instantiated with Circle, got %v", describe.Instance.Substs)
	}

	if !slot(2).Undef {
		t.Fatalf("expected unimplemented method slot to stay undefined, got %s", slot(2))
	}
	if !slot(3).Undef {
		t.Fatalf("expected generic method slot to stay undefined, got %s", slot(3))
	}
}

func TestGetVtableRejectsGenericInputs(t *testing.T) {
	f := newShapeFixture(t)
	b := f.in.Builtins()
	t0 := f.in.RegisterTypeParam("T", 0)
	wrapper := f.in.RegisterStruct("Wrapper")
	f.in.SetStructFields(wrapper, []types.StructField{{Name: "value", Type: t0}})

	sink := f.in.RegisterInterface(types.InterfaceInfo{Name: "Sink", Params: 1, Methods: []types.InterfaceMethod{{Name: "put"}}})
	genericSink := f.in.InternExistential(types.ExistentialRef{Interface: sink, Args: []types.TypeID{t0}})

	cx := vm.NewEvalContext(layout.X86_64LinuxGNU(), f.in)
	cases := []struct {
		name string
		ty   types.TypeID
		ex   types.ExistentialID
	}{
		{"generic type", wrapper, types.NoExistential},
		{"generic param", t0, f.shape},
		{"generic interface", b.Int32, genericSink},
	}
	for _, tc := range cases {
		_, err := cx.GetVtable(tc.ty, tc.ex)
		if !errors.Is(err, vm.ErrTooGeneric) {
			t.Fatalf("%s: expected ErrTooGeneric, got %v", tc.name, err)
		}
		if !errors.Is(err, vm.ErrInvalidProgram) {
			t.Fatalf("%s: expected the error to count as an invalid program, got %v", tc.name, err)
		}
	}
	if cx.Memory.AllocCount() != 0 || cx.VtableCount() != 0 {
		t.Fatalf("expected no allocations and no cached tables, got %d and %d", cx.Memory.AllocCount(), cx.VtableCount())
	}
}

func TestGetVtableGenericMethodFailsWholeTable(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	iface := in.RegisterInterface(types.InterfaceInfo{Name: "Convert", Methods: []types.InterfaceMethod{{Name: "into"}}})
	// The impl body takes one more parameter than the dispatch site provides.
	into := in.RegisterFnDef(types.FnDef{Name: "i32::into", Generics: 2, Result: b.Unit})
	in.RegisterImpl(b.Int32, iface, nil, map[string]types.FnID{"into": into})
	ex := in.InternExistential(types.ExistentialRef{Interface: iface})

	cx := vm.NewEvalContext(layout.X86_64LinuxGNU(), in)
	_, err := cx.GetVtable(b.Int32, ex)
	var ierr *vm.InterpError
	if !errors.As(err, &ierr) || ierr.Code != vm.CodeTooGeneric {
		t.Fatalf("expected %s, got %v", vm.CodeTooGeneric, err)
	}
	if !strings.Contains(err.Error(), "i32::into") {
		t.Fatalf("expected the failing method to be named, got %q", err)
	}
	if cx.Memory.AllocCount() != 0 || cx.VtableCount() != 0 {
		t.Fatalf("expected no allocations and no cached tables, got %d and %d", cx.Memory.AllocCount(), cx.VtableCount())
	}
}

func TestGetVtableUnsizedPanics(t *testing.T) {
	in := types.NewInterner()
	cx := vm.NewEvalContext(layout.X86_64LinuxGNU(), in)
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for an unsized type")
		}
	}()
	_, _ = cx.GetVtable(in.Builtins().Str, types.NoExistential)
}

// handTable builds a mutable heap table with the given header words.
func handTable(t *testing.T, cx *vm.EvalContext, drop vm.ScalarMaybeUndef, size, align uint64) vm.Pointer {
	t.Helper()
	mem := cx.Memory
	ptrSize := mem.PtrSize()
	p, err := mem.Allocate(3*ptrSize, ptrSize, vm.MemoryKindHeap)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	words := []vm.ScalarMaybeUndef{
		drop,
		vm.Defined(vm.ScalarFromUint(size, int(ptrSize))),
		vm.Defined(vm.ScalarFromUint(align, int(ptrSize))),
	}
	for i, w := range words {
		if err := mem.WritePtrSized(p.Add(ptrSize*uint64(i)), w); err != nil {
			t.Fatalf("writing word %d: %v", i, err)
		}
	}
	return p
}

func TestReadSizeAndAlignRejectsHugeSize(t *testing.T) {
	for _, target := range []layout.Target{layout.X86_64LinuxGNU(), layout.ARMv7()} {
		cx := vm.NewEvalContext(target, types.NewInterner())
		bound := target.ObjSizeBound()

		ok := handTable(t, cx, vm.Undef, bound-1, 8)
		size, _, err := cx.ReadSizeAndAlignFromVtable(ptrScalar(cx, ok))
		if err != nil || size != bound-1 {
			t.Fatalf("%s: expected size %d to be accepted, got %d, %v", target.Triple, bound-1, size, err)
		}

		bad := handTable(t, cx, vm.Undef, bound, 8)
		_, _, err = cx.ReadSizeAndAlignFromVtable(ptrScalar(cx, bad))
		var ierr *vm.InterpError
		if !errors.As(err, &ierr) || ierr.Code != vm.CodeInvalidVtable {
			t.Fatalf("%s: expected %s, got %v", target.Triple, vm.CodeInvalidVtable, err)
		}
		if !errors.Is(err, vm.ErrUndefinedBehavior) {
			t.Fatalf("%s: expected undefined behavior, got %v", target.Triple, err)
		}
	}
}

func TestReadSizeAndAlignBadAlignPanics(t *testing.T) {
	cx := vm.NewEvalContext(layout.X86_64LinuxGNU(), types.NewInterner())
	p := handTable(t, cx, vm.Undef, 8, 3)
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for a non power of two alignment")
		}
	}()
	_, _, _ = cx.ReadSizeAndAlignFromVtable(ptrScalar(cx, p))
}

func TestReadFromInvalidTables(t *testing.T) {
	cx := vm.NewEvalContext(layout.X86_64LinuxGNU(), types.NewInterner())
	mem := cx.Memory

	host := mem.CreateFnAlloc(vm.OtherFn("host_free"))
	notInstance := handTable(t, cx, vm.Defined(ptrScalar(cx, host)), 8, 8)
	raw := handTable(t, cx, vm.Defined(vm.ScalarFromUint(0x1234, 8)), 8, 8)
	undef := handTable(t, cx, vm.Undef, 8, 8)
	short, err := mem.Allocate(8, 8, vm.MemoryKindHeap)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	cases := []struct {
		name string
		ptr  vm.Scalar
		code vm.ErrorCode
	}{
		{"non-instance function", ptrScalar(cx, notInstance), vm.CodeNotAnInstance},
		{"integer drop slot", ptrScalar(cx, raw), vm.CodeInvalidFnPointer},
		{"uninitialized drop slot", ptrScalar(cx, undef), vm.CodeUninitRead},
		{"misaligned table", ptrScalar(cx, notInstance.Add(4)), vm.CodeMisaligned},
		{"dangling address", vm.ScalarFromUint(0x10, 8), vm.CodeDanglingPointer},
	}
	for _, tc := range cases {
		_, _, err := cx.ReadDropTypeFromVtable(tc.ptr)
		var ierr *vm.InterpError
		if !errors.As(err, &ierr) || ierr.Code != tc.code {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.code, err)
		}
	}

	_, _, err = cx.ReadSizeAndAlignFromVtable(ptrScalar(cx, short))
	var ierr *vm.InterpError
	if !errors.As(err, &ierr) || ierr.Code != vm.CodeOutOfBounds {
		t.Fatalf("expected %s for a one-word table, got %v", vm.CodeOutOfBounds, err)
	}
}

func TestVtableReachableByIntegerAddress(t *testing.T) {
	f := newShapeFixture(t)
	cx := vm.NewEvalContext(layout.X86_64LinuxGNU(), f.in)
	vt, err := cx.GetVtable(f.circle, f.shape)
	if err != nil {
		t.Fatalf("GetVtable failed: %v", err)
	}
	addr, ok := cx.Memory.Address(vt)
	if !ok {
		t.Fatal("expected the table to have an address")
	}
	_, ty, err := cx.ReadDropTypeFromVtable(vm.ScalarFromUint(addr, 8))
	if err != nil {
		t.Fatalf("ReadDropTypeFromVtable by address failed: %v", err)
	}
	if ty != f.circle {
		t.Fatalf("expected Circle, got %s", types.Label(f.in, ty))
	}
}

func TestGetVtableTraceSpan(t *testing.T) {
	f := newShapeFixture(t)
	ring := trace.NewRingTracer(64, trace.LevelDebug)
	cx := vm.NewEvalContext(layout.X86_64LinuxGNU(), f.in, vm.WithTracer(ring))
	if _, err := cx.GetVtable(f.circle, f.shape); err != nil {
		t.Fatalf("GetVtable failed: %v", err)
	}
	begins := len(ring.Filter(func(ev *trace.Event) bool {
		return ev.Kind == trace.KindSpanBegin && ev.Name == "vtable:Circle as dyn Shape"
	}))
	slots := len(ring.Filter(func(ev *trace.Event) bool {
		return ev.Kind == trace.KindPoint && ev.Name == "slot"
	}))
	if begins != 1 || slots != 2 {
		t.Fatalf("expected 1 table span and 2 slot events, got %d and %d", begins, slots)
	}
}

func TestContextsAreIndependent(t *testing.T) {
	f := newShapeFixture(t)
	a := vm.NewEvalContext(layout.X86_64LinuxGNU(), f.in)
	b := vm.NewEvalContext(layout.X86_64LinuxGNU(), f.in)
	if a.ID == b.ID {
		t.Fatal("expected distinct context ids")
	}
	if _, err := a.GetVtable(f.circle, f.shape); err != nil {
		t.Fatalf("GetVtable failed: %v", err)
	}
	if b.VtableCount() != 0 || b.Memory.AllocCount() != 0 {
		t.Fatal("expected the second context to be untouched")
	}
}
