package vm

import (
	"errors"
	"testing"

	"layoutcore/internal/layout"
	"layoutcore/internal/trace"
	"layoutcore/internal/types"
)

func TestWriteVtableRejectsBadLayoutWithoutAllocating(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	cx := NewEvalContext(layout.ARMv7HF(), in)
	span := trace.Begin(cx.Tracer, trace.ScopeItem, "vtable", 0)

	bad := []layout.TypeLayout{
		{Size: -1, Align: 4},
		{Size: 4, Align: 0},
	}
	for _, l := range bad {
		_, _, _, err := cx.writeVtable(b.Int32, l, []*Instance{nil}, span)
		var ierr *InterpError
		if !errors.As(err, &ierr) || ierr.Code != CodeLayout {
			t.Fatalf("expected %s for %d/%d, got %v", CodeLayout, l.Size, l.Align, err)
		}
	}
	if cx.Memory.AllocCount() != 0 {
		t.Fatalf("expected no allocations after rejected layouts, got %d", cx.Memory.AllocCount())
	}

	vt, size, align, err := cx.writeVtable(b.Int32, layout.TypeLayout{Size: 4, Align: 4}, []*Instance{nil}, span)
	if err != nil {
		t.Fatalf("writeVtable failed: %v", err)
	}
	if size != 4 || align != 4 {
		t.Fatalf("expected 4/4, got %d/%d", size, align)
	}
	a, ok := cx.Memory.Allocation(vt.Alloc)
	if !ok || a.Mutable || a.Size != 4*cx.Memory.PtrSize() {
		t.Fatalf("expected an immutable 4-word table, got %+v", a)
	}
}
