package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"layoutcore/internal/types"
	"layoutcore/internal/vm"
)

// CheckVtableInvariants re-reads a freshly built dispatch table and checks it
// against the layout oracle:
// 1) the allocation is an immutable vtable of 3+M pointer-sized words
// 2) words 1 and 2 equal the layout's size and alignment
// 3) word 0 is drop glue whose signature recovers ty
func CheckVtableInvariants(cx *vm.EvalContext, ty types.TypeID, ex types.ExistentialID, vtable vm.Pointer) error {
	if cx == nil {
		return fmt.Errorf("nil context")
	}
	a, ok := cx.Memory.Allocation(vtable.Alloc)
	if !ok {
		return fmt.Errorf("vtable %s has no allocation", vtable)
	}
	if a.Kind != vm.MemoryKindVtable || a.Mutable {
		return fmt.Errorf("vtable %s: expected immutable vtable memory, got mutable=%v kind=%s", vtable, a.Mutable, a.Kind)
	}

	methods := 0
	if ref, ok := cx.Types.Existential(ex); ok {
		if info, ok := cx.Types.InterfaceInfo(ref.Interface); ok {
			methods = len(info.Methods)
		}
	}
	words, err := safecast.Conv[uint64](3 + methods)
	if err != nil {
		return fmt.Errorf("method count overflow: %w", err)
	}
	if want := words * cx.Memory.PtrSize(); a.Size != want {
		return fmt.Errorf("vtable %s: expected %d bytes, got %d", vtable, want, a.Size)
	}

	l, err := cx.Layout.LayoutOf(cx.Types.EraseRegions(ty))
	if err != nil {
		return fmt.Errorf("layout of %s: %w", types.Label(cx.Types, ty), err)
	}
	ptr := vm.ScalarFromPtr(vtable, int(cx.Memory.PtrSize()))
	size, align, err := cx.ReadSizeAndAlignFromVtable(ptr)
	if err != nil {
		return fmt.Errorf("vtable %s: %w", vtable, err)
	}
	if size != uint64(l.Size) || align != uint64(l.Align) {
		return fmt.Errorf("vtable %s: size/align %d/%d disagree with layout %d/%d", vtable, size, align, l.Size, l.Align)
	}

	instance, dropped, err := cx.ReadDropTypeFromVtable(ptr)
	if err != nil {
		return fmt.Errorf("vtable %s: %w", vtable, err)
	}
	if instance.Kind != vm.InstanceDropGlue {
		return fmt.Errorf("vtable %s: word 0 holds %s, not drop glue", vtable, instance.Label(cx.Types))
	}
	if want := cx.Types.EraseRegions(ty); dropped != want {
		return fmt.Errorf("vtable %s: drop glue is for %s, expected %s", vtable, types.Label(cx.Types, dropped), types.Label(cx.Types, want))
	}
	return nil
}
