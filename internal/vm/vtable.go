package vm

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"layoutcore/internal/layout"
	"layoutcore/internal/trace"
	"layoutcore/internal/types"
)

// Dispatch table word indices.
const (
	vtableDrop  = 0
	vtableSize  = 1
	vtableAlign = 2
	// vtableHeader is the number of words before the first method slot.
	vtableHeader = 3
)

// GetVtable returns the dispatch table for ty used through ex, building it on
// first use. Tables are cached for the lifetime of the context, so the same
// normalized pair always yields the same pointer. Inputs that still mention
// generic parameters fail with ErrTooGeneric before anything is allocated.
//
// ex may be types.NoExistential for a table with no method slots.
func (cx *EvalContext) GetVtable(ty types.TypeID, ex types.ExistentialID) (Pointer, error) {
	ty = cx.Types.EraseRegions(ty)
	ex = cx.Types.EraseExistentialRegions(ex)

	if cx.Types.NeedsSubst(ty) {
		return Pointer{}, tooGeneric(types.Label(cx.Types, ty))
	}
	if cx.Types.ExistentialNeedsSubst(ex) {
		return Pointer{}, tooGeneric("dyn " + types.ExistentialLabel(cx.Types, ex))
	}

	key := vtableKey{Ty: ty, Ex: ex}
	if vtable, ok := cx.vtables[key]; ok {
		return vtable, nil
	}

	name := types.Label(cx.Types, ty) + " as dyn " + types.ExistentialLabel(cx.Types, ex)
	span := trace.Begin(cx.Tracer, trace.ScopeItem, "vtable:"+name, 0)
	defer span.End("")

	// Slots are resolved before allocation; a failure allocates nothing.
	methods := cx.Resolver.VtableMethods(ty, ex)
	slots := make([]*Instance, len(methods))
	for i, method := range methods {
		if method == nil {
			continue
		}
		instance, ok := cx.Resolver.ResolveForVtable(method)
		if !ok {
			return Pointer{}, tooGeneric(fmt.Sprintf("method %d (%s) of %s", i, types.FnLabel(cx.Types, method.Fn), name))
		}
		slots[i] = &instance
	}

	l, err := cx.Layout.LayoutOf(ty)
	if err != nil {
		var lerr *layout.LayoutError
		if errors.As(err, &lerr) && lerr.Kind == layout.LayoutErrTooGeneric {
			return Pointer{}, &InterpError{Code: CodeTooGeneric, Message: lerr.Error(), Err: err}
		}
		return Pointer{}, &InterpError{Code: CodeLayout, Message: err.Error(), Err: err}
	}
	if l.Unsized {
		panic(fmt.Sprintf("vm: can't create a vtable for unsized type %s", types.Label(cx.Types, ty)))
	}

	vtable, size, align, err := cx.writeVtable(ty, l, slots, span)
	if err != nil {
		return Pointer{}, err
	}
	if _, dup := cx.vtables[key]; dup {
		panic(fmt.Sprintf("vm: duplicate vtable for %s", name))
	}
	cx.vtables[key] = vtable

	cx.log.Debug("vtable created",
		zap.String("for", name),
		zap.Stringer("ptr", vtable),
		zap.Int("methods", len(methods)),
		zap.Uint64("size", size),
		zap.Uint64("align", align))
	span.WithExtra("methods", fmt.Sprint(len(methods)))
	return vtable, nil
}

// writeVtable allocates the table for ty and fills its header and resolved
// slots. Nothing is allocated unless l describes a valid sized layout.
func (cx *EvalContext) writeVtable(ty types.TypeID, l layout.TypeLayout, slots []*Instance, span *trace.Span) (vtable Pointer, size, align uint64, err error) {
	size, align, err = layoutWords(l)
	if err != nil {
		return Pointer{}, 0, 0, err
	}

	mem := cx.Memory
	ptrSize := mem.PtrSize()
	words := uint64(vtableHeader + len(slots))
	vtable, err = mem.Allocate(ptrSize*words, uint64(cx.Target().PtrAlign), MemoryKindVtable)
	if err != nil {
		return Pointer{}, 0, 0, err
	}

	drop := mem.CreateFnAlloc(InstanceFn(cx.Resolver.ResolveDropInPlace(ty)))
	header := []ScalarMaybeUndef{
		vtableDrop:  Defined(ScalarFromPtr(drop, int(ptrSize))),
		vtableSize:  Defined(ScalarFromUint(size, int(ptrSize))),
		vtableAlign: Defined(ScalarFromUint(align, int(ptrSize))),
	}
	for i, v := range header {
		if err := mem.WritePtrSized(vtable.Add(ptrSize*uint64(i)), v); err != nil {
			return Pointer{}, 0, 0, err
		}
	}
	for i, instance := range slots {
		if instance == nil {
			continue
		}
		fnPtr := mem.CreateFnAlloc(InstanceFn(*instance))
		slot := vtable.Add(ptrSize * uint64(vtableHeader+i))
		if err := mem.WritePtrSized(slot, Defined(ScalarFromPtr(fnPtr, int(ptrSize)))); err != nil {
			return Pointer{}, 0, 0, err
		}
		trace.Point(cx.Tracer, trace.ScopeDetail, "slot", instance.Label(cx.Types), span.ID())
	}

	if err := mem.MarkImmutable(vtable.Alloc); err != nil {
		return Pointer{}, 0, 0, err
	}
	return vtable, size, align, nil
}

// ReadDropTypeFromVtable returns the drop glue stored in a table together
// with the concrete type it drops.
func (cx *EvalContext) ReadDropTypeFromVtable(vtable Scalar) (Instance, types.TypeID, error) {
	mem := cx.Memory
	ptrSize := mem.PtrSize()
	p, ok, err := mem.CheckPtrAccess(vtable, ptrSize, uint64(cx.Target().PtrAlign))
	if err != nil {
		return Instance{}, types.NoTypeID, err
	}
	if !ok {
		panic("vm: pointer-sized access cannot be zero-sized")
	}
	word, err := mem.ReadPtrSized(p)
	if err != nil {
		return Instance{}, types.NoTypeID, err
	}
	dropFn, err := word.NotUndef()
	if err != nil {
		return Instance{}, types.NoTypeID, err
	}
	fnVal, err := mem.GetFn(dropFn)
	if err != nil {
		return Instance{}, types.NoTypeID, err
	}
	// Only an instance carries the type being dropped.
	instance, err := fnVal.AsInstance()
	if err != nil {
		return Instance{}, types.NoTypeID, err
	}
	sig, err := instance.Signature(cx.Types)
	if err != nil {
		return Instance{}, types.NoTypeID, err
	}
	ty, err := droppedType(cx.Types, sig)
	if err != nil {
		return Instance{}, types.NoTypeID, err
	}
	return instance, ty, nil
}

// ReadSizeAndAlignFromVtable returns the size and alignment stored in a table.
func (cx *EvalContext) ReadSizeAndAlignFromVtable(vtable Scalar) (size, align uint64, err error) {
	mem := cx.Memory
	ptrSize := mem.PtrSize()
	// 3 words cover the drop slot (unused here), size and align.
	p, ok, err := mem.CheckPtrAccess(vtable, vtableHeader*ptrSize, uint64(cx.Target().PtrAlign))
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		panic("vm: table header access cannot be zero-sized")
	}
	size, err = cx.readWordBits(p.Add(vtableSize * ptrSize))
	if err != nil {
		return 0, 0, err
	}
	align, err = cx.readWordBits(p.Add(vtableAlign * ptrSize))
	if err != nil {
		return 0, 0, err
	}
	if align == 0 || align&(align-1) != 0 {
		panic(fmt.Sprintf("vm: vtable alignment %d is not a power of two", align))
	}
	if size >= cx.Target().ObjSizeBound() {
		return 0, 0, makeError(CodeInvalidVtable, "invalid vtable: size is bigger than largest supported object")
	}
	return size, align, nil
}

func (cx *EvalContext) readWordBits(p Pointer) (uint64, error) {
	word, err := cx.Memory.ReadPtrSized(p)
	if err != nil {
		return 0, err
	}
	s, err := word.NotUndef()
	if err != nil {
		return 0, err
	}
	return s.ToBits(int(cx.Memory.PtrSize()))
}

// droppedType extracts T from a drop signature `fn(*mut T)`.
func droppedType(in *types.Interner, sig types.TypeID) (types.TypeID, error) {
	info, ok := in.FnInfo(sig)
	if !ok || len(info.Params) == 0 {
		return types.NoTypeID, makeError(CodeNotAnInstance, "drop function %s takes no arguments", types.Label(in, sig))
	}
	self := in.EraseRegions(info.Params[0])
	tt, ok := in.Lookup(self)
	if !ok || (tt.Kind != types.KindPointer && tt.Kind != types.KindReference) {
		return types.NoTypeID, makeError(CodeNotAnInstance, "drop function %s does not take a pointer", types.Label(in, sig))
	}
	return tt.Elem, nil
}

func layoutWords(l layout.TypeLayout) (size, align uint64, err error) {
	if l.Size < 0 || l.Align <= 0 {
		return 0, 0, makeError(CodeLayout, "invalid layout %d/%d", l.Size, l.Align)
	}
	return uint64(l.Size), uint64(l.Align), nil
}
