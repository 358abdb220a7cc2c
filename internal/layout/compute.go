package layout

import (
	"fortio.org/safecast"

	"layoutcore/internal/types"
)

func (e *LayoutEngine) computeLayout(id types.TypeID, state *layoutState) (TypeLayout, *LayoutError) {
	if id == types.NoTypeID {
		return TypeLayout{Size: 0, Align: 1}, nil
	}
	tt, ok := e.Types.Lookup(id)
	if !ok {
		return TypeLayout{Size: 0, Align: 1}, e.errorf(LayoutErrUnknownType, id)
	}

	switch tt.Kind {
	case types.KindUnit, types.KindNever:
		return TypeLayout{Size: 0, Align: 1}, nil

	case types.KindBool:
		return TypeLayout{Size: 1, Align: 1, Scalar: ScalarBool}, nil

	case types.KindInt:
		if tt.Width == types.WidthAny {
			return e.ptrSizedInt(ScalarInt), nil
		}
		return e.scalarLayoutBytes(int(tt.Width)/8, ScalarInt), nil

	case types.KindUint:
		if tt.Width == types.WidthAny {
			return e.ptrSizedInt(ScalarUint), nil
		}
		return e.scalarLayoutBytes(int(tt.Width)/8, ScalarUint), nil

	case types.KindFloat:
		return e.scalarLayoutBytes(int(tt.Width)/8, ScalarFloat), nil

	case types.KindVector:
		return e.scalarLayoutBytes(int(tt.Width)/8, ScalarVector), nil

	case types.KindFn:
		return e.ptrLayout(), nil

	case types.KindPointer, types.KindReference:
		unsized, err := e.isUnsized(tt.Elem, make(map[types.TypeID]struct{}, 4))
		if err != nil {
			return TypeLayout{Size: 0, Align: 1}, err
		}
		if unsized {
			// Data pointer plus length or table pointer.
			l := e.ptrLayout()
			l.Size *= 2
			l.Scalar = ScalarNone
			l.Aggregate = true
			return l, nil
		}
		return e.ptrLayout(), nil

	case types.KindStr:
		return TypeLayout{Size: 0, Align: 1, Unsized: true}, nil

	case types.KindDyn:
		// The concrete alignment lives in the dispatch table.
		return TypeLayout{Size: 0, Align: 1, Unsized: true}, nil

	case types.KindSlice:
		el, err := e.layoutOf(tt.Elem, state)
		if err != nil {
			return TypeLayout{Size: 0, Align: 1}, err
		}
		if el.Unsized {
			return TypeLayout{Size: 0, Align: 1}, e.errorf(LayoutErrUnsizedField, id)
		}
		return TypeLayout{Size: 0, Align: el.Align, Unsized: true}, nil

	case types.KindArray:
		return e.arrayFixedLayout(id, tt.Elem, tt.Count, state)

	case types.KindStruct:
		return e.structLayoutWithAttrs(id, state)

	case types.KindTuple:
		return e.tupleLayout(id, state)

	case types.KindGenericParam:
		return TypeLayout{Size: 0, Align: 1}, e.errorf(LayoutErrTooGeneric, id)

	default:
		return TypeLayout{Size: 0, Align: 1}, e.errorf(LayoutErrUnknownType, id)
	}
}

// isUnsized answers without computing the pointee layout, so pointers to
// recursive structs do not trip cycle detection.
func (e *LayoutEngine) isUnsized(id types.TypeID, seen map[types.TypeID]struct{}) (bool, *LayoutError) {
	tt, ok := e.Types.Lookup(id)
	if !ok {
		return false, nil
	}
	switch tt.Kind {
	case types.KindSlice, types.KindStr, types.KindDyn:
		return true, nil
	case types.KindGenericParam:
		return false, e.errorf(LayoutErrTooGeneric, id)
	case types.KindStruct:
		if _, ok := seen[id]; ok {
			return false, nil
		}
		seen[id] = struct{}{}
		fields := e.Types.StructFields(id)
		if len(fields) == 0 {
			return false, nil
		}
		return e.isUnsized(fields[len(fields)-1].Type, seen)
	default:
		return false, nil
	}
}

func (e *LayoutEngine) ptrLayout() TypeLayout {
	ptrSize := e.Target.PtrSize
	ptrAlign := e.Target.PtrAlign
	if ptrSize <= 0 {
		ptrSize = 8
	}
	if ptrAlign <= 0 {
		ptrAlign = ptrSize
	}
	return TypeLayout{Size: ptrSize, Align: ptrAlign, Scalar: ScalarPointer}
}

func (e *LayoutEngine) ptrSizedInt(kind ScalarKind) TypeLayout {
	l := e.ptrLayout()
	l.Scalar = kind
	return l
}

func (e *LayoutEngine) scalarLayoutBytes(size int, kind ScalarKind) TypeLayout {
	if size <= 0 {
		return TypeLayout{Size: 0, Align: 1}
	}
	align := size
	if limit := e.Target.MaxScalarAlign; limit > 0 && align > limit {
		align = limit
	}
	return TypeLayout{Size: size, Align: align, Scalar: kind}
}

func roundUp(n, align int) int {
	if align <= 1 {
		return n
	}
	r := n % align
	if r == 0 {
		return n
	}
	return n + (align - r)
}

func (e *LayoutEngine) arrayFixedLayout(id, elem types.TypeID, length uint32, state *layoutState) (TypeLayout, *LayoutError) {
	elemLayout, err := e.layoutOf(elem, state)
	if err != nil {
		return TypeLayout{Size: 0, Align: 1}, err
	}
	if elemLayout.Unsized {
		return TypeLayout{Size: 0, Align: 1}, e.errorf(LayoutErrUnsizedField, id)
	}
	elemAlign := max(elemLayout.Align, 1)
	stride := roundUp(elemLayout.Size, elemAlign)
	n, convErr := safecast.Conv[int](length)
	if convErr != nil {
		return TypeLayout{Size: 0, Align: 1}, e.errorf(LayoutErrSizeOverflow, id)
	}
	bound := e.Target.ObjSizeBound()
	if stride > 0 && uint64(n) >= bound/uint64(stride) {
		return TypeLayout{Size: 0, Align: 1}, e.errorf(LayoutErrSizeOverflow, id)
	}
	return TypeLayout{
		Size:      stride * n,
		Align:     elemAlign,
		Aggregate: true,
	}, nil
}

func (e *LayoutEngine) structLayoutWithAttrs(id types.TypeID, state *layoutState) (TypeLayout, *LayoutError) {
	attrs, _ := e.Types.TypeLayoutAttrs(id)
	if err := attrs.Validate(); err != nil {
		lerr := e.errorf(LayoutErrInvalidAttrs, id)
		lerr.Err = err
		return TypeLayout{Size: 0, Align: 1}, lerr
	}

	info, ok := e.Types.StructInfo(id)
	if !ok || info == nil || len(info.Fields) == 0 {
		align := 1
		if attrs.AlignOverride != nil {
			align = *attrs.AlignOverride
		}
		return TypeLayout{Size: 0, Align: align, Aggregate: true}, nil
	}
	fields := info.Fields
	offsets := make([]int, len(fields))
	aligns := make([]int, len(fields))
	unsized := false

	size := 0
	align := 1
	var only newtypeField
	for i := range fields {
		fl, err := e.layoutOf(fields[i].Type, state)
		if err != nil {
			return TypeLayout{Size: 0, Align: 1}, err
		}
		only.observe(fl)
		if fl.Unsized {
			if i != len(fields)-1 {
				return TypeLayout{Size: 0, Align: 1}, e.errorf(LayoutErrUnsizedField, id)
			}
			unsized = true
		}
		fAlign := max(fl.Align, 1)
		if attrs.Packed {
			fAlign = 1
		} else if fields[i].Layout.AlignOverride != nil {
			fAlign = max(fAlign, *fields[i].Layout.AlignOverride)
		}
		size = roundUp(size, fAlign)
		offsets[i] = size
		aligns[i] = fAlign
		size += fl.Size
		align = max(align, fAlign)
	}
	if attrs.AlignOverride != nil {
		align = max(align, *attrs.AlignOverride)
	}
	if !unsized {
		size = roundUp(size, align)
	}
	l := TypeLayout{
		Size:         size,
		Align:        align,
		Unsized:      unsized,
		Aggregate:    true,
		FieldOffsets: offsets,
		FieldAligns:  aligns,
	}
	if !attrs.Packed {
		only.apply(&l)
	}
	return l, nil
}

func (e *LayoutEngine) tupleLayout(id types.TypeID, state *layoutState) (TypeLayout, *LayoutError) {
	info, ok := e.Types.TupleInfo(id)
	if !ok || info == nil || len(info.Elems) == 0 {
		return TypeLayout{Size: 0, Align: 1}, nil
	}
	offsets := make([]int, len(info.Elems))
	aligns := make([]int, len(info.Elems))
	size := 0
	align := 1
	var only newtypeField
	for i, elem := range info.Elems {
		el, err := e.layoutOf(elem, state)
		if err != nil {
			return TypeLayout{Size: 0, Align: 1}, err
		}
		only.observe(el)
		if el.Unsized {
			return TypeLayout{Size: 0, Align: 1}, e.errorf(LayoutErrUnsizedField, id)
		}
		a := max(el.Align, 1)
		size = roundUp(size, a)
		offsets[i] = size
		aligns[i] = a
		size += el.Size
		align = max(align, a)
	}
	size = roundUp(size, align)
	l := TypeLayout{
		Size:         size,
		Align:        align,
		Aggregate:    true,
		FieldOffsets: offsets,
		FieldAligns:  aligns,
	}
	only.apply(&l)
	return l, nil
}

// newtypeField tracks the non-zero-sized fields of a struct or tuple. A
// wrapper around exactly one scalar, with no extra padding or alignment,
// is passed like that scalar.
type newtypeField struct {
	layout TypeLayout
	count  int
}

func (n *newtypeField) observe(fl TypeLayout) {
	if fl.Unsized || fl.Size > 0 {
		n.layout = fl
		n.count++
	}
}

func (n *newtypeField) apply(l *TypeLayout) {
	if n.count != 1 || l.Unsized {
		return
	}
	f := n.layout
	if f.Aggregate || f.Scalar == ScalarNone || f.Size != l.Size || f.Align != l.Align {
		return
	}
	l.Scalar = f.Scalar
	l.Aggregate = false
}
