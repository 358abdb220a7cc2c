package layout

import (
	"fmt"

	"layoutcore/internal/types"
)

// LeafKind is the register class of a homogeneous aggregate's unit.
type LeafKind uint8

const (
	LeafInteger LeafKind = iota
	LeafFloat
	LeafVector
)

func (k LeafKind) String() string {
	switch k {
	case LeafInteger:
		return "int"
	case LeafFloat:
		return "float"
	case LeafVector:
		return "vector"
	default:
		return fmt.Sprintf("LeafKind(%d)", k)
	}
}

// Leaf is the repeated primitive unit of a homogeneous aggregate.
type Leaf struct {
	Kind LeafKind
	Size int // bytes
}

// HomogeneousClass is the outcome of HomogeneousAggregate.
type HomogeneousClass uint8

const (
	// HomogeneousNoData means the value carries no bytes at all.
	HomogeneousNoData HomogeneousClass = iota
	// HomogeneousHeterogeneous means the bytes do not decompose into one leaf kind.
	HomogeneousHeterogeneous
	// HomogeneousUnit means every byte belongs to a copy of Leaf.
	HomogeneousUnit
)

// Homogeneous describes how a type decomposes into leaves.
type Homogeneous struct {
	Class HomogeneousClass
	Leaf  Leaf
}

// Unit returns the leaf when the class is HomogeneousUnit.
func (h Homogeneous) Unit() (Leaf, bool) {
	return h.Leaf, h.Class == HomogeneousUnit
}

func (h Homogeneous) String() string {
	switch h.Class {
	case HomogeneousNoData:
		return "no-data"
	case HomogeneousHeterogeneous:
		return "heterogeneous"
	default:
		return fmt.Sprintf("%s%d", h.Leaf.Kind, h.Leaf.Size*8)
	}
}

var heterogeneous = Homogeneous{Class: HomogeneousHeterogeneous}

// merge combines two field classifications of one aggregate.
func (h Homogeneous) merge(other Homogeneous) Homogeneous {
	switch {
	case h.Class == HomogeneousHeterogeneous || other.Class == HomogeneousHeterogeneous:
		return heterogeneous
	case h.Class == HomogeneousNoData:
		return other
	case other.Class == HomogeneousNoData:
		return h
	case h.Leaf == other.Leaf:
		return h
	default:
		return heterogeneous
	}
}

// HomogeneousAggregate reports the single primitive leaf that id decomposes
// into, if any. Padding between or after fields makes a type heterogeneous.
func (e *LayoutEngine) HomogeneousAggregate(id types.TypeID) (Homogeneous, error) {
	l, err := e.LayoutOf(id)
	if err != nil {
		return heterogeneous, err
	}
	if l.Unsized {
		return heterogeneous, nil
	}
	return e.homogeneous(id, l)
}

func (e *LayoutEngine) homogeneous(id types.TypeID, l TypeLayout) (Homogeneous, error) {
	if l.Size == 0 {
		return Homogeneous{Class: HomogeneousNoData}, nil
	}
	switch l.Scalar {
	case ScalarFloat:
		return Homogeneous{Class: HomogeneousUnit, Leaf: Leaf{Kind: LeafFloat, Size: l.Size}}, nil
	case ScalarInt, ScalarUint, ScalarBool, ScalarPointer:
		return Homogeneous{Class: HomogeneousUnit, Leaf: Leaf{Kind: LeafInteger, Size: l.Size}}, nil
	case ScalarVector:
		return Homogeneous{Class: HomogeneousUnit, Leaf: Leaf{Kind: LeafVector, Size: l.Size}}, nil
	}

	tt, ok := e.Types.Lookup(id)
	if !ok {
		return heterogeneous, nil
	}
	switch tt.Kind {
	case types.KindArray:
		if tt.Count == 0 {
			return Homogeneous{Class: HomogeneousNoData}, nil
		}
		return e.HomogeneousAggregate(tt.Elem)
	case types.KindPointer, types.KindReference:
		// Fat pointer: two pointer-sized words.
		return Homogeneous{Class: HomogeneousUnit, Leaf: Leaf{Kind: LeafInteger, Size: l.Size / 2}}, nil
	case types.KindStruct:
		fields := e.Types.StructFields(id)
		ids := make([]types.TypeID, len(fields))
		for i, f := range fields {
			ids[i] = f.Type
		}
		return e.homogeneousFields(ids, l)
	case types.KindTuple:
		info, ok := e.Types.TupleInfo(id)
		if !ok {
			return heterogeneous, nil
		}
		return e.homogeneousFields(info.Elems, l)
	default:
		return heterogeneous, nil
	}
}

func (e *LayoutEngine) homogeneousFields(fields []types.TypeID, l TypeLayout) (Homogeneous, error) {
	result := Homogeneous{Class: HomogeneousNoData}
	total := 0
	for _, f := range fields {
		h, err := e.HomogeneousAggregate(f)
		if err != nil {
			return heterogeneous, err
		}
		result = result.merge(h)
		if result.Class == HomogeneousHeterogeneous {
			return heterogeneous, nil
		}
		size, err := e.SizeOf(f)
		if err != nil {
			return heterogeneous, err
		}
		total += size
	}
	if total != l.Size {
		return heterogeneous, nil
	}
	return result, nil
}
