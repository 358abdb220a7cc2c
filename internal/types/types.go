package types

import "fmt"

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// RegionID names a lifetime attached to a reference type.
// RegionErased is the only region left after normalization.
type RegionID uint32

// RegionErased marks a reference whose lifetime has been erased.
const RegionErased RegionID = 0

// Kind enumerates all supported kinds of types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUnit
	KindNever
	KindBool
	KindInt
	KindUint
	KindFloat
	KindVector
	KindPointer
	KindReference
	KindStruct
	KindTuple
	KindArray
	KindSlice
	KindStr
	KindDyn
	KindFn
	KindGenericParam
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUnit:
		return "unit"
	case KindNever:
		return "never"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindVector:
		return "vector"
	case KindPointer:
		return "pointer"
	case KindReference:
		return "reference"
	case KindStruct:
		return "struct"
	case KindTuple:
		return "tuple"
	case KindArray:
		return "array"
	case KindSlice:
		return "slice"
	case KindStr:
		return "str"
	case KindDyn:
		return "dyn"
	case KindFn:
		return "fn"
	case KindGenericParam:
		return "generic"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Width captures the precision of integers/floats and the total bit size of vectors.
type Width uint8

const (
	WidthAny Width = 0
	Width8   Width = 8
	Width16  Width = 16
	Width32  Width = 32
	Width64  Width = 64
	Width128 Width = 128
)

// Type is a compact descriptor for any supported type.
type Type struct {
	Kind    Kind
	Elem    TypeID
	Count   uint32 // array length, generic parameter index
	Width   Width  // numeric primitives and vectors
	Mutable bool   // pointers and references
	Region  RegionID
	Payload uint32 // side-table slot for structs, tuples, fns, dyn
}

// Descriptor helpers ---------------------------------------------------------

// MakeInt describes a signed integer of the given width (WidthAny for isize).
func MakeInt(width Width) Type {
	return Type{Kind: KindInt, Width: width}
}

// MakeUint describes an unsigned integer type (WidthAny for usize).
func MakeUint(width Width) Type {
	return Type{Kind: KindUint, Width: width}
}

// MakeFloat describes a floating-point type.
func MakeFloat(width Width) Type {
	return Type{Kind: KindFloat, Width: width}
}

// MakeVector describes a SIMD vector of the given total width with elem lanes.
func MakeVector(elem TypeID, width Width) Type {
	return Type{Kind: KindVector, Elem: elem, Width: width}
}

// MakeArray describes a fixed-length array.
func MakeArray(elem TypeID, count uint32) Type {
	return Type{Kind: KindArray, Elem: elem, Count: count}
}

// MakeSlice describes the unsized [T].
func MakeSlice(elem TypeID) Type {
	return Type{Kind: KindSlice, Elem: elem}
}

// MakePointer describes a raw pointer.
func MakePointer(elem TypeID, mutable bool) Type {
	return Type{Kind: KindPointer, Elem: elem, Mutable: mutable}
}

// MakeReference describes &'r T or &'r mut T.
func MakeReference(elem TypeID, mutable bool, region RegionID) Type {
	return Type{Kind: KindReference, Elem: elem, Mutable: mutable, Region: region}
}
