package vm

import "fmt"

// AllocID identifies an allocation in a Memory.
type AllocID uint64

// Tag is the provenance carried by a pointer. Zero means untagged.
type Tag uint64

// Pointer is an allocation-relative address.
type Pointer struct {
	Alloc  AllocID
	Offset uint64
	Tag    Tag
}

// Add returns p moved forward by n bytes.
func (p Pointer) Add(n uint64) Pointer {
	p.Offset += n
	return p
}

func (p Pointer) String() string {
	if p.Tag != 0 {
		return fmt.Sprintf("alloc%d+%#x[%d]", p.Alloc, p.Offset, p.Tag)
	}
	return fmt.Sprintf("alloc%d+%#x", p.Alloc, p.Offset)
}

// Scalar is a pointer-or-integer machine value.
type Scalar struct {
	ptr   Pointer
	bits  uint64
	size  int // bytes
	isPtr bool
}

// ScalarFromUint builds a raw integer of size bytes.
func ScalarFromUint(v uint64, size int) Scalar {
	if size < 8 {
		v &= (uint64(1) << (8 * size)) - 1
	}
	return Scalar{bits: v, size: size}
}

// ScalarFromPtr builds a pointer value.
func ScalarFromPtr(p Pointer, ptrSize int) Scalar {
	return Scalar{ptr: p, size: ptrSize, isPtr: true}
}

func (s Scalar) IsPtr() bool { return s.isPtr }

func (s Scalar) Size() int { return s.size }

// ToPointer returns the pointer when s holds one.
func (s Scalar) ToPointer() (Pointer, bool) {
	return s.ptr, s.isPtr
}

// ToBits returns the raw integer. Pointers have no integer value here.
func (s Scalar) ToBits(size int) (uint64, error) {
	if s.isPtr {
		return 0, makeError(CodePointerAsBits, "expected %d raw bytes, found pointer %s", size, s.ptr)
	}
	if s.size != size {
		return 0, makeError(CodePointerAsBits, "expected %d raw bytes, found %d", size, s.size)
	}
	return s.bits, nil
}

func (s Scalar) String() string {
	if s.isPtr {
		return s.ptr.String()
	}
	return fmt.Sprintf("%#x", s.bits)
}

// ScalarMaybeUndef is a read result that may be uninitialized.
type ScalarMaybeUndef struct {
	Scalar Scalar
	Undef  bool
}

// Undef is the uninitialized value.
var Undef = ScalarMaybeUndef{Undef: true}

// Defined wraps an initialized scalar.
func Defined(s Scalar) ScalarMaybeUndef {
	return ScalarMaybeUndef{Scalar: s}
}

// NotUndef fails with undefined behavior on uninitialized values.
func (s ScalarMaybeUndef) NotUndef() (Scalar, error) {
	if s.Undef {
		return Scalar{}, makeError(CodeUninitRead, "using uninitialized data")
	}
	return s.Scalar, nil
}

func (s ScalarMaybeUndef) String() string {
	if s.Undef {
		return "undef"
	}
	return s.Scalar.String()
}
