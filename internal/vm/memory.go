package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/google/btree"
	"go.uber.org/zap"

	"layoutcore/internal/layout"
)

// MemoryKind records what an allocation is for.
type MemoryKind uint8

const (
	MemoryKindHeap MemoryKind = iota + 1
	MemoryKindStatic
	// MemoryKindVtable allocations live for the whole run.
	MemoryKindVtable
	// MemoryKindFn allocations hold a function value and no bytes.
	MemoryKindFn
)

func (k MemoryKind) String() string {
	switch k {
	case MemoryKindHeap:
		return "heap"
	case MemoryKindStatic:
		return "static"
	case MemoryKindVtable:
		return "vtable"
	case MemoryKindFn:
		return "fn"
	default:
		return fmt.Sprintf("MemoryKind(%d)", k)
	}
}

// firstAddress keeps the null page unmapped.
const firstAddress = 0x1000

// Allocation is one contiguous block of target memory.
type Allocation struct {
	ID      AllocID
	Kind    MemoryKind
	Base    uint64 // absolute address
	Size    uint64
	Align   uint64
	Mutable bool
	Tag     Tag

	bytes  []byte
	init   []bool
	relocs map[uint64]Pointer // offset -> pointer stored there
	fn     *FnVal
	freed  bool
}

// Bytes returns a copy of the allocation contents.
func (a *Allocation) Bytes() []byte {
	return append([]byte(nil), a.bytes...)
}

// IsInit reports whether every byte of [off, off+size) is initialized.
func (a *Allocation) IsInit(off, size uint64) bool {
	for i := off; i < off+size; i++ {
		if !a.init[i] {
			return false
		}
	}
	return true
}

// Fn returns the function value of a MemoryKindFn allocation.
func (a *Allocation) Fn() (FnVal, bool) {
	if a.fn == nil {
		return FnVal{}, false
	}
	return *a.fn, true
}

// Memory is the interpreter's model of target memory. It is not safe for
// concurrent use.
type Memory struct {
	target layout.Target
	order  binary.ByteOrder

	allocs   map[AllocID]*Allocation
	ordered  []AllocID
	byAddr   *btree.BTreeG[*Allocation]
	fnAllocs map[string]AllocID

	nextID   AllocID
	nextBase uint64
	live     int
}

// NewMemory creates an empty address space for target.
func NewMemory(target layout.Target) *Memory {
	var order binary.ByteOrder = binary.LittleEndian
	if target.Endian == layout.BigEndian {
		order = binary.BigEndian
	}
	return &Memory{
		target: target,
		order:  order,
		allocs: make(map[AllocID]*Allocation, 64),
		byAddr: btree.NewG[*Allocation](8, func(a, b *Allocation) bool {
			return a.Base < b.Base
		}),
		fnAllocs: make(map[string]AllocID, 16),
		nextID:   1,
		nextBase: firstAddress,
	}
}

// PtrSize returns the target pointer width in bytes.
func (m *Memory) PtrSize() uint64 {
	return uint64(m.target.PtrSize)
}

// Allocate reserves size bytes aligned to align. The contents start uninitialized.
func (m *Memory) Allocate(size, align uint64, kind MemoryKind) (Pointer, error) {
	if align == 0 {
		align = 1
	}
	if align&(align-1) != 0 {
		panic(fmt.Sprintf("vm: allocation alignment %d is not a power of two", align))
	}
	if size >= m.target.ObjSizeBound() {
		return Pointer{}, makeError(CodeAddressExhausted, "allocation of %d bytes exceeds the object size bound", size)
	}
	base := roundUp(m.nextBase, align)
	// Keep distinct allocations at distinct addresses, including empty ones.
	end := base + max(size, 1)
	if limit := m.addressLimit(); end > limit {
		return Pointer{}, makeError(CodeAddressExhausted, "no room for %d bytes in a %d-bit address space", size, m.target.PtrBits())
	}
	a := &Allocation{
		ID:      m.nextID,
		Kind:    kind,
		Base:    base,
		Size:    size,
		Align:   align,
		Mutable: true,
		Tag:     Tag(m.nextID),
		bytes:   make([]byte, size),
		init:    make([]bool, size),
	}
	m.nextID++
	m.nextBase = end
	m.allocs[a.ID] = a
	m.ordered = append(m.ordered, a.ID)
	m.byAddr.ReplaceOrInsert(a)
	m.live++
	return Pointer{Alloc: a.ID, Tag: a.Tag}, nil
}

// Deallocate frees the allocation p points to. Tables and function
// allocations can never be freed.
func (m *Memory) Deallocate(p Pointer, kind MemoryKind) error {
	a, err := m.get(p)
	if err != nil {
		return err
	}
	if p.Offset != 0 {
		return makeError(CodeInvalidDealloc, "deallocating %s, which does not point to the start of an allocation", p)
	}
	if a.Kind == MemoryKindVtable || a.Kind == MemoryKindFn {
		return makeError(CodeInvalidDealloc, "deallocating %s memory", a.Kind)
	}
	if a.Kind != kind {
		return makeError(CodeInvalidDealloc, "deallocating %s memory using %s deallocation", a.Kind, kind)
	}
	a.freed = true
	a.bytes = nil
	a.init = nil
	a.relocs = nil
	m.byAddr.Delete(a)
	m.live--
	Logger().Debug("deallocated",
		zap.Uint64("alloc", uint64(a.ID)),
		zap.Stringer("kind", a.Kind),
		zap.Uint64("size", a.Size))
	return nil
}

// CreateFnAlloc returns a pointer to a function allocation for fn. Equal
// function values share one allocation.
func (m *Memory) CreateFnAlloc(fn FnVal) Pointer {
	key := fn.key()
	if id, ok := m.fnAllocs[key]; ok {
		a := m.allocs[id]
		return Pointer{Alloc: id, Tag: a.Tag}
	}
	p, err := m.Allocate(0, 1, MemoryKindFn)
	if err != nil {
		panic(fmt.Sprintf("vm: function allocation failed: %v", err))
	}
	a := m.allocs[p.Alloc]
	a.Mutable = false
	a.fn = &fn
	m.fnAllocs[key] = a.ID
	return p
}

// GetFn returns the function value s points to.
func (m *Memory) GetFn(s Scalar) (FnVal, error) {
	p, ok := s.ToPointer()
	if !ok {
		var resolved bool
		p, resolved = m.resolveAddress(s.bits)
		if !resolved {
			return FnVal{}, makeError(CodeInvalidFnPointer, "%s is not a function pointer", s)
		}
	}
	a, ok := m.allocs[p.Alloc]
	if !ok || a.freed || a.fn == nil || p.Offset != 0 {
		return FnVal{}, makeError(CodeInvalidFnPointer, "%s is not a function pointer", s)
	}
	return *a.fn, nil
}

// CheckPtrAccess validates an access of size bytes at align. It returns
// ok=false for zero-sized accesses, which touch no allocation.
func (m *Memory) CheckPtrAccess(s Scalar, size, align uint64) (Pointer, bool, error) {
	if align == 0 {
		align = 1
	}
	p, isPtr := s.ToPointer()
	if !isPtr {
		addr := s.bits
		if addr%align != 0 {
			return Pointer{}, false, makeError(CodeMisaligned, "address %#x is not aligned to %d", addr, align)
		}
		if size == 0 {
			return Pointer{}, false, nil
		}
		var ok bool
		p, ok = m.resolveAddress(addr)
		if !ok {
			return Pointer{}, false, makeError(CodeDanglingPointer, "address %#x does not point into any allocation", addr)
		}
	}
	a, err := m.get(p)
	if err != nil {
		return Pointer{}, false, err
	}
	if p.Offset > a.Size || size > a.Size-p.Offset {
		return Pointer{}, false, makeError(CodeOutOfBounds,
			"access of %d bytes at %s is out of bounds of a %d-byte allocation", size, p, a.Size)
	}
	if a.Align < align || p.Offset%align != 0 {
		return Pointer{}, false, makeError(CodeMisaligned, "%s is not aligned to %d", p, align)
	}
	if size == 0 {
		return p, false, nil
	}
	return p, true, nil
}

// ReadPtrSized reads one pointer-sized word at p. Partially initialized
// words read as undef; a word overlapping part of a stored pointer is UB.
func (m *Memory) ReadPtrSized(p Pointer) (ScalarMaybeUndef, error) {
	size := m.PtrSize()
	a, err := m.inBounds(p, size)
	if err != nil {
		return Undef, err
	}
	if !a.IsInit(p.Offset, size) {
		return Undef, nil
	}
	if stored, ok := a.relocs[p.Offset]; ok {
		return Defined(ScalarFromPtr(stored, int(size))), nil
	}
	if m.overlapsReloc(a, p.Offset, size) {
		return Undef, makeError(CodePartialPointer, "reading %d bytes at %s overlaps part of a pointer", size, p)
	}
	return Defined(ScalarFromUint(m.decode(a.bytes[p.Offset:p.Offset+size]), int(size))), nil
}

// WritePtrSized stores one pointer-sized word at p.
func (m *Memory) WritePtrSized(p Pointer, v ScalarMaybeUndef) error {
	size := m.PtrSize()
	a, err := m.inBounds(p, size)
	if err != nil {
		return err
	}
	if !a.Mutable {
		return makeError(CodeReadOnlyWrite, "writing to immutable %s allocation %d", a.Kind, a.ID)
	}
	m.clearRelocs(a, p.Offset, size)
	if v.Undef {
		for i := p.Offset; i < p.Offset+size; i++ {
			a.init[i] = false
		}
		return nil
	}
	var bits uint64
	if stored, ok := v.Scalar.ToPointer(); ok {
		target, err := m.get(stored)
		if err != nil {
			return err
		}
		bits = target.Base + stored.Offset
		if a.relocs == nil {
			a.relocs = make(map[uint64]Pointer, 4)
		}
		a.relocs[p.Offset] = stored
	} else {
		bits, err = v.Scalar.ToBits(int(size))
		if err != nil {
			return err
		}
	}
	m.encode(a.bytes[p.Offset:p.Offset+size], bits)
	for i := p.Offset; i < p.Offset+size; i++ {
		a.init[i] = true
	}
	return nil
}

// MarkImmutable freezes the allocation.
func (m *Memory) MarkImmutable(id AllocID) error {
	a, ok := m.allocs[id]
	if !ok || a.freed {
		return makeError(CodeDanglingPointer, "allocation %d does not exist", id)
	}
	a.Mutable = false
	return nil
}

// Allocation returns the allocation with the given id, freed or not.
func (m *Memory) Allocation(id AllocID) (*Allocation, bool) {
	a, ok := m.allocs[id]
	return a, ok
}

// Allocations returns live allocations in creation order.
func (m *Memory) Allocations() []*Allocation {
	out := make([]*Allocation, 0, m.live)
	for _, id := range m.ordered {
		if a := m.allocs[id]; !a.freed {
			out = append(out, a)
		}
	}
	return out
}

// AllocCount returns the number of live allocations.
func (m *Memory) AllocCount() int {
	return m.live
}

// Address returns the absolute address of p.
func (m *Memory) Address(p Pointer) (uint64, bool) {
	a, ok := m.allocs[p.Alloc]
	if !ok {
		return 0, false
	}
	return a.Base + p.Offset, true
}

func (m *Memory) get(p Pointer) (*Allocation, error) {
	a, ok := m.allocs[p.Alloc]
	if !ok {
		return nil, makeError(CodeDanglingPointer, "%s points to no allocation", p)
	}
	if a.freed {
		return nil, makeError(CodeUseAfterFree, "%s points to freed allocation %d", p, a.ID)
	}
	if p.Tag != 0 && p.Tag != a.Tag {
		return nil, makeError(CodeDanglingPointer, "%s does not carry the provenance of allocation %d", p, a.ID)
	}
	return a, nil
}

func (m *Memory) inBounds(p Pointer, size uint64) (*Allocation, error) {
	a, err := m.get(p)
	if err != nil {
		return nil, err
	}
	if p.Offset > a.Size || size > a.Size-p.Offset {
		return nil, makeError(CodeOutOfBounds, "access of %d bytes at %s is out of bounds of a %d-byte allocation", size, p, a.Size)
	}
	return a, nil
}

// resolveAddress maps an absolute address back to a tagged pointer.
func (m *Memory) resolveAddress(addr uint64) (Pointer, bool) {
	var found *Allocation
	m.byAddr.DescendLessOrEqual(&Allocation{Base: addr}, func(a *Allocation) bool {
		found = a
		return false
	})
	if found == nil {
		return Pointer{}, false
	}
	off := addr - found.Base
	if off > found.Size || (off == found.Size && found.Size != 0) {
		return Pointer{}, false
	}
	return Pointer{Alloc: found.ID, Offset: off, Tag: found.Tag}, true
}

func (m *Memory) overlapsReloc(a *Allocation, off, size uint64) bool {
	ptrSize := m.PtrSize()
	for r := range a.relocs {
		if r < off+size && r+ptrSize > off {
			return true
		}
	}
	return false
}

// clearRelocs drops pointers overlapping [off, off+size); bytes of a dropped
// pointer outside the range become uninitialized.
func (m *Memory) clearRelocs(a *Allocation, off, size uint64) {
	ptrSize := m.PtrSize()
	for r := range a.relocs {
		if r >= off+size || r+ptrSize <= off {
			continue
		}
		for i := r; i < r+ptrSize; i++ {
			if i < off || i >= off+size {
				a.init[i] = false
			}
		}
		delete(a.relocs, r)
	}
}

func (m *Memory) addressLimit() uint64 {
	if bits := m.target.PtrBits(); bits < 64 {
		return uint64(1) << bits
	}
	return ^uint64(0)
}

func (m *Memory) encode(dst []byte, v uint64) {
	switch len(dst) {
	case 2:
		m.order.PutUint16(dst, uint16(v))
	case 4:
		m.order.PutUint32(dst, uint32(v))
	default:
		m.order.PutUint64(dst, v)
	}
}

func (m *Memory) decode(src []byte) uint64 {
	switch len(src) {
	case 2:
		return uint64(m.order.Uint16(src))
	case 4:
		return uint64(m.order.Uint32(src))
	default:
		return m.order.Uint64(src)
	}
}

func roundUp(n, align uint64) uint64 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
