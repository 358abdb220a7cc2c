package layout

import (
	"fortio.org/safecast"

	"layoutcore/internal/types"
)

// ScalarKind classifies layouts that are passed as a single machine value.
type ScalarKind uint8

const (
	ScalarNone ScalarKind = iota
	ScalarInt
	ScalarUint
	ScalarFloat
	ScalarPointer
	ScalarBool
	// ScalarVector is a SIMD vector; it travels as one value but is not a scalar
	// for integer extension purposes.
	ScalarVector
)

func (k ScalarKind) String() string {
	switch k {
	case ScalarInt:
		return "int"
	case ScalarUint:
		return "uint"
	case ScalarFloat:
		return "float"
	case ScalarPointer:
		return "pointer"
	case ScalarBool:
		return "bool"
	case ScalarVector:
		return "vector"
	default:
		return "none"
	}
}

// TypeLayout is the ABI layout of a type for a specific Target.
type TypeLayout struct {
	Size  int
	Align int

	// Unsized layouts (slices, str, dyn and structs ending in one) report the
	// size of their sized prefix.
	Unsized bool
	// Aggregate is set for structs, tuples, arrays and fat pointers. A struct
	// or tuple wrapping a single scalar takes that scalar's kind instead.
	Aggregate bool
	Scalar    ScalarKind

	// Struct and tuple only:
	FieldOffsets []int
	FieldAligns  []int
}

// IsZST reports whether the layout is sized and occupies no bytes.
func (l TypeLayout) IsZST() bool {
	return !l.Unsized && l.Size == 0
}

// SizeBits returns the size in bits.
func (l TypeLayout) SizeBits() int {
	return l.Size * 8
}

// LayoutEngine computes memory layout for types.
type LayoutEngine struct {
	Target Target
	Types  *types.Interner

	cache *cache
}

// New creates a new LayoutEngine for the specified target.
func New(target Target, typesIn *types.Interner) *LayoutEngine {
	return &LayoutEngine{
		Target: target,
		Types:  typesIn,
		cache:  newCache(),
	}
}

type layoutState struct {
	stack []cacheKey
	index map[cacheKey]int
}

func newLayoutState() *layoutState {
	return &layoutState{
		stack: nil,
		index: make(map[cacheKey]int, 32),
	}
}

// LayoutOf computes and caches the layout of a type.
func (e *LayoutEngine) LayoutOf(t types.TypeID) (TypeLayout, error) {
	if e == nil {
		return TypeLayout{Size: 0, Align: 1}, nil
	}
	if e.cache == nil {
		e.cache = newCache()
	}
	if e.Types.NeedsSubst(t) {
		return TypeLayout{Size: 0, Align: 1}, e.errorf(LayoutErrTooGeneric, t)
	}
	state := newLayoutState()
	layout, err := e.layoutOf(t, state)
	if err != nil {
		return layout, err
	}
	return layout, nil
}

// CachedLayouts reports how many layouts the engine has memoized.
func (e *LayoutEngine) CachedLayouts() int {
	if e == nil {
		return 0
	}
	return e.cache.len()
}

func (e *LayoutEngine) layoutOf(t types.TypeID, state *layoutState) (TypeLayout, *LayoutError) {
	if state == nil {
		state = newLayoutState()
	}
	key := cacheKey{Type: t, Attrs: e.attrsFingerprint(t)}
	if cached, ok := e.cache.get(key); ok {
		return cached.Layout, cached.Err
	}

	if idx, ok := state.index[key]; ok {
		cycleKeys := append([]cacheKey(nil), state.stack[idx:]...)
		cycleKeys = append(cycleKeys, key)
		cycle := make([]types.TypeID, 0, len(cycleKeys))
		for _, k := range cycleKeys {
			cycle = append(cycle, k.Type)
		}
		err := e.errorf(LayoutErrRecursiveUnsized, key.Type)
		err.Cycle = cycle
		e.cache.put(key, &cacheEntry{Layout: TypeLayout{Size: 0, Align: 1}, Err: err})
		return TypeLayout{Size: 0, Align: 1}, err
	}

	state.index[key] = len(state.stack)
	state.stack = append(state.stack, key)
	layout, err := e.computeLayout(t, state)
	state.stack = state.stack[:len(state.stack)-1]
	delete(state.index, key)

	if err == nil && !layout.Unsized && uint64(layout.Size) >= e.Target.ObjSizeBound() {
		err = e.errorf(LayoutErrSizeOverflow, t)
	}
	e.cache.put(key, &cacheEntry{Layout: layout, Err: err})
	return layout, err
}

// SizeOf returns the size of a type in bytes.
func (e *LayoutEngine) SizeOf(t types.TypeID) (int, error) {
	l, err := e.LayoutOf(t)
	return l.Size, err
}

// AlignOf returns the alignment requirement of a type in bytes.
func (e *LayoutEngine) AlignOf(t types.TypeID) (int, error) {
	l, err := e.LayoutOf(t)
	return l.Align, err
}

// FieldOffset returns the byte offset of a struct field.
func (e *LayoutEngine) FieldOffset(structT types.TypeID, fieldIdx int) (int, error) {
	l, err := e.LayoutOf(structT)
	if err != nil {
		return 0, err
	}
	if fieldIdx < 0 || fieldIdx >= len(l.FieldOffsets) {
		return 0, nil
	}
	return l.FieldOffsets[fieldIdx], nil
}

func (e *LayoutEngine) errorf(kind LayoutErrorKind, id types.TypeID) *LayoutError {
	return &LayoutError{Kind: kind, Type: id, Label: types.Label(e.Types, id)}
}

func (e *LayoutEngine) attrsFingerprint(id types.TypeID) uint64 {
	if e == nil || e.Types == nil || id == types.NoTypeID {
		return 0
	}

	const (
		fnvOffset64 = 1469598103934665603
		fnvPrime64  = 1099511628211
	)

	hash := uint64(fnvOffset64)
	mix := func(x uint64) {
		hash ^= x
		hash *= fnvPrime64
	}
	mixAlign := func(p *int) {
		if p == nil {
			mix(0)
			return
		}
		if n, err := safecast.Conv[uint64](*p); err == nil {
			mix(n)
		} else {
			mix(0)
		}
	}

	if attrs, ok := e.Types.TypeLayoutAttrs(id); ok {
		if attrs.Packed {
			mix(1)
		} else {
			mix(0)
		}
		mixAlign(attrs.AlignOverride)
	}

	info, ok := e.Types.StructInfo(id)
	if !ok || info == nil || len(info.Fields) == 0 {
		return hash
	}
	mix(uint64(len(info.Fields)))
	for _, f := range info.Fields {
		mixAlign(f.Layout.AlignOverride)
	}
	return hash
}
