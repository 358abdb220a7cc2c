package types //nolint:revive

import "fmt"

// LayoutAttrs describes layout-affecting attributes applied to a struct declaration.
type LayoutAttrs struct {
	Packed        bool
	AlignOverride *int // nil when no explicit alignment is requested
}

// FieldLayoutAttrs describes layout-affecting attributes applied to a struct field.
type FieldLayoutAttrs struct {
	AlignOverride *int
}

// Validate rejects attribute combinations layout cannot honor.
func (a LayoutAttrs) Validate() error {
	if a.Packed && a.AlignOverride != nil {
		return fmt.Errorf("packed conflicts with align(%d)", *a.AlignOverride)
	}
	if a.AlignOverride != nil {
		n := *a.AlignOverride
		if n <= 0 || n&(n-1) != 0 {
			return fmt.Errorf("align(%d) is not a power of two", n)
		}
	}
	return nil
}

func cloneIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// TypeLayoutAttrs returns the attributes recorded for the type.
func (in *Interner) TypeLayoutAttrs(id TypeID) (LayoutAttrs, bool) {
	if in == nil || id == NoTypeID || in.typeLayoutAttrs == nil {
		return LayoutAttrs{}, false
	}
	attrs, ok := in.typeLayoutAttrs[id]
	return attrs, ok
}

// SetTypeLayoutAttrs stores attributes for the type. Callers validate first.
func (in *Interner) SetTypeLayoutAttrs(id TypeID, attrs LayoutAttrs) {
	if in == nil || id == NoTypeID {
		return
	}
	if !attrs.Packed && attrs.AlignOverride == nil {
		if in.typeLayoutAttrs != nil {
			delete(in.typeLayoutAttrs, id)
		}
		return
	}
	if in.typeLayoutAttrs == nil {
		in.typeLayoutAttrs = make(map[TypeID]LayoutAttrs, 16)
	}
	attrs.AlignOverride = cloneIntPtr(attrs.AlignOverride)
	in.typeLayoutAttrs[id] = attrs
}
