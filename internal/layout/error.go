package layout

import (
	"fmt"
	"strings"

	"layoutcore/internal/types"
)

// LayoutErrorKind enumerates types of layout calculation errors.
type LayoutErrorKind uint8

const (
	// LayoutErrRecursiveUnsized indicates a recursive type with no fixed size.
	LayoutErrRecursiveUnsized LayoutErrorKind = iota + 1
	// LayoutErrTooGeneric indicates the type still mentions a generic parameter.
	LayoutErrTooGeneric
	// LayoutErrSizeOverflow indicates the size exceeds the target's object bound.
	LayoutErrSizeOverflow
	// LayoutErrInvalidAttrs indicates conflicting layout attributes.
	LayoutErrInvalidAttrs
	// LayoutErrUnknownType indicates an id the interner does not know.
	LayoutErrUnknownType
	// LayoutErrUnsizedField indicates an unsized value in a position that
	// requires a size (array element, tuple element, non-final field).
	LayoutErrUnsizedField
)

// LayoutError represents an error during memory layout calculation.
type LayoutError struct {
	Kind  LayoutErrorKind
	Type  types.TypeID
	Label string         // rendered type, when available
	Cycle []types.TypeID // for LayoutErrRecursiveUnsized
	Err   error          // for LayoutErrInvalidAttrs
}

func (e *LayoutError) Error() string {
	if e == nil {
		return "<nil>"
	}
	name := e.Label
	if name == "" {
		name = fmt.Sprintf("type#%d", e.Type)
	}
	switch e.Kind {
	case LayoutErrRecursiveUnsized:
		if len(e.Cycle) == 0 {
			return fmt.Sprintf("recursive value type has infinite size (%s)", name)
		}
		parts := make([]string, 0, len(e.Cycle))
		for _, id := range e.Cycle {
			parts = append(parts, fmt.Sprintf("type#%d", id))
		}
		return fmt.Sprintf("recursive value type has infinite size (cycle: %s)", strings.Join(parts, " -> "))
	case LayoutErrTooGeneric:
		return fmt.Sprintf("layout of %s depends on unresolved generic parameters", name)
	case LayoutErrSizeOverflow:
		return fmt.Sprintf("%s is too big for the current architecture", name)
	case LayoutErrInvalidAttrs:
		if e.Err != nil {
			return fmt.Sprintf("invalid layout attributes on %s: %v", name, e.Err)
		}
		return fmt.Sprintf("invalid layout attributes on %s", name)
	case LayoutErrUnknownType:
		return fmt.Sprintf("unknown %s", name)
	case LayoutErrUnsizedField:
		return fmt.Sprintf("%s has an unsized component in a sized position", name)
	default:
		return fmt.Sprintf("layout error kind=%d %s", e.Kind, name)
	}
}

func (e *LayoutError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
