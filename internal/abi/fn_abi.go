package abi

import (
	"fmt"
	"strings"

	"layoutcore/internal/layout"
	"layoutcore/internal/types"
)

// PassMode is how one argument or return value crosses a call boundary.
type PassMode uint8

const (
	// PassIgnore drops zero-sized values.
	PassIgnore PassMode = iota
	// PassDirect passes the value unchanged.
	PassDirect
	// PassCast reinterprets the bytes as CastTarget registers.
	PassCast
	// PassIndirect passes a pointer to a caller-owned copy.
	PassIndirect
)

func (m PassMode) String() string {
	switch m {
	case PassIgnore:
		return "ignore"
	case PassDirect:
		return "direct"
	case PassCast:
		return "cast"
	case PassIndirect:
		return "indirect"
	default:
		return fmt.Sprintf("PassMode(%d)", m)
	}
}

// ArgExtension is the integer extension attribute of a direct value.
type ArgExtension uint8

const (
	ExtNone ArgExtension = iota
	ExtZext
	ExtSext
)

func (e ArgExtension) String() string {
	switch e {
	case ExtZext:
		return "zext"
	case ExtSext:
		return "sext"
	default:
		return ""
	}
}

// ArgAbi is the passing decision for one value. Layout keeps the original
// size and alignment whatever the mode.
type ArgAbi struct {
	Type   types.TypeID
	Layout layout.TypeLayout
	Mode   PassMode
	Ext    ArgExtension
	Cast   *CastTarget
}

// NewArgAbi starts every sized value as direct and zero-sized ones as ignored.
func NewArgAbi(ty types.TypeID, l layout.TypeLayout) ArgAbi {
	mode := PassDirect
	if l.IsZST() {
		mode = PassIgnore
	}
	return ArgAbi{Type: ty, Layout: l, Mode: mode}
}

func (a *ArgAbi) IsIgnore() bool {
	return a.Mode == PassIgnore
}

// ExtendIntegerWidthTo marks integers narrower than bits for sign or zero
// extension. Other values are left alone.
func (a *ArgAbi) ExtendIntegerWidthTo(bits int) {
	if a.Mode != PassDirect || a.Layout.SizeBits() >= bits {
		return
	}
	switch a.Layout.Scalar {
	case layout.ScalarInt:
		a.Ext = ExtSext
	case layout.ScalarUint, layout.ScalarBool:
		a.Ext = ExtZext
	}
}

func (a *ArgAbi) CastTo(u Uniform) {
	a.Mode = PassCast
	a.Ext = ExtNone
	a.Cast = &CastTarget{Rest: u}
}

func (a *ArgAbi) MakeIndirect() {
	a.Mode = PassIndirect
	a.Ext = ExtNone
	a.Cast = nil
}

// String renders the decision, e.g. "direct zext", "cast [2 x double]".
func (a *ArgAbi) String() string {
	switch a.Mode {
	case PassDirect:
		if a.Ext != ExtNone {
			return "direct " + a.Ext.String()
		}
		return "direct"
	case PassCast:
		if a.Cast != nil {
			return "cast " + a.Cast.String()
		}
		return "cast"
	default:
		return a.Mode.String()
	}
}

// Conv is the declared calling convention.
type Conv uint8

const (
	ConvRust Conv = iota
	ConvC
	// ConvArmAapcs is the base AAPCS, which never uses VFP registers.
	ConvArmAapcs
)

func (c Conv) String() string {
	switch c {
	case ConvRust:
		return "Rust"
	case ConvC:
		return "C"
	case ConvArmAapcs:
		return "aapcs"
	default:
		return fmt.Sprintf("Conv(%d)", c)
	}
}

// ParseConv accepts the spellings used in catalogs.
func ParseConv(s string) (Conv, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rust":
		return ConvRust, nil
	case "c":
		return ConvC, nil
	case "aapcs", "arm-aapcs":
		return ConvArmAapcs, nil
	default:
		return ConvRust, fmt.Errorf("unknown calling convention %q", s)
	}
}

// FnAbi is the passing decision for a whole signature.
type FnAbi struct {
	Args      []ArgAbi
	Ret       ArgAbi
	Conv      Conv
	CVariadic bool
}

// Signature is a call signature to classify.
type Signature struct {
	Name      string
	Params    []types.TypeID
	Ret       types.TypeID
	Conv      Conv
	CVariadic bool
}
