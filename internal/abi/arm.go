package abi

import (
	"strings"

	"layoutcore/internal/layout"
)

// isHomogeneousAggregate returns the VFP unit for arg when it is a homogeneous
// aggregate of at most four float or 64/128-bit vector members.
func isHomogeneousAggregate(cx *Context, arg *ArgAbi) (Uniform, bool, error) {
	h, err := cx.homogeneousOf(arg)
	if err != nil {
		return Uniform{}, false, err
	}
	leaf, ok := h.Unit()
	if !ok {
		return Uniform{}, false, nil
	}
	size := arg.Layout.Size

	// At most four uniquely addressable members.
	if size > leaf.Size*4 {
		return Uniform{}, false, nil
	}

	var unit Reg
	switch leaf.Kind {
	case layout.LeafInteger:
		return Uniform{}, false, nil
	case layout.LeafFloat:
		unit = Reg{Kind: RegFloat, Size: leaf.Size}
	case layout.LeafVector:
		bits := size * 8
		if bits != 64 && bits != 128 {
			return Uniform{}, false, nil
		}
		unit = Reg{Kind: RegVector, Size: leaf.Size}
	}
	return Uniform{Unit: unit, Total: size}, true, nil
}

func classifyRet(cx *Context, ret *ArgAbi, vfp bool) error {
	if !ret.Layout.Aggregate {
		ret.ExtendIntegerWidthTo(32)
		return nil
	}

	if vfp {
		uniform, ok, err := isHomogeneousAggregate(cx, ret)
		if err != nil {
			return err
		}
		if ok {
			ret.CastTo(uniform)
			return nil
		}
	}

	size := ret.Layout.Size
	bits := size * 8
	if bits <= 32 {
		var unit Reg
		switch {
		case bits <= 8:
			unit = I8()
		case bits <= 16:
			unit = I16()
		default:
			unit = I32()
		}
		ret.CastTo(Uniform{Unit: unit, Total: size})
		return nil
	}
	ret.MakeIndirect()
	return nil
}

func classifyArg(cx *Context, arg *ArgAbi, vfp bool) error {
	if !arg.Layout.Aggregate {
		arg.ExtendIntegerWidthTo(32)
		return nil
	}

	if vfp {
		uniform, ok, err := isHomogeneousAggregate(cx, arg)
		if err != nil {
			return err
		}
		if ok {
			arg.CastTo(uniform)
			return nil
		}
	}

	unit := I64()
	if arg.Layout.Align <= 4 {
		unit = I32()
	}
	arg.CastTo(Uniform{Unit: unit, Total: arg.Layout.Size})
	return nil
}

// usesVFP reports whether homogeneous aggregates go in VFP registers: only on
// hard-float targets, and never for explicit base AAPCS or variadic calls.
func usesVFP(cx *Context, fn *FnAbi) bool {
	return strings.HasSuffix(cx.Spec.LLVMTarget, "hf") &&
		fn.Conv != ConvArmAapcs &&
		!fn.CVariadic
}

// ComputeArmABI classifies the return value and arguments of fn for 32-bit
// ARM. Ignored values are left untouched.
func ComputeArmABI(cx *Context, fn *FnAbi) error {
	vfp := usesVFP(cx, fn)

	if !fn.Ret.IsIgnore() {
		if err := classifyRet(cx, &fn.Ret, vfp); err != nil {
			return &Error{Kind: ErrLayout, Arch: cx.Spec.Arch, Pos: -1, Err: err}
		}
	}
	for i := range fn.Args {
		arg := &fn.Args[i]
		if arg.IsIgnore() {
			continue
		}
		if err := classifyArg(cx, arg, vfp); err != nil {
			return &Error{Kind: ErrLayout, Arch: cx.Spec.Arch, Pos: i, Err: err}
		}
	}
	return nil
}
