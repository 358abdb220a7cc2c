package abi

import (
	"errors"
	"fmt"

	"layoutcore/internal/layout"
	"layoutcore/internal/trace"
	"layoutcore/internal/types"
)

// TargetSpec is the part of the target description classifiers consult.
type TargetSpec struct {
	LLVMTarget string
	Arch       string
}

// SpecFor derives the spec from a layout target.
func SpecFor(t layout.Target) TargetSpec {
	return TargetSpec{LLVMTarget: t.Triple, Arch: t.Arch}
}

// Context bundles the layout oracle and target query for classification.
type Context struct {
	Layout *layout.LayoutEngine
	Spec   TargetSpec
	Tracer trace.Tracer
}

// NewContext builds a Context whose spec follows the engine's target.
func NewContext(le *layout.LayoutEngine) *Context {
	return &Context{Layout: le, Spec: SpecFor(le.Target), Tracer: trace.Nop}
}

// FnAbiOf lays out every value of sig and classifies it for the target.
func FnAbiOf(cx *Context, sig Signature) (*FnAbi, error) {
	span := trace.Begin(cx.tracer(), trace.ScopeItem, "abi:"+sig.Name, 0)
	defer span.End("")

	fn := &FnAbi{
		Args:      make([]ArgAbi, 0, len(sig.Params)),
		Conv:      sig.Conv,
		CVariadic: sig.CVariadic,
	}
	ret := sig.Ret
	if ret == types.NoTypeID {
		ret = cx.Layout.Types.Builtins().Unit
	}
	retAbi, err := cx.argAbi(sig.Name, ret, -1)
	if err != nil {
		return nil, err
	}
	fn.Ret = retAbi
	for i, p := range sig.Params {
		arg, err := cx.argAbi(sig.Name, p, i)
		if err != nil {
			return nil, err
		}
		fn.Args = append(fn.Args, arg)
	}
	if err := ComputeABIInfo(cx, fn); err != nil {
		var abiErr *Error
		if errors.As(err, &abiErr) {
			abiErr.Fn = sig.Name
		}
		return nil, err
	}
	span.WithExtra("ret", fn.Ret.String())
	return fn, nil
}

// ComputeABIInfo dispatches to the classifier for the target architecture.
func ComputeABIInfo(cx *Context, fn *FnAbi) error {
	switch cx.Spec.Arch {
	case "arm":
		return ComputeArmABI(cx, fn)
	default:
		return &Error{Kind: ErrUnsupportedArch, Arch: cx.Spec.Arch, Pos: -1}
	}
}

func (cx *Context) argAbi(fnName string, ty types.TypeID, pos int) (ArgAbi, error) {
	l, err := cx.Layout.LayoutOf(ty)
	if err != nil {
		return ArgAbi{}, &Error{Kind: ErrLayout, Fn: fnName, Pos: pos, Err: err}
	}
	if l.Unsized {
		return ArgAbi{}, &Error{Kind: ErrUnsized, Fn: fnName, Pos: pos}
	}
	return NewArgAbi(ty, l), nil
}

func (cx *Context) tracer() trace.Tracer {
	if cx == nil || cx.Tracer == nil {
		return trace.Nop
	}
	return cx.Tracer
}

func (cx *Context) homogeneousOf(arg *ArgAbi) (layout.Homogeneous, error) {
	h, err := cx.Layout.HomogeneousAggregate(arg.Type)
	if err != nil {
		return h, fmt.Errorf("homogeneous aggregate of %s: %w", types.Label(cx.Layout.Types, arg.Type), err)
	}
	return h, nil
}
