package vm

import (
	"fmt"
	"strings"

	"layoutcore/internal/types"
)

// InstanceKind distinguishes the callable bodies a table can point to.
type InstanceKind uint8

const (
	// InstanceItem is a function definition applied to substitutions.
	InstanceItem InstanceKind = iota + 1
	// InstanceDropGlue drops a value of Ty in place, calling the user
	// destructor (Fn) first when there is one.
	InstanceDropGlue
	// InstanceVtableShim adapts an interface default body to a concrete Self.
	InstanceVtableShim
)

func (k InstanceKind) String() string {
	switch k {
	case InstanceItem:
		return "item"
	case InstanceDropGlue:
		return "drop"
	case InstanceVtableShim:
		return "shim"
	default:
		return fmt.Sprintf("InstanceKind(%d)", k)
	}
}

// Instance is a fully resolved callable.
type Instance struct {
	Kind   InstanceKind
	Fn     types.FnID   // definition; NoFnID for drop glue without a destructor
	Ty     types.TypeID // dropped type for drop glue
	Substs []types.TypeID
}

// Key identifies the instance for deduplication.
func (i Instance) Key() string {
	var sb strings.Builder
	sb.WriteString(i.Kind.String())
	fmt.Fprintf(&sb, ":%d:%d", i.Fn, i.Ty)
	for _, s := range i.Substs {
		fmt.Fprintf(&sb, ",%d", s)
	}
	return sb.String()
}

// Signature returns the instance's function pointer type. Drop glue always
// takes `*mut Ty` and returns unit.
func (i Instance) Signature(in *types.Interner) (types.TypeID, error) {
	b := in.Builtins()
	if i.Kind == InstanceDropGlue {
		self := in.Intern(types.MakePointer(i.Ty, true))
		return in.RegisterFn([]types.TypeID{self}, b.Unit), nil
	}
	def, ok := in.FnDef(i.Fn)
	if !ok {
		return types.NoTypeID, makeError(CodeNotAnInstance, "unknown function definition %d", i.Fn)
	}
	params := make([]types.TypeID, len(def.Params))
	for n, p := range def.Params {
		params[n] = in.Subst(p, i.Substs)
	}
	result := def.Result
	if result == types.NoTypeID {
		result = b.Unit
	}
	return in.RegisterFn(params, in.Subst(result, i.Substs)), nil
}

// Label renders the instance for logs and snapshots.
func (i Instance) Label(in *types.Interner) string {
	switch i.Kind {
	case InstanceDropGlue:
		return "drop_in_place::<" + types.Label(in, i.Ty) + ">"
	case InstanceVtableShim:
		return "shim(" + fnWithSubsts(in, i.Fn, i.Substs) + ")"
	default:
		return fnWithSubsts(in, i.Fn, i.Substs)
	}
}

func fnWithSubsts(in *types.Interner, fn types.FnID, substs []types.TypeID) string {
	name := types.FnLabel(in, fn)
	if len(substs) == 0 {
		return name
	}
	parts := make([]string, len(substs))
	for n, s := range substs {
		parts[n] = types.Label(in, s)
	}
	return name + "::<" + strings.Join(parts, ", ") + ">"
}

// FnValKind distinguishes function values.
type FnValKind uint8

const (
	FnValInstance FnValKind = iota + 1
	// FnValOther is a callable the interpreter knows only by name, such as
	// a host function.
	FnValOther
)

// FnVal is what a function allocation holds.
type FnVal struct {
	Kind     FnValKind
	Instance Instance
	Name     string // FnValOther only
}

// InstanceFn wraps an instance.
func InstanceFn(i Instance) FnVal {
	return FnVal{Kind: FnValInstance, Instance: i}
}

// OtherFn wraps a named non-instance callable.
func OtherFn(name string) FnVal {
	return FnVal{Kind: FnValOther, Name: name}
}

// AsInstance returns the instance or fails with undefined behavior.
func (f FnVal) AsInstance() (Instance, error) {
	if f.Kind != FnValInstance {
		return Instance{}, makeError(CodeNotAnInstance, "expected a function instance, found %s", f.key())
	}
	return f.Instance, nil
}

func (f FnVal) key() string {
	if f.Kind == FnValInstance {
		return f.Instance.Key()
	}
	return "other:" + f.Name
}
