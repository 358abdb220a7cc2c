package vm

import (
	"layoutcore/internal/types"
)

// MethodRef is one dispatch table entry before resolution: an interface
// method body applied to substitutions (Self first, then the interface
// arguments).
type MethodRef struct {
	Interface types.InterfaceID
	Index     int
	Fn        types.FnID
	// Default is set when Fn is the interface's provided body rather than
	// an impl method; resolving it yields a shim.
	Default bool
	Substs  []types.TypeID
}

// Resolver answers the method and destructor questions GetVtable asks.
type Resolver interface {
	// VtableMethods lists the entries of the table for self behind ex, in
	// declared order. A nil entry leaves its slot undefined.
	VtableMethods(self types.TypeID, ex types.ExistentialID) []*MethodRef
	// ResolveDropInPlace returns the drop glue for ty. It always succeeds.
	ResolveDropInPlace(ty types.TypeID) Instance
	// ResolveForVtable turns an entry into a callable instance. It reports
	// false when the body still depends on unresolved generic parameters.
	ResolveForVtable(ref *MethodRef) (Instance, bool)
}

// ImplResolver resolves methods from the impls and destructors registered in
// a types.Interner.
type ImplResolver struct {
	Types *types.Interner
}

// NewImplResolver creates a resolver over in.
func NewImplResolver(in *types.Interner) *ImplResolver {
	return &ImplResolver{Types: in}
}

func (r *ImplResolver) VtableMethods(self types.TypeID, ex types.ExistentialID) []*MethodRef {
	ref, ok := r.Types.Existential(ex)
	if !ok {
		return nil
	}
	info, ok := r.Types.InterfaceInfo(ref.Interface)
	if !ok {
		return nil
	}
	impl, _ := r.Types.ImplFor(self, ref.Interface, ref.Args)
	substs := append([]types.TypeID{self}, ref.Args...)

	out := make([]*MethodRef, len(info.Methods))
	for i, m := range info.Methods {
		if m.Generic {
			continue
		}
		entry := &MethodRef{Interface: ref.Interface, Index: i, Substs: substs}
		switch {
		case impl != nil && i < len(impl.Methods) && impl.Methods[i] != types.NoFnID:
			entry.Fn = impl.Methods[i]
		case m.Default != types.NoFnID:
			entry.Fn = m.Default
			entry.Default = true
		default:
			continue
		}
		out[i] = entry
	}
	return out
}

func (r *ImplResolver) ResolveDropInPlace(ty types.TypeID) Instance {
	fn, _ := r.Types.DropFn(ty)
	return Instance{Kind: InstanceDropGlue, Fn: fn, Ty: ty}
}

func (r *ImplResolver) ResolveForVtable(ref *MethodRef) (Instance, bool) {
	def, ok := r.Types.FnDef(ref.Fn)
	if !ok {
		return Instance{}, false
	}
	if int(def.Generics) > len(ref.Substs) {
		return Instance{}, false
	}
	substs := ref.Substs[:def.Generics]
	for _, s := range substs {
		if r.Types.NeedsSubst(s) {
			return Instance{}, false
		}
	}
	kind := InstanceItem
	if ref.Default {
		kind = InstanceVtableShim
	}
	return Instance{Kind: kind, Fn: ref.Fn, Substs: cloneSubsts(substs)}, true
}

func cloneSubsts(s []types.TypeID) []types.TypeID {
	if len(s) == 0 {
		return nil
	}
	return append([]types.TypeID(nil), s...)
}
