package types

import "slices"

// InterfaceID identifies an interface (a named method set).
type InterfaceID uint32

// NoInterfaceID marks the absence of an interface.
const NoInterfaceID InterfaceID = 0

// InterfaceMethod is one entry of an interface's declared method list.
type InterfaceMethod struct {
	Name string
	// Default is the provided body, if any. Its generic parameter 0 is Self,
	// followed by the interface's own parameters.
	Default FnID
	// Generic methods carry their own type parameters and cannot be called
	// through a dispatch table; their slot stays empty.
	Generic bool
}

// InterfaceInfo describes an interface declaration.
type InterfaceInfo struct {
	Name    string
	Params  uint32 // number of interface type parameters, excluding Self
	Methods []InterfaceMethod
}

// RegisterInterface records an interface declaration.
func (in *Interner) RegisterInterface(info InterfaceInfo) InterfaceID {
	if in.interfaces == nil {
		in.interfaces = append(in.interfaces, InterfaceInfo{})
	}
	info.Methods = slices.Clone(info.Methods)
	in.interfaces = append(in.interfaces, info)
	return InterfaceID(slotOf(len(in.interfaces)-1, "interface"))
}

// InterfaceInfo returns the declaration for id.
func (in *Interner) InterfaceInfo(id InterfaceID) (*InterfaceInfo, bool) {
	if in == nil || id == NoInterfaceID || int(id) >= len(in.interfaces) {
		return nil, false
	}
	return &in.interfaces[id], true
}

// ExistentialID identifies an interned existential reference.
type ExistentialID uint32

// NoExistential means "no interface": a table for a plain pointer-to-T.
const NoExistential ExistentialID = 0

// ExistentialRef is an interface applied to arguments with Self erased,
// e.g. `Iterator<i32>` inside `dyn Iterator<i32>`.
type ExistentialRef struct {
	Interface InterfaceID
	Args      []TypeID
}

// InternExistential returns the stable id for ref.
func (in *Interner) InternExistential(ref ExistentialRef) ExistentialID {
	if ref.Interface == NoInterfaceID {
		return NoExistential
	}
	if in.existential == nil {
		in.existential = append(in.existential, ExistentialRef{})
	}
	for i := 1; i < len(in.existential); i++ {
		e := in.existential[i]
		if e.Interface == ref.Interface && slices.Equal(e.Args, ref.Args) {
			return ExistentialID(slotOf(i, "existential"))
		}
	}
	in.existential = append(in.existential, ExistentialRef{
		Interface: ref.Interface,
		Args:      cloneTypeArgs(ref.Args),
	})
	return ExistentialID(slotOf(len(in.existential)-1, "existential"))
}

// Existential returns the reference behind id.
func (in *Interner) Existential(id ExistentialID) (ExistentialRef, bool) {
	if in == nil || id == NoExistential || int(id) >= len(in.existential) {
		return ExistentialRef{}, false
	}
	e := in.existential[id]
	return ExistentialRef{Interface: e.Interface, Args: cloneTypeArgs(e.Args)}, true
}

// MakeDyn interns the unsized `dyn` type for an existential.
func (in *Interner) MakeDyn(ex ExistentialID) TypeID {
	return in.Intern(Type{Kind: KindDyn, Payload: uint32(ex)})
}

// ImplInfo binds an interface (applied to Args) to a concrete Self type.
// Methods is parallel to the interface's method list; NoFnID means the impl
// relies on the interface's default body.
type ImplInfo struct {
	Self      TypeID
	Interface InterfaceID
	Args      []TypeID
	Methods   []FnID
}

// RegisterImpl records an implementation. Methods are given by interface
// method name; unknown names are ignored. Self and Args are stored with
// regions erased.
func (in *Interner) RegisterImpl(self TypeID, iface InterfaceID, args []TypeID, methods map[string]FnID) bool {
	info, ok := in.InterfaceInfo(iface)
	if !ok {
		return false
	}
	slots := make([]FnID, len(info.Methods))
	for i, m := range info.Methods {
		slots[i] = methods[m.Name]
	}
	in.impls = append(in.impls, ImplInfo{
		Self:      in.EraseRegions(self),
		Interface: iface,
		Args:      in.eraseArgs(args),
		Methods:   slots,
	})
	return true
}

// ImplFor finds the impl of iface[args] for self.
func (in *Interner) ImplFor(self TypeID, iface InterfaceID, args []TypeID) (*ImplInfo, bool) {
	if in == nil {
		return nil, false
	}
	self = in.EraseRegions(self)
	args = in.eraseArgs(args)
	for i := range in.impls {
		impl := &in.impls[i]
		if impl.Self == self && impl.Interface == iface && slices.Equal(impl.Args, args) {
			return impl, true
		}
	}
	return nil, false
}

// RegisterDrop attaches a user destructor to ty. The destructor takes
// `*mut ty` and runs before field drop glue.
func (in *Interner) RegisterDrop(ty TypeID, fn FnID) {
	if in.drops == nil {
		in.drops = make(map[TypeID]FnID, 8)
	}
	in.drops[in.EraseRegions(ty)] = fn
}

// DropFn returns the user destructor for ty, if any.
func (in *Interner) DropFn(ty TypeID) (FnID, bool) {
	if in == nil || in.drops == nil {
		return NoFnID, false
	}
	fn, ok := in.drops[in.EraseRegions(ty)]
	return fn, ok
}

func (in *Interner) eraseArgs(args []TypeID) []TypeID {
	if len(args) == 0 {
		return nil
	}
	out := make([]TypeID, len(args))
	for i, a := range args {
		out[i] = in.EraseRegions(a)
	}
	return out
}
