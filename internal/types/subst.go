package types

// NeedsSubst reports whether id still mentions an unresolved generic parameter.
func (in *Interner) NeedsSubst(id TypeID) bool {
	return in.needsSubst(id, make(map[TypeID]struct{}, 8))
}

func (in *Interner) needsSubst(id TypeID, seen map[TypeID]struct{}) bool {
	tt, ok := in.Lookup(id)
	if !ok {
		return false
	}
	switch tt.Kind {
	case KindGenericParam:
		return true
	case KindPointer, KindReference, KindArray, KindSlice, KindVector:
		return in.needsSubst(tt.Elem, seen)
	case KindTuple:
		info, ok := in.TupleInfo(id)
		if !ok {
			return false
		}
		return in.anyNeedsSubst(info.Elems, seen)
	case KindFn:
		info, ok := in.FnInfo(id)
		if !ok {
			return false
		}
		return in.anyNeedsSubst(info.Params, seen) || in.needsSubst(info.Result, seen)
	case KindDyn:
		return in.ExistentialNeedsSubst(ExistentialID(tt.Payload))
	case KindStruct:
		if _, ok := seen[id]; ok {
			return false
		}
		seen[id] = struct{}{}
		info, ok := in.StructInfo(id)
		if !ok {
			return false
		}
		if in.anyNeedsSubst(info.TypeArgs, seen) {
			return true
		}
		for _, f := range info.Fields {
			if in.needsSubst(f.Type, seen) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (in *Interner) anyNeedsSubst(ids []TypeID, seen map[TypeID]struct{}) bool {
	for _, id := range ids {
		if in.needsSubst(id, seen) {
			return true
		}
	}
	return false
}

// ExistentialNeedsSubst reports whether the existential's arguments are generic.
func (in *Interner) ExistentialNeedsSubst(ex ExistentialID) bool {
	ref, ok := in.Existential(ex)
	if !ok {
		return false
	}
	seen := make(map[TypeID]struct{}, 4)
	return in.anyNeedsSubst(ref.Args, seen)
}

// HasRegions reports whether id mentions a non-erased region.
func (in *Interner) HasRegions(id TypeID) bool {
	return in.hasRegions(id, 0)
}

func (in *Interner) hasRegions(id TypeID, depth int) bool {
	tt, ok := in.Lookup(id)
	if !ok || depth > 64 {
		return false
	}
	switch tt.Kind {
	case KindReference:
		return tt.Region != RegionErased || in.hasRegions(tt.Elem, depth+1)
	case KindPointer, KindArray, KindSlice, KindVector:
		return in.hasRegions(tt.Elem, depth+1)
	case KindTuple:
		info, _ := in.TupleInfo(id)
		return info != nil && in.anyHasRegions(info.Elems, depth)
	case KindFn:
		info, _ := in.FnInfo(id)
		return info != nil && (in.anyHasRegions(info.Params, depth) || in.hasRegions(info.Result, depth+1))
	case KindDyn:
		ref, ok := in.Existential(ExistentialID(tt.Payload))
		return ok && in.anyHasRegions(ref.Args, depth)
	case KindStruct:
		info, _ := in.StructInfo(id)
		return info != nil && in.anyHasRegions(info.TypeArgs, depth)
	default:
		return false
	}
}

func (in *Interner) anyHasRegions(ids []TypeID, depth int) bool {
	for _, id := range ids {
		if in.hasRegions(id, depth+1) {
			return true
		}
	}
	return false
}

// EraseRegions returns id with every region replaced by RegionErased.
// Nominal structs keep their identity unless their type arguments carry regions.
func (in *Interner) EraseRegions(id TypeID) TypeID {
	if !in.HasRegions(id) {
		return id
	}
	return in.mapType(id, func(_ TypeID, tt Type) (TypeID, bool) {
		if tt.Kind == KindReference {
			tt.Region = RegionErased
			tt.Elem = in.EraseRegions(tt.Elem)
			return in.Intern(tt), true
		}
		return NoTypeID, false
	})
}

// EraseExistentialRegions erases regions from the existential's arguments.
func (in *Interner) EraseExistentialRegions(ex ExistentialID) ExistentialID {
	ref, ok := in.Existential(ex)
	if !ok {
		return ex
	}
	for i, a := range ref.Args {
		ref.Args[i] = in.EraseRegions(a)
	}
	return in.InternExistential(ref)
}

// Subst replaces generic parameter i with args[i] throughout id.
// Parameters outside args are left untouched.
func (in *Interner) Subst(id TypeID, args []TypeID) TypeID {
	if len(args) == 0 || !in.NeedsSubst(id) {
		return id
	}
	return in.mapType(id, func(cur TypeID, tt Type) (TypeID, bool) {
		switch tt.Kind {
		case KindGenericParam:
			if int(tt.Count) < len(args) {
				return args[tt.Count], true
			}
			return cur, true
		case KindStruct:
			info, ok := in.StructInfo(cur)
			if !ok || !in.NeedsSubst(cur) {
				return cur, true
			}
			if info.Base == NoTypeID {
				return in.InstantiateStruct(cur, args), true
			}
			next := make([]TypeID, len(info.TypeArgs))
			for i, a := range info.TypeArgs {
				next[i] = in.Subst(a, args)
			}
			return in.InstantiateStruct(info.Base, next), true
		}
		return NoTypeID, false
	})
}

// mapType rebuilds id structurally. leaf may claim a descriptor by returning
// (replacement, true); otherwise children are rebuilt recursively.
func (in *Interner) mapType(id TypeID, leaf func(TypeID, Type) (TypeID, bool)) TypeID {
	tt, ok := in.Lookup(id)
	if !ok {
		return id
	}
	if tt.Kind == KindStruct {
		// Templates are identified by TypeID, not by descriptor.
		info, _ := in.StructInfo(id)
		if info != nil && info.Base == NoTypeID {
			if rep, ok := leaf(id, tt); ok {
				return rep
			}
			return id
		}
	}
	if rep, ok := leaf(id, tt); ok {
		return rep
	}
	switch tt.Kind {
	case KindPointer, KindReference, KindArray, KindSlice, KindVector:
		tt.Elem = in.mapType(tt.Elem, leaf)
		return in.Intern(tt)
	case KindTuple:
		info, _ := in.TupleInfo(id)
		if info == nil {
			return id
		}
		elems := make([]TypeID, len(info.Elems))
		for i, e := range info.Elems {
			elems[i] = in.mapType(e, leaf)
		}
		return in.RegisterTuple(elems)
	case KindFn:
		info, _ := in.FnInfo(id)
		if info == nil {
			return id
		}
		params := make([]TypeID, len(info.Params))
		for i, p := range info.Params {
			params[i] = in.mapType(p, leaf)
		}
		return in.RegisterFn(params, in.mapType(info.Result, leaf))
	case KindDyn:
		ref, ok := in.Existential(ExistentialID(tt.Payload))
		if !ok {
			return id
		}
		for i, a := range ref.Args {
			ref.Args[i] = in.mapType(a, leaf)
		}
		return in.MakeDyn(in.InternExistential(ref))
	case KindStruct:
		info, _ := in.StructInfo(id)
		if info == nil || info.Base == NoTypeID {
			return id
		}
		args := make([]TypeID, len(info.TypeArgs))
		for i, a := range info.TypeArgs {
			args[i] = in.mapType(a, leaf)
		}
		return in.InstantiateStruct(info.Base, args)
	default:
		return id
	}
}
