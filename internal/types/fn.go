package types //nolint:revive

import "slices"

// FnInfo stores metadata for function pointer types.
type FnInfo struct {
	Params []TypeID // Parameter types (in order)
	Result TypeID   // Return type
}

// RegisterFn creates or finds a function pointer type.
func (in *Interner) RegisterFn(params []TypeID, result TypeID) TypeID {
	if in != nil {
		for id := TypeID(1); int(id) < len(in.types); id++ {
			tt := in.types[id]
			if tt.Kind != KindFn {
				continue
			}
			if int(tt.Payload) >= len(in.fnTypes) {
				continue
			}
			info := in.fnTypes[tt.Payload]
			if info.Result == result && slices.Equal(info.Params, params) {
				return id
			}
		}
	}
	slot := in.appendFnInfo(FnInfo{
		Params: params,
		Result: result,
	})
	return in.internRaw(Type{Kind: KindFn, Payload: slot})
}

// FnInfo retrieves function type metadata by TypeID.
func (in *Interner) FnInfo(id TypeID) (*FnInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindFn {
		return nil, false
	}
	if int(tt.Payload) >= len(in.fnTypes) {
		return nil, false
	}
	return &in.fnTypes[tt.Payload], true
}

func (in *Interner) appendFnInfo(info FnInfo) uint32 {
	if in.fnTypes == nil {
		in.fnTypes = append(in.fnTypes, FnInfo{})
	}
	in.fnTypes = append(in.fnTypes, FnInfo{
		Params: cloneTypeArgs(info.Params),
		Result: info.Result,
	})
	return slotOf(len(in.fnTypes)-1, "fn info")
}

// FnID identifies a function definition (an item with a body), as opposed
// to a function pointer type.
type FnID uint32

// NoFnID marks the absence of a function definition.
const NoFnID FnID = 0

// FnDef describes a function definition. Params and Result may reference
// generic parameters 0..Generics-1; callers instantiate them with Subst.
type FnDef struct {
	Name     string
	Generics uint32
	Params   []TypeID
	Result   TypeID
}

// RegisterFnDef records a function definition and returns its id.
func (in *Interner) RegisterFnDef(def FnDef) FnID {
	if in.fnDefs == nil {
		in.fnDefs = append(in.fnDefs, FnDef{})
	}
	def.Params = cloneTypeArgs(def.Params)
	in.fnDefs = append(in.fnDefs, def)
	return FnID(slotOf(len(in.fnDefs)-1, "fn def"))
}

// FnDef returns the definition for id.
func (in *Interner) FnDef(id FnID) (*FnDef, bool) {
	if in == nil || id == NoFnID || int(id) >= len(in.fnDefs) {
		return nil, false
	}
	return &in.fnDefs[id], true
}
