package types

// TypeParamInfo stores metadata about a generic type parameter.
type TypeParamInfo struct {
	Name  string
	Index uint32
}

// RegisterTypeParam returns the generic parameter with the given positional
// index. Parameters are positional, so two calls with the same index yield
// the same TypeID; the first non-empty name wins for display.
func (in *Interner) RegisterTypeParam(name string, index uint32) TypeID {
	id := in.Intern(Type{Kind: KindGenericParam, Count: index})
	if in.params == nil {
		in.params = make(map[uint32]string, 4)
	}
	if _, ok := in.params[index]; !ok && name != "" {
		in.params[index] = name
	}
	return id
}

// TypeParamInfo returns metadata for the provided generic parameter.
func (in *Interner) TypeParamInfo(id TypeID) (*TypeParamInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindGenericParam {
		return nil, false
	}
	return &TypeParamInfo{Name: in.params[tt.Count], Index: tt.Count}, true
}
