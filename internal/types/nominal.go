package types

import (
	"slices"
	"strings"
)

// StructField describes a single field inside a nominal struct type.
type StructField struct {
	Name   string
	Type   TypeID
	Layout FieldLayoutAttrs
}

// StructInfo stores metadata for a struct type.
//
// Generic struct templates reference their parameters through
// KindGenericParam fields. Instantiations record the template in Base and the
// substituted arguments in TypeArgs.
type StructInfo struct {
	Name     string
	Fields   []StructField
	Base     TypeID
	TypeArgs []TypeID
}

// RegisterStruct allocates a nominal struct type slot and returns its TypeID.
func (in *Interner) RegisterStruct(name string) TypeID {
	slot := in.appendStructInfo(StructInfo{Name: name})
	return in.internRaw(Type{Kind: KindStruct, Payload: slot})
}

// SetStructFields stores the resolved field descriptors for the struct type.
func (in *Interner) SetStructFields(typeID TypeID, fields []StructField) {
	info := in.structInfo(typeID)
	if info == nil {
		return
	}
	info.Fields = cloneStructFields(fields)
}

// StructInfo returns metadata for the provided struct TypeID.
func (in *Interner) StructInfo(typeID TypeID) (*StructInfo, bool) {
	info := in.structInfo(typeID)
	if info == nil {
		return nil, false
	}
	return info, true
}

// StructFields returns a copy of struct fields for the TypeID.
func (in *Interner) StructFields(typeID TypeID) []StructField {
	info := in.structInfo(typeID)
	if info == nil || len(info.Fields) == 0 {
		return nil
	}
	return cloneStructFields(info.Fields)
}

// InstantiateStruct substitutes args into a generic struct template.
// Instantiations are cached so the same (template, args) pair yields one TypeID.
func (in *Interner) InstantiateStruct(base TypeID, args []TypeID) TypeID {
	tmpl := in.structInfo(base)
	if tmpl == nil || len(args) == 0 {
		return base
	}
	key := instanceKey(base, args)
	if id, ok := in.instances[key]; ok {
		return id
	}
	id := in.RegisterStruct(tmpl.Name)
	if in.instances == nil {
		in.instances = make(map[string]TypeID, 16)
	}
	// Register before substituting fields so self-referential templates terminate.
	in.instances[key] = id
	fields := make([]StructField, len(tmpl.Fields))
	for i, f := range tmpl.Fields {
		fields[i] = StructField{Name: f.Name, Type: in.Subst(f.Type, args), Layout: f.Layout}
	}
	info := in.structInfo(id)
	info.Fields = fields
	info.Base = base
	info.TypeArgs = cloneTypeArgs(args)
	if attrs, ok := in.TypeLayoutAttrs(base); ok {
		in.SetTypeLayoutAttrs(id, attrs)
	}
	return id
}

func (in *Interner) structInfo(typeID TypeID) *StructInfo {
	tt, ok := in.Lookup(typeID)
	if !ok || tt.Kind != KindStruct {
		return nil
	}
	if tt.Payload == 0 || int(tt.Payload) >= len(in.structs) {
		return nil
	}
	return &in.structs[tt.Payload]
}

func (in *Interner) appendStructInfo(info StructInfo) uint32 {
	in.structs = append(in.structs, StructInfo{
		Name:   info.Name,
		Fields: cloneStructFields(info.Fields),
	})
	return slotOf(len(in.structs)-1, "struct info")
}

func cloneStructFields(fields []StructField) []StructField {
	if len(fields) == 0 {
		return nil
	}
	return slices.Clone(fields)
}

func instanceKey(base TypeID, args []TypeID) string {
	var sb strings.Builder
	sb.Grow(8 + 6*len(args))
	writeID(&sb, uint32(base))
	for _, a := range args {
		sb.WriteByte(',')
		writeID(&sb, uint32(a))
	}
	return sb.String()
}
