package layout_test

import (
	"testing"

	"layoutcore/internal/layout"
	"layoutcore/internal/types"
)

func TestHomogeneousAggregate(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	le := layout.New(layout.ARMv7HF(), in)

	quad := in.RegisterStruct("Quad")
	in.SetStructFields(quad, []types.StructField{
		{Name: "x", Type: b.Float32},
		{Name: "yz", Type: in.Intern(types.MakeArray(b.Float32, 2))},
		{Name: "w", Type: b.Float32},
	})
	mixed := in.RegisterTuple([]types.TypeID{b.Float32, b.Int32})
	padded := in.RegisterTuple([]types.TypeID{b.Float32, b.Float64})
	empty := in.RegisterStruct("Empty")
	withEmpty := in.RegisterTuple([]types.TypeID{empty, b.Float64, b.Float64})

	cases := []struct {
		name  string
		id    types.TypeID
		class layout.HomogeneousClass
		leaf  layout.Leaf
	}{
		{"f32 struct", quad, layout.HomogeneousUnit, layout.Leaf{Kind: layout.LeafFloat, Size: 4}},
		{"mixed", mixed, layout.HomogeneousHeterogeneous, layout.Leaf{}},
		{"padding", padded, layout.HomogeneousHeterogeneous, layout.Leaf{}},
		{"empty", empty, layout.HomogeneousNoData, layout.Leaf{}},
		{"zst field", withEmpty, layout.HomogeneousUnit, layout.Leaf{Kind: layout.LeafFloat, Size: 8}},
		{"ints", in.Intern(types.MakeArray(b.Uint16, 3)), layout.HomogeneousUnit, layout.Leaf{Kind: layout.LeafInteger, Size: 2}},
		{"vector", in.Intern(types.MakeVector(b.Float32, types.Width64)), layout.HomogeneousUnit, layout.Leaf{Kind: layout.LeafVector, Size: 8}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := le.HomogeneousAggregate(tc.id)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if h.Class != tc.class {
				t.Fatalf("expected %v, got %v", tc.class, h)
			}
			if tc.class == layout.HomogeneousUnit && h.Leaf != tc.leaf {
				t.Fatalf("expected leaf %+v, got %+v", tc.leaf, h.Leaf)
			}
		})
	}
}
