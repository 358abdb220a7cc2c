package abi_test

import (
	"errors"
	"testing"

	"layoutcore/internal/abi"
	"layoutcore/internal/layout"
	"layoutcore/internal/types"
)

type fixture struct {
	in *types.Interner
	b  types.Builtins
}

func newFixture() *fixture {
	in := types.NewInterner()
	return &fixture{in: in, b: in.Builtins()}
}

func (f *fixture) structOf(name string, fields ...types.TypeID) types.TypeID {
	id := f.in.RegisterStruct(name)
	sf := make([]types.StructField, len(fields))
	for i, ft := range fields {
		sf[i] = types.StructField{Type: ft}
	}
	f.in.SetStructFields(id, sf)
	return id
}

func (f *fixture) classify(t *testing.T, target layout.Target, sig abi.Signature) *abi.FnAbi {
	t.Helper()
	cx := abi.NewContext(layout.New(target, f.in))
	fn, err := abi.FnAbiOf(cx, sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return fn
}

func TestArmScalarsAreExtended(t *testing.T) {
	f := newFixture()
	fn := f.classify(t, layout.ARMv7HF(), abi.Signature{
		Name:   "scalars",
		Params: []types.TypeID{f.b.Int8, f.b.Uint16, f.b.Bool, f.b.Int32, f.b.Float32},
		Ret:    f.b.Int16,
	})
	want := []string{"direct sext", "direct zext", "direct zext", "direct", "direct"}
	for i, w := range want {
		if got := fn.Args[i].String(); got != w {
			t.Fatalf("arg %d: expected %q, got %q", i, w, got)
		}
	}
	if fn.Ret.Mode != abi.PassDirect || fn.Ret.Ext != abi.ExtSext {
		t.Fatalf("expected sign-extended direct return, got %s", fn.Ret.String())
	}
}

func TestArmReturnBoundary(t *testing.T) {
	f := newFixture()
	four := f.structOf("Four", f.b.Uint16, f.b.Uint8, f.b.Uint8)
	three := f.structOf("Three", f.b.Uint8, f.b.Uint8, f.b.Uint8)
	five := f.in.RegisterTuple([]types.TypeID{f.in.Intern(types.MakeArray(f.b.Uint8, 5))})
	one := f.structOf("One", f.in.Intern(types.MakeArray(f.b.Uint8, 1)))

	cases := []struct {
		name string
		ret  types.TypeID
		mode abi.PassMode
		cast string
	}{
		{"32 bits", four, abi.PassCast, "i32"},
		{"24 bits", three, abi.PassCast, "i32"},
		{"8 bits", one, abi.PassCast, "i8"},
		{"40 bits", five, abi.PassIndirect, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fn := f.classify(t, layout.ARMv7HF(), abi.Signature{Name: tc.name, Ret: tc.ret})
			if fn.Ret.Mode != tc.mode {
				t.Fatalf("expected %v, got %v", tc.mode, fn.Ret.Mode)
			}
			if tc.cast != "" && fn.Ret.Cast.String() != tc.cast {
				t.Fatalf("expected cast %s, got %s", tc.cast, fn.Ret.Cast)
			}
			if fn.Ret.Layout.Size*8 > 32 && fn.Ret.Mode == abi.PassCast {
				t.Fatalf("expected wide values never to be cast to one integer")
			}
		})
	}
}

func TestArmScalarWrappersPassLikeTheirField(t *testing.T) {
	f := newFixture()
	byteWrap := f.structOf("W", f.b.Uint8)
	floatWrap := f.structOf("F", f.b.Float32)
	withUnit := f.structOf("Tagged", f.b.Int16, f.b.Unit)
	packed := f.structOf("PackedW", f.b.Uint32)
	f.in.SetTypeLayoutAttrs(packed, types.LayoutAttrs{Packed: true})

	fn := f.classify(t, layout.ARMv7HF(), abi.Signature{
		Name:   "wrappers",
		Params: []types.TypeID{byteWrap, floatWrap, withUnit, packed},
		Ret:    byteWrap,
	})
	want := []string{"direct zext", "direct", "direct sext", "cast i32"}
	for i, w := range want {
		if got := fn.Args[i].String(); got != w {
			t.Fatalf("arg %d: expected %q, got %q", i, w, got)
		}
	}
	if got := fn.Ret.String(); got != "direct zext" {
		t.Fatalf("expected the u8 wrapper to return zero-extended, got %q", got)
	}
}

func TestArmHardFloatHomogeneous(t *testing.T) {
	f := newFixture()
	pair := f.structOf("Pair", f.b.Float64, f.b.Float64)

	fn := f.classify(t, layout.ARMv7HF(), abi.Signature{
		Name:   "pair",
		Params: []types.TypeID{pair},
		Ret:    pair,
	})
	for _, a := range []abi.ArgAbi{fn.Ret, fn.Args[0]} {
		if a.Mode != abi.PassCast {
			t.Fatalf("expected cast, got %s", a.String())
		}
		u := a.Cast.Rest
		if u.Unit != abi.F64() || u.Count() != 2 || u.Total != 16 {
			t.Fatalf("expected 2 x f64, got %+v", u)
		}
	}
	if fn.Ret.Layout.Size != 16 || fn.Ret.Layout.Align != 8 {
		t.Fatalf("expected original layout 16/8 to be kept, got %d/%d", fn.Ret.Layout.Size, fn.Ret.Layout.Align)
	}
}

func TestArmVFPDisabled(t *testing.T) {
	f := newFixture()
	pair := f.structOf("Pair", f.b.Float64, f.b.Float64)

	cases := []struct {
		name   string
		target layout.Target
		conv   abi.Conv
		varg   bool
	}{
		{"soft-float triple", layout.ARMv7(), abi.ConvC, false},
		{"explicit aapcs", layout.ARMv7HF(), abi.ConvArmAapcs, false},
		{"variadic", layout.ARMv7HF(), abi.ConvC, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fn := f.classify(t, tc.target, abi.Signature{
				Name:      tc.name,
				Params:    []types.TypeID{pair},
				Ret:       pair,
				Conv:      tc.conv,
				CVariadic: tc.varg,
			})
			if fn.Ret.Mode != abi.PassIndirect {
				t.Fatalf("expected indirect return, got %s", fn.Ret.String())
			}
			arg := fn.Args[0]
			if arg.Mode != abi.PassCast || arg.Cast.Rest.Unit != abi.I64() || arg.Cast.Rest.Total != 16 {
				t.Fatalf("expected cast to i64 units over 16 bytes, got %s", arg.String())
			}
		})
	}
}

func TestArmHomogeneousArityBound(t *testing.T) {
	f := newFixture()
	four := f.in.Intern(types.MakeArray(f.b.Float32, 4))
	five := f.in.Intern(types.MakeArray(f.b.Float32, 5))
	quad := f.structOf("Quad", four)
	penta := f.structOf("Penta", five)

	fn := f.classify(t, layout.ARMv7HF(), abi.Signature{
		Name:   "arity",
		Params: []types.TypeID{quad, penta},
		Ret:    penta,
	})
	if got := fn.Args[0].String(); got != "cast [4 x float]" {
		t.Fatalf("expected homogeneous 4 x float, got %q", got)
	}
	if got := fn.Args[1].Cast.Rest; got.Unit.Kind != abi.RegInteger || got.Unit != abi.I32() || got.Total != 20 {
		t.Fatalf("expected integer cast for 5 floats, got %+v", got)
	}
	if fn.Ret.Mode != abi.PassIndirect {
		t.Fatalf("expected 5 floats to return indirectly, got %s", fn.Ret.String())
	}
}

func TestArmIntegerAggregatesNeverHomogeneous(t *testing.T) {
	f := newFixture()
	ints := f.structOf("Ints", f.b.Int32, f.b.Int32)
	fn := f.classify(t, layout.ARMv7HF(), abi.Signature{Name: "ints", Params: []types.TypeID{ints}, Ret: ints})
	if fn.Ret.Mode != abi.PassIndirect {
		t.Fatalf("expected indirect return, got %s", fn.Ret.String())
	}
	if got := fn.Args[0].String(); got != "cast [2 x i32]" {
		t.Fatalf("expected cast [2 x i32], got %q", got)
	}
}

func TestArmVectorAggregates(t *testing.T) {
	f := newFixture()
	v64 := f.in.Intern(types.MakeVector(f.b.Float32, types.Width64))
	two := f.structOf("TwoVec", v64, v64)
	three := f.structOf("ThreeVec", v64, v64, v64)

	fn := f.classify(t, layout.ARMv7HF(), abi.Signature{
		Name:   "vectors",
		Params: []types.TypeID{v64, two, three},
	})
	if fn.Args[0].Mode != abi.PassDirect {
		t.Fatalf("expected bare vector to pass directly, got %s", fn.Args[0].String())
	}
	if got := fn.Args[1].Cast.Rest; got.Unit.Kind != abi.RegVector || got.Count() != 2 {
		t.Fatalf("expected 2 vector units for 128-bit aggregate, got %+v", got)
	}
	if got := fn.Args[2].Cast.Rest; got.Unit.Kind != abi.RegInteger {
		t.Fatalf("expected 192-bit vector aggregate to fall back to integers, got %+v", got)
	}
}

func TestArmIgnoresZeroSized(t *testing.T) {
	f := newFixture()
	empty := f.structOf("Empty")
	fn := f.classify(t, layout.ARMv7HF(), abi.Signature{
		Name:   "zst",
		Params: []types.TypeID{empty, f.b.Uint8},
	})
	if !fn.Ret.IsIgnore() || fn.Ret.Cast != nil {
		t.Fatalf("expected unit return to stay ignored, got %s", fn.Ret.String())
	}
	if !fn.Args[0].IsIgnore() {
		t.Fatalf("expected zero-sized argument to stay ignored, got %s", fn.Args[0].String())
	}
	if fn.Args[1].Ext != abi.ExtZext {
		t.Fatalf("expected following argument to be classified, got %s", fn.Args[1].String())
	}
}

func TestComputeABIInfoUnsupportedArch(t *testing.T) {
	f := newFixture()
	cx := abi.NewContext(layout.New(layout.X86_64LinuxGNU(), f.in))
	_, err := abi.FnAbiOf(cx, abi.Signature{Name: "f", Params: []types.TypeID{f.b.Int32}})
	var abiErr *abi.Error
	if !errors.As(err, &abiErr) || abiErr.Kind != abi.ErrUnsupportedArch {
		t.Fatalf("expected ErrUnsupportedArch, got %v", err)
	}
	if abiErr.Fn != "f" {
		t.Fatalf("expected signature name in error, got %q", abiErr.Fn)
	}
}

func TestFnAbiOfRejectsGeneric(t *testing.T) {
	f := newFixture()
	t0 := f.in.RegisterTypeParam("T", 0)
	cx := abi.NewContext(layout.New(layout.ARMv7HF(), f.in))
	_, err := abi.FnAbiOf(cx, abi.Signature{Name: "g", Params: []types.TypeID{t0}})
	var lerr *layout.LayoutError
	if !errors.As(err, &lerr) || lerr.Kind != layout.LayoutErrTooGeneric {
		t.Fatalf("expected LayoutErrTooGeneric, got %v", err)
	}
}
