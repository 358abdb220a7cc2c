package abi

import "fmt"

// RegKind is the register class a value travels in.
type RegKind uint8

const (
	RegInteger RegKind = iota
	RegFloat
	RegVector
)

func (k RegKind) String() string {
	switch k {
	case RegInteger:
		return "int"
	case RegFloat:
		return "float"
	case RegVector:
		return "vector"
	default:
		return fmt.Sprintf("RegKind(%d)", k)
	}
}

// Reg is one register-sized unit.
type Reg struct {
	Kind RegKind
	Size int // bytes
}

func I8() Reg  { return Reg{Kind: RegInteger, Size: 1} }
func I16() Reg { return Reg{Kind: RegInteger, Size: 2} }
func I32() Reg { return Reg{Kind: RegInteger, Size: 4} }
func I64() Reg { return Reg{Kind: RegInteger, Size: 8} }
func F32() Reg { return Reg{Kind: RegFloat, Size: 4} }
func F64() Reg { return Reg{Kind: RegFloat, Size: 8} }

// String renders the LLVM-style spelling (i32, f64, <16 x i8>).
func (r Reg) String() string {
	switch r.Kind {
	case RegInteger:
		return fmt.Sprintf("i%d", r.Size*8)
	case RegFloat:
		switch r.Size {
		case 4:
			return "float"
		case 8:
			return "double"
		}
		return fmt.Sprintf("f%d", r.Size*8)
	default:
		return fmt.Sprintf("<%d x i8>", r.Size)
	}
}

// Uniform is Total bytes passed as repeated copies of Unit.
type Uniform struct {
	Unit  Reg
	Total int // bytes
}

// Count returns the number of units, rounding up a partial trailing unit.
func (u Uniform) Count() int {
	if u.Unit.Size <= 0 {
		return 0
	}
	return (u.Total + u.Unit.Size - 1) / u.Unit.Size
}

func (u Uniform) String() string {
	if n := u.Count(); n != 1 {
		return fmt.Sprintf("[%d x %s]", n, u.Unit)
	}
	return u.Unit.String()
}

// CastTarget is the register sequence a cast value is reinterpreted as.
type CastTarget struct {
	Rest Uniform
}

func (c CastTarget) String() string {
	return c.Rest.String()
}
