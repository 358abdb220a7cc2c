package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Label returns a user-friendly label for a TypeID.
func Label(typesIn *Interner, id TypeID) string {
	return labelDepth(typesIn, id, 0)
}

func labelDepth(typesIn *Interner, id TypeID, depth int) string {
	if id == NoTypeID {
		return "?"
	}
	if depth > 6 {
		return "..."
	}
	if typesIn == nil {
		return "?"
	}
	tt, ok := typesIn.Lookup(id)
	if !ok {
		return "?"
	}
	switch tt.Kind {
	case KindUnit:
		return "()"
	case KindNever:
		return "!"
	case KindBool:
		return "bool"
	case KindStr:
		return "str"
	case KindInt:
		return formatIntType(tt.Width, true)
	case KindUint:
		return formatIntType(tt.Width, false)
	case KindFloat:
		return "f" + strconv.Itoa(int(tt.Width))
	case KindVector:
		return fmt.Sprintf("v%d<%s>", tt.Width, labelDepth(typesIn, tt.Elem, depth+1))
	case KindPointer:
		if tt.Mutable {
			return "*mut " + labelDepth(typesIn, tt.Elem, depth+1)
		}
		return "*const " + labelDepth(typesIn, tt.Elem, depth+1)
	case KindReference:
		var sb strings.Builder
		sb.WriteByte('&')
		if tt.Region != RegionErased {
			fmt.Fprintf(&sb, "'%d ", tt.Region)
		}
		if tt.Mutable {
			sb.WriteString("mut ")
		}
		sb.WriteString(labelDepth(typesIn, tt.Elem, depth+1))
		return sb.String()
	case KindArray:
		return fmt.Sprintf("[%s; %d]", labelDepth(typesIn, tt.Elem, depth+1), tt.Count)
	case KindSlice:
		return "[" + labelDepth(typesIn, tt.Elem, depth+1) + "]"
	case KindDyn:
		return "dyn " + ExistentialLabel(typesIn, ExistentialID(tt.Payload))
	case KindStruct:
		return formatStructType(typesIn, id, depth)
	case KindTuple:
		info, ok := typesIn.TupleInfo(id)
		if !ok || info == nil {
			return "(?)"
		}
		parts := make([]string, len(info.Elems))
		for i, elem := range info.Elems {
			parts[i] = labelDepth(typesIn, elem, depth+1)
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case KindFn:
		info, ok := typesIn.FnInfo(id)
		if !ok || info == nil {
			return "fn(?)"
		}
		params := make([]string, len(info.Params))
		for i, param := range info.Params {
			params[i] = labelDepth(typesIn, param, depth+1)
		}
		ret := labelDepth(typesIn, info.Result, depth+1)
		return "fn(" + strings.Join(params, ", ") + ") -> " + ret
	case KindGenericParam:
		if info, ok := typesIn.TypeParamInfo(id); ok && info.Name != "" {
			return info.Name
		}
		return "T" + strconv.FormatUint(uint64(tt.Count), 10)
	default:
		return "?"
	}
}

// ExistentialLabel renders an existential reference, or "none".
func ExistentialLabel(typesIn *Interner, ex ExistentialID) string {
	ref, ok := typesIn.Existential(ex)
	if !ok {
		return "none"
	}
	info, ok := typesIn.InterfaceInfo(ref.Interface)
	if !ok {
		return "?"
	}
	if len(ref.Args) == 0 {
		return info.Name
	}
	args := make([]string, len(ref.Args))
	for i, a := range ref.Args {
		args[i] = Label(typesIn, a)
	}
	return info.Name + "<" + strings.Join(args, ", ") + ">"
}

// FnLabel renders a function definition name.
func FnLabel(typesIn *Interner, fn FnID) string {
	def, ok := typesIn.FnDef(fn)
	if !ok {
		return "fn#" + strconv.FormatUint(uint64(fn), 10)
	}
	return def.Name
}

func formatStructType(typesIn *Interner, id TypeID, depth int) string {
	info, ok := typesIn.StructInfo(id)
	if !ok || info == nil {
		return "?"
	}
	if len(info.TypeArgs) == 0 {
		return info.Name
	}
	args := make([]string, len(info.TypeArgs))
	for i, arg := range info.TypeArgs {
		args[i] = labelDepth(typesIn, arg, depth+1)
	}
	return info.Name + "<" + strings.Join(args, ", ") + ">"
}

func formatIntType(width Width, signed bool) string {
	prefix := "u"
	if signed {
		prefix = "i"
	}
	if width == WidthAny {
		return prefix + "size"
	}
	return prefix + strconv.Itoa(int(width))
}

func writeID(sb *strings.Builder, v uint32) {
	var buf [10]byte
	sb.Write(strconv.AppendUint(buf[:0], uint64(v), 10))
}
