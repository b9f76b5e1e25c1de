package shape

import (
	"fmt"
	"go/types"
	"strconv"
	"strings"
)

// Namer computes the canonical display name of a declared type.
type Namer interface {
	TypeName(t Type) string
}

// CanonicalNamer renders types the way reflect.Type.String does, for both
// reflect and go/types shapes: package-name qualified ("bytes.Buffer"),
// "interface {}" for the empty interface, "uint8" for byte.
type CanonicalNamer struct{}

// TypeName implements Namer.
func (CanonicalNamer) TypeName(t Type) string {
	switch tt := t.(type) {
	case ReflectType:
		return tt.T.String()
	case GoType:
		return goTypeName(tt.T)
	case nil:
		return "<nil>"
	}
	return t.String()
}

// ParamTypeName returns the name stored in the names slot for p: by-ref
// params are named after the type they point to.
func ParamTypeName(n Namer, p Param) string {
	return n.TypeName(p.ValueType())
}

func goTypeName(t types.Type) string {
	var sb strings.Builder
	writeGoType(&sb, t)
	return sb.String()
}

func writeGoType(sb *strings.Builder, t types.Type) {
	switch x := types.Unalias(t).(type) {
	case *types.Basic:
		switch x.Kind() {
		case types.UnsafePointer:
			sb.WriteString("unsafe.Pointer")
		default:
			sb.WriteString(types.Typ[x.Kind()].Name())
		}

	case *types.Named:
		obj := x.Obj()
		if obj.Pkg() != nil {
			sb.WriteString(obj.Pkg().Name())
			sb.WriteByte('.')
		}
		sb.WriteString(obj.Name())
		if args := x.TypeArgs(); args != nil && args.Len() > 0 {
			sb.WriteByte('[')
			for i := 0; i < args.Len(); i++ {
				if i > 0 {
					sb.WriteByte(',')
				}
				writeGoType(sb, args.At(i))
			}
			sb.WriteByte(']')
		}

	case *types.TypeParam:
		sb.WriteString(x.Obj().Name())

	case *types.Pointer:
		sb.WriteByte('*')
		writeGoType(sb, x.Elem())

	case *types.Slice:
		sb.WriteString("[]")
		writeGoType(sb, x.Elem())

	case *types.Array:
		fmt.Fprintf(sb, "[%d]", x.Len())
		writeGoType(sb, x.Elem())

	case *types.Map:
		sb.WriteString("map[")
		writeGoType(sb, x.Key())
		sb.WriteByte(']')
		writeGoType(sb, x.Elem())

	case *types.Chan:
		switch x.Dir() {
		case types.SendRecv:
			sb.WriteString("chan ")
		case types.SendOnly:
			sb.WriteString("chan<- ")
		case types.RecvOnly:
			sb.WriteString("<-chan ")
		}
		writeGoType(sb, x.Elem())

	case *types.Signature:
		sb.WriteString("func")
		writeGoSignature(sb, x)

	case *types.Interface:
		if x.NumMethods() == 0 {
			sb.WriteString("interface {}")
			return
		}
		sb.WriteString("interface { ")
		for i := 0; i < x.NumMethods(); i++ {
			if i > 0 {
				sb.WriteString("; ")
			}
			m := x.Method(i)
			sb.WriteString(m.Name())
			writeGoSignature(sb, m.Type().(*types.Signature))
		}
		sb.WriteString(" }")

	case *types.Struct:
		if x.NumFields() == 0 {
			sb.WriteString("struct {}")
			return
		}
		sb.WriteString("struct { ")
		for i := 0; i < x.NumFields(); i++ {
			if i > 0 {
				sb.WriteString("; ")
			}
			f := x.Field(i)
			if !f.Embedded() {
				sb.WriteString(f.Name())
				sb.WriteByte(' ')
			}
			writeGoType(sb, f.Type())
			if tag := x.Tag(i); tag != "" {
				sb.WriteByte(' ')
				sb.WriteString(strconv.Quote(tag))
			}
		}
		sb.WriteString(" }")

	default:
		sb.WriteString(t.String())
	}
}

func writeGoSignature(sb *strings.Builder, sig *types.Signature) {
	sb.WriteByte('(')
	params := sig.Params()
	for i := 0; i < params.Len(); i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		pt := params.At(i).Type()
		if sig.Variadic() && i == params.Len()-1 {
			sb.WriteString("...")
			if s, ok := pt.(*types.Slice); ok {
				pt = s.Elem()
			}
		}
		writeGoType(sb, pt)
	}
	sb.WriteByte(')')

	results := sig.Results()
	switch results.Len() {
	case 0:
	case 1:
		sb.WriteByte(' ')
		writeGoType(sb, results.At(0).Type())
	default:
		sb.WriteString(" (")
		for i := 0; i < results.Len(); i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeGoType(sb, results.At(i).Type())
		}
		sb.WriteByte(')')
	}
}
