// Package shape describes the methods a proxy must stub.
//
// A Method is the compile-time-known description of one method: its ordered
// parameters and its results. Each parameter records whether it is passed
// by reference (a pointer the stub writes back through) and whether its type
// is value-kind (it must be converted to and from the generic any form).
//
// Shapes are built either from reflect types at run time (FromFunc,
// FromInterface) or from go/types signatures ahead of time (FromSignature,
// LoadInterfaces). Both paths produce the same canonical type names, so a
// stub compiled from one can be matched against the other.
package shape

import (
	"fmt"
	"strings"
)

// Type is a declared Go type as seen by one of the shape builders.
// The concrete value is either a ReflectType or a GoType.
type Type interface {
	String() string

	// Elem returns the pointed-to type for pointer types and nil otherwise.
	Elem() Type
}

// Param describes one declared parameter.
type Param struct {
	Index     int    // zero-based position in the declared parameter list
	Name      string // declared name, informational only
	Type      Type   // declared type (a pointer type for by-ref params)
	ByRef     bool   // passed as an address the stub writes back through
	ValueKind bool   // the stored value needs boxing to cross into any
}

// ValueType returns the type of the value the stub stores in the values
// slot: the pointer element for by-ref params, the declared type otherwise.
func (p Param) ValueType() Type {
	if p.ByRef {
		return p.Type.Elem()
	}
	return p.Type
}

// Result describes one declared result.
type Result struct {
	Type      Type
	ValueKind bool
}

// Return describes a method's results. A Return with no results is void.
type Return struct {
	Results []Result
}

// Void returns the void return shape.
func Void() Return {
	return Return{}
}

// IsVoid reports whether the method returns nothing.
func (r Return) IsVoid() bool {
	return len(r.Results) == 0
}

// Method is the shape of one method to stub. It is immutable once built.
type Method struct {
	Name     string
	Params   []Param
	Return   Return
	Variadic bool // last param is ...T; its Type is []T
}

// ByRefParams returns the by-reference parameters in declared order.
func (m *Method) ByRefParams() []Param {
	var out []Param
	for _, p := range m.Params {
		if p.ByRef {
			out = append(out, p)
		}
	}
	return out
}

// Signature returns a canonical one-line rendering of the method, e.g.
// "Add(int, *int) int". It is stable across the reflect and go/types
// builders and is used for cache keys and log messages.
func (m *Method) Signature(namer Namer) string {
	var sb strings.Builder
	sb.WriteString(m.Name)
	sb.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		name := namer.TypeName(p.Type)
		if m.Variadic && i == len(m.Params)-1 {
			name = "..." + strings.TrimPrefix(name, "[]")
		}
		sb.WriteString(name)
	}
	sb.WriteByte(')')

	switch len(m.Return.Results) {
	case 0:
	case 1:
		sb.WriteByte(' ')
		sb.WriteString(namer.TypeName(m.Return.Results[0].Type))
	default:
		sb.WriteString(" (")
		for i, r := range m.Return.Results {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(namer.TypeName(r.Type))
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// String implements fmt.Stringer using the canonical namer.
func (m *Method) String() string {
	return m.Signature(CanonicalNamer{})
}

// Interface is a named interface type together with the shapes of its
// method set, in method-name order.
type Interface struct {
	Name    string
	PkgPath string
	PkgName string
	Methods []*Method

	// Type is the declared interface type (a ReflectType or GoType).
	Type Type
}

// QualifiedName returns "import/path.Name".
func (i *Interface) QualifiedName() string {
	if i.PkgPath == "" {
		return i.Name
	}
	return i.PkgPath + "." + i.Name
}

// Method returns the method shape with the given name.
func (i *Interface) Method(name string) (*Method, bool) {
	for _, m := range i.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

func (i *Interface) String() string {
	return fmt.Sprintf("%s (%d methods)", i.QualifiedName(), len(i.Methods))
}
