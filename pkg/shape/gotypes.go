package shape

import (
	"fmt"
	"go/types"
)

// GoType adapts a go/types type to Type.
type GoType struct {
	T types.Type
}

func (t GoType) String() string { return t.T.String() }

// Elem implements Type.
func (t GoType) Elem() Type {
	ptr, ok := types.Unalias(t.T).(*types.Pointer)
	if !ok {
		return nil
	}
	return GoType{ptr.Elem()}
}

// FromSignature builds the shape of a method called name with signature sig.
// The receiver, if any, is ignored.
func FromSignature(name string, sig *types.Signature, opts ...Option) (*Method, error) {
	if sig == nil {
		return nil, fmt.Errorf("shape %s: nil signature", name)
	}
	cfg := newConfig(opts)

	m := &Method{
		Name:     name,
		Variadic: sig.Variadic(),
	}
	params := sig.Params()
	for i := 0; i < params.Len(); i++ {
		p := params.At(i)
		m.Params = append(m.Params, newParam(cfg, i, p.Name(), GoType{p.Type()}, m.Variadic && i == params.Len()-1))
	}
	results := sig.Results()
	for i := 0; i < results.Len(); i++ {
		t := GoType{results.At(i).Type()}
		m.Return.Results = append(m.Return.Results, Result{
			Type:      t,
			ValueKind: cfg.classifier.IsValueKind(t),
		})
	}
	return m, nil
}

// FromNamedInterface builds the shapes of the method set of a named
// interface type, embedded methods included, sorted by name.
func FromNamedInterface(named *types.Named, opts ...Option) (*Interface, error) {
	iface, ok := named.Underlying().(*types.Interface)
	if !ok {
		return nil, fmt.Errorf("shape %s: %w", named.Obj().Name(), ErrNotInterface)
	}
	if named.TypeParams().Len() > 0 {
		return nil, fmt.Errorf("shape %s: generic interfaces are not supported", named.Obj().Name())
	}

	out := &Interface{
		Name: named.Obj().Name(),
		Type: GoType{named},
	}
	if pkg := named.Obj().Pkg(); pkg != nil {
		out.PkgPath = pkg.Path()
		out.PkgName = pkg.Name()
	}

	// types.Interface keeps its complete method set sorted by Id, which for
	// exported names is the same order reflect uses.
	for i := 0; i < iface.NumMethods(); i++ {
		fn := iface.Method(i)
		m, err := FromSignature(fn.Name(), fn.Type().(*types.Signature), opts...)
		if err != nil {
			return nil, err
		}
		out.Methods = append(out.Methods, m)
	}
	return out, nil
}
