package shape

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrNotInterface is returned when an interface type is required.
var ErrNotInterface = errors.New("not an interface type")

// ReflectType adapts a reflect.Type to Type.
type ReflectType struct {
	T reflect.Type
}

func (t ReflectType) String() string { return t.T.String() }

// Elem implements Type.
func (t ReflectType) Elem() Type {
	if t.T.Kind() != reflect.Pointer {
		return nil
	}
	return ReflectType{t.T.Elem()}
}

// FromFunc builds the shape of a method called name whose function type,
// excluding the receiver, is fn.
func FromFunc(name string, fn reflect.Type, opts ...Option) (*Method, error) {
	if fn == nil || fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("shape %s: want a func type, got %v", name, fn)
	}
	cfg := newConfig(opts)

	m := &Method{
		Name:     name,
		Variadic: fn.IsVariadic(),
	}
	for i := 0; i < fn.NumIn(); i++ {
		t := ReflectType{fn.In(i)}
		m.Params = append(m.Params, newParam(cfg, i, "", t, m.Variadic && i == fn.NumIn()-1))
	}
	for i := 0; i < fn.NumOut(); i++ {
		t := ReflectType{fn.Out(i)}
		m.Return.Results = append(m.Return.Results, Result{
			Type:      t,
			ValueKind: cfg.classifier.IsValueKind(t),
		})
	}
	return m, nil
}

// FromInterface builds the shapes of every method in the method set of the
// interface type iface, in the order reflect reports them (sorted by name).
func FromInterface(iface reflect.Type, opts ...Option) (*Interface, error) {
	if iface == nil || iface.Kind() != reflect.Interface {
		return nil, fmt.Errorf("shape %v: %w", iface, ErrNotInterface)
	}

	out := &Interface{
		Name:    iface.Name(),
		PkgPath: iface.PkgPath(),
		Type:    ReflectType{iface},
	}
	if out.Name == "" {
		out.Name = iface.String()
	}
	if out.PkgPath != "" {
		out.PkgName = packageNameOf(iface)
	}

	for i := 0; i < iface.NumMethod(); i++ {
		rm := iface.Method(i)
		m, err := FromFunc(rm.Name, rm.Type, opts...)
		if err != nil {
			return nil, err
		}
		out.Methods = append(out.Methods, m)
	}
	return out, nil
}

// TypesOf indexes every type a stub for fn may need to resolve by canonical
// name: parameter and result types plus the elements of pointer parameters.
// Two distinct types that render to the same name are reported as an error.
func TypesOf(fn reflect.Type) (map[string]reflect.Type, error) {
	table := make(map[string]reflect.Type)
	add := func(t reflect.Type) error {
		name := t.String()
		if prev, ok := table[name]; ok && prev != t {
			return fmt.Errorf("ambiguous type name %q: %v and %v", name, prev.PkgPath(), t.PkgPath())
		}
		table[name] = t
		return nil
	}

	for i := 0; i < fn.NumIn(); i++ {
		in := fn.In(i)
		if err := add(in); err != nil {
			return nil, err
		}
		if in.Kind() == reflect.Pointer {
			if err := add(in.Elem()); err != nil {
				return nil, err
			}
		}
	}
	for i := 0; i < fn.NumOut(); i++ {
		if err := add(fn.Out(i)); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func newParam(cfg *config, index int, name string, t Type, variadic bool) Param {
	byRef := !variadic && cfg.classifier.IsByRef(t)
	valueType := t
	if byRef {
		valueType = t.Elem()
	}
	return Param{
		Index:     index,
		Name:      name,
		Type:      t,
		ByRef:     byRef,
		ValueKind: cfg.classifier.IsValueKind(valueType),
	}
}

// packageNameOf recovers the package name from a named type's String form,
// which reflect renders as "pkgname.TypeName".
func packageNameOf(t reflect.Type) string {
	s := t.String()
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s[:i]
		}
	}
	return ""
}
