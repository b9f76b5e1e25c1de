package gosrc

import (
	"fmt"
	"go/types"
	"reflect"
	"strings"

	"github.com/dave/jennifer/jen"

	"github.com/chazu/dynstub/pkg/shape"
)

// typeConverter renders declared types as jennifer type expressions.
// Named types are emitted with jen.Qual so the file collects its imports.
type typeConverter struct{}

func (c *typeConverter) convert(t shape.Type) (jen.Code, error) {
	switch tt := t.(type) {
	case shape.GoType:
		return c.goType(tt.T)
	case shape.ReflectType:
		return c.reflectType(tt.T)
	case nil:
		return nil, fmt.Errorf("nil type")
	}
	return nil, fmt.Errorf("unsupported type %T", t)
}

func (c *typeConverter) goType(t types.Type) (jen.Code, error) {
	switch x := types.Unalias(t).(type) {
	case *types.Basic:
		if x.Kind() == types.UnsafePointer {
			return jen.Qual("unsafe", "Pointer"), nil
		}
		if x.Info()&types.IsUntyped != 0 {
			return nil, fmt.Errorf("untyped type %s", x)
		}
		return jen.Id(x.Name()), nil

	case *types.Named:
		obj := x.Obj()
		var s *jen.Statement
		if obj.Pkg() == nil {
			s = jen.Id(obj.Name())
		} else {
			s = jen.Qual(obj.Pkg().Path(), obj.Name())
		}
		if args := x.TypeArgs(); args != nil && args.Len() > 0 {
			codes := make([]jen.Code, args.Len())
			for i := 0; i < args.Len(); i++ {
				code, err := c.goType(args.At(i))
				if err != nil {
					return nil, err
				}
				codes[i] = code
			}
			s = s.Types(codes...)
		}
		return s, nil

	case *types.Pointer:
		elem, err := c.goType(x.Elem())
		if err != nil {
			return nil, err
		}
		return jen.Op("*").Add(elem), nil

	case *types.Slice:
		elem, err := c.goType(x.Elem())
		if err != nil {
			return nil, err
		}
		return jen.Index().Add(elem), nil

	case *types.Array:
		elem, err := c.goType(x.Elem())
		if err != nil {
			return nil, err
		}
		return jen.Index(jen.Lit(int(x.Len()))).Add(elem), nil

	case *types.Map:
		key, err := c.goType(x.Key())
		if err != nil {
			return nil, err
		}
		elem, err := c.goType(x.Elem())
		if err != nil {
			return nil, err
		}
		return jen.Map(key).Add(elem), nil

	case *types.Chan:
		elem, err := c.goType(x.Elem())
		if err != nil {
			return nil, err
		}
		return chanType(x.Dir() == types.SendRecv || x.Dir() == types.SendOnly, x.Dir() == types.SendRecv || x.Dir() == types.RecvOnly, elem), nil

	case *types.Signature:
		params, results, err := c.goSignature(x)
		if err != nil {
			return nil, err
		}
		return jen.Func().Params(params...).Add(resultList(results)), nil

	case *types.Interface:
		methods := make([]jen.Code, 0, x.NumMethods())
		for i := 0; i < x.NumMethods(); i++ {
			m := x.Method(i)
			params, results, err := c.goSignature(m.Type().(*types.Signature))
			if err != nil {
				return nil, err
			}
			methods = append(methods, jen.Id(m.Name()).Params(params...).Add(resultList(results)))
		}
		return jen.Interface(methods...), nil

	case *types.Struct:
		fields := make([]jen.Code, 0, x.NumFields())
		for i := 0; i < x.NumFields(); i++ {
			f := x.Field(i)
			ft, err := c.goType(f.Type())
			if err != nil {
				return nil, err
			}
			field := jen.Null()
			if !f.Embedded() {
				field = jen.Id(f.Name())
			}
			field = field.Add(ft)
			if tag := x.Tag(i); tag != "" {
				field = field.Lit(tag)
			}
			fields = append(fields, field)
		}
		return jen.Struct(fields...), nil

	case *types.TypeParam:
		return nil, fmt.Errorf("type parameter %s is not supported", x)
	}
	return nil, fmt.Errorf("unsupported type %s", t)
}

func (c *typeConverter) goSignature(sig *types.Signature) (params, results []jen.Code, err error) {
	ps := sig.Params()
	for i := 0; i < ps.Len(); i++ {
		pt := ps.At(i).Type()
		variadic := sig.Variadic() && i == ps.Len()-1
		if variadic {
			if s, ok := pt.(*types.Slice); ok {
				pt = s.Elem()
			}
		}
		code, err := c.goType(pt)
		if err != nil {
			return nil, nil, err
		}
		if variadic {
			code = jen.Op("...").Add(code)
		}
		params = append(params, code)
	}
	rs := sig.Results()
	for i := 0; i < rs.Len(); i++ {
		code, err := c.goType(rs.At(i).Type())
		if err != nil {
			return nil, nil, err
		}
		results = append(results, code)
	}
	return params, results, nil
}

func (c *typeConverter) reflectType(t reflect.Type) (jen.Code, error) {
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return jen.Id(t.Name()), nil
		}
		if strings.Contains(t.Name(), "[") {
			return nil, fmt.Errorf("instantiated generic type %s is not supported", t)
		}
		return jen.Qual(t.PkgPath(), t.Name()), nil
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem, err := c.reflectType(t.Elem())
		if err != nil {
			return nil, err
		}
		return jen.Op("*").Add(elem), nil

	case reflect.Slice:
		elem, err := c.reflectType(t.Elem())
		if err != nil {
			return nil, err
		}
		return jen.Index().Add(elem), nil

	case reflect.Array:
		elem, err := c.reflectType(t.Elem())
		if err != nil {
			return nil, err
		}
		return jen.Index(jen.Lit(t.Len())).Add(elem), nil

	case reflect.Map:
		key, err := c.reflectType(t.Key())
		if err != nil {
			return nil, err
		}
		elem, err := c.reflectType(t.Elem())
		if err != nil {
			return nil, err
		}
		return jen.Map(key).Add(elem), nil

	case reflect.Chan:
		elem, err := c.reflectType(t.Elem())
		if err != nil {
			return nil, err
		}
		return chanType(t.ChanDir()&reflect.SendDir != 0, t.ChanDir()&reflect.RecvDir != 0, elem), nil

	case reflect.Func:
		params, results, err := c.reflectSignature(t)
		if err != nil {
			return nil, err
		}
		return jen.Func().Params(params...).Add(resultList(results)), nil

	case reflect.Interface:
		methods := make([]jen.Code, 0, t.NumMethod())
		for i := 0; i < t.NumMethod(); i++ {
			m := t.Method(i)
			params, results, err := c.reflectSignature(m.Type)
			if err != nil {
				return nil, err
			}
			methods = append(methods, jen.Id(m.Name).Params(params...).Add(resultList(results)))
		}
		return jen.Interface(methods...), nil

	case reflect.Struct:
		fields := make([]jen.Code, 0, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			ft, err := c.reflectType(f.Type)
			if err != nil {
				return nil, err
			}
			field := jen.Null()
			if !f.Anonymous {
				field = jen.Id(f.Name)
			}
			field = field.Add(ft)
			if f.Tag != "" {
				field = field.Lit(string(f.Tag))
			}
			fields = append(fields, field)
		}
		return jen.Struct(fields...), nil
	}
	return nil, fmt.Errorf("unsupported type %s", t)
}

func (c *typeConverter) reflectSignature(fn reflect.Type) (params, results []jen.Code, err error) {
	for i := 0; i < fn.NumIn(); i++ {
		pt := fn.In(i)
		variadic := fn.IsVariadic() && i == fn.NumIn()-1
		if variadic {
			pt = pt.Elem()
		}
		code, err := c.reflectType(pt)
		if err != nil {
			return nil, nil, err
		}
		if variadic {
			code = jen.Op("...").Add(code)
		}
		params = append(params, code)
	}
	for i := 0; i < fn.NumOut(); i++ {
		code, err := c.reflectType(fn.Out(i))
		if err != nil {
			return nil, nil, err
		}
		results = append(results, code)
	}
	return params, results, nil
}

func chanType(send, recv bool, elem jen.Code) jen.Code {
	switch {
	case send && recv:
		return jen.Chan().Add(elem)
	case send:
		return jen.Chan().Op("<-").Add(elem)
	default:
		return jen.Op("<-").Chan().Add(elem)
	}
}

// resultList renders a result list: nothing, a bare type, or a
// parenthesized list.
func resultList(results []jen.Code) jen.Code {
	switch len(results) {
	case 0:
		return jen.Null()
	case 1:
		return results[0]
	}
	return jen.Parens(jen.List(results...))
}

// variadicElem returns T for the []T type of a variadic parameter.
func variadicElem(t shape.Type) (shape.Type, error) {
	switch tt := t.(type) {
	case shape.GoType:
		if s, ok := types.Unalias(tt.T).(*types.Slice); ok {
			return shape.GoType{T: s.Elem()}, nil
		}
	case shape.ReflectType:
		if tt.T.Kind() == reflect.Slice {
			return shape.ReflectType{T: tt.T.Elem()}, nil
		}
	}
	return nil, fmt.Errorf("variadic parameter of non-slice type %v", t)
}
