// Package value defines the signature-erased calling convention shared by
// every generated stub: the Interceptor entry point, the Tuple used for
// multi-result methods, and the box/unbox conversions between concrete Go
// values and the generic any form.
package value

import (
	"errors"
	"fmt"
	"reflect"
)

// Interceptor is the single generic routine every stub forwards to.
//
// names[i] is the canonical type name of parameter i and values[i] a
// snapshot of its value at call time. The interceptor may assign to
// values[i] to change what a by-reference parameter holds after the call.
// It must always return: void callers discard the result, single-result
// callers coerce it to the declared type, multi-result callers expect a
// Tuple with one entry per result.
type Interceptor func(receiver any, method string, names []string, values []any) any

// Tuple carries the results of a multi-result method.
type Tuple []any

// ErrNilReference is returned when a stub must read or write through a nil
// by-reference argument.
var ErrNilReference = errors.New("nil by-reference argument")

// MismatchError reports a generic value that cannot be converted to the
// declared type it is coerced to.
type MismatchError struct {
	Want  string // declared type
	Got   any    // offending value
	Where string // optional context, e.g. "Add result 0"
}

func (e *MismatchError) Error() string {
	prefix := ""
	if e.Where != "" {
		prefix = e.Where + ": "
	}
	if e.Got == nil {
		return fmt.Sprintf("%scannot use nil as %s", prefix, e.Want)
	}
	return fmt.Sprintf("%scannot use %v (%T) as %s", prefix, e.Got, e.Got, e.Want)
}

// Box returns the generic form of v.
func Box(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}

// Unbox converts the generic value g to type t. A value converts if its
// dynamic type is exactly t or, when t is an interface, implements t. A nil
// g converts to the zero value of any nilable t.
func Unbox(g any, t reflect.Type) (reflect.Value, error) {
	if g == nil {
		if nilable(t) {
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, &MismatchError{Want: t.String()}
	}

	v := reflect.ValueOf(g)
	if v.Type() == t {
		return v, nil
	}
	if t.Kind() == reflect.Interface && v.Type().Implements(t) {
		out := reflect.New(t).Elem()
		out.Set(v)
		return out, nil
	}
	return reflect.Value{}, &MismatchError{Want: t.String(), Got: g}
}

// As is the generic form of Unbox used by generated Go source. It panics
// with a *MismatchError, the way a failed type assertion would.
func As[T any](g any) T {
	if t, ok := g.(T); ok {
		return t
	}
	var zero T
	typ := reflect.TypeOf(&zero).Elem()
	if g == nil && nilable(typ) {
		return zero
	}
	panic(&MismatchError{Want: typ.String(), Got: g})
}

// Deref reads through a by-reference argument for generated Go source. It
// panics with ErrNilReference when p is nil.
func Deref[T any](p *T) T {
	if p == nil {
		panic(ErrNilReference)
	}
	return *p
}

// Store writes the generic value g through ptr, converting it to the
// pointed-to type first.
func Store(ptr reflect.Value, g any) error {
	if ptr.Kind() != reflect.Pointer {
		return fmt.Errorf("store through %s: not a pointer", ptr.Type())
	}
	if ptr.IsNil() {
		return ErrNilReference
	}
	v, err := Unbox(g, ptr.Type().Elem())
	if err != nil {
		return err
	}
	ptr.Elem().Set(v)
	return nil
}

// UnpackTuple returns g as a Tuple of exactly n entries.
func UnpackTuple(g any, n int) (Tuple, error) {
	t, ok := g.(Tuple)
	if !ok {
		if s, isSlice := g.([]any); isSlice {
			t, ok = Tuple(s), true
		}
	}
	if !ok {
		return nil, &MismatchError{Want: fmt.Sprintf("value.Tuple of %d results", n), Got: g}
	}
	if len(t) != n {
		return nil, &MismatchError{Want: fmt.Sprintf("value.Tuple of %d results", n), Got: g}
	}
	return t, nil
}

// Unpack is the panicking form of UnpackTuple used by generated Go source.
func Unpack(g any, n int) Tuple {
	t, err := UnpackTuple(g, n)
	if err != nil {
		panic(err)
	}
	return t
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map,
		reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	}
	return false
}
