package bytecode

import (
	"reflect"
	"testing"

	"github.com/chazu/dynstub/pkg/shape"
)

// compileFunc compiles a stub for a method called name with the function
// type of fn.
func compileFunc(t *testing.T, name string, fn any, opts ...shape.Option) *Chunk {
	t.Helper()
	m, err := shape.FromFunc(name, reflect.TypeOf(fn), opts...)
	if err != nil {
		t.Fatalf("FromFunc(%s): %v", name, err)
	}
	c, err := Compile(m)
	if err != nil {
		t.Fatalf("Compile(%s): %v", name, err)
	}
	return c
}

// recorder is an interceptor that records its last call.
type recorder struct {
	calls    int
	receiver any
	method   string
	names    []string
	values   []any
	ret      any
	mutate   func(values []any)
}

func (r *recorder) intercept(receiver any, method string, names []string, values []any) any {
	r.calls++
	r.receiver = receiver
	r.method = method
	r.names = append([]string(nil), names...)
	r.values = append([]any(nil), values...)
	if r.mutate != nil {
		r.mutate(values)
	}
	return r.ret
}

func args(vs ...any) []reflect.Value {
	out := make([]reflect.Value, len(vs))
	for i, v := range vs {
		out[i] = reflect.ValueOf(v)
	}
	return out
}
