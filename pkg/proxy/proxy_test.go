package proxy

import (
	"errors"
	htmltemplate "html/template"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	texttemplate "text/template"

	"github.com/chazu/dynstub/pkg/bytecode"
	"github.com/chazu/dynstub/pkg/shape"
	"github.com/chazu/dynstub/pkg/stubcache"
	"github.com/chazu/dynstub/pkg/stubgen"
	"github.com/chazu/dynstub/pkg/value"
)

type Calculator interface {
	Add(a int, b *int) int
	Log(msg string)
	Echo(o any) any
	Read(p []byte) (int, error)
	Sum(xs ...int) int
}

// call is one recorded interceptor invocation. values is copied before
// the interceptor body runs.
type call struct {
	receiver any
	method   string
	names    []string
	values   []any
}

type recorder struct {
	mu     sync.Mutex
	calls  []call
	handle func(method string, values []any) any
}

func (r *recorder) intercept(receiver any, method string, names []string, values []any) any {
	r.mu.Lock()
	r.calls = append(r.calls, call{
		receiver: receiver,
		method:   method,
		names:    append([]string(nil), names...),
		values:   append([]any(nil), values...),
	})
	r.mu.Unlock()
	if r.handle == nil {
		return nil
	}
	return r.handle(method, values)
}

func (r *recorder) last() call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func calculator(method string, values []any) any {
	switch method {
	case "Add":
		values[1] = 10
		return 7
	case "Echo":
		return values[0]
	case "Read":
		return value.Tuple{len(values[0].([]byte)), io.EOF}
	case "Sum":
		total := 0
		for _, x := range values[0].([]int) {
			total += x
		}
		return total
	}
	return nil
}

func newCalculator(t *testing.T, opts ...Option) (*Proxy, *recorder) {
	t.Helper()
	r := &recorder{handle: calculator}
	p, err := For[Calculator](r.intercept, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, r
}

func TestMethods(t *testing.T) {
	p, _ := newCalculator(t)
	want := []string{"Add", "Echo", "Log", "Read", "Sum"}
	if got := p.Methods(); !reflect.DeepEqual(got, want) {
		t.Errorf("Methods() = %v, want %v", got, want)
	}
	if p.Type() != reflect.TypeOf((*Calculator)(nil)).Elem() {
		t.Errorf("Type() = %v", p.Type())
	}
	if p.Interface().Name != "Calculator" {
		t.Errorf("Interface().Name = %q", p.Interface().Name)
	}
}

func TestAddWritesBack(t *testing.T) {
	p, r := newCalculator(t)
	fn, ok := p.Func("Add")
	if !ok {
		t.Fatal("Func(Add) not found")
	}
	add := fn.Interface().(func(int, *int) int)

	b := 4
	if got := add(3, &b); got != 7 {
		t.Errorf("Add(3, &b) = %d, want 7", got)
	}
	if b != 10 {
		t.Errorf("b = %d, want 10", b)
	}

	c := r.last()
	if c.receiver != p {
		t.Errorf("receiver = %v, want the proxy", c.receiver)
	}
	if c.method != "Add" {
		t.Errorf("method = %q, want Add", c.method)
	}
	if want := []string{"int", "int"}; !reflect.DeepEqual(c.names, want) {
		t.Errorf("names = %v, want %v", c.names, want)
	}
	if want := []any{3, 4}; !reflect.DeepEqual(c.values, want) {
		t.Errorf("values = %v, want %v", c.values, want)
	}
}

func TestLog(t *testing.T) {
	p, r := newCalculator(t)
	res, err := p.Call("Log", "x")
	if err != nil {
		t.Fatalf("Call(Log): %v", err)
	}
	if len(res) != 0 {
		t.Errorf("Log returned %v, want nothing", res)
	}
	c := r.last()
	if !reflect.DeepEqual(c.names, []string{"string"}) || !reflect.DeepEqual(c.values, []any{"x"}) {
		t.Errorf("Log call = %+v", c)
	}
}

func TestEchoPassesReferencesThrough(t *testing.T) {
	p, _ := newCalculator(t)
	obj := &strings.Builder{}
	res, err := p.Call("Echo", obj)
	if err != nil {
		t.Fatal(err)
	}
	if res[0] != any(obj) {
		t.Errorf("Echo returned %v, want the same object", res[0])
	}

	chunk, _ := p.Chunk("Echo")
	for _, op := range []bytecode.Opcode{bytecode.OpBox, bytecode.OpUnbox} {
		if strings.Contains(chunk.Disassemble(), op.String()) {
			t.Errorf("Echo stub contains %s", op)
		}
	}
}

func TestMultiResult(t *testing.T) {
	p, _ := newCalculator(t)
	fn, _ := p.Func("Read")
	read := fn.Interface().(func([]byte) (int, error))
	n, err := read(make([]byte, 5))
	if n != 5 || err != io.EOF {
		t.Errorf("Read = %d, %v; want 5, EOF", n, err)
	}
}

func TestVariadic(t *testing.T) {
	p, r := newCalculator(t)

	tests := []struct {
		name string
		args []any
		want int
	}{
		{"spread", []any{1, 2, 3}, 6},
		{"slice", []any{[]int{4, 5}}, 9},
		{"none", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.Call("Sum", tt.args...)
			if err != nil {
				t.Fatal(err)
			}
			if res[0] != tt.want {
				t.Errorf("Sum = %v, want %d", res[0], tt.want)
			}
			if names := r.last().names; !reflect.DeepEqual(names, []string{"[]int"}) {
				t.Errorf("names = %v", names)
			}
		})
	}

	fn, _ := p.Func("Sum")
	if got := fn.Interface().(func(...int) int)(1, 1); got != 2 {
		t.Errorf("Sum(1, 1) = %d, want 2", got)
	}
}

func TestResultMismatch(t *testing.T) {
	r := &recorder{handle: func(string, []any) any { return "seven" }}
	p, err := For[Calculator](r.intercept)
	if err != nil {
		t.Fatal(err)
	}

	b := 0
	_, err = p.Call("Add", 1, &b)
	var me *value.MismatchError
	if !errors.As(err, &me) {
		t.Fatalf("Call err = %v, want *value.MismatchError", err)
	}
	if me.Want != "int" || me.Got != "seven" {
		t.Errorf("MismatchError = %+v", me)
	}

	fn, _ := p.Func("Add")
	defer func() {
		rec := recover()
		re, ok := rec.(*bytecode.RuntimeError)
		if !ok {
			t.Fatalf("recovered %v, want *bytecode.RuntimeError", rec)
		}
		if !errors.As(re, &me) {
			t.Errorf("panic %v does not carry a MismatchError", re)
		}
	}()
	fn.Interface().(func(int, *int) int)(1, &b)
	t.Error("Add did not panic")
}

func TestNilByRef(t *testing.T) {
	p, r := newCalculator(t)
	_, err := p.Call("Add", 3, nil)
	if !errors.Is(err, value.ErrNilReference) {
		t.Errorf("Call(Add, 3, nil) = %v, want ErrNilReference", err)
	}
	if len(r.calls) != 0 {
		t.Errorf("interceptor called %d times, want 0", len(r.calls))
	}
}

func TestByRefNone(t *testing.T) {
	p, r := newCalculator(t, WithShapeOptions(shape.WithByRefPolicy(shape.ByRefNone)))
	r.handle = func(string, []any) any { return 1 }

	b := 4
	if _, err := p.Call("Add", 3, &b); err != nil {
		t.Fatal(err)
	}
	c := r.last()
	if c.names[1] != "*int" {
		t.Errorf("names[1] = %q, want *int", c.names[1])
	}
	if c.values[1] != any(&b) {
		t.Errorf("values[1] = %v, want the pointer itself", c.values[1])
	}
}

func TestWithReceiver(t *testing.T) {
	type owner struct{ name string }
	me := &owner{"me"}
	p, r := newCalculator(t, WithReceiver(me))
	if _, err := p.Call("Log", "hi"); err != nil {
		t.Fatal(err)
	}
	if r.last().receiver != any(me) {
		t.Errorf("receiver = %v, want %v", r.last().receiver, me)
	}
}

func TestCallErrors(t *testing.T) {
	p, _ := newCalculator(t)

	tests := []struct {
		name   string
		method string
		args   []any
		want   string
	}{
		{"unknown", "Mul", nil, "unknown method"},
		{"arity", "Log", []any{"a", "b"}, "got 2 arguments, want 1"},
		{"type", "Log", []any{42}, "int is not assignable to string"},
		{"variadic type", "Sum", []any{1, "2"}, "variadic argument 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Call(tt.method, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Call(%s) = %v, want %q", tt.method, err, tt.want)
			}
		})
	}
	if _, err := p.Call("Mul"); !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("err = %v, want ErrUnknownMethod", err)
	}
}

func TestBind(t *testing.T) {
	p, _ := newCalculator(t)

	var impl struct {
		Add   func(int, *int) int
		Log   func(string)
		Other func()
		count int
	}
	n, err := p.Bind(&impl)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Bind set %d fields, want 2", n)
	}
	b := 0
	if impl.Add(1, &b) != 7 || b != 10 {
		t.Errorf("bound Add misbehaves: b = %d", b)
	}
	if impl.Other != nil {
		t.Error("unrelated field was set")
	}

	var wrong struct{ Add func(int) int }
	if _, err := p.Bind(&wrong); err == nil {
		t.Error("Bind accepted a field of the wrong type")
	}
	if _, err := p.Bind(impl); err == nil {
		t.Error("Bind accepted a non-pointer")
	}
}

func TestNewErrors(t *testing.T) {
	r := &recorder{}
	if _, err := New(reflect.TypeOf(0), r.intercept); !errors.Is(err, shape.ErrNotInterface) {
		t.Errorf("New(int) = %v, want ErrNotInterface", err)
	}
	if _, err := For[Calculator](nil); err == nil {
		t.Error("New accepted a nil interceptor")
	}
}

type templates interface {
	Use(a *texttemplate.Template, b *htmltemplate.Template) int
}

func TestNewRejectsAmbiguousTypeNames(t *testing.T) {
	r := &recorder{}
	for _, policy := range []shape.ByRefPolicy{shape.ByRefPointers, shape.ByRefNone} {
		_, err := For[templates](r.intercept, WithShapeOptions(shape.WithByRefPolicy(policy)))
		if !errors.Is(err, stubgen.ErrUnsupportedShape) {
			t.Fatalf("%s: New = %v, want ErrUnsupportedShape", policy, err)
		}
		if ge, ok := stubgen.IsGenerationError(err); !ok || ge.Method != "Use" {
			t.Errorf("%s: err = %v, want a GenerationError for Use", policy, err)
		}
	}
	if len(r.calls) != 0 {
		t.Errorf("interceptor called %d times, want 0", len(r.calls))
	}
}

func TestCache(t *testing.T) {
	store, err := stubcache.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	first, _ := newCalculator(t, WithCache(store))
	for _, m := range first.methods {
		if m.cached {
			t.Errorf("%s served from an empty cache", m.shape.Name)
		}
	}
	if n, _ := store.Len(); n != 5 {
		t.Errorf("cache holds %d stubs, want 5", n)
	}

	second, _ := newCalculator(t, WithCache(store))
	for _, m := range second.methods {
		if !m.cached {
			t.Errorf("%s was recompiled", m.shape.Name)
		}
	}

	b := 4
	res, err := second.Call("Add", 3, &b)
	if err != nil {
		t.Fatal(err)
	}
	if res[0] != 7 || b != 10 {
		t.Errorf("cached Add = %v with b = %d", res[0], b)
	}

	// Generator options bypass the cache.
	third, _ := newCalculator(t, WithCache(store), WithStubOptions(stubgen.WithNamer(shape.CanonicalNamer{})))
	for _, m := range third.methods {
		if m.cached {
			t.Errorf("%s read from cache despite generator options", m.shape.Name)
		}
	}
}

func TestConcurrentCalls(t *testing.T) {
	p, _ := newCalculator(t)
	fn, _ := p.Func("Add")
	add := fn.Interface().(func(int, *int) int)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := 0
			if add(1, &b) != 7 || b != 10 {
				t.Error("concurrent Add misbehaves")
			}
		}()
	}
	wg.Wait()
}
