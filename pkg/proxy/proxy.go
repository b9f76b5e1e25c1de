// Package proxy builds interceptor-backed implementations of interface
// method sets at run time.
//
// New compiles one bytecode stub per method and exposes each as a
// reflect.MakeFunc function. A call packs its arguments, hands them to the
// interceptor, coerces the interceptor's result to the declared results and
// writes back through pointer parameters, all by executing the stub.
//
// Go cannot declare new methods at run time, so a Proxy does not itself
// satisfy the interface. Its functions are reached through Func and Call,
// or installed into a struct of func fields with Bind.
package proxy

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/dynstub/pkg/bytecode"
	"github.com/chazu/dynstub/pkg/shape"
	"github.com/chazu/dynstub/pkg/stubcache"
	"github.com/chazu/dynstub/pkg/stubgen"
	"github.com/chazu/dynstub/pkg/value"
)

var log = commonlog.GetLogger("dynstub.proxy")

// ErrUnknownMethod is returned for a method name outside the interface.
var ErrUnknownMethod = errors.New("unknown method")

// Option configures New.
type Option func(*config)

type config struct {
	receiver  any
	cache     *stubcache.Store
	shapeOpts []shape.Option
	stubOpts  []stubgen.Option
}

// WithReceiver sets the receiver passed to the interceptor. The default is
// the *Proxy itself.
func WithReceiver(r any) Option {
	return func(c *config) { c.receiver = r }
}

// WithCache reuses compiled stubs from s and stores the ones it compiles.
func WithCache(s *stubcache.Store) Option {
	return func(c *config) { c.cache = s }
}

// WithShapeOptions passes options to the shape builder, for example a
// by-reference policy.
func WithShapeOptions(opts ...shape.Option) Option {
	return func(c *config) { c.shapeOpts = append(c.shapeOpts, opts...) }
}

// WithStubOptions passes options to the stub generator.
func WithStubOptions(opts ...stubgen.Option) Option {
	return func(c *config) { c.stubOpts = append(c.stubOpts, opts...) }
}

// Proxy holds the compiled stubs of one interface.
type Proxy struct {
	typ         reflect.Type
	iface       *shape.Interface
	receiver    any
	interceptor value.Interceptor
	methods     map[string]*method
}

type method struct {
	shape  *shape.Method
	fnType reflect.Type
	chunk  *bytecode.Chunk
	fn     reflect.Value
	cached bool
}

// New compiles a proxy for the interface type iface that forwards every
// call to interceptor. Method stubs are compiled concurrently; every
// failure is reported.
func New(iface reflect.Type, interceptor value.Interceptor, opts ...Option) (*Proxy, error) {
	if interceptor == nil {
		return nil, errors.New("proxy: nil interceptor")
	}
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	sh, err := shape.FromInterface(iface, cfg.shapeOpts...)
	if err != nil {
		return nil, fmt.Errorf("proxy: %w", err)
	}

	p := &Proxy{
		typ:         iface,
		iface:       sh,
		receiver:    cfg.receiver,
		interceptor: interceptor,
		methods:     make(map[string]*method, len(sh.Methods)),
	}
	if p.receiver == nil {
		p.receiver = p
	}

	built := make([]*method, len(sh.Methods))
	errs := make([]error, len(sh.Methods))
	var wg sync.WaitGroup
	for i, m := range sh.Methods {
		rm, _ := iface.MethodByName(m.Name)
		wg.Add(1)
		go func(i int, m *shape.Method, fnType reflect.Type) {
			defer wg.Done()
			built[i], errs[i] = p.build(cfg, m, fnType)
		}(i, m, rm.Type)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("proxy %s: %w", sh.QualifiedName(), err)
	}

	hits := 0
	for _, m := range built {
		m.fn = reflect.MakeFunc(m.fnType, p.invoker(m))
		p.methods[m.shape.Name] = m
		if m.cached {
			hits++
		}
	}
	log.Infof("built proxy %s: %d methods, %d from cache", sh.QualifiedName(), len(built), hits)
	return p, nil
}

// For is New for the interface type T.
func For[T any](interceptor value.Interceptor, opts ...Option) (*Proxy, error) {
	return New(reflect.TypeOf((*T)(nil)).Elem(), interceptor, opts...)
}

func (p *Proxy) build(cfg *config, m *shape.Method, fnType reflect.Type) (*method, error) {
	out := &method{shape: m, fnType: fnType}

	// Keys assume the canonical type names, so stubs built with generator
	// options bypass the cache.
	useCache := cfg.cache != nil && len(cfg.stubOpts) == 0

	var key string
	if useCache {
		key = stubcache.Key(p.iface.QualifiedName(), m)
		c, err := cfg.cache.Get(key)
		switch {
		case err == nil:
			if err := c.ResolveTypes(fnType); err != nil {
				return nil, err
			}
			log.Debugf("cache hit for %s.%s", p.iface.Name, m.Name)
			out.chunk = c
			out.cached = true
			return out, nil
		case errors.Is(err, stubcache.ErrNotFound):
		default:
			log.Warningf("stub cache: %s", err.Error())
		}
	}

	c, err := bytecode.Compile(m, cfg.stubOpts...)
	if err != nil {
		return nil, err
	}
	out.chunk = c

	if useCache {
		if err := cfg.cache.Put(key, c); err != nil {
			log.Warningf("stub cache: %s", err.Error())
		}
	}
	return out, nil
}

// invoker runs the stub of m. Run-time failures surface as panics carrying
// the *bytecode.RuntimeError, since the method signature has no room for
// an error of its own.
func (p *Proxy) invoker(m *method) func([]reflect.Value) []reflect.Value {
	return func(in []reflect.Value) []reflect.Value {
		out, err := bytecode.Execute(m.chunk, bytecode.Frame{
			Receiver:    p.receiver,
			Args:        in,
			Interceptor: p.interceptor,
		})
		if err != nil {
			panic(err)
		}
		return out
	}
}

// Type returns the interface type the proxy was built for.
func (p *Proxy) Type() reflect.Type { return p.typ }

// Interface returns the shape of the proxied interface.
func (p *Proxy) Interface() *shape.Interface { return p.iface }

// Methods returns the names of all methods, sorted.
func (p *Proxy) Methods() []string {
	names := make([]string, 0, len(p.methods))
	for name := range p.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Func returns the function implementing the named method. Its type is the
// method's type without receiver.
func (p *Proxy) Func(name string) (reflect.Value, bool) {
	m, ok := p.methods[name]
	if !ok {
		return reflect.Value{}, false
	}
	return m.fn, true
}

// Chunk returns the compiled stub of the named method.
func (p *Proxy) Chunk(name string) (*bytecode.Chunk, bool) {
	m, ok := p.methods[name]
	if !ok {
		return nil, false
	}
	return m.chunk, true
}

// Call invokes the named method with args and returns its results. Each
// argument must be assignable to its parameter type; nil stands for the
// zero value. The arguments of a variadic method may be given one by one or
// as a single final slice. Unlike Func, Call reports run-time failures as
// errors.
func (p *Proxy) Call(name string, args ...any) ([]any, error) {
	m, ok := p.methods[name]
	if !ok {
		return nil, fmt.Errorf("proxy %s: %w %q", p.iface.Name, ErrUnknownMethod, name)
	}
	in, err := m.arguments(args)
	if err != nil {
		return nil, fmt.Errorf("proxy %s.%s: %w", p.iface.Name, name, err)
	}

	out, err := bytecode.Execute(m.chunk, bytecode.Frame{
		Receiver:    p.receiver,
		Args:        in,
		Interceptor: p.interceptor,
	})
	if err != nil {
		return nil, err
	}
	results := make([]any, len(out))
	for i, v := range out {
		results[i] = v.Interface()
	}
	return results, nil
}

// arguments converts args to the frame layout of m.
func (m *method) arguments(args []any) ([]reflect.Value, error) {
	ft := m.fnType
	n := ft.NumIn()

	if ft.IsVariadic() {
		spread := len(args) != n
		if !spread {
			last := args[n-1]
			spread = last != nil && !reflect.TypeOf(last).AssignableTo(ft.In(n-1))
		}
		if spread {
			if len(args) < n-1 {
				return nil, fmt.Errorf("got %d arguments, want at least %d", len(args), n-1)
			}
			sliceType := ft.In(n - 1)
			rest := reflect.MakeSlice(sliceType, 0, len(args)-(n-1))
			for i, a := range args[n-1:] {
				v, err := argument(a, sliceType.Elem())
				if err != nil {
					return nil, fmt.Errorf("variadic argument %d: %w", i, err)
				}
				rest = reflect.Append(rest, v)
			}
			in := make([]reflect.Value, n)
			for i := 0; i < n-1; i++ {
				var err error
				if in[i], err = argument(args[i], ft.In(i)); err != nil {
					return nil, fmt.Errorf("argument %d: %w", i, err)
				}
			}
			in[n-1] = rest
			return in, nil
		}
	}

	if len(args) != n {
		return nil, fmt.Errorf("got %d arguments, want %d", len(args), n)
	}
	in := make([]reflect.Value, n)
	for i, a := range args {
		v, err := argument(a, ft.In(i))
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in[i] = v
	}
	return in, nil
}

// argument returns a as a value of exactly type t.
func argument(a any, t reflect.Type) (reflect.Value, error) {
	if a == nil {
		return reflect.Zero(t), nil
	}
	v := reflect.ValueOf(a)
	if v.Type() == t {
		return v, nil
	}
	if !v.Type().AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("%v is not assignable to %v", v.Type(), t)
	}
	out := reflect.New(t).Elem()
	out.Set(v)
	return out, nil
}

// Bind stores the proxy's functions into the func-typed fields of the
// struct pointed to by target whose names match a method. It returns the
// number of fields set. A matching field of the wrong type is an error.
func (p *Proxy) Bind(target any) (int, error) {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return 0, fmt.Errorf("proxy: Bind needs a non-nil struct pointer, got %T", target)
	}
	sv := rv.Elem()
	st := sv.Type()

	bound := 0
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		m, ok := p.methods[f.Name]
		if !ok || !f.IsExported() || f.Type.Kind() != reflect.Func {
			continue
		}
		if f.Type != m.fnType {
			return bound, fmt.Errorf("proxy: field %s.%s has type %v, method has %v", st.Name(), f.Name, f.Type, m.fnType)
		}
		sv.Field(i).Set(m.fn)
		bound++
	}
	log.Debugf("bound %d methods of %s into %v", bound, p.iface.Name, st)
	return bound, nil
}
