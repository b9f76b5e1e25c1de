// Package stubgen synthesizes the bodies of intercepting stub methods.
//
// For every method shape the generator emits a straight-line instruction
// sequence against an abstract stack machine (Emitter). The sequence packs
// the call's arguments into a names slot and a values slot, forwards them
// to the generic interceptor, coerces the interceptor's result back to the
// declared results, writes by-reference parameters back from the values
// slot, and returns.
//
// Emission always runs the same seven stages in order. The generator tracks
// the stack depth of every instruction and checks it at each stage
// boundary, so a shape that would produce an unbalanced body is reported as
// a *GenerationError instead of reaching a backend half-emitted.
package stubgen

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/dynstub/pkg/shape"
)

var log = commonlog.GetLogger("dynstub.stubgen")

// Option configures a generation.
type Option func(*generator)

// WithNamer replaces the canonical type-name resolver used for the names slot.
func WithNamer(n shape.Namer) Option {
	return func(g *generator) { g.namer = n }
}

// Generate records the stub body for m into a new Stream.
func Generate(m *shape.Method, opts ...Option) (*Stream, error) {
	s := NewStream("")
	if m != nil {
		s.Method = m.Name
	}
	if err := GenerateInto(m, s, opts...); err != nil {
		return nil, err
	}
	return s, nil
}

// GenerateInto emits the stub body for m directly into e.
func GenerateInto(m *shape.Method, e Emitter, opts ...Option) error {
	g := &generator{m: m, namer: shape.CanonicalNamer{}}
	for _, opt := range opts {
		opt(g)
	}
	if err := g.validate(); err != nil {
		return err
	}

	g.t = newTracker(e)
	if err := g.run(e); err != nil {
		return err
	}

	log.Debugf("generated %s: %d params, %d by-ref, %d results, max depth %d",
		m.Name, len(m.Params), len(m.ByRefParams()), len(m.Return.Results), g.t.maxDepth)
	return nil
}

type generator struct {
	m     *shape.Method
	namer shape.Namer
	t     *tracker

	names  Local
	values Local
}

func (g *generator) run(backend Emitter) error {
	// The interceptor's result stays on the stack from the call until the
	// epilogue: one generic value for void methods, n coerced values
	// otherwise.
	pending := len(g.m.Return.Results)
	if pending == 0 {
		pending = 1
	}

	steps := []struct {
		stage Stage
		emit  func()
		depth int
	}{
		{StageSlots, g.allocateSlots, 0},
		{StageNames, g.emitTypeNames, 0},
		{StageValues, g.emitValues, 0},
		{StageInvoke, g.emitInvoke, 1},
		{StageCoerce, g.emitCoercion, pending},
		{StageWriteback, g.emitWriteback, pending},
		{StageEpilogue, g.emitEpilogue, 0},
	}

	ee, _ := backend.(errEmitter)
	for _, step := range steps {
		g.t.stage = step.stage
		step.emit()
		g.t.param = -1
		g.t.expect(step.depth)

		if g.t.err != nil {
			g.t.err.Method = g.m.Name
			return g.t.err
		}
		if ee != nil {
			if err := ee.Err(); err != nil {
				return &GenerationError{Method: g.m.Name, Param: -1, Stage: step.stage, Err: err}
			}
		}
	}
	return nil
}

// validate rejects shapes that cannot be emitted before anything reaches
// the backend.
func (g *generator) validate() error {
	m := g.m
	if m == nil {
		return &GenerationError{Method: "<nil>", Param: -1, Stage: StageValidate, Err: fmt.Errorf("%w: nil method", ErrUnsupportedShape)}
	}
	fail := func(param int, format string, args ...any) error {
		return &GenerationError{
			Method: m.Name,
			Param:  param,
			Stage:  StageValidate,
			Err:    fmt.Errorf("%w: %s", ErrUnsupportedShape, fmt.Sprintf(format, args...)),
		}
	}

	if m.Name == "" {
		return fail(-1, "empty method name")
	}
	for i, p := range m.Params {
		if p.Index != i {
			return fail(i, "declared index %d does not match position", p.Index)
		}
		if p.Type == nil {
			return fail(i, "nil type")
		}
		if p.ByRef && p.Type.Elem() == nil {
			return fail(i, "by-reference parameter of non-pointer type %s", p.Type)
		}
	}
	for i, r := range m.Return.Results {
		if r.Type == nil {
			return fail(-1, "result %d has nil type", i)
		}
	}
	if m.Variadic && len(m.Params) == 0 {
		return fail(-1, "variadic method without parameters")
	}
	return nil
}

// allocateSlots declares the names and values locals.
func (g *generator) allocateSlots() {
	g.names = g.t.DeclareLocal(LocalNames)
	g.values = g.t.DeclareLocal(LocalValues)
}

// emitTypeNames fills the names slot with one canonical type name per
// parameter. By-ref parameters are named after the type they point to.
func (g *generator) emitTypeNames() {
	g.t.NewArray(LocalNames, len(g.m.Params))
	g.t.StoreLocal(g.names)

	for _, p := range g.m.Params {
		g.t.param = p.Index
		g.t.LoadLocal(g.names)
		g.t.LoadInt(p.Index)
		g.t.LoadString(shape.ParamTypeName(g.namer, p))
		g.t.StoreElem()
	}
}

// emitValues fills the values slot with a generic snapshot of every
// argument, dereferencing by-ref parameters and boxing value-kind ones.
func (g *generator) emitValues() {
	g.t.NewArray(LocalValues, len(g.m.Params))
	g.t.StoreLocal(g.values)

	for _, p := range g.m.Params {
		g.t.param = p.Index
		g.t.LoadLocal(g.values)
		g.t.LoadInt(p.Index)
		g.t.LoadArg(p.Index)
		if p.ByRef {
			g.t.LoadIndirect(p.ValueType(), p.ValueKind)
		}
		if p.ValueKind {
			g.t.Box(p.ValueType())
		}
		g.t.StoreElem()
	}
}

// emitInvoke calls the interceptor with the receiver, the method name and
// both slots. It leaves exactly one generic value on the stack.
func (g *generator) emitInvoke() {
	g.t.LoadReceiver()
	g.t.LoadString(g.m.Name)
	g.t.LoadLocal(g.names)
	g.t.LoadLocal(g.values)
	g.t.CallInterceptor()
}

// emitCoercion converts the generic result to the declared results in place.
func (g *generator) emitCoercion() {
	results := g.m.Return.Results
	switch len(results) {
	case 0:
		// discarded by the epilogue
	case 1:
		if results[0].ValueKind {
			g.t.Unbox(results[0].Type)
		}
	default:
		g.t.UnpackResults(results)
	}
}

// emitWriteback copies the possibly mutated values of by-ref parameters
// back through their addresses. It is stack-neutral: the pending results
// stay untouched below it.
func (g *generator) emitWriteback() {
	for _, p := range g.m.Params {
		if !p.ByRef {
			continue
		}
		g.t.param = p.Index
		vt := p.ValueType()

		g.t.LoadArg(p.Index)
		g.t.LoadLocal(g.values)
		g.t.LoadInt(p.Index)
		g.t.LoadElem()
		if p.ValueKind {
			g.t.Unbox(vt)
			g.t.StoreIndirect(vt, true)
		} else {
			g.t.StoreIndirect(vt, false)
		}
	}
}

// emitEpilogue discards the unused result of void methods and returns.
func (g *generator) emitEpilogue() {
	if g.m.Return.IsVoid() {
		g.t.Pop()
	}
	g.t.Return(len(g.m.Return.Results))
}

// IsGenerationError reports whether err is, or wraps, a *GenerationError.
func IsGenerationError(err error) (*GenerationError, bool) {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}
