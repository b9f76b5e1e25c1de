package gosrc

import (
	"fmt"

	"github.com/dave/jennifer/jen"

	"github.com/chazu/dynstub/pkg/shape"
	"github.com/chazu/dynstub/pkg/stubgen"
)

const valuePkg = "github.com/chazu/dynstub/pkg/value"

// item is one entry of the symbolic stack: the Go expression that computes
// the value. Impure expressions can panic or observe state, so they are
// bound to temporaries before any statement that could run ahead of them.
type item struct {
	expr jen.Code
	pure bool
	call bool     // a call expression, usable as a statement on its own
	temp *binding // set once the value has been bound to a temporary
}

// binding records the statement that bound an impure value to a temporary.
type binding struct {
	stmt int
	expr jen.Code
	call bool
}

// BodyEmitter translates a stub stream into the Go statements of one method
// body. Locals become named variables, the operand stack is kept
// symbolically and only materialized as statements when the stream stores,
// pops or returns.
type BodyEmitter struct {
	recv string             // receiver identifier
	args func(i int) string // argument identifier of parameter i
	conv *typeConverter

	stack  []item
	locals []string
	bound  map[int]bool
	temps  int
	stmts  []jen.Code
	err    error
}

// NewBodyEmitter returns an emitter for a method whose receiver is named
// recv and whose parameters are named by args.
func NewBodyEmitter(recv string, args func(i int) string) *BodyEmitter {
	return &BodyEmitter{
		recv:  recv,
		args:  args,
		conv:  &typeConverter{},
		bound: make(map[int]bool),
	}
}

// Statements returns the emitted body.
func (b *BodyEmitter) Statements() []jen.Code { return b.stmts }

// Err returns the first translation failure, if any.
func (b *BodyEmitter) Err() error { return b.err }

func (b *BodyEmitter) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf("gosrc: "+format, args...)
	}
}

func (b *BodyEmitter) push(it item) { b.stack = append(b.stack, it) }

func (b *BodyEmitter) pop() item {
	if len(b.stack) == 0 {
		b.fail("stack underflow")
		return item{expr: jen.Nil(), pure: true}
	}
	it := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	return it
}

// popN pops n items and returns them in push order.
func (b *BodyEmitter) popN(n int) []item {
	out := make([]item, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = b.pop()
	}
	return out
}

// flush binds every impure item left on the stack to a temporary, in stack
// order, so that a following statement cannot run before them.
func (b *BodyEmitter) flush() {
	for i, it := range b.stack {
		if it.pure {
			continue
		}
		name := fmt.Sprintf("r%d", b.temps)
		b.temps++
		bind := &binding{stmt: len(b.stmts), expr: it.expr, call: it.call}
		b.stmts = append(b.stmts, jen.Id(name).Op(":=").Add(it.expr))
		b.stack[i] = item{expr: jen.Id(name), pure: true, temp: bind}
	}
}

// statement pops the operands of a statement, flushes what is below them
// and appends the statement built from the operands.
func (b *BodyEmitter) statement(n int, build func(ops []item) jen.Code) {
	ops := b.popN(n)
	b.flush()
	b.stmts = append(b.stmts, build(ops))
}

func (b *BodyEmitter) typ(t shape.Type) jen.Code {
	code, err := b.conv.convert(t)
	if err != nil {
		b.fail("%v", err)
		return jen.Id("_")
	}
	return code
}

// DeclareLocal implements stubgen.Emitter. The variable is declared by its
// first store.
func (b *BodyEmitter) DeclareLocal(kind stubgen.LocalKind) stubgen.Local {
	l := stubgen.Local{Index: len(b.locals), Kind: kind}
	name := kind.String()
	for _, prev := range b.locals {
		if prev == name {
			name = fmt.Sprintf("%s%d", name, l.Index)
		}
	}
	b.locals = append(b.locals, name)
	return l
}

func (b *BodyEmitter) local(l stubgen.Local) string {
	if l.Index < 0 || l.Index >= len(b.locals) {
		b.fail("undeclared local %d", l.Index)
		return "_"
	}
	return b.locals[l.Index]
}

// NewArray implements stubgen.Emitter.
func (b *BodyEmitter) NewArray(kind stubgen.LocalKind, n int) {
	var elem jen.Code = jen.Interface()
	if kind == stubgen.LocalNames {
		elem = jen.String()
	}
	b.push(item{expr: jen.Make(jen.Index().Add(elem), jen.Lit(n)), pure: true})
}

// StoreLocal implements stubgen.Emitter.
func (b *BodyEmitter) StoreLocal(l stubgen.Local) {
	name := b.local(l)
	op := "="
	if !b.bound[l.Index] {
		op = ":="
		b.bound[l.Index] = true
	}
	b.statement(1, func(ops []item) jen.Code {
		return jen.Id(name).Op(op).Add(ops[0].expr)
	})
}

func (b *BodyEmitter) LoadLocal(l stubgen.Local) {
	b.push(item{expr: jen.Id(b.local(l)), pure: true})
}

func (b *BodyEmitter) LoadInt(n int)       { b.push(item{expr: jen.Lit(n), pure: true}) }
func (b *BodyEmitter) LoadString(s string) { b.push(item{expr: jen.Lit(s), pure: true}) }
func (b *BodyEmitter) LoadReceiver()       { b.push(item{expr: jen.Id(b.recv), pure: true}) }
func (b *BodyEmitter) LoadArg(i int)       { b.push(item{expr: jen.Id(b.args(i)), pure: true}) }

// LoadIndirect implements stubgen.Emitter. value.Deref panics with
// value.ErrNilReference on a nil argument, so the result is impure.
func (b *BodyEmitter) LoadIndirect(t shape.Type, valueKind bool) {
	addr := b.pop()
	b.push(item{expr: jen.Qual(valuePkg, "Deref").Call(addr.expr)})
}

// StoreIndirect implements stubgen.Emitter.
func (b *BodyEmitter) StoreIndirect(t shape.Type, valueKind bool) {
	b.statement(2, func(ops []item) jen.Code {
		return jen.Op("*").Add(ops[0].expr).Op("=").Add(ops[1].expr)
	})
}

// Box implements stubgen.Emitter. Go converts to any implicitly wherever the
// boxed value is used, so boxing leaves the expression unchanged.
func (b *BodyEmitter) Box(t shape.Type) {
	if len(b.stack) == 0 {
		b.fail("box on empty stack")
	}
}

// Unbox implements stubgen.Emitter.
func (b *BodyEmitter) Unbox(t shape.Type) {
	g := b.pop()
	b.push(item{
		expr: jen.Qual(valuePkg, "As").Types(b.typ(t)).Call(g.expr),
		call: true,
	})
}

// LoadElem implements stubgen.Emitter.
func (b *BodyEmitter) LoadElem() {
	ops := b.popN(2)
	b.push(item{expr: jen.Add(ops[0].expr).Index(ops[1].expr)})
}

// StoreElem implements stubgen.Emitter.
func (b *BodyEmitter) StoreElem() {
	b.statement(3, func(ops []item) jen.Code {
		return jen.Add(ops[0].expr).Index(ops[1].expr).Op("=").Add(ops[2].expr)
	})
}

// CallInterceptor implements stubgen.Emitter.
func (b *BodyEmitter) CallInterceptor() {
	ops := b.popN(4)
	b.push(item{
		expr: jen.Id(b.recv).Dot(interceptorField).Call(ops[0].expr, ops[1].expr, ops[2].expr, ops[3].expr),
		call: true,
	})
}

// UnpackResults implements stubgen.Emitter. The tuple is bound to a
// variable and each result read from it in order.
func (b *BodyEmitter) UnpackResults(results []shape.Result) {
	g := b.pop()
	b.flush()

	name := "results"
	b.stmts = append(b.stmts, jen.Id(name).Op(":=").Qual(valuePkg, "Unpack").Call(g.expr, jen.Lit(len(results))))

	for i, r := range results {
		elem := jen.Id(name).Index(jen.Lit(i))
		if r.ValueKind {
			b.push(item{expr: jen.Qual(valuePkg, "As").Types(b.typ(r.Type)).Call(elem), call: true})
			continue
		}
		b.push(item{expr: elem})
	}
}

// Pop implements stubgen.Emitter. A discarded call still runs, and a
// temporary that is discarded is never declared.
func (b *BodyEmitter) Pop() {
	it := b.pop()
	if it.temp != nil {
		b.stmts[it.temp.stmt] = discard(it.temp.expr, it.temp.call)
		return
	}
	if it.pure {
		return
	}
	b.flush()
	b.stmts = append(b.stmts, discard(it.expr, it.call))
}

func discard(expr jen.Code, call bool) jen.Code {
	if call {
		return expr
	}
	return jen.Id("_").Op("=").Add(expr)
}

// Return implements stubgen.Emitter.
func (b *BodyEmitter) Return(n int) {
	ops := b.popN(n)
	b.flush()
	if len(b.stack) != 0 {
		b.fail("%d values left on the stack at return", len(b.stack))
	}
	exprs := make([]jen.Code, n)
	for i, it := range ops {
		exprs[i] = it.expr
	}
	b.stmts = append(b.stmts, jen.Return(exprs...))
}
