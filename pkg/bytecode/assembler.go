package bytecode

import (
	"fmt"
	"reflect"

	"github.com/chazu/dynstub/pkg/shape"
	"github.com/chazu/dynstub/pkg/stubgen"
)

// Assembler encodes an abstract stub stream into a Chunk. It implements
// stubgen.Emitter; the first encoding failure is kept and reported by Err.
type Assembler struct {
	chunk *Chunk
	depth int
	err   error
}

// NewAssembler starts a chunk for method m.
func NewAssembler(m *shape.Method) *Assembler {
	c := NewChunk()
	a := &Assembler{chunk: c}
	if m == nil {
		return a
	}

	c.Method = m.Name
	if len(m.Params) > 0xFF {
		a.fail("%d parameters exceed the frame limit", len(m.Params))
	}
	c.ParamCount = uint8(len(m.Params))
	if m.Variadic {
		c.Flags |= ChunkFlagVariadic
	}
	if len(m.ByRefParams()) > 0 {
		c.Flags |= ChunkFlagHasByRef
	}
	for _, r := range m.Return.Results {
		c.Results = append(c.Results, ResultInfo{Type: a.addType(r.Type), ValueKind: r.ValueKind})
	}
	return a
}

// Chunk returns the assembled chunk.
func (a *Assembler) Chunk() *Chunk { return a.chunk }

// Err returns the first encoding failure, if any.
func (a *Assembler) Err() error { return a.err }

func (a *Assembler) fail(format string, args ...any) {
	if a.err == nil {
		a.err = fmt.Errorf("assemble %s: %s", a.chunk.Method, fmt.Sprintf(format, args...))
	}
}

func (a *Assembler) emit(op Opcode, operands ...byte) {
	a.chunk.EmitWithOperand(op, operands...)
	info := GetOpcodeInfo(op)
	pop, push := info.StackPop, info.StackPush
	switch op {
	case OpUnpackResults:
		push = len(a.chunk.Results)
	case OpReturn:
		pop = int(operands[0])
	}
	a.depth += push - pop
	if a.depth > int(a.chunk.MaxStack) {
		a.chunk.MaxStack = uint16(a.depth)
	}
}

func (a *Assembler) emit16(op Opcode, n int) {
	if n < 0 || n > 0xFFFF {
		a.fail("%s operand %d out of range", op, n)
		return
	}
	a.emit(op, byte(n>>8), byte(n))
}

func (a *Assembler) emit8(op Opcode, n int) {
	if n < 0 || n > 0xFF {
		a.fail("%s operand %d out of range", op, n)
		return
	}
	a.emit(op, byte(n))
}

func (a *Assembler) typed(op Opcode, t shape.Type) {
	a.emit16(op, int(a.addType(t)))
}

// addType pools t. The pool is keyed by canonical name, so a reflect type
// whose name is already held by a different type cannot be encoded.
func (a *Assembler) addType(t shape.Type) uint16 {
	r, ok := t.(shape.ReflectType)
	if !ok {
		return a.chunk.AddType(t)
	}
	name := shape.CanonicalNamer{}.TypeName(t)
	for i, s := range a.chunk.Types {
		if s != name {
			continue
		}
		if prev := a.chunk.resolved[i]; prev != nil && prev != r.T {
			if a.err == nil {
				a.err = fmt.Errorf("assemble %s: %w: type name %q is shared by %s and %s",
					a.chunk.Method, stubgen.ErrUnsupportedShape, name, typePath(prev), typePath(r.T))
			}
			return uint16(i)
		}
		break
	}
	return a.chunk.AddType(t)
}

// typePath qualifies the named type under any composite wrappers of t.
func typePath(t reflect.Type) string {
	base := t
	for base.Name() == "" {
		switch base.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Chan:
			base = base.Elem()
			continue
		}
		return t.String()
	}
	if base.PkgPath() == "" {
		return t.String()
	}
	return base.PkgPath() + "." + base.Name()
}

// DeclareLocal implements stubgen.Emitter. Locals are frame metadata and
// emit no code.
func (a *Assembler) DeclareLocal(kind stubgen.LocalKind) stubgen.Local {
	idx := len(a.chunk.Locals)
	if idx >= 0xFF {
		a.fail("too many locals")
	}
	a.chunk.Locals = append(a.chunk.Locals, kind)
	return stubgen.Local{Index: idx, Kind: kind}
}

// NewArray implements stubgen.Emitter.
func (a *Assembler) NewArray(kind stubgen.LocalKind, n int) {
	switch kind {
	case stubgen.LocalNames:
		a.emit16(OpNewNames, n)
	case stubgen.LocalValues:
		a.emit16(OpNewValues, n)
	default:
		a.fail("array of unknown kind %d", kind)
	}
}

func (a *Assembler) StoreLocal(l stubgen.Local) { a.emit8(OpStoreLocal, l.Index) }
func (a *Assembler) LoadLocal(l stubgen.Local)  { a.emit8(OpLoadLocal, l.Index) }
func (a *Assembler) LoadInt(n int)              { a.emit16(OpConstInt, n) }
func (a *Assembler) LoadReceiver()              { a.emit(OpLoadReceiver) }
func (a *Assembler) LoadArg(i int)              { a.emit8(OpLoadArg, i) }

// LoadString implements stubgen.Emitter.
func (a *Assembler) LoadString(s string) {
	if len(a.chunk.Constants) > 0xFFFF {
		a.fail("constant pool overflow")
		return
	}
	a.emit16(OpConst, int(a.chunk.AddConstant(s)))
}

// LoadIndirect implements stubgen.Emitter.
func (a *Assembler) LoadIndirect(t shape.Type, valueKind bool) {
	if valueKind {
		a.typed(OpLoadInd, t)
		return
	}
	a.emit(OpLoadIndRef)
}

// StoreIndirect implements stubgen.Emitter.
func (a *Assembler) StoreIndirect(t shape.Type, valueKind bool) {
	if valueKind {
		a.typed(OpStoreInd, t)
		return
	}
	a.emit(OpStoreIndRef)
}

func (a *Assembler) Box(t shape.Type)   { a.typed(OpBox, t) }
func (a *Assembler) Unbox(t shape.Type) { a.typed(OpUnbox, t) }
func (a *Assembler) LoadElem()          { a.emit(OpLoadElem) }
func (a *Assembler) StoreElem()         { a.emit(OpStoreElem) }
func (a *Assembler) CallInterceptor()   { a.emit(OpCallInterceptor) }

// UnpackResults implements stubgen.Emitter. The unpacked layout is the
// chunk's result table, so the results must match the method's.
func (a *Assembler) UnpackResults(results []shape.Result) {
	if len(results) != len(a.chunk.Results) {
		a.fail("unpack of %d results, method declares %d", len(results), len(a.chunk.Results))
		return
	}
	for i, r := range results {
		name := shape.CanonicalNamer{}.TypeName(r.Type)
		if want := a.chunk.typeName(a.chunk.Results[i].Type); name != want {
			a.fail("unpack result %d is %s, method declares %s", i, name, want)
			return
		}
	}
	a.emit(OpUnpackResults)
}

func (a *Assembler) Pop()         { a.emit(OpPop) }
func (a *Assembler) Return(n int) { a.emit8(OpReturn, n) }

// Compile generates the stub body for m and assembles it into a verified
// chunk. Chunks compiled from reflect shapes are ready to execute.
func Compile(m *shape.Method, opts ...stubgen.Option) (*Chunk, error) {
	a := NewAssembler(m)
	if err := stubgen.GenerateInto(m, a, opts...); err != nil {
		return nil, err
	}
	if err := Verify(a.chunk); err != nil {
		return nil, fmt.Errorf("compile %s: %w", m.Name, err)
	}
	return a.chunk, nil
}
