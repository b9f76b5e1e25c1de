package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"

	"github.com/chazu/dynstub/pkg/value"
)

// ErrUnresolved is returned when a chunk whose type pool has not been
// bound to reflect types is executed. See Chunk.ResolveTypes.
var ErrUnresolved = errors.New("chunk types not resolved")

// Frame is the input of one stub invocation.
type Frame struct {
	Receiver    any
	Args        []reflect.Value // one per parameter; by-ref parameters are pointers
	Interceptor value.Interceptor
}

// RuntimeError reports a failure while executing a chunk.
type RuntimeError struct {
	Method string
	Offset int
	Op     Opcode
	Err    error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("exec %s at %04X %s: %v", e.Method, e.Offset, e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// typed is a stack entry holding a value of a declared type. Every other
// stack entry is a generic value, a slot array, an int or a string.
type typed struct {
	v reflect.Value
}

// generic returns the generic form of a stack entry.
func generic(x any) any {
	if t, ok := x.(typed); ok {
		return value.Box(t.v)
	}
	return x
}

// vm is the state of one execution. It is never shared.
type vm struct {
	chunk *Chunk
	types []reflect.Type
	frame Frame

	ip     int
	stack  []any
	locals []any
}

// Execute runs the stub body in c for one call and returns the method's
// results, converted to their declared types. Interceptor panics are not
// recovered. Execute does not modify c and may be called concurrently.
func Execute(c *Chunk, f Frame) ([]reflect.Value, error) {
	if !c.Resolved() {
		return nil, fmt.Errorf("exec %s: %w", c.Method, ErrUnresolved)
	}
	if len(f.Args) != int(c.ParamCount) {
		return nil, fmt.Errorf("exec %s: got %d arguments, want %d", c.Method, len(f.Args), c.ParamCount)
	}
	if f.Interceptor == nil {
		return nil, fmt.Errorf("exec %s: nil interceptor", c.Method)
	}

	m := &vm{
		chunk:  c,
		types:  c.resolved,
		frame:  f,
		stack:  make([]any, 0, c.MaxStack),
		locals: make([]any, len(c.Locals)),
	}
	return m.run()
}

func (m *vm) run() ([]reflect.Value, error) {
	code := m.chunk.Code
	for m.ip < len(code) {
		start := m.ip
		op := Opcode(code[m.ip])
		m.ip++

		out, done, err := m.step(op)
		if err != nil {
			return nil, &RuntimeError{Method: m.chunk.Method, Offset: start, Op: op, Err: err}
		}
		if done {
			return out, nil
		}
	}
	return nil, fmt.Errorf("exec %s: fell off end of code", m.chunk.Method)
}

func (m *vm) step(op Opcode) ([]reflect.Value, bool, error) {
	switch op {
	case OpNop:

	case OpPop:
		m.pop()

	// Constants
	case OpConst:
		m.push(m.chunk.Constants[m.readUint16()])
	case OpConstInt:
		m.push(int(m.readUint16()))

	// Frame access
	case OpLoadReceiver:
		m.push(m.frame.Receiver)
	case OpLoadArg:
		m.push(typed{m.frame.Args[m.readByte()]})
	case OpLoadLocal:
		m.push(m.locals[m.readByte()])
	case OpStoreLocal:
		m.locals[m.readByte()] = m.pop()

	// Arrays
	case OpNewNames:
		m.push(make([]string, m.readUint16()))
	case OpNewValues:
		m.push(make([]any, m.readUint16()))
	case OpLoadElem:
		idx, arr := m.pop().(int), m.pop()
		values, ok := arr.([]any)
		if !ok {
			return nil, false, fmt.Errorf("load element of %T", arr)
		}
		m.push(values[idx])
	case OpStoreElem:
		v, idx, arr := m.pop(), m.pop().(int), m.pop()
		switch a := arr.(type) {
		case []string:
			s, ok := v.(string)
			if !ok {
				return nil, false, fmt.Errorf("store %T into names", v)
			}
			a[idx] = s
		case []any:
			a[idx] = generic(v)
		default:
			return nil, false, fmt.Errorf("store element into %T", arr)
		}

	// Indirection
	case OpLoadInd:
		t := m.types[m.readUint16()]
		ptr, err := m.popPointer()
		if err != nil {
			return nil, false, err
		}
		v := reflect.New(t).Elem()
		v.Set(ptr.Elem())
		m.push(typed{v})
	case OpLoadIndRef:
		ptr, err := m.popPointer()
		if err != nil {
			return nil, false, err
		}
		m.push(ptr.Elem().Interface())
	case OpStoreInd:
		t := m.types[m.readUint16()]
		v := m.pop()
		ptr, err := m.popPointer()
		if err != nil {
			return nil, false, err
		}
		tv, ok := v.(typed)
		if !ok || tv.v.Type() != t {
			return nil, false, fmt.Errorf("store %T through *%s", v, t)
		}
		ptr.Elem().Set(tv.v)
	case OpStoreIndRef:
		g := generic(m.pop())
		ptr, err := m.popPointer()
		if err != nil {
			return nil, false, err
		}
		if err := value.Store(ptr, g); err != nil {
			return nil, false, err
		}

	// Boxing
	case OpBox:
		t := m.types[m.readUint16()]
		tv, ok := m.pop().(typed)
		if !ok || tv.v.Type() != t {
			return nil, false, fmt.Errorf("box of non-%s value", t)
		}
		m.push(value.Box(tv.v))
	case OpUnbox:
		t := m.types[m.readUint16()]
		v, err := value.Unbox(generic(m.pop()), t)
		if err != nil {
			return nil, false, m.where(err)
		}
		m.push(typed{v})
	case OpUnpackResults:
		tuple, err := value.UnpackTuple(generic(m.pop()), len(m.chunk.Results))
		if err != nil {
			return nil, false, m.where(err)
		}
		for i, r := range m.chunk.Results {
			if !r.ValueKind {
				m.push(tuple[i])
				continue
			}
			v, err := value.Unbox(tuple[i], m.types[r.Type])
			if err != nil {
				return nil, false, m.where(err)
			}
			m.push(typed{v})
		}

	// Calls
	case OpCallInterceptor:
		values, _ := m.pop().([]any)
		names, _ := m.pop().([]string)
		method, _ := m.pop().(string)
		receiver := m.pop()
		m.push(m.frame.Interceptor(receiver, method, names, values))

	// Return
	case OpReturn:
		out, err := m.results(int(m.readByte()))
		return out, true, err

	default:
		return nil, false, fmt.Errorf("unknown opcode 0x%02X", byte(op))
	}
	return nil, false, nil
}

// results pops the n declared results and converts them to their types.
func (m *vm) results(n int) ([]reflect.Value, error) {
	out := make([]reflect.Value, n)
	for i := n - 1; i >= 0; i-- {
		t := m.types[m.chunk.Results[i].Type]
		x := m.pop()
		if tv, ok := x.(typed); ok && tv.v.Type() == t {
			out[i] = tv.v
			continue
		}
		v, err := value.Unbox(generic(x), t)
		if err != nil {
			return nil, m.where(err)
		}
		out[i] = v
	}
	return out, nil
}

func (m *vm) where(err error) error {
	var me *value.MismatchError
	if errors.As(err, &me) && me.Where == "" {
		me.Where = m.chunk.Method
	}
	return err
}

func (m *vm) popPointer() (reflect.Value, error) {
	x := m.pop()
	tv, ok := x.(typed)
	if !ok || tv.v.Kind() != reflect.Pointer {
		return reflect.Value{}, fmt.Errorf("indirect through %T", x)
	}
	if tv.v.IsNil() {
		return reflect.Value{}, value.ErrNilReference
	}
	return tv.v, nil
}

func (m *vm) push(x any) {
	m.stack = append(m.stack, x)
}

func (m *vm) pop() any {
	x := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return x
}

func (m *vm) readByte() byte {
	b := m.chunk.Code[m.ip]
	m.ip++
	return b
}

func (m *vm) readUint16() uint16 {
	n := binary.BigEndian.Uint16(m.chunk.Code[m.ip:])
	m.ip += 2
	return n
}
