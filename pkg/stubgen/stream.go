package stubgen

import (
	"fmt"
	"strings"

	"github.com/chazu/dynstub/pkg/shape"
)

// Instr is one recorded instruction. Only the operand fields relevant to
// Op are set.
type Instr struct {
	Op        Op
	Int       int       // NewArray length, LoadInt value, LoadArg index, Return count
	Str       string    // LoadString literal
	Kind      LocalKind // DeclareLocal, NewArray
	Local     Local     // StoreLocal, LoadLocal
	Type      shape.Type
	ValueKind bool
	Results   []shape.Result // UnpackResults
}

// Effect returns how many values the instruction pops and pushes.
func (in Instr) Effect() (pop, push int) {
	info := in.Op.Info()
	pop, push = info.StackPop, info.StackPush
	switch in.Op {
	case OpUnpackResults:
		push = len(in.Results)
	case OpReturn:
		pop = in.Int
	}
	return pop, push
}

func (in Instr) String() string {
	name := in.Op.String()
	switch in.Op {
	case OpDeclareLocal:
		return fmt.Sprintf("%s %s", name, in.Kind)
	case OpNewArray:
		return fmt.Sprintf("%s %s[%d]", name, in.Kind, in.Int)
	case OpStoreLocal, OpLoadLocal:
		return fmt.Sprintf("%s %d ; %s", name, in.Local.Index, in.Local.Kind)
	case OpLoadInt, OpLoadArg, OpReturn:
		return fmt.Sprintf("%s %d", name, in.Int)
	case OpLoadString:
		return fmt.Sprintf("%s %q", name, in.Str)
	case OpLoadIndirect, OpStoreIndirect:
		if in.ValueKind {
			return fmt.Sprintf("%s %s", name, in.Type)
		}
		return fmt.Sprintf("%s ref", name)
	case OpBox, OpUnbox:
		return fmt.Sprintf("%s %s", name, in.Type)
	case OpUnpackResults:
		parts := make([]string, len(in.Results))
		for i, r := range in.Results {
			parts[i] = r.Type.String()
		}
		return fmt.Sprintf("%s (%s)", name, strings.Join(parts, ", "))
	}
	return name
}

// Stream is the recorded, backend-neutral instruction stream of one stub
// body. It is append-only: instructions are never revised or removed.
// A Stream is itself an Emitter, so any generation can be recorded and
// later replayed into a concrete backend.
type Stream struct {
	Method string

	instrs []Instr
	locals []LocalKind
}

// NewStream returns an empty stream for the named method.
func NewStream(method string) *Stream {
	return &Stream{Method: method}
}

// Instrs returns the recorded instructions. The slice must not be modified.
func (s *Stream) Instrs() []Instr { return s.instrs }

// Len returns the number of recorded instructions.
func (s *Stream) Len() int { return len(s.instrs) }

// Locals returns the kinds of the declared locals, in declaration order.
func (s *Stream) Locals() []LocalKind { return s.locals }

// Count returns how many instructions with the given op were recorded.
func (s *Stream) Count(op Op) int {
	n := 0
	for _, in := range s.instrs {
		if in.Op == op {
			n++
		}
	}
	return n
}

func (s *Stream) add(in Instr) { s.instrs = append(s.instrs, in) }

// DeclareLocal implements Emitter.
func (s *Stream) DeclareLocal(kind LocalKind) Local {
	l := Local{Index: len(s.locals), Kind: kind}
	s.locals = append(s.locals, kind)
	s.add(Instr{Op: OpDeclareLocal, Kind: kind, Local: l})
	return l
}

func (s *Stream) NewArray(kind LocalKind, n int) { s.add(Instr{Op: OpNewArray, Kind: kind, Int: n}) }
func (s *Stream) StoreLocal(l Local)             { s.add(Instr{Op: OpStoreLocal, Local: l}) }
func (s *Stream) LoadLocal(l Local)              { s.add(Instr{Op: OpLoadLocal, Local: l}) }
func (s *Stream) LoadInt(n int)                  { s.add(Instr{Op: OpLoadInt, Int: n}) }
func (s *Stream) LoadString(str string)          { s.add(Instr{Op: OpLoadString, Str: str}) }
func (s *Stream) LoadReceiver()                  { s.add(Instr{Op: OpLoadReceiver}) }
func (s *Stream) LoadArg(i int)                  { s.add(Instr{Op: OpLoadArg, Int: i}) }

func (s *Stream) LoadIndirect(t shape.Type, valueKind bool) {
	s.add(Instr{Op: OpLoadIndirect, Type: t, ValueKind: valueKind})
}

func (s *Stream) StoreIndirect(t shape.Type, valueKind bool) {
	s.add(Instr{Op: OpStoreIndirect, Type: t, ValueKind: valueKind})
}

func (s *Stream) Box(t shape.Type)   { s.add(Instr{Op: OpBox, Type: t, ValueKind: true}) }
func (s *Stream) Unbox(t shape.Type) { s.add(Instr{Op: OpUnbox, Type: t, ValueKind: true}) }
func (s *Stream) LoadElem()          { s.add(Instr{Op: OpLoadElem}) }
func (s *Stream) StoreElem()         { s.add(Instr{Op: OpStoreElem}) }
func (s *Stream) CallInterceptor()   { s.add(Instr{Op: OpCallInterceptor}) }

func (s *Stream) UnpackResults(results []shape.Result) {
	s.add(Instr{Op: OpUnpackResults, Results: results})
}

func (s *Stream) Pop()         { s.add(Instr{Op: OpPop}) }
func (s *Stream) Return(n int) { s.add(Instr{Op: OpReturn, Int: n}) }

// Replay emits every recorded instruction into e, in order. Locals are
// redeclared on e and the handles translated.
func (s *Stream) Replay(e Emitter) error {
	locals := make(map[int]Local, len(s.locals))
	for _, in := range s.instrs {
		switch in.Op {
		case OpDeclareLocal:
			locals[in.Local.Index] = e.DeclareLocal(in.Kind)
		case OpNewArray:
			e.NewArray(in.Kind, in.Int)
		case OpStoreLocal:
			e.StoreLocal(locals[in.Local.Index])
		case OpLoadLocal:
			e.LoadLocal(locals[in.Local.Index])
		case OpLoadInt:
			e.LoadInt(in.Int)
		case OpLoadString:
			e.LoadString(in.Str)
		case OpLoadReceiver:
			e.LoadReceiver()
		case OpLoadArg:
			e.LoadArg(in.Int)
		case OpLoadIndirect:
			e.LoadIndirect(in.Type, in.ValueKind)
		case OpStoreIndirect:
			e.StoreIndirect(in.Type, in.ValueKind)
		case OpBox:
			e.Box(in.Type)
		case OpUnbox:
			e.Unbox(in.Type)
		case OpLoadElem:
			e.LoadElem()
		case OpStoreElem:
			e.StoreElem()
		case OpCallInterceptor:
			e.CallInterceptor()
		case OpUnpackResults:
			e.UnpackResults(in.Results)
		case OpPop:
			e.Pop()
		case OpReturn:
			e.Return(in.Int)
		default:
			return fmt.Errorf("replay %s: unknown op %d", s.Method, in.Op)
		}
	}
	if ee, ok := e.(errEmitter); ok {
		return ee.Err()
	}
	return nil
}

// String returns a numbered listing of the stream.
func (s *Stream) String() string {
	var sb strings.Builder
	if s.Method != "" {
		fmt.Fprintf(&sb, "; === %s ===\n", s.Method)
	}
	for i, in := range s.instrs {
		fmt.Fprintf(&sb, "%04d  %s\n", i, in)
	}
	return sb.String()
}
