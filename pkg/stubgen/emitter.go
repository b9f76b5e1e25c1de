package stubgen

import "github.com/chazu/dynstub/pkg/shape"

// LocalKind is the element type of a local slot.
type LocalKind uint8

const (
	// LocalNames is a []string slot holding parameter type names.
	LocalNames LocalKind = iota

	// LocalValues is a []any slot holding boxed parameter values.
	LocalValues
)

func (k LocalKind) String() string {
	switch k {
	case LocalNames:
		return "names"
	case LocalValues:
		return "values"
	default:
		return "local?"
	}
}

// Local is a handle to a slot returned by Emitter.DeclareLocal.
type Local struct {
	Index int
	Kind  LocalKind
}

// Emitter is the abstract stack machine a stub body is generated against.
// Each method appends one instruction; the comment gives its stack effect
// as (popped -> pushed). Concrete backends translate the instructions into
// bytecode, Go source, or a recorded Stream.
//
// Emitter methods do not return errors. A backend that can fail records the
// first failure and reports it from an Err() error method, which
// GenerateInto checks once emission completes.
type Emitter interface {
	DeclareLocal(kind LocalKind) Local // () -> ()
	NewArray(kind LocalKind, n int)    // () -> (array)
	StoreLocal(l Local)                // (v) -> ()
	LoadLocal(l Local)                 // () -> (v)

	LoadInt(n int)       // () -> (int)
	LoadString(s string) // () -> (string)
	LoadReceiver()       // () -> (receiver)
	LoadArg(i int)       // () -> (arg or address)

	LoadIndirect(t shape.Type, valueKind bool)  // (addr) -> (v)
	StoreIndirect(t shape.Type, valueKind bool) // (addr v) -> ()
	Box(t shape.Type)                           // (v) -> (generic)
	Unbox(t shape.Type)                         // (generic) -> (v)

	LoadElem()  // (array index) -> (v)
	StoreElem() // (array index v) -> ()

	CallInterceptor()                     // (receiver method names values) -> (generic)
	UnpackResults(results []shape.Result) // (tuple) -> (r0 ... rn-1)

	Pop()        // (v) -> ()
	Return(n int) // (r0 ... rn-1) -> ()
}

// errEmitter is implemented by backends that can fail during emission.
type errEmitter interface {
	Err() error
}
