package stubgen

import "fmt"

// Op identifies one abstract stack-machine instruction.
type Op uint8

const (
	OpDeclareLocal Op = iota
	OpNewArray
	OpStoreLocal
	OpLoadLocal
	OpLoadInt
	OpLoadString
	OpLoadReceiver
	OpLoadArg
	OpLoadIndirect
	OpStoreIndirect
	OpBox
	OpUnbox
	OpLoadElem
	OpStoreElem
	OpCallInterceptor
	OpUnpackResults
	OpPop
	OpReturn
)

// OpInfo describes an instruction's name and stack effect.
type OpInfo struct {
	Name      string
	StackPop  int // -1 = depends on operand
	StackPush int // -1 = depends on operand
}

var opInfoTable = map[Op]OpInfo{
	OpDeclareLocal:    {"DECLARE_LOCAL", 0, 0},
	OpNewArray:        {"NEW_ARRAY", 0, 1},
	OpStoreLocal:      {"STORE_LOCAL", 1, 0},
	OpLoadLocal:       {"LOAD_LOCAL", 0, 1},
	OpLoadInt:         {"LOAD_INT", 0, 1},
	OpLoadString:      {"LOAD_STRING", 0, 1},
	OpLoadReceiver:    {"LOAD_RECEIVER", 0, 1},
	OpLoadArg:         {"LOAD_ARG", 0, 1},
	OpLoadIndirect:    {"LOAD_INDIRECT", 1, 1},
	OpStoreIndirect:   {"STORE_INDIRECT", 2, 0},
	OpBox:             {"BOX", 1, 1},
	OpUnbox:           {"UNBOX", 1, 1},
	OpLoadElem:        {"LOAD_ELEM", 2, 1},
	OpStoreElem:       {"STORE_ELEM", 3, 0},
	OpCallInterceptor: {"CALL_INTERCEPTOR", 4, 1},
	OpUnpackResults:   {"UNPACK_RESULTS", 1, -1},
	OpPop:             {"POP", 1, 0},
	OpReturn:          {"RETURN", -1, 0},
}

// Info returns the metadata for op.
func (op Op) Info() OpInfo {
	if info, ok := opInfoTable[op]; ok {
		return info
	}
	return OpInfo{Name: fmt.Sprintf("UNKNOWN(%d)", uint8(op))}
}

func (op Op) String() string {
	return op.Info().Name
}

// AllOps returns every defined op.
func AllOps() []Op {
	ops := make([]Op, 0, len(opInfoTable))
	for op := range opInfoTable {
		ops = append(ops, op)
	}
	return ops
}
