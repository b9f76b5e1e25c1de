package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop Opcode = 0x00 // No operation
	OpPop Opcode = 0x01 // Pop top of stack

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpConst    Opcode = 0x10 // Push string constant from pool: OpConst <index:u16>
	OpConstInt Opcode = 0x11 // Push integer: OpConstInt <value:u16>

	// ========================================================================
	// Frame access (0x20-0x2F)
	// ========================================================================

	OpLoadReceiver Opcode = 0x20 // Push the receiver
	OpLoadArg      Opcode = 0x21 // Push argument (address for by-ref): OpLoadArg <index:u8>
	OpLoadLocal    Opcode = 0x22 // Push local slot: OpLoadLocal <slot:u8>
	OpStoreLocal   Opcode = 0x23 // Pop and store to local slot: OpStoreLocal <slot:u8>

	// ========================================================================
	// Arrays (0x30-0x3F)
	// ========================================================================

	OpNewNames  Opcode = 0x30 // Push new []string: OpNewNames <len:u16>
	OpNewValues Opcode = 0x31 // Push new []any: OpNewValues <len:u16>
	OpLoadElem  Opcode = 0x32 // array index -> element
	OpStoreElem Opcode = 0x33 // array index value -> ()

	// ========================================================================
	// Indirection (0x40-0x4F)
	// ========================================================================

	OpLoadInd     Opcode = 0x40 // addr -> value (value-kind): OpLoadInd <type:u16>
	OpLoadIndRef  Opcode = 0x41 // addr -> value (reference-kind)
	OpStoreInd    Opcode = 0x42 // addr value -> () (value-kind): OpStoreInd <type:u16>
	OpStoreIndRef Opcode = 0x43 // addr generic -> () (reference-kind)

	// ========================================================================
	// Boxing (0x50-0x5F)
	// ========================================================================

	OpBox           Opcode = 0x50 // value -> generic: OpBox <type:u16>
	OpUnbox         Opcode = 0x51 // generic -> value: OpUnbox <type:u16>
	OpUnpackResults Opcode = 0x52 // tuple -> r0 ... rn-1, per the chunk's result descriptors

	// ========================================================================
	// Calls (0x90-0x9F)
	// ========================================================================

	OpCallInterceptor Opcode = 0x90 // receiver method names values -> generic

	// ========================================================================
	// Return (0xF0-0xFF)
	// ========================================================================

	OpReturn Opcode = 0xF0 // Return top n values: OpReturn <n:u8>
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name       string // Human-readable name
	StackPop   int    // How many values popped from stack (-1 = variable)
	StackPush  int    // How many values pushed to stack (-1 = variable)
	OperandLen int    // Number of operand bytes following the opcode
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpNop: {"NOP", 0, 0, 0},
	OpPop: {"POP", 1, 0, 0},

	// Constants
	OpConst:    {"CONST", 0, 1, 2},
	OpConstInt: {"CONST_INT", 0, 1, 2},

	// Frame access
	OpLoadReceiver: {"LOAD_RECEIVER", 0, 1, 0},
	OpLoadArg:      {"LOAD_ARG", 0, 1, 1},
	OpLoadLocal:    {"LOAD_LOCAL", 0, 1, 1},
	OpStoreLocal:   {"STORE_LOCAL", 1, 0, 1},

	// Arrays
	OpNewNames:  {"NEW_NAMES", 0, 1, 2},
	OpNewValues: {"NEW_VALUES", 0, 1, 2},
	OpLoadElem:  {"LOAD_ELEM", 2, 1, 0},
	OpStoreElem: {"STORE_ELEM", 3, 0, 0},

	// Indirection
	OpLoadInd:     {"LOAD_IND", 1, 1, 2},
	OpLoadIndRef:  {"LOAD_IND_REF", 1, 1, 0},
	OpStoreInd:    {"STORE_IND", 2, 0, 2},
	OpStoreIndRef: {"STORE_IND_REF", 2, 0, 0},

	// Boxing
	OpBox:           {"BOX", 1, 1, 2},
	OpUnbox:         {"UNBOX", 1, 1, 2},
	OpUnpackResults: {"UNPACK_RESULTS", 1, -1, 0}, // Pushes len(chunk.Results)

	// Calls
	OpCallInterceptor: {"CALL_INTERCEPTOR", 4, 1, 0},

	// Return
	OpReturn: {"RETURN", -1, 0, 1}, // Pops operand count
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op)), StackPop: 0, StackPush: 0, OperandLen: 0}
}

// IsDefined reports whether op has an entry in the opcode table.
func (op Opcode) IsDefined() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// InstructionLen returns the total length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsReturn returns true if this opcode terminates execution.
func (op Opcode) IsReturn() bool {
	return op == OpReturn
}

// HasTypeOperand returns true if the operand indexes the chunk's type pool.
func (op Opcode) HasTypeOperand() bool {
	switch op {
	case OpLoadInd, OpStoreInd, OpBox, OpUnbox:
		return true
	}
	return false
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
