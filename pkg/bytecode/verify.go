package bytecode

import (
	"errors"
	"fmt"
)

// ErrInvalidChunk is wrapped by every verification failure.
var ErrInvalidChunk = errors.New("invalid chunk")

// VerifyError locates a verification failure in the code section.
type VerifyError struct {
	Offset int
	Op     Opcode
	Msg    string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("%v: %04X %s: %s", ErrInvalidChunk, e.Offset, e.Op, e.Msg)
}

func (e *VerifyError) Unwrap() error {
	return ErrInvalidChunk
}

// Verify simulates the operand stack over the chunk's straight-line code.
// It rejects unknown opcodes, truncated operands, operands that index past
// a pool or the frame, stack underflow, a body that does not end in a
// single final RETURN of exactly the declared results, and a body deeper
// than MaxStack.
func Verify(c *Chunk) error {
	for i, r := range c.Results {
		if int(r.Type) >= len(c.Types) {
			return fmt.Errorf("%w: result %d type %d out of range", ErrInvalidChunk, i, r.Type)
		}
	}

	depth, maxDepth := 0, 0
	offset := 0
	returned := false
	for offset < len(c.Code) {
		op := Opcode(c.Code[offset])
		fail := func(format string, args ...any) error {
			return &VerifyError{Offset: offset, Op: op, Msg: fmt.Sprintf(format, args...)}
		}

		if returned {
			return fail("unreachable code after RETURN")
		}
		if !op.IsDefined() {
			return fail("unknown opcode 0x%02X", byte(op))
		}
		if offset+op.InstructionLen() > len(c.Code) {
			return fail("truncated operand")
		}

		info := GetOpcodeInfo(op)
		pop, push := info.StackPop, info.StackPush

		switch op {
		case OpConst:
			if idx := c.readUint16(offset + 1); int(idx) >= len(c.Constants) {
				return fail("constant %d out of range", idx)
			}
		case OpLoadArg:
			if idx := c.Code[offset+1]; idx >= c.ParamCount {
				return fail("argument %d out of range", idx)
			}
		case OpLoadLocal, OpStoreLocal:
			if idx := c.Code[offset+1]; int(idx) >= len(c.Locals) {
				return fail("local %d out of range", idx)
			}
		case OpLoadInd, OpStoreInd, OpBox, OpUnbox:
			if idx := c.readUint16(offset + 1); int(idx) >= len(c.Types) {
				return fail("type %d out of range", idx)
			}
		case OpUnpackResults:
			if len(c.Results) < 2 {
				return fail("unpack of %d results", len(c.Results))
			}
			push = len(c.Results)
		case OpReturn:
			pop = int(c.Code[offset+1])
			if pop != len(c.Results) {
				return fail("returns %d values, method declares %d", pop, len(c.Results))
			}
			returned = true
		}

		if depth < pop {
			return fail("stack underflow: need %d, have %d", pop, depth)
		}
		depth += push - pop
		if depth > maxDepth {
			maxDepth = depth
		}
		if returned && depth != 0 {
			return fail("%d values left on the stack", depth)
		}
		offset += op.InstructionLen()
	}

	if !returned {
		return fmt.Errorf("%w: missing RETURN", ErrInvalidChunk)
	}
	if maxDepth > int(c.MaxStack) {
		return fmt.Errorf("%w: stack reaches %d, chunk declares %d", ErrInvalidChunk, maxDepth, c.MaxStack)
	}
	return nil
}
