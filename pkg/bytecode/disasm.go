package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable bytecode listing for the chunk.
func (c *Chunk) Disassemble() string {
	return c.DisassembleWithName("")
}

// DisassembleWithName returns a human-readable bytecode listing with a name header.
func (c *Chunk) DisassembleWithName(name string) string {
	var sb strings.Builder

	// Header
	if name == "" {
		name = c.Method
	}
	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; Stub Bytecode v%d\n", c.Version))
	sb.WriteString(fmt.Sprintf("; Flags: 0x%04X", c.Flags))
	if c.Flags&ChunkFlagVariadic != 0 {
		sb.WriteString(" [VARIADIC]")
	}
	if c.Flags&ChunkFlagHasByRef != 0 {
		sb.WriteString(" [BYREF]")
	}
	sb.WriteString("\n")

	// Frame
	sb.WriteString(fmt.Sprintf("; Parameters: %d\n", c.ParamCount))
	if len(c.Locals) > 0 {
		kinds := make([]string, len(c.Locals))
		for i, k := range c.Locals {
			kinds[i] = k.String()
		}
		sb.WriteString(fmt.Sprintf("; Locals: %s\n", strings.Join(kinds, ", ")))
	}
	if len(c.Results) == 0 {
		sb.WriteString("; Results: void\n")
	} else {
		names := make([]string, len(c.Results))
		for i, r := range c.Results {
			names[i] = c.typeName(r.Type)
		}
		sb.WriteString(fmt.Sprintf("; Results: %s\n", strings.Join(names, ", ")))
	}
	sb.WriteString(fmt.Sprintf("; Max stack: %d\n", c.MaxStack))

	sb.WriteString("\n")

	// Constants
	if len(c.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, s := range c.Constants {
			// Truncate long strings for readability
			display := s
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			sb.WriteString(fmt.Sprintf(";   [%3d] %q\n", i, display))
		}
		sb.WriteString("\n")
	}

	// Types
	if len(c.Types) > 0 {
		sb.WriteString("; Types:\n")
		for i, s := range c.Types {
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, s))
		}
		sb.WriteString("\n")
	}

	// Code section
	sb.WriteString("; Code:\n")
	offset := 0
	for offset < len(c.Code) {
		line, instrLen := c.disassembleInstruction(offset)
		sb.WriteString(fmt.Sprintf("%04X  %s\n", offset, line))
		if instrLen == 0 {
			break
		}
		offset += instrLen
	}

	return sb.String()
}

// disassembleInstruction disassembles a single instruction at the given offset.
// Returns the formatted string and the instruction length.
func (c *Chunk) disassembleInstruction(offset int) (string, int) {
	if offset >= len(c.Code) {
		return "<end of code>", 0
	}

	op := Opcode(c.Code[offset])
	info := GetOpcodeInfo(op)
	if offset+op.InstructionLen() > len(c.Code) {
		return fmt.Sprintf("%s <truncated>", info.Name), 0
	}

	switch op {
	case OpConst:
		idx := c.readUint16(offset + 1)
		constVal := ""
		if int(idx) < len(c.Constants) {
			constVal = c.Constants[idx]
			if len(constVal) > 20 {
				constVal = constVal[:17] + "..."
			}
		}
		return fmt.Sprintf("CONST %d ; %q", idx, constVal), 3

	case OpConstInt, OpNewNames, OpNewValues:
		return fmt.Sprintf("%s %d", info.Name, c.readUint16(offset+1)), 3

	case OpLoadLocal, OpStoreLocal:
		slot := c.Code[offset+1]
		if int(slot) < len(c.Locals) {
			return fmt.Sprintf("%s %d ; %s", info.Name, slot, c.Locals[slot]), 2
		}
		return fmt.Sprintf("%s %d", info.Name, slot), 2

	case OpLoadArg, OpReturn:
		return fmt.Sprintf("%s %d", info.Name, c.Code[offset+1]), 2

	case OpLoadInd, OpStoreInd, OpBox, OpUnbox:
		idx := c.readUint16(offset + 1)
		return fmt.Sprintf("%s %d ; %s", info.Name, idx, c.typeName(idx)), 3

	case OpUnpackResults:
		return fmt.Sprintf("%s %d", info.Name, len(c.Results)), 1
	}

	if !op.IsDefined() {
		return info.Name, 1
	}
	return info.Name, op.InstructionLen()
}
