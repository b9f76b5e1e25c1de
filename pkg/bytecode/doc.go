// Package bytecode is a compact, serializable backend for stub bodies and
// the stack-based virtual machine that executes them.
//
// The bytecode format is designed for:
//   - Compact representation (1-3 bytes per instruction)
//   - Fast decoding (fixed-width opcodes, fixed operand lengths)
//   - Easy serialization (stored in the stub cache or passed between
//     processes)
//
// # Architecture Overview
//
//   - Opcodes: a small stack instruction set covering local slots, array
//     element access, indirect loads and stores through by-reference
//     arguments, boxing, unboxing and the interceptor call. Every opcode
//     declares its stack effect in the opcode table.
//
//   - Chunk: one compiled stub body with its constant pool, type-name pool,
//     local slot kinds and result descriptors. Chunks serialize to bytes in
//     the "DSBC" format, or to CBOR for the wire.
//
//   - Assembler: a stubgen.Emitter that encodes the abstract stub stream
//     into a Chunk. Compile runs the generator and verifies the result.
//
//   - Verify: a straight-line stack simulation that rejects chunks which
//     underflow, leave values behind, or reference out-of-range operands.
//
//   - VM: executes a chunk against reflect argument values and an
//     interceptor. Each Execute uses a fresh frame, so one chunk may run
//     concurrently.
//
// # Type Resolution
//
// Types are recorded by canonical name only. A chunk assembled from
// reflect shapes carries the resolved reflect types with it; a chunk that
// was deserialized, or assembled from go/types shapes, must be bound to a
// concrete function type with ResolveTypes before it can execute.
package bytecode
