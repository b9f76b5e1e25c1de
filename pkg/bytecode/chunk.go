package bytecode

import (
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/chazu/dynstub/pkg/shape"
	"github.com/chazu/dynstub/pkg/stubgen"
)

// BytecodeVersion is the current bytecode format version.
// Increment when making incompatible changes to the format.
const BytecodeVersion uint16 = 1

// Magic bytes for bytecode files: "DSBC" (Dynamic Stub ByteCode)
var BytecodeMagic = []byte{'D', 'S', 'B', 'C'}

// ChunkFlags contains compilation flags for a chunk.
type ChunkFlags uint16

const (
	// ChunkFlagVariadic indicates the last parameter is variadic.
	ChunkFlagVariadic ChunkFlags = 1 << 0

	// ChunkFlagHasByRef indicates at least one parameter is written back.
	ChunkFlagHasByRef ChunkFlags = 1 << 1
)

// ResultInfo describes one declared result of the stubbed method.
type ResultInfo struct {
	Type      uint16 // Index into the type pool
	ValueKind bool
}

// Chunk represents the compiled body of one stub method.
// It is the fundamental unit of bytecode that can be serialized and executed.
type Chunk struct {
	// Header
	Version uint16     // Bytecode format version
	Flags   ChunkFlags // Compilation flags
	Method  string     // Name of the stubbed method

	// Code section
	Code []byte // Bytecode instructions

	// Constant pool - strings referenced by OpConst
	Constants []string

	// Type pool - canonical type names referenced by typed instructions
	Types []string

	// Frame layout
	ParamCount uint8               // Number of parameters
	Locals     []stubgen.LocalKind // Kind of each local slot
	Results    []ResultInfo        // Declared results, empty for void methods
	MaxStack   uint16              // Deepest operand stack the body reaches

	// resolved holds the reflect type for each entry of Types once known.
	resolved []reflect.Type
}

// NewChunk creates a new empty chunk with the current version.
func NewChunk() *Chunk {
	return &Chunk{
		Version:   BytecodeVersion,
		Code:      make([]byte, 0, 64),
		Constants: make([]string, 0, 8),
	}
}

// AddConstant adds a string constant to the pool and returns its index.
// If the constant already exists, returns the existing index.
func (c *Chunk) AddConstant(value string) uint16 {
	for i, s := range c.Constants {
		if s == value {
			return uint16(i)
		}
	}
	idx := uint16(len(c.Constants))
	c.Constants = append(c.Constants, value)
	return idx
}

// GetConstant returns the constant at the given index.
// Panics if the index is out of bounds.
func (c *Chunk) GetConstant(index uint16) string {
	return c.Constants[index]
}

// AddType adds a type to the type pool under its canonical name and returns
// its index. Reflect shapes also record the resolved type. Entries are
// matched by name only; the Assembler refuses distinct types that share one.
func (c *Chunk) AddType(t shape.Type) uint16 {
	name := shape.CanonicalNamer{}.TypeName(t)
	var rt reflect.Type
	if r, ok := t.(shape.ReflectType); ok {
		rt = r.T
	}

	for i, s := range c.Types {
		if s == name {
			if rt != nil && c.resolved[i] == nil {
				c.resolved[i] = rt
			}
			return uint16(i)
		}
	}
	idx := uint16(len(c.Types))
	c.Types = append(c.Types, name)
	c.resolved = append(c.resolved, rt)
	return idx
}

// Emit appends a single-byte opcode to the code section.
func (c *Chunk) Emit(op Opcode) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	return offset
}

// EmitWithOperand appends an opcode with operand bytes.
func (c *Chunk) EmitWithOperand(op Opcode, operands ...byte) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	c.Code = append(c.Code, operands...)
	return offset
}

// EmitUint16 appends an opcode with a big-endian 16-bit operand.
func (c *Chunk) EmitUint16(op Opcode, n uint16) int {
	return c.EmitWithOperand(op, byte(n>>8), byte(n))
}

// EmitConstant emits an OpConst instruction for the given value.
// Adds the constant to the pool if not already present.
func (c *Chunk) EmitConstant(value string) int {
	return c.EmitUint16(OpConst, c.AddConstant(value))
}

// CodeLen returns the length of the code section.
func (c *Chunk) CodeLen() int {
	return len(c.Code)
}

// ConstantCount returns the number of constants in the pool.
func (c *Chunk) ConstantCount() int {
	return len(c.Constants)
}

// IsVoid reports whether the stubbed method declares no results.
func (c *Chunk) IsVoid() bool {
	return len(c.Results) == 0
}

// Resolved reports whether every entry of the type pool has a reflect type,
// which Execute requires.
func (c *Chunk) Resolved() bool {
	if len(c.resolved) != len(c.Types) {
		return false
	}
	for _, t := range c.resolved {
		if t == nil {
			return false
		}
	}
	return true
}

// ResolveTypes binds the type pool to the types of fn, the stubbed method's
// function type without receiver. It fails if fn does not have the frame
// layout the chunk was compiled for or does not mention a pooled type.
//
// ResolveTypes must not be called while the chunk is executing.
func (c *Chunk) ResolveTypes(fn reflect.Type) error {
	if fn == nil || fn.Kind() != reflect.Func {
		return fmt.Errorf("resolve %s: want a func type, got %v", c.Method, fn)
	}
	if fn.NumIn() != int(c.ParamCount) {
		return fmt.Errorf("resolve %s: %v has %d params, chunk has %d", c.Method, fn, fn.NumIn(), c.ParamCount)
	}
	if fn.NumOut() != len(c.Results) {
		return fmt.Errorf("resolve %s: %v has %d results, chunk has %d", c.Method, fn, fn.NumOut(), len(c.Results))
	}

	table, err := shape.TypesOf(fn)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", c.Method, err)
	}
	resolved := make([]reflect.Type, len(c.Types))
	for i, name := range c.Types {
		t, ok := table[name]
		if !ok {
			return fmt.Errorf("resolve %s: type %q does not occur in %v", c.Method, name, fn)
		}
		resolved[i] = t
	}
	for i, r := range c.Results {
		if int(r.Type) >= len(resolved) || resolved[r.Type] != fn.Out(i) {
			return fmt.Errorf("resolve %s: result %d is %v, chunk declares %s", c.Method, i, fn.Out(i), c.typeName(r.Type))
		}
	}
	c.resolved = resolved
	return nil
}

func (c *Chunk) typeName(idx uint16) string {
	if int(idx) < len(c.Types) {
		return c.Types[idx]
	}
	return fmt.Sprintf("<type %d>", idx)
}

// readUint16 reads a big-endian uint16 from the code at the given offset.
func (c *Chunk) readUint16(offset int) uint16 {
	return binary.BigEndian.Uint16(c.Code[offset:])
}

// Serialize encodes the chunk to bytes for storage/transport.
// Resolved reflect types are not part of the encoding.
// Format:
//
//	[magic:4] [version:2] [flags:2]
//	[method_len:2] [method:...]
//	[code_len:4] [code:...]
//	[const_count:2] [constants:...]
//	[type_count:2] [types:...]
//	[param_count:1]
//	[local_count:1] [local_kinds:...]
//	[result_count:1] [results:(type:2 value_kind:1)...]
//	[max_stack:2]
func (c *Chunk) Serialize() ([]byte, error) {
	if len(c.Method) > 0xFFFF {
		return nil, fmt.Errorf("method name too long: %d bytes", len(c.Method))
	}
	if len(c.Locals) > 0xFF || len(c.Results) > 0xFF {
		return nil, fmt.Errorf("frame too large: %d locals, %d results", len(c.Locals), len(c.Results))
	}

	estimatedSize := 24 + len(c.Method) + len(c.Code) + (len(c.Constants)+len(c.Types))*32
	buf := make([]byte, 0, estimatedSize)

	// Magic number: "DSBC"
	buf = append(buf, BytecodeMagic...)

	// Version and flags
	buf = binary.BigEndian.AppendUint16(buf, c.Version)
	buf = binary.BigEndian.AppendUint16(buf, uint16(c.Flags))

	// Method name
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(c.Method)))
	buf = append(buf, c.Method...)

	// Code section
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(c.Code)))
	buf = append(buf, c.Code...)

	// Constants and types
	var err error
	if buf, err = appendStrings(buf, c.Constants); err != nil {
		return nil, fmt.Errorf("constants: %w", err)
	}
	if buf, err = appendStrings(buf, c.Types); err != nil {
		return nil, fmt.Errorf("types: %w", err)
	}

	// Frame layout
	buf = append(buf, c.ParamCount)
	buf = append(buf, byte(len(c.Locals)))
	for _, k := range c.Locals {
		buf = append(buf, byte(k))
	}
	buf = append(buf, byte(len(c.Results)))
	for _, r := range c.Results {
		buf = binary.BigEndian.AppendUint16(buf, r.Type)
		if r.ValueKind {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	buf = binary.BigEndian.AppendUint16(buf, c.MaxStack)

	return buf, nil
}

func appendStrings(buf []byte, ss []string) ([]byte, error) {
	if len(ss) > 0xFFFF {
		return nil, fmt.Errorf("too many entries: %d", len(ss))
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(ss)))
	for _, s := range ss {
		if len(s) > 0xFFFF {
			return nil, fmt.Errorf("entry too long: %d bytes", len(s))
		}
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
		buf = append(buf, s...)
	}
	return buf, nil
}

// decoder reads the serialized form with bounds checking.
type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) need(n int, what string) error {
	if d.pos+n > len(d.data) {
		return fmt.Errorf("unexpected end of bytecode reading %s at pos %d", what, d.pos)
	}
	return nil
}

func (d *decoder) byte(what string) (byte, error) {
	if err := d.need(1, what); err != nil {
		return 0, err
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) uint16(what string) (uint16, error) {
	if err := d.need(2, what); err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint16(d.data[d.pos:])
	d.pos += 2
	return n, nil
}

func (d *decoder) bytes(n int, what string) ([]byte, error) {
	if err := d.need(n, what); err != nil {
		return nil, err
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) strings(what string) ([]string, error) {
	count, err := d.uint16(what + " count")
	if err != nil {
		return nil, err
	}
	out := make([]string, count)
	for i := range out {
		n, err := d.uint16(fmt.Sprintf("%s %d length", what, i))
		if err != nil {
			return nil, err
		}
		b, err := d.bytes(int(n), fmt.Sprintf("%s %d", what, i))
		if err != nil {
			return nil, err
		}
		out[i] = string(b)
	}
	return out, nil
}

// Deserialize decodes a chunk from bytes. The returned chunk is unresolved.
func Deserialize(data []byte) (*Chunk, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("bytecode too short: need at least 8 bytes, got %d", len(data))
	}

	// Check magic
	if string(data[0:4]) != string(BytecodeMagic) {
		return nil, fmt.Errorf("invalid bytecode magic: expected %q, got %q", BytecodeMagic, data[0:4])
	}

	c := &Chunk{
		Version: binary.BigEndian.Uint16(data[4:6]),
		Flags:   ChunkFlags(binary.BigEndian.Uint16(data[6:8])),
	}

	// Version check
	if c.Version > BytecodeVersion {
		return nil, fmt.Errorf("bytecode version %d is newer than supported version %d", c.Version, BytecodeVersion)
	}

	d := &decoder{data: data, pos: 8}

	methodLen, err := d.uint16("method length")
	if err != nil {
		return nil, err
	}
	method, err := d.bytes(int(methodLen), "method")
	if err != nil {
		return nil, err
	}
	c.Method = string(method)

	if err := d.need(4, "code length"); err != nil {
		return nil, err
	}
	codeLen := binary.BigEndian.Uint32(data[d.pos:])
	d.pos += 4
	code, err := d.bytes(int(codeLen), "code section")
	if err != nil {
		return nil, err
	}
	c.Code = append([]byte(nil), code...)

	if c.Constants, err = d.strings("constant"); err != nil {
		return nil, err
	}
	if c.Types, err = d.strings("type"); err != nil {
		return nil, err
	}

	if c.ParamCount, err = d.byte("param count"); err != nil {
		return nil, err
	}

	localCount, err := d.byte("local count")
	if err != nil {
		return nil, err
	}
	c.Locals = make([]stubgen.LocalKind, localCount)
	for i := range c.Locals {
		k, err := d.byte(fmt.Sprintf("local %d kind", i))
		if err != nil {
			return nil, err
		}
		c.Locals[i] = stubgen.LocalKind(k)
	}

	resultCount, err := d.byte("result count")
	if err != nil {
		return nil, err
	}
	c.Results = make([]ResultInfo, resultCount)
	for i := range c.Results {
		t, err := d.uint16(fmt.Sprintf("result %d type", i))
		if err != nil {
			return nil, err
		}
		vk, err := d.byte(fmt.Sprintf("result %d kind", i))
		if err != nil {
			return nil, err
		}
		c.Results[i] = ResultInfo{Type: t, ValueKind: vk != 0}
	}

	if c.MaxStack, err = d.uint16("max stack"); err != nil {
		return nil, err
	}
	if d.pos != len(data) {
		return nil, fmt.Errorf("trailing bytes after chunk: %d", len(data)-d.pos)
	}

	return c, nil
}
