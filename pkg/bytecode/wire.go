package bytecode

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/dynstub/pkg/stubgen"
)

// wireChunk is the CBOR form of a Chunk. Integer keys keep the encoding
// compact.
type wireChunk struct {
	Version    uint16       `cbor:"1,keyasint"`
	Flags      uint16       `cbor:"2,keyasint"`
	Method     string       `cbor:"3,keyasint"`
	Code       []byte       `cbor:"4,keyasint"`
	Constants  []string     `cbor:"5,keyasint,omitempty"`
	Types      []string     `cbor:"6,keyasint,omitempty"`
	ParamCount uint8        `cbor:"7,keyasint"`
	Locals     []uint8      `cbor:"8,keyasint,omitempty"`
	Results    []wireResult `cbor:"9,keyasint,omitempty"`
	MaxStack   uint16       `cbor:"10,keyasint"`
}

type wireResult struct {
	_         struct{} `cbor:",toarray"`
	Type      uint16
	ValueKind bool
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR dec mode: %v", err))
	}
}

// MarshalChunk encodes c as canonical CBOR.
func MarshalChunk(c *Chunk) ([]byte, error) {
	w := wireChunk{
		Version:    c.Version,
		Flags:      uint16(c.Flags),
		Method:     c.Method,
		Code:       c.Code,
		Constants:  c.Constants,
		Types:      c.Types,
		ParamCount: c.ParamCount,
		MaxStack:   c.MaxStack,
	}
	for _, k := range c.Locals {
		w.Locals = append(w.Locals, uint8(k))
	}
	for _, r := range c.Results {
		w.Results = append(w.Results, wireResult{Type: r.Type, ValueKind: r.ValueKind})
	}
	return encMode.Marshal(w)
}

// UnmarshalChunk decodes a CBOR chunk and verifies it. The returned chunk
// is unresolved.
func UnmarshalChunk(data []byte) (*Chunk, error) {
	var w wireChunk
	if err := decMode.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal chunk: %w", err)
	}
	if w.Version > BytecodeVersion {
		return nil, fmt.Errorf("bytecode version %d is newer than supported version %d", w.Version, BytecodeVersion)
	}

	c := &Chunk{
		Version:    w.Version,
		Flags:      ChunkFlags(w.Flags),
		Method:     w.Method,
		Code:       w.Code,
		Constants:  w.Constants,
		Types:      w.Types,
		ParamCount: w.ParamCount,
		MaxStack:   w.MaxStack,
	}
	for _, k := range w.Locals {
		c.Locals = append(c.Locals, stubgen.LocalKind(k))
	}
	for _, r := range w.Results {
		c.Results = append(c.Results, ResultInfo{Type: r.Type, ValueKind: r.ValueKind})
	}
	if err := Verify(c); err != nil {
		return nil, err
	}
	return c, nil
}
