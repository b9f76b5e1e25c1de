package bytecode

import (
	"bytes"
	"reflect"
	"testing"
)

func TestChunkCBORRoundTrip(t *testing.T) {
	original := compileFunc(t, "Add", func(int, *int) int { return 0 })

	data, err := MarshalChunk(original)
	if err != nil {
		t.Fatalf("MarshalChunk: %v", err)
	}
	again, err := MarshalChunk(original)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, again) {
		t.Error("canonical encoding is not deterministic")
	}

	restored, err := UnmarshalChunk(data)
	if err != nil {
		t.Fatalf("UnmarshalChunk: %v", err)
	}
	if restored.Method != original.Method || !bytes.Equal(restored.Code, original.Code) {
		t.Errorf("restored %q with %d code bytes", restored.Method, len(restored.Code))
	}
	if !reflect.DeepEqual(restored.Locals, original.Locals) {
		t.Errorf("Locals = %v, want %v", restored.Locals, original.Locals)
	}
	if !reflect.DeepEqual(restored.Results, original.Results) {
		t.Errorf("Results = %v, want %v", restored.Results, original.Results)
	}

	if err := restored.ResolveTypes(reflect.TypeOf(func(int, *int) int { return 0 })); err != nil {
		t.Fatal(err)
	}
	b := 1
	r := &recorder{ret: 5, mutate: func(values []any) { values[1] = 2 }}
	out, err := Execute(restored, Frame{Args: args(1, &b), Interceptor: r.intercept})
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Interface() != 5 || b != 2 {
		t.Errorf("got %v, b=%d", out[0], b)
	}
}

func TestUnmarshalChunkRejectsInvalid(t *testing.T) {
	if _, err := UnmarshalChunk([]byte{0xFF}); err == nil {
		t.Error("expected decode error")
	}

	bad := compileFunc(t, "Log", func(string) {})
	bad.Code = bad.Code[:len(bad.Code)-2]
	data, err := MarshalChunk(bad)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := UnmarshalChunk(data); err == nil {
		t.Error("expected verification error")
	}
}
